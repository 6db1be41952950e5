package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"updraft/internal/debug"
)

// Test seams for resolving the running executable.
var (
	osExecutable = os.Executable
	evalSymlinks = filepath.EvalSymlinks
)

// DefaultScriptDelay is the helper's grace period before it swaps files.
const DefaultScriptDelay = 2 * time.Second

// State is a step of the update or revert pipeline.
type State int

const (
	StateIdle State = iota
	StateDownloading
	StateVerified
	StateBackedUp
	StateBackupFound
	StateCopiedToStaging
	StateScriptWritten
	StateLaunched
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDownloading:
		return "downloading"
	case StateVerified:
		return "verified"
	case StateBackedUp:
		return "backed-up"
	case StateBackupFound:
		return "backup-found"
	case StateCopiedToStaging:
		return "copied-to-staging"
	case StateScriptWritten:
		return "script-written"
	case StateLaunched:
		return "launched"
	default:
		return "idle"
	}
}

// ProgressFunc receives download progress. total is -1 when unknown.
type ProgressFunc func(written, total int64)

// StateFunc observes pipeline transitions.
type StateFunc func(State)

// Runner downloads, backs up and hands the swap off to a helper script.
type Runner struct {
	target       string
	httpClient   *http.Client
	tempDir      string
	delay        time.Duration
	waitForExit  bool
	builder      ScriptBuilder
	launcher     Launcher
	relaunchArgs []string
	progress     ProgressFunc
	onState      StateFunc
	state        State
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTarget sets the installed artifact to replace instead of the running executable.
func WithTarget(path string) RunnerOption {
	return func(r *Runner) {
		r.target = path
	}
}

// WithRunnerHTTPClient sets a custom HTTP client for artifact downloads.
func WithRunnerHTTPClient(client *http.Client) RunnerOption {
	return func(r *Runner) {
		r.httpClient = client
	}
}

// WithTempDir sets where staged artifacts and helper scripts are written.
func WithTempDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.tempDir = dir
	}
}

// WithScriptDelay sets how long the helper sleeps before swapping.
func WithScriptDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.delay = d
	}
}

// WithWaitForExit makes the helper poll for this process to exit before the delay.
func WithWaitForExit(wait bool) RunnerOption {
	return func(r *Runner) {
		r.waitForExit = wait
	}
}

// WithScriptBuilder overrides the platform script builder.
func WithScriptBuilder(b ScriptBuilder) RunnerOption {
	return func(r *Runner) {
		r.builder = b
	}
}

// WithLauncher overrides how the helper process is started.
func WithLauncher(l Launcher) RunnerOption {
	return func(r *Runner) {
		r.launcher = l
	}
}

// WithRelaunchArgs sets the arguments passed to the relaunched application.
func WithRelaunchArgs(args ...string) RunnerOption {
	return func(r *Runner) {
		r.relaunchArgs = args
	}
}

// WithProgress registers a download progress callback.
func WithProgress(fn ProgressFunc) RunnerOption {
	return func(r *Runner) {
		r.progress = fn
	}
}

// WithStateHook registers a callback invoked on every state transition.
func WithStateHook(fn StateFunc) RunnerOption {
	return func(r *Runner) {
		r.onState = fn
	}
}

// NewRunner creates a runner. Without WithTarget it replaces the running
// executable, resolved through symlinks.
func NewRunner(opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		httpClient: &http.Client{
			Timeout: 0, // No timeout for downloads
		},
		tempDir:  os.TempDir(),
		delay:    DefaultScriptDelay,
		builder:  ScriptBuilderFor(runtime.GOOS),
		launcher: DetachedLauncher{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.target == "" {
		target, err := resolveExecutable()
		if err != nil {
			return nil, err
		}
		r.target = target
	}
	abs, err := filepath.Abs(r.target)
	if err != nil {
		return nil, fmt.Errorf("resolve target path: %w", err)
	}
	r.target = abs
	return r, nil
}

func resolveExecutable() (string, error) {
	execPath, err := osExecutable()
	if err != nil {
		return "", fmt.Errorf("get executable path: %w", err)
	}
	execPath, err = evalSymlinks(execPath)
	if err != nil {
		return "", fmt.Errorf("resolve symlinks: %w", err)
	}
	return execPath, nil
}

// Target returns the installed artifact path.
func (r *Runner) Target() string {
	return r.target
}

// State returns the last state reached.
func (r *Runner) State() State {
	return r.state
}

// BackupPath returns the backup location for target: a sibling named
// <stem>-backup<ext>.
func BackupPath(target string) string {
	dir, base := filepath.Split(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+"-backup"+ext)
}

// BackupPath returns the backup location for this runner's target.
func (r *Runner) BackupPath() string {
	return BackupPath(r.target)
}

func (r *Runner) transition(s State) {
	r.state = s
	debug.Info("update state", "state", s.String(), "target", r.target)
	if r.onState != nil {
		r.onState(s)
	}
}

// DownloadAndUpdate downloads info's artifact, backs up the target and
// launches the helper. On any error before launch the target is untouched.
func (r *Runner) DownloadAndUpdate(ctx context.Context, info UpdateInfo) (*Handoff, error) {
	r.transition(StateIdle)
	if strings.TrimSpace(info.DownloadURL) == "" {
		return nil, fail(ErrDownload, "update has no download URL", nil)
	}

	r.transition(StateDownloading)
	staged, err := r.download(ctx, info.DownloadURL)
	if err != nil {
		return nil, err
	}
	r.transition(StateVerified)

	if err := r.backup(); err != nil {
		_ = os.Remove(staged)
		return nil, err
	}
	r.transition(StateBackedUp)

	return r.launch(OperationUpdate, staged, DetectSwapMode(staged))
}

// RevertToBackup stages a copy of the backup and launches the helper to
// restore it. No new backup is taken.
func (r *Runner) RevertToBackup(ctx context.Context) (*Handoff, error) {
	r.transition(StateIdle)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	backup := r.BackupPath()
	info, err := os.Stat(backup)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fail(ErrNoBackup, fmt.Sprintf("no backup found at %s", backup), nil)
	case err != nil:
		return nil, fail(ErrBackup, fmt.Sprintf("inspect backup %s: %v", backup, err), err)
	case info.IsDir():
		return nil, fail(ErrNoBackup, fmt.Sprintf("backup path %s is a directory", backup), nil)
	}
	r.transition(StateBackupFound)

	staged, err := r.stageCopy(backup)
	if err != nil {
		return nil, err
	}
	r.transition(StateCopiedToStaging)

	return r.launch(OperationRevert, staged, SwapCopy)
}

// download streams url into a temp file whose name ends with the URL's file
// name, so the swap mode can be read from its extension.
func (r *Runner) download(ctx context.Context, rawURL string) (staged string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fail(ErrDownload, fmt.Sprintf("create download request: %v", err), err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fail(ErrDownload, fmt.Sprintf("download failed: %v", err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fail(ErrDownload, fmt.Sprintf("download failed: HTTP %d", resp.StatusCode), nil)
	}

	f, err := os.CreateTemp(r.tempDir, "updraft-new-*")
	if err != nil {
		return "", fail(ErrDownload, fmt.Sprintf("create temp file: %v", err), err)
	}
	tmpPath := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	var src io.Reader = resp.Body
	if r.progress != nil {
		src = io.TeeReader(resp.Body, &progressWriter{fn: r.progress, total: resp.ContentLength})
	}
	if _, copyErr := io.Copy(f, src); copyErr != nil {
		_ = f.Close()
		return "", fail(ErrDownload, fmt.Sprintf("write download: %v", copyErr), copyErr)
	}
	if closeErr := f.Close(); closeErr != nil {
		return "", fail(ErrDownload, fmt.Sprintf("close download: %v", closeErr), closeErr)
	}

	staged = tmpPath + "-" + artifactName(rawURL)
	if renameErr := os.Rename(tmpPath, staged); renameErr != nil {
		return "", fail(ErrDownload, fmt.Sprintf("rename download: %v", renameErr), renameErr)
	}
	return staged, nil
}

// artifactName returns the last path element of rawURL.
func artifactName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "artifact"
	}
	name := filepath.Base(path.Base(u.Path))
	if name == "" || name == "." || name == "/" || name == string(filepath.Separator) {
		return "artifact"
	}
	return name
}

type progressWriter struct {
	fn      ProgressFunc
	total   int64
	written int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	p.fn(p.written, p.total)
	return len(b), nil
}

// backup copies the target to a temp sibling and renames it over the
// backup path, so a failed copy never clobbers the previous backup.
func (r *Runner) backup() error {
	info, err := os.Stat(r.target)
	if err != nil {
		return fail(ErrBackup, fmt.Sprintf("stat %s: %v", r.target, err), err)
	}

	dest := r.BackupPath()
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+"-*")
	if err != nil {
		return fail(ErrBackup, fmt.Sprintf("create backup: %v", err), err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	if err := copyFile(r.target, tmpPath, info.Mode().Perm()); err != nil {
		_ = os.Remove(tmpPath)
		return fail(ErrBackup, fmt.Sprintf("copy %s to backup: %v", r.target, err), err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fail(ErrBackup, fmt.Sprintf("install backup %s: %v", dest, err), err)
	}
	debug.Info("backup created", "path", dest)
	return nil
}

// stageCopy copies the backup into the temp dir for the helper to install.
func (r *Runner) stageCopy(backup string) (string, error) {
	f, err := os.CreateTemp(r.tempDir, "updraft-revert-*"+filepath.Ext(r.target))
	if err != nil {
		return "", fail(ErrBackup, fmt.Sprintf("stage backup: %v", err), err)
	}
	staged := f.Name()
	_ = f.Close()

	if err := copyFile(backup, staged, 0o600); err != nil {
		_ = os.Remove(staged)
		return "", fail(ErrBackup, fmt.Sprintf("stage backup: %v", err), err)
	}
	return staged, nil
}

// launch writes the helper script for staged and starts it. On failure the
// script and staged artifact are removed.
func (r *Runner) launch(op Operation, staged string, mode SwapMode) (*Handoff, error) {
	plan := ScriptPlan{
		Mode:       mode,
		Staged:     staged,
		Target:     r.target,
		InstallDir: filepath.Dir(r.target),
		Relaunch:   append([]string{r.target}, r.relaunchArgs...),
		Delay:      r.delay,
	}
	if r.waitForExit {
		plan.WaitPID = os.Getpid()
	}

	script, err := r.writeScript(op, plan)
	if err != nil {
		_ = os.Remove(staged)
		return nil, err
	}
	r.transition(StateScriptWritten)

	name, args := r.builder.Command(script)
	pid, err := r.launcher.Launch(name, args)
	if err != nil {
		_ = os.Remove(script)
		_ = os.Remove(staged)
		return nil, fail(ErrLaunch, fmt.Sprintf("start helper: %v", err), err)
	}
	r.transition(StateLaunched)

	return &Handoff{
		Operation: op,
		Target:    r.target,
		Staged:    staged,
		Script:    script,
		PID:       pid,
		Mode:      mode,
	}, nil
}

func (r *Runner) writeScript(op Operation, plan ScriptPlan) (string, error) {
	content, err := r.builder.Build(plan)
	if err != nil {
		return "", fail(ErrScript, fmt.Sprintf("build helper script: %v", err), err)
	}

	f, err := os.CreateTemp(r.tempDir, "updraft-"+string(op)+"-*"+r.builder.Extension())
	if err != nil {
		return "", fail(ErrScript, fmt.Sprintf("create helper script: %v", err), err)
	}
	scriptPath := f.Name()

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(scriptPath)
		return "", fail(ErrScript, fmt.Sprintf("write helper script: %v", err), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(scriptPath)
		return "", fail(ErrScript, fmt.Sprintf("close helper script: %v", err), err)
	}
	//nolint:gosec // G302: helper script must be executable
	if err := os.Chmod(scriptPath, 0o755); err != nil {
		_ = os.Remove(scriptPath)
		return "", fail(ErrScript, fmt.Sprintf("mark helper executable: %v", err), err)
	}
	return scriptPath, nil
}

// copyFile copies src to dst with mode, removing dst on failure.
func copyFile(src, dst string, mode os.FileMode) (err error) {
	//nolint:gosec // G304: paths are the install target and its backup
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	//nolint:gosec // G304: see above
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	return os.Chmod(dst, mode)
}
