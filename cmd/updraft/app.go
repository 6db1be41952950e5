package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"updraft/internal/config"
	"updraft/internal/debug"
	apperrors "updraft/internal/errors"
	"updraft/internal/history"
	"updraft/internal/output"
	"updraft/internal/update"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// app carries the process streams and the seams the commands need.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configFile     string
	currentVersion string
	target         string
	tempDir        string

	httpClient  *http.Client
	launcher    update.Launcher
	interactive func() bool
	terminate   func(*update.Handoff)
}

func newApp() *app {
	return &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		interactive: func() bool {
			return isTerminal(os.Stdin) && isTerminal(os.Stdout)
		},
		terminate: func(h *update.Handoff) {
			h.Terminate()
		},
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// flagKeys maps persistent flags onto the config keys they override.
var flagKeys = map[string]string{
	"source":       config.KeySourceKind,
	"owner":        config.KeySourceOwner,
	"repo":         config.KeySourceRepo,
	"channel":      config.KeySourceChannel,
	"api-url":      config.KeySourceAPIURL,
	"manifest-url": config.KeyManifestURL,
	"history":      config.KeyHistoryPath,
	"output":       config.KeyOutputFormat,
	"debug":        config.KeyDebug,
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "updraft",
		Short: "Check for, install and revert application releases",
		Long: `updraft keeps a locally installed application current.

It asks a release API (GitHub by default) or a static JSON manifest for the
newest release, downloads the artifact, backs up the installed copy and hands
the swap to a small helper script that runs after this process exits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			debug.Close()
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.String("source", "", "Update source: github or manifest")
	pf.String("owner", "", "Repository owner for the github source")
	pf.String("repo", "", "Repository name for the github source")
	pf.String("channel", "", "Release channel: stable or nightly")
	pf.String("api-url", "", "Release API base URL")
	pf.String("manifest-url", "", "URL of the JSON manifest for the manifest source")
	pf.String("history", "", "Path to the history journal (default ~/.updraft/history.db)")
	pf.StringP("output", "o", "", "Output format: text, json, yaml")
	pf.Bool("debug", false, "Write a debug log to ~/.updraft/debug.log")
	pf.StringVar(&a.currentVersion, "current-version", "", "Installed version to compare against (default: this build)")
	pf.StringVar(&a.target, "target", "", "Installed artifact to replace (default: this executable)")
	pf.StringVar(&a.configFile, "config", "", "Config file (default: discovered .updraft/config.yaml)")

	_ = root.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("channel", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"stable", "nightly"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newCheckCommand(a),
		newUpdateCommand(a),
		newRevertCommand(a),
		newHistoryCommand(a),
		newChannelCommand(a),
		newVersionCommand(a),
	)
	return root
}

// setup loads configuration, applies explicitly set flags on top of it and
// starts the debug log.
func (a *app) setup(cmd *cobra.Command) error {
	var opts []config.Option
	if a.configFile != "" {
		opts = append(opts, config.WithProjectConfig(a.configFile))
	}
	if err := config.Initialize(opts...); err != nil {
		return apperrors.New(apperrors.CodeConfigurationError, "load configuration", err)
	}

	overrides := map[string]any{}
	flags := cmd.Flags()
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if name == "debug" {
			enabled, _ := flags.GetBool(name)
			overrides[key] = enabled
			continue
		}
		overrides[key] = f.Value.String()
	}
	if err := config.ApplyOverrides(overrides); err != nil {
		return apperrors.New(apperrors.CodeConfigurationError, "apply flag overrides", err)
	}

	if err := debug.Init(config.GetBool(config.KeyDebug)); err != nil {
		fmt.Fprintf(a.stderr, "Warning: debug log unavailable: %v\n", err)
	}
	debug.Info("command start", "command", cmd.CommandPath(), "version", Version)
	return nil
}

// version is the installed version used as the comparison baseline.
func (a *app) version() string {
	if v := strings.TrimSpace(a.currentVersion); v != "" {
		return v
	}
	return Version
}

func (a *app) outputWriter() (*output.Writer, error) {
	format, err := output.ParseFormat(config.GetString(config.KeyOutputFormat))
	if err != nil {
		return nil, err
	}
	return output.NewWriter(a.stdout, format), nil
}

func configError(msg string) error {
	return apperrors.New(apperrors.CodeConfigurationError, msg, nil)
}

// newSource builds the configured update source.
func (a *app) newSource() (update.Source, error) {
	opts := []update.SourceOption{
		update.WithTimeout(config.GetDuration(config.KeyHTTPTimeout)),
		update.WithUserAgent("updraft/" + Version),
	}
	if a.httpClient != nil {
		opts = append(opts, update.WithHTTPClient(a.httpClient))
	}

	switch kind := strings.ToLower(strings.TrimSpace(config.GetString(config.KeySourceKind))); kind {
	case "github", "":
		owner := strings.TrimSpace(config.GetString(config.KeySourceOwner))
		repo := strings.TrimSpace(config.GetString(config.KeySourceRepo))
		if owner == "" || repo == "" {
			return nil, configError("source.owner and source.repo are required for the github source")
		}
		channel, err := update.ParseChannel(config.GetString(config.KeySourceChannel))
		if err != nil {
			return nil, err
		}
		opts = append(opts, update.WithBaseURL(config.GetString(config.KeySourceAPIURL)))
		if token := strings.TrimSpace(config.GetString(config.KeySourceToken)); token != "" {
			opts = append(opts, update.WithToken(token))
		}
		return update.NewReleaseSource(owner, repo, channel, opts...), nil
	case "manifest":
		url := strings.TrimSpace(config.GetString(config.KeyManifestURL))
		if url == "" {
			return nil, configError("manifest.url is required for the manifest source")
		}
		return update.NewManifestSource(url, opts...), nil
	default:
		return nil, configError(fmt.Sprintf("unknown update source: %s", kind))
	}
}

// openHistory opens the journal. Failures are logged and yield a nil store:
// the journal never blocks an update.
func (a *app) openHistory(ctx context.Context) *history.Store {
	path, err := historyPath()
	if err == nil {
		var store *history.Store
		store, err = history.Open(ctx, path)
		if err == nil {
			return store
		}
	}
	debug.Warn("history unavailable", "err", err)
	fmt.Fprintf(a.stderr, "Warning: history journal unavailable: %v\n", err)
	return nil
}

func historyPath() (string, error) {
	if p := strings.TrimSpace(config.GetString(config.KeyHistoryPath)); p != "" {
		return p, nil
	}
	return history.DefaultPath()
}

// newRunner builds the runner for the configured target.
func (a *app) newRunner(progress update.ProgressFunc, relaunch []string) (*update.Runner, error) {
	opts := []update.RunnerOption{
		update.WithScriptDelay(config.GetDuration(config.KeyScriptDelay)),
		update.WithWaitForExit(config.GetBool(config.KeyWaitForExit)),
		update.WithRelaunchArgs(relaunch...),
	}
	if a.target != "" {
		opts = append(opts, update.WithTarget(a.target))
	}
	if a.tempDir != "" {
		opts = append(opts, update.WithTempDir(a.tempDir))
	}
	if a.httpClient != nil {
		opts = append(opts, update.WithRunnerHTTPClient(a.httpClient))
	}
	if a.launcher != nil {
		opts = append(opts, update.WithLauncher(a.launcher))
	}
	if progress != nil {
		opts = append(opts, update.WithProgress(progress))
	}
	return update.NewRunner(opts...)
}

// newUpdater wires source, runner and journal together. source may be nil
// for commands that never check.
func (a *app) newUpdater(source update.Source, runner *update.Runner, store *history.Store) *update.Updater {
	opts := []update.UpdaterOption{update.WithCurrentVersion(a.version())}
	if store != nil {
		opts = append(opts, update.WithRecorder(store))
	}
	return update.NewUpdater(source, runner, opts...)
}

// finish releases resources before handing the process to the helper.
func (a *app) finish(store *history.Store, h *update.Handoff) {
	if store != nil {
		_ = store.Close()
	}
	debug.Info("handing off", "operation", string(h.Operation), "pid", h.PID, "script", h.Script)
	debug.Close()
	a.terminate(h)
}

// progressRelay lets the prompt attach its progress sink after the runner
// has been built.
type progressRelay struct {
	mu sync.Mutex
	fn update.ProgressFunc
}

func (r *progressRelay) set(fn update.ProgressFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn = fn
}

func (r *progressRelay) report(written, total int64) {
	r.mu.Lock()
	fn := r.fn
	r.mu.Unlock()
	if fn != nil {
		fn(written, total)
	}
}
