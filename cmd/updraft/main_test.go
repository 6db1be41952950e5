package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"updraft/internal/config"
	apperrors "updraft/internal/errors"
	"updraft/internal/update"

	"mvdan.cc/sh/v3/syntax"
)

type testEnv struct {
	a          *app
	stdout     *bytes.Buffer
	stderr     *bytes.Buffer
	server     *httptest.Server
	dir        string
	target     string
	historyDB  string
	launches   [][]string
	terminated []*update.Handoff
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(config.ResetForTesting(t))
	if err := config.Set(config.KeyChangelogStyle, "plain"); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		dir:    t.TempDir(),
	}
	env.target = filepath.Join(env.dir, "app")
	env.historyDB = filepath.Join(env.dir, "history.db")
	if err := os.WriteFile(env.target, []byte("old build"), 0o755); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"version":"2.0.0","url":"%s/download/app","changelog":"- faster startup"}`, env.server.URL)
	})
	mux.HandleFunc("/broken.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"version":"2.0.0","url":"%s/download/missing"}`, env.server.URL)
	})
	mux.HandleFunc("/repos/acme/app/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"tag_name":"v2.1.0","body":"## Notes\n\n- release notes","assets":[{"browser_download_url":"%s/download/app_linux_amd64.tar.gz"}]}`, env.server.URL)
	})
	mux.HandleFunc("/download/app", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("new build"))
	})
	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)

	env.a = &app{
		stdin:       strings.NewReader(""),
		stdout:      env.stdout,
		stderr:      env.stderr,
		tempDir:     t.TempDir(),
		interactive: func() bool { return false },
		launcher: update.LauncherFunc(func(name string, args []string) (int, error) {
			env.launches = append(env.launches, append([]string{name}, args...))
			return 4321, nil
		}),
		terminate: func(h *update.Handoff) {
			env.terminated = append(env.terminated, h)
		},
	}
	return env
}

// run executes the command tree with the manifest source, the temp target
// and the temp journal, followed by args.
func (e *testEnv) run(args ...string) error {
	base := []string{
		"--source", "manifest",
		"--manifest-url", e.server.URL + "/manifest.json",
		"--target", e.target,
		"--history", e.historyDB,
	}
	e.stdout.Reset()
	root := newRootCommand(e.a)
	root.SetArgs(append(base, args...))
	return root.ExecuteContext(context.Background())
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestCheckReportsAvailableUpdate(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("--current-version", "1.0.0", "check"); err != nil {
		t.Fatalf("check error: %v", err)
	}
	out := env.stdout.String()
	for _, want := range []string{"Update available: v1.0.0 → v2.0.0", "/download/app", "faster startup"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if len(env.launches) != 0 {
		t.Error("check must not launch anything")
	}
}

func TestCheckJSONOutput(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("--current-version", "1.0.0", "-o", "json", "check"); err != nil {
		t.Fatalf("check error: %v", err)
	}
	var got checkResult
	if err := json.Unmarshal(env.stdout.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", env.stdout.String(), err)
	}
	if !got.Available || got.Latest != "2.0.0" || got.Current != "1.0.0" || got.Changelog != "- faster startup" {
		t.Errorf("result = %+v", got)
	}
}

func TestCheckUpToDate(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("--current-version", "v2.0.0", "check"); err != nil {
		t.Fatalf("check error: %v", err)
	}
	if got := env.stdout.String(); got != "Up to date (v2.0.0).\n" {
		t.Errorf("output = %q", got)
	}
}

func TestCheckGitHubSource(t *testing.T) {
	env := newTestEnv(t)
	root := newRootCommand(env.a)
	root.SetArgs([]string{
		"--source", "github", "--owner", "acme", "--repo", "app",
		"--api-url", env.server.URL,
		"--history", env.historyDB,
		"--current-version", "2.0.0",
		"-o", "json",
		"check",
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("check error: %v", err)
	}
	var got checkResult
	if err := json.Unmarshal(env.stdout.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !got.Available || got.Latest != "v2.1.0" || !strings.HasSuffix(got.DownloadURL, "app_linux_amd64.tar.gz") {
		t.Errorf("result = %+v", got)
	}
}

func TestCheckIfDueSkipsRecentCheck(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("--current-version", "1.0.0", "check", "--if-due"); err != nil {
		t.Fatalf("first check error: %v", err)
	}
	if strings.Contains(env.stdout.String(), "Skipped") {
		t.Fatal("first check should query the source")
	}

	if err := env.run("--current-version", "1.0.0", "check", "--if-due"); err != nil {
		t.Fatalf("second check error: %v", err)
	}
	if !strings.Contains(env.stdout.String(), "Skipped") {
		t.Errorf("second check inside the interval should be skipped:\n%s", env.stdout.String())
	}
}

func TestUpdateYesLaunchesHelper(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("--current-version", "1.0.0", "update", "--yes"); err != nil {
		t.Fatalf("update error: %v", err)
	}

	if len(env.launches) != 1 {
		t.Fatalf("launches = %q, want one helper", env.launches)
	}
	if len(env.terminated) != 1 || env.terminated[0].Operation != update.OperationUpdate || env.terminated[0].PID != 4321 {
		t.Fatalf("terminated = %+v", env.terminated)
	}
	if got := readFile(t, update.BackupPath(env.target)); got != "old build" {
		t.Errorf("backup = %q, want the old build", got)
	}
	if got := readFile(t, env.target); got != "old build" {
		t.Errorf("target = %q; the helper, not updraft, swaps it", got)
	}
	if got := readFile(t, env.terminated[0].Staged); got != "new build" {
		t.Errorf("staged artifact = %q", got)
	}
	quoted, err := syntax.Quote(env.target, syntax.LangPOSIX)
	if err != nil {
		t.Fatal(err)
	}
	if script := readFile(t, env.terminated[0].Script); !strings.Contains(script, "\n"+quoted+" >/dev/null 2>&1 &\n") {
		t.Errorf("helper should relaunch the target without arguments by default:\n%s", script)
	}
	if !strings.Contains(env.stdout.String(), "to v2.0.0 (helper pid 4321). Restarting") {
		t.Errorf("output = %q", env.stdout.String())
	}

	if err := env.run("-o", "json", "history"); err != nil {
		t.Fatalf("history error: %v", err)
	}
	var hist struct {
		Events []struct {
			Kind    string `json:"kind"`
			Outcome string `json:"outcome"`
		} `json:"events"`
	}
	if err := json.Unmarshal(env.stdout.Bytes(), &hist); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(hist.Events) != 2 || hist.Events[0].Kind != "update" || hist.Events[0].Outcome != "launched" || hist.Events[1].Outcome != "available" {
		t.Errorf("history = %+v", hist.Events)
	}
}

func TestUpdateUpToDateLeavesTargetAlone(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("--current-version", "9.0.0", "update", "--yes"); err != nil {
		t.Fatalf("update error: %v", err)
	}
	if got := env.stdout.String(); got != "Already up to date (v9.0.0).\n" {
		t.Errorf("output = %q", got)
	}
	if len(env.launches) != 0 || len(env.terminated) != 0 {
		t.Error("nothing should launch when up to date")
	}
	if _, err := os.Stat(update.BackupPath(env.target)); !os.IsNotExist(err) {
		t.Error("no backup should be written when up to date")
	}
}

func TestUpdateDownloadFailure(t *testing.T) {
	env := newTestEnv(t)
	err := env.run("--manifest-url", env.server.URL+"/broken.json", "--current-version", "1.0.0", "update", "--yes")
	if !errors.Is(err, update.ErrDownload) {
		t.Fatalf("error = %v, want ErrDownload", err)
	}
	if len(env.terminated) != 0 {
		t.Error("a failed update must not terminate")
	}
	if got := readFile(t, env.target); got != "old build" {
		t.Errorf("target = %q", got)
	}
}

func TestRevertWithoutBackup(t *testing.T) {
	env := newTestEnv(t)
	err := env.run("revert")
	if !errors.Is(err, update.ErrNoBackup) {
		t.Fatalf("error = %v, want ErrNoBackup", err)
	}
	if !apperrors.IsCode(err, apperrors.CodeNoBackup) {
		t.Errorf("code = %q", apperrors.CodeOf(err))
	}
	if len(env.launches) != 0 {
		t.Error("revert without a backup must not launch")
	}
}

func TestRevertLaunchesHelper(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(update.BackupPath(env.target), []byte("previous build"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := env.run("revert", "--relaunch-args=--resume"); err != nil {
		t.Fatalf("revert error: %v", err)
	}
	if len(env.terminated) != 1 || env.terminated[0].Operation != update.OperationRevert {
		t.Fatalf("terminated = %+v", env.terminated)
	}
	if got := readFile(t, env.terminated[0].Staged); got != "previous build" {
		t.Errorf("staged copy = %q", got)
	}
	if !strings.Contains(readFile(t, env.terminated[0].Script), "--resume") {
		t.Error("helper should relaunch with --resume")
	}
	if !strings.Contains(env.stdout.String(), "from backup") {
		t.Errorf("output = %q", env.stdout.String())
	}
}

func TestHistoryEmpty(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("history"); err != nil {
		t.Fatalf("history error: %v", err)
	}
	if got := env.stdout.String(); got != "No update activity recorded yet.\n" {
		t.Errorf("output = %q", got)
	}
}

func TestHistoryTextTable(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("--current-version", "1.0.0", "check"); err != nil {
		t.Fatal(err)
	}
	if err := env.run("history", "--limit", "5"); err != nil {
		t.Fatalf("history error: %v", err)
	}
	out := env.stdout.String()
	for _, want := range []string{"KIND", "OUTCOME", "check", "available", "1.0.0 → 2.0.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("history table missing %q:\n%s", want, out)
		}
	}
}

func TestChannelShowAndSave(t *testing.T) {
	env := newTestEnv(t)
	t.Chdir(t.TempDir())

	if err := env.run("channel"); err != nil {
		t.Fatalf("channel error: %v", err)
	}
	if got := env.stdout.String(); got != "Release channel: stable\n" {
		t.Errorf("output = %q", got)
	}

	if err := env.run("channel", "nightly"); err != nil {
		t.Fatalf("channel nightly error: %v", err)
	}
	if got := env.stdout.String(); got != "Release channel set to nightly.\n" {
		t.Errorf("output = %q", got)
	}
	if got := config.GetString(config.KeySourceChannel); got != "nightly" {
		t.Errorf("channel in config = %q", got)
	}
	home, _ := os.UserHomeDir()
	if saved := readFile(t, filepath.Join(home, ".updraft", "config.yaml")); !strings.Contains(saved, "nightly") {
		t.Errorf("saved config = %q", saved)
	}

	err := env.run("channel", "beta")
	if !apperrors.IsCode(err, apperrors.CodeConfigurationError) {
		t.Errorf("unknown channel error = %v", err)
	}
}

func TestSourceConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"github without owner", []string{"--source", "github", "check"}},
		{"manifest without url", []string{"--source", "manifest", "check"}},
		{"unknown source", []string{"--source", "ftp", "check"}},
		{"unknown output", []string{"-o", "xml", "version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			root := newRootCommand(env.a)
			root.SetArgs(append([]string{"--history", env.historyDB}, tt.args...))
			err := root.ExecuteContext(context.Background())
			if !apperrors.IsCode(err, apperrors.CodeConfigurationError) {
				t.Errorf("error = %v, want configuration_error", err)
			}
		})
	}
}

func TestVersionCommandJSON(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("-o", "json", "version"); err != nil {
		t.Fatalf("version error: %v", err)
	}
	var got versionInfo
	if err := json.Unmarshal(env.stdout.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Version != Version || got.GoVersion == "" || !strings.Contains(got.Platform, "/") {
		t.Errorf("version info = %+v", got)
	}
}

func TestProgressRelay(t *testing.T) {
	var r progressRelay
	r.report(1, 2)

	var got []int64
	r.set(func(written, total int64) {
		got = append(got, written, total)
	})
	r.report(3, 4)
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("relayed = %v", got)
	}
}

func TestOperationResultRenderText(t *testing.T) {
	tests := []struct {
		name string
		r    operationResult
		want string
	}{
		{"up to date", operationResult{Status: statusUpToDate, Current: "1.2.0"}, "Already up to date (v1.2.0).\n"},
		{"declined", operationResult{Status: statusDeclined}, "Update skipped.\n"},
		{"update", operationResult{Operation: "update", Status: statusLaunched, Version: "2.0.0", Target: "/opt/app", PID: 7}, "Updating /opt/app to v2.0.0 (helper pid 7). Restarting…\n"},
		{"revert", operationResult{Operation: "revert", Status: statusLaunched, Target: "/opt/app", PID: 7}, "Restoring /opt/app from backup (helper pid 7). Restarting…\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.r.RenderText(&buf); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
