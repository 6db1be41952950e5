package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitializeLoadsDefaults(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	userCfg := filepath.Join(tmp, "user.yaml")

	if err := Initialize(WithWorkingDir(tmp), WithUserConfig(userCfg)); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	if got := GetString(KeySourceKind); got != "github" {
		t.Fatalf("expected default %s to be github, got %q", KeySourceKind, got)
	}
	if got := GetString(KeySourceChannel); got != "stable" {
		t.Fatalf("expected default %s to be stable, got %q", KeySourceChannel, got)
	}
	if got := GetDuration(KeyScriptDelay); got != DefaultScriptDelay {
		t.Fatalf("expected default %s to be %v, got %v", KeyScriptDelay, DefaultScriptDelay, got)
	}
	if GetBool(KeyWaitForExit) {
		t.Fatalf("expected default %s to be false", KeyWaitForExit)
	}
	if got := GetString(KeyOutputFormat); got != "text" {
		t.Fatalf("expected default %s to be text, got %q", KeyOutputFormat, got)
	}
	if got := GetString(KeyManifestURL); got != "" {
		t.Fatalf("expected default %s to be empty, got %q", KeyManifestURL, got)
	}
}

func TestProjectConfigOverridesUser(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "repo")
	nested := filepath.Join(projectDir, "sub", "dir")
	mustMkdir(t, nested)
	writeFile(t, filepath.Join(projectDir, ".updraft", "config.yaml"), `
source:
  owner: project-owner
  channel: nightly
update:
  script-delay: 5s
`)

	userCfg := filepath.Join(tmp, "user.yaml")
	writeFile(t, userCfg, `
source:
  owner: user-owner
  repo: user-repo
  channel: stable
`)

	if err := Initialize(
		WithWorkingDir(nested),
		WithUserConfig(userCfg),
	); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	if got := GetString(KeySourceOwner); got != "project-owner" {
		t.Fatalf("expected project config to win for %s, got %q", KeySourceOwner, got)
	}
	if got := GetString(KeySourceRepo); got != "user-repo" {
		t.Fatalf("expected user value for %s to survive merge, got %q", KeySourceRepo, got)
	}
	if got := GetString(KeySourceChannel); got != "nightly" {
		t.Fatalf("expected project channel, got %q", got)
	}
	if got := GetDuration(KeyScriptDelay); got != 5*time.Second {
		t.Fatalf("expected project script delay, got %v", got)
	}
}

func TestEnvironmentAndOverridesPrecedence(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "repo")
	projectCfg := filepath.Join(projectDir, ".updraft", "config.yaml")
	writeFile(t, projectCfg, `
source:
  api-url: https://project.example
  channel: stable
output:
  format: yaml
`)

	t.Setenv("UPDRAFT_SOURCE_API_URL", "https://env.example")
	t.Setenv("UPDRAFT_SOURCE_CHANNEL", "nightly")

	if err := Initialize(
		WithWorkingDir(projectDir),
		WithProjectConfig(projectCfg),
		WithUserConfig(filepath.Join(tmp, "missing.yaml")),
	); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	if got := GetString(KeySourceAPIURL); got != "https://env.example" {
		t.Fatalf("expected env override for %s, got %q", KeySourceAPIURL, got)
	}
	if got := GetString(KeySourceChannel); got != "nightly" {
		t.Fatalf("expected env override for %s, got %q", KeySourceChannel, got)
	}

	if err := ApplyOverrides(map[string]any{
		KeySourceChannel: "stable",
		KeyOutputFormat:  "json",
	}); err != nil {
		t.Fatalf("ApplyOverrides returned error: %v", err)
	}

	if got := GetString(KeySourceChannel); got != "stable" {
		t.Fatalf("expected CLI override to set %s=stable, got %q", KeySourceChannel, got)
	}
	if got := GetString(KeyOutputFormat); got != "json" {
		t.Fatalf("expected CLI override for %s, got %q", KeyOutputFormat, got)
	}
}

func TestInitializeRejectsDirectoryConfig(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	dirAsFile := filepath.Join(tmp, "user.yaml")
	mustMkdir(t, dirAsFile)

	err := Initialize(WithWorkingDir(tmp), WithUserConfig(dirAsFile))
	if err == nil {
		t.Fatal("expected error for directory config path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSaveSettingWritesUserConfig(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	t.Chdir(tmp)
	userCfg := filepath.Join(tmp, "home", ".updraft", "config.yaml")
	writeFile(t, userCfg, "source:\n  owner: keep-me\n")

	if err := Initialize(WithWorkingDir(tmp), WithUserConfig(userCfg)); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	userConfigPathOverride = userCfg

	if err := SaveSetting(KeySourceChannel, "nightly"); err != nil {
		t.Fatalf("SaveSetting returned error: %v", err)
	}

	data, err := os.ReadFile(userCfg)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "channel: nightly") {
		t.Fatalf("saved config missing channel:\n%s", content)
	}
	if !strings.Contains(content, "owner: keep-me") {
		t.Fatalf("saved config dropped existing key:\n%s", content)
	}
	if got := GetString(KeySourceChannel); got != "nightly" {
		t.Fatalf("expected runtime value to follow save, got %q", got)
	}
}

func TestSaveSettingPrefersProjectConfig(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tmp := t.TempDir()
	projectCfg := filepath.Join(tmp, ".updraft", "config.yaml")
	writeFile(t, projectCfg, "source:\n  repo: app\n")
	t.Chdir(tmp)

	userCfg := filepath.Join(tmp, "user", "config.yaml")
	if err := Initialize(WithWorkingDir(tmp), WithUserConfig(userCfg)); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	userConfigPathOverride = userCfg

	if err := SaveSetting(KeySourceChannel, "nightly"); err != nil {
		t.Fatalf("SaveSetting returned error: %v", err)
	}

	data, err := os.ReadFile(projectCfg)
	if err != nil {
		t.Fatalf("read project config: %v", err)
	}
	if !strings.Contains(string(data), "channel: nightly") {
		t.Fatalf("project config not updated:\n%s", data)
	}
	if _, err := os.Stat(userCfg); !os.IsNotExist(err) {
		t.Fatalf("user config should not be created, stat err = %v", err)
	}
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	mustMkdir(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
