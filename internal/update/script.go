package update

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

// SwapMode says how the helper script installs the staged artifact.
type SwapMode int

const (
	// SwapCopy overwrites the target with the staged file.
	SwapCopy SwapMode = iota
	// SwapExtractTarGz unpacks a gzip tarball into the install directory.
	SwapExtractTarGz
	// SwapExtractZip unpacks a zip archive into the install directory.
	SwapExtractZip
)

// String returns the string representation of a SwapMode.
func (m SwapMode) String() string {
	switch m {
	case SwapExtractTarGz:
		return "extract-tar.gz"
	case SwapExtractZip:
		return "extract-zip"
	default:
		return "copy"
	}
}

// DetectSwapMode picks the swap mode from the staged file's name.
func DetectSwapMode(name string) SwapMode {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return SwapExtractTarGz
	case strings.HasSuffix(lower, ".zip"):
		return SwapExtractZip
	default:
		return SwapCopy
	}
}

// ScriptPlan is everything a helper script needs to perform one swap.
type ScriptPlan struct {
	Mode       SwapMode
	Staged     string   // artifact to install; removed once installed
	Target     string   // installed artifact being replaced
	InstallDir string   // extraction destination for archive modes
	Relaunch   []string // argv started after the swap
	Delay      time.Duration
	WaitPID    int // when non-zero, wait for this process to exit first
}

// ScriptBuilder renders a ScriptPlan for one platform family.
type ScriptBuilder interface {
	// Extension is the helper file suffix, including the dot.
	Extension() string
	// Build renders the script text.
	Build(plan ScriptPlan) (string, error)
	// Command returns the argv that runs the script.
	Command(scriptPath string) (string, []string)
}

// ScriptBuilderFor returns the builder for goos.
func ScriptBuilderFor(goos string) ScriptBuilder {
	if goos == "windows" {
		return BatchScript{}
	}
	return PosixScript{}
}

func delaySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// PosixScript renders /bin/sh helpers.
type PosixScript struct{}

// Extension implements ScriptBuilder.
func (PosixScript) Extension() string { return ".sh" }

// Command implements ScriptBuilder.
func (PosixScript) Command(scriptPath string) (string, []string) {
	return "sh", []string{scriptPath}
}

// Build implements ScriptBuilder.
func (PosixScript) Build(plan ScriptPlan) (string, error) {
	if len(plan.Relaunch) == 0 {
		return "", fmt.Errorf("relaunch command is empty")
	}
	q := func(s string) (string, error) {
		out, err := syntax.Quote(s, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quote %q: %w", s, err)
		}
		return out, nil
	}

	staged, err := q(plan.Staged)
	if err != nil {
		return "", err
	}

	var install string
	switch plan.Mode {
	case SwapCopy:
		target, err := q(plan.Target)
		if err != nil {
			return "", err
		}
		install = fmt.Sprintf("cp -f %s %s", staged, target)
	case SwapExtractTarGz, SwapExtractZip:
		dir, err := q(plan.InstallDir)
		if err != nil {
			return "", err
		}
		if plan.Mode == SwapExtractTarGz {
			install = fmt.Sprintf("tar -xzf %s -C %s", staged, dir)
		} else {
			install = fmt.Sprintf("unzip -o -q %s -d %s", staged, dir)
		}
	default:
		return "", fmt.Errorf("unknown swap mode %d", plan.Mode)
	}

	argv := make([]string, len(plan.Relaunch))
	for i, arg := range plan.Relaunch {
		if argv[i], err = q(arg); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	if plan.WaitPID > 0 {
		fmt.Fprintf(&b, "while kill -0 %d 2>/dev/null; do sleep 1; done\n", plan.WaitPID)
	}
	fmt.Fprintf(&b, "sleep %d\n", delaySeconds(plan.Delay))
	fmt.Fprintf(&b, "if %s; then\n", install)
	fmt.Fprintf(&b, "\trm -f -- %s\n", staged)
	b.WriteString("fi\n")
	fmt.Fprintf(&b, "%s >/dev/null 2>&1 &\n", strings.Join(argv, " "))
	b.WriteString("rm -f -- \"$0\"\n")
	return b.String(), nil
}

// BatchScript renders cmd.exe helpers.
type BatchScript struct{}

// Extension implements ScriptBuilder.
func (BatchScript) Extension() string { return ".bat" }

// Command implements ScriptBuilder.
func (BatchScript) Command(scriptPath string) (string, []string) {
	return "cmd.exe", []string{"/C", scriptPath}
}

// batchQuote double-quotes s for cmd.exe. Percent signs are doubled; quotes
// and line breaks cannot be represented and are rejected.
func batchQuote(s string) (string, error) {
	if strings.ContainsAny(s, "\"\r\n") {
		return "", fmt.Errorf("cannot quote %q for cmd.exe", s)
	}
	return `"` + strings.ReplaceAll(s, "%", "%%") + `"`, nil
}

// Build implements ScriptBuilder.
func (BatchScript) Build(plan ScriptPlan) (string, error) {
	if len(plan.Relaunch) == 0 {
		return "", fmt.Errorf("relaunch command is empty")
	}

	staged, err := batchQuote(plan.Staged)
	if err != nil {
		return "", err
	}

	var install string
	switch plan.Mode {
	case SwapCopy:
		target, err := batchQuote(plan.Target)
		if err != nil {
			return "", err
		}
		install = fmt.Sprintf("copy /y %s %s > nul", staged, target)
	case SwapExtractTarGz, SwapExtractZip:
		dir, err := batchQuote(plan.InstallDir)
		if err != nil {
			return "", err
		}
		// bsdtar ships with Windows 10+ and reads both formats.
		install = fmt.Sprintf("tar -xf %s -C %s", staged, dir)
	default:
		return "", fmt.Errorf("unknown swap mode %d", plan.Mode)
	}

	argv := make([]string, len(plan.Relaunch))
	for i, arg := range plan.Relaunch {
		if argv[i], err = batchQuote(arg); err != nil {
			return "", err
		}
	}

	lines := []string{"@echo off"}
	if plan.WaitPID > 0 {
		pid := strconv.Itoa(plan.WaitPID)
		lines = append(lines,
			":wait",
			`tasklist /FI "PID eq `+pid+`" 2>nul | find "`+pid+`" >nul`,
			"if not errorlevel 1 (",
			"  timeout /t 1 /nobreak > nul",
			"  goto wait",
			")",
		)
	}
	lines = append(lines,
		fmt.Sprintf("timeout /t %d /nobreak > nul", delaySeconds(plan.Delay)),
		install,
		"if not errorlevel 1 del "+staged,
		`start "" `+strings.Join(argv, " "),
		`del "%~f0"`,
	)
	return strings.Join(lines, "\r\n") + "\r\n", nil
}
