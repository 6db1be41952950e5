package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version information - injected at build time via ldflags
var (
	Version   = "dev"
	Build     = "unknown"
	BuildTime = ""
)

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Build     string `json:"build,omitempty" yaml:"build,omitempty"`
	BuildTime string `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	Commit    string `json:"commit,omitempty" yaml:"commit,omitempty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if Build != "unknown" {
		info.Build = Build
	}
	// Try to get build info for development builds
	if Version == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range bi.Settings {
				if setting.Key == "vcs.revision" && len(setting.Value) > 7 {
					info.Commit = setting.Value[:7]
					break
				}
			}
		}
	}
	return info
}

// RenderText prints the version information
func (v versionInfo) RenderText(w io.Writer) error {
	line := fmt.Sprintf("updraft version %s", v.Version)
	if v.Build != "" {
		line += fmt.Sprintf(" (build: %s)", v.Build)
	}
	if v.BuildTime != "" {
		line += fmt.Sprintf(" [%s]", v.BuildTime)
	}
	_, err := fmt.Fprintf(w, "%s\nGo version: %s\nOS/Arch: %s\n", line, v.GoVersion, v.Platform)
	if err != nil {
		return err
	}
	if v.Commit != "" {
		_, err = fmt.Fprintf(w, "Commit: %s\n", v.Commit)
	}
	return err
}

// versionString is the short form handed to fang for --version.
func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	if Build != "unknown" && Build != "" {
		return fmt.Sprintf("%s (build: %s)", Version, Build)
	}
	return Version
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.outputWriter()
			if err != nil {
				return err
			}
			return out.Write(currentVersionInfo())
		},
	}
}
