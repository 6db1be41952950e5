package main

import (
	"fmt"
	"io"

	"updraft/internal/config"
	"updraft/internal/debug"
	"updraft/internal/ui"

	"github.com/spf13/cobra"
)

const changelogWidth = 80

type checkResult struct {
	Current     string `json:"current" yaml:"current"`
	Latest      string `json:"latest,omitempty" yaml:"latest,omitempty"`
	Available   bool   `json:"available" yaml:"available"`
	DownloadURL string `json:"download_url,omitempty" yaml:"download_url,omitempty"`
	Changelog   string `json:"changelog,omitempty" yaml:"changelog,omitempty"`
	Skipped     bool   `json:"skipped,omitempty" yaml:"skipped,omitempty"`

	changelogStyle string
}

func (r checkResult) RenderText(w io.Writer) error {
	switch {
	case r.Skipped:
		_, err := fmt.Fprintln(w, "Skipped: the last check is more recent than update.check-interval.")
		return err
	case !r.Available:
		_, err := fmt.Fprintf(w, "Up to date (%s).\n", ui.DisplayVersion(r.Current))
		return err
	}

	if _, err := fmt.Fprintf(w, "Update available: %s → %s\nDownload: %s\n",
		ui.DisplayVersion(r.Current), ui.DisplayVersion(r.Latest), r.DownloadURL); err != nil {
		return err
	}
	if notes := ui.RenderChangelog(r.Changelog, r.changelogStyle, changelogWidth); notes != "" {
		if _, err := fmt.Fprintf(w, "\n%s\n", notes); err != nil {
			return err
		}
	}
	return nil
}

func newCheckCommand(a *app) *cobra.Command {
	var ifDue bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out, err := a.outputWriter()
			if err != nil {
				return err
			}
			source, err := a.newSource()
			if err != nil {
				return err
			}

			store := a.openHistory(ctx)
			if store != nil {
				defer func() { _ = store.Close() }()
			}

			result := checkResult{
				Current:        a.version(),
				changelogStyle: config.GetString(config.KeyChangelogStyle),
			}
			if ifDue && store != nil {
				due, err := store.Due(ctx, config.GetDuration(config.KeyCheckInterval))
				if err != nil {
					debug.Warn("check interval lookup failed", "err", err)
				} else if !due {
					result.Skipped = true
					return out.Write(result)
				}
			}

			info, err := a.newUpdater(source, nil, store).CheckForUpdates(ctx, a.version())
			if err != nil {
				return err
			}
			if info != nil {
				result.Available = true
				result.Latest = info.Version
				result.DownloadURL = info.DownloadURL
				result.Changelog = info.Changelog
			}
			return out.Write(result)
		},
	}
	cmd.Flags().BoolVar(&ifDue, "if-due", false, "Only query the source when update.check-interval has elapsed since the last check")
	return cmd
}
