package main

import (
	"context"
	"fmt"
	"io"

	"updraft/internal/config"
	"updraft/internal/ui"
	"updraft/internal/update"

	"github.com/spf13/cobra"
)

const (
	statusUpToDate = "up-to-date"
	statusDeclined = "declined"
	statusLaunched = "launched"
)

// operationResult reports the end of an update or revert command.
type operationResult struct {
	Operation string `json:"operation" yaml:"operation"`
	Status    string `json:"status" yaml:"status"`
	Current   string `json:"current" yaml:"current"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	Target    string `json:"target,omitempty" yaml:"target,omitempty"`
	Script    string `json:"script,omitempty" yaml:"script,omitempty"`
	PID       int    `json:"pid,omitempty" yaml:"pid,omitempty"`
}

func (r operationResult) RenderText(w io.Writer) error {
	var err error
	switch r.Status {
	case statusUpToDate:
		_, err = fmt.Fprintf(w, "Already up to date (%s).\n", ui.DisplayVersion(r.Current))
	case statusDeclined:
		_, err = fmt.Fprintln(w, "Update skipped.")
	case statusLaunched:
		if r.Operation == string(update.OperationRevert) {
			_, err = fmt.Fprintf(w, "Restoring %s from backup (helper pid %d). Restarting…\n", r.Target, r.PID)
		} else {
			_, err = fmt.Fprintf(w, "Updating %s to %s (helper pid %d). Restarting…\n", r.Target, ui.DisplayVersion(r.Version), r.PID)
		}
	default:
		_, err = fmt.Fprintf(w, "%s: %s\n", r.Operation, r.Status)
	}
	return err
}

func launchedResult(current, version string, h *update.Handoff) operationResult {
	return operationResult{
		Operation: string(h.Operation),
		Status:    statusLaunched,
		Current:   current,
		Version:   version,
		Target:    h.Target,
		Script:    h.Script,
		PID:       h.PID,
	}
}

func newUpdateCommand(a *app) *cobra.Command {
	var (
		yes      bool
		relaunch []string
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download and install the newest release",
		Long: `Download and install the newest release.

The installed artifact is backed up next to itself as <name>-backup<ext>
before a helper script swaps in the new one after updraft exits. Without
--yes an interactive prompt shows the release notes first.`,
		Args: cobra.NoArgs,
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
			relay := &progressRelay{}
			runner, err := a.newRunner(relay.report, relaunch)
			if err != nil {
				return err
			}

			store := a.openHistory(ctx)
			if store != nil {
				defer func() { _ = store.Close() }()
			}
			u := a.newUpdater(source, runner, store)

			info, err := u.CheckForUpdates(ctx, a.version())
			if err != nil {
				return err
			}
			if info == nil {
				return out.Write(operationResult{Operation: string(update.OperationUpdate), Status: statusUpToDate, Current: a.version()})
			}

			if yes || out.Structured() || !a.interactive() {
				h, err := u.PerformUpdate(ctx, *info)
				if err != nil {
					return err
				}
				if err := out.Write(launchedResult(a.version(), info.Version, h)); err != nil {
					return err
				}
				a.finish(store, h)
				return nil
			}

			perform := func(ctx context.Context, progress update.ProgressFunc) (*update.Handoff, error) {
				relay.set(progress)
				return u.PerformUpdate(ctx, *info)
			}
			model := ui.NewPromptModel(ctx, *info, a.version(), perform,
				ui.WithChangelogStyle(config.GetString(config.KeyChangelogStyle)))
			res, err := ui.RunPrompt(ctx, model, a.stdin, a.stdout)
			if err != nil {
				return err
			}
			switch res.Decision {
			case ui.DecisionFailed:
				return res.Err
			case ui.DecisionLaunched:
				a.finish(store, res.Handoff)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Install without prompting")
	cmd.Flags().StringSliceVar(&relaunch, "relaunch-args", nil, "Arguments passed to the target when the helper relaunches it")
	return cmd
}

func newRevertCommand(a *app) *cobra.Command {
	var relaunch []string
	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Restore the backup made by the last update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out, err := a.outputWriter()
			if err != nil {
				return err
			}
			runner, err := a.newRunner(nil, relaunch)
			if err != nil {
				return err
			}

			store := a.openHistory(ctx)
			if store != nil {
				defer func() { _ = store.Close() }()
			}

			h, err := a.newUpdater(nil, runner, store).Revert(ctx)
			if err != nil {
				return err
			}
			if err := out.Write(launchedResult(a.version(), "", h)); err != nil {
				return err
			}
			a.finish(store, h)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&relaunch, "relaunch-args", nil, "Arguments passed to the target when the helper relaunches it")
	return cmd
}
