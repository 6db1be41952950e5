package main

import (
	"fmt"
	"io"
	"time"

	"updraft/internal/history"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	historyHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	historyCellStyle   = lipgloss.NewStyle().PaddingRight(2)
	historyFailedStyle = lipgloss.NewStyle().PaddingRight(2).Foreground(lipgloss.Color("#FF5555"))
)

type historyResult struct {
	Events []history.Event `json:"events" yaml:"events"`
}

func (r historyResult) RenderText(w io.Writer) error {
	if len(r.Events) == 0 {
		_, err := fmt.Fprintln(w, "No update activity recorded yet.")
		return err
	}

	rows := make([][]string, 0, len(r.Events))
	for _, ev := range r.Events {
		versions := ev.FromVersion
		if ev.ToVersion != "" {
			versions += " → " + ev.ToVersion
		}
		detail := ev.Detail
		if ev.ErrorCode != "" {
			detail = ev.ErrorCode + ": " + detail
		}
		rows = append(rows, []string{
			ev.CreatedAt.Local().Format(time.DateTime),
			ev.Kind,
			ev.Outcome,
			versions,
			detail,
		})
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("WHEN", "KIND", "OUTCOME", "VERSIONS", "DETAIL").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeaderStyle.PaddingRight(2)
			}
			if col == 2 && row >= 0 && row < len(r.Events) && r.Events[row].Outcome == "failed" {
				return historyFailedStyle
			}
			return historyCellStyle
		}).
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent checks, updates and reverts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out, err := a.outputWriter()
			if err != nil {
				return err
			}
			path, err := historyPath()
			if err != nil {
				return err
			}
			store, err := history.Open(ctx, path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			events, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if events == nil {
				events = []history.Event{}
			}
			return out.Write(historyResult{Events: events})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show (0 for all)")
	return cmd
}
