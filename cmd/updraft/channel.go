package main

import (
	"fmt"
	"io"

	"updraft/internal/config"
	"updraft/internal/update"

	"github.com/spf13/cobra"
)

type channelResult struct {
	Channel string `json:"channel" yaml:"channel"`
	Saved   bool   `json:"saved" yaml:"saved"`
}

func (r channelResult) RenderText(w io.Writer) error {
	if r.Saved {
		_, err := fmt.Fprintf(w, "Release channel set to %s.\n", r.Channel)
		return err
	}
	_, err := fmt.Fprintf(w, "Release channel: %s\n", r.Channel)
	return err
}

func newChannelCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "channel [stable|nightly]",
		Short:     "Show or persist the release channel",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"stable", "nightly"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.outputWriter()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				ch, err := update.ParseChannel(config.GetString(config.KeySourceChannel))
				if err != nil {
					return err
				}
				return out.Write(channelResult{Channel: ch.String()})
			}

			ch, err := update.ParseChannel(args[0])
			if err != nil {
				return err
			}
			if err := config.SaveSetting(config.KeySourceChannel, ch.String()); err != nil {
				return err
			}
			return out.Write(channelResult{Channel: ch.String(), Saved: true})
		},
	}
}
