package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll URL [TIMESTAMP]",
		Short: "Checks a URL against the wayback index",
		Long: `With a timestamp, reports whether that capture is known to the wayback
index and, when availability checks are on, whether it can be played back.
Without one, lists every capture date the index holds for the URL.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			poller := appInstance.Poller()
			if poller == nil {
				return errors.New("wayback.prefix is not configured")
			}
			if len(args) == 1 {
				dates, err := poller.CaptureDates(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("list captures: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"url": args[0], "captures": dates})
			}
			avail := poller.Resolve(cmd.Context(), args[0], args[1])
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"url":       args[0],
				"timestamp": args[1],
				"known":     avail.Known,
				"available": avail.Available,
			})
		},
	}
}
