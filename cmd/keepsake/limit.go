package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"go.klb.dev/keepsake/internal/message"
)

func newLimitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "limit [n]",
		Short: "Show or set the history limit",
		Long: `Without an argument, prints the current history limit. With one, sets it
and prunes immediately: the oldest entries beyond the limit are deleted,
except favorites and pinned entries, which never count against it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				resp, err := daemonRequest(&message.Message{Type: message.TypeStatus})
				if err != nil {
					return err
				}
				fmt.Println(resp.Status.HistoryLimit)
				return nil
			}

			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("limit must be a number: %q", args[0])
			}
			resp, err := daemonRequest(&message.Message{Type: message.TypeLimit, Limit: n})
			if err != nil {
				return err
			}
			if resp.Count > 0 {
				fmt.Printf("Limit set to %d, pruned %d entries.\n", n, resp.Count)
			} else {
				fmt.Printf("Limit set to %d.\n", n)
			}
			return nil
		},
	}
}
