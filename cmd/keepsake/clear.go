package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.klb.dev/keepsake/internal/message"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all history entries except favorites and pinned ones",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := daemonRequest(&message.Message{Type: message.TypeClear})
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d entries.\n", resp.Count)
			return nil
		},
	}
}
