package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.klb.dev/keepsake/internal/message"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an entry from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := daemonRequest(&message.Message{Type: message.TypeDelete, ID: args[0]}); err != nil {
				return err
			}
			fmt.Println("Deleted.")
			return nil
		},
	}
}
