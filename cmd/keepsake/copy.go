package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.klb.dev/keepsake/internal/message"
)

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Put a history entry back on the clipboard",
		Long: `Writes the entry's original payload back onto the system clipboard.
The daemon recognises its own write, so copying an old entry never records
a duplicate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := daemonRequest(&message.Message{Type: message.TypeCopy, ID: args[0]}); err != nil {
				return err
			}
			fmt.Println("Copied.")
			return nil
		},
	}
}
