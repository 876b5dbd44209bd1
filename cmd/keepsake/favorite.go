package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.klb.dev/keepsake/internal/message"
)

func newFavoriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <id>",
		Short: "Toggle an entry's favorite flag",
		Long: `Toggles the favorite flag on an entry. Favorites survive "keepsake clear"
and are never pruned when the history limit is reached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := daemonRequest(&message.Message{Type: message.TypeFavorite, ID: args[0]})
			if err != nil {
				return err
			}
			if resp.Favorite {
				fmt.Println("Favorited.")
			} else {
				fmt.Println("Unfavorited.")
			}
			return nil
		},
	}
}
