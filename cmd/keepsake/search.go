package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/keepsake/internal/message"
)

func newSearchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "search <substring>",
		Short: "Search the history for matching text",
		Long: `Searches entry text, link URLs, and file paths for a substring,
case-insensitive. Results are ordered newest first.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, args []string) error { return runSearch(v, args[0]) },
	}

	f := cmd.Flags()
	f.Int("limit", 25, "maximum entries to list (0 = all)")
	f.Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)

	return cmd
}

func runSearch(v *viper.Viper, query string) error {
	resp, err := daemonRequest(&message.Message{
		Type:  message.TypeSearch,
		Query: query,
		Limit: v.GetInt("limit"),
	})
	if err != nil {
		return err
	}
	if v.GetBool("json") {
		return printJSON(resp.Entries)
	}
	printEntries(resp.Entries)
	return nil
}
