package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/keepsake/internal/message"
)

func newHistoryCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent clipboard entries",
		Long: `Lists the clipboard history, newest first. Listings carry a one-line
preview per entry; use "keepsake copy <id>" to put an entry back on the
clipboard.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runHistory(v) },
	}

	f := cmd.Flags()
	f.Int("limit", 25, "maximum entries to list (0 = all)")
	f.Int("offset", 0, "entries to skip from the top")
	f.Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)

	return cmd
}

func runHistory(v *viper.Viper) error {
	resp, err := daemonRequest(&message.Message{
		Type:   message.TypeHistory,
		Limit:  v.GetInt("limit"),
		Offset: v.GetInt("offset"),
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
