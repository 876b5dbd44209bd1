package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/keepsake/internal/message"
)

func newPinboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pinboard",
		Short: "Manage pinboards (named collections of entries)",
		Long: `Pinboards are named collections of entries. Pinning moves an entry out of
the history listing onto its board, where clearing and pruning never touch
it; copying the same content again records a fresh history entry. An entry
belongs to at most one pinboard.`,
	}

	cmd.AddCommand(
		newPinboardListCmd(),
		newPinboardCreateCmd(),
		newPinboardDeleteCmd(),
		newPinboardAssignCmd(),
		newPinboardUnassignCmd(),
		newPinboardItemsCmd(),
	)
	return cmd
}

func newPinboardListCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List pinboards",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := daemonRequest(&message.Message{
				Type:   message.TypePinboard,
				Action: message.PinboardList,
			})
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(resp.Pinboards)
			}
			if len(resp.Pinboards) == 0 {
				fmt.Println("No pinboards.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "NAME\tCREATED\n")
			_, _ = fmt.Fprintf(tw, "----\t-------\n")
			for _, b := range resp.Pinboards {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", b.Name, fmtAge(b.CreatedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "output raw JSON")
	return cmd
}

func newPinboardCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a pinboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := daemonRequest(&message.Message{
				Type:   message.TypePinboard,
				Action: message.PinboardCreate,
				Name:   args[0],
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created pinboard %q.\n", args[0])
			return nil
		},
	}
}

func newPinboardDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a pinboard",
		Long: `Deletes a pinboard. Its entries stay in the history; they just stop
being pinned.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := daemonRequest(&message.Message{
				Type:   message.TypePinboard,
				Action: message.PinboardDelete,
				Name:   args[0],
			})
			if err != nil {
				return err
			}
			fmt.Printf("Deleted pinboard %q.\n", args[0])
			return nil
		},
	}
}

func newPinboardAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <entry-id> <name>",
		Short: "Pin an entry to a pinboard",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := daemonRequest(&message.Message{
				Type:   message.TypePinboard,
				Action: message.PinboardAssign,
				ID:     args[0],
				Name:   args[1],
			})
			if err != nil {
				return err
			}
			fmt.Println("Pinned.")
			return nil
		},
	}
}

func newPinboardUnassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <entry-id>",
		Short: "Unpin an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := daemonRequest(&message.Message{
				Type:   message.TypePinboard,
				Action: message.PinboardUnassign,
				ID:     args[0],
			})
			if err != nil {
				return err
			}
			fmt.Println("Unpinned.")
			return nil
		},
	}
}

func newPinboardItemsCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "items <name>",
		Short:   "List the entries pinned to a pinboard",
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := daemonRequest(&message.Message{
				Type:   message.TypePinboard,
				Action: message.PinboardItems,
				Name:   args[0],
			})
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(resp.Entries)
			}
			printEntries(resp.Entries)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output raw JSON")
	return cmd
}
