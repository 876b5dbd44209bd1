// keepsake: clipboard history for the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "keepsake",
		Short: "Clipboard history for the command line",
		Long: `keepsake watches the system clipboard and keeps a searchable history
of everything you copy: text, links, images, and file lists.

Run "keepsake server" to start the daemon. Every other command talks to it
over a local socket: "keepsake history" lists recent entries, "keepsake copy
<id>" puts an old entry back on the clipboard, "keepsake watch" streams
changes as they happen.

Config file search order (first found wins):
  /etc/keepsake/keepsake.toml
  $HOME/.config/keepsake/keepsake.toml
  path supplied via --config

All flags can be set via KEEPSAKE_<FLAG> env vars or config-file keys.
See "keepsake server --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServerCmd(),
		newHistoryCmd(),
		newSearchCmd(),
		newCopyCmd(),
		newDeleteCmd(),
		newFavoriteCmd(),
		newClearCmd(),
		newLimitCmd(),
		newLockCmd(),
		newUnlockCmd(),
		newPinboardCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("keepsake %s\n", Version)
		},
	}
}
