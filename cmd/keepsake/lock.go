package main

import (
	"github.com/spf13/cobra"

	"go.klb.dev/keepsake/internal/message"
)

// lock/unlock exist for picker scripts: hold an entry steady while the user
// is looking at it, then release. A lock defers replacement, not deletion.

func newLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock <id>",
		Short: "Hold an entry in place while it is being viewed",
		Long: `Locks an entry: if the same content is copied again while the lock is
held, the history keeps the entry where it is and parks the new capture as a
pending replacement. Unlocking applies the newest pending capture, or just
bumps the entry to the top when nothing arrived. Locks do not expire; always
pair with "keepsake unlock".`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := daemonRequest(&message.Message{Type: message.TypeLock, ID: args[0]})
			return err
		},
	}
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <id>",
		Short: "Release a held entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := daemonRequest(&message.Message{Type: message.TypeUnlock, ID: args[0]})
			return err
		},
	}
}
