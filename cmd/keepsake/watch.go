package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/keepsake/internal/ipc"
	"go.klb.dev/keepsake/internal/message"
	"go.klb.dev/keepsake/internal/wire"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream history changes as they happen",
		Long: `Subscribes to the daemon and prints one line per change: entries added
(with the id they replaced, if any), entries bumped back to the top, and
thumbnails becoming ready. Runs until interrupted.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runWatch(v) },
	}

	f := cmd.Flags()
	f.Bool("json", false, "output one raw JSON event per line")
	addConfigFlag(cmd)

	return cmd
}

func runWatch(v *viper.Viper) error {
	if !ipc.IsRunning() {
		return errors.New("keepsake daemon is not running (start it with 'keepsake server')")
	}
	conn, err := ipc.Dial()
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	wc := wire.New(conn)
	if err := wc.WriteMsg(&message.Message{Type: message.TypeWatch}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	ack, err := wc.ReadMsg()
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if ack.Type == message.TypeError {
		return errors.New(ack.Error)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	jsonOut := v.GetBool("json")
	for {
		ev, err := wc.ReadMsg()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream ended: %w", err)
		}
		if ev.Type != message.TypeEvent {
			continue
		}
		if jsonOut {
			line, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			fmt.Println(string(line))
			continue
		}
		printEvent(ev)
	}
}

func printEvent(ev *message.Message) {
	stamp := time.Now().Format("15:04:05")
	switch ev.Event {
	case message.EventEntryAdded:
		if ev.Entry == nil {
			return
		}
		line := fmt.Sprintf("%s  added      %s [%s] %q", stamp, ev.Entry.ID, ev.Entry.Kind, ev.Entry.Preview)
		if ev.ReplacedID != "" {
			line += fmt.Sprintf("  (replaces %s)", ev.ReplacedID)
		}
		fmt.Println(line)
	case message.EventEntryReordered:
		fmt.Printf("%s  reordered  %s\n", stamp, ev.ID)
	case message.EventThumbnailReady:
		thumb, err := message.Entry{Thumbnail: ev.Thumbnail}.DecodeThumbnail()
		size := 0
		if err == nil {
			size = len(thumb)
		}
		fmt.Printf("%s  thumbnail  %s (%d KB)\n", stamp, ev.ID, size/1024)
	}
}
