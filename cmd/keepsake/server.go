package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/keepsake/internal/blob"
	"go.klb.dev/keepsake/internal/clip"
	"go.klb.dev/keepsake/internal/ingest"
	"go.klb.dev/keepsake/internal/ipc"
	"go.klb.dev/keepsake/internal/ledger"
	"go.klb.dev/keepsake/internal/notify"
	"go.klb.dev/keepsake/internal/service"
	"go.klb.dev/keepsake/internal/thumbnail"
)

func newServerCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the clipboard history daemon",
		Long: `Starts the keepsake daemon: watches the system clipboard, records every
change into the history, and serves the other keepsake commands over a local
socket.

Config file search order:
  /etc/keepsake/keepsake.toml
  $HOME/.config/keepsake/keepsake.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → KEEPSAKE_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runServer(v) },
	}

	f := cmd.Flags()
	f.String("data-dir", defaultDataDir(), "directory for the history database and image blobs")
	f.Int("dedup-window", 0, "how many recent entries duplicate detection scans (0 = history limit)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServer(v *viper.Viper) error {
	setupLogging(v)

	dataDir := v.GetString("data-dir")

	slog.Info("keepsake server starting",
		"version", Version,
		"data_dir", dataDir,
	)

	l, err := ledger.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()

	blobs, err := blob.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	// Crash between a row delete and its blob delete leaves orphan files.
	if refs, err := l.ImageRefs(); err != nil {
		slog.Warn("orphan sweep skipped", "err", err)
	} else if n, err := blobs.Sweep(refs); err != nil {
		slog.Warn("orphan sweep failed", "err", err)
	} else if n > 0 {
		slog.Info("orphan blobs swept", "removed", n)
	}

	backend := clip.New()
	defer backend.Close()
	slog.Info("clipboard backend", "name", backend.Name())

	notifier := notify.New()
	preview, _ := backend.(thumbnail.PreviewService)
	thumbs := thumbnail.NewGenerator(l, notifier, preview)

	coord, err := ingest.New(backend, l, blobs, thumbs, notifier, ingest.Config{
		DedupWindow: v.GetInt("dedup-window"),
	})
	if err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// IPC socket for the CLI commands
	if ipcLn, err := ipc.Listen(); err != nil {
		slog.Warn("IPC socket unavailable, history still records", "err", err)
	} else {
		slog.Info("IPC socket listening", "path", ipc.SocketPath())
		svc := service.New(coord, l, notifier, service.Config{
			Version: Version,
			DataDir: dataDir,
			Backend: backend.Name(),
		})
		go func() {
			if err := svc.Serve(ctx, ipcLn); err != nil {
				slog.Error("IPC serve failed", "err", err)
			}
		}()
	}

	if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("keepsake server stopped")
	return nil
}
