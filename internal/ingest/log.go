package ingest

import (
	"context"
	"log/slog"

	"go.klb.dev/keepsake/internal/classify"
)

// logCapture logs a capture at INFO (kind only) and DEBUG (text preview up
// to 120 chars, or sizes for binary content).
func logCapture(event string, c classify.Content) {
	slog.Info(event, "kind", c.Kind)

	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	switch c.Kind {
	case classify.KindText, classify.KindLink:
		preview := c.Text
		if len(preview) > 120 {
			preview = preview[:120] + "…"
		}
		slog.Debug("capture", "kind", c.Kind, "preview", preview)
	case classify.KindImage:
		slog.Debug("capture", "kind", c.Kind, "size_bytes", len(c.Image))
	case classify.KindFiles, classify.KindAudio:
		slog.Debug("capture", "kind", c.Kind, "paths", len(c.Paths))
	}
}
