// Package thumbnail renders small previews for history entries in the
// background. Generation never blocks ingestion: the coordinator dispatches
// and moves on, and a finished thumbnail is announced through the notifier.
//
// For file entries a chain of strategies is tried in order: decode the file
// itself when it looks like a raster image, ask the platform preview service,
// fall back to the platform file icon, and finally give up. A missing
// thumbnail is a valid terminal state.
package thumbnail

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go.klb.dev/keepsake/internal/classify"
	"go.klb.dev/keepsake/internal/ledger"
)

const (
	entryMaxDim   = 200
	linkMaxDim    = 400
	maxThumbBytes = 50 * 1024
	jpegQuality   = 80

	// Raster source files beyond this size are not worth decoding.
	maxSourceBytes = 64 << 20
)

// Sink receives finished thumbnails. The returned bool reports whether the
// entry still existed; a false result drops the thumbnail silently.
type Sink interface {
	UpdateThumbnail(id string, thumbnail []byte) (bool, error)
}

// Events announces stored thumbnails to watchers.
type Events interface {
	ThumbnailReady(id string, thumbnail []byte)
}

// PreviewService is the optional platform capability for rendering previews
// of arbitrary files. Backends that support it implement this interface.
type PreviewService interface {
	// PreviewFile renders a preview image (PNG) of the file at path, bounded
	// by maxPx on the longest side.
	PreviewFile(path string, maxPx int) ([]byte, bool)
	// FileIcon returns the icon (PNG) the platform shows for the file.
	FileIcon(path string) ([]byte, bool)
}

// Generator renders thumbnails off the ingest path.
type Generator struct {
	sink    Sink
	events  Events
	preview PreviewService // nil when the platform has no preview service

	fetcher        *linkFetcher
	attemptTimeout time.Duration
}

// NewGenerator returns a Generator. preview may be nil.
func NewGenerator(sink Sink, events Events, preview PreviewService) *Generator {
	return &Generator{
		sink:           sink,
		events:         events,
		preview:        preview,
		fetcher:        newLinkFetcher(),
		attemptTimeout: 3 * time.Second,
	}
}

// Dispatch starts thumbnail generation for an entry and returns immediately.
// imageData carries the raw capture for image entries and is nil otherwise.
func (g *Generator) Dispatch(e *ledger.Entry, imageData []byte) {
	go g.generate(e, imageData)
}

func (g *Generator) generate(e *ledger.Entry, imageData []byte) {
	thumb := g.render(e, imageData)
	if thumb == nil {
		slog.Debug("no thumbnail produced", "entry", e.ID, "kind", e.Kind)
		return
	}

	ok, err := g.sink.UpdateThumbnail(e.ID, thumb)
	if err != nil {
		slog.Warn("store thumbnail failed", "entry", e.ID, "error", err)
		return
	}
	if !ok {
		// Entry was deleted while we rendered.
		slog.Debug("thumbnail dropped, entry gone", "entry", e.ID)
		return
	}
	g.events.ThumbnailReady(e.ID, thumb)
}

func (g *Generator) render(e *ledger.Entry, imageData []byte) []byte {
	switch e.Kind {
	case classify.KindImage:
		return renderRaster(imageData, entryMaxDim, false)
	case classify.KindFiles:
		if len(e.Paths) == 0 {
			return nil
		}
		return g.renderFile(e.Paths[0])
	case classify.KindAudio:
		if len(e.Paths) == 0 {
			return nil
		}
		return g.renderIcon(e.Paths[0])
	case classify.KindLink:
		return g.renderLink(e.Text)
	default:
		return nil
	}
}

// renderFile previews the first file of a file entry.
func (g *Generator) renderFile(path string) []byte {
	if isRasterFile(path) {
		if info, err := os.Stat(path); err == nil && info.Size() <= maxSourceBytes {
			if data, err := os.ReadFile(path); err == nil {
				if thumb := renderRaster(data, entryMaxDim, false); thumb != nil {
					return thumb
				}
			}
		}
	}

	if g.preview != nil {
		data, ok := g.bounded(func() ([]byte, bool) {
			return g.preview.PreviewFile(path, entryMaxDim)
		})
		if ok {
			if thumb := renderRaster(data, entryMaxDim, false); thumb != nil {
				return thumb
			}
		}
	}

	return g.renderIcon(path)
}

func (g *Generator) renderIcon(path string) []byte {
	if g.preview == nil {
		return nil
	}
	data, ok := g.bounded(func() ([]byte, bool) {
		return g.preview.FileIcon(path)
	})
	if !ok {
		return nil
	}
	return renderRaster(data, entryMaxDim, false)
}

func (g *Generator) renderLink(url string) []byte {
	data := g.fetcher.openGraphImage(url)
	if data == nil {
		return nil
	}
	return renderRaster(data, linkMaxDim, true)
}

// bounded runs a platform call with a deadline. The platform APIs have no
// cancellation, so on timeout the goroutine is abandoned and its late result
// discarded.
func (g *Generator) bounded(fn func() ([]byte, bool)) ([]byte, bool) {
	type result struct {
		data []byte
		ok   bool
	}
	done := make(chan result, 1)
	go func() {
		data, ok := fn()
		done <- result{data, ok}
	}()

	timer := time.NewTimer(g.attemptTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.data, r.ok
	case <-timer.C:
		return nil, false
	}
}

// renderRaster decodes, scales to fit maxDim, and encodes under the byte
// cap. preferJPEG skips the PNG attempt for sources that are photographic
// anyway. Returns nil when the data cannot be decoded or cannot be encoded
// under the cap.
func renderRaster(data []byte, maxDim int, preferJPEG bool) []byte {
	if len(data) == 0 {
		return nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	scaled := scaleToFit(src, maxDim)

	if !preferJPEG {
		var buf bytes.Buffer
		if err := png.Encode(&buf, scaled); err == nil && buf.Len() <= maxThumbBytes {
			return buf.Bytes()
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil
	}
	if buf.Len() > maxThumbBytes {
		return nil
	}
	return buf.Bytes()
}

func scaleToFit(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

var rasterExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

func isRasterFile(path string) bool {
	return rasterExtensions[strings.ToLower(filepath.Ext(path))]
}
