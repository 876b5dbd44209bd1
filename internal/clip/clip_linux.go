//go:build linux

package clip

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.design/x/clipboard"
)

const linuxPollInterval = 250 * time.Millisecond

type linuxBackend struct {
	watchCh chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	curText []byte
	curImg  []byte

	lastText []byte
	lastImg  []byte
}

// New returns the Linux clipboard backend, or a headless no-op backend if
// the display environment is unavailable (e.g. a server without X11 or
// Wayland). clipboard.Init is called here rather than in init() so that CLI
// sub-commands that never construct a Backend don't trigger the warning.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return &headlessBackend{watchCh: make(chan struct{})}
	}
	b := &linuxBackend{
		watchCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go b.poll()
	return b
}

func (b *linuxBackend) Name() string { return "Linux clipboard (poll)" }

func (b *linuxBackend) poll() {
	t := time.NewTicker(linuxPollInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			text := clipboard.Read(clipboard.FmtText)
			img := clipboard.Read(clipboard.FmtImage)
			if !bytes.Equal(text, b.lastText) || !bytes.Equal(img, b.lastImg) {
				b.lastText = text
				b.lastImg = img
				select {
				case b.watchCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

// DetectFormat reads both supported representations and caches them so the
// following ReadContent sees the same snapshot. File lists are not exposed
// by X11/Wayland portals we can reach from here.
func (b *linuxBackend) DetectFormat() Format {
	text := clipboard.Read(clipboard.FmtText)
	img := clipboard.Read(clipboard.FmtImage)

	b.mu.Lock()
	b.curText = text
	b.curImg = img
	b.mu.Unlock()

	var f Format
	if len(img) > 0 {
		f |= FormatImage
	}
	if len(text) > 0 {
		f |= FormatText
	}
	return f
}

func (b *linuxBackend) ReadContent(f Format) (RawContent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch f {
	case FormatText:
		if len(b.curText) == 0 {
			return RawContent{}, errors.New("text content gone")
		}
		return RawContent{Format: FormatText, Data: bytes.Clone(b.curText)}, nil
	case FormatImage:
		if len(b.curImg) == 0 {
			return RawContent{}, errors.New("image content gone")
		}
		return RawContent{Format: FormatImage, Data: bytes.Clone(b.curImg)}, nil
	default:
		return RawContent{}, errors.New("unsupported format: " + f.String())
	}
}

func (b *linuxBackend) Write(rc RawContent) error {
	switch rc.Format {
	case FormatText:
		clipboard.Write(clipboard.FmtText, rc.Data)
	case FormatImage:
		clipboard.Write(clipboard.FmtImage, rc.Data)
	default:
		return errors.New("cannot write format: " + rc.Format.String())
	}
	return nil
}

// FrontmostApp is unavailable on Linux: there is no portable way to resolve
// the focused window's owner across X11 and Wayland compositors.
func (b *linuxBackend) FrontmostApp() (AppIdentity, bool) { return AppIdentity{}, false }

func (b *linuxBackend) AppIcon(_ AppIdentity) ([]byte, bool) { return nil, false }

func (b *linuxBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *linuxBackend) Close()                 { close(b.done) }
