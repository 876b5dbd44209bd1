// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   — macOS via NSPasteboard cgo (text, image, file lists)
//	clip_windows.go  — Windows via golang.design/x/clipboard + AddClipboardFormatListener
//	clip_linux.go    — Linux via golang.design/x/clipboard, polling only
//	clip_other.go    — headless / container stub
//
// Capabilities differ per platform. Absence of a capability (no file-list
// support, no frontmost-app lookup, no icon) is reported through empty Format
// bits and (zero, false) returns, never through errors.
package clip

import "strings"

// Format is a bitset of content representations present on the clipboard.
type Format uint8

const (
	FormatText Format = 1 << iota
	FormatImage
	FormatFiles
)

// Has reports whether all bits of want are set.
func (f Format) Has(want Format) bool { return f&want == want }

func (f Format) String() string {
	if f == 0 {
		return "empty"
	}
	var parts []string
	if f.Has(FormatFiles) {
		parts = append(parts, "files")
	}
	if f.Has(FormatImage) {
		parts = append(parts, "image")
	}
	if f.Has(FormatText) {
		parts = append(parts, "text")
	}
	return strings.Join(parts, "+")
}

// RawContent is one materialized clipboard representation.
// Exactly one Format bit is set; Data carries text (UTF-8) or image (PNG)
// bytes, Paths carries absolute file paths in clipboard order.
type RawContent struct {
	Format Format
	Data   []byte
	Paths  []string
}

// AppIdentity identifies the application owning the frontmost window.
type AppIdentity struct {
	Name     string
	BundleID string // empty outside macOS
}

// Backend is the interface all platform clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// DetectFormat is a cheap probe of the representations currently on the
	// clipboard. It never blocks on content transfer.
	DetectFormat() Format

	// ReadContent materializes the content for exactly one format bit.
	// Returns an error when the representation vanished between the probe
	// and the read; callers treat that as a skipped cycle.
	ReadContent(f Format) (RawContent, error)

	// Write replaces the clipboard with rc. Used by copy-back; platforms
	// that cannot represent rc.Format return an error.
	Write(rc RawContent) error

	// FrontmostApp returns the identity of the frontmost application.
	// Best effort; ok is false when the platform cannot tell.
	FrontmostApp() (id AppIdentity, ok bool)

	// AppIcon returns PNG bytes for the application's icon.
	// Independently fallible from FrontmostApp.
	AppIcon(id AppIdentity) (png []byte, ok bool)

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes. The channel is never closed and signals coalesce: a slow
	// consumer sees at least one signal for any burst of changes.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}
