// Package classify turns a raw clipboard read into exactly one typed content
// value. Classification precedence is fixed across platforms: file lists beat
// images beat text. Copying a file usually also puts a preview image and a
// path string on the clipboard, so the file representation must win or a real
// file reference silently degrades to text.
package classify

import (
	"strings"

	"go.klb.dev/keepsake/internal/clip"
)

// Kind names the classified content variant.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFiles Kind = "files"
	KindLink  Kind = "link"
	KindAudio Kind = "audio"
)

// Content is one classified clipboard capture. Exactly one payload field is
// populated, matching Kind: Text for text/link, Image (PNG-encoded bytes) for
// image, Paths for files/audio.
type Content struct {
	Kind  Kind
	Text  string
	Image []byte
	Paths []string
}

// audioExtensions marks file lists that are really an audio selection.
var audioExtensions = []string{
	".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma", ".m4a", ".aiff", ".alac", ".opus",
}

// Capture probes the clipboard, reads the highest-precedence representation
// present, and classifies it. ok is false when the clipboard holds nothing
// actionable this cycle (empty, unsupported, or a read that failed — all
// normal clipboard churn, not errors).
func Capture(b clip.Backend) (Content, bool) {
	hint := b.DetectFormat()

	for _, f := range []clip.Format{clip.FormatFiles, clip.FormatImage, clip.FormatText} {
		if !hint.Has(f) {
			continue
		}
		raw, err := b.ReadContent(f)
		if err != nil {
			return Content{}, false
		}
		return Classify(raw)
	}
	return Content{}, false
}

// Classify maps one materialized representation to its Content variant.
func Classify(raw clip.RawContent) (Content, bool) {
	switch raw.Format {
	case clip.FormatFiles:
		paths := nonEmpty(raw.Paths)
		if len(paths) == 0 {
			return Content{}, false
		}
		kind := KindFiles
		if allAudio(paths) {
			kind = KindAudio
		}
		return Content{Kind: kind, Paths: paths}, true

	case clip.FormatImage:
		if len(raw.Data) == 0 {
			return Content{}, false
		}
		return Content{Kind: KindImage, Image: raw.Data}, true

	case clip.FormatText:
		text := string(raw.Data)
		if strings.TrimSpace(text) == "" {
			return Content{}, false
		}
		kind := KindText
		if isURL(strings.TrimSpace(text)) {
			kind = KindLink
		}
		return Content{Kind: kind, Text: text}, true

	default:
		return Content{}, false
	}
}

// isURL reports whether text looks like a URL: a known scheme or www. prefix,
// a single line, and at least one dot.
func isURL(text string) bool {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "ftp://"),
		strings.HasPrefix(lower, "file://"),
		strings.HasPrefix(lower, "www."):
		return !strings.Contains(text, "\n") && strings.Contains(text, ".")
	default:
		return false
	}
}

// allAudio reports whether every path carries an audio extension.
func allAudio(paths []string) bool {
	for _, p := range paths {
		lower := strings.ToLower(p)
		match := false
		for _, ext := range audioExtensions {
			if strings.HasSuffix(lower, ext) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

func nonEmpty(paths []string) []string {
	out := paths[:0:0]
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
