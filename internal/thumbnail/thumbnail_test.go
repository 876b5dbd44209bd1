package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.klb.dev/keepsake/internal/classify"
	"go.klb.dev/keepsake/internal/ledger"
)

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// noisyPNG produces low-amplitude noise: incompressible for PNG's lossless
// deflate, yet nearly free for the lossy JPEG fallback to quantize away.
func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	seed := uint32(12345)
	next := func() uint8 {
		seed = seed*1664525 + 1013904223
		return uint8(seed >> 24)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: 100 + next()%32,
				G: 100 + next()%32,
				B: 100 + next()%32,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	return cfg.Width, cfg.Height
}

type fakeSink struct {
	mu      sync.Mutex
	updates map[string][]byte
	missing bool
}

func (s *fakeSink) UpdateThumbnail(id string, thumb []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return false, nil
	}
	if s.updates == nil {
		s.updates = make(map[string][]byte)
	}
	s.updates[id] = thumb
	return true, nil
}

type fakeEvents struct {
	mu    sync.Mutex
	ready []string
}

func (e *fakeEvents) ThumbnailReady(id string, _ []byte) {
	e.mu.Lock()
	e.ready = append(e.ready, id)
	e.mu.Unlock()
}

type fakePreview struct {
	mu           sync.Mutex
	previewData  []byte
	previewOK    bool
	iconData     []byte
	iconOK       bool
	delay        time.Duration
	previewCalls int
	iconCalls    int
}

func (p *fakePreview) PreviewFile(string, int) ([]byte, bool) {
	p.mu.Lock()
	p.previewCalls++
	p.mu.Unlock()
	time.Sleep(p.delay)
	return p.previewData, p.previewOK
}

func (p *fakePreview) FileIcon(string) ([]byte, bool) {
	p.mu.Lock()
	p.iconCalls++
	p.mu.Unlock()
	time.Sleep(p.delay)
	return p.iconData, p.iconOK
}

func TestRenderImageScalesToFit(t *testing.T) {
	g := NewGenerator(&fakeSink{}, &fakeEvents{}, nil)
	entry := &ledger.Entry{ID: "e", Kind: classify.KindImage}

	thumb := g.render(entry, solidPNG(t, 600, 300))
	if thumb == nil {
		t.Fatal("render returned nil")
	}
	w, h := decodeDims(t, thumb)
	if w != 200 || h != 100 {
		t.Fatalf("thumbnail = %dx%d, want 200x100", w, h)
	}
}

func TestRenderSmallImageKeepsSize(t *testing.T) {
	g := NewGenerator(&fakeSink{}, &fakeEvents{}, nil)
	entry := &ledger.Entry{ID: "e", Kind: classify.KindImage}

	thumb := g.render(entry, solidPNG(t, 80, 40))
	if thumb == nil {
		t.Fatal("render returned nil")
	}
	w, h := decodeDims(t, thumb)
	if w != 80 || h != 40 {
		t.Fatalf("thumbnail = %dx%d, want 80x40", w, h)
	}
}

func TestRenderRespectsByteCap(t *testing.T) {
	g := NewGenerator(&fakeSink{}, &fakeEvents{}, nil)
	entry := &ledger.Entry{ID: "e", Kind: classify.KindImage}

	// At 200x200 nothing is scaled away; the PNG attempt lands well over the
	// byte cap and render must fall through to JPEG.
	thumb := g.render(entry, noisyPNG(t, 200, 200))
	if thumb == nil {
		t.Fatal("render returned nil")
	}
	if len(thumb) > maxThumbBytes {
		t.Fatalf("thumbnail is %d bytes, cap is %d", len(thumb), maxThumbBytes)
	}
	if _, _, err := image.Decode(bytes.NewReader(thumb)); err != nil {
		t.Fatalf("thumbnail not decodable: %v", err)
	}
}

func TestRenderUndecodableImage(t *testing.T) {
	g := NewGenerator(&fakeSink{}, &fakeEvents{}, nil)
	entry := &ledger.Entry{ID: "e", Kind: classify.KindImage}

	if thumb := g.render(entry, []byte("not an image")); thumb != nil {
		t.Fatal("garbage input should produce no thumbnail")
	}
	if thumb := g.render(entry, nil); thumb != nil {
		t.Fatal("empty input should produce no thumbnail")
	}
}

func TestGenerateStoresAndNotifies(t *testing.T) {
	sink := &fakeSink{}
	events := &fakeEvents{}
	g := NewGenerator(sink, events, nil)
	entry := &ledger.Entry{ID: "e1", Kind: classify.KindImage}

	g.generate(entry, solidPNG(t, 100, 100))

	if _, ok := sink.updates["e1"]; !ok {
		t.Fatal("sink never received the thumbnail")
	}
	if len(events.ready) != 1 || events.ready[0] != "e1" {
		t.Fatalf("events = %v, want [e1]", events.ready)
	}
}

func TestGenerateEntryGoneSkipsNotify(t *testing.T) {
	sink := &fakeSink{missing: true}
	events := &fakeEvents{}
	g := NewGenerator(sink, events, nil)
	entry := &ledger.Entry{ID: "e1", Kind: classify.KindImage}

	g.generate(entry, solidPNG(t, 100, 100))

	if len(events.ready) != 0 {
		t.Fatalf("notified %v for a deleted entry", events.ready)
	}
}

func TestFilesUseFirstFileOnly(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(imgPath, solidPNG(t, 400, 400), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	txtPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txtPath, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	g := NewGenerator(&fakeSink{}, &fakeEvents{}, nil)

	entry := &ledger.Entry{ID: "e", Kind: classify.KindFiles, Paths: []string{imgPath, txtPath}}
	if thumb := g.render(entry, nil); thumb == nil {
		t.Fatal("raster first file should thumbnail")
	}

	entry = &ledger.Entry{ID: "e", Kind: classify.KindFiles, Paths: []string{txtPath, imgPath}}
	if thumb := g.render(entry, nil); thumb != nil {
		t.Fatal("non-raster first file with no preview service should not thumbnail")
	}
}

func TestFilePreviewServiceChain(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(docPath, []byte("%PDF-"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	entry := &ledger.Entry{ID: "e", Kind: classify.KindFiles, Paths: []string{docPath}}

	preview := &fakePreview{previewData: solidPNG(t, 300, 150), previewOK: true}
	g := NewGenerator(&fakeSink{}, &fakeEvents{}, preview)
	thumb := g.render(entry, nil)
	if thumb == nil {
		t.Fatal("preview service result should thumbnail")
	}
	w, h := decodeDims(t, thumb)
	if w != 200 || h != 100 {
		t.Fatalf("thumbnail = %dx%d, want 200x100", w, h)
	}

	// Preview refuses, icon answers.
	preview = &fakePreview{iconData: solidPNG(t, 64, 64), iconOK: true}
	g = NewGenerator(&fakeSink{}, &fakeEvents{}, preview)
	if thumb := g.render(entry, nil); thumb == nil {
		t.Fatal("icon fallback should thumbnail")
	}
	if preview.previewCalls != 1 || preview.iconCalls != 1 {
		t.Fatalf("calls = preview %d icon %d, want 1 and 1", preview.previewCalls, preview.iconCalls)
	}

	// Everything refuses.
	preview = &fakePreview{}
	g = NewGenerator(&fakeSink{}, &fakeEvents{}, preview)
	if thumb := g.render(entry, nil); thumb != nil {
		t.Fatal("exhausted chain should produce no thumbnail")
	}
}

func TestPreviewServiceTimeout(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "slow.pdf")
	if err := os.WriteFile(docPath, []byte("%PDF-"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	preview := &fakePreview{
		previewData: solidPNG(t, 100, 100), previewOK: true,
		iconData: solidPNG(t, 64, 64), iconOK: true,
		delay: 300 * time.Millisecond,
	}
	g := NewGenerator(&fakeSink{}, &fakeEvents{}, preview)
	g.attemptTimeout = 20 * time.Millisecond

	entry := &ledger.Entry{ID: "e", Kind: classify.KindFiles, Paths: []string{docPath}}
	start := time.Now()
	thumb := g.render(entry, nil)
	if thumb != nil {
		t.Fatal("timed-out attempts should produce no thumbnail")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("render took %v, should abandon slow attempts", elapsed)
	}
}

func TestAudioUsesIcon(t *testing.T) {
	preview := &fakePreview{iconData: solidPNG(t, 64, 64), iconOK: true}
	g := NewGenerator(&fakeSink{}, &fakeEvents{}, preview)

	entry := &ledger.Entry{ID: "e", Kind: classify.KindAudio, Paths: []string{"/music/track.mp3"}}
	if thumb := g.render(entry, nil); thumb == nil {
		t.Fatal("audio entry should use the file icon")
	}
	if preview.previewCalls != 0 {
		t.Fatalf("audio rendering called PreviewFile %d times", preview.previewCalls)
	}

	g = NewGenerator(&fakeSink{}, &fakeEvents{}, nil)
	if thumb := g.render(entry, nil); thumb != nil {
		t.Fatal("audio entry without a preview service should not thumbnail")
	}
}

func TestTextEntriesNeverThumbnail(t *testing.T) {
	g := NewGenerator(&fakeSink{}, &fakeEvents{}, nil)
	entry := &ledger.Entry{ID: "e", Kind: classify.KindText, Text: "hello"}
	if thumb := g.render(entry, nil); thumb != nil {
		t.Fatal("text entries have no thumbnail")
	}
}

func TestLinkOpenGraphImage(t *testing.T) {
	imgData := solidPNG(t, 600, 300)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta property="og:image" content="/img.png"></head><body></body></html>`)
	})
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(imgData)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGenerator(&fakeSink{}, &fakeEvents{}, nil)
	g.fetcher.client = srv.Client()

	entry := &ledger.Entry{ID: "e", Kind: classify.KindLink, Text: srv.URL}
	thumb := g.render(entry, nil)
	if thumb == nil {
		t.Fatal("og:image page should thumbnail")
	}
	w, h := decodeDims(t, thumb)
	if w != 400 || h != 200 {
		t.Fatalf("link thumbnail = %dx%d, want 400x200", w, h)
	}
}

func TestLinkWithoutOpenGraphImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>plain</title></head><body>no previews here</body></html>`)
	}))
	defer srv.Close()

	g := NewGenerator(&fakeSink{}, &fakeEvents{}, nil)
	g.fetcher.client = srv.Client()

	entry := &ledger.Entry{ID: "e", Kind: classify.KindLink, Text: srv.URL}
	if thumb := g.render(entry, nil); thumb != nil {
		t.Fatal("page without og:image should not thumbnail")
	}
}

func TestLinkUnreachableHost(t *testing.T) {
	g := NewGenerator(&fakeSink{}, &fakeEvents{}, nil)
	g.fetcher.client = &http.Client{Timeout: 50 * time.Millisecond}

	entry := &ledger.Entry{ID: "e", Kind: classify.KindLink, Text: "http://127.0.0.1:1/nothing"}
	if thumb := g.render(entry, nil); thumb != nil {
		t.Fatal("unreachable host should not thumbnail")
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"www.example.com/page":    "https://www.example.com/page",
		"https://example.com":     "https://example.com",
		"  http://example.com  ":  "http://example.com",
		"ftp://example.com/a.zip": "ftp://example.com/a.zip",
	}
	for in, want := range cases {
		if got := normalizeURL(in); got != want {
			t.Errorf("normalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}
