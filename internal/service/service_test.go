package service

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/keepsake/internal/blob"
	"go.klb.dev/keepsake/internal/classify"
	"go.klb.dev/keepsake/internal/clip"
	"go.klb.dev/keepsake/internal/ingest"
	"go.klb.dev/keepsake/internal/ledger"
	"go.klb.dev/keepsake/internal/message"
	"go.klb.dev/keepsake/internal/notify"
	"go.klb.dev/keepsake/internal/wire"
)

type stubBackend struct {
	mu      sync.Mutex
	written []clip.RawContent
}

func (b *stubBackend) Name() string              { return "stub" }
func (b *stubBackend) DetectFormat() clip.Format { return 0 }

func (b *stubBackend) ReadContent(f clip.Format) (clip.RawContent, error) {
	return clip.RawContent{}, nil
}

func (b *stubBackend) Write(rc clip.RawContent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written = append(b.written, rc)
	return nil
}

func (b *stubBackend) FrontmostApp() (clip.AppIdentity, bool)  { return clip.AppIdentity{}, false }
func (b *stubBackend) AppIcon(clip.AppIdentity) ([]byte, bool) { return nil, false }
func (b *stubBackend) Watch() <-chan struct{}                  { return make(chan struct{}) }
func (b *stubBackend) Close()                                  {}

func (b *stubBackend) lastWritten() (clip.RawContent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.written) == 0 {
		return clip.RawContent{}, false
	}
	return b.written[len(b.written)-1], true
}

type noopThumbs struct{}

func (noopThumbs) Dispatch(*ledger.Entry, []byte) {}

type testService struct {
	svc      *Service
	ledger   *ledger.Ledger
	backend  *stubBackend
	notifier *notify.Notifier
}

func newTestService(t *testing.T) *testService {
	t.Helper()

	dir := t.TempDir()
	l, err := ledger.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	blobs, err := blob.Open(dir)
	require.NoError(t, err)

	backend := &stubBackend{}
	notifier := notify.New()
	coord, err := ingest.New(backend, l, blobs, noopThumbs{}, notifier, ingest.Config{})
	require.NoError(t, err)

	svc := New(coord, l, notifier, Config{
		Version: "test",
		DataDir: dir,
		Backend: backend.Name(),
	})
	return &testService{svc: svc, ledger: l, backend: backend, notifier: notifier}
}

// seed inserts n text entries oldest-first and returns them newest-first,
// matching history order.
func (ts *testService) seed(t *testing.T, texts ...string) []*ledger.Entry {
	t.Helper()
	base := time.Now().Add(-time.Minute)
	entries := make([]*ledger.Entry, 0, len(texts))
	for i, text := range texts {
		e := &ledger.Entry{
			Kind:        classify.KindText,
			Text:        text,
			Fingerprint: "fp-" + text,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, ts.ledger.InsertAtHead(e))
		entries = append(entries, e)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

func TestHistoryAndGet(t *testing.T) {
	ts := newTestService(t)
	seeded := ts.seed(t, "first", "second", "third")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeHistory})
	require.Equal(t, message.TypeResult, resp.Type)
	require.Len(t, resp.Entries, 3)
	assert.Equal(t, seeded[0].ID, resp.Entries[0].ID)
	assert.Equal(t, "third", resp.Entries[0].Preview)
	assert.Empty(t, resp.Entries[0].Text, "listings carry previews, not payloads")

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeGet, ID: seeded[1].ID})
	require.Equal(t, message.TypeResult, resp.Type)
	require.NotNil(t, resp.Entry)
	assert.Equal(t, "second", resp.Entry.Text)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeGet, ID: "nope"})
	assert.Equal(t, message.TypeError, resp.Type)
}

func TestHistoryPaging(t *testing.T) {
	ts := newTestService(t)
	ts.seed(t, "a", "b", "c", "d")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeHistory, Limit: 2, Offset: 1})
	require.Equal(t, message.TypeResult, resp.Type)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "c", resp.Entries[0].Preview)
	assert.Equal(t, "b", resp.Entries[1].Preview)
}

func TestSearch(t *testing.T) {
	ts := newTestService(t)
	ts.seed(t, "deploy notes", "grocery list", "deploy checklist")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeSearch, Query: "deploy"})
	require.Equal(t, message.TypeResult, resp.Type)
	assert.Len(t, resp.Entries, 2)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeSearch})
	assert.Equal(t, message.TypeError, resp.Type)
}

func TestCountAndDelete(t *testing.T) {
	ts := newTestService(t)
	seeded := ts.seed(t, "one", "two")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeCount})
	require.Equal(t, message.TypeResult, resp.Type)
	assert.Equal(t, int64(2), resp.Count)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeDelete, ID: seeded[0].ID})
	assert.Equal(t, message.TypeResult, resp.Type)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeDelete, ID: seeded[0].ID})
	assert.Equal(t, message.TypeError, resp.Type, "second delete finds nothing")

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeCount})
	assert.Equal(t, int64(1), resp.Count)
}

func TestCopyWritesToClipboard(t *testing.T) {
	ts := newTestService(t)
	seeded := ts.seed(t, "snippet")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeCopy, ID: seeded[0].ID})
	require.Equal(t, message.TypeResult, resp.Type)

	rc, ok := ts.backend.lastWritten()
	require.True(t, ok)
	assert.Equal(t, clip.FormatText, rc.Format)
	assert.Equal(t, "snippet", string(rc.Data))

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeCopy, ID: "nope"})
	assert.Equal(t, message.TypeError, resp.Type)
}

func TestFavoriteToggles(t *testing.T) {
	ts := newTestService(t)
	seeded := ts.seed(t, "keeper")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeFavorite, ID: seeded[0].ID})
	require.Equal(t, message.TypeResult, resp.Type)
	assert.True(t, resp.Favorite)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeFavorite, ID: seeded[0].ID})
	require.Equal(t, message.TypeResult, resp.Type)
	assert.False(t, resp.Favorite)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeFavorite, ID: "nope"})
	assert.Equal(t, message.TypeError, resp.Type)
}

func TestClearSparesFavorites(t *testing.T) {
	ts := newTestService(t)
	seeded := ts.seed(t, "one", "two", "three")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeFavorite, ID: seeded[1].ID})
	require.Equal(t, message.TypeResult, resp.Type)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeClear})
	require.Equal(t, message.TypeResult, resp.Type)
	assert.Equal(t, int64(2), resp.Count)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeCount})
	assert.Equal(t, int64(1), resp.Count)
}

func TestLimit(t *testing.T) {
	ts := newTestService(t)
	ts.seed(t, "a", "b", "c", "d", "e")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeLimit})
	assert.Equal(t, message.TypeError, resp.Type, "zero limit rejected")

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeLimit, Limit: 2})
	require.Equal(t, message.TypeResult, resp.Type)
	assert.Equal(t, int64(3), resp.Count)

	status := ts.svc.dispatch(&message.Message{Type: message.TypeStatus})
	require.NotNil(t, status.Status)
	assert.Equal(t, 2, status.Status.HistoryLimit)
}

func TestLockUnlock(t *testing.T) {
	ts := newTestService(t)
	seeded := ts.seed(t, "held")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeLock, ID: seeded[0].ID})
	assert.Equal(t, message.TypeResult, resp.Type)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeUnlock, ID: seeded[0].ID})
	assert.Equal(t, message.TypeResult, resp.Type)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypeLock})
	assert.Equal(t, message.TypeError, resp.Type, "lock without id rejected")
}

func TestPinboardFlow(t *testing.T) {
	ts := newTestService(t)
	seeded := ts.seed(t, "pinned", "loose")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypePinboard, Action: message.PinboardCreate, Name: "snippets"})
	require.Equal(t, message.TypeResult, resp.Type)
	require.Len(t, resp.Pinboards, 1)
	assert.Equal(t, "snippets", resp.Pinboards[0].Name)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypePinboard, Action: message.PinboardList})
	require.Equal(t, message.TypeResult, resp.Type)
	assert.Len(t, resp.Pinboards, 1)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypePinboard, Action: message.PinboardAssign, Name: "snippets", ID: seeded[0].ID})
	require.Equal(t, message.TypeResult, resp.Type)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypePinboard, Action: message.PinboardItems, Name: "snippets"})
	require.Equal(t, message.TypeResult, resp.Type)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, seeded[0].ID, resp.Entries[0].ID)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypePinboard, Action: message.PinboardUnassign, ID: seeded[0].ID})
	require.Equal(t, message.TypeResult, resp.Type)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypePinboard, Action: message.PinboardItems, Name: "snippets"})
	assert.Empty(t, resp.Entries)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypePinboard, Action: message.PinboardDelete, Name: "snippets"})
	assert.Equal(t, message.TypeResult, resp.Type)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypePinboard, Action: message.PinboardItems, Name: "snippets"})
	assert.Equal(t, message.TypeError, resp.Type)

	resp = ts.svc.dispatch(&message.Message{Type: message.TypePinboard, Action: "rename"})
	assert.Equal(t, message.TypeError, resp.Type)
}

func TestStatus(t *testing.T) {
	ts := newTestService(t)
	ts.seed(t, "one", "two")

	resp := ts.svc.dispatch(&message.Message{Type: message.TypeStatus})
	require.Equal(t, message.TypeResult, resp.Type)
	require.NotNil(t, resp.Status)
	assert.Equal(t, "test", resp.Status.Version)
	assert.Equal(t, "stub", resp.Status.Backend)
	assert.Equal(t, 2, resp.Status.Entries)
	assert.Equal(t, ledger.DefaultHistoryLimit, resp.Status.HistoryLimit)
	assert.Zero(t, resp.Status.DegradedCycles)
	assert.Zero(t, resp.Status.Watchers)
	assert.NotEmpty(t, resp.Status.Socket)
}

func TestUnknownType(t *testing.T) {
	ts := newTestService(t)

	resp := ts.svc.dispatch(&message.Message{Type: "BOGUS"})
	assert.Equal(t, message.TypeError, resp.Type)
}

func TestHandleConnRequestLoop(t *testing.T) {
	ts := newTestService(t)
	ts.seed(t, "hello")

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.svc.handleConn(context.Background(), wire.New(server))
	}()

	c := wire.New(client)
	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeCount}))
	resp, err := c.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, message.TypeResult, resp.Type)
	assert.Equal(t, int64(1), resp.Count)

	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeGet, ID: "nope"}))
	resp, err = c.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.TypeError, resp.Type)

	c.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after client close")
	}
}

func TestWatchStreamsEvents(t *testing.T) {
	ts := newTestService(t)
	seeded := ts.seed(t, "watched")

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.svc.handleConn(context.Background(), wire.New(server))
	}()

	c := wire.New(client)
	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeWatch}))

	ack, err := c.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, message.TypeResult, ack.Type)
	require.Eventually(t, func() bool { return ts.notifier.Watchers() == 1 },
		2*time.Second, 10*time.Millisecond)

	ts.notifier.EntryAdded(seeded[0], "old-id")
	ev, err := c.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, message.TypeEvent, ev.Type)
	assert.Equal(t, message.EventEntryAdded, ev.Event)
	require.NotNil(t, ev.Entry)
	assert.Equal(t, seeded[0].ID, ev.Entry.ID)
	assert.Equal(t, "old-id", ev.ReplacedID)

	ts.notifier.EntryReordered(seeded[0].ID)
	ev, err = c.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.EventEntryReordered, ev.Event)
	assert.Equal(t, seeded[0].ID, ev.ID)

	thumb := []byte{0x89, 'P', 'N', 'G'}
	ts.notifier.ThumbnailReady(seeded[0].ID, thumb)
	ev, err = c.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.EventThumbnailReady, ev.Event)
	decoded, err := message.Entry{Thumbnail: ev.Thumbnail}.DecodeThumbnail()
	require.NoError(t, err)
	assert.Equal(t, thumb, decoded)

	c.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch handler did not exit after client close")
	}
	require.Eventually(t, func() bool { return ts.notifier.Watchers() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestServeAcceptLoopStopsOnCancel(t *testing.T) {
	ts := newTestService(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.svc.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	c := wire.New(conn)
	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeCount}))
	resp, err := c.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.TypeResult, resp.Type)
	c.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
