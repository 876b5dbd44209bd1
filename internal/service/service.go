// Package service implements the daemon side of the keepsake IPC protocol:
// an accept loop on the local socket, a request dispatcher over the history,
// and the WATCH stream that pushes ingestion events to clients.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"go.klb.dev/keepsake/internal/ingest"
	"go.klb.dev/keepsake/internal/ipc"
	"go.klb.dev/keepsake/internal/ledger"
	"go.klb.dev/keepsake/internal/message"
	"go.klb.dev/keepsake/internal/notify"
	"go.klb.dev/keepsake/internal/wire"
)

// Config carries daemon identity reported by STATUS.
type Config struct {
	Version string
	DataDir string
	Backend string
}

// Service answers IPC requests against the coordinator and ledger.
type Service struct {
	coord    *ingest.Coordinator
	ledger   *ledger.Ledger
	notifier *notify.Notifier
	cfg      Config

	nextWatch atomic.Int64
}

// New wires a Service.
func New(coord *ingest.Coordinator, l *ledger.Ledger, n *notify.Notifier, cfg Config) *Service {
	return &Service{coord: coord, ledger: l, notifier: n, cfg: cfg}
}

// Serve accepts connections until ctx is cancelled.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("accept failed", "error", err)
			continue
		}
		go s.handleConn(ctx, wire.New(conn))
	}
}

// handleConn answers requests one line at a time. A WATCH request takes over
// the connection for streaming.
func (s *Service) handleConn(ctx context.Context, c *wire.Conn) {
	defer c.Close()

	for {
		msg, err := c.ReadMsg()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				slog.Debug("connection read failed", "error", err)
			}
			return
		}

		if msg.Type == message.TypeWatch {
			s.handleWatch(ctx, c)
			return
		}

		if err := c.WriteMsg(s.dispatch(msg)); err != nil {
			slog.Debug("connection write failed", "error", err)
			return
		}
	}
}

func (s *Service) dispatch(msg *message.Message) *message.Message {
	switch msg.Type {
	case message.TypeHistory:
		return s.history(msg.Limit, msg.Offset)
	case message.TypeSearch:
		return s.search(msg.Query, msg.Limit)
	case message.TypeGet:
		return s.get(msg.ID)
	case message.TypeCount:
		return s.count()
	case message.TypeDelete:
		return s.delete(msg.ID)
	case message.TypeCopy:
		return s.copyBack(msg.ID)
	case message.TypeFavorite:
		return s.favorite(msg.ID)
	case message.TypeClear:
		return s.clear()
	case message.TypeLimit:
		return s.setLimit(msg.Limit)
	case message.TypeLock:
		return s.lock(msg.ID)
	case message.TypeUnlock:
		return s.unlock(msg.ID)
	case message.TypePinboard:
		return s.pinboard(msg)
	case message.TypeStatus:
		return s.status()
	default:
		return message.Errorf("unknown request type %q", msg.Type)
	}
}

func (s *Service) history(limit, offset int) *message.Message {
	entries, err := s.ledger.History(limit, offset)
	if err != nil {
		return message.Errorf("list history: %v", err)
	}
	return entriesResult(entries)
}

func (s *Service) search(query string, limit int) *message.Message {
	if query == "" {
		return message.Errorf("search query must not be empty")
	}
	entries, err := s.ledger.Search(query, limit)
	if err != nil {
		return message.Errorf("search: %v", err)
	}
	return entriesResult(entries)
}

func (s *Service) get(id string) *message.Message {
	e, err := s.ledger.Get(id)
	if errors.Is(err, ledger.ErrNotFound) {
		return message.Errorf("no entry %s", id)
	}
	if err != nil {
		return message.Errorf("get entry: %v", err)
	}
	resp := message.Result()
	we := message.NewEntry(e, true)
	resp.Entry = &we
	return resp
}

func (s *Service) count() *message.Message {
	n, err := s.ledger.Count()
	if err != nil {
		return message.Errorf("count: %v", err)
	}
	resp := message.Result()
	resp.Count = int64(n)
	return resp
}

func (s *Service) delete(id string) *message.Message {
	removed, err := s.coord.Delete(id)
	if err != nil {
		return message.Errorf("delete: %v", err)
	}
	if !removed {
		return message.Errorf("no entry %s", id)
	}
	return message.Result()
}

func (s *Service) copyBack(id string) *message.Message {
	err := s.coord.CopyBack(id)
	if errors.Is(err, ledger.ErrNotFound) {
		return message.Errorf("no entry %s", id)
	}
	if err != nil {
		return message.Errorf("copy to clipboard: %v", err)
	}
	return message.Result()
}

func (s *Service) favorite(id string) *message.Message {
	fav, err := s.coord.ToggleFavorite(id)
	if errors.Is(err, ledger.ErrNotFound) {
		return message.Errorf("no entry %s", id)
	}
	if err != nil {
		return message.Errorf("toggle favorite: %v", err)
	}
	resp := message.Result()
	resp.Favorite = fav
	return resp
}

func (s *Service) clear() *message.Message {
	removed, err := s.coord.ClearHistory()
	if err != nil {
		return message.Errorf("clear history: %v", err)
	}
	resp := message.Result()
	resp.Count = removed
	return resp
}

func (s *Service) setLimit(n int) *message.Message {
	if n <= 0 {
		return message.Errorf("history limit must be positive")
	}
	pruned, err := s.coord.SetHistoryLimit(n)
	if err != nil {
		return message.Errorf("set history limit: %v", err)
	}
	resp := message.Result()
	resp.Count = pruned
	return resp
}

func (s *Service) lock(id string) *message.Message {
	if id == "" {
		return message.Errorf("lock needs an entry id")
	}
	s.coord.LockEntry(id)
	return message.Result()
}

func (s *Service) unlock(id string) *message.Message {
	if id == "" {
		return message.Errorf("unlock needs an entry id")
	}
	s.coord.UnlockEntry(id)
	return message.Result()
}

func (s *Service) pinboard(msg *message.Message) *message.Message {
	switch msg.Action {
	case message.PinboardList, "":
		boards, err := s.ledger.Pinboards()
		if err != nil {
			return message.Errorf("list pinboards: %v", err)
		}
		resp := message.Result()
		resp.Pinboards = make([]message.Pinboard, 0, len(boards))
		for _, b := range boards {
			resp.Pinboards = append(resp.Pinboards, message.NewPinboard(b))
		}
		return resp

	case message.PinboardCreate:
		if msg.Name == "" {
			return message.Errorf("pinboard needs a name")
		}
		board, err := s.ledger.CreatePinboard(msg.Name)
		if err != nil {
			return message.Errorf("create pinboard: %v", err)
		}
		resp := message.Result()
		resp.Pinboards = []message.Pinboard{message.NewPinboard(board)}
		return resp

	case message.PinboardDelete:
		board, resp := s.boardByName(msg.Name)
		if resp != nil {
			return resp
		}
		if _, err := s.ledger.DeletePinboard(board.ID); err != nil {
			return message.Errorf("delete pinboard: %v", err)
		}
		return message.Result()

	case message.PinboardAssign:
		board, resp := s.boardByName(msg.Name)
		if resp != nil {
			return resp
		}
		return s.assign(msg.ID, board.ID)

	case message.PinboardUnassign:
		return s.assign(msg.ID, "")

	case message.PinboardItems:
		board, resp := s.boardByName(msg.Name)
		if resp != nil {
			return resp
		}
		entries, err := s.ledger.PinboardItems(board.ID)
		if err != nil {
			return message.Errorf("list pinboard items: %v", err)
		}
		return entriesResult(entries)

	default:
		return message.Errorf("unknown pinboard action %q", msg.Action)
	}
}

func (s *Service) boardByName(name string) (*ledger.Pinboard, *message.Message) {
	if name == "" {
		return nil, message.Errorf("pinboard needs a name")
	}
	board, err := s.ledger.PinboardByName(name)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, message.Errorf("no pinboard %q", name)
	}
	if err != nil {
		return nil, message.Errorf("get pinboard: %v", err)
	}
	return board, nil
}

func (s *Service) assign(entryID, pinboardID string) *message.Message {
	if entryID == "" {
		return message.Errorf("assign needs an entry id")
	}
	ok, err := s.ledger.AssignToPinboard(entryID, pinboardID)
	if err != nil {
		return message.Errorf("assign: %v", err)
	}
	if !ok {
		return message.Errorf("no entry %s", entryID)
	}
	return message.Result()
}

func (s *Service) status() *message.Message {
	n, err := s.ledger.Count()
	if err != nil {
		return message.Errorf("count: %v", err)
	}
	resp := message.Result()
	resp.Status = &message.Status{
		Version:        s.cfg.Version,
		Backend:        s.cfg.Backend,
		Entries:        n,
		HistoryLimit:   s.coord.HistoryLimit(),
		DegradedCycles: s.coord.DegradedCycles(),
		Watchers:       s.notifier.Watchers(),
		Socket:         ipc.SocketPath(),
		DataDir:        s.cfg.DataDir,
	}
	return resp
}

func entriesResult(entries []*ledger.Entry) *message.Message {
	resp := message.Result()
	resp.Entries = make([]message.Entry, 0, len(entries))
	for _, e := range entries {
		resp.Entries = append(resp.Entries, message.NewEntry(e, false))
	}
	return resp
}

// watchSub forwards notifier events into a channel the stream loop drains.
// Send must not block; a watcher that cannot keep up loses events.
type watchSub struct {
	id string
	ch chan notify.Event
}

func (w *watchSub) ID() string { return w.id }

func (w *watchSub) Send(ev notify.Event) {
	select {
	case w.ch <- ev:
	default:
	}
}

// handleWatch streams ingestion events until the client goes away.
func (s *Service) handleWatch(ctx context.Context, c *wire.Conn) {
	sub := &watchSub{
		id: fmt.Sprintf("watch-%d", s.nextWatch.Add(1)),
		ch: make(chan notify.Event, 64),
	}
	s.notifier.Register(sub)
	defer s.notifier.Unregister(sub)

	// Acknowledge the subscription before the first event.
	if err := c.WriteMsg(message.Result()); err != nil {
		return
	}

	// Reader only detects the client hanging up.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, err := c.ReadMsg(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case ev := <-sub.ch:
			if err := c.WriteMsg(eventMessage(ev)); err != nil {
				return
			}
		}
	}
}

func eventMessage(ev notify.Event) *message.Message {
	m := &message.Message{Type: message.TypeEvent}
	switch ev.Kind {
	case notify.KindEntryAdded:
		m.Event = message.EventEntryAdded
		we := message.NewEntry(ev.Entry, false)
		m.Entry = &we
		m.ReplacedID = ev.ReplacedID
	case notify.KindEntryReordered:
		m.Event = message.EventEntryReordered
		m.ID = ev.ID
	case notify.KindThumbnailReady:
		m.Event = message.EventThumbnailReady
		m.ID = ev.ID
		m.Thumbnail = base64.StdEncoding.EncodeToString(ev.Thumbnail)
	}
	return m
}
