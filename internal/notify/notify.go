// Package notify implements the history event broker.
// It is transport-agnostic: watchers register, receive events via a
// non-blocking Send, and the ingest pipeline publishes. Delivery order for a
// single capture is entry added, then reordering or thumbnail events.
package notify

import (
	"log/slog"
	"sync"

	"go.klb.dev/keepsake/internal/ledger"
)

// Kind discriminates history events.
type Kind string

const (
	KindEntryAdded     Kind = "entry_added"
	KindEntryReordered Kind = "entry_reordered"
	KindThumbnailReady Kind = "thumbnail_ready"
)

// Event is a history change delivered to a watcher. Entry and ReplacedID are
// set for entry_added; ID for entry_reordered and thumbnail_ready; Thumbnail
// for thumbnail_ready.
type Event struct {
	Kind       Kind
	Entry      *ledger.Entry
	ReplacedID string
	ID         string
	Thumbnail  []byte
}

// Watcher is anything that can receive history events.
type Watcher interface {
	ID() string
	// Send delivers an event to the watcher. Must be non-blocking.
	Send(Event)
}

// Notifier fans history events out to all registered watchers.
type Notifier struct {
	mu       sync.RWMutex
	watchers map[string]Watcher
}

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{watchers: make(map[string]Watcher)}
}

// Register adds a watcher.
func (n *Notifier) Register(w Watcher) {
	n.mu.Lock()
	n.watchers[w.ID()] = w
	total := len(n.watchers)
	n.mu.Unlock()

	slog.Info("watcher registered", "watcher", w.ID(), "total", total)
}

// Unregister removes a watcher.
func (n *Notifier) Unregister(w Watcher) {
	n.mu.Lock()
	delete(n.watchers, w.ID())
	total := len(n.watchers)
	n.mu.Unlock()

	slog.Info("watcher unregistered", "watcher", w.ID(), "total", total)
}

// Watchers returns the number of registered watchers.
func (n *Notifier) Watchers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.watchers)
}

// EntryAdded publishes a new head entry. replacedID names the duplicate the
// entry displaced, or is empty.
func (n *Notifier) EntryAdded(e *ledger.Entry, replacedID string) {
	n.publish(Event{Kind: KindEntryAdded, Entry: e, ReplacedID: replacedID})
}

// EntryReordered publishes that an existing entry moved to the head.
func (n *Notifier) EntryReordered(id string) {
	n.publish(Event{Kind: KindEntryReordered, ID: id})
}

// ThumbnailReady publishes a late-arriving thumbnail for an entry.
func (n *Notifier) ThumbnailReady(id string, thumbnail []byte) {
	n.publish(Event{Kind: KindThumbnailReady, ID: id, Thumbnail: thumbnail})
}

func (n *Notifier) publish(ev Event) {
	n.mu.RLock()
	targets := make([]Watcher, 0, len(n.watchers))
	for _, w := range n.watchers {
		targets = append(targets, w)
	}
	n.mu.RUnlock()

	for _, w := range targets {
		w.Send(ev)
	}
}
