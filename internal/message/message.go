// Package message defines the keepsake IPC protocol.
//
// All messages are newline-delimited JSON. Binary payloads (thumbnails,
// icons) are base64-encoded so they are safe to embed in JSON strings. Each
// message is exactly one line: <json>\n
package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"go.klb.dev/keepsake/internal/ledger"
)

// Type identifies the kind of message.
type Type string

const (
	// Requests
	TypeHistory  Type = "HISTORY"
	TypeSearch   Type = "SEARCH"
	TypeGet      Type = "GET"
	TypeCount    Type = "COUNT"
	TypeDelete   Type = "DELETE"
	TypeCopy     Type = "COPY"
	TypeFavorite Type = "FAVORITE"
	TypeClear    Type = "CLEAR"
	TypeLimit    Type = "LIMIT"
	TypeLock     Type = "LOCK"
	TypeUnlock   Type = "UNLOCK"
	TypePinboard Type = "PINBOARD"
	TypeStatus   Type = "STATUS"
	TypeWatch    Type = "WATCH"

	// Responses
	TypeResult Type = "RESULT"
	TypeEvent  Type = "EVENT"
	TypeError  Type = "ERROR"
)

// Actions for TypePinboard requests.
const (
	PinboardList     = "list"
	PinboardCreate   = "create"
	PinboardDelete   = "delete"
	PinboardAssign   = "assign"
	PinboardUnassign = "unassign"
	PinboardItems    = "items"
)

// Event names carried by TypeEvent messages on a WATCH stream.
const (
	EventEntryAdded     = "entry_added"
	EventEntryReordered = "entry_reordered"
	EventThumbnailReady = "thumbnail_ready"
)

// previewLen bounds the one-line preview rendered into listings.
const previewLen = 80

// Entry is the wire representation of a history entry. Listings omit the
// full text payload and the source app icon; GET responses carry both.
type Entry struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Preview       string    `json:"preview"`
	Text          string    `json:"text,omitempty"`
	Paths         []string  `json:"paths,omitempty"`
	Thumbnail     string    `json:"thumbnail,omitempty"` // base64
	SourceApp     string    `json:"source_app,omitempty"`
	SourceAppIcon string    `json:"source_app_icon,omitempty"` // base64
	CreatedAt     time.Time `json:"created_at"`
	Favorite      bool      `json:"favorite"`
	PinboardID    string    `json:"pinboard_id,omitempty"`
}

// NewEntry converts a ledger entry for the wire. full includes the complete
// text payload and the source app icon.
func NewEntry(e *ledger.Entry, full bool) Entry {
	out := Entry{
		ID:         e.ID,
		Kind:       string(e.Kind),
		Preview:    e.Preview(previewLen),
		Paths:      e.Paths,
		SourceApp:  e.SourceApp,
		CreatedAt:  e.CreatedAt,
		Favorite:   e.Favorite,
		PinboardID: e.PinboardID,
	}
	if len(e.Thumbnail) > 0 {
		out.Thumbnail = base64.StdEncoding.EncodeToString(e.Thumbnail)
	}
	if full {
		out.Text = e.Text
		if len(e.SourceAppIcon) > 0 {
			out.SourceAppIcon = base64.StdEncoding.EncodeToString(e.SourceAppIcon)
		}
	}
	return out
}

// DecodeThumbnail returns the raw thumbnail bytes, or nil when absent.
func (e Entry) DecodeThumbnail() ([]byte, error) {
	if e.Thumbnail == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(e.Thumbnail)
}

// Pinboard is the wire representation of a pinboard.
type Pinboard struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPinboard converts a ledger pinboard for the wire.
func NewPinboard(p *ledger.Pinboard) Pinboard {
	return Pinboard{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt}
}

// Status carries daemon state for STATUS responses.
type Status struct {
	Version        string `json:"version"`
	Backend        string `json:"backend"`
	Entries        int    `json:"entries"`
	HistoryLimit   int    `json:"history_limit"`
	DegradedCycles int64  `json:"degraded_cycles"`
	Watchers       int    `json:"watchers"`
	Socket         string `json:"socket"`
	DataDir        string `json:"data_dir"`
}

// Message is the top-level wire envelope.
type Message struct {
	// Always present
	Type Type `json:"type"`

	// Requests. ID addresses an entry; Name names a pinboard; Action
	// selects the PINBOARD sub-operation.
	ID     string `json:"id,omitempty"`
	Query  string `json:"query,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Name   string `json:"name,omitempty"`
	Action string `json:"action,omitempty"`

	// RESULT
	OK        bool       `json:"ok,omitempty"`
	Count     int64      `json:"count,omitempty"`
	Favorite  bool       `json:"favorite,omitempty"`
	Entry     *Entry     `json:"entry,omitempty"`
	Entries   []Entry    `json:"entries,omitempty"`
	Pinboards []Pinboard `json:"pinboards,omitempty"`
	Status    *Status    `json:"status,omitempty"`

	// EVENT
	Event      string `json:"event,omitempty"`
	ReplacedID string `json:"replaced_id,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"` // base64

	// ERROR
	Error string `json:"error,omitempty"`
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	return &m, nil
}

// Result returns an empty successful RESULT message.
func Result() *Message {
	return &Message{Type: TypeResult, OK: true}
}

// Errorf returns an ERROR message with a formatted description.
func Errorf(format string, args ...any) *Message {
	return &Message{Type: TypeError, Error: fmt.Sprintf(format, args...)}
}
