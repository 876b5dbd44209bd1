// Package ledger persists the clipboard history in an embedded SQLite store.
//
// The ledger owns ordering and pruning. All mutations are addressed by entry
// id; there is no positional API, which keeps concurrent thumbnail
// completions safe against reordering. Most-recent-first ordering is defined
// as created_at DESC with id as the tiebreak.
package ledger

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"go.klb.dev/keepsake/internal/classify"
)

// DefaultHistoryLimit is the entry cap used until the user configures one.
const DefaultHistoryLimit = 500

// ErrNotFound is returned when an id-addressed operation finds no row.
var ErrNotFound = errors.New("ledger: entry not found")

// Ledger is a handle to the history store.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database under baseDir and applies any
// pending migrations. The directory is created if needed.
func Open(baseDir string) (*Ledger, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(baseDir, "keepsake.db")
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Ledger{db: db, path: path}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }

// Path returns the database file path.
func (l *Ledger) Path() string { return l.path }

func verifyWALMode(db *sql.DB) error {
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("check journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("journal mode is %q, want wal", mode)
	}
	return nil
}

// NewID returns a fresh ULID string. IDs are time-ordered and never reused.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Entry is one persisted clipboard capture. ID is immutable for the lifetime
// of the record; only Thumbnail, SourceApp, SourceAppIcon, Favorite and
// PinboardID mutate after creation.
type Entry struct {
	ID            string
	Kind          classify.Kind
	Text          string   // text/link payload
	Paths         []string // files/audio payload, clipboard order
	ImageRef      string   // image payload: blob name in the image store
	Fingerprint   string
	Thumbnail     []byte
	SourceApp     string
	SourceAppIcon []byte
	CreatedAt     time.Time
	Favorite      bool
	PinboardID    string
}

// encodeContent renders the entry payload into the single content column.
func encodeContent(e *Entry) (string, error) {
	switch e.Kind {
	case classify.KindText, classify.KindLink:
		return e.Text, nil
	case classify.KindImage:
		return e.ImageRef, nil
	case classify.KindFiles, classify.KindAudio:
		b, err := json.Marshal(e.Paths)
		if err != nil {
			return "", fmt.Errorf("encode paths: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unknown kind %q", e.Kind)
	}
}

// decodeContent populates the typed payload field from the content column.
func decodeContent(e *Entry, content string) error {
	switch e.Kind {
	case classify.KindText, classify.KindLink:
		e.Text = content
	case classify.KindImage:
		e.ImageRef = content
	case classify.KindFiles, classify.KindAudio:
		if err := json.Unmarshal([]byte(content), &e.Paths); err != nil {
			return fmt.Errorf("decode paths: %w", err)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// Preview renders a one-line display string for the entry.
func (e *Entry) Preview(maxLen int) string {
	switch e.Kind {
	case classify.KindText:
		line := e.Text
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		if len(line) > maxLen {
			return line[:maxLen] + "..."
		}
		return line

	case classify.KindLink:
		return linkDomain(e.Text)

	case classify.KindImage:
		return "[Image]"

	case classify.KindFiles:
		if len(e.Paths) == 1 {
			return e.Paths[0]
		}
		return fmt.Sprintf("%d files", len(e.Paths))

	case classify.KindAudio:
		if len(e.Paths) == 1 {
			return baseName(e.Paths[0])
		}
		return fmt.Sprintf("%d audio files", len(e.Paths))

	default:
		return string(e.Kind)
	}
}

// linkDomain extracts the host portion of a URL for display.
func linkDomain(url string) string {
	s := strings.TrimSpace(url)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fromNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
