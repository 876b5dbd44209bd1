package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.klb.dev/keepsake/internal/classify"
)

const entryColumns = "id, kind, content, fingerprint, thumbnail, source_app, source_app_icon, created_at, is_favorite, pinboard_id"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e          Entry
		kind       string
		content    string
		sourceApp  sql.NullString
		pinboardID sql.NullString
		createdAt  int64
	)
	err := row.Scan(&e.ID, &kind, &content, &e.Fingerprint, &e.Thumbnail,
		&sourceApp, &e.SourceAppIcon, &createdAt, &e.Favorite, &pinboardID)
	if err != nil {
		return nil, err
	}
	e.Kind = classify.Kind(kind)
	e.SourceApp = fromNullString(sourceApp)
	e.PinboardID = fromNullString(pinboardID)
	e.CreatedAt = time.UnixMilli(createdAt)
	if err := decodeContent(&e, content); err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertAtHead stores a new entry. A zero ID or CreatedAt is filled in;
// callers that replace an existing entry backdate nothing, so the fresh
// timestamp puts the entry at the head of the history.
func (l *Ledger) InsertAtHead(e *Entry) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	content, err := encodeContent(e)
	if err != nil {
		return err
	}

	_, err = l.db.Exec(`
		INSERT INTO entries (id, kind, content, fingerprint, thumbnail, source_app, source_app_icon, created_at, is_favorite, pinboard_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), content, e.Fingerprint, e.Thumbnail,
		toNullString(e.SourceApp), e.SourceAppIcon, e.CreatedAt.UnixMilli(),
		e.Favorite, toNullString(e.PinboardID))
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// Get returns the entry with the given id, or ErrNotFound.
func (l *Ledger) Get(id string) (*Entry, error) {
	row := l.db.QueryRow("SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// RemoveByID deletes an entry. The returned bool reports whether a row was
// removed; deleting an already-removed id is not an error.
func (l *Ledger) RemoveByID(id string) (bool, error) {
	res, err := l.db.Exec("DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateThumbnail attaches a rendered thumbnail. Returns false when the
// entry no longer exists; generation races deletion and the update is then
// simply dropped.
func (l *Ledger) UpdateThumbnail(id string, thumbnail []byte) (bool, error) {
	res, err := l.db.Exec("UPDATE entries SET thumbnail = ? WHERE id = ?", thumbnail, id)
	if err != nil {
		return false, fmt.Errorf("update thumbnail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateSourceApp records the application a capture came from. Returns false
// when the entry no longer exists.
func (l *Ledger) UpdateSourceApp(id, name string, icon []byte) (bool, error) {
	res, err := l.db.Exec("UPDATE entries SET source_app = ?, source_app_icon = ? WHERE id = ?",
		toNullString(name), icon, id)
	if err != nil {
		return false, fmt.Errorf("update source app: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Touch moves an existing entry to the head by refreshing its timestamp.
// Returns false when the entry no longer exists.
func (l *Ledger) Touch(id string) (bool, error) {
	res, err := l.db.Exec("UPDATE entries SET created_at = ? WHERE id = ?",
		time.Now().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("touch entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindRecentByFingerprint looks for a matching fingerprint among the most
// recent window history entries. window <= 0 searches the whole history.
// Pinboard members are never matched — re-copying pinned content records a
// fresh history entry instead of pulling the entry off its board. Returns
// (nil, nil) when nothing matches; an absent duplicate is the normal case.
func (l *Ledger) FindRecentByFingerprint(fp string, window int) (*Entry, error) {
	limit := window
	if limit <= 0 {
		limit = -1
	}
	row := l.db.QueryRow(`
		SELECT `+entryColumns+` FROM entries
		WHERE fingerprint = ? AND id IN (
			SELECT id FROM entries WHERE pinboard_id IS NULL
			ORDER BY created_at DESC, id DESC LIMIT ?
		)
		ORDER BY created_at DESC, id DESC LIMIT 1`, fp, limit)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return e, nil
}

// History returns unpinned entries most recent first. Pinboard members are
// listed through PinboardItems instead. limit <= 0 returns everything.
func (l *Ledger) History(limit, offset int) ([]*Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.Query(`
		SELECT `+entryColumns+` FROM entries
		WHERE pinboard_id IS NULL
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return collectEntries(rows)
}

// Search returns entries whose content matches the query as a substring,
// most recent first. Unlike History it also reaches pinboard members.
func (l *Ledger) Search(query string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := l.db.Query(`
		SELECT `+entryColumns+` FROM entries
		WHERE content LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	return collectEntries(rows)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Count returns the number of history entries. Pinboard members sit outside
// the history and are not counted.
func (l *Ledger) Count() (int, error) {
	var n int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM entries WHERE pinboard_id IS NULL").Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// ToggleFavorite flips the favorite flag and returns the new state.
func (l *Ledger) ToggleFavorite(id string) (bool, error) {
	var fav bool
	err := l.db.QueryRow(
		"UPDATE entries SET is_favorite = NOT is_favorite WHERE id = ? RETURNING is_favorite",
		id).Scan(&fav)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	return fav, nil
}

// ClearHistory removes every entry that is neither a favorite nor assigned
// to a pinboard. It returns the number of removed rows and the image blob
// names they referenced so the caller can delete the files.
func (l *Ledger) ClearHistory() (int64, []string, error) {
	return l.deleteWhere("is_favorite = 0 AND pinboard_id IS NULL")
}

// PruneToLimit removes the oldest prunable entries so that at most limit of
// them remain. Favorites and pinboard members are never pruned and do not
// count against the limit. limit <= 0 disables pruning.
func (l *Ledger) PruneToLimit(limit int) (int64, []string, error) {
	if limit <= 0 {
		return 0, nil, nil
	}
	cond := fmt.Sprintf(`id IN (
		SELECT id FROM entries
		WHERE is_favorite = 0 AND pinboard_id IS NULL
		ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET %d
	)`, limit)
	return l.deleteWhere(cond)
}

// deleteWhere removes matching rows, first collecting the image blob names
// they reference. cond must not contain user input.
func (l *Ledger) deleteWhere(cond string) (int64, []string, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT content FROM entries WHERE kind = 'image' AND " + cond)
	if err != nil {
		return 0, nil, fmt.Errorf("collect image refs: %w", err)
	}
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return 0, nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, nil, err
	}
	rows.Close()

	res, err := tx.Exec("DELETE FROM entries WHERE " + cond)
	if err != nil {
		return 0, nil, fmt.Errorf("delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit delete: %w", err)
	}
	return n, refs, nil
}

// ImageRefs returns the blob names referenced by image entries, for orphan
// sweeps of the image store.
func (l *Ledger) ImageRefs() ([]string, error) {
	rows, err := l.db.Query("SELECT content FROM entries WHERE kind = 'image'")
	if err != nil {
		return nil, fmt.Errorf("list image refs: %w", err)
	}
	defer rows.Close()
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// HistoryLimit returns the configured entry cap, or DefaultHistoryLimit when
// none has been set.
func (l *Ledger) HistoryLimit() (int, error) {
	var value string
	err := l.db.QueryRow("SELECT value FROM settings WHERE key = 'history_limit'").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultHistoryLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read history limit: %w", err)
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return DefaultHistoryLimit, nil
	}
	return n, nil
}

// SetHistoryLimit stores the entry cap. It does not prune; callers follow up
// with PruneToLimit.
func (l *Ledger) SetHistoryLimit(n int) error {
	_, err := l.db.Exec(`
		INSERT INTO settings (key, value) VALUES ('history_limit', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", n))
	if err != nil {
		return fmt.Errorf("set history limit: %w", err)
	}
	return nil
}
