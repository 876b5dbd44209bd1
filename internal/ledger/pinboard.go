package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Pinboard is a named collection of entries. Members are exempt from history
// pruning and from ClearHistory.
type Pinboard struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// CreatePinboard creates a pinboard with a unique name.
func (l *Ledger) CreatePinboard(name string) (*Pinboard, error) {
	p := &Pinboard{ID: NewID(), Name: name, CreatedAt: time.Now()}
	_, err := l.db.Exec("INSERT INTO pinboards (id, name, created_at) VALUES (?, ?, ?)",
		p.ID, p.Name, p.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create pinboard: %w", err)
	}
	return p, nil
}

// Pinboards lists all pinboards in creation order.
func (l *Ledger) Pinboards() ([]*Pinboard, error) {
	rows, err := l.db.Query("SELECT id, name, created_at FROM pinboards ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("list pinboards: %w", err)
	}
	defer rows.Close()

	var boards []*Pinboard
	for rows.Next() {
		var (
			p         Pinboard
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = time.UnixMilli(createdAt)
		boards = append(boards, &p)
	}
	return boards, rows.Err()
}

// PinboardByName returns the pinboard with the given name, or ErrNotFound.
func (l *Ledger) PinboardByName(name string) (*Pinboard, error) {
	var (
		p         Pinboard
		createdAt int64
	)
	err := l.db.QueryRow("SELECT id, name, created_at FROM pinboards WHERE name = ?", name).
		Scan(&p.ID, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pinboard: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	return &p, nil
}

// DeletePinboard removes a pinboard. Member entries are released back into
// the regular history, not deleted.
func (l *Ledger) DeletePinboard(id string) (bool, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin delete pinboard: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE entries SET pinboard_id = NULL WHERE pinboard_id = ?", id); err != nil {
		return false, fmt.Errorf("release pinboard entries: %w", err)
	}
	res, err := tx.Exec("DELETE FROM pinboards WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete pinboard: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete pinboard: %w", err)
	}
	return n > 0, nil
}

// AssignToPinboard moves an entry onto a pinboard, or off every pinboard
// when pinboardID is empty. Returns false when the entry no longer exists.
func (l *Ledger) AssignToPinboard(entryID, pinboardID string) (bool, error) {
	res, err := l.db.Exec("UPDATE entries SET pinboard_id = ? WHERE id = ?",
		toNullString(pinboardID), entryID)
	if err != nil {
		return false, fmt.Errorf("assign to pinboard: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PinboardItems lists the entries on a pinboard, most recent first.
func (l *Ledger) PinboardItems(pinboardID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT `+entryColumns+` FROM entries
		WHERE pinboard_id = ?
		ORDER BY created_at DESC, id DESC`, pinboardID)
	if err != nil {
		return nil, fmt.Errorf("list pinboard items: %w", err)
	}
	return collectEntries(rows)
}
