// Package ingest runs the clipboard observation loop and decides, per
// capture, between inserting a new history entry, moving a known one back to
// the head, or deferring while the presentation layer holds a lock on the
// affected entry.
//
// The loop is the single writer for inserts and reorders. Everything else
// that mutates history (delete, clear, favorite, limit changes) is
// id-addressed and goes through Coordinator methods, so no caller ever
// touches the ledger's ordering behind the loop's back.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.klb.dev/keepsake/internal/blob"
	"go.klb.dev/keepsake/internal/classify"
	"go.klb.dev/keepsake/internal/clip"
	"go.klb.dev/keepsake/internal/fingerprint"
	"go.klb.dev/keepsake/internal/ledger"
)

// Thumbnailer dispatches background preview generation for an entry.
// imageData carries the raw capture for image entries.
type Thumbnailer interface {
	Dispatch(e *ledger.Entry, imageData []byte)
}

// Events receives ingestion notifications in processing order.
type Events interface {
	EntryAdded(e *ledger.Entry, replacedID string)
	EntryReordered(id string)
}

// Config tunes the coordinator.
type Config struct {
	// DedupWindow bounds how many recent entries the duplicate lookup
	// considers. Zero means the configured history limit.
	DedupWindow int
}

// observation is one classified clipboard capture with everything needed to
// apply it later, so a deferred capture does not re-read the clipboard.
type observation struct {
	content classify.Content
	fp      fingerprint.Fingerprint
	app     clip.AppIdentity
	appOK   bool
}

// directive asks the loop to apply the outcome of an unlock.
type directive struct {
	id      string
	pending *observation
}

// Coordinator owns the observation loop, the lock table, and every mutation
// of the history ledger.
type Coordinator struct {
	backend clip.Backend
	ledger  *ledger.Ledger
	blobs   *blob.Store
	thumbs  Thumbnailer
	events  Events
	cfg     Config

	locks   *lockTable
	applyCh chan directive

	limit    atomic.Int64
	degraded atomic.Int64

	selfMu sync.Mutex
	selfFP string
}

// New wires a coordinator. The history limit is read from the ledger once;
// SetHistoryLimit keeps it current afterwards.
func New(backend clip.Backend, l *ledger.Ledger, blobs *blob.Store, thumbs Thumbnailer, events Events, cfg Config) (*Coordinator, error) {
	limit, err := l.HistoryLimit()
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		backend: backend,
		ledger:  l,
		blobs:   blobs,
		thumbs:  thumbs,
		events:  events,
		cfg:     cfg,
		locks:   newLockTable(),
		applyCh: make(chan directive, 16),
	}
	c.limit.Store(int64(limit))
	return c, nil
}

// Run drives the observation loop until ctx is cancelled. One failing cycle
// never stops the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	watch := c.backend.Watch()
	slog.Info("ingestion started", "backend", c.backend.Name(), "history_limit", c.limit.Load())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-c.applyCh:
			c.applyDirective(d)
		case <-watch:
			c.cycle()
		}
	}
}

// cycle handles one clipboard change.
func (c *Coordinator) cycle() {
	content, ok := classify.Capture(c.backend)
	if !ok {
		// Empty or unreadable clipboard is normal churn.
		return
	}

	fp := fingerprint.Of(content)
	if c.consumeSelfWrite(fp) {
		slog.Debug("own write observed, skipping")
		return
	}

	obs := observation{content: content, fp: fp}
	obs.app, obs.appOK = c.backend.FrontmostApp()
	c.ingest(obs)
}

// ingest applies the insert/reorder/defer decision for one observation.
// Deferred observations re-enter here on unlock, so a re-locked entry simply
// defers again.
func (c *Coordinator) ingest(obs observation) {
	match, err := c.ledger.FindRecentByFingerprint(string(obs.fp), c.window())
	if err != nil {
		c.degradedCycle("duplicate lookup failed", err)
		return
	}

	if match == nil {
		c.insertNew(obs)
		return
	}
	if c.locks.DeferIfLocked(match.ID, obs) {
		logCapture("capture deferred", obs.content)
		return
	}
	c.replace(match, obs)
}

// insertNew is the new-content path: a fresh entry at the head.
func (c *Coordinator) insertNew(obs observation) {
	e, imageData, err := c.buildEntry(obs, nil)
	if err != nil {
		c.degradedCycle("build entry failed", err)
		return
	}
	if err := c.ledger.InsertAtHead(e); err != nil {
		c.discardBlob(e, nil)
		c.degradedCycle("insert failed", err)
		return
	}

	logCapture("entry added", obs.content)
	c.events.EntryAdded(e, "")
	c.afterInsert(e, obs, imageData)
	c.prune()
}

// replace is the move-to-top path: the old row goes away and a new entry
// with a fresh id carries its enrichment forward.
func (c *Coordinator) replace(old *ledger.Entry, obs observation) {
	e, imageData, err := c.buildEntry(obs, old)
	if err != nil {
		c.degradedCycle("build entry failed", err)
		return
	}
	if _, err := c.ledger.RemoveByID(old.ID); err != nil {
		c.discardBlob(e, old)
		c.degradedCycle("remove replaced entry failed", err)
		return
	}
	if err := c.ledger.InsertAtHead(e); err != nil {
		c.discardBlob(e, old)
		c.degradedCycle("insert replacement failed", err)
		return
	}

	logCapture("entry replaced", obs.content)
	c.events.EntryAdded(e, old.ID)
	c.afterInsert(e, obs, imageData)
}

// buildEntry materializes an observation as a ledger entry. old, when set,
// is the fingerprint-identical entry being replaced; its thumbnail, source
// app and favorite flag carry forward, and image blobs are shared rather
// than rewritten.
func (c *Coordinator) buildEntry(obs observation, old *ledger.Entry) (*ledger.Entry, []byte, error) {
	e := &ledger.Entry{
		ID:          ledger.NewID(),
		Kind:        obs.content.Kind,
		Fingerprint: string(obs.fp),
	}

	var imageData []byte
	switch obs.content.Kind {
	case classify.KindText, classify.KindLink:
		e.Text = obs.content.Text
	case classify.KindFiles, classify.KindAudio:
		e.Paths = obs.content.Paths
	case classify.KindImage:
		imageData = obs.content.Image
		if old != nil && old.ImageRef != "" {
			e.ImageRef = old.ImageRef
		} else {
			name, err := c.blobs.Save(e.ID, imageData)
			if err != nil {
				return nil, nil, err
			}
			e.ImageRef = name
		}
	}

	if old != nil {
		e.Thumbnail = old.Thumbnail
		e.SourceApp = old.SourceApp
		e.SourceAppIcon = old.SourceAppIcon
		e.Favorite = old.Favorite
	}
	if e.SourceApp == "" && obs.appOK {
		e.SourceApp = obs.app.Name
	}
	return e, imageData, nil
}

// afterInsert schedules the asynchronous enrichment for a freshly inserted
// entry.
func (c *Coordinator) afterInsert(e *ledger.Entry, obs observation, imageData []byte) {
	if e.Thumbnail == nil && e.Kind != classify.KindText {
		c.thumbs.Dispatch(e, imageData)
	}
	if obs.appOK && e.SourceAppIcon == nil {
		go c.enrichSourceApp(e.ID, obs.app)
	}
}

// enrichSourceApp resolves the source application's icon off the loop.
func (c *Coordinator) enrichSourceApp(id string, app clip.AppIdentity) {
	icon, ok := c.backend.AppIcon(app)
	if !ok {
		return
	}
	if _, err := c.ledger.UpdateSourceApp(id, app.Name, icon); err != nil {
		slog.Warn("store source app failed", "entry", id, "error", err)
	}
}

// discardBlob removes a blob written for an entry that never made it into
// the ledger. Blobs inherited from old stay.
func (c *Coordinator) discardBlob(e *ledger.Entry, old *ledger.Entry) {
	if e.ImageRef == "" {
		return
	}
	if old != nil && old.ImageRef == e.ImageRef {
		return
	}
	if err := c.blobs.Delete(e.ImageRef); err != nil {
		slog.Warn("discard image blob failed", "blob", e.ImageRef, "error", err)
	}
}

// applyDirective finishes an unlock on the loop. A parked observation runs
// the full ingest decision again; a bare unlock is a light reorder-to-top.
func (c *Coordinator) applyDirective(d directive) {
	if d.pending != nil {
		c.ingest(*d.pending)
		return
	}

	moved, err := c.ledger.Touch(d.id)
	if err != nil {
		c.degradedCycle("reorder failed", err)
		return
	}
	if moved {
		c.events.EntryReordered(d.id)
	}
}

// prune enforces the history limit after growth and drops blobs of pruned
// image entries.
func (c *Coordinator) prune() {
	limit := int(c.limit.Load())
	if limit <= 0 {
		return
	}
	removed, refs, err := c.ledger.PruneToLimit(limit)
	if err != nil {
		c.degradedCycle("prune failed", err)
		return
	}
	c.deleteBlobs(refs)
	if removed > 0 {
		slog.Debug("history pruned", "removed", removed, "limit", limit)
	}
}

func (c *Coordinator) deleteBlobs(refs []string) {
	for _, ref := range refs {
		if err := c.blobs.Delete(ref); err != nil {
			slog.Warn("delete image blob failed", "blob", ref, "error", err)
		}
	}
}

func (c *Coordinator) window() int {
	if c.cfg.DedupWindow > 0 {
		return c.cfg.DedupWindow
	}
	return int(c.limit.Load())
}

// degradedCycle logs a storage failure and counts it. The loop keeps
// running; one bad cycle never takes down ingestion.
func (c *Coordinator) degradedCycle(msg string, err error) {
	c.degraded.Add(1)
	slog.Error(msg, "error", err)
}

// DegradedCycles reports how many cycles failed against storage since start.
func (c *Coordinator) DegradedCycles() int64 { return c.degraded.Load() }

// LockEntry holds an entry against removal and reordering until UnlockEntry.
func (c *Coordinator) LockEntry(id string) {
	c.locks.Lock(id)
	slog.Debug("entry locked", "entry", id)
}

// UnlockEntry releases a held entry. The deferred replacement, or failing
// that a reorder-to-top, is applied by the loop. Unlocking an entry that is
// not held is a no-op.
func (c *Coordinator) UnlockEntry(id string) {
	pending, wasLocked := c.locks.Unlock(id)
	if !wasLocked {
		return
	}
	slog.Debug("entry unlocked", "entry", id, "pending", pending != nil)
	c.applyCh <- directive{id: id, pending: pending}
}

// Locked reports whether the presentation layer holds the entry.
func (c *Coordinator) Locked(id string) bool { return c.locks.Locked(id) }

// CopyBack writes an entry's payload onto the live clipboard. The write is
// observed by the loop like any other change; a one-shot fingerprint guard
// keeps it from re-entering the pipeline.
func (c *Coordinator) CopyBack(id string) error {
	e, err := c.ledger.Get(id)
	if err != nil {
		return err
	}

	var raw clip.RawContent
	switch e.Kind {
	case classify.KindText, classify.KindLink:
		raw = clip.RawContent{Format: clip.FormatText, Data: []byte(e.Text)}
	case classify.KindImage:
		data, err := c.blobs.Load(e.ImageRef)
		if err != nil {
			return err
		}
		raw = clip.RawContent{Format: clip.FormatImage, Data: data}
	case classify.KindFiles, classify.KindAudio:
		raw = clip.RawContent{Format: clip.FormatFiles, Paths: e.Paths}
	}

	c.setSelfWrite(e.Fingerprint)
	if err := c.backend.Write(raw); err != nil {
		c.clearSelfWrite()
		return err
	}
	return nil
}

// Delete removes an entry, its lock state, and its image blob.
func (c *Coordinator) Delete(id string) (bool, error) {
	e, err := c.ledger.Get(id)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// Dropping the lock keeps a parked replacement from resurrecting the
	// entry after the user deleted it.
	c.locks.Drop(id)

	removed, err := c.ledger.RemoveByID(id)
	if err != nil {
		return false, err
	}
	if removed && e.Kind == classify.KindImage && e.ImageRef != "" {
		c.deleteBlobs([]string{e.ImageRef})
	}
	return removed, nil
}

// ToggleFavorite flips an entry's favorite flag and returns the new state.
func (c *Coordinator) ToggleFavorite(id string) (bool, error) {
	return c.ledger.ToggleFavorite(id)
}

// ClearHistory removes all non-favorite, non-pinned entries and their image
// blobs, returning how many were removed.
func (c *Coordinator) ClearHistory() (int64, error) {
	removed, refs, err := c.ledger.ClearHistory()
	if err != nil {
		return 0, err
	}
	c.deleteBlobs(refs)
	slog.Info("history cleared", "removed", removed)
	return removed, nil
}

// SetHistoryLimit stores a new entry cap and prunes down to it immediately.
func (c *Coordinator) SetHistoryLimit(n int) (int64, error) {
	if err := c.ledger.SetHistoryLimit(n); err != nil {
		return 0, err
	}
	c.limit.Store(int64(n))

	if n <= 0 {
		return 0, nil
	}
	removed, refs, err := c.ledger.PruneToLimit(n)
	if err != nil {
		return 0, err
	}
	c.deleteBlobs(refs)
	slog.Info("history limit changed", "limit", n, "removed", removed)
	return removed, nil
}

// HistoryLimit returns the current entry cap.
func (c *Coordinator) HistoryLimit() int { return int(c.limit.Load()) }

func (c *Coordinator) setSelfWrite(fp string) {
	c.selfMu.Lock()
	c.selfFP = fp
	c.selfMu.Unlock()
}

func (c *Coordinator) clearSelfWrite() {
	c.selfMu.Lock()
	c.selfFP = ""
	c.selfMu.Unlock()
}

// consumeSelfWrite clears the guard on any observation and reports whether
// the observation is our own copy-back echo.
func (c *Coordinator) consumeSelfWrite(fp fingerprint.Fingerprint) bool {
	c.selfMu.Lock()
	defer c.selfMu.Unlock()
	if c.selfFP == "" {
		return false
	}
	matched := c.selfFP == string(fp)
	c.selfFP = ""
	return matched
}
