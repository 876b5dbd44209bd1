package ingest

import "sync"

// lockTable tracks entries held by the presentation layer mid-animation.
// A locked entry must not be removed or reordered; a capture that would
// replace it is parked as the pending observation instead. At most one
// pending observation is retained per lock, the latest wins.
//
// Locks never survive a restart; the table starts empty.
type lockTable struct {
	mu   sync.Mutex
	held map[string]*lockState
}

type lockState struct {
	pending *observation
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]*lockState)}
}

// Lock marks an entry as held. Locking an already-locked entry keeps its
// pending observation.
func (t *lockTable) Lock(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[id]; !ok {
		t.held[id] = &lockState{}
	}
}

// Unlock releases an entry and returns the parked observation, if any.
// wasLocked is false when the entry was not held.
func (t *lockTable) Unlock(id string) (pending *observation, wasLocked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.held[id]
	if !ok {
		return nil, false
	}
	delete(t.held, id)
	return st.pending, true
}

// DeferIfLocked parks obs against id when id is held, replacing any earlier
// parked observation. Reports whether the observation was parked.
func (t *lockTable) DeferIfLocked(id string, obs observation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.held[id]
	if !ok {
		return false
	}
	st.pending = &obs
	return true
}

// Drop discards a lock and its pending observation without applying it.
// Used when the locked entry is deleted out from under the lock.
func (t *lockTable) Drop(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, id)
}

// Locked reports whether an entry is currently held.
func (t *lockTable) Locked(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.held[id]
	return ok
}
