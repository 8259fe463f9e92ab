package buffer

import "sync"

// Manager aggregates the Flippable cells subscribed by every entity a
// single Worker owns, and flips them all at the worker's flip phase
// (§4.3). Exactly one Manager may own a given cell at a time; cells move
// between managers only during the flip phase (§3's migration invariant).
type Manager struct {
	mu    sync.Mutex
	cells map[Flippable]struct{}
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{cells: make(map[Flippable]struct{})}
}

// Track adds cells to the set this Manager flips each tick. Safe to call
// from the owning worker's thread between frameTick and flip, per the
// cell-ownership-transfer rule in §4.2.
func (m *Manager) Track(cells ...Flippable) {
	if len(cells) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cells {
		m.cells[c] = struct{}{}
	}
}

// Untrack removes cells from the flip set, e.g. when an entity's role
// changes and it stops publishing some fields, or when the entity leaves
// the worker entirely.
func (m *Manager) Untrack(cells ...Flippable) {
	if len(cells) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cells {
		delete(m.cells, c)
	}
}

// FlipAll copies every tracked cell's staged value into its current slot.
// Called once per tick, only by the owning worker, during the flip phase.
func (m *Manager) FlipAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.cells {
		c.flip()
	}
}

// Len reports how many cells this Manager currently tracks. Primarily
// useful for tests asserting subscription bookkeeping stays correct
// across role changes and entity removal.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cells)
}
