// Package buffer implements the kernel's double-buffered value cells:
// the mechanism by which one entity's writes in a tick become visible to
// every other entity only after that tick's flip phase, so concurrent
// workers never race on each other's in-progress state (§4.3).
package buffer

// Strategy selects how a cell publishes writes. Buffered is the
// default; Locked is the legacy alternative §3 calls out, for entities
// that opt out of double buffering.
type Strategy int

const (
	Buffered Strategy = iota
	Locked
)

func (s Strategy) String() string {
	switch s {
	case Buffered:
		return "buffered"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Flippable is satisfied by every cell type that a Manager can own and
// flip. Its method is unexported so only types declared in this package
// can participate: entities subscribe concrete *Cell[T] (or *LockedCell[T])
// values, never roll their own.
type Flippable interface {
	flip()
}

// Cell holds a staged and a current value of T. Set stages a new value;
// Get always reads the current value. flip, called only by the owning
// Manager during the flip phase, copies staged into current.
//
// Cell is not safe for concurrent Set calls: the contract is single
// writer (the owning entity, from its worker's thread during frameTick),
// many readers (any thread, any time, via Get).
type Cell[T any] struct {
	current T
	staged  T
}

// NewCell returns a Cell with both slots initialized to v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{current: v, staged: v}
}

// Get returns the current value. Safe to call from any goroutine at any
// time; it never observes a write staged in the same tick.
func (c *Cell[T]) Get() T {
	return c.current
}

// Set stages v. Only legal from the owning worker's thread during that
// worker's frameTick phase; the staged value becomes visible to Get only
// after the next flip.
func (c *Cell[T]) Set(v T) {
	c.staged = v
}

func (c *Cell[T]) flip() {
	c.current = c.staged
}

// LockedCell is the Strategy=Locked alternative: direct mutation under a
// mutex, with no staging and no flip delay. It satisfies Flippable with a
// no-op flip so it can still be tracked by a Manager uniformly, but
// Manager never needs to call it since Set is immediately visible.
type LockedCell[T any] struct {
	mu    chan struct{} // binary semaphore used as the cell's mutex
	value T
}

// NewLockedCell returns a LockedCell with an initial value.
func NewLockedCell[T any](v T) *LockedCell[T] {
	c := &LockedCell[T]{mu: make(chan struct{}, 1), value: v}
	c.mu <- struct{}{}
	return c
}

// Get returns the current value under the cell's mutex.
func (c *LockedCell[T]) Get() T {
	<-c.mu
	v := c.value
	c.mu <- struct{}{}
	return v
}

// Set writes v immediately, visible to concurrent Get calls as soon as the
// mutex is released.
func (c *LockedCell[T]) Set(v T) {
	<-c.mu
	c.value = v
	c.mu <- struct{}{}
}

func (c *LockedCell[T]) flip() {}
