// Package entity defines the narrow contract every agent, signal and
// conflux the kernel schedules must satisfy, in the sum-type-friendly
// shape §9 calls for: concrete roles (driver, pedestrian, passenger,
// controller, conflux) implement this interface directly rather than
// through a class hierarchy.
package entity

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/simmobility/kernel/buffer"
	"github.com/simmobility/kernel/clock"
)

// ID uniquely and monotonically identifies an entity for the lifetime of
// a simulation run.
type ID int64

// Status is returned by FrameTick each tick (§3's UpdateStatus).
type Status struct {
	// Done marks the entity as finished; the framework schedules it for
	// removal. An entity may also request removal out-of-band via
	// Base.Remove without returning Done (e.g. a caught exception).
	Done bool
	// ToAdd and ToRemove carry cells the entity's BufferedDataManager
	// subscription should start or stop tracking this tick, used when a
	// role change alters the entity's observable fields (§4.2).
	ToAdd    []buffer.Flippable
	ToRemove []buffer.Flippable
}

// Continue is the zero Status: keep ticking, no subscription changes.
var Continue = Status{}

// Done returns a Status indicating the entity has finished.
func Done() Status { return Status{Done: true} }

// WorkerRef is the narrow, non-owning view of a Worker that an Entity may
// hold as its currentWorker back-reference (§3, §9). It is set exactly
// once at migrate-in and cleared at migrate-out; entities must never read
// it outside a phase boundary. Worker satisfies this interface.
type WorkerRef interface {
	// Tick returns the simulation tick the worker is currently executing.
	Tick() clock.Tick
}

// Entity is the interface the kernel's Worker drives. Concrete roles
// embed Base and override FrameTick (and optionally FrameInit /
// FrameOutput) to supply behavior.
type Entity interface {
	ID() ID
	StartTimeMs() int64
	EndTimeMs() (int64, bool)
	IsNonspatial() bool
	// Position is read by the Aura Manager once per tick, after flip.
	// Non-spatial entities may return a zero vector; it is never indexed.
	Position() mgl64.Vec2

	ToBeRemoved() bool
	Remove()

	CurrentWorker() WorkerRef
	SetWorker(w WorkerRef)

	Initialized() bool
	SetInitialized()

	FrameInit(now clock.Tick)
	FrameTick(now clock.Tick) Status
	// FrameOutput returns the role-defined record for this tick, or nil
	// to emit nothing. The kernel persists whatever bytes come back
	// without interpreting them (§6's "record format is defined by
	// roles, not by the kernel").
	FrameOutput(now clock.Tick) []byte

	// SubscriptionList returns the buffered cells the framework must flip
	// each tick on this entity's behalf (§3).
	SubscriptionList() []buffer.Flippable
}

// Base implements the bookkeeping every Entity needs, leaving FrameInit /
// FrameTick / FrameOutput / SubscriptionList to the embedding role: a
// small concrete struct embedded by every concrete entity type, rather
// than a deep inheritance chain (§9).
type Base struct {
	id          ID
	startTimeMs int64
	endTimeMs   int64
	hasEnd      bool
	nonspatial  bool

	toBeRemoved atomic.Bool
	initialized atomic.Bool

	worker WorkerRef
	cells  []buffer.Flippable
}

// NewBase constructs the common Entity fields. cells is the initial
// subscription list; roles typically pass the Cell pointers backing
// their own fields here so Base.SubscriptionList can report them.
func NewBase(id ID, startTimeMs int64, nonspatial bool, cells ...buffer.Flippable) *Base {
	return &Base{id: id, startTimeMs: startTimeMs, nonspatial: nonspatial, cells: cells}
}

func (b *Base) ID() ID                  { return b.id }
func (b *Base) StartTimeMs() int64      { return b.startTimeMs }
func (b *Base) IsNonspatial() bool      { return b.nonspatial }
func (b *Base) ToBeRemoved() bool       { return b.toBeRemoved.Load() }
func (b *Base) Remove()                 { b.toBeRemoved.Store(true) }
func (b *Base) Initialized() bool       { return b.initialized.Load() }
func (b *Base) SetInitialized()         { b.initialized.Store(true) }
func (b *Base) CurrentWorker() WorkerRef { return b.worker }
func (b *Base) SetWorker(w WorkerRef)   { b.worker = w }

// SetEndTimeMs records an optional scheduled end time.
func (b *Base) SetEndTimeMs(ms int64) {
	b.endTimeMs, b.hasEnd = ms, true
}

func (b *Base) EndTimeMs() (int64, bool) { return b.endTimeMs, b.hasEnd }

// SubscriptionList returns the cells registered at construction time,
// plus any added later via AddCells/RemoveCells.
func (b *Base) SubscriptionList() []buffer.Flippable { return b.cells }

// AddCells extends the subscription list; used by roles that need to
// report new ToAdd cells through Status after a role change.
func (b *Base) AddCells(cells ...buffer.Flippable) {
	b.cells = append(b.cells, cells...)
}

// RemoveCells drops cells from the subscription list.
func (b *Base) RemoveCells(cells ...buffer.Flippable) {
	drop := make(map[buffer.Flippable]struct{}, len(cells))
	for _, c := range cells {
		drop[c] = struct{}{}
	}
	kept := b.cells[:0]
	for _, c := range b.cells {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	b.cells = kept
}

// Position defaults to the origin; spatial roles override it.
func (b *Base) Position() mgl64.Vec2 { return mgl64.Vec2{} }

// FrameOutput defaults to emitting nothing; most roles only care about
// FrameTick.
func (b *Base) FrameOutput(clock.Tick) []byte { return nil }
