// Package worker implements §4.2: a Worker owns a slice of the agent
// population and drives it through the four-phase tick cycle. It is
// deliberately barrier-agnostic — a WorkGroup supplies the barrier
// instances to wait on — so the same Worker code path runs unmodified
// in both multi-threaded (goroutine-per-worker) and single-threaded
// (serial, deterministic) mode (§4.1).
package worker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simmobility/kernel/buffer"
	"github.com/simmobility/kernel/bus"
	"github.com/simmobility/kernel/clock"
	"github.com/simmobility/kernel/entity"
	"github.com/simmobility/kernel/output"
)

// Barrier is the minimal rendezvous contract Worker needs from its
// owning WorkGroup. workgroup.barrier satisfies it.
type Barrier interface {
	Wait()
}

// ExceptionHandler is invoked when an entity's FrameInit or FrameTick
// panics while in non-strict mode (§7). It must not
// block; logging is the expected use.
type ExceptionHandler func(w *Worker, e entity.Entity, now clock.Tick, err error)

// Config configures a Worker at construction.
type Config struct {
	// Index identifies this worker within its WorkGroup, used for
	// per-worker RNG seeding (§9) and log attribution.
	Index int
	Log   *slog.Logger
	// Strict selects §5/§7's exception policy: true re-throws (panics)
	// an entity FrameTick panic on the worker's own goroutine, false
	// catches it, logs, and retires the entity.
	Strict  bool
	OnError ExceptionHandler

	// Output, if non-nil, receives each managed entity's FrameOutput
	// record once per tick (§6's observable output stream).
	Output output.Sink
	// Profile enables §3S's frame-tick profiling: per-entity frameTick
	// duration is recorded into Output via Profiler.RecordEntity.
	// Ignored if Output or Profiler is nil.
	Profile  bool
	Profiler *output.Profiler

	// Bus, if non-nil, is the shared message bus this worker registers
	// with at thread entry and unregisters from at thread exit (§4.5:
	// "per worker thread registers with the bus at thread entry and
	// unregisters on exit").
	Bus *bus.Bus
}

// Worker owns a disjoint set of entities and the BufferedDataManager
// aggregating their subscribed cells (§3, §4.2).
type Worker struct {
	index  int
	log    *slog.Logger
	strict bool
	onErr  ExceptionHandler

	output   output.Sink
	profile  bool
	profiler *output.Profiler

	bus        *bus.Bus
	handlerID  bus.HandlerID
	unregister func()

	data *buffer.Manager

	now clock.Tick

	mu         sync.Mutex
	managed    []entity.Entity
	multi      []entity.Entity // re-ticked a second time per frameTick phase, for conflux-style composites
	toBeAdded  []entity.Entity
	removedIDs map[entity.ID]struct{}
	toBreed    []entity.Entity

	pendingRemoval []entity.Entity // computed during FrameTick, consumed by DrainRemovals
}

// New returns an empty Worker ready to receive entities via
// ScheduleForAddition.
func New(cfg Config) *Worker {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Worker{
		index:      cfg.Index,
		log:        cfg.Log,
		strict:     cfg.Strict,
		onErr:      cfg.OnError,
		output:     cfg.Output,
		profile:    cfg.Profile,
		profiler:   cfg.Profiler,
		bus:        cfg.Bus,
		data:       buffer.NewManager(),
		removedIDs: make(map[entity.ID]struct{}),
	}
}

// Index returns this worker's position within its WorkGroup.
func (w *Worker) Index() int { return w.index }

// Tick implements entity.WorkerRef: entities read this only through
// their non-owning back-reference, never across a phase boundary.
func (w *Worker) Tick() clock.Tick { return w.now }

// Data returns the BufferedDataManager owning this worker's cells.
func (w *Worker) Data() *buffer.Manager { return w.data }

// Len reports how many entities this worker currently manages.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.managed)
}

// ScheduleForAddition appends e to the inbox consumed at the top of the
// next frame-tick phase (§4.2's migration contract: inboxes are
// append-only from any thread, never touched by the tick loop directly).
func (w *Worker) ScheduleForAddition(e entity.Entity) {
	w.mu.Lock()
	w.toBeAdded = append(w.toBeAdded, e)
	w.mu.Unlock()
}

// ScheduleForRemoval flags e for removal; the next FrameTick that sees
// the flag queues it, and DrainRemovals, which runs after the flip
// phase, actually removes it from managedEntities.
func (w *Worker) ScheduleForRemoval(e entity.Entity) {
	e.Remove()
}

// ScheduleForBreeding surfaces a newly-created entity (e.g. spawned by
// another entity's FrameTick) to the WorkGroup for assignment.
func (w *Worker) ScheduleForBreeding(e entity.Entity) {
	w.mu.Lock()
	w.toBreed = append(w.toBreed, e)
	w.mu.Unlock()
}

// DrainBred returns and clears the entities scheduled for breeding since
// the last call.
func (w *Worker) DrainBred() []entity.Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	bred := w.toBreed
	w.toBreed = nil
	return bred
}

// SetMultiUpdate marks entities that must run FrameTick more than once
// per frame-tick phase (§3, §4.2's conflux use case).
func (w *Worker) SetMultiUpdate(entities ...entity.Entity) {
	w.mu.Lock()
	w.multi = append(w.multi, entities...)
	w.mu.Unlock()
}

// DrainInboundAdditions migrates every entity queued via
// ScheduleForAddition into managedEntities. It must run before FrameTick
// (§4.2's loop pseudocode: "drainInbox(toBeAdded) # before frameTick").
func (w *Worker) DrainInboundAdditions(wr entity.WorkerRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.toBeAdded {
		if e.CurrentWorker() != nil {
			panic(fmt.Sprintf("worker: entity %d migrated to a worker that already owns it", e.ID()))
		}
		e.SetWorker(wr)
		w.data.Track(e.SubscriptionList()...)
		w.managed = append(w.managed, e)
	}
	w.toBeAdded = nil
}

// FrameTick runs phase 1 of the tick for every managed entity: frameInit
// exactly once, then frameTick, applying any subscription-list delta and
// collecting entities that finished or asked to be removed (§4.2).
func (w *Worker) FrameTick(now clock.Tick) {
	w.now = now
	w.mu.Lock()
	entities := append([]entity.Entity(nil), w.managed...)
	multi := append([]entity.Entity(nil), w.multi...)
	w.mu.Unlock()

	var removal []entity.Entity
	for _, e := range entities {
		if w.tickOne(e, now) {
			removal = append(removal, e)
		}
	}
	for _, e := range multi {
		w.tickOne(e, now)
	}

	w.mu.Lock()
	w.pendingRemoval = append(w.pendingRemoval, removal...)
	w.mu.Unlock()
}

// tickOne runs frameInit (once) and frameTick for a single entity,
// applying strict/non-strict exception policy (§5, §7). It returns true
// if the entity should be queued for removal.
func (w *Worker) tickOne(e entity.Entity, now clock.Tick) (remove bool) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("entity %d frameTick panicked at tick %d: %v", e.ID(), now, r)
			if w.strict {
				panic(err)
			}
			if w.onErr != nil {
				w.onErr(w, e, now, err)
			}
			remove = true
		}
	}()

	if !e.Initialized() {
		e.FrameInit(now)
		e.SetInitialized()
		// An entity may ask to be removed during frameInit; per §4.6 it
		// must be removed without ever receiving frameTick.
		if e.ToBeRemoved() {
			return true
		}
	}

	var start time.Time
	if w.profile && w.profiler != nil && w.output != nil {
		start = time.Now()
	}
	status := e.FrameTick(now)
	if !start.IsZero() {
		w.profiler.RecordEntity(w.output, now, e.ID(), time.Since(start))
	}
	if len(status.ToAdd) > 0 {
		w.data.Track(status.ToAdd...)
	}
	if len(status.ToRemove) > 0 {
		w.data.Untrack(status.ToRemove...)
	}
	return status.Done || e.ToBeRemoved()
}

// FlipBuffers runs phase 2: swap staged into current for every cell this
// worker's BufferedDataManager tracks.
func (w *Worker) FlipBuffers() {
	w.data.FlipAll()
}

// DrainRemovals runs the real-removal half of phase 2: entities flagged
// during FrameTick are detached from managedEntities, their cells
// untracked, and their worker back-reference cleared. The returned slice
// feeds the WorkGroup's removal list (§4.1: "the only point at which
// delete is called").
func (w *Worker) DrainRemovals() []entity.Entity {
	w.mu.Lock()
	defer w.mu.Unlock()

	toRemove := w.pendingRemoval
	w.pendingRemoval = nil
	if len(toRemove) == 0 {
		return nil
	}
	remove := make(map[entity.ID]struct{}, len(toRemove))
	for _, e := range toRemove {
		remove[e.ID()] = struct{}{}
	}
	kept := w.managed[:0:0]
	for _, e := range w.managed {
		if _, gone := remove[e.ID()]; gone {
			w.data.Untrack(e.SubscriptionList()...)
			e.SetWorker(nil)
			continue
		}
		kept = append(kept, e)
	}
	w.managed = kept
	return toRemove
}

// FrameOutput runs the output phase for every managed entity, writing
// whatever each one's FrameOutput returns to the configured Sink. The
// kernel itself does not interpret the payload (§6): it only ensures
// every live entity gets a chance to emit one and that it is persisted.
// A nil Output makes this a no-op beyond calling FrameOutput itself, so
// roles that rely on FrameOutput for a side effect other than the
// returned payload still run even with no Sink configured.
func (w *Worker) FrameOutput(now clock.Tick) {
	w.mu.Lock()
	entities := append([]entity.Entity(nil), w.managed...)
	w.mu.Unlock()
	for _, e := range entities {
		payload := e.FrameOutput(now)
		if w.output == nil || payload == nil {
			continue
		}
		if err := w.output.Write(now, e.ID(), payload); err != nil {
			w.log.Error("writing frame output record failed", "entity", e.ID(), "tick", now, "err", err)
		}
	}
}

// HandleMessage satisfies bus.Handler. Routing a delivered message to a
// specific managed entity is a role's concern, out of scope for the
// kernel itself (§4.5 defines delivery, not payload dispatch); a worker
// that receives one simply logs it, so a real run still has somewhere
// for bus traffic addressed to it to go.
func (w *Worker) HandleMessage(m bus.Message) {
	w.log.Debug("worker received bus message", "type", m.Type, "from", m.From)
}

// EnterBus registers this worker with cfg.Bus, implementing §4.5's "per
// worker thread registers with the bus at thread entry". A no-op if no
// Bus was configured. Safe to call at most once per worker lifetime;
// callers must pair it with ExitBus.
func (w *Worker) EnterBus() {
	if w.bus == nil || w.unregister != nil {
		return
	}
	w.handlerID, w.unregister = w.bus.Register(w)
}

// ExitBus unregisters this worker from the bus, implementing §4.5's
// "...and unregisters on exit". A no-op if EnterBus was never called.
func (w *Worker) ExitBus() {
	if w.unregister == nil {
		return
	}
	w.unregister()
	w.unregister = nil
}

// HandlerID returns this worker's bus registration token, valid only
// between EnterBus and ExitBus.
func (w *Worker) HandlerID() bus.HandlerID { return w.handlerID }

// Snapshot returns a defensive copy of the currently managed entities,
// for tests and for the Aura Manager's rebuild pass.
func (w *Worker) Snapshot() []entity.Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]entity.Entity(nil), w.managed...)
}
