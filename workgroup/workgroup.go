// Package workgroup implements §4.1: the WorkGroupManager and WorkGroup
// types that own the worker pool, the shared barriers, and the per-tick
// phase orchestration: a router handing work to per-partition workers
// stepped by a fixed four-phase cycle.
package workgroup

import (
	"fmt"
	"sync"

	"github.com/simmobility/kernel/clock"
	"github.com/simmobility/kernel/dispatch"
	"github.com/simmobility/kernel/entity"
	"github.com/simmobility/kernel/worker"
)

// WorkGroup owns a disjoint pool of Workers that all advance at the same
// tickStep, plus the group-local state the WorkGroupManager needs to
// drive one base tick at a time: a pending-entity queue, a dispatch
// policy, and the list of entities removed this tick (§4.1, §4.5).
type WorkGroup struct {
	name     string
	workers  []*worker.Worker
	tickStep clock.TickStep
	policy   dispatch.Policy
	pending  *dispatch.Queue

	// dynamicDispatchDisabled implements §6's "if true, no pending queue
	// is used and all agents start at tick 0": Enqueue assigns an
	// entity to a worker immediately instead of deferring it to the
	// pending-start queue, ignoring startTimeMs entirely.
	dynamicDispatchDisabled bool

	// macro is this group's private barrier, allocated only when
	// tickStep > 1, so a coarse-grained group doesn't have to lock-step
	// with faster groups purely for its own internal resync (§4.1
	// phase 4, "optional per-group barrier").
	macro *barrier

	mu          sync.Mutex
	removalList []entity.Entity
}

// Name identifies the group in logs and in Manager.Group lookups.
func (g *WorkGroup) Name() string { return g.name }

// NumWorkers reports how many workers this group owns.
func (g *WorkGroup) NumWorkers() int { return len(g.workers) }

// TickStep reports this group's configured tick step.
func (g *WorkGroup) TickStep() clock.TickStep { return g.tickStep }

// Worker returns the i'th worker of this group.
func (g *WorkGroup) Worker(i int) *worker.Worker { return g.workers[i] }

// Enqueue adds an entity to this group's pending-start queue (§4.5). The
// queue is not locked, so Enqueue must be called from the goroutine that
// drives WaitAllGroups (the master); assignment to an actual worker
// happens at the top of the next tick the dispatcher runs. If this
// group's dynamic dispatch is disabled, the entity is instead assigned
// to a worker immediately, regardless of startTimeMs.
func (g *WorkGroup) Enqueue(e entity.Entity, startTimeMs int64) {
	if g.dynamicDispatchDisabled {
		g.assign(&dispatch.Pending{Entity: e, StartTimeMs: startTimeMs})
		return
	}
	g.pending.Push(&dispatch.Pending{Entity: e, StartTimeMs: startTimeMs})
}

// dispatchReady assigns every entity whose startTimeMs has elapsed to a
// worker via this group's dispatch policy (the round-robin policy
// CreateWorkGroup installs; no other policy is selected by the
// Manager). A no-op when dynamic dispatch is
// disabled, since Enqueue already assigned everything up front.
func (g *WorkGroup) dispatchReady(nowMs int64) {
	if g.dynamicDispatchDisabled {
		return
	}
	for _, p := range g.pending.PopReady(nowMs) {
		g.assign(p)
	}
}

func (g *WorkGroup) assign(p *dispatch.Pending) {
	target := g.policy.Assign(p)
	idx := int(target.Worker)
	if idx < 0 || idx >= len(g.workers) {
		idx = 0
	}
	g.workers[idx].ScheduleForAddition(p.Entity)
}

// recordRemovals appends to this group's removal list. Called by
// workers (directly, in single-threaded mode, or via Worker.Run's
// OnRemoved hook in multi-threaded mode) before they arrive at the Flip
// barrier, so the removal list is complete by the time the manager
// processes it right after that barrier releases (§4.1).
func (g *WorkGroup) recordRemovals(removed []entity.Entity) {
	if len(removed) == 0 {
		return
	}
	g.mu.Lock()
	g.removalList = append(g.removalList, removed...)
	g.mu.Unlock()
}

// drainRemovalList returns and clears the entities removed this tick.
func (g *WorkGroup) drainRemovalList() []entity.Entity {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.removalList
	g.removalList = nil
	return out
}

// due reports whether base tick `now` is one of this group's own ticks,
// i.e. the resolution of the Open Question around per-group tickStep
// gating recorded in DESIGN.md: the global base-tick counter advances by
// one every shared-barrier round for every group regardless of
// tickStep, and tickStep instead gates whether a group actually does
// entity work on a given round.
func (g *WorkGroup) due(now clock.Tick) bool {
	if g.tickStep <= 1 {
		return true
	}
	return int64(now)%int64(g.tickStep) == 0
}

// runSingleThreaded executes one full phase cycle for every worker in
// this group serially, with no goroutines and no barriers (§4.1's
// single-threaded debug mode). Returns the entities removed this tick.
func (g *WorkGroup) runSingleThreaded(now clock.Tick, emitOutput bool) []entity.Entity {
	if !g.due(now) {
		return nil
	}
	for _, w := range g.workers {
		w.DrainInboundAdditions(w)
		w.FrameTick(now)
	}
	var removed []entity.Entity
	for _, w := range g.workers {
		w.FlipBuffers()
		removed = append(removed, w.DrainRemovals()...)
		if emitOutput {
			w.FrameOutput(now)
		}
	}
	return removed
}

// runConfig builds the RunConfig a Manager spawns this group's workers
// with in multi-threaded mode.
func (g *WorkGroup) runConfig(shared worker.Barriers, end func(clock.Tick) bool, emitOutput func(clock.Tick) bool) worker.RunConfig {
	return worker.RunConfig{
		Barriers:   shared,
		Macro:      g.macroOrNil(),
		Due:        g.due,
		End:        end,
		OnRemoved:  g.recordRemovals,
		EmitOutput: emitOutput,
	}
}

func (g *WorkGroup) macroOrNil() worker.Barrier {
	if g.macro == nil {
		return nil
	}
	return g.macro
}

func (g *WorkGroup) validate() error {
	if len(g.workers) == 0 {
		return fmt.Errorf("workgroup %q: must have at least one worker", g.name)
	}
	if g.tickStep < 1 {
		return fmt.Errorf("workgroup %q: tickStep must be >= 1", g.name)
	}
	return nil
}
