package worker

import (
	"context"

	"github.com/simmobility/kernel/clock"
	"github.com/simmobility/kernel/entity"
)

// Barriers bundles the three shared rendezvous points every worker of
// every WorkGroup waits on, once per base tick (§4.1, §5's barrier-count
// invariant: exactly sum(workers)+1 participants at each one).
type Barriers struct {
	FrameTick  Barrier
	Flip       Barrier
	MsgDistrib Barrier
}

// RunConfig parameterizes Worker.Run.
type RunConfig struct {
	Barriers Barriers
	// Macro, if non-nil, is this worker's WorkGroup-private barrier,
	// waited on only on ticks where Due(now) is true (§4.1 phase 4).
	Macro Barrier
	// Due reports whether this worker's WorkGroup should actually tick
	// its entities on base tick `now`, implementing the tickStep gating
	// of §3: a worker whose group has tickStep>1 still participates in
	// every shared barrier round (keeping the barrier's participant
	// count correct) but only does entity work on ticks its tickStep
	// divides.
	Due func(now clock.Tick) bool
	// End reports whether the run should stop before processing `now`.
	End func(now clock.Tick) bool
	// EmitOutput reports whether FrameOutput records should actually be
	// written this tick. nil means always emit. §3S's warm-up period
	// suppresses frameOutput while still running frameTick: the caller
	// passes a func reporting now >= warmupTicks here to implement that.
	EmitOutput func(now clock.Tick) bool
	// OnRemoved receives the entities this worker drained for removal
	// this round, before the Flip barrier is waited on, so the master
	// can delete them immediately after everyone arrives at Flip
	// (§4.1: "the only point at which delete is called").
	OnRemoved func(removed []entity.Entity)
}

// Run drives this worker's continuous per-tick loop (§4.2's pseudocode)
// until ctx is cancelled or cfg.End reports true. It is the
// multi-threaded counterpart to calling FrameTick/FlipBuffers/
// DrainRemovals directly, which is what single-threaded mode does
// instead of calling Run at all.
func (w *Worker) Run(ctx context.Context, cfg RunConfig) {
	w.EnterBus()
	defer w.ExitBus()

	var now clock.Tick
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if cfg.End != nil && cfg.End(now) {
			return
		}

		w.DrainInboundAdditions(w)
		due := cfg.Due == nil || cfg.Due(now)
		if due {
			w.FrameTick(now)
		}
		cfg.Barriers.FrameTick.Wait()

		if due {
			w.FlipBuffers()
			removed := w.DrainRemovals()
			if cfg.OnRemoved != nil && len(removed) > 0 {
				cfg.OnRemoved(removed)
			}
			if cfg.EmitOutput == nil || cfg.EmitOutput(now) {
				w.FrameOutput(now)
			}
		}
		cfg.Barriers.Flip.Wait()
		cfg.Barriers.MsgDistrib.Wait()

		if due && cfg.Macro != nil {
			cfg.Macro.Wait()
		}
		now++
	}
}
