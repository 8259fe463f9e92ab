package output

import (
	"log/slog"
	"time"

	"github.com/simmobility/kernel/clock"
	"github.com/simmobility/kernel/entity"
)

// Phase names one segment of the tick cycle a Profiler times.
type Phase string

const (
	PhaseFrameTick  Phase = "frame_tick"
	PhaseFlip       Phase = "flip"
	PhaseMsgDistrib Phase = "msg_distrib"
	PhaseMacro      Phase = "macro"
)

// Profiler implements §3S's frame-tick profiling option: RecordEntity
// persists per-entity frameTick durations, and Start/End/Tick time
// phases and periodically log their average at debug level. It has no
// per-tick time budget and logs no warning for slow ticks. Every method
// is a no-op on a nil *Profiler.
type Profiler struct {
	log        *slog.Logger
	flushEvery int

	tick     clock.Tick
	sums     map[Phase]time.Duration
	counts   map[Phase]int
	started  map[Phase]time.Time
}

// NewProfiler returns a Profiler that logs a summary every flushEvery
// ticks (a flushEvery of 0 logs every tick).
func NewProfiler(log *slog.Logger, flushEvery int) *Profiler {
	if log == nil {
		log = slog.Default()
	}
	return &Profiler{
		log:        log,
		flushEvery: flushEvery,
		sums:       make(map[Phase]time.Duration),
		counts:     make(map[Phase]int),
		started:    make(map[Phase]time.Time),
	}
}

// Start records the beginning of a phase on the current tick.
func (p *Profiler) Start(phase Phase) {
	if p == nil {
		return
	}
	p.started[phase] = time.Now()
}

// End records the end of a phase started with Start, accumulating its
// duration into the phase's running totals, which are never reset.
func (p *Profiler) End(phase Phase) {
	if p == nil {
		return
	}
	start, ok := p.started[phase]
	if !ok {
		return
	}
	p.sums[phase] += time.Since(start)
	p.counts[phase]++
	delete(p.started, phase)
}

// RecordEntity persists a single entity's frameTick duration for this
// tick into sink, via WriteProfile, so per-entity profiling samples
// survive the run rather than only feeding the log-summary aggregate
// Start/End/Tick maintain. A nil Profiler or nil sink is a no-op.
func (p *Profiler) RecordEntity(sink Sink, now clock.Tick, id entity.ID, d time.Duration) {
	if p == nil || sink == nil {
		return
	}
	if err := sink.WriteProfile(now, id, d); err != nil {
		p.log.Warn("profiler: writing entity timing failed", "entity", id, "err", err)
	}
}

// Tick marks the end of a base tick, flushing a log summary once every
// flushEvery ticks.
func (p *Profiler) Tick(now clock.Tick) {
	if p == nil {
		return
	}
	p.tick = now
	if p.flushEvery > 0 && int64(now)%int64(p.flushEvery) != 0 {
		return
	}
	for phase, sum := range p.sums {
		count := p.counts[phase]
		if count == 0 {
			continue
		}
		p.log.Debug("tick phase timing", "tick", now, "phase", phase, "avg", sum/time.Duration(count), "samples", count)
	}
}
