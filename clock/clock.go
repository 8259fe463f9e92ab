// Package clock converts between simulation ticks and wall-clock-ish
// simulation time, and validates the granularity relationships the
// kernel's tick-stepped scheduler relies on.
package clock

import "fmt"

// Tick is a non-negative discrete frame number.
type Tick int64

// Granularity describes how a tick maps to milliseconds of simulated time.
type Granularity struct {
	// BaseMs is the base tick length in milliseconds. Every other
	// granularity in the system must be a whole multiple of it.
	BaseMs int64
}

// NewGranularity validates and returns a base Granularity.
func NewGranularity(baseMs int64) (Granularity, error) {
	if baseMs <= 0 {
		return Granularity{}, fmt.Errorf("clock: baseGranularityMs must be positive, got %d", baseMs)
	}
	return Granularity{BaseMs: baseMs}, nil
}

// ToMs converts a tick to simulation milliseconds.
func (g Granularity) ToMs(t Tick) int64 { return int64(t) * g.BaseMs }

// Ticks converts a millisecond duration into a whole number of base ticks.
// It reports ok=false and the truncated value when ms is not a multiple of
// the base granularity, matching §6's "truncated with a warning" rule.
func (g Granularity) Ticks(ms int64) (ticks Tick, ok bool) {
	return Tick(ms / g.BaseMs), ms%g.BaseMs == 0
}

// TickStep describes how many base ticks a worker advances per loop
// iteration. A tickStep of 1 advances in lock-step with the base clock.
type TickStep int64

// Validate checks that the step evenly divides the group's lifetime, per
// §3's "All tickSteps must divide evenly into the group's lifetime."
func (s TickStep) Validate(totalTicks Tick) error {
	if s < 1 {
		return fmt.Errorf("clock: tickStep must be >= 1, got %d", s)
	}
	if int64(totalTicks)%int64(s) != 0 {
		return fmt.Errorf("clock: tickStep %d does not evenly divide totalTicks %d", s, totalTicks)
	}
	return nil
}

// InWindow reports whether ms falls in the half-open [t*base, (t+1)*base)
// window of tick t under granularity g, the window of the pending-queue
// monotonicity property. The dispatcher does not call it: Queue.PopReady
// compares start times against the tick's start directly.
func (g Granularity) InWindow(t Tick, ms int64) bool {
	lo := g.ToMs(t)
	return ms >= lo && ms < lo+g.BaseMs
}
