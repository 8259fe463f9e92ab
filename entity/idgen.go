package entity

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// IDGenerator is the kernel's only acceptable piece of process-wide
// mutable state (§9): a single atomic counter handing out monotonic
// entity ids, mirroring the original's "Agent::nextId global" (§5).
type IDGenerator struct {
	next      atomic.Int64
	autoStart int64
	reserved  sync.Map // preferred ids below autoStart already handed out
}

// NewIDGenerator returns a generator whose auto-assigned ids start at
// autoIDStart (§6's autoIdStart config option).
func NewIDGenerator(autoIDStart int64) *IDGenerator {
	g := &IDGenerator{autoStart: autoIDStart}
	g.next.Store(autoIDStart)
	return g
}

// Next returns the next auto-assigned id.
func (g *IDGenerator) Next() ID {
	return ID(g.next.Add(1) - 1)
}

// AutoStart returns the configured minimum auto-assigned id.
func (g *IDGenerator) AutoStart() int64 { return g.autoStart }

// Reserve validates a caller-supplied preferred id against the
// auto-assigned range and, if it is clear of any id the auto counter has
// already issued or will issue, returns it unchanged. It must be called
// only from the master thread during dispatch (§5, §7 "Dispatch error").
//
// A preferred id is legal if it is strictly below autoIdStart (the
// caller is using its own disjoint id space) or if it happens to equal
// an id the auto counter would itself produce; what's actually enforced
// is id uniqueness (§8): never hand out the same id twice.
func (g *IDGenerator) Reserve(preferred ID) (ID, error) {
	if int64(preferred) < g.autoStart {
		if _, dup := g.reserved.LoadOrStore(preferred, struct{}{}); dup {
			return 0, fmt.Errorf("entity: preferred id %d was already reserved", preferred)
		}
		return preferred, nil
	}
	if int64(preferred) >= g.next.Load() {
		// Fast-forward the auto counter past the reserved id so no later
		// auto-assignment can collide with it.
		for {
			cur := g.next.Load()
			if int64(preferred) < cur {
				break
			}
			if g.next.CompareAndSwap(cur, int64(preferred)+1) {
				return preferred, nil
			}
		}
		return preferred, nil
	}
	return 0, fmt.Errorf("entity: preferred id %d collides with the auto-assigned range starting at %d", preferred, g.autoStart)
}
