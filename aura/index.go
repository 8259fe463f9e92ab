// Package aura implements the kernel's spatial index — the "Aura
// Manager" of §4.4: a per-tick-rebuilt 2D index answering the
// range/neighbor queries the (out-of-scope) car-following and
// lane-changing models need. It is read-only during frameTick and is
// rebuilt from scratch, each tick, from the current (post-flip)
// positions of every spatial entity.
package aura

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/simmobility/kernel/entity"
)

// Agent is the minimal view of an entity the index needs: its id (for
// self-exclusion) and its current position.
type Agent struct {
	ID  entity.ID
	Pos mgl64.Vec2
}

// Kind selects which Index implementation to build, matching §6's
// auraManagerImplementation enum. PackingTree is accepted for config
// compatibility and currently aliases SimTree: both favor the
// mostly-one-dimensional layout of road traffic.
type Kind int

const (
	RStar Kind = iota
	RTree
	SimTree
	PackingTree
)

func (k Kind) String() string {
	switch k {
	case RStar:
		return "rstar"
	case RTree:
		return "rtree"
	case SimTree:
		return "simtree"
	case PackingTree:
		return "packing-tree"
	default:
		return "unknown"
	}
}

// ParseKind maps a config string to a Kind, per §6's enum.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "rstar", "":
		return RStar, true
	case "rtree":
		return RTree, true
	case "simtree":
		return SimTree, true
	case "packing-tree":
		return PackingTree, true
	default:
		return 0, false
	}
}

// Index answers the two query families of §4.4. All three required
// implementations (R*-tree, R-tree, simtree) share this interface so the
// kernel can swap between them via config without touching call sites.
type Index interface {
	// Update rebuilds the index from scratch from the given agents. The
	// kernel calls this once per tick, after flip, with the set of
	// currently-alive, non-non-spatial agents (§4.4's update contract;
	// removedEntities has already been excluded by the caller).
	Update(agents []Agent)

	// AgentsInRect returns every indexed agent whose position falls
	// within [lo, hi], excluding self if it is non-nil.
	AgentsInRect(lo, hi mgl64.Vec2, self *entity.ID) []Agent

	// NearbyAgents returns agents within the path-relative window
	// described by §4.4, excluding self if non-nil.
	NearbyAgents(pos mgl64.Vec2, path Path, fwdM, backM float64, self *entity.ID) []Agent
}

// New constructs the Index implementation selected by kind.
func New(kind Kind) Index {
	switch kind {
	case RTree:
		return newBulkRTree()
	case SimTree, PackingTree:
		return newSimTree()
	default:
		return newGridIndex()
	}
}
