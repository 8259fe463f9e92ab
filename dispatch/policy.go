package dispatch

import "github.com/brentp/intintmap"

// GroupHandle and WorkerHandle index into the WorkGroupManager's owned
// groups and workers; dispatch stays decoupled from the workgroup
// package to avoid an import cycle (WorkGroupManager drives dispatch,
// not the other way around).
type GroupHandle int
type WorkerHandle int

// Target names the group/worker pair an assignment policy picked for a
// pending entity.
type Target struct {
	Group  GroupHandle
	Worker WorkerHandle
}

// Policy decides which WorkGroup and Worker a newly-eligible entity is
// assigned to (§4.6).
type Policy interface {
	Assign(p *Pending) Target
}

// RoundRobin is the default policy: a single group, workers visited in
// rotation.
type RoundRobin struct {
	Group        GroupHandle
	WorkerCount  int
	next         int
}

// NewRoundRobin returns a RoundRobin policy over the given group and
// worker count.
func NewRoundRobin(group GroupHandle, workerCount int) *RoundRobin {
	return &RoundRobin{Group: group, WorkerCount: workerCount}
}

func (r *RoundRobin) Assign(*Pending) Target {
	if r.WorkerCount <= 0 {
		return Target{Group: r.Group, Worker: 0}
	}
	w := r.next % r.WorkerCount
	r.next++
	return Target{Group: r.Group, Worker: WorkerHandle(w)}
}

// RegionPinned pins entities whose start node is known to the worker
// that owns that node's conflux (§4.6's "region-based policy"), falling
// back to round-robin for entities with no registered node. The
// node->worker map is backed by intintmap for O(1) lookups on the
// master's dispatch fast path (§2D), kept off the hot worker threads
// entirely.
type RegionPinned struct {
	Group    GroupHandle
	nodeToWk *intintmap.Map
	fallback *RoundRobin
}

// NewRegionPinned returns a RegionPinned policy. fallback handles any
// entity whose NodeID isn't registered via Pin.
func NewRegionPinned(group GroupHandle, fallback *RoundRobin) *RegionPinned {
	return &RegionPinned{Group: group, nodeToWk: intintmap.New(64, 0.6), fallback: fallback}
}

// Pin registers that entities starting at nodeID belong on the worker
// owning that node's conflux.
func (r *RegionPinned) Pin(nodeID int64, worker WorkerHandle) {
	r.nodeToWk.Put(nodeID, int64(worker))
}

// AssignNode is like Assign but takes the entity's start node explicitly,
// since Pending itself carries no road-network knowledge (§1's scope
// boundary: the road network is an external collaborator).
func (r *RegionPinned) AssignNode(p *Pending, nodeID int64) Target {
	if wk, ok := r.nodeToWk.Get(nodeID); ok {
		return Target{Group: r.Group, Worker: WorkerHandle(wk)}
	}
	return r.fallback.Assign(p)
}

func (r *RegionPinned) Assign(p *Pending) Target {
	return r.fallback.Assign(p)
}
