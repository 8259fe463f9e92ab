// Package dispatch implements the pending-start priority queue and
// assignment policy of §4.6: entities wait here until their startTime
// arrives, at which point the master pops them and hands them to a
// WorkGroup/Worker pair.
package dispatch

import (
	"container/heap"

	"github.com/simmobility/kernel/entity"
)

// Pending describes an entity waiting for its start time to arrive.
type Pending struct {
	Entity      entity.Entity
	StartTimeMs int64
	// PreferredID, if non-nil, is the id the entity asked for. The queue
	// and the workgroup dispatcher carry it without checking it; the
	// collision check is entity.IDGenerator.Reserve, which they do not call.
	PreferredID *entity.ID

	seq   int
	index int
}

// Queue is a min-heap on StartTimeMs, ties broken by insertion order
// (§3's pending-start priority queue).
type Queue struct {
	items []*Pending
	seq   int
}

// NewQueue returns an empty pending queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues a pending entity.
func (q *Queue) Push(p *Pending) {
	p.seq = q.seq
	q.seq++
	heap.Push((*queueHeap)(q), p)
}

// Len reports how many entities are still waiting.
func (q *Queue) Len() int { return len(q.items) }

// PopReady removes and returns, in startTime order, every pending entry
// whose StartTimeMs is at most nowMs.
func (q *Queue) PopReady(nowMs int64) []*Pending {
	var ready []*Pending
	for len(q.items) > 0 && q.items[0].StartTimeMs <= nowMs {
		ready = append(ready, heap.Pop((*queueHeap)(q)).(*Pending))
	}
	return ready
}

// Peek returns the next entry to become ready without removing it, or
// nil if the queue is empty.
func (q *Queue) Peek() *Pending {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

type queueHeap Queue

func (h *queueHeap) Len() int { return len(h.items) }
func (h *queueHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.StartTimeMs != b.StartTimeMs {
		return a.StartTimeMs < b.StartTimeMs
	}
	return a.seq < b.seq
}
func (h *queueHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index, h.items[j].index = i, j
}
func (h *queueHeap) Push(x any) {
	p := x.(*Pending)
	p.index = len(h.items)
	h.items = append(h.items, p)
}
func (h *queueHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
