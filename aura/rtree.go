package aura

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/simmobility/kernel/entity"
)

// bulkRTree is the RTree implementation: §4.4 describes it as
// "bulk-loaded each tick, faster rebuild slower query" relative to the
// default. Update is O(1) — it keeps the caller's slice, no copy and no
// tree balancing — and
// every query is a linear scan; the trade-off is a simpler rebuild at
// the cost of query time, exactly the documented characteristic.
type bulkRTree struct {
	agents []Agent
}

func newBulkRTree() *bulkRTree {
	return &bulkRTree{}
}

func (t *bulkRTree) Update(agents []Agent) {
	t.agents = agents
}

func (t *bulkRTree) AgentsInRect(lo, hi mgl64.Vec2, self *entity.ID) []Agent {
	var out []Agent
	for _, a := range t.agents {
		if self != nil && a.ID == *self {
			continue
		}
		if inRect(a.Pos, lo, hi) {
			out = append(out, a)
		}
	}
	return out
}

func (t *bulkRTree) NearbyAgents(pos mgl64.Vec2, path Path, fwdM, backM float64, self *entity.ID) []Agent {
	r := path.Window(pos, fwdM, backM)
	return t.AgentsInRect(r.Lo, r.Hi, self)
}
