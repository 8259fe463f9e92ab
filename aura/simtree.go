package aura

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/simmobility/kernel/entity"
)

// simTree is optimized for the "mostly-1D layout of road traffic" §4.4
// calls for: agents are kept sorted by their X coordinate, and a range
// query binary-searches the X band before falling back to a linear
// Y/bounds check on the (typically short) candidate slice. Most traffic
// queries are narrow in X (a stretch of road) and wide enough in Y to
// only need the sort, not a second dimension of indexing.
type simTree struct {
	agents []Agent // sorted by Pos.X()
}

func newSimTree() *simTree {
	return &simTree{}
}

func (t *simTree) Update(agents []Agent) {
	t.agents = append([]Agent(nil), agents...)
	sort.Slice(t.agents, func(i, j int) bool { return t.agents[i].Pos.X() < t.agents[j].Pos.X() })
}

func (t *simTree) band(loX, hiX float64) []Agent {
	lo := sort.Search(len(t.agents), func(i int) bool { return t.agents[i].Pos.X() >= loX })
	hi := sort.Search(len(t.agents), func(i int) bool { return t.agents[i].Pos.X() > hiX })
	if lo >= hi {
		return nil
	}
	return t.agents[lo:hi]
}

func (t *simTree) AgentsInRect(lo, hi mgl64.Vec2, self *entity.ID) []Agent {
	var out []Agent
	for _, a := range t.band(lo.X(), hi.X()) {
		if self != nil && a.ID == *self {
			continue
		}
		if a.Pos.Y() >= lo.Y() && a.Pos.Y() <= hi.Y() {
			out = append(out, a)
		}
	}
	return out
}

func (t *simTree) NearbyAgents(pos mgl64.Vec2, path Path, fwdM, backM float64, self *entity.ID) []Agent {
	r := path.Window(pos, fwdM, backM)
	return t.AgentsInRect(r.Lo, r.Hi, self)
}
