package aura

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/simmobility/kernel/entity"
)

// gridIndex is the default (RStar) implementation: agents are bucketed
// into fixed-size grid cells, hashed with fnv1a (§2D), the way the
// teacher's chunk-based World partitions block/entity lookups into fixed
// ChunkPos buckets. A range query visits only the cells the query
// rectangle overlaps, which keeps queries fast without the bookkeeping
// cost of rebalancing a true R*-tree every tick.
type gridIndex struct {
	cellSize float64
	cells    map[uint64][]Agent
}

const defaultCellSizeM = 20.0

func newGridIndex() *gridIndex {
	return &gridIndex{cellSize: defaultCellSizeM, cells: make(map[uint64][]Agent)}
}

func (g *gridIndex) cellKey(cx, cy int64) uint64 {
	// Fold the two cell coordinates into one fnv1a-hashed string key, the
	// way ChunkID/ChunkPos values get hashed for map lookups in the
	// teacher's redstone scheduler.
	var buf [16]byte
	putInt64(buf[:8], cx)
	putInt64(buf[8:], cy)
	return fnv1a.HashBytes64(buf[:])
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func (g *gridIndex) cellOf(p mgl64.Vec2) (int64, int64) {
	return int64(p.X() / g.cellSize), int64(p.Y() / g.cellSize)
}

func (g *gridIndex) Update(agents []Agent) {
	g.cells = make(map[uint64][]Agent, len(agents)/4+1)
	for _, a := range agents {
		cx, cy := g.cellOf(a.Pos)
		key := g.cellKey(cx, cy)
		g.cells[key] = append(g.cells[key], a)
	}
}

func (g *gridIndex) AgentsInRect(lo, hi mgl64.Vec2, self *entity.ID) []Agent {
	var out []Agent
	loX, loY := g.cellOf(lo)
	hiX, hiY := g.cellOf(hi)
	for cx := loX; cx <= hiX; cx++ {
		for cy := loY; cy <= hiY; cy++ {
			for _, a := range g.cells[g.cellKey(cx, cy)] {
				if self != nil && a.ID == *self {
					continue
				}
				if inRect(a.Pos, lo, hi) {
					out = append(out, a)
				}
			}
		}
	}
	return out
}

func (g *gridIndex) NearbyAgents(pos mgl64.Vec2, path Path, fwdM, backM float64, self *entity.ID) []Agent {
	r := path.Window(pos, fwdM, backM)
	return g.AgentsInRect(r.Lo, r.Hi, self)
}

func inRect(p, lo, hi mgl64.Vec2) bool {
	return p.X() >= lo.X() && p.X() <= hi.X() && p.Y() >= lo.Y() && p.Y() <= hi.Y()
}
