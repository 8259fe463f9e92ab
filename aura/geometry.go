package aura

import "github.com/go-gl/mathgl/mgl64"

// Rect is an axis-aligned bounding rectangle, lower-left/upper-right
// inclusive, in the same units as entity positions (meters, per §6).
type Rect struct {
	Lo, Hi mgl64.Vec2
}

// Contains reports whether p lies within the rectangle, inclusive of its
// boundary.
func (r Rect) Contains(p mgl64.Vec2) bool {
	return p.X() >= r.Lo.X() && p.X() <= r.Hi.X() && p.Y() >= r.Lo.Y() && p.Y() <= r.Hi.Y()
}

// Union returns the smallest rectangle containing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Lo: mgl64.Vec2{min(r.Lo.X(), o.Lo.X()), min(r.Lo.Y(), o.Lo.Y())},
		Hi: mgl64.Vec2{max(r.Hi.X(), o.Hi.X()), max(r.Hi.Y(), o.Hi.Y())},
	}
}

// Widen returns r expanded outward by d on every side.
func (r Rect) Widen(d float64) Rect {
	return Rect{
		Lo: mgl64.Vec2{r.Lo.X() - d, r.Lo.Y() - d},
		Hi: mgl64.Vec2{r.Hi.X() + d, r.Hi.Y() + d},
	}
}

func rectFromPoints(a, b mgl64.Vec2) Rect {
	return Rect{
		Lo: mgl64.Vec2{min(a.X(), b.X()), min(a.Y(), b.Y())},
		Hi: mgl64.Vec2{max(a.X(), b.X()), max(a.Y(), b.Y())},
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Path is the local polyline a querying agent travels along, used by
// NearbyAgents to compute a forward/backward window (§4.4).
type Path struct {
	// Points is the ordered polyline geometry, in travel direction.
	Points []mgl64.Vec2
	// LaneWidth is the width of the agent's current lane.
	LaneWidth float64
	// HasLeftNeighbor / HasRightNeighbor report whether an adjacent lane
	// exists on each side; a side without one contributes the 3m default
	// instead of LaneWidth/2. Window widens every side of the rectangle by
	// the larger of the two values, not each side by its own value.
	HasLeftNeighbor, HasRightNeighbor bool
}

const defaultLaneHalfWidthM = 3.0

// segmentWindow locates the point on the polyline closest to pos, then
// walks forward/backward along the polyline by exactly fwd/back meters of
// arc length, clamping at the polyline's ends (§4.4 steps 1-2: "it may
// over-include, never under-include"). The walk is arc-length exact even
// within a single segment: it does not round up to the segment's vertices,
// since a single-segment path would otherwise always return the whole
// polyline regardless of fwd/back.
func (p Path) segmentWindow(pos mgl64.Vec2, fwd, back float64) (mgl64.Vec2, mgl64.Vec2) {
	if len(p.Points) == 0 {
		return pos, pos
	}
	if len(p.Points) == 1 {
		return p.Points[0], p.Points[0]
	}
	idx := p.closestSegment(pos)
	anchor := closestPointOnSegment(pos, p.Points[idx], p.Points[idx+1])

	start := p.walkBack(idx, anchor, back)
	end := p.walkForward(idx, anchor, fwd)
	return start, end
}

// walkBack returns the point `dist` meters behind anchor (which lies on
// segment segIdx), following the polyline toward its start and clamping
// at Points[0] once the polyline runs out.
func (p Path) walkBack(segIdx int, anchor mgl64.Vec2, dist float64) mgl64.Vec2 {
	cur := anchor
	i := segIdx
	for {
		start := p.Points[i]
		segLen := cur.Sub(start).Len()
		if dist <= segLen || i == 0 {
			if segLen == 0 {
				return start
			}
			t := dist / segLen
			if t > 1 {
				t = 1
			}
			return cur.Add(start.Sub(cur).Mul(t))
		}
		dist -= segLen
		cur = start
		i--
	}
}

// walkForward is walkBack's mirror, following the polyline toward its end
// and clamping at the last point once the polyline runs out.
func (p Path) walkForward(segIdx int, anchor mgl64.Vec2, dist float64) mgl64.Vec2 {
	cur := anchor
	i := segIdx + 1
	for {
		end := p.Points[i]
		segLen := end.Sub(cur).Len()
		if dist <= segLen || i == len(p.Points)-1 {
			if segLen == 0 {
				return end
			}
			t := dist / segLen
			if t > 1 {
				t = 1
			}
			return cur.Add(end.Sub(cur).Mul(t))
		}
		dist -= segLen
		cur = end
		i++
	}
}

func (p Path) closestSegment(pos mgl64.Vec2) int {
	best, bestDist := 0, -1.0
	for i := 0; i < len(p.Points)-1; i++ {
		d := distToSegment(pos, p.Points[i], p.Points[i+1])
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func closestPointOnSegment(p, a, b mgl64.Vec2) mgl64.Vec2 {
	ab := b.Sub(a)
	denom := ab.Dot(ab)
	if denom == 0 {
		return a
	}
	t := p.Sub(a).Dot(ab) / denom
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return a.Add(ab.Mul(t))
}

func distToSegment(p, a, b mgl64.Vec2) float64 {
	return p.Sub(closestPointOnSegment(p, a, b)).Len()
}

// Window computes the widened query rectangle described by §4.4: locate
// the segment, extend fwd/back, then widen the axis-aligned rectangle on
// all four sides by one amount: half the lane width when both neighbor
// lanes exist, otherwise the 3m default. It does not widen the left and
// right sides by different amounts.
func (p Path) Window(pos mgl64.Vec2, fwd, back float64) Rect {
	a, b := p.segmentWindow(pos, fwd, back)
	r := rectFromPoints(a, b)

	left := defaultLaneHalfWidthM
	if p.HasLeftNeighbor {
		left = p.LaneWidth / 2
	}
	right := defaultLaneHalfWidthM
	if p.HasRightNeighbor {
		right = p.LaneWidth / 2
	}
	widen := max(left, right)
	return r.Widen(widen)
}
