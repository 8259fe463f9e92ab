package aura

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/simmobility/kernel/entity"
)

func vec(x, y float64) mgl64.Vec2 { return mgl64.Vec2{x, y} }

// TestNearbyAgentsGeometry implements scenario S4 from spec.md §8: a
// straight east-west road, lanes 3m wide, querying agent E at the
// origin with fwd=10, back=5.
func TestNearbyAgentsGeometry(t *testing.T) {
	for _, kind := range []Kind{RStar, RTree, SimTree} {
		t.Run(kind.String(), func(t *testing.T) {
			idx := New(kind)

			self := entity.ID(0)
			path := Path{
				Points:           []mgl64.Vec2{vec(-50, 0), vec(50, 0)},
				LaneWidth:        3,
				HasLeftNeighbor:  true,
				HasRightNeighbor: true,
			}

			agents := []Agent{
				{ID: 0, Pos: vec(0, 0)},     // E itself
				{ID: 1, Pos: vec(8, 0)},     // inside: within fwd=10
				{ID: 2, Pos: vec(6, 4)},     // outside lane band
				{ID: 3, Pos: vec(6, -4)},    // outside lane band
				{ID: 4, Pos: vec(-4, 0)},    // inside: within back=5
				{ID: 5, Pos: vec(12, 0)},    // outside: beyond fwd=10
				{ID: 6, Pos: vec(100, 100)}, // far away
			}
			// widen is laneWidth/2 = 1.5m each side given neighbors on both
			// sides, so agents 2 and 3 (y=±4) fall outside the band and
			// agents at y=0 stay inside.
			idx.Update(agents)

			got := idx.NearbyAgents(vec(0, 0), path, 10, 5, &self)
			ids := map[entity.ID]bool{}
			for _, a := range got {
				ids[a.ID] = true
			}
			if ids[self] {
				t.Errorf("self %d must be excluded", self)
			}
			for _, want := range []entity.ID{1, 4} {
				if !ids[want] {
					t.Errorf("expected agent %d in result, got %v", want, ids)
				}
			}
			for _, unwanted := range []entity.ID{2, 3, 5, 6} {
				if ids[unwanted] {
					t.Errorf("agent %d should be excluded from result, got %v", unwanted, ids)
				}
			}
		})
	}
}

func TestAgentsInRectSelfExclusion(t *testing.T) {
	for _, kind := range []Kind{RStar, RTree, SimTree} {
		idx := New(kind)
		self := entity.ID(42)
		idx.Update([]Agent{{ID: self, Pos: vec(0, 0)}, {ID: 2, Pos: vec(1, 1)}})
		got := idx.AgentsInRect(vec(-10, -10), vec(10, 10), &self)
		for _, a := range got {
			if a.ID == self {
				t.Fatalf("%s: self-exclusion failed", kind)
			}
		}
	}
}

// TestUpdateIdempotent backs the round-trip property in spec.md §8:
// calling Update twice with the same positions yields the same results.
func TestUpdateIdempotent(t *testing.T) {
	for _, kind := range []Kind{RStar, RTree, SimTree} {
		idx := New(kind)
		agents := []Agent{{ID: 1, Pos: vec(0, 0)}, {ID: 2, Pos: vec(5, 5)}}
		idx.Update(agents)
		first := idx.AgentsInRect(vec(-10, -10), vec(10, 10), nil)
		idx.Update(agents)
		second := idx.AgentsInRect(vec(-10, -10), vec(10, 10), nil)
		if len(first) != len(second) {
			t.Fatalf("%s: non-idempotent update: %d vs %d results", kind, len(first), len(second))
		}
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{"rstar": RStar, "": RStar, "rtree": RTree, "simtree": SimTree, "packing-tree": PackingTree}
	for in, want := range cases {
		got, ok := ParseKind(in)
		if !ok || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v; want %v, true", in, got, ok, want)
		}
	}
	if _, ok := ParseKind("bogus"); ok {
		t.Fatalf("ParseKind(bogus) should fail")
	}
}
