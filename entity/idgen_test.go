package entity

import "testing"

func TestIDGeneratorAutoIdsMonotonic(t *testing.T) {
	g := NewIDGenerator(100)
	for i := int64(0); i < 5; i++ {
		if got := g.Next(); int64(got) != 100+i {
			t.Fatalf("expected auto id %d, got %d", 100+i, got)
		}
	}
}

func TestReservePreferredBelowAutoStartAlwaysLegal(t *testing.T) {
	g := NewIDGenerator(1000)
	id, err := g.Reserve(5)
	if err != nil || id != 5 {
		t.Fatalf("expected id 5 to be legal below autoIdStart, got %v, %v", id, err)
	}
}

func TestReservePreferredAheadOfCounterFastForwards(t *testing.T) {
	g := NewIDGenerator(100)
	id, err := g.Reserve(150)
	if err != nil || id != 150 {
		t.Fatalf("expected preferred id 150 to be reserved, got %v, %v", id, err)
	}
	if next := g.Next(); int64(next) <= 150 {
		t.Fatalf("auto counter must be fast-forwarded past reserved id, got %d", next)
	}
}

func TestReservePreferredCollidesWithIssuedID(t *testing.T) {
	g := NewIDGenerator(100)
	_ = g.Next() // issues 100
	if _, err := g.Reserve(100); err == nil {
		t.Fatalf("expected collision error when preferred id was already auto-issued")
	}
}
