package dispatch

import "testing"

func TestQueueOrdersByStartTimeThenInsertion(t *testing.T) {
	q := NewQueue()
	q.Push(&Pending{StartTimeMs: 700})
	q.Push(&Pending{StartTimeMs: 300})
	q.Push(&Pending{StartTimeMs: 300})

	ready := q.PopReady(300)
	if len(ready) != 2 {
		t.Fatalf("expected 2 ready entries at t=300, got %d", len(ready))
	}
	if ready[0].StartTimeMs != 300 || ready[1].StartTimeMs != 300 {
		t.Fatalf("expected both 300ms entries first")
	}

	if q.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", q.Len())
	}
	ready = q.PopReady(700)
	if len(ready) != 1 || ready[0].StartTimeMs != 700 {
		t.Fatalf("expected the 700ms entry to pop once its time arrives")
	}
}

// TestDispatchAtStartTime implements scenario S2 from spec.md §8.
func TestDispatchAtStartTime(t *testing.T) {
	const base = 100
	q := NewQueue()
	q.Push(&Pending{StartTimeMs: 300})
	q.Push(&Pending{StartTimeMs: 700})

	for now := int64(0); now < 300; now += base {
		if len(q.PopReady(now)) != 0 {
			t.Fatalf("nothing should be ready before startTime at now=%d", now)
		}
	}
	ready := q.PopReady(300)
	if len(ready) != 1 {
		t.Fatalf("entity A should become ready exactly at now=300")
	}
	if len(q.PopReady(600)) != 0 {
		t.Fatalf("entity B must not be ready before now=700")
	}
	if len(q.PopReady(700)) != 1 {
		t.Fatalf("entity B should become ready exactly at now=700")
	}
}
