package workgroup

import (
	"context"
	"testing"
	"time"

	"github.com/simmobility/kernel/buffer"
	"github.com/simmobility/kernel/clock"
	"github.com/simmobility/kernel/entity"
)

// readerEntity reads another entity's buffered cell every frameTick and
// records what it saw, implementing scenario S5 from spec.md §8: no
// worker may ever observe a neighbor's staged-but-not-yet-flipped value.
type readerEntity struct {
	*entity.Base
	peek func() int
	seen []int
}

func (r *readerEntity) FrameInit(clock.Tick) {}
func (r *readerEntity) FrameTick(clock.Tick) entity.Status {
	r.seen = append(r.seen, r.peek())
	return entity.Continue
}

// writerEntity increments a shared buffered cell by a fixed amount every
// frameTick, staging the new value until the next flip.
type writerEntity struct {
	*entity.Base
	cell *buffer.Cell[int]
}

func (w *writerEntity) FrameInit(clock.Tick) {}
func (w *writerEntity) FrameTick(clock.Tick) entity.Status {
	w.cell.Set(w.cell.Get() + 10)
	return entity.Continue
}

func TestSingleThreadedBufferIsolationAcrossWorkers(t *testing.T) {
	mgr := New(Config{SingleThreaded: true, TotalTicks: 5})
	g, err := mgr.CreateWorkGroup(GroupSpec{Name: "person", NumWorkers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.InitAllGroups(); err != nil {
		t.Fatal(err)
	}

	shared := buffer.NewCell(0)
	writer := &writerEntity{Base: entity.NewBase(1, 0, true, shared), cell: shared}
	reader := &readerEntity{Base: entity.NewBase(2, 0, true), peek: func() int { return shared.Get() }}

	g.Worker(0).ScheduleForAddition(writer)
	g.Worker(1).ScheduleForAddition(reader)
	g.Worker(0).DrainInboundAdditions(g.Worker(0))
	g.Worker(1).DrainInboundAdditions(g.Worker(1))

	for i := 0; i < 5; i++ {
		if err := mgr.WaitAllGroups(); err != nil {
			t.Fatal(err)
		}
	}

	// After 5 ticks the reader must have seen 0,10,20,30,40: one tick
	// behind the writer, never the value the writer staged in the same
	// tick it read it.
	want := []int{0, 10, 20, 30, 40}
	if len(reader.seen) != len(want) {
		t.Fatalf("expected %d observations, got %d", len(want), len(reader.seen))
	}
	for i, v := range want {
		if reader.seen[i] != v {
			t.Fatalf("tick %d: expected reader to observe %d, got %d", i, v, reader.seen[i])
		}
	}
}

// stepperEntity counts how many times its FrameTick actually ran.
type stepperEntity struct {
	*entity.Base
	runs int
}

func (s *stepperEntity) FrameInit(clock.Tick) {}
func (s *stepperEntity) FrameTick(clock.Tick) entity.Status {
	s.runs++
	return entity.Continue
}

// TestSingleAndMultiThreadedCadenceAgree implements scenario S6 from
// spec.md §8: the same entity, ticked the same number of times, ends up
// in the same observable state whether the run used single-threaded
// debug mode or real worker goroutines and barriers.
func TestSingleAndMultiThreadedCadenceAgree(t *testing.T) {
	runST := func() int {
		mgr := New(Config{SingleThreaded: true, TotalTicks: 8})
		g, err := mgr.CreateWorkGroup(GroupSpec{Name: "person", NumWorkers: 3})
		if err != nil {
			t.Fatal(err)
		}
		if err := mgr.InitAllGroups(); err != nil {
			t.Fatal(err)
		}
		e := &stepperEntity{Base: entity.NewBase(1, 0, true)}
		g.Worker(0).ScheduleForAddition(e)
		g.Worker(0).DrainInboundAdditions(g.Worker(0))
		for i := 0; i < 8; i++ {
			if err := mgr.WaitAllGroups(); err != nil {
				t.Fatal(err)
			}
		}
		return e.runs
	}

	runMT := func() int {
		mgr := New(Config{TotalTicks: 8})
		g, err := mgr.CreateWorkGroup(GroupSpec{Name: "person", NumWorkers: 3})
		if err != nil {
			t.Fatal(err)
		}
		if err := mgr.InitAllGroups(); err != nil {
			t.Fatal(err)
		}
		e := &stepperEntity{Base: entity.NewBase(1, 0, true)}
		g.Worker(0).ScheduleForAddition(e)
		g.Worker(0).DrainInboundAdditions(g.Worker(0))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mgr.StartAllGroups(ctx); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 8; i++ {
			if err := mgr.WaitAllGroups(); err != nil {
				t.Fatal(err)
			}
		}
		if err := mgr.WaitShutdown(); err != nil {
			t.Fatal(err)
		}
		return e.runs
	}

	st := runST()
	mt := runMT()
	if st != mt {
		t.Fatalf("single-threaded ran entity %d times, multi-threaded %d times", st, mt)
	}
	if st != 8 {
		t.Fatalf("expected exactly 8 frameTick calls over 8 base ticks, got %d", st)
	}
}

// TestBarrierParticipantCountMatchesWorkerTotal implements the §5
// barrier-count invariant: the shared barriers must require exactly
// sum(numWorkers across every group)+1 arrivals, never deadlocking or
// releasing early as groups of different sizes are mixed.
func TestBarrierParticipantCountMatchesWorkerTotal(t *testing.T) {
	mgr := New(Config{TotalTicks: 3})
	g1, _ := mgr.CreateWorkGroup(GroupSpec{Name: "person", NumWorkers: 2})
	g2, _ := mgr.CreateWorkGroup(GroupSpec{Name: "signal", NumWorkers: 1})
	if err := mgr.InitAllGroups(); err != nil {
		t.Fatal(err)
	}

	e1 := &stepperEntity{Base: entity.NewBase(1, 0, true)}
	e2 := &stepperEntity{Base: entity.NewBase(2, 0, true)}
	g1.Worker(0).ScheduleForAddition(e1)
	g1.Worker(0).DrainInboundAdditions(g1.Worker(0))
	g2.Worker(0).ScheduleForAddition(e2)
	g2.Worker(0).DrainInboundAdditions(g2.Worker(0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.StartAllGroups(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		done := make(chan error, 1)
		go func() { done <- mgr.WaitAllGroups() }()
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("WaitAllGroups deadlocked on tick %d: barrier participant count is wrong", i)
		}
	}
	if err := mgr.WaitShutdown(); err != nil {
		t.Fatal(err)
	}
	if e1.runs != 3 || e2.runs != 3 {
		t.Fatalf("expected both groups' entities ticked 3 times, got %d and %d", e1.runs, e2.runs)
	}
}
