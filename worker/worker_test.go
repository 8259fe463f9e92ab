package worker

import (
	"testing"

	"github.com/simmobility/kernel/buffer"
	"github.com/simmobility/kernel/clock"
	"github.com/simmobility/kernel/entity"
)

// counterEntity increments a buffered counter by one every frameTick,
// implementing scenario S1 from spec.md §8.
type counterEntity struct {
	*entity.Base
	counter    *buffer.Cell[int]
	ticksToRun int
	ticked     int
}

func newCounterEntity(id entity.ID) *counterEntity {
	c := buffer.NewCell(0)
	return &counterEntity{
		Base:    entity.NewBase(id, 0, false, c),
		counter: c,
	}
}

func (c *counterEntity) FrameInit(clock.Tick) {}
func (c *counterEntity) FrameTick(clock.Tick) entity.Status {
	c.ticked++
	c.counter.Set(c.counter.Get() + 1)
	return entity.Continue
}

func TestBasicTickCadence(t *testing.T) {
	w := New(Config{})
	e := newCounterEntity(1)
	w.ScheduleForAddition(e)
	w.DrainInboundAdditions(w)

	for tick := clock.Tick(1); tick <= 10; tick++ {
		w.FrameTick(tick)
		w.FlipBuffers()
		w.DrainRemovals()
	}

	if got := e.counter.Get(); got != 10 {
		t.Fatalf("expected counter to reach 10 after 10 ticks, got %d", got)
	}
	if e.ToBeRemoved() {
		t.Fatalf("entity should still be alive after 10 ticks")
	}
}

type doneAfterEntity struct {
	*entity.Base
	doneAt clock.Tick
}

func (d *doneAfterEntity) FrameInit(clock.Tick) {}
func (d *doneAfterEntity) FrameTick(now clock.Tick) entity.Status {
	if now >= d.doneAt {
		return entity.Done()
	}
	return entity.Continue
}

// TestCleanRemoval implements scenario S3 from spec.md §8.
func TestCleanRemoval(t *testing.T) {
	w := New(Config{})
	e := &doneAfterEntity{Base: entity.NewBase(1, 0, false), doneAt: 5}
	w.ScheduleForAddition(e)
	w.DrainInboundAdditions(w)

	for tick := clock.Tick(1); tick <= 5; tick++ {
		w.FrameTick(tick)
	}
	removed := w.DrainRemovals()
	if len(removed) != 1 {
		t.Fatalf("expected exactly one removal batch containing the entity, got %d", len(removed))
	}
	if w.Len() != 0 {
		t.Fatalf("expected worker to manage 0 entities after removal, got %d", w.Len())
	}
	if e.CurrentWorker() != nil {
		t.Fatalf("expected back-reference cleared on removal")
	}
}

type removeDuringInitEntity struct {
	*entity.Base
	frameTicked bool
}

func (r *removeDuringInitEntity) FrameInit(clock.Tick) { r.Remove() }
func (r *removeDuringInitEntity) FrameTick(clock.Tick) entity.Status {
	r.frameTicked = true
	return entity.Continue
}

func TestRemovalDuringFrameInitSkipsFrameTick(t *testing.T) {
	w := New(Config{})
	e := &removeDuringInitEntity{Base: entity.NewBase(1, 0, false)}
	w.ScheduleForAddition(e)
	w.DrainInboundAdditions(w)

	w.FrameTick(1)
	removed := w.DrainRemovals()
	if len(removed) != 1 {
		t.Fatalf("expected entity removed in the same tick as frameInit")
	}
	if e.frameTicked {
		t.Fatalf("entity must never receive frameTick when removed during frameInit")
	}
}

type multiUpdateEntity struct {
	*entity.Base
	runs int
}

func (m *multiUpdateEntity) FrameInit(clock.Tick) {}
func (m *multiUpdateEntity) FrameTick(clock.Tick) entity.Status {
	m.runs++
	return entity.Continue
}

func TestMultiUpdateEntityRunsTwice(t *testing.T) {
	w := New(Config{})
	conflux := &multiUpdateEntity{Base: entity.NewBase(1, 0, true)}
	w.ScheduleForAddition(conflux)
	w.DrainInboundAdditions(w)
	w.SetMultiUpdate(conflux)

	w.FrameTick(1)
	if conflux.runs != 2 {
		t.Fatalf("expected conflux frameTick to run twice per phase, got %d", conflux.runs)
	}
}

type panicEntity struct {
	*entity.Base
}

func (p *panicEntity) FrameInit(clock.Tick) {}
func (p *panicEntity) FrameTick(clock.Tick) entity.Status {
	panic("boom")
}

func TestNonStrictModeRetiresPanickingEntity(t *testing.T) {
	var caught error
	w := New(Config{OnError: func(_ *Worker, e entity.Entity, _ clock.Tick, err error) {
		caught = err
	}})
	e := &panicEntity{Base: entity.NewBase(1, 0, false)}
	w.ScheduleForAddition(e)
	w.DrainInboundAdditions(w)

	w.FrameTick(1)
	removed := w.DrainRemovals()
	if len(removed) != 1 {
		t.Fatalf("expected panicking entity to be scheduled for removal")
	}
	if caught == nil {
		t.Fatalf("expected OnError to be invoked in non-strict mode")
	}
}

func TestStrictModePropagatesPanic(t *testing.T) {
	w := New(Config{Strict: true})
	e := &panicEntity{Base: entity.NewBase(1, 0, false)}
	w.ScheduleForAddition(e)
	w.DrainInboundAdditions(w)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected strict mode to propagate the panic")
		}
	}()
	w.FrameTick(1)
}
