package output

import (
	"testing"
	"time"

	"github.com/simmobility/kernel/clock"
	"github.com/simmobility/kernel/entity"
)

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	if err := sink.Write(clock.Tick(5), entity.ID(42), []byte("payload")); err != nil {
		t.Fatal(err)
	}
	got, err := sink.Read(clock.Tick(5), entity.ID(42))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q, want %q", got, "payload")
	}
}

func TestForEachInTickOnlyVisitsThatTick(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	sink.Write(clock.Tick(1), entity.ID(1), []byte("a"))
	sink.Write(clock.Tick(1), entity.ID(2), []byte("b"))
	sink.Write(clock.Tick(2), entity.ID(1), []byte("c"))

	var seen []entity.ID
	err = sink.ForEachInTick(clock.Tick(1), func(id entity.ID, payload []byte) bool {
		seen = append(seen, id)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 records at tick 1, got %d (%v)", len(seen), seen)
	}
}

func TestProfileRecordsDoNotLeakIntoOutputIteration(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	if err := sink.Write(clock.Tick(3), entity.ID(1), []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteProfile(clock.Tick(3), entity.ID(1), 42*time.Microsecond); err != nil {
		t.Fatal(err)
	}

	got, err := sink.Read(clock.Tick(3), entity.ID(1))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a" {
		t.Fatalf("profile write clobbered output record: got %q", got)
	}

	var seen int
	err = sink.ForEachInTick(clock.Tick(3), func(id entity.ID, payload []byte) bool {
		seen++
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if seen != 1 {
		t.Fatalf("expected exactly 1 output record at tick 3, got %d", seen)
	}
}
