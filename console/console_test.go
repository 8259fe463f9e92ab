package console

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/simmobility/kernel/clock"
)

type fakeManager struct {
	paused  bool
	stopped bool
	tick    clock.Tick
}

func (f *fakeManager) Pause()            { f.paused = true }
func (f *fakeManager) Resume()           { f.paused = false }
func (f *fakeManager) Stop()             { f.stopped = true }
func (f *fakeManager) IsPaused() bool    { return f.paused }
func (f *fakeManager) Tick() clock.Tick  { return f.tick }

func TestConsoleAppliesCommands(t *testing.T) {
	mgr := &fakeManager{}
	c := New(mgr, slog.Default()).WithReader(strings.NewReader("pause\nresume\nstop\n"))
	c.Run(context.Background())

	if !mgr.stopped {
		t.Fatalf("expected stop command to set stopped=true")
	}
	if mgr.paused {
		t.Fatalf("expected resume to clear paused before stop")
	}
}

func TestConsoleIgnoresBlankLinesAndUnknownCommands(t *testing.T) {
	mgr := &fakeManager{}
	c := New(mgr, slog.Default()).WithReader(strings.NewReader("\n  \nbogus\npause\n"))
	c.Run(context.Background())

	if !mgr.paused {
		t.Fatalf("expected pause to still apply after blank/unknown lines")
	}
}
