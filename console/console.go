// Package console implements §5's interactive controls: a small REPL
// that reads pause/resume/stop/status commands and applies them to a
// running workgroup.Manager, split between a piped-input scanner and an
// interactive go-prompt session, covering a four-command vocabulary.
package console

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	prompt "github.com/c-bata/go-prompt"

	"github.com/simmobility/kernel/clock"
)

const (
	defaultPromptPrefix = "sim> "
	maxHistoryEntries   = 128
)

// Manager is the narrow view of a workgroup.Manager the console needs.
// Declaring it here (rather than importing workgroup directly) keeps
// console usable against a fake in tests and avoids a dependency edge
// the cmd/simulate wiring doesn't otherwise need.
type Manager interface {
	Pause()
	Resume()
	Stop()
	IsPaused() bool
	Tick() clock.Tick
}

// Console reads commands from an io.Reader (os.Stdin by default) and
// applies them to the bound Manager.
type Console struct {
	mgr     Manager
	log     *slog.Logger
	reader  io.Reader
	history []string
}

// New returns a Console bound to mgr. The console reads from os.Stdin
// unless WithReader overrides it.
func New(mgr Manager, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{mgr: mgr, log: log, reader: os.Stdin}
}

// WithReader sets a custom input source, used to drive the console from
// a test or a script instead of a terminal.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// Run consumes commands until ctx is cancelled or the reader reaches
// EOF.
func (c *Console) Run(ctx context.Context) {
	if c.reader != os.Stdin {
		c.runScanner(ctx)
		return
	}
	c.runInteractive(ctx)
}

func (c *Console) runScanner(ctx context.Context) {
	scanner := bufio.NewScanner(c.reader)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.log.Error("console input error", "err", err)
			}
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.execute(line)
	}
}

func (c *Console) runInteractive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := prompt.Input(defaultPromptPrefix, c.complete,
			prompt.OptionTitle("SimMobility Kernel Console"),
			prompt.OptionHistory(c.history),
			prompt.OptionPrefix(defaultPromptPrefix),
			prompt.OptionCompletionOnDown(),
			prompt.OptionMaxSuggestion(uint16(len(commands))),
		)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.execute(line)
	}
}

var commands = []string{"pause", "resume", "stop", "status", "help"}

func (c *Console) complete(doc prompt.Document) []prompt.Suggest {
	word := strings.ToLower(doc.GetWordBeforeCursor())
	suggestions := make([]prompt.Suggest, 0, len(commands))
	for _, name := range commands {
		suggestions = append(suggestions, prompt.Suggest{Text: name})
	}
	return prompt.FilterHasPrefix(suggestions, word, true)
}

func (c *Console) execute(line string) {
	c.history = append(c.history, line)
	if len(c.history) > maxHistoryEntries {
		c.history = c.history[len(c.history)-maxHistoryEntries:]
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "pause":
		c.mgr.Pause()
		c.log.Info("run paused", "tick", c.mgr.Tick())
	case "resume":
		c.mgr.Resume()
		c.log.Info("run resumed", "tick", c.mgr.Tick())
	case "stop":
		c.mgr.Stop()
		c.log.Info("stop requested", "tick", c.mgr.Tick())
	case "status":
		c.log.Info("run status", "tick", c.mgr.Tick(), "paused", c.mgr.IsPaused())
	case "help":
		c.log.Info("available commands: pause, resume, stop, status")
	default:
		c.log.Warn("unrecognized console command", "line", line)
	}
}
