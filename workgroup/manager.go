package workgroup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/simmobility/kernel/aura"
	"github.com/simmobility/kernel/bus"
	"github.com/simmobility/kernel/clock"
	"github.com/simmobility/kernel/dispatch"
	"github.com/simmobility/kernel/entity"
	"github.com/simmobility/kernel/output"
	"github.com/simmobility/kernel/worker"
)

// GroupSpec describes a WorkGroup at creation time (§6's per-group
// config surface: numWorkers and granularityMs, the latter expressed
// here as a TickStep already resolved against the run's base
// granularity).
type GroupSpec struct {
	Name        string
	NumWorkers  int
	TickStep    clock.TickStep
	Strict      bool
	RegionOrder []int64 // optional: node ids to pin, in worker-rotation order
}

// Manager is the WorkGroupManager of §4.1: it owns every WorkGroup, the
// three barriers they share, the Aura Manager, and the Message Bus, and
// drives exactly one base tick per WaitAllGroups call.
type Manager struct {
	log    *slog.Logger
	strict bool
	gran   clock.Granularity

	single bool // single-threaded debug mode: no goroutines, no barriers

	// dynamicDispatchDisabled implements §6: every group created by this
	// Manager skips the pending-start queue and assigns agents to a
	// worker the moment they're enqueued.
	dynamicDispatchDisabled bool

	output      output.Sink
	profile     bool
	profiler    *output.Profiler
	warmupTicks clock.Tick

	groups []*WorkGroup

	shared worker.Barriers
	gFrame *barrier
	gFlip  *barrier
	gMsg   *barrier

	bus  *bus.Bus
	idx  aura.Index
	ids  *entity.IDGenerator

	totalTicks clock.Tick
	tick       clock.Tick

	initialized bool
	started     bool

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	mu      sync.Mutex
	paused  bool
	// stopAt is the tick at which the run should end once Stop is
	// called: now+2, giving in-flight multi-update entities a chance to
	// finish (§5's "a stop flag that sets endTick = now + 2"). A zero
	// value (the default) means no stop has been requested.
	stopAt clock.Tick

	// busUnregister tears down the master's own bus registration,
	// installed by InitAllGroups (§4.1: "registers the main thread with
	// the message bus") and called by WaitShutdown.
	busUnregister func()
}

// Config configures a Manager at construction.
type Config struct {
	Log            *slog.Logger
	SingleThreaded bool
	Strict         bool
	TotalTicks     clock.Tick
	Granularity    clock.Granularity
	AuraKind       aura.Kind
	AutoIDStart    int64

	// DynamicDispatchDisabled implements §6's "if true, no pending queue
	// is used and all agents start at tick 0."
	DynamicDispatchDisabled bool

	// WarmupTicks suppresses FrameOutput during [0, WarmupTicks) while
	// frameTick still runs normally (§3S's warm-up period).
	WarmupTicks clock.Tick

	// Output, if non-nil, receives every worker's FrameOutput records
	// and, when Profile is true, per-entity frameTick timing samples
	// (§6, §3S).
	Output  output.Sink
	Profile bool
}

// New returns a Manager with no groups yet; call CreateWorkGroup for
// each group, then InitAllGroups before StartAllGroups/WaitAllGroups.
func New(cfg Config) *Manager {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Granularity.BaseMs == 0 {
		cfg.Granularity.BaseMs = 100
	}
	var profiler *output.Profiler
	if cfg.Profile && cfg.Output != nil {
		profiler = output.NewProfiler(cfg.Log, 100)
	}
	return &Manager{
		log:                     cfg.Log,
		strict:                  cfg.Strict,
		single:                  cfg.SingleThreaded,
		gran:                    cfg.Granularity,
		dynamicDispatchDisabled: cfg.DynamicDispatchDisabled,
		output:                  cfg.Output,
		profile:                 cfg.Profile,
		profiler:                profiler,
		warmupTicks:             cfg.WarmupTicks,
		bus:                     bus.New(),
		idx:                     aura.New(cfg.AuraKind),
		ids:                     entity.NewIDGenerator(cfg.AutoIDStart),
		totalTicks:              cfg.TotalTicks,
	}
}

// Bus returns the shared message bus, for entities/handlers to register
// against before the run starts.
func (m *Manager) Bus() *bus.Bus { return m.bus }

// HandleMessage satisfies bus.Handler: the master thread is itself a bus
// participant (§4.1, §4.5), registered by InitAllGroups. The kernel has
// no master-addressed payload of its own to interpret, so a delivered
// message is just logged.
func (m *Manager) HandleMessage(msg bus.Message) {
	m.log.Debug("master thread received bus message", "type", msg.Type, "from", msg.From)
}

// IDs returns the shared entity id generator.
func (m *Manager) IDs() *entity.IDGenerator { return m.ids }

// Tick reports how many base ticks have completed, which is also the
// tick the next WaitAllGroups call will run.
func (m *Manager) Tick() clock.Tick { return m.tick }

// Granularity returns the run's base tick granularity, needed by callers
// to convert an entity's startTimeMs before enqueueing it.
func (m *Manager) Granularity() clock.Granularity { return m.gran }

// CreateWorkGroup allocates a new WorkGroup per spec (§4.1's
// createWorkGroup). Must be called before InitAllGroups.
func (m *Manager) CreateWorkGroup(spec GroupSpec) (*WorkGroup, error) {
	if m.initialized {
		return nil, fmt.Errorf("workgroup: cannot create group %q after InitAllGroups", spec.Name)
	}
	if spec.NumWorkers <= 0 {
		return nil, fmt.Errorf("workgroup: group %q needs at least one worker", spec.Name)
	}
	step := spec.TickStep
	if step < 1 {
		step = 1
	}
	g := &WorkGroup{
		name:                    spec.Name,
		tickStep:                step,
		pending:                 dispatch.NewQueue(),
		dynamicDispatchDisabled: m.dynamicDispatchDisabled,
	}
	for i := 0; i < spec.NumWorkers; i++ {
		g.workers = append(g.workers, worker.New(worker.Config{
			Index:    i,
			Log:      m.log.With("group", spec.Name, "worker", i),
			Strict:   spec.Strict || m.strict,
			OnError:  m.onWorkerError,
			Output:   m.output,
			Profile:  m.profile,
			Profiler: m.profiler,
			Bus:      m.bus,
		}))
	}
	gh := dispatch.GroupHandle(len(m.groups))
	g.policy = dispatch.NewRoundRobin(gh, spec.NumWorkers)
	if step > 1 {
		g.macro = newBarrier(spec.NumWorkers + 1)
	}
	m.groups = append(m.groups, g)
	return g, nil
}

func (m *Manager) onWorkerError(w *worker.Worker, e entity.Entity, now clock.Tick, err error) {
	m.log.Error("entity frameTick failed", "worker", w.Index(), "entity", e.ID(), "tick", now, "err", err)
}

// InitAllGroups computes the shared barrier participant count
// (sum(numWorkers)+1, §4.1/§5) and allocates the three shared barriers.
// Calling it twice, or with no groups created, returns an error, as does
// CreateWorkGroup once it has run.
func (m *Manager) InitAllGroups() error {
	if m.initialized {
		return fmt.Errorf("workgroup: InitAllGroups already called")
	}
	if len(m.groups) == 0 {
		return fmt.Errorf("workgroup: no work groups created")
	}
	total := 0
	for _, g := range m.groups {
		if err := g.validate(); err != nil {
			return err
		}
		total += len(g.workers)
	}
	participants := total + 1 // +1 for the master
	m.gFrame = newBarrier(participants)
	m.gFlip = newBarrier(participants)
	m.gMsg = newBarrier(participants)
	m.shared = worker.Barriers{FrameTick: m.gFrame, Flip: m.gFlip, MsgDistrib: m.gMsg}

	_, m.busUnregister = m.bus.Register(m)
	if m.single {
		// Single-threaded mode has no per-worker goroutine to bracket
		// with EnterBus/ExitBus at thread entry/exit, so every worker
		// registers once here, for the lifetime of the run.
		for _, g := range m.groups {
			for _, w := range g.workers {
				w.EnterBus()
			}
		}
	}

	m.initialized = true
	return nil
}

// StartAllGroups launches one goroutine per worker across every group
// (§4.1's startAllGroups), launched and later joined through an
// errgroup. A panic on a worker goroutine (strict mode) is not recovered
// here and ends the process. In single-threaded mode this is a no-op: WaitAllGroups
// drives every worker directly on the caller's goroutine instead.
func (m *Manager) StartAllGroups(ctx context.Context) error {
	if !m.initialized {
		return fmt.Errorf("workgroup: InitAllGroups must run before StartAllGroups")
	}
	if m.started {
		return fmt.Errorf("workgroup: StartAllGroups already called")
	}
	m.started = true
	if m.single {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	eg, egCtx := errgroup.WithContext(runCtx)
	m.eg = eg

	end := func(now clock.Tick) bool {
		if now >= m.totalTicks {
			return true
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.stopAt != 0 && now >= m.stopAt
	}
	for _, g := range m.groups {
		for _, w := range g.workers {
			w := w
			cfg := g.runConfig(m.shared, end, m.emitOutput)
			eg.Go(func() error {
				w.Run(egCtx, cfg)
				return nil
			})
		}
	}
	return nil
}

// emitOutput reports whether FrameOutput records should be written for
// base tick now, implementing §3S's warm-up suppression: frameTick
// still runs during warm-up, but frameOutput does not.
func (m *Manager) emitOutput(now clock.Tick) bool { return now >= m.warmupTicks }

// WaitAllGroups drives exactly one base tick to completion (§4.1). In
// multi-threaded mode this means: arrive at the three shared barriers in
// order, doing the master-only work (removal-list draining, message
// distribution, aura rebuild) in the window between the flip and
// message-distribution barriers, exactly where the worker-side
// pseudocode leaves no work of its own to interleave with. In
// single-threaded mode it instead drives every worker's phases directly,
// serially, in group-then-worker order.
func (m *Manager) WaitAllGroups() error {
	if !m.initialized {
		return fmt.Errorf("workgroup: InitAllGroups must run before WaitAllGroups")
	}
	if m.tick >= m.totalTicks {
		return fmt.Errorf("workgroup: run already completed its %d configured ticks", m.totalTicks)
	}
	if m.pastStopTick() {
		return fmt.Errorf("workgroup: run already ended by a stop request at tick %d", m.tick)
	}
	now := m.tick

	m.dispatchAllGroups(now)

	if m.single {
		var removed []entity.Entity
		for _, g := range m.groups {
			removed = append(removed, g.runSingleThreaded(now, m.emitOutput(now))...)
		}
		m.finishTick(removed)
		m.tick++
		return nil
	}

	m.gFrame.Wait()
	m.gFlip.Wait()

	var removed []entity.Entity
	for _, g := range m.groups {
		removed = append(removed, g.drainRemovalList()...)
	}
	m.finishTick(removed)

	m.gMsg.Wait()
	for _, g := range m.groups {
		if g.macro != nil && g.due(now) {
			g.macro.Wait()
		}
	}

	m.tick++
	return nil
}

// dispatchAllGroups pops every pending entity whose start time has
// arrived (in every group's queue) and hands it to that group's
// assignment policy, before the tick's frameTick phase begins (§4.5,
// §4.6).
func (m *Manager) dispatchAllGroups(now clock.Tick) {
	nowMs := m.gran.ToMs(now)
	for _, g := range m.groups {
		g.dispatchReady(nowMs)
	}
}

// finishTick runs the master-only work that must happen after every
// worker has flipped but before the message-distribution barrier
// releases the workers: delete removed entities (§4.1: "the only point at which delete is
// called"), distribute the message bus, and rebuild the Aura Manager
// from the resulting live, spatial population (§4.4).
func (m *Manager) finishTick(removed []entity.Entity) {
	for _, e := range removed {
		m.log.Debug("entity removed", "entity", e.ID())
	}
	m.bus.DistributeMessages()

	var agents []aura.Agent
	for _, g := range m.groups {
		for _, w := range g.workers {
			for _, e := range w.Snapshot() {
				if e.IsNonspatial() {
					continue
				}
				agents = append(agents, aura.Agent{ID: e.ID(), Pos: e.Position()})
			}
		}
	}
	m.idx.Update(agents)
}

// AuraIndex returns the current Aura Manager, valid to query between
// WaitAllGroups calls (read-only during frameTick, per §4.4).
func (m *Manager) AuraIndex() aura.Index { return m.idx }

// WaitShutdown blocks until every worker goroutine launched by
// StartAllGroups has returned. Worker goroutines always return nil, so
// the returned error is nil once they have all exited.
func (m *Manager) WaitShutdown() error {
	defer func() {
		if m.busUnregister != nil {
			m.busUnregister()
		}
	}()

	if m.single {
		for _, g := range m.groups {
			for _, w := range g.workers {
				w.ExitBus()
			}
		}
		return nil
	}
	if m.eg == nil {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	return m.eg.Wait()
}

// Pause and Resume implement §5's interactive controls: a paused run
// stops calling WaitAllGroups between ticks. The Manager itself does not
// poll this flag — the caller's tick-driving loop (cmd/simulate) checks
// IsPaused before each WaitAllGroups call.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
}

func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Stop requests an early, clean end to the run: per §5, it sets
// endTick = now + 2, giving any entity mid multi-tick update a grace
// round to finish before every worker exits its loop at the next
// barrier set it reaches at or past endTick. Calling Stop more than
// once only tightens the grace window if called again before it
// elapses; it never extends a window already in effect.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.tick + 2
	if m.stopAt == 0 || at < m.stopAt {
		m.stopAt = at
	}
}

func (m *Manager) pastStopTick() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopAt != 0 && m.tick >= m.stopAt
}

// IsStopped reports whether a stop has been requested and its grace
// window has now elapsed, i.e. the run is about to end on its own.
func (m *Manager) IsStopped() bool { return m.pastStopTick() }

// Groups exposes the managed WorkGroups, e.g. so callers can Enqueue
// entities into a specific named group.
func (m *Manager) Groups() []*WorkGroup { return m.groups }

// Group looks up a WorkGroup by name.
func (m *Manager) Group(name string) (*WorkGroup, bool) {
	for _, g := range m.groups {
		if g.name == name {
			return g, true
		}
	}
	return nil, false
}
