package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"duebot/internal/clock"
	"duebot/internal/eventbus"
	"duebot/internal/task"
	"duebot/internal/task/reminder"
	"duebot/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	guard    *reminder.Guard
	store    task.Store
	notifier Notifier
	clock    clock.Clock
	resync   ResyncFunc

	c        *cron.Cron
	tickID   cron.EntryID
	resyncID cron.EntryID
	runCtx   context.Context
	cancel   context.CancelFunc

	lastResync time.Time
	resyncErr  string
	lastReport TickReport

	// tickMu serializes ticks and is held across notifier dispatch, so Stop
	// can wait out an in-flight tick by acquiring it.
	tickMu   sync.Mutex
	lastTick time.Time
	catchUp  bool

	// accepting gates dispatch; cleared first thing in Stop.
	accepting atomic.Bool

	ticks     atomic.Uint64
	triggered atomic.Uint64
	notified  atomic.Uint64
	failed    atomic.Uint64
	surfaced  atomic.Uint64

	warnMu          sync.Mutex
	lastNotifyWarn  time.Time
	suppressedWarns int
}

func New(cfg Config, guard *reminder.Guard, store task.Store, notifier Notifier, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		cfg:      normalize(cfg),
		log:      log.With(logx.String("comp", "scheduler")),
		bus:      bus,
		guard:    guard,
		store:    store,
		notifier: notifier,
		clock:    clk,
	}
}

func normalize(cfg Config) Config {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	// cron.Every rounds down to whole seconds.
	if cfg.Interval < time.Second {
		cfg.Interval = time.Second
	}
	if cfg.Retention < 0 {
		cfg.Retention = 0
	}
	cfg.Resync = strings.TrimSpace(cfg.Resync)
	cfg.Timezone = strings.TrimSpace(cfg.Timezone)
	return cfg
}

// SetResync installs the function the resync schedule calls. Call before Start.
func (s *Service) SetResync(fn ResyncFunc) {
	s.mu.Lock()
	s.resync = fn
	s.mu.Unlock()
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Running() bool { return s.accepting.Load() }

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start begins ticking. It resyncs the book, runs one tick immediately so
// reminders missed while the process was down are classified at once, and
// then hands the schedule to cron. A disabled or already running scheduler
// is left as is.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	if !cfg.Enabled {
		s.mu.Unlock()
		s.log.Info("scheduler disabled")
		return
	}
	cl := logx.CronLogger{Log: s.log}
	s.c = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.registerLocked(cfg)
	c, runCtx, resync := s.c, s.runCtx, s.resync
	s.mu.Unlock()

	s.tickMu.Lock()
	s.catchUp = true
	s.lastTick = time.Time{}
	s.tickMu.Unlock()
	s.accepting.Store(true)

	if resync != nil {
		s.runResync(runCtx)
	}
	rep := s.Tick(ctx)
	c.Start()
	s.log.Info("scheduler started",
		logx.Duration("interval", cfg.Interval),
		logx.String("resync", cfg.Resync),
		logx.Int("triggered", rep.Triggered),
		logx.Int("missed", rep.Missed),
	)
}

// registerLocked (re)adds the tick and resync entries for cfg.
func (s *Service) registerLocked(cfg Config) {
	if s.tickID != 0 {
		s.c.Remove(s.tickID)
		s.tickID = 0
	}
	if s.resyncID != 0 {
		s.c.Remove(s.resyncID)
		s.resyncID = 0
	}
	s.tickID = s.c.Schedule(cron.Every(cfg.Interval), cron.FuncJob(func() { s.Tick(s.context()) }))

	if cfg.Resync == "" || s.resync == nil {
		return
	}
	sched, err := ParseSchedule(cfg.Resync, cfg.Timezone)
	if err != nil {
		s.log.Error("resync schedule rejected", logx.String("schedule", cfg.Resync), logx.Err(err))
		return
	}
	s.resyncID = s.c.Schedule(sched, cron.FuncJob(func() { s.runResync(s.context()) }))
}

func (s *Service) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

func (s *Service) runResync(ctx context.Context) {
	s.mu.Lock()
	fn := s.resync
	s.mu.Unlock()
	if fn == nil {
		return
	}
	err := fn(ctx)
	now := s.clock.Now()

	s.mu.Lock()
	s.lastResync = now
	s.resyncErr = ""
	if err != nil {
		s.resyncErr = err.Error()
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("resync failed", logx.Err(err))
	}
}

// Stop halts ticking and returns once no tick is in flight. No Notifier
// call happens after Stop returns. Safe to call repeatedly and from any
// goroutine.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel, s.runCtx = nil, nil, nil
	s.tickID, s.resyncID = 0, 0
	s.mu.Unlock()

	s.accepting.Store(false)
	if c == nil {
		return
	}
	start := time.Now()
	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("cron stop timed out; waiting for tick", logx.Err(ctx.Err()))
	}
	// A manual Tick may still be dispatching.
	s.tickMu.Lock()
	s.tickMu.Unlock()
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Apply swaps the config. Schedule changes re-register the cron entries of
// a running scheduler; the enabled flag is acted on by the caller through
// Start and Stop.
func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if s.c == nil {
		return
	}
	if old.Interval != cfg.Interval || old.Resync != cfg.Resync || old.Timezone != cfg.Timezone {
		s.registerLocked(cfg)
		s.log.Info("scheduler rescheduled", logx.Duration("interval", cfg.Interval), logx.String("resync", cfg.Resync))
	}
}
