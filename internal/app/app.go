package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"duebot/internal/clock"
	"duebot/internal/config"
	"duebot/internal/eventbus"
	"duebot/internal/notifier"
	"duebot/internal/runtime/supervisor"
	"duebot/internal/task/lifecycle"
	"duebot/internal/task/scheduler"
	"duebot/internal/transport"
	"duebot/internal/transport/telegram"
	"duebot/pkg/logx"
)

// App runs the reminder daemon: storage, lifecycle, scheduler and the
// notification pipeline, with config hot reload.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	core  *Core
	sched *scheduler.Service
	notif *notifier.Service

	// fixedSender pins the transport; telegram config changes are ignored.
	fixedSender transport.Sender
}

type Option func(*options)

type options struct {
	clock  clock.Clock
	sender transport.Sender
}

// WithClock drives the scheduler and lifecycle from clk.
func WithClock(clk clock.Clock) Option { return func(o *options) { o.clock = clk } }

// WithSender replaces the configured transport.
func WithSender(s transport.Sender) Option { return func(o *options) { o.sender = s } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	core, err := OpenCore(cfg, log, bus, o.clock)
	if err != nil {
		return nil, err
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = core.Close()
		return nil, err
	}

	sender := o.sender
	if sender == nil {
		if sender, err = buildSender(cfg, log); err != nil {
			_ = core.Close()
			return nil, err
		}
	}
	notifSvc := notifier.New(ncfg, sender, log, bus)
	schedSvc := scheduler.New(schedCfg, core.Guard, core.Repo, notifSvc, core.Clock, log, bus)

	a := &App{
		cfgm:        cfgm,
		log:         appLog,
		logs:        logSvc,
		bus:         bus,
		core:        core,
		sched:       schedSvc,
		notif:       notifSvc,
		fixedSender: o.sender,
	}
	schedSvc.SetResync(a.resync)
	return a, nil
}

func buildSender(cfg *config.Config, log logx.Logger) (transport.Sender, error) {
	tc, ok, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return transport.LogSender{Log: log.With(logx.String("comp", "sender"))}, nil
	}
	return telegram.New(tc, log)
}

// resync rebuilds the reminder book from storage.
func (a *App) resync(ctx context.Context) error {
	rep, err := a.core.Tasks.Reconcile(ctx)
	if err != nil {
		return err
	}
	if rep.Changed() {
		a.log.Info("reminders resynced",
			logx.Int("tasks", rep.Tasks),
			logx.Int("created", rep.Created),
			logx.Int("replaced", rep.Replaced),
			logx.Int("cancelled", rep.Cancelled),
		)
	}
	return nil
}

func (a *App) Tasks() *lifecycle.Tasks              { return a.core.Tasks }
func (a *App) Scheduler() *scheduler.Service        { return a.sched }
func (a *App) Notifier() *notifier.Service          { return a.notif }
func (a *App) Bus() eventbus.Bus                    { return a.bus }
func (a *App) Logger() logx.Logger                  { return a.log }
func (a *App) ConfigManager() *config.ConfigManager { return a.cfgm }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the notifier, then the scheduler (which resyncs and runs
// its startup tick), then the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	a.notif.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg = latest(sub, newCfg)
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))

	a.log.Info("app started",
		logx.Bool("scheduler", a.sched.Running()),
		logx.Bool("notifier", a.notif.Enabled()),
	)
	return nil
}

// latest drains queued configs and returns the newest.
func latest(ch <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-ch:
			if !ok {
				return cfg
			}
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	has := func(name string) bool {
		for _, s := range sections {
			if s == name {
				return true
			}
		}
		return false
	}

	if has("logging") {
		a.logs.Apply(mapLoggingConfig(newCfg))
	}
	if has("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		a.log.Warn("timezone changed; due dates keep the old zone until restart")
	}

	if has("scheduler") {
		sc, err := mapSchedulerConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			wasEnabled := a.sched.Enabled()
			a.sched.Apply(sc)
			switch {
			case wasEnabled && !sc.Enabled:
				a.log.Info("scheduler disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.sched.Stop(stopCtx)
				cancel()
			case !wasEnabled && sc.Enabled:
				a.log.Info("scheduler enabled via config")
				a.sched.Start(ctx)
			}
		}
	}

	if has("telegram") && a.fixedSender == nil {
		s, err := buildSender(newCfg, a.log)
		if err != nil {
			a.log.Warn("invalid telegram config; keeping previous sender", logx.Err(err))
		} else {
			a.notif.SetSender(s)
			a.log.Info("sender replaced", logx.String("sender", s.Name()))
		}
	}

	if has("notifier") {
		ncfg, err := mapNotifierConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			wasEnabled := a.notif.Enabled()
			a.notif.Apply(ncfg)
			switch {
			case wasEnabled && !ncfg.Enabled:
				a.log.Info("notifier disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
			case !wasEnabled && ncfg.Enabled:
				a.log.Info("notifier enabled via config")
				a.notif.Start(ctx)
			}
		}
	}

	eventbus.Emit(a.bus, eventbus.ConfigReloaded, time.Now(), sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.core.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Scheduler first so no reminder is handed to a stopping notifier.
	a.step(ctx, "scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.sup.Cancel()
	a.step(ctx, "notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.core.Close() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and the caller's deadline, so
// one component cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Duration("took", time.Since(start)),
				logx.Err(err),
			)
		}()
	}
}
