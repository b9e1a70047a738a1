package app

import (
	"fmt"
	"time"

	"duebot/internal/clock"
	"duebot/internal/config"
	"duebot/internal/eventbus"
	"duebot/internal/storage"
	"duebot/internal/task/lifecycle"
	"duebot/internal/task/reminder"
	"duebot/pkg/logx"
)

// Core is the task and reminder stack without the daemon services. The CLI
// uses it directly for one-shot commands; App builds the scheduler on top.
type Core struct {
	Repo  storage.Repository
	Guard *reminder.Guard
	Coord *lifecycle.Coordinator
	Tasks *lifecycle.Tasks
	Clock clock.Clock
	Loc   *time.Location
}

// OpenCore opens storage and wires the lifecycle layer. clk may be nil.
func OpenCore(cfg *config.Config, log logx.Logger, bus eventbus.Bus, clk clock.Clock) (*Core, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	if clk == nil {
		clk = clock.System{Loc: loc}
	}
	sc, err := mapStorageConfig(cfg, loc)
	if err != nil {
		return nil, err
	}
	sc.Now = clk.Now
	repo, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	log.Debug("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	guard := reminder.NewGuard()
	coord := lifecycle.New(repo, guard, clk, log, lifecycle.WithBus(bus), lifecycle.WithAuditor(repo))
	return &Core{
		Repo:  repo,
		Guard: guard,
		Coord: coord,
		Tasks: lifecycle.NewTasks(repo, coord),
		Clock: clk,
		Loc:   loc,
	}, nil
}

func (c *Core) Close() error {
	if c == nil || c.Repo == nil {
		return nil
	}
	return c.Repo.Close()
}
