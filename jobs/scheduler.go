// Package jobs schedules the periodic background work: the token sweep and
// the purge of expired OAuth state tokens.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mael-queau/roboct0-api/oauth"
	"github.com/mael-queau/roboct0-api/telemetry"
)

// Sweeper runs one token sweep cycle.
type Sweeper interface {
	RunCycle(ctx context.Context) (oauth.SweepReport, bool)
}

// Purger drops expired state tokens.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Config sets job intervals. Zero values use the defaults.
type Config struct {
	SweepInterval time.Duration
	PurgeInterval time.Duration
}

const (
	DefaultSweepInterval = time.Hour
	DefaultPurgeInterval = 10 * time.Minute
)

// Scheduler manages background jobs.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	purger  Purger
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. Overlapping runs of the same job are
// skipped and panics are recovered and logged.
func NewScheduler(sweeper Sweeper, purger Purger, cfg Config) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = DefaultPurgeInterval
	}
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn))
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		sweeper: sweeper,
		purger:  purger,
		cfg:     cfg,
	}
}

// Start registers the jobs, starts the scheduler and kicks off one sweep
// immediately. Jobs run until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(every(s.cfg.SweepInterval), s.Sweep); err != nil {
			return fmt.Errorf("schedule token sweep: %w", err)
		}
	}
	if s.purger != nil {
		if _, err := s.cron.AddFunc(every(s.cfg.PurgeInterval), s.PurgeStates); err != nil {
			return fmt.Errorf("schedule state purge: %w", err)
		}
	}

	s.cron.Start()
	slog.Info("job scheduler started", slog.String("component", "jobs"),
		slog.Duration("sweep_interval", s.cfg.SweepInterval),
		slog.Duration("purge_interval", s.cfg.PurgeInterval))

	if s.sweeper != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Sweep()
		}()
	}
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	slog.Info("job scheduler stopped", slog.String("component", "jobs"))
}

// Sweep runs one token sweep cycle.
func (s *Scheduler) Sweep() {
	s.sweeper.RunCycle(s.context())
}

// PurgeStates removes expired state tokens.
func (s *Scheduler) PurgeStates() {
	n, err := s.purger.Purge(s.context())
	if err != nil {
		slog.Error("state purge failed", slog.String("component", "jobs"), slog.Any("err", err))
		return
	}
	telemetry.AddStatesPurged(n)
	if n > 0 {
		slog.Debug("expired states purged", slog.String("component", "jobs"), slog.Int64("count", n))
	}
}

func (s *Scheduler) context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
