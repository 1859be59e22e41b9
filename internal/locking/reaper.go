package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReaperConfig controls how often stale locks are released.
type ReaperConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

// Reaper periodically releases locks whose session never closed its scope.
type Reaper struct {
	ledger *Ledger
	cron   *cron.Cron
	cfg    ReaperConfig
	logger *zap.Logger
}

func NewReaper(ledger *Ledger, cfg ReaperConfig, logger *zap.Logger) (*Reaper, error) {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Reaper{
		ledger: ledger,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "lock_reaper")),
		cron:   cron.New(cron.WithSeconds()),
	}

	// cron runs @every schedules at whole seconds, one second at least.
	schedule := "@every " + cfg.Interval.String()
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("schedule lock reaper: %w", err)
	}
	return r, nil
}

func (r *Reaper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Interval)
	defer cancel()
	r.ledger.ReapExpired(ctx, r.cfg.MaxAge)
}

// Start launches the cron scheduler.
func (r *Reaper) Start() {
	if r == nil || r.cron == nil {
		return
	}
	r.cron.Start()
	r.logger.Info("lock reaper started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("max_age", r.cfg.MaxAge),
	)
}

// Stop waits for a running sweep to finish or ctx to expire.
func (r *Reaper) Stop(ctx context.Context) {
	if r == nil || r.cron == nil {
		return
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	r.logger.Info("lock reaper stopped")
}
