package deadletter

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CleanerConfig controls dead-letter retention.
type CleanerConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

// Cleaner drops letters older than the retention window on a cron schedule.
type Cleaner struct {
	store  *Store
	cron   *cron.Cron
	cfg    CleanerConfig
	now    func() time.Time
	logger *zap.Logger
}

func NewCleaner(store *Store, cfg CleanerConfig, logger *zap.Logger) (*Cleaner, error) {
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cleaner{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(zap.String("component", "deadletter_cleaner")),
		cron:   cron.New(cron.WithSeconds()),
	}

	// cron runs @every schedules at whole seconds, one second at least.
	schedule := "@every " + cfg.Interval.String()
	if _, err := c.cron.AddFunc(schedule, c.Run); err != nil {
		return nil, fmt.Errorf("schedule dead-letter cleanup: %w", err)
	}
	return c, nil
}

// Run performs one retention sweep.
func (c *Cleaner) Run() {
	removed, err := c.store.Cleanup(c.now().Add(-c.cfg.Retention))
	if err != nil {
		c.logger.Error("dead-letter cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		c.logger.Info("dead letters expired", zap.Int("removed", removed))
	}
}

// Start launches the cron scheduler.
func (c *Cleaner) Start() {
	if c == nil || c.cron == nil {
		return
	}
	c.cron.Start()
	c.logger.Info("dead-letter cleaner started",
		zap.Duration("interval", c.cfg.Interval),
		zap.Duration("retention", c.cfg.Retention),
	)
}

// Stop waits for a running sweep to finish or ctx to expire.
func (c *Cleaner) Stop(ctx context.Context) {
	if c == nil || c.cron == nil {
		return
	}
	stopCtx := c.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
