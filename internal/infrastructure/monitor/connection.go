package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DeadLetterCounter reports how many undecodable envelopes are parked.
type DeadLetterCounter interface {
	Size() (int, error)
}

// RelayState reports whether cross-node relaying has been abandoned.
type RelayState interface {
	LocalMode() bool
}

// Dependencies lists what the monitor polls. A nil pool means the node runs on
// in-memory storage.
type Dependencies struct {
	Postgres   *pgxpool.Pool
	Redis      *redislib.Client
	DeadLetter DeadLetterCounter
	Relay      RelayState
}

type Monitor struct {
	deps Dependencies

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(deps Dependencies, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		deps:     deps,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether storage is reachable and the relay is still connected.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	storageOK := m.status.PostgreSQL || m.deps.Postgres == nil
	return storageOK && !m.status.RelayLocalMode
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh polls every dependency once and stores the result.
func (m *Monitor) Refresh() {
	deadLetterOK, deadLetterSize := m.checkDeadLetter()
	status := Status{
		Storage:        "memory",
		PostgreSQL:     m.checkPostgres(),
		Redis:          m.checkRedis(),
		DeadLetter:     deadLetterOK,
		DeadLetterSize: deadLetterSize,
		LastCheck:      time.Now().UTC(),
	}
	if m.deps.Postgres != nil {
		status.Storage = "postgres"
	}
	if m.deps.Relay != nil {
		status.RelayLocalMode = m.deps.Relay.LocalMode()
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if !previous.LastCheck.IsZero() && previous.RelayLocalMode != status.RelayLocalMode {
		m.logger.Warn("relay mode changed", zap.Bool("local_mode", status.RelayLocalMode))
	}
}

func (m *Monitor) checkPostgres() bool {
	if m.deps.Postgres == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.deps.Postgres.Ping(ctx) == nil
}

func (m *Monitor) checkRedis() bool {
	if m.deps.Redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.deps.Redis.Ping(ctx).Err() == nil
}

func (m *Monitor) checkDeadLetter() (bool, int) {
	if m.deps.DeadLetter == nil {
		return false, 0
	}
	size, err := m.deps.DeadLetter.Size()
	if err != nil {
		m.logger.Warn("dead-letter size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
