package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubRelay struct{ local bool }

func (s *stubRelay) LocalMode() bool { return s.local }

type stubCounter struct {
	size int
	err  error
}

func (s stubCounter) Size() (int, error) { return s.size, s.err }

func TestMonitor_RefreshWithMemoryStorage(t *testing.T) {
	relay := &stubRelay{}
	m := New(Dependencies{DeadLetter: stubCounter{size: 3}, Relay: relay}, 0, nil)

	m.Refresh()
	status := m.GetStatus()

	assert.Equal(t, "memory", status.Storage)
	assert.False(t, status.PostgreSQL)
	assert.False(t, status.Redis)
	assert.True(t, status.DeadLetter)
	assert.Equal(t, 3, status.DeadLetterSize)
	assert.False(t, status.RelayLocalMode)
	assert.False(t, status.LastCheck.IsZero())
	assert.True(t, m.IsOnline())

	relay.local = true
	m.Refresh()
	assert.True(t, m.GetStatus().RelayLocalMode)
	assert.False(t, m.IsOnline())
}

func TestMonitor_DeadLetterFailure(t *testing.T) {
	m := New(Dependencies{DeadLetter: stubCounter{err: errors.New("database not open")}}, 0, nil)

	m.Refresh()

	assert.False(t, m.GetStatus().DeadLetter)
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	m := New(Dependencies{}, 0, nil)
	m.Start()
	m.Stop()
	m.Stop()
}
