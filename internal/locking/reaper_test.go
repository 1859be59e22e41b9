package locking

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/storefront/domain"
)

func TestReaperReleasesStaleLocks(t *testing.T) {
	ledger := NewLedger(nil, nil, nil)
	require.NoError(t, ledger.Lock(context.Background(), TypeProduct, 1, domain.UserRef{ID: 1, Name: "alice"}))

	reaper, err := NewReaper(ledger, ReaperConfig{MaxAge: time.Nanosecond, Interval: time.Second}, nil)
	require.NoError(t, err)
	reaper.Start()
	defer reaper.Stop(context.Background())

	require.Eventually(t, func() bool { return ledger.Len() == 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestReaperAcceptsSubSecondInterval(t *testing.T) {
	for _, tc := range []struct {
		interval time.Duration
		delay    time.Duration
	}{
		{500 * time.Millisecond, time.Second},
		{1500 * time.Millisecond, time.Second},
		{90 * time.Second, 90 * time.Second},
	} {
		reaper, err := NewReaper(NewLedger(nil, nil, nil), ReaperConfig{Interval: tc.interval}, nil)
		require.NoError(t, err, tc.interval)

		entries := reaper.cron.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, cron.ConstantDelaySchedule{Delay: tc.delay}, entries[0].Schedule, tc.interval)
	}
}
