package locking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/pkg/clock"
)

type recordingPoster struct {
	mu     sync.Mutex
	events []domain.LockingEvent
}

func (p *recordingPoster) Post(_ context.Context, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(domain.LockingEvent))
}

func (p *recordingPoster) posted() []domain.LockingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.LockingEvent(nil), p.events...)
}

var (
	alice = domain.UserRef{ID: 1, Name: "alice"}
	bob   = domain.UserRef{ID: 2, Name: "bob"}
	start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newLedger() (*Ledger, *recordingPoster, *clock.MockClock) {
	poster := &recordingPoster{}
	clk := clock.NewMockClock(start)
	return NewLedger(poster, clk, nil), poster, clk
}

func TestLockThenIsLocked(t *testing.T) {
	ledger, poster, _ := newLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Lock(ctx, TypeProduct, 5, alice))

	holder, ok := ledger.IsLocked(TypeProduct, 5)
	require.True(t, ok)
	assert.Equal(t, alice, holder)

	_, ok = ledger.IsLocked(TypeProduct, 6)
	assert.False(t, ok)
	_, ok = ledger.IsLocked(TypeCategory, 5)
	assert.False(t, ok)

	assert.Equal(t, []domain.LockingEvent{
		{Type: TypeProduct, ID: 5, UserID: 1, UserName: "alice", Locked: true},
	}, poster.posted())
}

func TestSecondLockFailsAndKeepsHolder(t *testing.T) {
	ledger, poster, _ := newLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Lock(ctx, TypeProduct, 5, alice))

	err := ledger.Lock(ctx, TypeProduct, 5, bob)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))
	assert.ErrorIs(t, err, domain.ErrAlreadyLocked)

	err = ledger.Lock(ctx, TypeProduct, 5, alice)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))

	holder, _ := ledger.IsLocked(TypeProduct, 5)
	assert.Equal(t, alice, holder)
	assert.Len(t, poster.posted(), 1)
}

func TestLockRejectsNegativeID(t *testing.T) {
	ledger, poster, _ := newLedger()

	err := ledger.Lock(context.Background(), TypeProduct, -1, alice)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Empty(t, poster.posted())
	assert.Equal(t, 0, ledger.Len())
}

func TestUnlockReleasesAndAnnounces(t *testing.T) {
	ledger, poster, _ := newLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Lock(ctx, TypeUser, 3, alice))

	ledger.Unlock(ctx, TypeUser, 3)
	ledger.Unlock(ctx, TypeUser, 3)

	_, ok := ledger.IsLocked(TypeUser, 3)
	assert.False(t, ok)
	assert.Equal(t, []domain.LockingEvent{
		{Type: TypeUser, ID: 3, UserID: 1, UserName: "alice", Locked: true},
		{Type: TypeUser, ID: 3, UserID: 1, UserName: "alice", Locked: false},
	}, poster.posted())

	require.NoError(t, ledger.Lock(ctx, TypeUser, 3, bob))
}

func TestUnlockIfChecksCurrentHolder(t *testing.T) {
	ledger, poster, _ := newLedger()
	ctx := context.Background()
	ownedBy := func(user domain.UserRef) func(domain.UserRef) bool {
		return func(holder domain.UserRef) bool { return holder.ID == user.ID }
	}

	assert.NoError(t, ledger.UnlockIf(ctx, TypeProduct, 8, ownedBy(alice)))

	require.NoError(t, ledger.Lock(ctx, TypeProduct, 8, alice))
	require.NoError(t, ledger.UnlockIf(ctx, TypeProduct, 8, ownedBy(alice)))
	require.NoError(t, ledger.Lock(ctx, TypeProduct, 8, bob))

	err := ledger.UnlockIf(ctx, TypeProduct, 8, ownedBy(alice))
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))

	holder, ok := ledger.IsLocked(TypeProduct, 8)
	require.True(t, ok)
	assert.Equal(t, bob, holder)
	assert.Len(t, poster.posted(), 3)
}

func TestScopeCloseReleasesOnlyItsLocks(t *testing.T) {
	ledger, poster, _ := newLedger()
	ctx := context.Background()

	session := ledger.Scope("session-1")
	other := ledger.Scope("session-2")
	require.NoError(t, session.Lock(ctx, TypeProduct, 1, alice))
	require.NoError(t, session.Lock(ctx, TypeProduct, 2, alice))
	require.NoError(t, other.Lock(ctx, TypeProduct, 3, bob))
	require.NoError(t, ledger.Lock(ctx, TypeProduct, 4, bob))

	assert.Equal(t, 2, session.Close(ctx))
	assert.Equal(t, 0, session.Close(ctx))

	_, ok := ledger.IsLocked(TypeProduct, 1)
	assert.False(t, ok)
	_, ok = ledger.IsLocked(TypeProduct, 3)
	assert.True(t, ok)
	_, ok = ledger.IsLocked(TypeProduct, 4)
	assert.True(t, ok)

	events := poster.posted()
	require.Len(t, events, 6)
	assert.Equal(t, domain.LockingEvent{Type: TypeProduct, ID: 1, UserID: 1, UserName: "alice"}, events[4])
	assert.Equal(t, domain.LockingEvent{Type: TypeProduct, ID: 2, UserID: 1, UserName: "alice"}, events[5])
}

func TestReapExpiredReleasesOldLocks(t *testing.T) {
	ledger, poster, clk := newLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Lock(ctx, TypeProduct, 1, alice))
	clk.Add(20 * time.Minute)
	require.NoError(t, ledger.Lock(ctx, TypeProduct, 2, bob))
	clk.Add(15 * time.Minute)

	assert.Equal(t, 1, ledger.ReapExpired(ctx, 30*time.Minute))

	locks := ledger.Locks()
	require.Len(t, locks, 1)
	assert.Equal(t, int64(2), locks[0].ID)
	assert.Equal(t, start.Add(20*time.Minute), locks[0].LockedAt)

	events := poster.posted()
	assert.False(t, events[len(events)-1].Locked)
	assert.Equal(t, int64(1), events[len(events)-1].ID)
}

func TestConcurrentLockersOnlyOneWins(t *testing.T) {
	ledger, poster, _ := newLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := ledger.Lock(ctx, TypeProduct, 9, domain.UserRef{ID: id, Name: "u"}); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Len(t, poster.posted(), 1)
}

func TestEventsFollowTransitionOrder(t *testing.T) {
	ledger, poster, _ := newLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if ledger.Lock(ctx, TypeProduct, 1, alice) == nil {
					ledger.Unlock(ctx, TypeProduct, 1)
				}
			}
		}()
	}
	wg.Wait()

	events := poster.posted()
	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, i%2 == 0, ev.Locked, "event %d out of order", i)
	}
}
