// Package locking keeps advisory edit locks on entities so that two users do not
// edit the same record at the same time. Locks are not persisted and are not
// shared between nodes; every transition is announced as a LockingEvent.
package locking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/metrics"
	"github.com/fastygo/storefront/pkg/clock"
)

// Entity types that can be locked.
const (
	TypeProduct  = "Product"
	TypeCategory = "Category"
	TypeUser     = "User"
	TypePurchase = "Purchase"
)

// KnownType reports whether typ is one of the lockable entity types.
func KnownType(typ string) bool {
	switch typ {
	case TypeProduct, TypeCategory, TypeUser, TypePurchase:
		return true
	}
	return false
}

type key struct {
	typ string
	id  int64
}

// Entry describes one held lock.
type Entry struct {
	Type     string         `json:"type"`
	ID       int64          `json:"id"`
	Holder   domain.UserRef `json:"holder"`
	ScopeID  string         `json:"scope_id,omitempty"`
	LockedAt time.Time      `json:"locked_at"`
}

// Ledger is the process-wide lock table.
type Ledger struct {
	mu    sync.Mutex
	locks map[key]Entry

	// emit is taken before mu is released so events leave in transition order.
	emit sync.Mutex

	poster domain.EventPoster
	clock  clock.Clock
	logger *zap.Logger
}

// NewLedger creates an empty ledger that announces transitions through poster.
func NewLedger(poster domain.EventPoster, clk clock.Clock, logger *zap.Logger) *Ledger {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		locks:  make(map[key]Entry),
		poster: poster,
		clock:  clk,
		logger: logger.With(zap.String("component", "locking")),
	}
}

// IsLocked returns the holder of the lock on (typ, id), if any.
func (l *Ledger) IsLocked(typ string, id int64) (domain.UserRef, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key{typ, id}]
	if !ok {
		return domain.UserRef{}, false
	}
	return entry.Holder, true
}

// Lock takes the lock on (typ, id) for user. It fails if the entity is already
// locked, even by the same user.
func (l *Ledger) Lock(ctx context.Context, typ string, id int64, user domain.UserRef) error {
	return l.lock(ctx, "", typ, id, user)
}

func (l *Ledger) lock(ctx context.Context, scopeID, typ string, id int64, user domain.UserRef) error {
	if typ == "" {
		return domain.Invalidf("lock type is required")
	}
	if id < 0 {
		return domain.Invalidf("id must be positive: %d", id)
	}
	if user.IsZero() {
		return domain.Invalidf("lock holder is required")
	}

	k := key{typ, id}
	l.mu.Lock()
	if _, ok := l.locks[k]; ok {
		l.mu.Unlock()
		return domain.WrapError(domain.ErrCodeConflict,
			fmt.Sprintf("can't lock %s %d", typ, id), domain.ErrAlreadyLocked)
	}
	entry := Entry{Type: typ, ID: id, Holder: user, ScopeID: scopeID, LockedAt: l.clock.Now()}
	l.locks[k] = entry
	metrics.LocksHeld.Set(float64(len(l.locks)))
	l.emit.Lock()
	l.mu.Unlock()

	l.announce(ctx, entry, true)
	l.emit.Unlock()
	return nil
}

// Unlock releases the lock on (typ, id). Nothing happens when it is not held.
func (l *Ledger) Unlock(ctx context.Context, typ string, id int64) {
	l.release(ctx, func(e Entry) bool { return e.Type == typ && e.ID == id })
}

// UnlockIf releases the lock on (typ, id) when allow accepts its holder. The
// holder is checked and the lock released under one hold of the table, so a
// lock taken by someone else in between is never dropped. allow must not call
// back into the ledger. A refused release fails with FORBIDDEN; nothing
// happens when the lock is not held.
func (l *Ledger) UnlockIf(ctx context.Context, typ string, id int64, allow func(holder domain.UserRef) bool) error {
	var refused *domain.UserRef
	l.release(ctx, func(e Entry) bool {
		if e.Type != typ || e.ID != id {
			return false
		}
		if !allow(e.Holder) {
			holder := e.Holder
			refused = &holder
			return false
		}
		return true
	})
	if refused != nil {
		return domain.NewError(domain.ErrCodeForbidden, "lock is held by "+refused.Name)
	}
	return nil
}

// ReleaseScope releases every lock taken through the scope with scopeID and
// returns how many were released.
func (l *Ledger) ReleaseScope(ctx context.Context, scopeID string) int {
	if scopeID == "" {
		return 0
	}
	return l.release(ctx, func(e Entry) bool { return e.ScopeID == scopeID })
}

// ReapExpired releases locks held for longer than olderThan.
func (l *Ledger) ReapExpired(ctx context.Context, olderThan time.Duration) int {
	cutoff := l.clock.Now().Add(-olderThan)
	released := l.release(ctx, func(e Entry) bool { return e.LockedAt.Before(cutoff) })
	if released > 0 {
		l.logger.Info("released stale locks", zap.Int("count", released), zap.Duration("max_age", olderThan))
	}
	return released
}

func (l *Ledger) release(ctx context.Context, match func(Entry) bool) int {
	l.mu.Lock()
	var released []Entry
	for k, e := range l.locks {
		if match(e) {
			released = append(released, e)
			delete(l.locks, k)
		}
	}
	if len(released) == 0 {
		l.mu.Unlock()
		return 0
	}
	metrics.LocksHeld.Set(float64(len(l.locks)))
	l.emit.Lock()
	l.mu.Unlock()

	sortEntries(released)
	for _, e := range released {
		l.announce(ctx, e, false)
	}
	l.emit.Unlock()
	return len(released)
}

func (l *Ledger) announce(ctx context.Context, e Entry, locked bool) {
	action := "unlock"
	if locked {
		action = "lock"
	}
	metrics.LockTransitions.WithLabelValues(action).Inc()
	l.logger.Debug(action,
		zap.String("type", e.Type),
		zap.Int64("id", e.ID),
		zap.String("user", e.Holder.Name),
	)
	if l.poster == nil {
		return
	}
	l.poster.Post(ctx, domain.LockingEvent{
		Type:     e.Type,
		ID:       e.ID,
		UserID:   e.Holder.ID,
		UserName: e.Holder.Name,
		Locked:   locked,
	})
}

// Locks returns the held locks ordered by type and id.
func (l *Ledger) Locks() []Entry {
	l.mu.Lock()
	out := make([]Entry, 0, len(l.locks))
	for _, e := range l.locks {
		out = append(out, e)
	}
	l.mu.Unlock()
	sortEntries(out)
	return out
}

// Len returns the number of held locks.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type < entries[j].Type
		}
		return entries[i].ID < entries[j].ID
	})
}

// Scope ties locks to one session. Closing the scope releases them.
type Scope struct {
	ledger *Ledger
	id     string
}

// Scope returns the lock scope identified by scopeID.
func (l *Ledger) Scope(scopeID string) *Scope {
	return &Scope{ledger: l, id: scopeID}
}

// ID returns the scope identifier.
func (s *Scope) ID() string { return s.id }

// Lock takes the lock on (typ, id) on behalf of the scope.
func (s *Scope) Lock(ctx context.Context, typ string, id int64, user domain.UserRef) error {
	return s.ledger.lock(ctx, s.id, typ, id, user)
}

// Unlock releases the lock on (typ, id).
func (s *Scope) Unlock(ctx context.Context, typ string, id int64) {
	s.ledger.Unlock(ctx, typ, id)
}

// Close releases every lock taken through the scope.
func (s *Scope) Close(ctx context.Context) int {
	return s.ledger.ReleaseScope(ctx, s.id)
}
