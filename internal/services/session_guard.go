package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
)

// UserSource loads the current state of a user.
type UserSource interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID int64) error
}

// SessionGuard closes the sessions of users that were deactivated, on this or
// any other node. It is registered as an event bus listener.
type SessionGuard struct {
	users    UserSource
	sessions SessionRevoker
	timeout  time.Duration
	logger   *zap.Logger
}

func NewSessionGuard(users UserSource, sessions SessionRevoker, timeout time.Duration, logger *zap.Logger) *SessionGuard {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionGuard{
		users:    users,
		sessions: sessions,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "session_guard")),
	}
}

// OnEvent implements the event bus listener contract.
func (g *SessionGuard) OnEvent(event domain.Event) {
	updated, ok := event.(domain.UserUpdatedEvent)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	user, err := g.users.GetUser(ctx, updated.UserID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			g.revoke(ctx, updated.UserID)
			return
		}
		g.logger.Error("failed to load updated user", zap.Int64("user_id", updated.UserID), zap.Error(err))
		return
	}
	if !user.Active {
		g.revoke(ctx, user.ID)
	}
}

func (g *SessionGuard) revoke(ctx context.Context, userID int64) {
	if err := g.sessions.RevokeUser(ctx, userID); err != nil {
		g.logger.Error("failed to revoke sessions", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	g.logger.Info("sessions of inactive user revoked", zap.Int64("user_id", userID))
}
