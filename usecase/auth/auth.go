package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/pkg/clock"
	"github.com/fastygo/storefront/repository"
)

// SessionClosed is called after a session ends so per-session state such as
// edit locks can be released.
type SessionClosed func(ctx context.Context, sessionID string)

type UseCase struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *Tokens
	ttl      time.Duration
	clock    clock.Clock
	closed   []SessionClosed
	logger   *zap.Logger
}

// Login is the result of a successful sign-in or refresh.
type Login struct {
	Session   *domain.Session `json:"session"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func New(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *Tokens,
	sessionTTL time.Duration,
	clk clock.Clock,
	logger *zap.Logger,
) *UseCase {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		ttl:      sessionTTL,
		clock:    clk,
		logger:   logger,
	}
}

// OnSessionClosed registers fn to run after logout or revocation.
func (uc *UseCase) OnSessionClosed(fn SessionClosed) {
	uc.closed = append(uc.closed, fn)
}

// Login checks the credentials and opens a session.
func (uc *UseCase) Login(ctx context.Context, name, password string) (*Login, error) {
	user, err := uc.users.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.WrapError(domain.ErrCodeUnauthorized, "invalid credentials", err)
		}
		return nil, err
	}
	if user.Password != password || !user.Active {
		uc.logger.Warn("rejected login", zap.String("name", name))
		return nil, domain.NewError(domain.ErrCodeUnauthorized, "invalid credentials")
	}

	now := uc.clock.Now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		UserName:  user.Name,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(uc.ttl),
	}
	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	uc.logger.Info("session opened", zap.Int64("user_id", user.ID), zap.String("session_id", session.ID))
	return uc.issue(session, now)
}

// Authenticate resolves a bearer token to its live session.
func (uc *UseCase) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	claims, err := uc.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	session, err := uc.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.WrapError(domain.ErrCodeUnauthorized, "session expired", err)
		}
		return nil, err
	}
	return session, nil
}

func (uc *UseCase) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(uc.clock.Now()) {
		_ = uc.closeSession(ctx, sessionID)
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Refresh extends the session by the configured TTL and issues a new token.
func (uc *UseCase) Refresh(ctx context.Context, sessionID string) (*Login, error) {
	session, err := uc.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := uc.clock.Now()
	session.ExpiresAt = now.Add(uc.ttl)
	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return uc.issue(session, now)
}

// Logout ends the session. Unknown sessions are ignored.
func (uc *UseCase) Logout(ctx context.Context, sessionID string) error {
	return uc.closeSession(ctx, sessionID)
}

// RevokeUser ends every session of the user.
func (uc *UseCase) RevokeUser(ctx context.Context, userID int64) error {
	ids, err := uc.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		uc.notifyClosed(ctx, id)
	}
	if len(ids) > 0 {
		uc.logger.Info("sessions revoked", zap.Int64("user_id", userID), zap.Int("count", len(ids)))
	}
	return nil
}

func (uc *UseCase) closeSession(ctx context.Context, sessionID string) error {
	if err := uc.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	uc.notifyClosed(ctx, sessionID)
	return nil
}

func (uc *UseCase) notifyClosed(ctx context.Context, sessionID string) {
	for _, fn := range uc.closed {
		fn(ctx, sessionID)
	}
}

func (uc *UseCase) issue(session *domain.Session, now time.Time) (*Login, error) {
	token, expires, err := uc.tokens.Issue(session, now)
	if err != nil {
		return nil, err
	}
	return &Login{Session: session, Token: token, ExpiresAt: expires}, nil
}
