package repository

import (
	"context"

	"github.com/fastygo/storefront/domain"
)

type SessionRepository interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
	// DeleteByUser drops every session of the user and returns their ids.
	DeleteByUser(ctx context.Context, userID int64) ([]string, error)
}
