package repository

import (
	"context"

	"github.com/fastygo/storefront/domain"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByName(ctx context.Context, name string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	// Create stores a new user and assigns its ID. Version starts at 0.
	Create(ctx context.Context, user *domain.User) error
	// Update saves user when its Version matches the stored one and bumps it.
	// Returns ErrVersionConflict on a stale version and ErrDuplicateName when
	// another user already has the name.
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id int64) error
	// SupervisorOf returns nil without error when the employee has no supervisor.
	SupervisorOf(ctx context.Context, employeeID int64) (*domain.User, error)
	SetSupervisor(ctx context.Context, employeeID, supervisorID int64) error
}
