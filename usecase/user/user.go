package user

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository"
)

type UseCase struct {
	users  repository.UserRepository
	events domain.EventPoster
	logger *zap.Logger
}

func New(users repository.UserRepository, events domain.EventPoster, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:  users,
		events: events,
		logger: logger,
	}
}

func (uc *UseCase) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return uc.users.GetByID(ctx, id)
}

// FindByName returns nil without error when no user has the name.
func (uc *UseCase) FindByName(ctx context.Context, name string) (*domain.User, error) {
	u, err := uc.users.GetByName(ctx, name)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil
	}
	return u, err
}

func (uc *UseCase) ListUsers(ctx context.Context) ([]domain.User, error) {
	return uc.users.List(ctx)
}

func validate(u *domain.User) error {
	if u == nil {
		return domain.ErrInvalidPayload
	}
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return domain.Invalidf("name is required")
	}
	if !u.Role.Valid() {
		return domain.Invalidf("unknown role %q", u.Role)
	}
	return nil
}

// CreateUser stores a new user.
func (uc *UseCase) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := validate(u); err != nil {
		return nil, err
	}
	if u.Password == "" {
		return nil, domain.Invalidf("password is required")
	}
	if err := uc.users.Create(ctx, u); err != nil {
		return nil, err
	}
	uc.logger.Info("user created", zap.Int64("user_id", u.ID), zap.String("name", u.Name))
	uc.post(ctx, domain.UserUpdatedEvent{UserID: u.ID})
	return u, nil
}

// UpdateUser saves u. The name must not belong to another user and u.Version
// must match the stored version; both cases are reported as conflicts. An
// empty password keeps the stored one.
func (uc *UseCase) UpdateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := validate(u); err != nil {
		return nil, err
	}

	if existing, err := uc.users.GetByName(ctx, u.Name); err == nil && existing.ID != u.ID {
		return nil, domain.ErrDuplicateName
	} else if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	if u.Password == "" {
		stored, err := uc.users.GetByID(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		u.Password = stored.Password
	}

	if err := uc.users.Update(ctx, u); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			uc.logger.Warn("stale user update", zap.Int64("user_id", u.ID), zap.Int("version", u.Version))
		}
		return nil, err
	}
	uc.logger.Info("user updated", zap.Int64("user_id", u.ID), zap.Int("version", u.Version))
	uc.post(ctx, domain.UserUpdatedEvent{UserID: u.ID})
	return u, nil
}

func (uc *UseCase) RemoveUser(ctx context.Context, id int64) error {
	if err := uc.users.Delete(ctx, id); err != nil {
		return err
	}
	uc.logger.Info("user removed", zap.Int64("user_id", id))
	uc.post(ctx, domain.UserUpdatedEvent{UserID: id})
	return nil
}

// AssignSupervisor makes supervisorID the default approver for employeeID.
func (uc *UseCase) AssignSupervisor(ctx context.Context, employeeID, supervisorID int64) error {
	if employeeID == supervisorID {
		return domain.Invalidf("a user cannot supervise themselves")
	}
	supervisor, err := uc.users.GetByID(ctx, supervisorID)
	if err != nil {
		return err
	}
	if !supervisor.CanApprove() {
		return domain.Invalidf("user %s cannot approve purchases", supervisor.Name)
	}
	if err := uc.users.SetSupervisor(ctx, employeeID, supervisorID); err != nil {
		return err
	}
	uc.post(ctx, domain.UserUpdatedEvent{UserID: employeeID})
	return nil
}

// SupervisorOf returns nil when the user has no supervisor.
func (uc *UseCase) SupervisorOf(ctx context.Context, employeeID int64) (*domain.User, error) {
	return uc.users.SupervisorOf(ctx, employeeID)
}

func (uc *UseCase) post(ctx context.Context, event domain.Event) {
	if uc.events != nil {
		uc.events.Post(ctx, event)
	}
}
