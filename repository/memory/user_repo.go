package memory

import (
	"context"
	"sort"
	"time"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository"
)

var _ repository.UserRepository = (*UserRepository)(nil)

type userRecord struct {
	user domain.User
}

// UserRepository is an in-memory user persistence adapter.
type UserRepository struct {
	store *Store
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := rec.user
	return &clone, nil
}

func (r *UserRepository) GetByName(_ context.Context, name string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if rec := r.store.userByName(name); rec != nil {
		clone := rec.user
		return &clone, nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) List(_ context.Context) ([]domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	list := make([]domain.User, 0, len(r.store.users))
	for _, rec := range r.store.users {
		list = append(list, rec.user)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.userByName(user.Name) != nil {
		return domain.ErrDuplicateName
	}
	now := time.Now().UTC()
	r.store.nextUserID++
	user.ID = r.store.nextUserID
	user.Version = 0
	user.CreatedAt = now
	user.UpdatedAt = now
	r.store.users[user.ID] = &userRecord{user: *user}
	return nil
}

func (r *UserRepository) Update(_ context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if other := r.store.userByName(user.Name); other != nil && other.user.ID != user.ID {
		return domain.ErrDuplicateName
	}
	if rec.user.Version != user.Version {
		return domain.ErrVersionConflict
	}
	user.Version++
	user.CreatedAt = rec.user.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	rec.user = *user
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.store.users, id)
	delete(r.store.supervisors, id)
	for employee, supervisor := range r.store.supervisors {
		if supervisor == id {
			delete(r.store.supervisors, employee)
		}
	}
	return nil
}

func (r *UserRepository) SupervisorOf(_ context.Context, employeeID int64) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	supervisorID, ok := r.store.supervisors[employeeID]
	if !ok {
		return nil, nil
	}
	rec, ok := r.store.users[supervisorID]
	if !ok {
		return nil, nil
	}
	clone := rec.user
	return &clone, nil
}

func (r *UserRepository) SetSupervisor(_ context.Context, employeeID, supervisorID int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.users[employeeID]; !ok {
		return domain.ErrUserNotFound
	}
	if _, ok := r.store.users[supervisorID]; !ok {
		return domain.ErrUserNotFound
	}
	r.store.supervisors[employeeID] = supervisorID
	return nil
}

func (s *Store) userByName(name string) *userRecord {
	for _, rec := range s.users {
		if rec.user.Name == name {
			return rec
		}
	}
	return nil
}
