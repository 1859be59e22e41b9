package user

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository/memory"
)

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) Post(_ context.Context, event domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func setup(t *testing.T) (*UseCase, *eventLog, *domain.User, *domain.User) {
	t.Helper()
	events := &eventLog{}
	uc := New(memory.NewStore().Users(), events, nil)
	alice, err := uc.CreateUser(context.Background(), &domain.User{Name: "alice", Password: "a", Role: domain.RoleUser, Active: true})
	require.NoError(t, err)
	bob, err := uc.CreateUser(context.Background(), &domain.User{Name: "bob", Password: "b", Role: domain.RoleCustomer, Active: true})
	require.NoError(t, err)
	events.events = nil
	return uc, events, alice, bob
}

func TestUpdateUserBumpsVersionAndAnnounces(t *testing.T) {
	uc, events, alice, _ := setup(t)
	ctx := context.Background()

	edit := *alice
	edit.Role = domain.RoleAdmin
	edit.Password = ""

	updated, err := uc.UpdateUser(ctx, &edit)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)
	assert.Equal(t, "a", updated.Password)

	stored, err := uc.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, stored.Role)
	assert.Equal(t, []domain.Event{domain.UserUpdatedEvent{UserID: alice.ID}}, events.events)
}

func TestUpdateUserDuplicateNameConflicts(t *testing.T) {
	uc, events, _, bob := setup(t)

	edit := *bob
	edit.Name = "alice"
	_, err := uc.UpdateUser(context.Background(), &edit)

	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))
	assert.ErrorIs(t, err, domain.ErrDuplicateName)
	assert.Empty(t, events.events)
}

func TestUpdateUserStaleVersionConflicts(t *testing.T) {
	uc, _, alice, _ := setup(t)
	ctx := context.Background()

	first := *alice
	second := *alice
	first.Active = false
	_, err := uc.UpdateUser(ctx, &first)
	require.NoError(t, err)

	second.Role = domain.RoleAdmin
	_, err = uc.UpdateUser(ctx, &second)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	stored, err := uc.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, domain.RoleUser, stored.Role)
}

func TestUpdateUserValidates(t *testing.T) {
	uc, _, alice, _ := setup(t)

	edit := *alice
	edit.Role = "OWNER"
	_, err := uc.UpdateUser(context.Background(), &edit)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	edit = *alice
	edit.Name = "   "
	_, err = uc.UpdateUser(context.Background(), &edit)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestFindByName(t *testing.T) {
	uc, _, alice, _ := setup(t)

	found, err := uc.FindByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	missing, err := uc.FindByName(context.Background(), "carol")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAssignSupervisor(t *testing.T) {
	uc, _, alice, bob := setup(t)
	ctx := context.Background()

	require.NoError(t, uc.AssignSupervisor(ctx, bob.ID, alice.ID))
	supervisor, err := uc.SupervisorOf(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, supervisor.ID)

	err = uc.AssignSupervisor(ctx, alice.ID, bob.ID)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid), "customers cannot approve")

	err = uc.AssignSupervisor(ctx, alice.ID, alice.ID)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestRemoveUser(t *testing.T) {
	uc, events, _, bob := setup(t)
	ctx := context.Background()

	require.NoError(t, uc.RemoveUser(ctx, bob.ID))
	_, err := uc.GetUser(ctx, bob.ID)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
	assert.Equal(t, []domain.Event{domain.UserUpdatedEvent{UserID: bob.ID}}, events.events)

	assert.True(t, domain.IsDomainError(uc.RemoveUser(ctx, bob.ID), domain.ErrCodeNotFound))
}
