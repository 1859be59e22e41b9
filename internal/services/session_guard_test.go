package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/fastygo/storefront/domain"
)

type mockUsers struct{ mock.Mock }

func (m *mockUsers) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

type mockRevoker struct{ mock.Mock }

func (m *mockRevoker) RevokeUser(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func TestSessionGuard_RevokesInactiveUser(t *testing.T) {
	users := &mockUsers{}
	revoker := &mockRevoker{}
	users.On("GetUser", mock.Anything, int64(3)).Return(&domain.User{ID: 3, Active: false}, nil)
	revoker.On("RevokeUser", mock.Anything, int64(3)).Return(nil)

	NewSessionGuard(users, revoker, 0, nil).OnEvent(domain.UserUpdatedEvent{UserID: 3})

	revoker.AssertExpectations(t)
}

func TestSessionGuard_KeepsActiveUser(t *testing.T) {
	users := &mockUsers{}
	revoker := &mockRevoker{}
	users.On("GetUser", mock.Anything, int64(3)).Return(&domain.User{ID: 3, Active: true}, nil)

	NewSessionGuard(users, revoker, 0, nil).OnEvent(domain.UserUpdatedEvent{UserID: 3})

	revoker.AssertNotCalled(t, "RevokeUser", mock.Anything, mock.Anything)
}

func TestSessionGuard_RevokesDeletedUser(t *testing.T) {
	users := &mockUsers{}
	revoker := &mockRevoker{}
	users.On("GetUser", mock.Anything, int64(9)).Return(nil, domain.ErrUserNotFound)
	revoker.On("RevokeUser", mock.Anything, int64(9)).Return(errors.New("redis down"))

	NewSessionGuard(users, revoker, 0, nil).OnEvent(domain.UserUpdatedEvent{UserID: 9})

	revoker.AssertExpectations(t)
}

func TestSessionGuard_IgnoresOtherEvents(t *testing.T) {
	users := &mockUsers{}
	revoker := &mockRevoker{}

	guard := NewSessionGuard(users, revoker, 0, nil)
	guard.OnEvent(domain.MessageEvent{Message: "hi"})
	guard.OnEvent(domain.ShutdownEvent{})

	users.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	assert.Empty(t, revoker.Calls)
}
