package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/storefront/domain"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, Seed(ctx, store))

	users, err := store.Users().List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 4)

	customer, err := store.Users().GetByName(ctx, "Customer1")
	require.NoError(t, err)
	supervisor, err := store.Users().SupervisorOf(ctx, customer.ID)
	require.NoError(t, err)
	require.NotNil(t, supervisor)
	assert.Equal(t, "User1", supervisor.Name)

	admin, err := store.Users().GetByName(ctx, "Admin")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	none, err := store.Users().SupervisorOf(ctx, admin.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	products, err := store.Products().List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 4)
	assert.Equal(t, "39.9", products[0].Price.String())
}

func TestSeed_Twice(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, Seed(ctx, store))

	err := Seed(ctx, store)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))
}
