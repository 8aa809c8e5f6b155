package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflane/stafflane/internal/platform/cache"
	"github.com/stafflane/stafflane/internal/platform/httpx"
)

type mockRepository struct {
	users     map[int64]*User
	listCalls int
	listErr   error
}

func (m *mockRepository) GetUser(ctx context.Context, id int64) (*User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("accounts: user %d: %w", id, httpx.ErrNotFound)
	}
	return user, nil
}

func (m *mockRepository) ListUsers(ctx context.Context) ([]User, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []User
	for _, u := range m.users {
		result = append(result, *u)
	}
	return result, nil
}

func (m *mockRepository) UpdateOverride(ctx context.Context, id int64, ov Override, expectedVersion int64) (*User, error) {
	return nil, errors.New("not implemented")
}

func newTestService(t *testing.T, repo RepositoryPort) (*Service, *cache.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewStore(client, 0)
	return NewService(repo, store, slog.Default()), store
}

func TestListUsersPopulatesAggregateCache(t *testing.T) {
	repo := &mockRepository{users: map[int64]*User{
		1: {ID: 1, Name: "Olivia", Role: "Owner"},
	}}
	service, store := newTestService(t, repo)
	ctx := context.Background()

	users, err := service.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	has, err := store.Has(ctx, cache.AllActorsKey)
	require.NoError(t, err)
	assert.True(t, has)

	// Second read is served from the cache.
	_, err = service.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)
}

func TestListUsersFallsBackOnRepoAfterInvalidation(t *testing.T) {
	repo := &mockRepository{users: map[int64]*User{
		1: {ID: 1, Name: "Olivia", Role: "Owner"},
	}}
	service, store := newTestService(t, repo)
	ctx := context.Background()

	_, err := service.ListUsers(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Invalidate(ctx, cache.AllActorsKey))

	_, err = service.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestGetUserMissing(t *testing.T) {
	service, _ := newTestService(t, &mockRepository{users: map[int64]*User{}})

	_, err := service.GetUser(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}
