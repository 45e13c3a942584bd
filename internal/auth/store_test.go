package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLUserStoreCreateAndGet(t *testing.T) {
	store := NewSQLUserStore(newTestDB(t))
	ctx := context.Background()

	identity := Identity{Username: "alice", Email: "alice@example.com", PasswordHash: "hash", Role: RoleUser}
	require.NoError(t, store.Create(ctx, &identity))

	id, err := uuid.Parse(identity.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.False(t, identity.CreatedAt.IsZero())

	byName, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, identity.ID, byName.ID)
	assert.Equal(t, "hash", byName.PasswordHash)
	assert.Equal(t, RoleUser, byName.Role)
	assert.True(t, identity.CreatedAt.Equal(byName.CreatedAt))

	byID, err := store.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)
}

func TestSQLUserStoreNotFound(t *testing.T) {
	store := NewSQLUserStore(newTestDB(t))

	_, err := store.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetByID(context.Background(), "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLUserStoreUniqueness(t *testing.T) {
	store := NewSQLUserStore(newTestDB(t))
	ctx := context.Background()

	first := Identity{Username: "alice", Email: "alice@example.com", PasswordHash: "h", Role: RoleUser}
	require.NoError(t, store.Create(ctx, &first))

	dupName := Identity{Username: "alice", Email: "other@example.com", PasswordHash: "h", Role: RoleUser}
	assert.ErrorIs(t, store.Create(ctx, &dupName), ErrConflict)

	dupEmail := Identity{Username: "alice2", Email: "alice@example.com", PasswordHash: "h", Role: RoleUser}
	assert.ErrorIs(t, store.Create(ctx, &dupEmail), ErrConflict)

	usernameTaken, emailTaken, err := store.Taken(ctx, "alice", "new@example.com")
	require.NoError(t, err)
	assert.True(t, usernameTaken)
	assert.False(t, emailTaken)

	usernameTaken, emailTaken, err = store.Taken(ctx, "bob", "alice@example.com")
	require.NoError(t, err)
	assert.False(t, usernameTaken)
	assert.True(t, emailTaken)
}

func TestSQLUserStoreRejectsUnknownRole(t *testing.T) {
	store := NewSQLUserStore(newTestDB(t))

	identity := Identity{Username: "mallory", Email: "m@example.com", PasswordHash: "h", Role: Role("root")}
	err := store.Create(context.Background(), &identity)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestSQLUserStoreWrapsQueryErrors(t *testing.T) {
	database, mock := newMockDB(t)
	store := NewSQLUserStore(database)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`(?s)SELECT id, username, email, password_hash, role, created_at\s+FROM users\s+WHERE username = \$1`).
		WithArgs("alice").
		WillReturnError(boom)

	_, err := store.GetByUsername(context.Background(), "alice")
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "query user by username")
	require.NoError(t, mock.ExpectationsWereMet())
}
