package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func fetchRevocation(t *testing.T, ledger *SQLLedger, tokenID string) RevocationEntry {
	t.Helper()

	var entry RevocationEntry
	err := ledger.db.GetContext(context.Background(), &entry, `
		SELECT token_id, subject_id, revoked_at, expires_at
		FROM token_blacklist
		WHERE token_id = $1
	`, tokenID)
	require.NoError(t, err)
	return entry
}

func TestSQLLedgerRevokeAndLookup(t *testing.T) {
	ledger := NewSQLLedger(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	revoked, err := ledger.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	entry := RevocationEntry{TokenID: "jti-1", SubjectID: "user-1", RevokedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, ledger.Revoke(ctx, entry))

	revoked, err = ledger.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	got := fetchRevocation(t, ledger, "jti-1")
	assert.Equal(t, "user-1", got.SubjectID)
	assert.True(t, got.RevokedAt.Equal(now), "revoked_at = %v", got.RevokedAt)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)), "expires_at = %v", got.ExpiresAt)
}

func TestSQLLedgerRevokeIsIdempotent(t *testing.T) {
	ledger := NewSQLLedger(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := RevocationEntry{TokenID: "jti-1", SubjectID: "user-1", RevokedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, ledger.Revoke(ctx, entry))

	later := entry
	later.RevokedAt = now.Add(time.Minute)
	require.NoError(t, ledger.Revoke(ctx, later))

	got := fetchRevocation(t, ledger, "jti-1")
	assert.True(t, got.RevokedAt.Equal(now), "first revocation wins")
}

func TestSQLLedgerRevokeRequiresTokenID(t *testing.T) {
	ledger := NewSQLLedger(newTestDB(t))
	assert.Error(t, ledger.Revoke(context.Background(), RevocationEntry{SubjectID: "user-1"}))
}

func TestSQLLedgerPurge(t *testing.T) {
	ledger := NewSQLLedger(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, e := range []RevocationEntry{
		{TokenID: "old-1", SubjectID: "u", RevokedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-2 * time.Hour)},
		{TokenID: "old-2", SubjectID: "u", RevokedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{TokenID: "live", SubjectID: "u", RevokedAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		require.NoError(t, ledger.Revoke(ctx, e))
	}

	deleted, err := ledger.Purge(ctx, now, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	revoked, err := ledger.IsRevoked(ctx, "old-1")
	require.NoError(t, err)
	assert.False(t, revoked, "oldest expiry goes first")

	deleted, err = ledger.Purge(ctx, now, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	revoked, err = ledger.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked, "unexpired entries are kept")
}

func TestSQLLedgerRevokeQueryShape(t *testing.T) {
	database, mock := newMockDB(t)
	ledger := NewSQLLedger(database)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+token_blacklist\s+\(token_id, subject_id, revoked_at, expires_at\).*ON CONFLICT \(token_id\) DO NOTHING`).
		WithArgs("jti-1", "user-1", now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ledger.Revoke(context.Background(), RevocationEntry{
		TokenID: "jti-1", SubjectID: "user-1", RevokedAt: now, ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerWrapsErrors(t *testing.T) {
	database, mock := newMockDB(t)
	ledger := NewSQLLedger(database)
	boom := errors.New("connection reset")

	mock.ExpectExec(`INSERT INTO token_blacklist`).WillReturnError(boom)
	err := ledger.Revoke(context.Background(), RevocationEntry{TokenID: "jti-1", SubjectID: "user-1"})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "insert blacklist entry")

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("jti-1").WillReturnError(boom)
	_, err = ledger.IsRevoked(context.Background(), "jti-1")
	require.ErrorIs(t, err, boom)

	mock.ExpectExec(`DELETE FROM token_blacklist`).WillReturnError(boom)
	_, err = ledger.Purge(context.Background(), time.Now(), 10)
	require.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}
