package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Ledger is the durable record of revoked refresh tokens.
type Ledger interface {
	RevocationChecker
	Revoke(ctx context.Context, entry RevocationEntry) error
	Purge(ctx context.Context, before time.Time, batchSize int) (int64, error)
}

type SQLLedger struct {
	db *sqlx.DB
}

func NewSQLLedger(database *sqlx.DB) *SQLLedger {
	return &SQLLedger{db: database}
}

// Revoke records entry. Revoking an already revoked token id is a no-op.
func (l *SQLLedger) Revoke(ctx context.Context, entry RevocationEntry) error {
	if entry.TokenID == "" {
		return fmt.Errorf("revoke token: empty token id")
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO token_blacklist (token_id, subject_id, revoked_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO NOTHING
	`, entry.TokenID, entry.SubjectID, entry.RevokedAt.UTC(), entry.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}

	return nil
}

func (l *SQLLedger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := l.db.GetContext(ctx, &revoked, `SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE token_id = $1)`, tokenID)
	if err != nil {
		return false, fmt.Errorf("query blacklist entry: %w", err)
	}
	return revoked, nil
}

// Purge deletes at most batchSize entries whose tokens expired before the
// cut-off. Those tokens already fail the expiry check.
func (l *SQLLedger) Purge(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	result, err := l.db.ExecContext(ctx, `
		DELETE FROM token_blacklist
		WHERE token_id IN (
			SELECT token_id
			FROM token_blacklist
			WHERE expires_at < $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, before.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("purge blacklist entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge blacklist rows affected: %w", err)
	}
	return deleted, nil
}
