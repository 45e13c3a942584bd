package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"authservice/internal/db"
)

type UserStore interface {
	// Create assigns ID and CreatedAt on success.
	Create(ctx context.Context, identity *Identity) error
	GetByUsername(ctx context.Context, username string) (Identity, error)
	GetByID(ctx context.Context, id string) (Identity, error)
	Taken(ctx context.Context, username, email string) (usernameTaken bool, emailTaken bool, err error)
}

type SQLUserStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLUserStore(database *sqlx.DB) *SQLUserStore {
	return &SQLUserStore{db: database, now: time.Now}
}

func (s *SQLUserStore) Create(ctx context.Context, identity *Identity) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}
	createdAt := s.now().UTC().Truncate(time.Second)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id.String(), identity.Username, identity.Email, identity.PasswordHash, string(identity.Role), createdAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	identity.ID = id.String()
	identity.CreatedAt = createdAt
	return nil
}

func (s *SQLUserStore) GetByUsername(ctx context.Context, username string) (Identity, error) {
	return s.getOne(ctx, "query user by username", `
		SELECT id, username, email, password_hash, role, created_at
		FROM users
		WHERE username = $1
	`, username)
}

func (s *SQLUserStore) GetByID(ctx context.Context, id string) (Identity, error) {
	return s.getOne(ctx, "query user by id", `
		SELECT id, username, email, password_hash, role, created_at
		FROM users
		WHERE id = $1
	`, id)
}

func (s *SQLUserStore) getOne(ctx context.Context, op, query string, arg any) (Identity, error) {
	var identity Identity
	if err := s.db.GetContext(ctx, &identity, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

func (s *SQLUserStore) Taken(ctx context.Context, username, email string) (bool, bool, error) {
	var usernameTaken, emailTaken bool
	err := s.db.QueryRowxContext(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM users WHERE username = $1),
			EXISTS(SELECT 1 FROM users WHERE email = $2)
	`, username, email).Scan(&usernameTaken, &emailTaken)
	if err != nil {
		return false, false, fmt.Errorf("check user uniqueness: %w", err)
	}
	return usernameTaken, emailTaken, nil
}
