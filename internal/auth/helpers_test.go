package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"authservice/internal/db"
)

const testSecret = "test-secret-0123456789abcdef0123456789"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestDB returns a migrated SQLite database in a temp dir.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "auth.db")
	database, dialect, err := db.Open("sqlite://"+path, db.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(context.Background(), database, dialect, nil))
	return sqlx.NewDb(database, "sqlite3")
}

type testStack struct {
	db       *sqlx.DB
	clock    *testClock
	store    *SQLUserStore
	ledger   *SQLLedger
	hasher   *BcryptHasher
	issuer   *Issuer
	verifier *Verifier
	service  *Service
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	database := newTestDB(t)
	clock := newTestClock()

	store := NewSQLUserStore(database)
	store.now = clock.Now
	ledger := NewSQLLedger(database)
	hasher := NewBcryptHasher(bcrypt.MinCost)

	issuer, err := NewIssuer([]byte(testSecret), DefaultAccessTTL, DefaultRefreshTTL, WithIssuerClock(clock.Now))
	require.NoError(t, err)
	verifier := NewVerifier([]byte(testSecret), ledger, WithVerifierClock(clock.Now))

	service := NewService(store, ledger, hasher, issuer, verifier)
	service.now = clock.Now

	return &testStack{
		db:       database,
		clock:    clock,
		store:    store,
		ledger:   ledger,
		hasher:   hasher,
		issuer:   issuer,
		verifier: verifier,
		service:  service,
	}
}

func (s *testStack) register(t *testing.T, username, password string, role Role) Identity {
	t.Helper()

	identity, err := s.service.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		Role:     role,
	})
	require.NoError(t, err)
	return identity
}

func (s *testStack) login(t *testing.T, username, password string) TokenPair {
	t.Helper()

	pair, err := s.service.Login(context.Background(), username, password)
	require.NoError(t, err)
	return pair
}
