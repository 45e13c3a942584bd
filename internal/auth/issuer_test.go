package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseUnverified(t *testing.T, raw string) *Claims {
	t.Helper()

	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	require.NoError(t, err)
	return claims
}

func TestNewIssuerValidation(t *testing.T) {
	tests := []struct {
		name    string
		secret  []byte
		access  time.Duration
		refresh time.Duration
	}{
		{"empty secret", nil, time.Minute, time.Hour},
		{"zero access", []byte(testSecret), 0, time.Hour},
		{"access equals refresh", []byte(testSecret), time.Hour, time.Hour},
		{"access longer than refresh", []byte(testSecret), 2 * time.Hour, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIssuer(tt.secret, tt.access, tt.refresh)
			assert.Error(t, err)
		})
	}
}

func TestIssuerIssue(t *testing.T) {
	clock := newTestClock()
	issuer, err := NewIssuer([]byte(testSecret), DefaultAccessTTL, DefaultRefreshTTL, WithIssuerClock(clock.Now))
	require.NoError(t, err)

	pair, err := issuer.Issue(Identity{ID: "user-1", Role: RoleAdmin})
	require.NoError(t, err)

	access := parseUnverified(t, pair.Access)
	assert.Equal(t, "user-1", access.Subject)
	assert.Equal(t, RoleAdmin, access.Role)
	assert.Equal(t, KindAccess, access.Kind)
	assert.Equal(t, clock.Now().Add(DefaultAccessTTL).Unix(), access.ExpiresAt.Unix())
	assert.Equal(t, clock.Now().Unix(), access.IssuedAt.Unix())

	refresh := parseUnverified(t, pair.Refresh)
	assert.Equal(t, "user-1", refresh.Subject)
	assert.Equal(t, KindRefresh, refresh.Kind)
	assert.Equal(t, pair.RefreshTokenID, refresh.ID)
	assert.Equal(t, clock.Now().Add(DefaultRefreshTTL).Unix(), pair.RefreshExpiresAt.Unix())
	assert.True(t, pair.AccessExpiresAt.Before(pair.RefreshExpiresAt))

	id, err := uuid.Parse(refresh.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
}

func TestIssuerIssuesFreshTokenIDs(t *testing.T) {
	issuer, err := NewIssuer([]byte(testSecret), DefaultAccessTTL, DefaultRefreshTTL)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		pair, err := issuer.Issue(Identity{ID: "user-1", Role: RoleUser})
		require.NoError(t, err)
		require.False(t, seen[pair.RefreshTokenID], "token id reused")
		seen[pair.RefreshTokenID] = true
	}
}

func TestIssuerIssueAccess(t *testing.T) {
	clock := newTestClock()
	issuer, err := NewIssuer([]byte(testSecret), DefaultAccessTTL, DefaultRefreshTTL, WithIssuerClock(clock.Now))
	require.NoError(t, err)

	grant, err := issuer.IssueAccess("user-2", RoleUser)
	require.NoError(t, err)

	claims := parseUnverified(t, grant.Access)
	assert.Equal(t, "user-2", claims.Subject)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.Equal(t, clock.Now().Add(DefaultAccessTTL).Unix(), grant.ExpiresAt.Unix())
}

func TestIssuerRejectsEmptySubject(t *testing.T) {
	issuer, err := NewIssuer([]byte(testSecret), DefaultAccessTTL, DefaultRefreshTTL)
	require.NoError(t, err)

	_, err = issuer.Issue(Identity{Role: RoleUser})
	assert.Error(t, err)
}
