package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

var signingMethod = jwt.SigningMethodHS256

// Issuer mints signed access/refresh pairs. It holds no mutable state and is
// safe for concurrent use.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	newTokenID func() string
}

type IssuerOption func(*Issuer)

func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(secret []byte, accessTTL, refreshTTL time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if accessTTL >= refreshTTL {
		return nil, fmt.Errorf("access ttl %s must be shorter than refresh ttl %s", accessTTL, refreshTTL)
	}

	issuer := &Issuer{
		secret:     append([]byte(nil), secret...),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		newTokenID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(issuer)
	}

	return issuer, nil
}

// Issue returns a fresh pair for identity. Every call yields a new refresh
// token id.
func (i *Issuer) Issue(identity Identity) (TokenPair, error) {
	now := i.now()

	access, _, accessExp, err := i.sign(identity.ID, identity.Role, KindAccess, now, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshID, refreshExp, err := i.sign(identity.ID, identity.Role, KindRefresh, now, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		Access:           access,
		Refresh:          refresh,
		RefreshTokenID:   refreshID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueAccess mints a standalone access token, used when exchanging a
// verified refresh token.
func (i *Issuer) IssueAccess(subjectID string, role Role) (AccessGrant, error) {
	access, _, exp, err := i.sign(subjectID, role, KindAccess, i.now(), i.accessTTL)
	if err != nil {
		return AccessGrant{}, err
	}
	return AccessGrant{Access: access, ExpiresAt: exp}, nil
}

func (i *Issuer) sign(subjectID string, role Role, kind TokenKind, now time.Time, ttl time.Duration) (string, string, time.Time, error) {
	if subjectID == "" {
		return "", "", time.Time{}, errors.New("sign jwt: empty subject")
	}

	tokenID := i.newTokenID()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
		Kind: kind,
	}

	encoded, err := jwt.NewWithClaims(signingMethod, claims).SignedString(i.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, tokenID, claims.ExpiresAt.Time, nil
}
