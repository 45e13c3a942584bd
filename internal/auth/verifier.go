package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Verifier struct {
	secret  []byte
	revoked RevocationChecker
	now     func() time.Time
}

type VerifierOption func(*Verifier)

func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(secret []byte, revoked RevocationChecker, opts ...VerifierOption) *Verifier {
	verifier := &Verifier{
		secret:  append([]byte(nil), secret...),
		revoked: revoked,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(verifier)
	}
	return verifier
}

// Verify runs the stateless checks and, for refresh tokens, consults the
// revocation ledger. Every credential failure wraps ErrUnauthenticated.
func (v *Verifier) Verify(ctx context.Context, raw string, kind TokenKind) (*Claims, error) {
	claims, err := v.Parse(raw, kind)
	if err != nil {
		return nil, err
	}

	if kind != KindRefresh {
		return claims, nil
	}
	if v.revoked == nil {
		return nil, errors.New("verify refresh token: no revocation ledger configured")
	}

	revoked, err := v.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevoked
	}

	return claims, nil
}

// Parse checks signature, expiry and token kind without touching storage.
func (v *Verifier) Parse(raw string, kind TokenKind) (*Claims, error) {
	if raw == "" {
		return nil, ErrMissingCredential
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	if claims.Kind != kind {
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrInvalidSignature)
	}

	return claims, nil
}
