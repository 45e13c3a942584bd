package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type claimsContextKey struct{}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok && claims != nil
}

// Gate guards routes with bearer access tokens and an optional role.
type Gate struct {
	verifier *Verifier
}

func NewGate(verifier *Verifier) *Gate {
	return &Gate{verifier: verifier}
}

// Authorize verifies the request's access token. An empty required role
// admits any authenticated identity.
func (g *Gate) Authorize(r *http.Request, required Role) (*Claims, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	claims, err := g.verifier.Verify(r.Context(), raw, KindAccess)
	if err != nil {
		return nil, err
	}

	if err := RequireRole(claims, required); err != nil {
		return nil, err
	}

	return claims, nil
}

func RequireRole(claims *Claims, required Role) error {
	if claims == nil {
		return ErrMissingCredential
	}
	if required == "" || claims.Role == required {
		return nil
	}
	return ErrForbidden
}

func (g *Gate) Middleware(required Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := g.Authorize(r, required)
			if err != nil {
				writeServiceError(w, r, err, "failed to authorize request")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingCredential
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: invalid authorization format", ErrInvalidSignature)
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingCredential
	}

	return token, nil
}
