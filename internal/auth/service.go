package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

const maxUsernameLength = 150

type Service struct {
	store    UserStore
	ledger   Ledger
	hasher   PasswordHasher
	issuer   *Issuer
	verifier *Verifier
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(store UserStore, ledger Ledger, hasher PasswordHasher, issuer *Issuer, verifier *Verifier) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		hasher:   hasher,
		issuer:   issuer,
		verifier: verifier,
		now:      time.Now,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = RoleUser
	}

	if err := validateRegistration(&in); err != nil {
		return Identity{}, err
	}

	usernameTaken, emailTaken, err := s.store.Taken(ctx, in.Username, in.Email)
	if err != nil {
		return Identity{}, err
	}
	if usernameTaken {
		return Identity{}, &ConflictError{Field: "username"}
	}
	if emailTaken {
		return Identity{}, &ConflictError{Field: "email"}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Identity{}, err
	}

	identity := Identity{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err := s.store.Create(ctx, &identity); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a race with a concurrent registration.
			return Identity{}, &ConflictError{Field: "username or email"}
		}
		return Identity{}, err
	}

	return identity, nil
}

// Login answers ErrInvalidCredentials for both an unknown username and a
// wrong password, spending one bcrypt comparison either way.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	username = strings.TrimSpace(username)

	identity, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = s.hasher.Compare(s.timingHash(), password)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	if err := s.hasher.Compare(identity.PasswordHash, password); err != nil {
		return TokenPair{}, err
	}

	return s.issuer.Issue(identity)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (AccessGrant, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return AccessGrant{}, newValidationError("refresh", "this field is required")
	}

	claims, err := s.verifier.Verify(ctx, refreshToken, KindRefresh)
	if err != nil {
		return AccessGrant{}, err
	}

	return s.issuer.IssueAccess(claims.Subject, claims.Role)
}

// Logout blacklists refreshToken on behalf of caller. Logging out twice with
// the same token succeeds both times.
func (s *Service) Logout(ctx context.Context, caller *Claims, refreshToken string) error {
	if caller == nil {
		return ErrMissingCredential
	}

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return newValidationError("refresh", "this field is required")
	}

	claims, err := s.verifier.Parse(refreshToken, KindRefresh)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return newValidationError("refresh", "invalid token")
		}
		return err
	}
	if claims.Subject != caller.Subject {
		return newValidationError("refresh", "invalid token")
	}

	entry := RevocationEntry{
		TokenID:   claims.ID,
		SubjectID: claims.Subject,
		RevokedAt: s.now().UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if err := s.ledger.Revoke(ctx, entry); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

func (s *Service) Profile(ctx context.Context, claims *Claims) (Identity, error) {
	if claims == nil {
		return Identity{}, ErrMissingCredential
	}

	identity, err := s.store.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, fmt.Errorf("%w: identity no longer exists", ErrUnauthenticated)
		}
		return Identity{}, err
	}

	return identity, nil
}

// EnsureAdmin creates the configured admin identity when it does not exist
// yet. It reports whether an identity was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" && strings.TrimSpace(email) == "" && password == "" {
		return false, nil
	}
	if username == "" || strings.TrimSpace(email) == "" || password == "" {
		return false, errors.New("ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	_, err := s.store.GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	_, err = s.Register(ctx, RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     RoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}

	return true, nil
}

func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("timing-equaliser-password")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func validateRegistration(in *RegisterInput) error {
	verr := &ValidationError{}

	switch {
	case in.Username == "":
		verr.add("username", "this field is required")
	case utf8.RuneCountInString(in.Username) > maxUsernameLength:
		verr.add("username", fmt.Sprintf("must be at most %d characters", maxUsernameLength))
	case !validUsername(in.Username):
		verr.add("username", "may contain only letters, digits and @/./+/-/_")
	}

	if in.Email == "" {
		verr.add("email", "this field is required")
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		verr.add("email", "enter a valid email address")
	}

	if in.Password == "" {
		verr.add("password", "this field is required")
	} else if msg := validatePassword(in.Password, in.Username); msg != "" {
		verr.add("password", msg)
	}

	if !in.Role.Valid() {
		verr.add("role", "must be one of: user, admin")
	}

	return verr.orNil()
}

func validUsername(username string) bool {
	for _, r := range username {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '@', '.', '+', '-', '_':
			continue
		}
		return false
	}
	return true
}
