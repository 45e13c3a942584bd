package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is a registered user. PasswordHash never leaves the process.
type Identity struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
}

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the JWT payload for both token kinds. The jti doubles as the
// revocation key for refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role Role      `json:"role"`
	Kind TokenKind `json:"typ"`
}

func (c *Claims) SubjectID() string { return c.Subject }

func (c *Claims) TokenID() string { return c.ID }

type TokenPair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	RefreshTokenID   string    `json:"-"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

type AccessGrant struct {
	Access    string    `json:"access"`
	ExpiresAt time.Time `json:"-"`
}

type RevocationEntry struct {
	TokenID   string    `db:"token_id"`
	SubjectID string    `db:"subject_id"`
	RevokedAt time.Time `db:"revoked_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     Role
}
