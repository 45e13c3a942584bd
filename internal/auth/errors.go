package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnauthenticated is the parent of every credential failure. Callers map
// it to 401 without learning which check failed.
var ErrUnauthenticated = errors.New("unauthenticated")

var (
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	ErrInvalidSignature  = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrExpired           = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrWrongTokenType    = fmt.Errorf("%w: wrong token type", ErrUnauthenticated)
	ErrRevoked           = fmt.Errorf("%w: token revoked", ErrUnauthenticated)
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("identity already exists")
	ErrNotFound           = errors.New("identity not found")
	ErrValidation         = errors.New("validation failed")
)

// ConflictError names the unique field that collided.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError maps request fields to human readable messages.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
