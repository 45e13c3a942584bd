package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"authservice/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type identityResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

func newIdentityResponse(identity Identity) identityResponse {
	return identityResponse{
		ID:       identity.ID,
		Username: identity.Username,
		Email:    identity.Email,
		Role:     identity.Role,
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	identity, err := h.service.Register(r.Context(), RegisterInput{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		Role:     Role(strings.TrimSpace(body.Role)),
	})
	if err != nil {
		h.fail(w, r, err, "failed to register user")
		return
	}

	h.logger.Info("user_registered", map[string]any{"user_id": identity.ID, "role": string(identity.Role)})
	writeJSON(w, http.StatusCreated, newIdentityResponse(identity))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	verr := &ValidationError{}
	if strings.TrimSpace(body.Username) == "" {
		verr.add("username", "this field is required")
	}
	if body.Password == "" {
		verr.add("password", "this field is required")
	}
	if err := verr.orNil(); err != nil {
		h.fail(w, r, err, "failed to login")
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		h.fail(w, r, err, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	grant, err := h.service.Refresh(r.Context(), body.Refresh)
	if err != nil {
		h.fail(w, r, err, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.fail(w, r, ErrMissingCredential, "failed to logout")
		return
	}

	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), claims, body.Refresh); err != nil {
		h.fail(w, r, err, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusResetContent)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.fail(w, r, ErrMissingCredential, "failed to load profile")
		return
	}

	identity, err := h.service.Profile(r.Context(), claims)
	if err != nil {
		h.fail(w, r, err, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, newIdentityResponse(identity))
}

func (h *Handler) AdminOnly(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome, admin."})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if unexpected := writeServiceError(w, r, err, fallback); unexpected {
		h.logger.Error("auth_request_failed", map[string]any{
			"path":  r.URL.Path,
			"error": err,
		})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// writeServiceError maps service errors to status codes and generic messages.
// It reports whether err was unexpected, in which case it was also sent to
// Sentry.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) bool {
	var verr *ValidationError
	var cerr *ConflictError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.As(err, &cerr):
		writeError(w, http.StatusBadRequest, "a user with that "+cerr.Field+" already exists")
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, ErrMissingCredential):
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
		writeError(w, http.StatusUnauthorized, "authentication credentials were not provided")
	case errors.Is(err, ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "you do not have permission to perform this action")
	default:
		observability.CaptureError(r.Context(), err, map[string]string{"path": r.URL.Path})
		writeError(w, http.StatusInternalServerError, fallback)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
