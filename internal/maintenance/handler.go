package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"authservice/internal/observability"
)

// Purger drops blacklist entries whose tokens expired before a cut-off.
type Purger interface {
	Purge(ctx context.Context, before time.Time, batchSize int) (int64, error)
}

type CleanupResult struct {
	DeletedBlacklistEntries int64     `json:"deleted_blacklist_entries"`
	Cutoff                  time.Time `json:"cutoff"`
}

type CleanupHandler struct {
	purger     Purger
	logger     *observability.Logger
	cronSecret string
	batchSize  int
	now        func() time.Time
}

func NewCleanupHandler(purger Purger, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &CleanupHandler{
		purger:     purger,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
		now:        time.Now,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cutoff := h.now().UTC()
	deleted, err := h.purger.Purge(r.Context(), cutoff, h.batchSize)
	if err != nil {
		observability.CaptureError(r.Context(), err, map[string]string{"job": "blacklist_purge"})
		h.logger.Error("blacklist_purge_failed", map[string]any{"error": err})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("blacklist_purge_completed", map[string]any{
		"deleted_blacklist_entries": deleted,
		"batch_size":                h.batchSize,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": CleanupResult{DeletedBlacklistEntries: deleted, Cutoff: cutoff},
	})
}

func (h *CleanupHandler) authorized(r *http.Request) bool {
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}
	presented := strings.TrimSpace(parts[1])
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.cronSecret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
