package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/models"
	pkghttp "github.com/vaultkeeper/vaultd/pkg/http"
)

// AuditReader lists a user's recent security events.
type AuditReader interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]models.SecurityEvent, error)
}

// AuditHandler serves the security event trail.
type AuditHandler struct {
	reader AuditReader
}

func NewAuditHandler(reader AuditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

type SecurityEventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// List returns the session user's recent security events, newest first.
// An optional limit query parameter caps the page size.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			pkghttp.WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
	}

	events, err := h.reader.ListRecent(r.Context(), claims.UserID, limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	out := make([]SecurityEventResponse, len(events))
	for i, e := range events {
		out[i] = SecurityEventResponse{
			ID:        e.ID,
			Type:      e.Type,
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		}
	}
	pkghttp.WriteJSON(w, http.StatusOK, out)
}
