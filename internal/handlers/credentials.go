package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/models"
	pkghttp "github.com/vaultkeeper/vaultd/pkg/http"
)

// CredentialStore defines the vault operations the credential handler
// exposes. Every operation is scoped to the owner named by the request's
// bearer claims.
type CredentialStore interface {
	List(ctx context.Context, ownerID string) ([]models.CredentialRecord, error)
	Add(ctx context.Context, ownerID string, entry models.CredentialEntry) (*models.CredentialRecord, error)
	Update(ctx context.Context, ownerID, id string, patch models.CredentialPatch) (*models.CredentialRecord, error)
	Delete(ctx context.Context, ownerID, id string) error
	RevealSecret(ctx context.Context, ownerID, id string) (string, error)
	CopySecret(ctx context.Context, ownerID, id string) (string, error)
}

// CredentialHandler handles vault entry HTTP requests.
type CredentialHandler struct {
	store CredentialStore
}

func NewCredentialHandler(store CredentialStore) *CredentialHandler {
	return &CredentialHandler{store: store}
}

// Request DTOs

type CreateCredentialRequest struct {
	Title    string  `json:"title" validate:"required,max=200"`
	Username string  `json:"username" validate:"required,max=200"`
	Secret   string  `json:"secret" validate:"required,max=1024"`
	Site     *string `json:"site,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

type UpdateCredentialRequest struct {
	Title    *string `json:"title,omitempty"`
	Username *string `json:"username,omitempty"`
	Secret   *string `json:"secret,omitempty"`
	Site     *string `json:"site,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// Response DTOs. The secret ciphertext never leaves the server; reveal
// and copy are explicit audited endpoints.

type CredentialResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Username  string    `json:"username"`
	Site      *string   `json:"site,omitempty"`
	Favicon   string    `json:"favicon,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SecretResponse struct {
	Secret string `json:"secret"`
}

func credentialResponse(record *models.CredentialRecord) CredentialResponse {
	return CredentialResponse{
		ID:        record.ID,
		Title:     record.Title,
		Username:  record.Username,
		Site:      record.Site,
		Favicon:   faviconURL(record.Site),
		Notes:     record.Notes,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

// faviconURL builds a favicon lookup URL for an entry's site so clients
// can render an icon without touching the site themselves.
func faviconURL(site *string) string {
	if site == nil || *site == "" {
		return ""
	}
	u, err := url.Parse(*site)
	if err != nil || u.Host == "" {
		return ""
	}
	return "https://www.google.com/s2/favicons?domain=" + u.Host + "&sz=64"
}

// List returns the requesting user's vault entries, newest first.
func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		writeCredentialError(w, err)
		return
	}

	records, err := h.store.List(r.Context(), claims.UserID)
	if err != nil {
		writeCredentialError(w, err)
		return
	}

	out := make([]CredentialResponse, len(records))
	for i := range records {
		out[i] = credentialResponse(&records[i])
	}
	pkghttp.WriteJSON(w, http.StatusOK, out)
}

// Create adds a new vault entry.
func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		writeCredentialError(w, err)
		return
	}

	record, err := h.store.Add(r.Context(), claims.UserID, models.CredentialEntry{
		Title:    req.Title,
		Username: req.Username,
		Secret:   req.Secret,
		Site:     req.Site,
		Notes:    req.Notes,
	})
	if err != nil {
		writeCredentialError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, credentialResponse(record))
}

// Update applies a partial patch to an entry.
func (h *CredentialHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		writeCredentialError(w, err)
		return
	}

	record, err := h.store.Update(r.Context(), claims.UserID, id, models.CredentialPatch{
		Title:    req.Title,
		Username: req.Username,
		Secret:   req.Secret,
		Site:     req.Site,
		Notes:    req.Notes,
	})
	if err != nil {
		writeCredentialError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, credentialResponse(record))
}

// Delete removes an entry.
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		writeCredentialError(w, err)
		return
	}

	if err := h.store.Delete(r.Context(), claims.UserID, id); err != nil {
		writeCredentialError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "credential deleted"})
}

// Reveal decrypts and returns an entry's secret. Every call is audited.
func (h *CredentialHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	h.decrypt(w, r, h.store.RevealSecret)
}

// Copy decrypts an entry's secret for clipboard use. Audited separately
// from reveal so the trail distinguishes viewing from copying.
func (h *CredentialHandler) Copy(w http.ResponseWriter, r *http.Request) {
	h.decrypt(w, r, h.store.CopySecret)
}

func (h *CredentialHandler) decrypt(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, ownerID, id string) (string, error)) {
	id := chi.URLParam(r, "id")

	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		writeCredentialError(w, err)
		return
	}

	secret, err := fn(r.Context(), claims.UserID, id)
	if err != nil {
		writeCredentialError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusOK, SecretResponse{Secret: secret})
}

func writeCredentialError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		pkghttp.WriteUnauthorized(w, "Not authenticated")
	case errors.Is(err, models.ErrForbidden):
		// Indistinguishable from a missing record on purpose.
		pkghttp.WriteNotFound(w, "Credential not found")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Credential not found")
	case models.IsValidationError(err):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrDecryptionFailed):
		pkghttp.WriteInternalError(w, "Unable to decrypt credential")
	case errors.Is(err, models.ErrStorage):
		pkghttp.WriteInternalError(w, "Storage unavailable")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
