package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/models"
	pkghttp "github.com/vaultkeeper/vaultd/pkg/http"
)

// TwoFactorGateway defines the 2FA lifecycle operations for one user.
type TwoFactorGateway interface {
	Setup2FA(ctx context.Context, userID string) (qrDataURI string, backupCodes []string, err error)
	Verify2FA(ctx context.Context, userID, code string) error
	Disable2FA(ctx context.Context, userID string) error
}

// TwoFactorHandler handles TOTP enrollment HTTP requests.
type TwoFactorHandler struct {
	gateway TwoFactorGateway
}

func NewTwoFactorHandler(gateway TwoFactorGateway) *TwoFactorHandler {
	return &TwoFactorHandler{gateway: gateway}
}

type VerifyTwoFactorRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8"`
}

type SetupTwoFactorResponse struct {
	QRCode      string   `json:"qr_code"` // data URI, render as an <img>
	BackupCodes []string `json:"backup_codes"`
}

// Setup provisions a pending TOTP secret and returns the QR code plus
// one-shot backup codes. The codes are shown exactly once.
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	qr, codes, err := h.gateway.Setup2FA(r.Context(), claims.UserID)
	if err != nil {
		writeTwoFactorError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SetupTwoFactorResponse{
		QRCode:      qr,
		BackupCodes: codes,
	})
}

// Verify confirms a code from the authenticator app and turns
// enforcement on.
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest
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
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	if err := h.gateway.Verify2FA(r.Context(), claims.UserID, req.Code); err != nil {
		writeTwoFactorError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "two-factor authentication enabled"})
}

// Disable turns two-factor enforcement off and discards the secret and
// backup codes.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	if err := h.gateway.Disable2FA(r.Context(), claims.UserID); err != nil {
		writeTwoFactorError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "two-factor authentication disabled"})
}

func writeTwoFactorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		pkghttp.WriteUnauthorized(w, "Not authenticated")
	case errors.Is(err, models.ErrInvalidToken):
		pkghttp.WriteBadRequest(w, "Invalid verification code")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Two-factor setup has not been started")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
