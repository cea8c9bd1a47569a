package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/models"
	"github.com/vaultkeeper/vaultd/internal/services"
	pkghttp "github.com/vaultkeeper/vaultd/pkg/http"
)

// SessionGateway defines the session operations the auth handler
// exposes. Authenticated operations name the acting user; handlers take
// it from the validated bearer claims, never from shared state.
type SessionGateway interface {
	Login(ctx context.Context, email, password, totpCode string) (*models.Session, error)
	FederatedLogin(ctx context.Context, idToken string) (*models.Session, error)
	Register(ctx context.Context, email, password string) services.RegisterResult
	Logout(ctx context.Context, userID string)
	ChangePassword(ctx context.Context, userID, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) error
	CurrentUser(userID string) (*models.User, error)
}

// AuthHandler handles authentication HTTP requests.
type AuthHandler struct {
	session SessionGateway
}

func NewAuthHandler(session SessionGateway) *AuthHandler {
	return &AuthHandler{session: session}
}

// Request DTOs

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code"`
}

type FederatedLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
}

type ResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Response DTOs

type UserResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	EmailVerified  bool   `json:"email_verified"`
	TwoFactorState string `json:"two_factor_state"`
}

type SessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         UserResponse `json:"user"`
}

type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func userResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:             user.ID,
		Email:          user.Email,
		EmailVerified:  user.EmailVerified,
		TwoFactorState: string(user.TwoFactorStatus()),
	}
}

// Login authenticates with email, password, and an optional TOTP code.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	session, err := h.session.Login(r.Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorRequired):
			// Signals the caller to re-submit with a code.
			pkghttp.WriteError(w, http.StatusUnauthorized, "two_factor_required", "A two-factor code is required")
		case errors.Is(err, models.ErrTooManyAttempts):
			pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.")
		case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrInvalidToken):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case models.IsValidationError(err):
			pkghttp.WriteBadRequest(w, err.Error())
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		User:         userResponse(session.User),
	})
}

// FederatedLogin authenticates with an external identity provider token.
func (h *AuthHandler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	var req FederatedLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	session, err := h.session.FederatedLogin(r.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		User:         userResponse(session.User),
	})
}

// Register creates a new account. Failures come back as a 200 with
// success=false; the message is safe to render inline.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result := h.session.Register(r.Context(), req.Email, req.Password)
	status := http.StatusCreated
	if !result.Success {
		status = http.StatusOK
	}
	pkghttp.WriteJSON(w, status, RegisterResponse{
		Success: result.Success,
		Message: result.Message,
	})
}

// Logout ends the requesting user's session only.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}
	h.session.Logout(r.Context(), claims.UserID)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me returns the requesting user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ClaimsFromContext(r.Context())
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}
	user, err := h.session.CurrentUser(claims.UserID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, userResponse(user))
}

// ChangePassword rotates the account password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
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

	if err := h.session.ChangePassword(r.Context(), claims.UserID, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrNotAuthenticated):
			pkghttp.WriteUnauthorized(w, "Not authenticated")
		case models.IsValidationError(err):
			pkghttp.WriteBadRequest(w, err.Error())
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// RequestPasswordReset triggers a reset email. The response is identical
// whether or not the account exists.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.session.RequestPasswordReset(r.Context(), req.Email); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for that address, a reset email has been sent",
	})
}
