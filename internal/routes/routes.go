package routes

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/handlers"
	"github.com/vaultkeeper/vaultd/internal/middleware"
	"github.com/vaultkeeper/vaultd/internal/models"
)

// SessionResumer restores a user's engine session from a bearer token
// after a process restart, so a still-valid token keeps working.
type SessionResumer interface {
	CurrentUser(userID string) (*models.User, error)
	Resume(ctx context.Context, accessToken string) (*models.Session, error)
}

// resumeSession re-seeds the engine session for the token's user when it
// is missing. The check is keyed by the claims' user ID, so one user's
// session state is never consulted or replaced on another user's behalf.
func resumeSession(resumer SessionResumer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, err := auth.ClaimsFromContext(r.Context()); err == nil {
				if _, err := resumer.CurrentUser(claims.UserID); err != nil {
					// Token already validated by the auth middleware.
					token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
					_, _ = resumer.Resume(r.Context(), token)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handlers bundles every handler the API mounts.
type Handlers struct {
	Auth       *handlers.AuthHandler
	TwoFactor  *handlers.TwoFactorHandler
	Credential *handlers.CredentialHandler
	Audit      *handlers.AuditHandler
	Passgen    *handlers.PassgenHandler
}

// RegisterRoutes mounts the API under /api. Authentication endpoints are
// public but rate limited per IP; everything else requires a bearer
// session token.
func RegisterRoutes(router chi.Router, h Handlers, tokenManager *auth.TokenManager, resumer SessionResumer) {
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())

	router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/auth/register", h.Auth.Register)
			r.Post("/auth/login", h.Auth.Login)
			r.Post("/auth/federated", h.Auth.FederatedLogin)
			r.Post("/auth/reset-request", h.Auth.RequestPasswordReset)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(tokenManager))
			r.Use(resumeSession(resumer))

			r.Post("/auth/logout", h.Auth.Logout)
			r.Get("/auth/me", h.Auth.Me)
			r.Post("/auth/password", h.Auth.ChangePassword)

			r.Post("/auth/2fa/setup", h.TwoFactor.Setup)
			r.Post("/auth/2fa/verify", h.TwoFactor.Verify)
			r.Post("/auth/2fa/disable", h.TwoFactor.Disable)

			r.Get("/credentials", h.Credential.List)
			r.Post("/credentials", h.Credential.Create)
			r.Put("/credentials/{id}", h.Credential.Update)
			r.Delete("/credentials/{id}", h.Credential.Delete)
			r.Post("/credentials/{id}/reveal", h.Credential.Reveal)
			r.Post("/credentials/{id}/copy", h.Credential.Copy)

			r.Get("/audit", h.Audit.List)
			r.Get("/passgen", h.Passgen.Generate)
		})
	})
}
