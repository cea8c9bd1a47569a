package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/handlers"
	"github.com/vaultkeeper/vaultd/internal/models"
	"github.com/vaultkeeper/vaultd/internal/services"
	pkglogger "github.com/vaultkeeper/vaultd/pkg/logger"
)

const routesTestJWTSecret = "routes-test-jwt-secret-0123456789"

// newTestAPI wires the real session and credential services behind the
// full router so tests exercise the same identity path as production:
// bearer token in, middleware claims, per-user engine state.
func newTestAPI(t *testing.T, usersByEmail map[string]*models.User) chi.Router {
	t.Helper()

	byID := make(map[string]*models.User, len(usersByEmail))
	for _, u := range usersByEmail {
		byID[u.ID] = u
	}

	userRepo := &services.MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if u, ok := usersByEmail[email]; ok {
				return u, nil
			}
			return nil, models.ErrNotFound
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if u, ok := byID[id]; ok {
				return u, nil
			}
			return nil, models.ErrNotFound
		},
	}

	// Every owner has exactly one record, named after them, so a
	// response body tells us immediately whose vault was served.
	credRepo := &services.MockCredentialRepository{
		ListByOwnerFunc: func(ctx context.Context, ownerID string) ([]models.CredentialRecord, error) {
			return []models.CredentialRecord{
				{ID: "cred_" + ownerID, OwnerID: ownerID, Title: "vault of " + ownerID},
			}, nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.CredentialRecord, error) {
			ownerID, ok := strings.CutPrefix(id, "cred_")
			if !ok {
				return nil, models.ErrNotFound
			}
			return &models.CredentialRecord{ID: id, OwnerID: ownerID, Title: "vault of " + ownerID}, nil
		},
	}

	logger := slog.Default()
	audit := services.NewAuditService(&services.MockSecurityEventRepository{}, pkglogger.NewAuditLogger(logger), logger)
	tokenManager := auth.NewTokenManager(routesTestJWTSecret, 15*time.Minute, 7*24*time.Hour)

	sessionService := services.NewSessionService(
		userRepo,
		tokenManager,
		auth.NewTOTPManager("VaultKeeper"),
		auth.NewFederatedVerifier("routes-test-federated-secret-012"),
		audit,
		nil,
		logger,
		services.SessionConfig{
			MaxLoginAttempts:  5,
			LockoutWindow:     15 * time.Minute,
			InactivityTimeout: time.Minute,
		},
	)

	cipher, err := auth.NewCredentialCipher("routes-test-pepper-0123456789abc")
	require.NoError(t, err)
	credentialService := services.NewCredentialService(credRepo, sessionService, cipher, audit, logger)
	sessionService.SetLogoutHook(credentialService.Reset)

	router := chi.NewRouter()
	RegisterRoutes(router, Handlers{
		Auth:       handlers.NewAuthHandler(sessionService),
		TwoFactor:  handlers.NewTwoFactorHandler(sessionService),
		Credential: handlers.NewCredentialHandler(credentialService),
		Audit:      handlers.NewAuditHandler(audit),
		Passgen:    handlers.NewPassgenHandler(),
	}, tokenManager, sessionService)
	return router
}

func doRequest(t *testing.T, router chi.Router, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func loginAs(t *testing.T, router chi.Router, email, password string) string {
	t.Helper()

	w := doRequest(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func listCredentialIDs(t *testing.T, router chi.Router, token string) []string {
	t.Helper()

	w := doRequest(t, router, http.MethodGet, "/api/credentials", token, nil)
	require.Equal(t, http.StatusOK, w.Code, "list failed: %s", w.Body.String())

	var resp []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	ids := make([]string, len(resp))
	for i, r := range resp {
		ids[i] = r.ID
	}
	return ids
}

func TestAPI_CredentialsFollowBearerIdentityNotLoginOrder(t *testing.T) {
	router := newTestAPI(t, map[string]*models.User{
		"alice@example.com": services.NewTestUser("user_alice", "alice@example.com", "SecurePass1!"),
		"bob@example.com":   services.NewTestUser("user_bob", "bob@example.com", "SecurePass1!"),
	})

	aliceToken := loginAs(t, router, "alice@example.com", "SecurePass1!")
	bobToken := loginAs(t, router, "bob@example.com", "SecurePass1!")

	// Alice logged in first, Bob second. Each token must still resolve
	// to its own vault.
	assert.Equal(t, []string{"cred_user_alice"}, listCredentialIDs(t, router, aliceToken))
	assert.Equal(t, []string{"cred_user_bob"}, listCredentialIDs(t, router, bobToken))

	// And the profile endpoint follows the same rule.
	w := doRequest(t, router, http.MethodGet, "/api/auth/me", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		Email string `json:"email"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&me))
	assert.Equal(t, "alice@example.com", me.Email)
}

func TestAPI_RevealIsScopedToTheTokenOwner(t *testing.T) {
	router := newTestAPI(t, map[string]*models.User{
		"alice@example.com": services.NewTestUser("user_alice", "alice@example.com", "SecurePass1!"),
		"bob@example.com":   services.NewTestUser("user_bob", "bob@example.com", "SecurePass1!"),
	})

	aliceToken := loginAs(t, router, "alice@example.com", "SecurePass1!")
	_ = loginAs(t, router, "bob@example.com", "SecurePass1!")

	// Alice asking for Bob's record gets the same answer as for a
	// record that does not exist.
	w := doRequest(t, router, http.MethodPost, "/api/credentials/cred_user_bob/reveal", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "user_bob")
}

func TestAPI_LogoutDoesNotEndOtherSessions(t *testing.T) {
	router := newTestAPI(t, map[string]*models.User{
		"alice@example.com": services.NewTestUser("user_alice", "alice@example.com", "SecurePass1!"),
		"bob@example.com":   services.NewTestUser("user_bob", "bob@example.com", "SecurePass1!"),
	})

	aliceToken := loginAs(t, router, "alice@example.com", "SecurePass1!")
	bobToken := loginAs(t, router, "bob@example.com", "SecurePass1!")

	w := doRequest(t, router, http.MethodPost, "/api/auth/logout", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Alice's session and vault are untouched by Bob's logout.
	assert.Equal(t, []string{"cred_user_alice"}, listCredentialIDs(t, router, aliceToken))
	w = doRequest(t, router, http.MethodGet, "/api/auth/me", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
