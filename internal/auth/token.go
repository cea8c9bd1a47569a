package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vaultkeeper/vaultd/internal/models"
)

// TokenManager issues and validates the JWT session tokens backing a
// signed-in vault session.
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
	}
}

// GenerateAccessToken creates a short-lived access token.
func (tm *TokenManager) GenerateAccessToken(userID, email string) (string, error) {
	return tm.generate("access", userID, email, tm.accessTokenExpiry)
}

// GenerateRefreshToken creates a long-lived refresh token.
func (tm *TokenManager) GenerateRefreshToken(userID, email string) (string, error) {
	return tm.generate("refresh", userID, email, tm.refreshTokenExpiry)
}

// GenerateVerificationToken creates a token embedded in email
// verification links.
func (tm *TokenManager) GenerateVerificationToken(userID, email string) (string, error) {
	return tm.generate("verify", userID, email, 24*time.Hour)
}

// GenerateResetToken creates a token embedded in password reset links.
func (tm *TokenManager) GenerateResetToken(userID, email string) (string, error) {
	return tm.generate("reset", userID, email, time.Hour)
}

func (tm *TokenManager) generate(tokenType, userID, email string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &models.TokenClaims{
		Type:   tokenType,
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken verifies a session token and returns its claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrNotAuthenticated
	}
	if claims.Type == "" || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token: missing claims")
	}

	return claims, nil
}

// FederatedVerifier validates ID tokens minted by an external federated
// identity provider under a shared HS256 secret.
type FederatedVerifier struct {
	secret string
}

func NewFederatedVerifier(secret string) *FederatedVerifier {
	return &FederatedVerifier{secret: secret}
}

// FederatedClaims are the subset of OIDC claims the gateway consumes.
type FederatedClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verify checks the ID token signature and expiry and returns its claims.
func (fv *FederatedVerifier) Verify(idToken string) (*FederatedClaims, error) {
	if fv.secret == "" {
		return nil, fmt.Errorf("federated sign-in is not configured")
	}

	claims := &FederatedClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(fv.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}

	if !token.Valid || claims.Subject == "" || claims.Email == "" {
		return nil, models.ErrInvalidCredentials
	}

	return claims, nil
}
