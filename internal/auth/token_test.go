package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-jwt-secret-32-chars!!!"

func TestTokenManager_AccessTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour)

	token, err := tm.GenerateAccessToken("user-1", "alice@example.com")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RefreshTokenType(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour)

	token, err := tm.GenerateRefreshToken("user-1", "alice@example.com")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "refresh", claims.Type)
}

func TestTokenManager_ExpiredTokenRejected(t *testing.T) {
	tm := NewTokenManager(testSecret, -time.Minute, 7*24*time.Hour)

	token, err := tm.GenerateAccessToken("user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_WrongSecretRejected(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour)
	other := NewTokenManager("a-completely-different-secret!!!", 15*time.Minute, 7*24*time.Hour)

	token, err := tm.GenerateAccessToken("user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_GarbageRejected(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour)

	_, err := tm.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}

func TestFederatedVerifier_RoundTrip(t *testing.T) {
	fv := NewFederatedVerifier(testSecret)

	claims := &FederatedClaims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ext-subject-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	got, err := fv.Verify(idToken)
	require.NoError(t, err)
	assert.Equal(t, "ext-subject-1", got.Subject)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestFederatedVerifier_Unconfigured(t *testing.T) {
	fv := NewFederatedVerifier("")
	_, err := fv.Verify("anything")
	assert.Error(t, err)
}

func TestFederatedVerifier_MissingSubject(t *testing.T) {
	fv := NewFederatedVerifier(testSecret)

	claims := &FederatedClaims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = fv.Verify(idToken)
	assert.Error(t, err)
}
