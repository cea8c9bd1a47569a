package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the JWT claims carried by session tokens.
type TokenClaims struct {
	Type   string `json:"type"` // "access" or "refresh"
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session is an authenticated session: the profile plus its token pair.
type Session struct {
	User         *User
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
}
