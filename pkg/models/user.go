package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthUser is an identity registered with the identity provider.
type AuthUser struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Session is a credential pair returned by sign-in, sign-up (when confirmation is off),
// refresh and code exchange.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	User         *AuthUser `json:"user,omitempty"`
}

// Caller is the verified identity behind a request. AccessToken is forwarded to the
// backend so row-level policies evaluate against the caller.
type Caller struct {
	UserID      string
	Email       string
	AccessToken string
}

// Anonymous reports whether the caller carries no identity.
func (c Caller) Anonymous() bool {
	return c.UserID == ""
}

// TokenClaims represents the claims of an access token issued by the identity provider
type TokenClaims struct {
	Subject   string           `json:"sub"`
	Email     string           `json:"email"`
	Role      string           `json:"role"` // "authenticated" or "anon"
	Audience  jwt.ClaimStrings `json:"aud,omitempty"`
	Exp       int64            `json:"exp"`
	Iat       int64            `json:"iat"`
	SessionID string           `json:"session_id,omitempty"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return c.Subject, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return c.Audience, nil
}
