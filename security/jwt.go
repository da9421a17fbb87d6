// Package security provides cryptographic and secret-management utilities.
//
// This file implements a lightweight JSON Web Token (JWT) service for
// issuing and validating tokens using the HMAC SHA-256 algorithm (HS256)
// via the `lestrrat-go/jwx` library, used by controlplane's bearer-token
// auth path (spec.md §4.15's Expansion) as an alternative to the shared
// X-API-Key header.
package security

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTService provides methods for generating and validating JSON Web Tokens (JWTs)
// using the HMAC SHA-256 (HS256) signing algorithm.
type JWTService struct {
	secret []byte
}

// NewJWTService initializes and returns a new JWTService instance.
//
// The secret parameter is the signing key used for both token generation
// and validation. It should be a sufficiently random and securely stored string.
func NewJWTService(secret string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
	}
}

// GenerateToken creates a new signed JWT containing the specified user ID
// as the subject.
func (j *JWTService) GenerateToken(userID string, expiration time.Duration) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(expiration)).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, j.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), nil
}

// ValidateToken verifies and parses a JWT string using the configured secret key.
//
// The token's signature and expiration are validated automatically. If
// validation succeeds, it returns a `jwt.Token` instance that allows
// access to claims such as subject, expiration, and issued-at time.
func (j *JWTService) ValidateToken(tokenString string) (jwt.Token, error) {
	token, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, j.secret))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return token, nil
}
