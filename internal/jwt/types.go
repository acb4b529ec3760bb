//go:generate mockgen -source=types.go -destination=mocks/mock_auth.go -package=mocks

package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth issues and verifies short-lived access tokens.
type Auth interface {
	Sign(subject, scope string, ttl time.Duration) (string, error)
	Verify(tokenString string) (*Payload, error)
}

// Payload represents the JWT token payload
type Payload struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}
