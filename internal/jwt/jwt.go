package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/imtaco/reqflow/internal/errors"
)

// NewAuth creates a new JWT authenticator with HS256 algorithm (default)
func NewAuth(secret string) Auth {
	return NewAuthWithAlgorithm(secret, jwt.SigningMethodHS256, clockwork.NewRealClock())
}

// NewAuthWithAlgorithm creates a new JWT authenticator with specified algorithm.
// Supported algorithms: HS256, HS384, HS512. The clock drives both issue and
// expiry checks.
func NewAuthWithAlgorithm(secret string, method jwt.SigningMethod, clock clockwork.Clock) Auth {
	allowedMethods := map[string]bool{
		method.Alg(): true,
	}
	return &jwtAuthImpl{
		secret:         []byte(secret),
		signingMethod:  method,
		allowedMethods: allowedMethods,
		clock:          clock,
	}
}

type jwtAuthImpl struct {
	secret         []byte
	signingMethod  jwt.SigningMethod
	allowedMethods map[string]bool
	clock          clockwork.Clock
}

// Sign creates a JWT token for subject that expires after ttl.
func (j *jwtAuthImpl) Sign(subject, scope string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New(ErrInvalidRequest, "subject is required")
	}
	if ttl <= 0 {
		return "", errors.Newf(ErrInvalidRequest, "ttl must be positive, got %s", ttl)
	}

	now := j.clock.Now()
	claims := &Payload{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(j.signingMethod, claims)
	return token.SignedString(j.secret)
}

// Verify verifies a JWT token with strict algorithm validation.
// An expired but otherwise valid token yields ErrExpiredToken.
func (j *jwtAuthImpl) Verify(tokenString string) (*Payload, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Payload{}, func(token *jwt.Token) (any, error) {
		// Strictly validate the algorithm matches what we expect
		alg := token.Method.Alg()
		if !j.allowedMethods[alg] {
			return nil, errors.Newf(
				ErrInvalidToken,
				"unexpected signing method: %s (expected: %s)",
				alg, j.signingMethod.Alg(),
			)
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.clock.Now), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Wrap(ErrExpiredToken, err, "token expired")
		}
		return nil, errors.Wrap(ErrInvalidToken, err, "parse token")
	}

	if claims, ok := token.Claims.(*Payload); ok && token.Valid {
		if claims.Subject == "" {
			return nil, errors.New(ErrInvalidToken, "missing subject in token")
		}
		return claims, nil
	}

	return nil, ErrInvalidToken
}
