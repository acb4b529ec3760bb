package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
)

type JWTTestSuite struct {
	suite.Suite
	clock   *clockwork.FakeClock
	auth    Auth
	secret  string
	subject string
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}

func (s *JWTTestSuite) SetupTest() {
	s.secret = "test-secret"
	s.subject = "client-1"
	s.clock = clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s.auth = NewAuthWithAlgorithm(s.secret, jwt.SigningMethodHS256, s.clock)
}

func (s *JWTTestSuite) TestNewAuth() {
	auth := NewAuth(s.secret).(*jwtAuthImpl)
	s.Equal(jwt.SigningMethodHS256, auth.signingMethod)
	s.True(auth.allowedMethods["HS256"])
	s.Len(auth.allowedMethods, 1)
}

func (s *JWTTestSuite) TestSignValidation() {
	_, err := s.auth.Sign("", "read", time.Minute)
	s.Require().ErrorIs(err, ErrInvalidRequest)

	_, err = s.auth.Sign(s.subject, "read", 0)
	s.Require().ErrorIs(err, ErrInvalidRequest)
}

func (s *JWTTestSuite) TestSignAndVerifyRoundTrip() {
	algorithms := []struct {
		name   string
		method jwt.SigningMethod
	}{
		{"HS256", jwt.SigningMethodHS256},
		{"HS384", jwt.SigningMethodHS384},
		{"HS512", jwt.SigningMethodHS512},
	}

	for _, alg := range algorithms {
		s.Run(alg.name, func() {
			auth := NewAuthWithAlgorithm(s.secret, alg.method, s.clock)

			token, err := auth.Sign(s.subject, "read", time.Minute)
			s.Require().NoError(err)
			s.NotEmpty(token)

			claims, err := auth.Verify(token)
			s.Require().NoError(err)
			s.Equal(s.subject, claims.Subject)
			s.Equal("read", claims.Scope)
			s.Equal(s.clock.Now().Add(time.Minute).Unix(), claims.ExpiresAt.Unix())
		})
	}
}

func (s *JWTTestSuite) TestVerifyExpired() {
	token, err := s.auth.Sign(s.subject, "", time.Minute)
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Minute)

	claims, err := s.auth.Verify(token)
	s.Require().ErrorIs(err, ErrExpiredToken)
	s.Nil(claims)
}

func (s *JWTTestSuite) TestVerifyRejects() {
	other := NewAuthWithAlgorithm("wrong-secret", jwt.SigningMethodHS256, s.clock)
	wrongSecret, err := other.Sign(s.subject, "", time.Minute)
	s.Require().NoError(err)

	hs384 := NewAuthWithAlgorithm(s.secret, jwt.SigningMethodHS384, s.clock)
	wrongAlg, err := hs384.Sign(s.subject, "", time.Minute)
	s.Require().NoError(err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Payload{
		RegisteredClaims: jwt.RegisteredClaims{Subject: s.subject},
	}).SignedString([]byte(s.secret))
	s.Require().NoError(err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Payload{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(s.clock.Now().Add(time.Minute))},
	}).SignedString([]byte(s.secret))
	s.Require().NoError(err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrNoToken},
		{"garbage", "invalid-token", ErrInvalidToken},
		{"malformed", "eyJ.invalid.token", ErrInvalidToken},
		{"wrong secret", wrongSecret, ErrInvalidToken},
		{"wrong algorithm", wrongAlg, ErrInvalidToken},
		{"no expiry", noExpiry, ErrInvalidToken},
		{"no subject", noSubject, ErrInvalidToken},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			claims, err := s.auth.Verify(tt.token)
			s.Require().ErrorIs(err, tt.want)
			s.Nil(claims)
		})
	}
}

func (s *JWTTestSuite) TestConcurrentSignAndVerify() {
	const concurrency = 50
	errs := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		go func() {
			token, err := s.auth.Sign(s.subject, "", time.Minute)
			if err == nil {
				_, err = s.auth.Verify(token)
			}
			errs <- err
		}()
	}

	for i := 0; i < concurrency; i++ {
		s.NoError(<-errs)
	}
}
