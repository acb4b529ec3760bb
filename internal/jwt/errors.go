package jwt

import "github.com/imtaco/reqflow/internal/errors"

const (
	ErrInvalidRequest errors.Code = "invalid request"
	ErrInvalidToken   errors.Code = "invalid token"
	ErrExpiredToken   errors.Code = "expired token"
	ErrNoToken        errors.Code = "no token"
)
