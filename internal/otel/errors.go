package otel

import "github.com/imtaco/reqflow/internal/errors"

const (
	ErrInit     errors.Code = "otel init failed"
	ErrShutdown errors.Code = "otel shutdown failed"
)
