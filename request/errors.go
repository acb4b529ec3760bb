package request

import "github.com/imtaco/reqflow/internal/errors"

const (
	ErrDestroyed    errors.Code = "request destroyed"
	ErrHookFailed   errors.Code = "hook failed"
	ErrHandlerPanic errors.Code = "middleware panicked"
)
