package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/imtaco/reqflow/internal/errors"
)

const (
	ErrRequest errors.Code = "transport request failed"
	ErrToken   errors.Code = "token acquisition failed"
)

// StatusError is returned for responses with status 400 or above.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err carries a 401 response; usable as the
// refresh middleware's expiry predicate.
func IsUnauthorized(_ context.Context, err error) bool {
	se, ok := errors.As[*StatusError](err)
	return ok && (*se).StatusCode == http.StatusUnauthorized
}
