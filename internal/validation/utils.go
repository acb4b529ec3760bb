package validation

import (
	"github.com/go-playground/validator/v10"

	"github.com/imtaco/reqflow/internal/errors"
)

// Error is one failed field in an API response.
type Error struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// FormatValidationError flattens validator errors, even wrapped ones, into
// response entries. Other errors yield nil.
func FormatValidationError(err error) []Error {
	ve, ok := errors.As[validator.ValidationErrors](err)
	if !ok {
		return nil
	}

	out := make([]Error, 0, len(*ve))
	for _, fe := range *ve {
		out = append(out, Error{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: fe.Error(),
		})
	}
	return out
}
