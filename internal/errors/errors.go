package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Code is a sentinel error for classification (errors.Is).
type Code string

func (c Code) Error() string { return string(c) }

// ErrNonError classifies values that were raised without being an error.
const ErrNonError Code = "non-error value"

// Error pairs a Code with an underlying error carrying a pkg/errors stack.
type Error struct {
	Code Code
	Err  error
	// Value holds the original value when the error was normalized from a non-error.
	Value any
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the code, so errors.Is(err, ErrSomething) sees through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(Code)
	return ok && e.Code == t
}

func New(code Code, message string) error {
	return &Error{Code: code, Err: errors.New(message)}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Err: errors.Errorf(format, args...)}
}

// PureNew returns a plain error without code or stack.
func PureNew(message string) error {
	return stderrors.New(message)
}

// Wrap annotates err with code and message; a nil err stays nil.
func Wrap(code Code, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: errors.Wrap(err, message)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: errors.Wrapf(err, format, args...)}
}

// Normalize turns an arbitrary raised value (typically from recover) into an error.
// Errors are returned unchanged; anything else is wrapped with the original
// value kept in Value.
func Normalize(v any) error {
	if v == nil {
		return nil
	}
	if err, ok := v.(error); ok {
		return err
	}
	return &Error{
		Code:  ErrNonError,
		Err:   errors.Errorf("%v", v),
		Value: v,
	}
}

// ValueOf returns the original non-error value attached by Normalize,
// searching the whole wrap chain.
func ValueOf(err error) (any, bool) {
	for ; err != nil; err = stderrors.Unwrap(err) {
		if e, ok := err.(*Error); ok && e.Value != nil {
			return e.Value, true
		}
	}
	return nil, false
}

// CodeOf returns the outermost code in err's chain.
func CodeOf(err error) (Code, bool) {
	if e, ok := As[*Error](err); ok {
		return (*e).Code, true
	}
	if c, ok := As[Code](err); ok {
		return *c, true
	}
	return "", false
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As[T error](err error) (*T, bool) {
	var target T
	if errors.As(err, &target) {
		return &target, true
	}
	return nil, false
}
