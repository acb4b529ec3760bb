package parser

import (
	"context"
	"fmt"
	"reflect"

	json "github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/request"
)

const (
	ErrInvalidExpr errors.Code = "invalid jmespath expression"
	ErrDecode      errors.Code = "decode payload"
)

// RejectedError is returned when a payload fails a JMESPath check.
// Payload holds the decoded document the expression ran against.
type RejectedError struct {
	Expr    string
	Payload any
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("payload rejected by %q", e.Expr)
}

// JMESPath returns a DataParser accepting payloads on which expr is truthy,
// e.g. "code == `0`".
func JMESPath(expr string) (request.DataParser, error) {
	q, err := jmespath.Compile(expr)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidExpr, err, expr)
	}

	return func(_ context.Context, data any) error {
		doc, err := Decode(data)
		if err != nil {
			return err
		}
		v, err := q.Search(doc)
		if err != nil {
			return errors.Wrap(ErrInvalidExpr, err, expr)
		}
		if !Truthy(v) {
			return &RejectedError{Expr: expr, Payload: doc}
		}
		return nil
	}, nil
}

// ExpiredWhen returns an expiry predicate evaluating expr against the
// payload of a RejectedError, e.g. "code == `401`".
func ExpiredWhen(expr string) (func(ctx context.Context, err error) bool, error) {
	q, err := jmespath.Compile(expr)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidExpr, err, expr)
	}

	return func(_ context.Context, err error) bool {
		rejected, ok := errors.As[*RejectedError](err)
		if !ok {
			return false
		}
		v, err := q.Search((*rejected).Payload)
		return err == nil && Truthy(v)
	}, nil
}

// Decode turns data into a generic JSON document. Raw JSON ([]byte,
// json.RawMessage, string) is parsed; structs are round-tripped through
// their JSON form so field tags apply.
func Decode(data any) (any, error) {
	var raw []byte
	switch v := data.(type) {
	case nil:
		return nil, nil
	case map[string]any, []any, bool, float64:
		return v, nil
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(ErrDecode, err, "marshal payload")
		}
		raw = b
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(ErrDecode, err, "unmarshal payload")
	}
	return doc, nil
}

// Truthy follows JMESPath truthiness: false, null, empty string, empty
// array and empty object are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}
