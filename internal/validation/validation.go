package validation

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/imtaco/reqflow/internal/errors"
)

const ErrNoGinEngine errors.Code = "gin validator engine is not *validator.Validate"

// std validates option structs outside of gin binding; it carries the same
// custom tags as gin's engine.
var std = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := registerTags(v); err != nil {
		panic(err)
	}
	return v
}

// Struct validates option and request structs outside of gin binding.
func Struct(s any) error {
	return std.Struct(s)
}

func Register(v *validator.Validate, tag string, fn validator.Func) error {
	return v.RegisterValidation(tag, fn)
}

func RegisterAlias(v *validator.Validate, tag string, alias string) {
	v.RegisterAlias(tag, alias)
}

// ginEngine returns the validator behind gin's `binding` struct tags.
func ginEngine() (*validator.Validate, error) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil, errors.PureNew(string(ErrNoGinEngine))
	}
	return v, nil
}
