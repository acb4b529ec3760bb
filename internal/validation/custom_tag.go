package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var subjectRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

// customTag is either a validation func or an alias of built-in tags.
type customTag struct {
	name  string
	fn    validator.Func
	alias string
}

var customTags = []customTag{
	{name: "subject", fn: ValidateSubject},
	{name: "scope", alias: "oneof=read write"},
}

func init() {
	v, err := ginEngine()
	if err != nil {
		panic(err)
	}
	if err := registerTags(v); err != nil {
		panic(err)
	}
}

func registerTags(v *validator.Validate) error {
	for _, t := range customTags {
		if t.alias != "" {
			RegisterAlias(v, t.name, t.alias)
			continue
		}
		if err := Register(v, t.name, t.fn); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSubject validates a token subject: 3-64 characters, alphanumeric with dots, hyphens and underscores
func ValidateSubject(fl validator.FieldLevel) bool {
	return subjectRegex.MatchString(fl.Field().String())
}
