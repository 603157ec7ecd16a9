// Package validator wraps go-playground/validator for the shop's form
// structs. Failures are reported under the struct's `form` tag names, which
// are also the field names the templates highlight.
package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates request structs tagged with `validate`.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Struct runs every `validate` rule of s.
func (cv *Validator) Struct(s any) error {
	return cv.v.Struct(s)
}

// Var validates a single value against tag.
func (cv *Validator) Var(field any, tag string) error {
	return cv.v.Var(field, tag)
}

// Failed maps each failed form field to the first rule it broke. It returns
// nil when err is not a validation failure.
func Failed(err error) map[string]string {
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return nil
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
