// Package validation checks request structs against their `validate` tags
// using go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// FieldError names the rule that rejected a struct.
type FieldError struct {
	Field string
	Tag   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s failed on the %q rule", e.Field, e.Tag)
}

type Validator struct {
	validate *validator.Validate
}

// New builds a Validator with the custom rules registered. It panics if a
// rule cannot be registered, which only happens for a malformed tag name.
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// maxbytes=N bounds the UTF-8 encoded length of a string. bcrypt only
	// reads the first 72 bytes of a password.
	if err := validate.RegisterValidation("maxbytes", maxBytes); err != nil {
		panic(err)
	}

	return &Validator{validate: validate}
}

// Validate returns nil when data satisfies its tags. Otherwise it returns a
// *FieldError for the failed rule whose tag comes first in priority. Rules
// missing from priority rank after the listed ones, in field order.
func (v *Validator) Validate(data any, priority ...string) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var validateErrs validator.ValidationErrors
	if !errors.As(err, &validateErrs) {
		return err
	}

	first := validateErrs[0]
	best := rank(first.Tag(), priority)
	for _, fe := range validateErrs[1:] {
		if r := rank(fe.Tag(), priority); r < best {
			first, best = fe, r
		}
	}

	return &FieldError{Field: first.Field(), Tag: first.Tag()}
}

func rank(tag string, priority []string) int {
	for i, p := range priority {
		if p == tag {
			return i
		}
	}
	return len(priority)
}

func maxBytes(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}
