// Package validation is the form Validation Engine. Constraints are declared with `validate`
// struct tags; Validate returns nil for a valid form or a map of field name to messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a form field (its json name) to human readable messages.
type FieldErrors map[string][]string

var (
	once     sync.Once
	validate *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks form against its `validate` tags. It performs no I/O.
func Validate(form interface{}) FieldErrors {
	err := engine().Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"form": {err.Error()}}
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		out[fe.Field()] = append(out[fe.Field()], message(fe))
	}
	return out
}

// message renders a failed constraint the way the client forms display it.
func message(fe validator.FieldError) string {
	label := humanize(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s can't be blank", label)
	case "email":
		return fmt.Sprintf("%s is not a valid email", label)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s can't be blank", label)
		}
		return fmt.Sprintf("%s is too short (minimum is %s characters)", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s is too long (maximum is %s characters)", label, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s is not equal to %s", label, strings.ToLower(humanize(fe.Param())))
	case "numeric":
		return fmt.Sprintf("%s must be a number", label)
	}
	return fmt.Sprintf("%s is invalid", label)
}

// humanize turns "confirmPassword" or "ConfirmPassword" into "Confirm password".
func humanize(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case i == 0:
			b.WriteString(strings.ToUpper(string(r)))
		case r >= 'A' && r <= 'Z':
			b.WriteByte(' ')
			b.WriteString(strings.ToLower(string(r)))
		case r == '_':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
