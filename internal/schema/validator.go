// Package schema validates inbound payloads and outbound event envelopes
// against their struct tags.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes the first failing field of a validated struct.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (e *FieldError) Error() string {
	switch e.Tag {
	case "required":
		return fmt.Sprintf("missing required field %q", e.Field)
	case "max":
		return fmt.Sprintf("field %q exceeds max %s", e.Field, e.Param)
	case "oneof":
		return fmt.Sprintf("field %q must be one of [%s]", e.Field, e.Param)
	default:
		return fmt.Sprintf("field %q failed %q validation", e.Field, e.Tag)
	}
}

// Validator wraps a go-playground validator that reports JSON field names.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator. The underlying validator caches struct metadata,
// so a single instance should be shared.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Validate checks event against its validate tags and returns a *FieldError
// for the first violation.
func (v *Validator) Validate(event any) error {
	err := v.v.Struct(event)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return err
}

var defaultValidator = New()

// Validate validates event with the package-level Validator.
func Validate(event any) error {
	return defaultValidator.Validate(event)
}
