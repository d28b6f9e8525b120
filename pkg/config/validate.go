package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// embeddedName stands in for embedded structs in namespaces so their fields
// are reported as if declared on the outer struct.
const embeddedName = "~"

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			switch {
			case name == "-":
				return ""
			case name == "" && fld.Anonymous:
				return embeddedName
			}
			return name
		})
	})
	return validate
}

// Validate checks the `validate` tags of the struct v points to. Failures
// are returned as ValidationErrors naming fields by their JSON name.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{Path: fieldPath(fe), Message: message(fe)})
	}
	return out
}

// fieldPath keeps the JSON names of the namespace, dropping the root type
// and embedded structs.
func fieldPath(fe validator.FieldError) string {
	segments := strings.Split(fe.Namespace(), ".")
	var parts []string
	for _, part := range segments[1:] {
		if part != "" && part != embeddedName {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return fe.Field()
	}
	return strings.Join(parts, ".")
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "file":
		return fmt.Sprintf("%v is not a file", fe.Value())
	case "excluded_if":
		return fmt.Sprintf("must be empty when %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}
