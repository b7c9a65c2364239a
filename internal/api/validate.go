package api

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Single validator instance; it caches struct metadata internally.
var validate = validator.New(validator.WithRequiredStructEnabled())

// checkStruct runs tag validation and converts the first violation into the
// caller-facing ValidationError.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:  strings.ToLower(fe.Field()),
			Reason: reasonFor(fe),
		}
	}
	return &ValidationError{Reason: err.Error()}
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "email":
		return "must be a valid email address"
	case "min":
		return "too short (minimum " + fe.Param() + ")"
	case "max":
		return "too long (maximum " + fe.Param() + ")"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	default:
		return "failed " + fe.Tag() + " constraint"
	}
}
