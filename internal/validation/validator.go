// Package validation validates request DTOs and turns field failures into
// VALIDATION_ERROR domain errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	apperrors "ventureflow/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
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
	if err := v.RegisterValidation("dpositive", positiveDecimal); err != nil {
		panic(err)
	}
	return v
}

// positiveDecimal passes for decimal values strictly greater than zero.
func positiveDecimal(fl validator.FieldLevel) bool {
	switch d := fl.Field().Interface().(type) {
	case decimal.Decimal:
		return d.IsPositive()
	case *decimal.Decimal:
		return d != nil && d.IsPositive()
	default:
		return false
	}
}

// Struct validates s and returns nil or a VALIDATION_ERROR listing every failed field.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Validation("invalid request").WithError(err)
	}

	fields := make([]map[string]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, map[string]string{
			"field":   fe.Field(),
			"message": message(fe),
		})
	}
	return apperrors.Validation("request validation failed").WithDetails(map[string]interface{}{
		"fields": fields,
	})
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "dpositive":
		return fmt.Sprintf("%s must be greater than zero", field)
	case "email":
		return "invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have exactly %s characters", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "ip":
		return fmt.Sprintf("%s must be a valid IP address", field)
	default:
		return fmt.Sprintf("%s failed the %q check", field, fe.Tag())
	}
}
