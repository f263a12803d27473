package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// Err returns ve as an error when it holds at least one entry, nil otherwise.
func (ve *ValidationErrors) Err() error {
	if ve == nil || !ve.HasErrors() {
		return nil
	}
	return ve
}

// IsValidation reports whether err carries field validation errors.
func IsValidation(err error) bool {
	var ve *ValidationErrors
	return errors.As(err, &ve)
}

// Single builds a one-entry ValidationErrors.
func Single(field, message string) *ValidationErrors {
	ve := &ValidationErrors{}
	ve.Add(field, message)
	return ve
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateEnum checks a field is one of allowed values.
func ValidateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// ValidatePositiveInt checks a field is > 0.
func ValidatePositiveInt(ve *ValidationErrors, field string, value int) {
	if value <= 0 {
		ve.Add(field, "must be a positive integer")
	}
}

// ValidateIntRange checks a field is within a specified range.
func ValidateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// ValidateNonNegativeDecimal checks a money field is >= 0.
func ValidateNonNegativeDecimal(ve *ValidationErrors, field string, value decimal.Decimal) {
	if value.IsNegative() {
		ve.Add(field, "must be non-negative")
	}
}

// ValidatePercentage checks a value is a valid percentage (0-100).
func ValidatePercentage(ve *ValidationErrors, field string, value decimal.Decimal) {
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
		ve.Add(field, "must be between 0 and 100")
	}
}

// ValidateMaxLength checks string doesn't exceed max length.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// ValidatePhone checks a phone number is dialable in the given default region.
func ValidatePhone(ve *ValidationErrors, field, value, region string) {
	if value == "" {
		return
	}
	p, err := libphonenumber.Parse(value, region)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		ve.Add(field, "must be a valid phone number")
	}
}

// NormalizePhone returns the E.164 form of a phone number, or the input
// unchanged when it cannot be parsed.
func NormalizePhone(value, region string) string {
	p, err := libphonenumber.Parse(value, region)
	if err != nil {
		return value
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}

// NewStructValidator returns a validator that reports fields by their json
// names.
func NewStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FromStruct runs v over s and folds any failures into ve.
func FromStruct(ve *ValidationErrors, v *validator.Validate, s interface{}) {
	err := v.Struct(s)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		ve.Add("body", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		ve.Add(fieldPath(fe.Namespace()), tagMessage(fe))
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "dive":
		return "is invalid"
	}
	return "failed " + fe.Tag() + " check"
}
