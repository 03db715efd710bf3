package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps JSON request bodies accepted by the API.
const MaxBodyBytes = 1 << 20

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so clients see the paths they sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks s against its `validate` tags. Field failures come back as
// *ValidationError; anything else, such as a non-struct argument, is returned
// as is.
func Validate(s any) error {
	err := validate.Struct(s)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return &ValidationError{Errors: fieldErrs}
	}
	return err
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", fieldPath(fe), message(fe)))
	}
	return strings.Join(msgs, "; ")
}

// Fields maps field paths to messages. Nested fields are dotted and slice
// elements indexed, e.g. "items[0].quantity".
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		fields[fieldPath(fe)] = message(fe)
	}
	return fields
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

var fixedMessages = map[string]string{
	"required":         "is required",
	"email":            "must be a valid email address",
	"uuid":             "must be a valid UUID",
	"url":              "must be a valid URL",
	"iso3166_1_alpha2": "must be an ISO 3166-1 alpha-2 country code",
	"iso4217":          "must be an ISO 4217 currency code",
}

var comparisons = map[string]string{
	"gt":  "greater than",
	"gte": "greater than or equal to",
	"lt":  "less than",
	"lte": "less than or equal to",
}

func message(fe validator.FieldError) string {
	if msg, ok := fixedMessages[fe.Tag()]; ok {
		return msg
	}
	if cmp, ok := comparisons[fe.Tag()]; ok {
		return fmt.Sprintf("must be %s %s", cmp, fe.Param())
	}
	switch fe.Tag() {
	case "min":
		return "must " + sized(fe, "at least")
	case "max":
		return "must " + sized(fe, "at most")
	case "len":
		return "must " + sized(fe, "exactly")
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return fmt.Sprintf("failed on '%s' validation", fe.Tag())
}

// sized phrases a size bound in the unit the field's kind is measured in.
func sized(fe validator.FieldError, bound string) string {
	switch fe.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("contain %s %s entries", bound, fe.Param())
	case reflect.String:
		return fmt.Sprintf("be %s %s characters", bound, fe.Param())
	}
	return fmt.Sprintf("be %s %s", bound, fe.Param())
}
