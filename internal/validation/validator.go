package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates structs by their validate tags
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate validates a struct and returns one error summarizing every
// violated field.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, describe(fe))
	}
	return fmt.Errorf("%s", strings.Join(messages, "; "))
}

// Messages returns one message per violated field, for structured error
// responses.
func (v *Validator) Messages(s interface{}) []string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, describe(fe))
	}
	return messages
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %s is required", fe.Field())
	case "email":
		return fmt.Sprintf("field %s must be a valid email", fe.Field())
	case "min":
		return fmt.Sprintf("field %s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("field %s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("field %s must be one of %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("field %s is invalid (%s)", fe.Field(), fe.Tag())
	}
}
