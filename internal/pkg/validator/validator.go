// Package validator wraps the go-playground/validator library, adding
// thread-safe initialization and standardized error formatting.
//
// Structs are validated through their `validate` tags; failures are reported
// as a joined error chain rooted at ErrValidation so callers can detect
// validation errors with errors.Is while still seeing every offending field.
package validator

import (
	"errors"
	"fmt"
	"sync"

	gvalidator "github.com/go-playground/validator/v10"
)

// validator is a singleton instance of the go-playground validator.
var (
	validator         *gvalidator.Validate
	initValidatorOnce sync.Once
)

// ErrValidation is the first error in the chain whenever validation fails.
// It acts as a high-level indicator that one or more rules were violated.
var ErrValidation = errors.New("validation error")

// errStringFormat defines the format for individual field error messages.
const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

// Init initializes the singleton validator, enabling required-field
// validation on structs. It is safe to call multiple times; only the first
// call takes effect.
func Init() {
	initValidatorOnce.Do(func() {
		validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())
	})
}

// formatError transforms a raw validator error into a multi-error chain with
// human-readable messages. The first error in the chain is always
// ErrValidation; any non-validation error is returned unchanged.
func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidation}
	for _, validationErr := range validationErrors {
		var (
			field = validationErr.Field()
			tag   = validationErr.Tag()
			value = validationErr.Value()
			err   = fmt.Errorf(errStringFormat, field, value, tag)
		)

		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Validate validates a struct using the singleton validator instance.
//
// It returns nil if the struct passes validation, or an error chain
// containing ErrValidation plus one formatted message per violated field.
// Init must be called before using this function.
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err)
	}

	return nil
}
