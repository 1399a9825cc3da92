package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigNotFound indicates the configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates configuration validation failed.
	ErrValidationFailed = errors.New("configuration validation failed")
)

// FieldError describes a single invalid configuration field.
type FieldError struct {
	Field string
	Err   error
}

// Error returns the formatted error message.
func (e *FieldError) Error() string {
	return fmt.Sprintf("field '%s': %v", e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error { return e.Err }

// ValidationErrors collects every violation found during validation so a
// misconfigured deployment reports all problems at once.
type ValidationErrors struct {
	Errors []*FieldError
}

// Add appends a field violation.
func (v *ValidationErrors) Add(field string, err error) {
	v.Errors = append(v.Errors, &FieldError{Field: field, Err: err})
}

// Addf appends a formatted field violation.
func (v *ValidationErrors) Addf(field, format string, args ...any) {
	v.Add(field, fmt.Errorf(format, args...))
}

// Empty reports whether any violations were collected.
func (v *ValidationErrors) Empty() bool { return len(v.Errors) == 0 }

// Error joins all violations into one message.
func (v *ValidationErrors) Error() string {
	msgs := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%v: %s", ErrValidationFailed, strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is match ErrValidationFailed.
func (v *ValidationErrors) Unwrap() error { return ErrValidationFailed }
