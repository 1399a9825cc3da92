// Package plan parses and validates IML v2 plans: JSON coercion into the
// typed model, DAG acyclicity, template-reference reachability, and
// compiled-mode trace checks.
package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchema indicates malformed JSON or a type mismatch at parse time.
var ErrSchema = errors.New("schema error")

// SchemaError wraps a parse-time violation.
type SchemaError struct {
	Field string
	Err   error
}

// Error returns the formatted message.
func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v: field %q: %v", ErrSchema, e.Field, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrSchema, e.Err)
}

// Unwrap lets errors.Is match ErrSchema.
func (e *SchemaError) Unwrap() error { return ErrSchema }

// ErrValidation indicates structural invariant violations.
var ErrValidation = errors.New("validation error")

// Violation is a single structural problem found during validation.
type Violation struct {
	Rule     string `json:"rule"`
	ActionID string `json:"action_id,omitempty"`
	Message  string `json:"message"`
}

func (v Violation) String() string {
	if v.ActionID != "" {
		return fmt.Sprintf("%s (action %q): %s", v.Rule, v.ActionID, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// ValidationError enumerates every violation found, not just the first.
type ValidationError struct {
	Violations []Violation
}

// Error joins all violations into one message.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(rule, actionID, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{
		Rule:     rule,
		ActionID: actionID,
		Message:  fmt.Sprintf(format, args...),
	})
}
