package manager

import (
	"fmt"
	"strings"
)

// LoadError represents an error that occurred while loading a template file.
type LoadError struct {
	// FilePath is the path to the file that failed to load
	FilePath string

	// Message describes the error
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load template file %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load template file %q: %s", e.FilePath, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ParseError represents a template file that failed YAML parsing.
type ParseError struct {
	// FilePath is the path to the file that failed to parse
	FilePath string

	// Message describes the parsing error
	Message string

	// Cause is the underlying parser error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %q: %s", e.FilePath, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// UnknownTemplateError is returned when a role references a template id that
// is not present in the current template set.
type UnknownTemplateError struct {
	// TemplateID is the template that was requested
	TemplateID string
}

// Error implements the error interface.
func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown template %q", e.TemplateID)
}

// InvalidOverrideError is returned when role overrides fail validation, for
// example when an override pattern uses constructs outside the closed
// pattern grammar.
type InvalidOverrideError struct {
	// AgentID is the agent the role was being applied to
	AgentID string

	// Cause is the underlying validation error
	Cause error
}

// Error implements the error interface.
func (e *InvalidOverrideError) Error() string {
	return fmt.Sprintf("invalid override for agent %q: %v", e.AgentID, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *InvalidOverrideError) Unwrap() error {
	return e.Cause
}

// ErrorList aggregates per-file errors from a directory load. A load is only
// fatal when every file fails; otherwise the successes are kept and the
// failures reported here.
type ErrorList struct {
	Errors []error
}

// Error implements the error interface.
func (e *ErrorList) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %v\n", i+1, err))
	}
	return sb.String()
}

// Add adds an error to the list.
func (e *ErrorList) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if the list contains any errors.
func (e *ErrorList) HasErrors() bool {
	return len(e.Errors) > 0
}
