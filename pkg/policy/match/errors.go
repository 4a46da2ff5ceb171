package match

import (
	"fmt"
	"time"
)

// CompileError represents a pattern that could not be compiled.
type CompileError struct {
	// Pattern is the raw pattern text that failed to compile
	Pattern string

	// Message describes the compile error
	Message string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Message)
}

// BudgetError represents an evaluation that exceeded the wall-clock budget.
// This is a security-relevant condition: the input may have been crafted to
// exhaust the matcher, so callers must treat it as "no match" and fail closed.
type BudgetError struct {
	// Signature is the signature that was being evaluated
	Signature string

	// Budget is the configured wall-clock budget for the whole list
	Budget time.Duration

	// Elapsed is the time spent before evaluation was abandoned
	Elapsed time.Duration

	// Evaluated is the number of patterns evaluated before abandonment
	Evaluated int

	// Total is the total number of patterns in the list
	Total int
}

// Error implements the error interface.
func (e *BudgetError) Error() string {
	return fmt.Sprintf("pattern evaluation for %q exceeded %s budget after %d/%d patterns",
		e.Signature, e.Budget, e.Evaluated, e.Total)
}

// OverrideError represents a user-supplied override pattern that was rejected
// because it contains constructs outside the closed pattern grammar.
type OverrideError struct {
	// Pattern is the rejected override pattern
	Pattern string

	// Message describes why the pattern was rejected
	Message string
}

// Error implements the error interface.
func (e *OverrideError) Error() string {
	return fmt.Sprintf("override pattern %q rejected: %s", e.Pattern, e.Message)
}
