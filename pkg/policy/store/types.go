package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kagehq/echos-sub001/pkg/chaos"
)

// Record is the persisted shape of a role assignment: one flat record per
// agent, replaced wholesale when a role is re-applied.
type Record struct {
	AgentID    string             `json:"agent_id"`
	TemplateID string             `json:"template"`
	Allow      []string           `json:"allow"`
	Ask        []string           `json:"ask"`
	Block      []string           `json:"block"`
	Limits     map[string]float64 `json:"limits,omitempty"`
	AppliedAt  time.Time          `json:"applied_at"`
	Chaos      *chaos.Config      `json:"chaos,omitempty"`
}

// Store persists role assignment records.
type Store interface {
	// Save inserts or replaces the record for its agent.
	Save(ctx context.Context, rec *Record) error

	// Load returns all persisted records. Called once at startup.
	Load(ctx context.Context) ([]*Record, error)

	// Delete removes the record for an agent. Unknown agents are a no-op.
	Delete(ctx context.Context, agentID string) error

	// Close releases the backend.
	Close() error
}

// StoreError represents a failure in a store backend operation.
type StoreError struct {
	// Backend names the store implementation ("file", "sqlite")
	Backend string

	// Operation is the operation that failed (e.g., "save", "load")
	Operation string

	// Message describes the error
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s store %s failed: %s: %v", e.Backend, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s store %s failed: %s", e.Backend, e.Operation, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *StoreError) Unwrap() error {
	return e.Cause
}
