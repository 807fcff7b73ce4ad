package errors

import "fmt"

// Category classifies engine errors by how they must be handled.
type Category string

const (
	// Dropped and logged, never retried.
	CategoryValidation Category = "VALIDATION"
	// Non-fatal rule failure; the source strategy may resubmit later.
	CategoryRisk Category = "RISK"
	// Global halt; everything is dropped until the breaker clears.
	CategoryBreaker Category = "BREAKER"
	// External collaborator error or timeout; no ledger mutation happened,
	// the signal may be retried with fresh sizing.
	CategorySettlement Category = "SETTLEMENT"
	// Internal consistency failure. Fatal: halts the admission queue and
	// requires manual intervention.
	CategoryLedger Category = "LEDGER"
	// Persistence failure; trading continues, the record is lost.
	CategoryStorage Category = "STORAGE"
)

// EngineError is a categorized error with enough context to act on.
type EngineError struct {
	Category   Category
	Component  string
	Operation  string
	Message    string
	Underlying error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsFatal reports whether the engine must halt admission on this error.
// Only ledger invariant violations qualify: silently continuing after one
// risks uncontrolled capital loss.
func (e *EngineError) IsFatal() bool {
	return e.Category == CategoryLedger
}

// Retryable reports whether the originator may usefully retry.
func (e *EngineError) Retryable() bool {
	return e.Category == CategorySettlement || e.Category == CategoryRisk
}

// New creates a categorized engine error.
func New(category Category, component, operation, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// Wrap attaches category and context to an existing error.
func Wrap(err error, category Category, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// NewValidation builds a validation error for a malformed signal or market.
func NewValidation(component, operation, message string) *EngineError {
	return New(CategoryValidation, component, operation, message)
}

// NewSettlement wraps an external settlement failure.
func NewSettlement(component, operation string, err error) *EngineError {
	return Wrap(err, CategorySettlement, component, operation)
}

// NewLedgerViolation builds the fatal invariant-violation error.
func NewLedgerViolation(operation, message string) *EngineError {
	return New(CategoryLedger, "ledger", operation, message)
}
