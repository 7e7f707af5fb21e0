/*
errors.go - Centralized error taxonomy for the ledger and scheduling cores

PURPOSE:
  All error kinds in one place so the API layer can translate them into
  HTTP statuses and localized messages without knowing which service
  produced them.

ERROR CATEGORIES:
  1. Validation errors  - Caller-supplied data breaks a field rule
  2. Lookup errors      - Referenced entity does not exist
  3. State errors       - Entity exists but forbids the operation
  4. Invariant errors   - Operation would break a business invariant
  5. Store errors       - Persistence failures, propagated unchanged

RETRY POLICY:
  Nothing in this module retries. IsRetryable only tells the caller whether
  a retry could plausibly succeed (store contention).

USAGE:
  if errors.Is(err, generic.ErrInsufficientBalance) {
      var ibe *generic.InsufficientBalanceError
      errors.As(err, &ibe)
      // show ibe.Available to the user
  }

SEE ALSO:
  - ledger/ledger.go: Raises most of these
  - api/handlers.go: Maps them to HTTP statuses
*/
package generic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input fails schema or business rules.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInactiveDepartment is returned when a department is inactive.
	ErrInactiveDepartment = errors.New("department inactive")

	// ErrInvalidState is returned when an entity's status forbids the transition.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrInsufficientBalance is returned when a debit would drive a balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSlotUnavailable is returned when a booking hits an occupied or off-grid slot.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrConcurrentModification is returned by stores when a write lost a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnauthorized is returned when a caller lacks credentials or permission.
	ErrUnauthorized = errors.New("unauthorized")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is one violated rule on one input field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError lists every violated field rule of one input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add appends a violation.
func (e *ValidationError) Add(field, rule, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Rule: rule, Message: message})
}

// OrNil returns nil when no violation was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Merge folds another validation error into e. Non-validation errors are ignored.
func (e *ValidationError) Merge(err error) {
	var other *ValidationError
	if errors.As(err, &other) {
		e.Fields = append(e.Fields, other.Fields...)
	}
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, rule, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Rule: rule, Message: message}}}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "department", "transaction", "professional", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InactiveDepartmentError is raised when writing against an inactive department.
type InactiveDepartmentError struct {
	DepartmentID string
}

func (e *InactiveDepartmentError) Error() string {
	return fmt.Sprintf("department %s is inactive", e.DepartmentID)
}

func (e *InactiveDepartmentError) Unwrap() error { return ErrInactiveDepartment }

// InvalidStateError reports a refused status transition.
type InvalidStateError struct {
	Kind string
	ID   string
	From string
	To   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: cannot transition from %s to %s", e.Kind, e.ID, e.From, e.To)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// InsufficientBalanceError carries the current balance for user feedback.
type InsufficientBalanceError struct {
	DepartmentID string
	Available    decimal.Decimal
	Requested    decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance in department %s: available %s, requested %s",
		e.DepartmentID, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Shortfall is how much is missing to cover the request.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// SlotUnavailableError reports a booking attempt on a slot that is not offered.
type SlotUnavailableError struct {
	ProfessionalID string
	Start          string
	Reason         string // "conflict" or "off_grid"
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s for professional %s unavailable: %s", e.Start, e.ProfessionalID, e.Reason)
}

func (e *SlotUnavailableError) Unwrap() error { return ErrSlotUnavailable }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the caller's input or
// the current state of the data, not a failure of the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInactiveDepartment) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrSlotUnavailable)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
