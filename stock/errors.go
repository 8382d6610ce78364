/*
errors.go - Error taxonomy for the allocation core

ERROR CATEGORIES:
  NotFound          a referenced id or name does not resolve
  InsufficientStock requested quantity exceeds available lots
  QuotaExceeded     reservation edit exceeds remaining headroom
  SplitMismatch     pre-reservation split does not sum to the target
  State             operation attempted in the wrong lifecycle state
  Consistency       internal invariant violated; always fatal
  InvalidInput      malformed request values

PROPAGATION:
  Every error aborts the enclosing transaction. Callers test the class
  with errors.Is against the sentinels and read details with errors.As.

    var ins *stock.InsufficientStockError
    if errors.As(err, &ins) {
        fmt.Println(ins.Available)
    }
*/
package stock

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrQuotaExceeded     = errors.New("reservation quota exceeded")
	ErrSplitMismatch     = errors.New("split does not match quantity")
	ErrState             = errors.New("invalid state transition")
	ErrConsistency       = errors.New("consistency violation")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrDuplicateIdempotencyKey is returned when an allocation with the same
	// idempotency key was already committed. Nothing is mutated.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrMirrorDisabled is returned by offer mirrors that are not configured.
	ErrMirrorDisabled = errors.New("offer mirror disabled")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the entity that did not resolve.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFoundID is shorthand for a lookup by numeric id.
func NotFoundID(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: fmt.Sprintf("id=%d", id)}
}

// InsufficientStockError reports the shortfall for a (product, supplier).
type InsufficientStockError struct {
	ProductID  int64
	SupplierID int64
	Supplier   string
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	if e.Supplier != "" {
		return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
			e.Supplier, e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient stock: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// QuotaExceededError carries the maximum the reservation may be set to.
type QuotaExceededError struct {
	ReservationID int64
	Max           int
	Requested     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("maximum quantity allowed for reservation %d is %d, requested %d",
		e.ReservationID, e.Max, e.Requested)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// SplitMismatchError is returned when a split does not add up.
type SplitMismatchError struct {
	Expected int
	Got      int
}

func (e *SplitMismatchError) Error() string {
	return fmt.Sprintf("split must sum exactly to %d, got %d", e.Expected, e.Got)
}

func (e *SplitMismatchError) Unwrap() error { return ErrSplitMismatch }

// StateError is returned when an entity cannot accept the operation.
type StateError struct {
	Entity string
	ID     int64
	State  string
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s %d in state %q", e.Op, e.Entity, e.ID, e.State)
}

func (e *StateError) Unwrap() error { return ErrState }

// ConsistencyError signals a broken invariant: a bug or a lost lock.
type ConsistencyError struct {
	Detail string
}

func (e *ConsistencyError) Error() string {
	return "consistency violation: " + e.Detail
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// ValidationError collects field-level input problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a single-field ValidationError.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrSplitMismatch)
}

// IsConflict returns true if the request was valid but the current state of
// the inventory rejects it.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
