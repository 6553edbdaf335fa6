package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinels for errors.Is. Every typed error below unwraps to exactly one of them.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("store failure")
)

// Problem is a single reason a draft was rejected.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Field == "" {
		return p.Message
	}
	return p.Field + ": " + p.Message
}

// ValidationError collects every problem found in one input. When the debits
// and credits disagree, Imbalance carries the computed totals.
type ValidationError struct {
	Problems  []Problem
	Imbalance *ImbalanceError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	if e.Imbalance != nil {
		return []error{ErrValidation, e.Imbalance}
	}
	return []error{ErrValidation}
}

// NewValidationError builds a ValidationError with a single problem.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Problems: []Problem{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}

// ImbalanceError reports a transaction whose debits and credits differ.
type ImbalanceError struct {
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("Debits (%s) do not equal Credits (%s)", e.TotalDebits.StringFixed(2), e.TotalCredits.StringFixed(2))
}

func (e *ImbalanceError) Unwrap() error { return ErrValidation }

// NotFoundError reports a referenced account or transaction that does not exist.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports an operation that integrity rules forbid.
type ConflictError struct {
	Entity string
	ID     any
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StoreError wraps a collaborator failure without reinterpreting it. Error()
// includes the cause for operators; user-facing layers should show a generic
// message instead.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// PostingError is returned when a posting unit of work fails and was rolled back.
type PostingError struct {
	Op            string
	TransactionID int64
	Err           error
}

func (e *PostingError) Error() string {
	if e.TransactionID != 0 {
		return fmt.Sprintf("%s transaction %d: %v", e.Op, e.TransactionID, e.Err)
	}
	return fmt.Sprintf("%s transaction: %v", e.Op, e.Err)
}

func (e *PostingError) Unwrap() error { return e.Err }
