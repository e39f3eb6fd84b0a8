package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateCode     = errors.New("duplicate code")
	ErrOrphanLimit       = errors.New("orphan tolerance exceeded")
	ErrValidationFailed  = errors.New("post-write validation failed")
	ErrCancelled         = errors.New("load cancelled")
	ErrRetriesExhausted  = errors.New("retries exhausted")
	ErrDanglingReference = errors.New("attribute row references missing location")
)

// RowError is a defect scoped to a single source row. It carries enough
// context (code, column, row index, reason) for the caller to log it
// without re-deriving anything from the source data.
type RowError struct {
	Code     string
	Column   string
	RowIndex int
	Value    string
	Reason   string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (code %q, column %q): %s (value %q)",
		e.RowIndex, e.Code, e.Column, e.Reason, e.Value)
}

// IsRetryable marks row defects as permanent so the retry layer never
// replays a batch that will fail the same way.
func (e *RowError) IsRetryable() bool { return false }

// BatchError aggregates batch-scoped integrity defects. Kind is one of the
// sentinel errors above so callers can branch with errors.Is.
type BatchError struct {
	Kind    error
	Details []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%v: %d affected %v", e.Kind, len(e.Details), e.Details)
}

func (e *BatchError) Unwrap() error { return e.Kind }

func (e *BatchError) IsRetryable() bool { return false }
