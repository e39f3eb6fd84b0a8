package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// StoreError wraps a target-store failure with an explicit retryability
// verdict so the retry layer never replays constraint violations or auth
// failures.
type StoreError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) IsRetryable() bool { return e.Retryable }

// classify wraps err with a retryability verdict derived from its SQLSTATE
// class. Connection problems (08), resource exhaustion (53), operator
// intervention (57, e.g. admin shutdown during failover) and transaction
// conflicts (40) are worth retrying; integrity violations (23), auth
// failures (28), and malformed statements (42) never are.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := pgErr.Code
		if len(class) >= 2 {
			class = class[:2]
		}
		switch class {
		case "08", "53", "57", "40":
			return &StoreError{Op: op, Err: err, Retryable: true}
		case "23", "28", "42", "22":
			return &StoreError{Op: op, Err: err, Retryable: false}
		}
		return &StoreError{Op: op, Err: err, Retryable: false}
	}

	// No SQLSTATE: a network-level failure (dial error, reset, timeout).
	msg := strings.ToLower(err.Error())
	retryable := strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unexpected eof")
	return &StoreError{Op: op, Err: err, Retryable: retryable}
}
