package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied matches every PermissionDeniedError.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnsupportedOperation matches every UnsupportedOperationError.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrConstraintViolation matches every ConstraintViolationError.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrPoolExhausted matches every PoolExhaustedError.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrTransactionAborted matches every TransactionAbortedError.
	ErrTransactionAborted = errors.New("transaction aborted")
)

// PermissionDeniedError reports that a role lacks the capability for an operation.
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: role %q cannot %s", e.Role, e.Permission)
}

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

// UnsupportedOperationError reports that an entity type does not implement an operation.
type UnsupportedOperationError struct {
	Table     string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation: %s does not support %s", e.Table, e.Operation)
}

func (e *UnsupportedOperationError) Is(target error) bool { return target == ErrUnsupportedOperation }

// ValidationError reports malformed caller input such as an unknown projection field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConstraintViolationError carries a database integrity failure.
type ConstraintViolationError struct {
	Code       string
	Constraint string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("constraint violation (%s) on %s: %v", e.Code, e.Constraint, e.Err)
	}
	return fmt.Sprintf("constraint violation (%s): %v", e.Code, e.Err)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

func (e *ConstraintViolationError) Is(target error) bool { return target == ErrConstraintViolation }

// PoolExhaustedError reports a hard connection failure while leasing a connection.
type PoolExhaustedError struct {
	Err error
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("connection pool exhausted: %v", e.Err)
}

func (e *PoolExhaustedError) Unwrap() error { return e.Err }

func (e *PoolExhaustedError) Is(target error) bool { return target == ErrPoolExhausted }

// TransactionAbortedError reports that a statement of a multi-statement sequence
// failed and the sequence was rolled back.
type TransactionAbortedError struct {
	Err error
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("transaction aborted: %v", e.Err)
}

func (e *TransactionAbortedError) Unwrap() error { return e.Err }

func (e *TransactionAbortedError) Is(target error) bool { return target == ErrTransactionAborted }

// Postgres integrity constraint codes mapped to ConstraintViolationError.
var constraintCodes = map[string]struct{}{
	"23000": {}, // integrity_constraint_violation
	"23502": {}, // not_null_violation
	"23503": {}, // foreign_key_violation
	"23505": {}, // unique_violation
	"23514": {}, // check_constraint_violation
}

// Translate maps driver errors into the error taxonomy. Errors that already
// belong to the taxonomy, context errors and unknown errors pass through.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := constraintCodes[pgErr.Code]; ok {
			return &ConstraintViolationError{Code: pgErr.Code, Constraint: pgErr.ConstraintName, Err: err}
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return &PoolExhaustedError{Err: err}
	}
	return err
}

// IsClientError reports whether err should be surfaced to the caller as a 4xx.
func IsClientError(err error) bool {
	switch {
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrUnsupportedOperation),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConstraintViolation),
		errors.Is(err, ErrNotFound):
		return true
	}
	return false
}

// ErrorKind returns a short stable name for err used in logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrUnsupportedOperation):
		return "unsupported_operation"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConstraintViolation):
		return "constraint_violation"
	case errors.Is(err, ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, ErrTransactionAborted):
		return "transaction_aborted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "internal"
}
