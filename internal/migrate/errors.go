package migrate

import (
	"errors"
	"fmt"
)

// InconsistentWarning accompanies every promotion failure.
const InconsistentWarning = "live store may be inconsistent"

var (
	// ErrStagingFailed wraps the accumulated errors of a failed staging copy.
	// The live store is untouched when it is returned.
	ErrStagingFailed = errors.New("staging copy failed")

	// ErrValidationFailed means the staging copy does not match the live
	// store. The live store is untouched when it is returned.
	ErrValidationFailed = errors.New("staging validation failed")
)

// RowCopyError is a single record that could not be copied. Row errors are
// collected per table; they fail the table but never stop later tables.
type RowCopyError struct {
	Table string
	Row   string
	Err   error
}

func (e *RowCopyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Table, e.Row, e.Err)
}

func (e *RowCopyError) Unwrap() error { return e.Err }

// StepError is a table copy that could not run at all.
type StepError struct {
	Table string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Table, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// PromotionError is a failure while replacing the live store's contents.
// Some live tables may already have been replaced or emptied.
type PromotionError struct {
	Table string
	Err   error
}

func (e *PromotionError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("promotion failed: %v (%s)", e.Err, InconsistentWarning)
	}
	return fmt.Sprintf("promoting %s: %v (%s)", e.Table, e.Err, InconsistentWarning)
}

func (e *PromotionError) Unwrap() error { return e.Err }
