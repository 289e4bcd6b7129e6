package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates a request failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnbalancedEntry indicates journal debits and credits differ.
	ErrUnbalancedEntry = errors.New("journal entry is unbalanced")
	// ErrChartNotSeeded indicates an account required for auto-posting is missing.
	ErrChartNotSeeded = errors.New("chart of accounts not seeded")
	// ErrConflict indicates the request collides with existing state.
	ErrConflict = errors.New("conflict")
	// ErrPersistence wraps unexpected storage failures.
	ErrPersistence = errors.New("persistence failure")
)

// Invalid builds an ErrInvalidInput carrying a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound builds an ErrNotFound naming the missing entity.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

// IsDomain reports whether err already carries one of the domain sentinels.
func IsDomain(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnbalancedEntry) ||
		errors.Is(err, ErrChartNotSeeded) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrPersistence)
}

// Persistence wraps storage errors that are not already domain errors.
func Persistence(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
