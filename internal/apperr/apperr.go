// Package apperr defines the error kinds shared by the fulfillment core.
//
// Every error returned across a component boundary wraps exactly one kind so
// callers can branch with errors.Is:
//
//	ErrValidation     malformed input, rejected before any write
//	ErrNotFound       referenced order/item/day has no row
//	ErrConflict       unique key clash or illegal state transition
//	ErrTransientStore connection or timeout failure from the store
//	ErrPartial        primary write committed, a follow-up side effect failed
package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrTransientStore    = errors.New("transient store error")
	ErrPartial           = errors.New("partially applied")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validation builds a ValidationError for field.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the missing resource name.
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// Conflict wraps ErrConflict with a reason.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// PartialError reports a side effect that failed after the primary write
// committed. The primary write is not rolled back.
type PartialError struct {
	Op  string
	Err error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s failed after commit: %v", e.Op, e.Err)
}

func (e *PartialError) Unwrap() []error { return []error{ErrPartial, e.Err} }

// InsufficientStockError is returned by strict adjustments.
type InsufficientStockError struct {
	MenuItemID string
	Available  int32
	Requested  int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.MenuItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// FromStore classifies a database error. what names the resource used for
// not-found messages. Already-classified errors pass through unchanged.
func FromStore(what string, err error) error {
	if err == nil {
		return nil
	}
	if IsKind(err) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound(what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, ErrConflict)
		case "22003", "23514":
			// numeric out of range, check violation
			return Validation(what, "value out of range")
		case "40001", "40P01", "57014":
			// serialization failure, deadlock, statement timeout
			return fmt.Errorf("%s: %w: %w", what, ErrTransientStore, err)
		}
		return err
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", what, ErrTransientStore, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// IsKind reports whether err already carries one of the error kinds.
func IsKind(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrTransientStore) ||
		errors.Is(err, ErrPartial) ||
		errors.Is(err, ErrInsufficientStock)
}
