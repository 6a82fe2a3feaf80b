package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrEventNotFound         = errors.New("event not found")
	ErrUnitNotFound          = errors.New("unit not found")
	ErrBatchNotFound         = errors.New("batch not found")
	ErrVariantNotFound       = errors.New("product variant not found")
	ErrOwnerNotFound         = errors.New("event owner not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrTransactionConflict   = errors.New("transaction conflict")
	ErrEventClosed           = errors.New("event does not accept allocations")
	ErrUnitAllocated         = errors.New("unit has an open allocation")
	ErrInvalidInput          = errors.New("invalid input")
)

// IsNotFound reports whether err refers to a missing or soft-deleted entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrOwnerNotFound)
}

// InsufficientInventoryError carries the found-vs-required counts of a short
// selection. It matches ErrInsufficientInventory with errors.Is.
type InsufficientInventoryError struct {
	Found    int
	Required int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: found %d eligible unit(s), required %d", e.Found, e.Required)
}

func (e *InsufficientInventoryError) Is(target error) bool { return target == ErrInsufficientInventory }

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func Invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }
