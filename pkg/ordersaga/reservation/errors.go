package reservation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	oserrors "github.com/randalmurphal/ordersaga/pkg/ordersaga/errors"
)

// ErrInvalidQuantity is returned for quantities below 1.
var ErrInvalidQuantity = errors.New("reservation quantity must be at least 1")

// InsufficientQuantityError is returned by Reserve when the record holds
// less than requested. Nothing is written.
type InsufficientQuantityError struct {
	ResourceKey uuid.UUID
	Requested   int
	Available   int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity for %s: requested %d, available %d",
		e.ResourceKey, e.Requested, e.Available)
}

// ErrorCategory implements errors.Categorized.
func (e *InsufficientQuantityError) ErrorCategory() oserrors.Category {
	return oserrors.CategoryBusiness
}

// ConcurrencyConflictError is returned when another writer committed
// between read and write.
type ConcurrencyConflictError struct {
	ResourceKey     uuid.UUID
	ExpectedVersion int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent update of %s: version %d is no longer current",
		e.ResourceKey, e.ExpectedVersion)
}

// Unwrap returns ErrStaleVersion.
func (e *ConcurrencyConflictError) Unwrap() error {
	return ErrStaleVersion
}

// ErrorCategory implements errors.Categorized.
func (e *ConcurrencyConflictError) ErrorCategory() oserrors.Category {
	return oserrors.CategoryBusiness
}
