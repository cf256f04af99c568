// Package errors classifies failures raised while placing orders.
//
// Every error crossing a package boundary falls into one category:
//   - Caller: the request itself is wrong (malformed, duplicate transaction id)
//   - Business: a domain rule refused the work (insufficient stock, version conflict)
//   - Fault: something broke (handler failure, unknown transaction, storage error)
//   - Transient: an infrastructure call that may succeed if repeated
//
// Typed errors opt in by implementing Categorized. Nothing is retried except
// the startup dial of a remote store (see Connect).
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryFault is the zero value so unknown errors fail safe.
	CategoryFault Category = iota

	// CategoryCaller indicates the request must be corrected by the caller.
	CategoryCaller

	// CategoryBusiness indicates a domain rule rejected the operation.
	CategoryBusiness

	// CategoryTransient indicates retry will likely help.
	// Examples: connection refused, pool exhausted, timeouts while dialing.
	CategoryTransient
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFault:
		return "fault"
	case CategoryCaller:
		return "caller"
	case CategoryBusiness:
		return "business"
	case CategoryTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Categorized is implemented by errors that know their own category.
type Categorized interface {
	error
	ErrorCategory() Category
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// ErrorCategory implements Categorized.
func (e *CategorizedError) ErrorCategory() Category {
	return e.Category
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Caller creates a caller error.
func Caller(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryCaller, context)
}

// Business creates a business error.
func Business(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryBusiness, context)
}

// Fault creates a fault error.
func Fault(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryFault, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryFault // shouldn't happen, fail safe
	}

	var catErr Categorized
	if errors.As(err, &catErr) {
		return catErr.ErrorCategory()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	return CategoryFault
}

// IsCallerError reports whether the caller must fix the request.
func IsCallerError(err error) bool {
	return Categorize(err) == CategoryCaller
}

// IsBusinessError reports whether a domain rule refused the operation.
func IsBusinessError(err error) bool {
	return Categorize(err) == CategoryBusiness
}
