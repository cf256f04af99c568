package correlation

import (
	"errors"
	"fmt"
	"time"

	oserrors "github.com/randalmurphal/ordersaga/pkg/ordersaga/errors"
)

var (
	// ErrRegistryClosed is returned by Open after Close, and is the
	// rejection delivered to slots still pending at Close.
	ErrRegistryClosed = errors.New("correlation: registry closed")

	// ErrRejected is used when Reject is called without a cause.
	ErrRejected = errors.New("correlation: rejected")

	// ErrEmptyTransactionID is returned when opening a slot without an id.
	ErrEmptyTransactionID = errors.New("correlation: empty transaction id")
)

// DuplicateTransactionError is returned by Open when a slot already
// exists for the transaction id.
type DuplicateTransactionError struct {
	TransactionID string
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("correlation: transaction %s is already pending", e.TransactionID)
}

// ErrorCategory implements errors.Categorized.
func (e *DuplicateTransactionError) ErrorCategory() oserrors.Category {
	return oserrors.CategoryCaller
}

// AwaitTimeoutError is returned by Await when the slot was discarded
// because its timeout elapsed first.
type AwaitTimeoutError struct {
	TransactionID string
	Timeout       time.Duration
}

func (e *AwaitTimeoutError) Error() string {
	return fmt.Sprintf("correlation: transaction %s not completed within %s", e.TransactionID, e.Timeout)
}

// ErrorCategory implements errors.Categorized.
func (e *AwaitTimeoutError) ErrorCategory() oserrors.Category {
	return oserrors.CategoryFault
}

// UnknownTransactionError is returned by Resolve and Reject when no slot
// is pending for the transaction id. It means a terminal envelope arrived
// for a flow nobody waits on, or arrived twice.
type UnknownTransactionError struct {
	TransactionID string
}

func (e *UnknownTransactionError) Error() string {
	return fmt.Sprintf("correlation: no pending slot for transaction %s", e.TransactionID)
}

// ErrorCategory implements errors.Categorized.
func (e *UnknownTransactionError) ErrorCategory() oserrors.Category {
	return oserrors.CategoryFault
}
