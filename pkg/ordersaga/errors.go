package ordersaga

import (
	"errors"
	"fmt"

	oserrors "github.com/randalmurphal/ordersaga/pkg/ordersaga/errors"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
)

// ErrServiceClosed is returned by InitiateOrder after Close.
var ErrServiceClosed = errors.New("ordersaga: service closed")

// ValidationError describes a malformed order request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrorCategory implements errors.Categorized.
func (e *ValidationError) ErrorCategory() oserrors.Category {
	return oserrors.CategoryCaller
}

// FlowError is returned by InitiateOrder for every unsuccessful flow.
// Info is the error payload for the caller. Order is set when the flow
// reached a terminal envelope.
type FlowError struct {
	TransactionID string
	Info          *event.ErrorInfo
	Order         *event.OrderSummary
	Err           error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("order flow %s: %s", e.TransactionID, e.Info.Error())
}

// Unwrap returns the underlying cause, if any.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// Code returns the error code of Info.
func (e *FlowError) Code() string {
	return e.Info.Code
}

// ErrorCategory implements errors.Categorized.
func (e *FlowError) ErrorCategory() oserrors.Category {
	switch e.Info.Code {
	case event.CodeValidation, event.CodeDuplicateTransaction:
		return oserrors.CategoryCaller
	case event.CodeInsufficientStock, event.CodeOptimisticLockFailure, event.CodeOrderRejected:
		return oserrors.CategoryBusiness
	default:
		return oserrors.CategoryFault
	}
}

func newFlowError(txID, code, message string, cause error) *FlowError {
	return &FlowError{
		TransactionID: txID,
		Info:          &event.ErrorInfo{Code: code, Message: message},
		Err:           cause,
	}
}
