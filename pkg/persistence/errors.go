// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrContactNotFound indicates a contact was not found by id or external id.
	ErrContactNotFound = errors.New("contact not found")

	// ErrChannelNotFound indicates a channel was not found.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrDeliveryLogNotFound indicates no delivery log exists for the given key.
	ErrDeliveryLogNotFound = errors.New("delivery log not found")

	// ErrTimerNotFound indicates a delay timer was not found.
	ErrTimerNotFound = errors.New("delay timer not found")

	// ErrContactVersionConflict indicates a compare-and-swap on the contact's
	// automation state lost against a concurrent writer.
	ErrContactVersionConflict = errors.New("contact automation state version conflict")

	// ErrUnknownMilestone indicates a delivery log milestone name is not recognized.
	ErrUnknownMilestone = errors.New("unknown delivery milestone")
)

// FlowError wraps flow-related errors with additional context.
type FlowError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	FlowID string // Flow ID if applicable
	Err    error  // Underlying error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for flow errors.
func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{
		Op:     op,
		FlowID: flowID,
		Err:    err,
	}
}

// ContactError wraps contact-related errors with additional context.
type ContactError struct {
	Op        string // Operation being performed
	ContactID string // Contact ID or external ID
	Err       error  // Underlying error
}

func (e *ContactError) Error() string {
	return fmt.Sprintf("%s operation failed for contact %s: %v", e.Op, e.ContactID, e.Err)
}

func (e *ContactError) Unwrap() error {
	return e.Err
}

func (e *ContactError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewContactError creates a new contact error with context.
func NewContactError(op, contactID string, err error) *ContactError {
	return &ContactError{
		Op:        op,
		ContactID: contactID,
		Err:       err,
	}
}

// IsFlowNotFound checks if an error indicates a flow was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsContactNotFound checks if an error indicates a contact was not found.
func IsContactNotFound(err error) bool {
	return errors.Is(err, ErrContactNotFound)
}

// IsChannelNotFound checks if an error indicates a channel was not found.
func IsChannelNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound)
}

// IsNotFound checks if an error is any of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrContactNotFound) ||
		errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrDeliveryLogNotFound) ||
		errors.Is(err, ErrTimerNotFound)
}

// IsVersionConflict checks if an error indicates a lost compare-and-swap.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrContactVersionConflict)
}
