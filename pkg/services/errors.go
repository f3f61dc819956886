// Package services implements the flow administration use cases.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrFlowNil             = errors.New("flow cannot be nil")
	ErrFlowNameRequired    = errors.New("flow name is required")
	ErrNodesRequired       = errors.New("flow must have at least one node")
	ErrTriggerNodeRequired = errors.New("flow must have exactly one trigger node")
	ErrDuplicateNodeID     = errors.New("flow node ids must be unique")
	ErrInvalidEdge         = errors.New("flow edge points at an unknown node")
	ErrInvalidNodeConfig   = errors.New("invalid node configuration")
	ErrWorkspaceIDRequired = errors.New("workspace ID cannot be empty")
	ErrUnsupportedTrigger  = errors.New("unsupported flow trigger type")
	ErrUnsupportedChannel  = errors.New("unsupported channel type")

	// Access Errors (403 Forbidden).
	ErrAccessDenied = errors.New("flow belongs to another workspace")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrTriggerNodeRequired) ||
		errors.Is(err, ErrDuplicateNodeID) ||
		errors.Is(err, ErrInvalidEdge) ||
		errors.Is(err, ErrInvalidNodeConfig) ||
		errors.Is(err, ErrWorkspaceIDRequired) ||
		errors.Is(err, ErrUnsupportedTrigger) ||
		errors.Is(err, ErrUnsupportedChannel)
}

// IsAccessDenied checks if an error should return HTTP 403.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
