package service

import (
	"errors"
	"fmt"
)

// Standard service errors for consistent error handling across all services.

var (
	// ErrNotFound indicates a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a resource already exists (duplicate).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden indicates the caller lacks permission to act on a resource.
	ErrForbidden = errors.New("forbidden")
)

// NotFoundError provides detailed not-found errors with resource context.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a not-found error for a specific resource.
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError provides detailed validation errors with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RequiredError creates a validation error for a required field.
func RequiredError(field string) error {
	return &ValidationError{Field: field, Message: "is required"}
}

// OwnershipError indicates a resource does not belong to the requesting user.
type OwnershipError struct {
	Resource string
	ID       string
	UserID   string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s %s does not belong to user %s", e.Resource, e.ID, e.UserID)
}

func (e *OwnershipError) Unwrap() error { return ErrForbidden }

// NewOwnershipError creates an ownership error for a resource.
func NewOwnershipError(resource, id, userID string) error {
	return &OwnershipError{Resource: resource, ID: id, UserID: userID}
}

// EnsureOwnership checks that a resource belongs to the requesting user.
func EnsureOwnership(resourceUserID, requestUserID, resourceType, resourceID string) error {
	if resourceUserID != requestUserID {
		return NewOwnershipError(resourceType, resourceID, requestUserID)
	}
	return nil
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsOwnershipError checks if an error is an ownership error.
func IsOwnershipError(err error) bool {
	var oe *OwnershipError
	return errors.As(err, &oe)
}
