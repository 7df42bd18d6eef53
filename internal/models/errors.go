package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrStatusMismatch  = errors.New("request already handled")
	ErrStateMismatch   = errors.New("conversation state mismatch")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrConflict        = errors.New("already exists")
	ErrValidation      = errors.New("validation failed")
	ErrAssignmentBusy  = errors.New("student already holds an assignment")
	ErrSubmissionLimit = errors.New("requester already has an active request")
	ErrActiveRequests  = errors.New("category has active requests")
)

// ActiveRequestsError is returned when a category cannot be deleted because
// requests in an active status still reference it.
type ActiveRequestsError struct {
	Count int64
}

func (e *ActiveRequestsError) Error() string {
	return fmt.Sprintf("category has %d active requests", e.Count)
}

func (e *ActiveRequestsError) Unwrap() error { return ErrActiveRequests }
