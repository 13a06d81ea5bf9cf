package services

import (
	"errors"
	"fmt"

	"github.com/sjperalta/pharmavault-api/internal/repository"
	"gorm.io/gorm"
)

// Common service errors
var (
	ErrNotFound              = errors.New("resource not found")
	ErrUnauthorized          = errors.New("not authorized")
	ErrInvalidState          = errors.New("invalid workflow state")
	ErrOutOfOrderApproval    = errors.New("step is not the next one awaiting approval")
	ErrInvalidInput          = errors.New("invalid input")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrRateLimited           = errors.New("too many attempts")
	ErrInactiveAccount       = errors.New("account inactive or suspended")
)

// NextAction names the step that may legitimately act next. StepIndex is nil
// when the workflow is closed.
type NextAction struct {
	StepIndex    *int   `json:"step_index"`
	StepName     string `json:"step_name,omitempty"`
	AssigneeRole string `json:"assignee_role,omitempty"`
	Action       string `json:"action"`
}

// NextActionNone is reported once no further workflow action exists
const NextActionNone = "none"

// WorkflowError carries a failure kind, a readable message and, for state
// conflicts, the legitimate next action.
type WorkflowError struct {
	Kind    error
	Message string
	Next    *NextAction
}

func (e *WorkflowError) Error() string {
	return e.Message
}

// Unwrap exposes the kind so callers can match with errors.Is
func (e *WorkflowError) Unwrap() error {
	return e.Kind
}

// Is lets an out-of-order approval also match ErrInvalidState
func (e *WorkflowError) Is(target error) bool {
	return e.Kind == ErrOutOfOrderApproval && target == ErrInvalidState
}

func newError(kind error, format string, args ...any) *WorkflowError {
	return &WorkflowError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func stateError(kind error, next *NextAction, format string, args ...any) *WorkflowError {
	return &WorkflowError{Kind: kind, Message: fmt.Sprintf(format, args...), Next: next}
}

// NextActionOf extracts the next action from an error, if it carries one
func NextActionOf(err error) *NextAction {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Next
	}
	return nil
}

// translate maps repository errors onto service errors
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return newError(ErrNotFound, "%s not found", what)
	case errors.Is(err, repository.ErrDuplicate):
		return newError(ErrInvalidInput, "%s already exists", what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
