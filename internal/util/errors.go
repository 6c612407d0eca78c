package util

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailRegistered    = errors.New("email already registered")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrReceiptNotFound    = errors.New("receipt not found")
	ErrSessionNotFound    = errors.New("defense session not found")
	ErrTaskNotFound       = errors.New("task not found")

	ErrInvalidTask          = errors.New("task is not active")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrDuplicateSubmission  = errors.New("student already has an open submission for this task")
	ErrAppealWindowExpired  = errors.New("appeal window expired")
	ErrAlreadyIssued        = errors.New("receipt already issued for this submission")
	ErrInvalidState         = errors.New("session is not in a startable state")
	ErrSessionNotInProgress = errors.New("session not in progress")
	ErrNoPendingQuestions   = errors.New("no pending questions left")
)

// ValidationError marks malformed input rejected before any state change.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// FairnessBlockedError is a deliberate, user-visible refusal. It carries the
// specific failing checks and is never downgraded to a softer decision.
type FairnessBlockedError struct {
	Reasons []string
}

func (e *FairnessBlockedError) Error() string {
	return "fairness gate blocked decision: " + strings.Join(e.Reasons, "; ")
}

// StateConflictError indicates a race or stale client view. CurrentState lets
// the caller refetch and retry from reality.
type StateConflictError struct {
	Op           string
	CurrentState string
	Err          error
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s: %v (current state %s)", e.Op, e.Err, e.CurrentState)
}

func (e *StateConflictError) Unwrap() error { return e.Err }

func StateConflict(op, current string, err error) error {
	return &StateConflictError{Op: op, CurrentState: current, Err: err}
}
