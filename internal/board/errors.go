package board

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotInSprint   = errors.New("task is not on this sprint board")
	ErrMalformedID       = errors.New("malformed id")
	ErrInvalidStatus     = errors.New("invalid task status")
	ErrInvalidTransition = errors.New("invalid sprint status transition")
	ErrBoardClosed       = errors.New("board is closed")
)

// Notice codes shown to the user alongside the message.
const (
	CodeTaskNotInSprint = "TASK_NOT_IN_SPRINT"
	CodeValidation      = "VALIDATION_FAILED"
	CodePersist         = "PERSIST_FAILED"
	CodeNotFound        = "NOT_FOUND"
)

// ValidationError rejects a mutation before anything is persisted.
type ValidationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError means the remote store rejected the write or was unreachable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persist failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFoundError names a sprint, task, user or role absent from every source.
type NotFoundError struct {
	Kind string
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Code classifies err for the user-facing notice.
func Code(err error) string {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		persist    *PersistenceError
	)
	switch {
	case errors.Is(err, ErrTaskNotInSprint):
		return CodeTaskNotInSprint
	case errors.As(err, &validation):
		return CodeValidation
	case errors.As(err, &notFound):
		return CodeNotFound
	case errors.As(err, &persist):
		return CodePersist
	}
	return CodePersist
}

// Message is the human-readable reason shown in the toast for err.
func Message(err error) string {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		persist    *PersistenceError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Reason
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.As(err, &persist):
		return "could not save changes, please try again"
	}
	return "something went wrong"
}
