package types

import (
	"fmt"

	"github.com/google/uuid"
)

// NotAuthorizedError indicates the caller cannot be associated with a permitted identity.
type NotAuthorizedError struct {
	Reason string
}

func (e *NotAuthorizedError) Error() string {
	if e.Reason == "" {
		return "not authorized"
	}
	return fmt.Sprintf("not authorized: %s", e.Reason)
}

// InvalidStateError indicates an operation against a record in an incompatible state.
type InvalidStateError struct {
	Entity string
	ID     string
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Op, e.Entity, e.ID, e.State)
}

// UnknownQuestionError indicates a question id outside the interview's snapshot.
type UnknownQuestionError struct {
	InterviewID uuid.UUID
	QuestionID  string
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("question %q is not part of interview %s", e.QuestionID, e.InterviewID)
}

// CatalogUnavailableError indicates no questions exist for a level.
type CatalogUnavailableError struct {
	Level int
	Cause error
}

func (e *CatalogUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("question catalog unavailable for level %d: %v", e.Level, e.Cause)
	}
	return fmt.Sprintf("question catalog unavailable for level %d", e.Level)
}

func (e *CatalogUnavailableError) Unwrap() error {
	return e.Cause
}

// ProviderFailureError indicates an external provider stayed unavailable after retries.
type ProviderFailureError struct {
	Provider string
	Attempts int
	Cause    error
}

func (e *ProviderFailureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s provider failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("%s provider failed after %d attempt(s)", e.Provider, e.Attempts)
}

func (e *ProviderFailureError) Unwrap() error {
	return e.Cause
}

// AlreadySubmittedError guards the review workflow against writes after submission.
type AlreadySubmittedError struct {
	InterviewID uuid.UUID
	ReviewID    uuid.UUID
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("review %s for interview %s is already submitted", e.ReviewID, e.InterviewID)
}

// NotFoundError indicates a missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ValidationError indicates a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
