package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoIdentity is returned when an operation needs a logged-in user.
	ErrNoIdentity = errors.New("no authenticated user")
	// ErrInvalidTransition is returned when an operation is not allowed in the current status.
	ErrInvalidTransition = errors.New("operation not allowed in current state")
	// ErrOperationPending is returned while another call for the attempt is outstanding.
	ErrOperationPending = errors.New("another operation is still in progress")
	// ErrUnknownOption indicates the selected key is not an option of the current question.
	ErrUnknownOption = errors.New("option not found")
	// ErrNotGraded is returned by persist before grading succeeded.
	ErrNotGraded = errors.New("quiz has not been graded")
	// ErrEmptyQuiz indicates generation returned no questions.
	ErrEmptyQuiz = errors.New("generated quiz has no questions")
	// ErrMalformedQuiz indicates generated questions that cannot be answered:
	// missing or repeated ids, or no options.
	ErrMalformedQuiz = errors.New("generated quiz is malformed")
	// ErrStaleAnswer is returned when an answer names a question other than the current one.
	ErrStaleAnswer = errors.New("answer does not match the current question")
	// ErrAttemptNotFound indicates a history attempt id is unknown.
	ErrAttemptNotFound = errors.New("quiz attempt not found")
	// ErrEmailInUse is returned by register when the email is taken.
	ErrEmailInUse = errors.New("email is already in use")
)

// ConfigurationError is raised locally before any request is made.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// TransportError means no usable response was received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError means the API answered, but with a non-success status or a
// body that could not be used. Message is the server-supplied text, if any;
// Err is the local cause for unusable bodies.
type ServiceError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%s: service returned status %d", e.Op, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Err }

// MessageOr turns err into the text shown to the user. Local validation
// errors and server-supplied messages are shown as-is; everything else is
// replaced by fallback.
func MessageOr(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Reason
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		return svcErr.Message
	}
	switch {
	case errors.Is(err, ErrOperationPending):
		return "Please wait for the current operation to finish."
	case errors.Is(err, ErrStaleAnswer):
		return "That question has already been answered."
	case errors.Is(err, ErrUnknownOption):
		return "Please pick one of the listed options."
	case errors.Is(err, ErrNoIdentity):
		return "Please log in first."
	case errors.Is(err, ErrEmailInUse):
		return "Email is already in use. Please use a different email."
	}
	return fallback
}
