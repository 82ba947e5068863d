package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures so callers can decide whether to fix input, retry or give up.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindState       ErrorKind = "state"
	KindExternal    ErrorKind = "external"
	KindPersistence ErrorKind = "persistence"
)

var (
	// Validation
	ErrNotFound            = errors.New("not found")
	ErrDuplicateSubmission = errors.New("question already answered in this session")
	ErrWrongSessionType    = errors.New("question does not belong to this session type")
	ErrQuestionInactive    = errors.New("question is not active")
	ErrUnsupportedMedia    = errors.New("unsupported audio format")
	ErrPayloadTooLarge     = errors.New("audio payload too large")
	ErrInvalidInput        = errors.New("invalid input")

	// State
	ErrInvalidState  = errors.New("invalid state transition")
	ErrAlreadyEnded  = fmt.Errorf("%w: session already ended", ErrInvalidState)
	ErrSessionActive = fmt.Errorf("%w: an active session of this type already exists", ErrInvalidState)

	// External
	ErrEvaluationTimeout = errors.New("evaluation timed out")
	ErrCanceled          = errors.New("request canceled")
	ErrMediaProcessing   = errors.New("media processing failed")
	ErrEvaluatorFailed   = errors.New("evaluator failed")
	ErrTranscriberFailed = errors.New("transcriber failed")

	// Persistence
	ErrPersistence = errors.New("persistence failure")
)

// Error is the typed error surfaced by the state machine and the submission pipelines.
type Error struct {
	Kind ErrorKind
	Err  error  // sentinel cause, matched with errors.Is
	Msg  string // detail for the caller
	// Cause is the underlying error, kept for logs.
	Cause error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Err, e.Msg, e.Cause)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Err, e.Msg)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Err, e.Cause)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func validationError(sentinel error, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Err: sentinel, Msg: fmt.Sprintf(format, args...)}
}

func stateError(sentinel error, format string, args ...any) *Error {
	return &Error{Kind: KindState, Err: sentinel, Msg: fmt.Sprintf(format, args...)}
}

func persistenceError(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindPersistence, Err: ErrPersistence, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// externalError classifies a failed external call. Deadline expiry becomes ErrEvaluationTimeout
// regardless of which collaborator was being waited on.
func externalError(sentinel error, cause error, msg string) *Error {
	if errors.Is(cause, context.DeadlineExceeded) {
		sentinel = ErrEvaluationTimeout
	}
	return &Error{Kind: KindExternal, Err: sentinel, Msg: msg, Cause: cause}
}

// lockError classifies a failed wait for a keyed lock. Only deadline expiry is a timeout.
func lockError(cause error, msg string) *Error {
	if errors.Is(cause, context.Canceled) {
		return &Error{Kind: KindExternal, Err: ErrCanceled, Msg: msg, Cause: cause}
	}
	return externalError(ErrEvaluationTimeout, cause, msg)
}

// KindOf returns the kind of a typed error, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// statusClientClosedRequest is the nginx convention for a caller that went away.
const statusClientClosedRequest = 499

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateSubmission):
		return http.StatusConflict
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrEvaluationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCanceled):
		return statusClientClosedRequest
	}

	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindState:
		return http.StatusConflict
	case KindExternal:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Message is the caller-facing text of an error; untyped errors are not exposed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s", e.Err, e.Msg)
		}
		return e.Err.Error()
	}
	return "internal error"
}
