package domain

import "errors"

var (
	// ErrUnknownKind is returned when no handler is registered for a job kind
	ErrUnknownKind = errors.New("unknown job kind")

	// ErrInvalidPayload is returned when job data is missing or malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrHandlerPanic is wrapped around a recovered handler panic
	ErrHandlerPanic = errors.New("handler panicked")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// PermanentError wraps errors that retrying cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent error: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError creates a new permanent error
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// ResultFromError maps an error onto a handler Result. Payload problems and
// PermanentError are fatal unless wrapped in a RetryableError; anything else
// is retried until attempts run out.
func ResultFromError(err error) Result {
	if err == nil {
		return Success()
	}

	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return Retry(err)
	}

	if errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrUnknownKind) {
		return Fatal(err)
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return Fatal(err)
	}

	return Retry(err)
}
