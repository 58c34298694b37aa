package content

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation         ErrorKind = "validation_error"
	KindValidationWarning  ErrorKind = "validation_warning"
	KindTransformation     ErrorKind = "transformation_error"
	KindPublishRecoverable ErrorKind = "publish_recoverable"
	KindPublishFatal       ErrorKind = "publish_fatal"
	KindPlatformLimitation ErrorKind = "platform_limitation"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupported       = errors.New("operation not supported by platform")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrDuplicateInFlight = errors.New("publish already in flight for content and platform")
	ErrAlreadyQueued     = errors.New("publish already queued for content and platform")
	ErrNotCancellable    = errors.New("queue item cannot be cancelled in its current state")
)

// Error is a classified failure. Only KindPublishRecoverable is retried.
type Error struct {
	Kind        ErrorKind
	Code        string
	Platform    string
	Message     string
	Suggestions []string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Platform != "" {
		return fmt.Sprintf("%s: %s: %s", e.Platform, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Recoverable() bool {
	return e.Kind == KindPublishRecoverable
}

func Recoverable(platform, code string, err error, suggestions ...string) *Error {
	return &Error{Kind: KindPublishRecoverable, Code: code, Platform: platform, Err: err, Suggestions: suggestions}
}

func Fatal(platform, code string, err error, suggestions ...string) *Error {
	return &Error{Kind: KindPublishFatal, Code: code, Platform: platform, Err: err, Suggestions: suggestions}
}

// IsRecoverable reports whether err (or anything it wraps) is a recoverable
// publish error.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable()
	}
	return false
}

// ToPublishError flattens err into the structured form carried by results.
func ToPublishError(err error) PublishError {
	var e *Error
	if errors.As(err, &e) {
		msg := e.Message
		if msg == "" && e.Err != nil {
			msg = e.Err.Error()
		}
		return PublishError{
			Code:        e.Code,
			Message:     msg,
			Recoverable: e.Recoverable(),
			Suggestions: e.Suggestions,
		}
	}

	pe := PublishError{Code: "internal_error", Message: err.Error()}
	switch {
	case errors.Is(err, ErrUnsupported):
		pe.Code = "unsupported_operation"
	case errors.Is(err, ErrDuplicateInFlight):
		pe.Code = "duplicate_in_flight"
	case errors.Is(err, ErrAlreadyQueued):
		pe.Code = "already_queued"
	case errors.Is(err, ErrNotFound):
		pe.Code = "not_found"
	case errors.Is(err, ErrStoreUnavailable):
		pe.Code = "store_unavailable"
	}
	return pe
}
