package errors

import "errors"

type Category string

const (
	CategoryInvalidInput    Category = "invalid_input"
	CategoryGateBlocked     Category = "gate_blocked"
	CategoryBusy            Category = "busy"
	CategoryParseFailure    Category = "parse_failure"
	CategoryTransport       Category = "transport"
	CategoryRemoteFailure   Category = "remote_failure"
	CategoryInternalFailure Category = "internal_failure"
)

type classifiedError struct {
	category  Category
	code      string
	detail    string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func (e *classifiedError) Category() Category {
	return e.category
}

func (e *classifiedError) Code() string {
	return e.code
}

func (e *classifiedError) Detail() string {
	return e.detail
}

func (e *classifiedError) Retryable() bool {
	return e.retryable
}

// Wrap classifies cause with a category, a stable code, and a human-readable
// detail surfaced to operators. Retryable marks errors the caller can resolve
// by waiting, retrying, or clearing the gate.
func Wrap(cause error, category Category, code, detail string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		detail:    detail,
		retryable: retryable,
		cause:     cause,
	}
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func DetailOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.detail
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}
