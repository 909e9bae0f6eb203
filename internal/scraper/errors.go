package scraper

import (
	"errors"
	"fmt"
)

// Kind classifies why a scrape attempt did not produce a price.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindStorage       Kind = "storage"
	KindNavigation    Kind = "navigation"
	KindParsing       Kind = "parsing"
	KindProtocol      Kind = "protocol"
)

// Error is a classified scrape failure.
type Error struct {
	Kind      Kind
	ListingID int64
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt in the same cycle could succeed.
// Missing or malformed configuration never heals between retries; protocol
// failures are retried like transient ones.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConfiguration:
		return false
	default:
		return true
	}
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err, keeping it in the chain.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or fallback.
func KindOf(err error, fallback Kind) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return fallback
}

// IsRetryable treats unclassified errors as transient.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return err != nil
}
