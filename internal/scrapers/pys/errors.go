package pys

import (
	"errors"
	"fmt"
)

// ErrSequence is returned when a postback is attempted before any page was loaded.
var ErrSequence = errors.New("pys: postback before the form was opened")

// ErrFormMissing is returned when the loaded page has no form#form1.
var ErrFormMissing = errors.New("pys: form not found in page")

// TransportError is a network failure or a non-2xx response from the form.
type TransportError struct {
	Method string
	Url    string
	// Status is 0 when no response was received.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("pys: %s %s: status %d: %v", e.Method, e.Url, e.Status, e.Err)
	}
	return fmt.Sprintf("pys: %s %s: %v", e.Method, e.Url, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
