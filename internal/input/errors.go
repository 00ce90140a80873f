package input

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that happen before the pipeline is spawned.
type ErrorKind string

const (
	KindInput   ErrorKind = "input"
	KindNetwork ErrorKind = "network"
	KindDecode  ErrorKind = "decode"
)

// Error is returned by Select and Resolver.Resolve.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func InputError(message string, err error) *Error {
	return &Error{Kind: KindInput, Message: message, Err: err}
}

func NetworkError(message string, status int, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, StatusCode: status, Err: err}
}

func DecodeError(message string, err error) *Error {
	return &Error{Kind: KindDecode, Message: message, Err: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Kind == kind
}
