package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to the interactive layer
var (
	ErrImageLoad       = errors.New("image load error")
	ErrPersist         = errors.New("persist error")
	ErrDetection       = errors.New("detection error")
	ErrValidation      = errors.New("validation error")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Error carries the failing operation and path alongside its kind
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error kind as well as anything in the wrapped chain
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// NewError builds an *Error of the given kind
func NewError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf builds an *Error of the given kind with a formatted cause
func Errorf(kind error, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}
