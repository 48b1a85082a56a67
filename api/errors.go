// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-socket.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrSendTimeout           = errors.New("send timeout")
	ErrSendQueueFull         = errors.New("send queue is full")
	ErrPackageTooLarge       = errors.New("package exceeds maximum length")
	ErrMalformedPackage      = errors.New("malformed package")
	ErrDuplicateSession      = errors.New("session identity key already registered")
	ErrMaxConnections        = errors.New("maximum connection number reached")
	ErrConnectionRefused     = errors.New("connection refused by connection filter")
	ErrServerRunning         = errors.New("server is already running")
	ErrServerNotRunning      = errors.New("server is not running")
	ErrUnsupportedSecureMode = errors.New("secure mode is not supported")
	ErrCertificateRequired   = errors.New("certificate is required for secure mode")
	ErrInvalidArgument       = errors.New("invalid argument")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeTimeout
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeProtocol
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WrapError creates a structured error around cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	e := NewError(code, message)
	e.Err = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// PanicError carries a value recovered from a command handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("command handler panic: %v", e.Value)
}
