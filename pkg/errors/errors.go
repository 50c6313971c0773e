// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the error taxonomy of the control frontend.
//
// Every failure on the request path is carried as an *Error tagged with a
// Code. The router matches on the code to build the error reply sent back to
// the client; it never inspects concrete error types.
package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrUpstreamUnavailable indicates the upstream circuit is open.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrReplyTimeout indicates the upstream reply did not arrive in time.
	ErrReplyTimeout = errors.New("reply timeout")

	// ErrTooManyInflight indicates the in-flight request registry is full.
	ErrTooManyInflight = errors.New("too many requests in flight")

	// ErrClosed indicates the socket or correlator was closed.
	ErrClosed = errors.New("closed")

	// ErrMalformedFrames indicates a frame sequence without an identity delimiter.
	ErrMalformedFrames = errors.New("malformed frame sequence")
)

// Code classifies an error reply.
type Code int

const (
	CodeGeneric Code = iota + 1
	CodeInvalidArguments
	CodeDecodeFailure
	CodeCodecMismatch
)

func (c Code) String() string {
	switch c {
	case CodeGeneric:
		return "generic"
	case CodeInvalidArguments:
		return "args"
	case CodeDecodeFailure:
		return "decode"
	case CodeCodecMismatch:
		return "codec"
	default:
		return "unknown"
	}
}

// Error is a request-path failure tagged with its Code.
type Error struct {
	Code   Code   // Error kind
	Op     string // Operation that failed
	Detail string // Human readable detail sent to the client
	Err    error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s %s: %s", e.Code, e.Op, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodecMismatch reports an unsupported wire tag.
func CodecMismatch(tag byte) error {
	return &Error{
		Code:   CodeCodecMismatch,
		Op:     "decode",
		Detail: fmt.Sprintf("unsupported codec: %d", tag),
	}
}

// DecodeFailure reports a payload that is not valid UTF-8 JSON.
func DecodeFailure(err error) error {
	return &Error{
		Code:   CodeDecodeFailure,
		Op:     "decode",
		Detail: err.Error(),
		Err:    err,
	}
}

// InvalidArguments reports a request rejected by argument checks.
func InvalidArguments(format string, args ...any) error {
	return &Error{
		Code:   CodeInvalidArguments,
		Op:     "validate",
		Detail: fmt.Sprintf(format, args...),
	}
}

// Generic wraps any other failure of op.
func Generic(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:   CodeGeneric,
		Op:     op,
		Detail: fmt.Sprintf("%s: %v", op, err),
		Err:    err,
	}
}

// CodeOf returns the code carried by err, CodeGeneric when err is untagged.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeGeneric
}

// DetailOf returns the client-facing detail for err.
func DetailOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return err.Error()
}

// Payload builds the body of an error reply. The caller sets msg_id.
func Payload(code Code, detail string) map[string]any {
	return map[string]any{
		"result": "error",
		"content": map[string]any{
			"ecode": int(code),
			"msg":   detail,
		},
	}
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
