// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling for taskbridge. Every failure
// that crosses a component boundary carries an ErrorCode so callers can decide
// whether to surface it to the user, feed it back to the model, or retry.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies taskbridge errors for recovery decisions and logging.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeConfiguration indicates missing or invalid configuration,
	// detected before any network call is attempted.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeUnknownTool indicates the model named a tool that is not registered.
	CodeUnknownTool ErrorCode = "UNKNOWN_TOOL"

	// CodeDuplicateTool indicates a tool name was registered twice.
	CodeDuplicateTool ErrorCode = "DUPLICATE_TOOL"

	// CodeInvalidArguments indicates tool arguments failed schema validation.
	CodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"

	// CodeRemoteUnavailable indicates the task server could not be reached
	// after the configured retries.
	CodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"

	// CodeModelUnavailable indicates the chat completion call itself failed
	// after its retries. Fatal to the conversation loop.
	CodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"

	// CodeExhausted indicates the iteration or deadline budget was spent
	// before the model produced a final answer.
	CodeExhausted ErrorCode = "EXHAUSTED"

	// CodeTimeout indicates a single operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"
)

// BridgeError is a typed error with context for structured logging.
// It implements the error interface and can be unwrapped with errors.As().
type BridgeError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *BridgeError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Cause       string                 `json:"cause,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Cause:       cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new BridgeError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *BridgeError) WithContext(key string, value interface{}) *BridgeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *BridgeError) WithRecoverable(recoverable bool) *BridgeError {
	e.Recoverable = recoverable
	return e
}

// AsBridgeError attempts to convert an error to a BridgeError.
// Returns the error as BridgeError if it is one, or wraps it otherwise.
func AsBridgeError(err error) *BridgeError {
	if err == nil {
		return nil
	}
	if be, ok := err.(*BridgeError); ok {
		return be
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the ErrorCode of err, or CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if be, ok := err.(*BridgeError); ok {
		return be.Code
	}
	return CodeInternal
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *BridgeError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
