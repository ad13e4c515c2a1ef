// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	be := New(CodeRemoteUnavailable, "task server call failed", cause)

	if be.Code != CodeRemoteUnavailable {
		t.Errorf("expected CodeRemoteUnavailable, got %v", be.Code)
	}
	if be.Message != "task server call failed" {
		t.Errorf("expected message 'task server call failed', got %q", be.Message)
	}
	if be.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(be, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestErrorString(t *testing.T) {
	be := New(CodeUnknownTool, "no tool named 'frobnicate'", nil)
	want := "[UNKNOWN_TOOL] no tool named 'frobnicate'"
	if be.Error() != want {
		t.Errorf("expected %q, got %q", want, be.Error())
	}

	withCause := New(CodeModelUnavailable, "chat completion failed", errors.New("503"))
	want = "[MODEL_UNAVAILABLE] chat completion failed: 503"
	if withCause.Error() != want {
		t.Errorf("expected %q, got %q", want, withCause.Error())
	}
}

func TestWithContext(t *testing.T) {
	be := New(CodeInvalidArguments, "missing required field", nil)
	be.WithContext("tool", "get_task").
		WithContext("field", "id")

	if be.Context["tool"] != "get_task" {
		t.Errorf("expected context tool to be 'get_task'")
	}
	if be.Context["field"] != "id" {
		t.Errorf("expected context field to be set")
	}
}

func TestWithRecoverable(t *testing.T) {
	be := New(CodeRemoteUnavailable, "timeout", nil)
	if be.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}
	be.WithRecoverable(true)
	if !be.Recoverable {
		t.Errorf("expected recoverable to be true after WithRecoverable")
	}
	if be.RecoverableString() != "true" {
		t.Errorf("expected RecoverableString to return 'true'")
	}
}

func TestAsBridgeError(t *testing.T) {
	be := New(CodeExhausted, "iteration budget spent", nil)
	if got := AsBridgeError(be); got != be {
		t.Errorf("expected identity for BridgeError input")
	}

	plain := errors.New("plain")
	wrapped := AsBridgeError(plain)
	if wrapped.Code != CodeInternal {
		t.Errorf("expected untyped error to wrap as CodeInternal, got %v", wrapped.Code)
	}
	if wrapped.Err != plain {
		t.Errorf("expected cause to be preserved when wrapping")
	}

	if AsBridgeError(nil) != nil {
		t.Errorf("expected nil for nil input")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Errorf("expected empty code for nil")
	}
	if CodeOf(errors.New("x")) != CodeInternal {
		t.Errorf("expected CodeInternal for untyped error")
	}
	if CodeOf(New(CodeConfiguration, "missing api key", nil)) != CodeConfiguration {
		t.Errorf("expected CodeConfiguration")
	}
}

func TestMarshalJSON(t *testing.T) {
	be := New(CodeTimeout, "call exceeded deadline", errors.New("context deadline exceeded")).
		WithContext("tool", "list_tasks").
		WithRecoverable(true)

	raw, err := json.Marshal(be)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["code"] != "TIMEOUT" {
		t.Errorf("expected code TIMEOUT, got %v", decoded["code"])
	}
	if decoded["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
	if decoded["cause"] != "context deadline exceeded" {
		t.Errorf("expected cause to be serialized, got %v", decoded["cause"])
	}
}
