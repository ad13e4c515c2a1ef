package tools

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskbridge/taskbridge/pkg/errors"
	"github.com/taskbridge/taskbridge/pkg/telemetry"
)

// Request is one tool call issued by the model. Arguments is the raw JSON
// string from the completion response.
type Request struct {
	ID        string
	Name      string
	Arguments string
}

// Result is the outcome of one tool invocation. Exactly one of Payload or
// Failure is meaningful: Failure nil means success.
type Result struct {
	ID       string
	Name     string
	Payload  interface{}
	Failure  *Failure
	Duration time.Duration
}

// Failure describes a non-fatal invocation failure the model gets to see.
type Failure struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Succeeded reports whether the invocation produced a payload.
func (r Result) Succeeded() bool {
	return r.Failure == nil
}

// Content serializes the result for the conversation: the payload as compact
// JSON on success, an error object on failure.
func (r Result) Content() string {
	if r.Failure != nil {
		raw, err := json.Marshal(map[string]interface{}{
			"error":   r.Failure.Code,
			"message": r.Failure.Message,
		})
		if err != nil {
			return fmt.Sprintf(`{"error":%q}`, r.Failure.Code)
		}
		return string(raw)
	}
	raw, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q,"message":"result not serializable"}`, errors.CodeInternal)
	}
	return string(raw)
}

// Invocation is the audit-trail view of a completed tool call.
type Invocation struct {
	ID        string
	Tool      string
	Arguments string
	Outcome   string
	Detail    string
	Duration  time.Duration
	At        time.Time
}

// Recorder receives completed invocations, successes and failures alike.
type Recorder interface {
	Record(ctx context.Context, inv Invocation)
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRecorder attaches an audit recorder.
func WithRecorder(rec Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = rec }
}

// WithMetrics attaches loop metrics.
func WithMetrics(m *telemetry.LoopMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// Dispatcher validates and executes tool calls against a registry. Handler
// failures become Results the model can read; they are never returned as
// errors. The handler for a resolved call runs exactly once.
type Dispatcher struct {
	registry *Registry
	recorder Recorder
	metrics  *telemetry.LoopMetrics
	logger   *slog.Logger
}

// NewDispatcher builds a dispatcher over the registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invoke executes one tool call. Unknown tools and invalid arguments fail
// before any handler (and thus any network traffic) is involved.
func (d *Dispatcher) Invoke(ctx context.Context, req Request) Result {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	start := time.Now()

	descriptor, handler, err := d.registry.Resolve(req.Name)
	if err != nil {
		return d.finish(ctx, req, start, nil, err)
	}

	args, err := decodeArguments(req.Arguments)
	if err != nil {
		return d.finish(ctx, req, start, nil, err)
	}
	if err := validateArguments(descriptor.Parameters, args); err != nil {
		return d.finish(ctx, req, start, nil, err)
	}

	payload, err := handler(ctx, args)
	return d.finish(ctx, req, start, payload, err)
}

func (d *Dispatcher) finish(ctx context.Context, req Request, start time.Time, payload interface{}, err error) Result {
	result := Result{
		ID:       req.ID,
		Name:     req.Name,
		Payload:  payload,
		Duration: time.Since(start),
	}
	outcome := "success"
	if err != nil {
		code, message := classifyFailure(err)
		result.Failure = &Failure{Code: code, Message: message}
		result.Payload = nil
		outcome = string(code)
		d.logger.Warn("tool invocation failed",
			"tool", req.Name,
			"call_id", req.ID,
			"code", code,
			"error", message)
	} else {
		d.logger.Debug("tool invocation succeeded",
			"tool", req.Name,
			"call_id", req.ID,
			"duration", result.Duration)
	}

	d.metrics.RecordToolInvocation(ctx, req.Name, outcome)
	if d.recorder != nil {
		detail := ""
		if result.Failure != nil {
			detail = result.Failure.Message
		}
		d.recorder.Record(ctx, Invocation{
			ID:        req.ID,
			Tool:      req.Name,
			Arguments: req.Arguments,
			Outcome:   outcome,
			Detail:    detail,
			Duration:  result.Duration,
			At:        start,
		})
	}
	return result
}

// classifyFailure maps a handler error onto the failure taxonomy. Typed
// errors keep their code; context expiry is a timeout; anything else is
// treated as the remote being unavailable.
func classifyFailure(err error) (errors.ErrorCode, string) {
	var be *errors.BridgeError
	if stderrors.As(err, &be) {
		return be.Code, be.Message
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.CodeTimeout, err.Error()
	}
	return errors.CodeRemoteUnavailable, err.Error()
}

func decodeArguments(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, errors.New(errors.CodeInvalidArguments, "tool arguments are not a JSON object", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// validateArguments checks required fields and property types against the
// descriptor's JSON schema. Extra fields pass through untouched.
func validateArguments(schema map[string]interface{}, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if required, ok := schema["required"].([]interface{}); ok {
		for _, field := range required {
			name, ok := field.(string)
			if !ok {
				continue
			}
			if _, present := args[name]; !present {
				return errors.New(errors.CodeInvalidArguments,
					fmt.Sprintf("missing required argument %q", name), nil).
					WithContext("argument", name)
			}
		}
	} else if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := args[name]; !present {
				return errors.New(errors.CodeInvalidArguments,
					fmt.Sprintf("missing required argument %q", name), nil).
					WithContext("argument", name)
			}
		}
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	for name, value := range args {
		prop, ok := properties[name].(map[string]interface{})
		if !ok {
			continue
		}
		want, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if !typeMatches(want, value) {
			return errors.New(errors.CodeInvalidArguments,
				fmt.Sprintf("argument %q is not of type %s", name, want), nil).
				WithContext("argument", name)
		}
	}
	return nil
}

// typeMatches checks a decoded JSON value against a schema type name.
// Numbers decode as float64, so integer accepts any whole float.
func typeMatches(want string, value interface{}) bool {
	if value == nil {
		return true
	}
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return true
	}
}
