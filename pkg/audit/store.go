// Package audit persists the tool-invocation trail: every tool call the
// dispatcher executes, with its outcome and timing. Conversation content is
// never stored.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskbridge/taskbridge/pkg/tools"
)

// Event is one recorded tool invocation.
type Event struct {
	CallID    string        `json:"call_id"`
	Tool      string        `json:"tool"`
	Arguments string        `json:"arguments,omitempty"`
	Outcome   string        `json:"outcome"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Filter limits event queries. Zero values mean "no filter".
type Filter struct {
	Tool    string
	Outcome string
	Since   time.Time
	Limit   int
}

// Store persists audit events.
type Store interface {
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
	Close() error
}

// MemoryStore keeps events in memory, newest last.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore returns an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an event.
func (s *MemoryStore) Record(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns filtered events in recording order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if !matches(ev, filter) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func matches(ev Event, filter Filter) bool {
	if filter.Tool != "" && ev.Tool != filter.Tool {
		return false
	}
	if filter.Outcome != "" && ev.Outcome != filter.Outcome {
		return false
	}
	if !filter.Since.IsZero() && ev.At.Before(filter.Since) {
		return false
	}
	return true
}

// Recorder adapts a Store to the dispatcher's recording hook. Store errors
// are logged and swallowed so the audit trail can never break a run.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder wraps a store for the dispatcher.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record persists one invocation.
func (r *Recorder) Record(ctx context.Context, inv tools.Invocation) {
	event := Event{
		CallID:    inv.ID,
		Tool:      inv.Tool,
		Arguments: inv.Arguments,
		Outcome:   inv.Outcome,
		Detail:    inv.Detail,
		Duration:  inv.Duration,
		At:        inv.At.UTC(),
	}
	if err := r.store.Record(ctx, event); err != nil {
		r.logger.Warn("audit record failed",
			slog.String("tool", inv.Tool),
			slog.String("call_id", inv.ID),
			slog.String("error", err.Error()),
		)
	}
}

var _ tools.Recorder = (*Recorder)(nil)
