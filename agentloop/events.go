package agentloop

import (
	"context"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventUserInput           EventKind = "user_input"
	EventAssistantText       EventKind = "assistant_text"
	EventToolCallStart       EventKind = "tool_call_start"
	EventToolCallOutputDelta EventKind = "tool_call_output_delta"
	EventToolCallEnd         EventKind = "tool_call_end"
	EventTurnComplete        EventKind = "turn_complete"
	EventTurnLimit           EventKind = "turn_limit"
	EventLoopDetection       EventKind = "loop_detection"
	EventWarning             EventKind = "warning"
	EventError               EventKind = "error"
)

// SessionEvent is a typed event emitted by the agent loop.
type SessionEvent struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// String returns a string field of Data, or "" if absent.
func (e SessionEvent) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// EventHandler receives session events. It is called on the goroutine running
// Submit, in emission order, and must not call back into the session.
type EventHandler func(SessionEvent)

// EventEmitter delivers events synchronously to a handler.
type EventEmitter struct {
	sessionID string
	handler   EventHandler
	now       func() time.Time
}

// NewEventEmitter creates an emitter. A nil handler discards events.
func NewEventEmitter(sessionID string, handler EventHandler) *EventEmitter {
	return &EventEmitter{
		sessionID: sessionID,
		handler:   handler,
		now:       time.Now,
	}
}

// Emit delivers one event.
func (e *EventEmitter) Emit(kind EventKind, data map[string]any) {
	if e.handler == nil {
		return
	}
	e.handler(SessionEvent{
		Kind:      kind,
		Timestamp: e.now(),
		SessionID: e.sessionID,
		Data:      data,
	})
}

type progressKey struct{}

// WithProgress returns a context carrying a progress callback. Long-running
// tools such as bash report each output line through it.
func WithProgress(ctx context.Context, fn func(string)) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// progressFromContext returns the callback installed by WithProgress, or nil.
func progressFromContext(ctx context.Context) func(string) {
	fn, _ := ctx.Value(progressKey{}).(func(string))
	return fn
}
