package audit

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one audit record. The dispatcher fills ID and Timestamp when they
// are empty.
type Event struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Flow       string            `json:"flow"`
	EventType  string            `json:"event_type"`
	Step       string            `json:"step,omitempty"`
	Identifier string            `json:"identifier,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Success    bool              `json:"success"`
	Kind       string            `json:"failure_kind,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sink receives events on the dispatcher goroutine, one at a time.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// MultiSink hands every event to each of its sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

// ChannelSink queues events for a consumer such as a UI or a test. It waits
// for room, so the consumer must keep reading.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// JSONWriterSink writes each event as one JSON line. Write errors are
// ignored.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}

// ZapSink logs successes at info and failures at warn, with the event type
// as the message.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	fields := make([]zap.Field, 0, 10)
	fields = append(fields,
		zap.String("audit_id", event.ID),
		zap.Time("at", event.Timestamp),
		zap.String("flow", event.Flow),
		zap.Bool("success", event.Success),
	)
	for _, f := range []struct{ key, val string }{
		{"step", event.Step},
		{"identifier", event.Identifier},
		{"request_id", event.RequestID},
		{"failure_kind", event.Kind},
		{"error", event.Error},
	} {
		if f.val != "" {
			fields = append(fields, zap.String(f.key, f.val))
		}
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	level := zap.InfoLevel
	if !event.Success {
		level = zap.WarnLevel
	}
	s.logger.Log(level, event.EventType, fields...)
}

// MaskIdentifier keeps the first character of the local part and the domain
// of an email address: "alice@example.com" becomes "a***@example.com".
// Other identifiers keep their first character only.
func MaskIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return ""
	}
	local, domain, isEmail := strings.Cut(identifier, "@")
	r := []rune(local)
	if len(r) == 0 {
		return "***@" + domain
	}
	masked := string(r[0]) + "***"
	if isEmail {
		return masked + "@" + domain
	}
	return masked
}
