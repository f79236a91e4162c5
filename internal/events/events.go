package events

import (
	"context"
	"sync"

	"swapguard/internal/domain"
	"swapguard/internal/pubsub"

	"gitlab.com/nevasik7/alerting/logger"
)

// Emitter receives every outbound signal. Signals are informational, so sinks
// report their own failures and never push them back into the hook.
type Emitter interface {
	Emit(ctx context.Context, ev domain.Event)
}

type Nop struct{}

func (Nop) Emit(context.Context, domain.Event) {}

// Multi fans a signal out to every sink in order
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev domain.Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, ev)
		}
	}
}

// Recorder keeps signals in memory; used by tests and the debug view
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Emit(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfKind(kind domain.EventKind) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, ev domain.Event) {
	s.log.Debugf("Hook signal, kind=%s pool=%s account=%s reason=%s", ev.Kind, ev.PoolID.Hex(), ev.Account.Hex(), ev.Reason)
}

// BroadcastSink publishes each signal on "<prefix>.out.<kind>"
type BroadcastSink struct {
	b      pubsub.Broadcaster
	prefix string
	log    logger.Logger
}

func NewBroadcastSink(b pubsub.Broadcaster, prefix string, log logger.Logger) *BroadcastSink {
	if prefix == "" {
		prefix = "hook"
	}
	return &BroadcastSink{b: b, prefix: prefix, log: log}
}

func Subject(prefix string, kind domain.EventKind) string {
	return prefix + ".out." + string(kind)
}

func (s *BroadcastSink) Emit(ctx context.Context, ev domain.Event) {
	subject := Subject(s.prefix, ev.Kind)
	if err := s.b.Publish(ctx, subject, ev); err != nil {
		s.log.Errorf("Failed to broadcast hook signal, subject=%s, error=%v", subject, err)
	}
}
