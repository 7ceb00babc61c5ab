// Package sink implements the Delivery Sink: it fans outbound messages
// from every coordinator component out to the UI transport, in whatever
// order they're Emit()-ed — ordering is the Ordered Dispatcher's job, not
// this package's.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/christian-lee/translate-mediator/internal/message"
)

// Transport is anything that can carry a serialized Outbound message to a
// connected UI client.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Sink serializes Outbound messages and hands them to a Transport. Emit
// is called from multiple goroutines (C1, C3, C4 via C5) and must not
// block the caller on a slow or wedged client, so sends run through a
// bounded queue drained by a single writer goroutine — this preserves
// the emit order each caller already established without serializing
// producers against transport latency.
type Sink struct {
	transport Transport
	queue     chan []byte
	done      chan struct{}
	cancel    context.CancelFunc
}

// queueDepth bounds how many undelivered messages may wait on a slow
// client before new Emits are dropped rather than blocking the session.
const queueDepth = 256

func New(parent context.Context, transport Transport) *Sink {
	ctx, cancel := context.WithCancel(parent)
	s := &Sink{
		transport: transport,
		queue:     make(chan []byte, queueDepth),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	go s.run(ctx)
	return s
}

// Emit serializes msg and enqueues it for delivery. If the queue is full
// (client can't keep up), the message is dropped and logged rather than
// blocking the producing component.
func (s *Sink) Emit(msg message.Outbound) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal outbound message", "err", err)
		return
	}
	select {
	case s.queue <- payload:
	default:
		slog.Warn("delivery sink queue full, dropping message", "type", msg.Type)
	}
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case payload := <-s.queue:
			if err := s.transport.Send(ctx, payload); err != nil {
				slog.Error("transport send failed", "err", err)
			}
		case <-ctx.Done():
			s.drain()
			return
		}
	}
}

// drain flushes whatever was already enqueued before cancellation, using
// a background context since ctx is already done — a caller that waited
// for its own in-flight work (e.g. batch.Translator.Wait) before calling
// Close expects those already-queued messages to still go out.
func (s *Sink) drain() {
	for {
		select {
		case payload := <-s.queue:
			if err := s.transport.Send(context.Background(), payload); err != nil {
				slog.Error("transport send failed", "err", err)
			}
		default:
			return
		}
	}
}

// Close stops the delivery loop and closes the underlying transport.
func (s *Sink) Close() error {
	s.cancel()
	<-s.done
	return s.transport.Close()
}
