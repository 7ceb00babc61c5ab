// Package ingest implements C1, the Event Ingestor: it consumes the raw
// Hypothesis stream, classifies interim vs. final, dedupes repeated
// interim text, assigns sequence numbers to finals, and drives the
// interim translator and the batch translator.
package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/christian-lee/translate-mediator/internal/config"
	"github.com/christian-lee/translate-mediator/internal/delta"
	"github.com/christian-lee/translate-mediator/internal/message"
)

// InterimDriver is the subset of the debounced interim translator (C3)
// the Ingestor drives.
type InterimDriver interface {
	Submit(ctx context.Context, sourceSnapshot string)
	Cancel()
}

// FinalDriver is the subset of the adaptive batch translator (C4) the
// Ingestor drives.
type FinalDriver interface {
	Submit(ctx context.Context, s message.Sentence)
}

// Emitter delivers an outbound message to the Delivery Sink.
type Emitter interface {
	Emit(msg message.Outbound)
}

// Ingestor is C1. One instance per session; not safe for concurrent calls
// to Handle (the Hypothesis stream is assumed single-producer, matching
// "no reordering within the Ingestor").
type Ingestor struct {
	cfg      *config.RuntimeConfig
	interim  InterimDriver
	final    FinalDriver
	sink     Emitter
	now      func() time.Time

	mu           sync.Mutex
	lastInterim  string
	nextSequence uint64
}

// New builds an Ingestor. now defaults to time.Now if nil (tests may
// override for deterministic timestamps).
func New(cfg *config.RuntimeConfig, interim InterimDriver, final FinalDriver, sink Emitter, now func() time.Time) *Ingestor {
	if now == nil {
		now = time.Now
	}
	return &Ingestor{cfg: cfg, interim: interim, final: final, sink: sink, now: now}
}

// Handle classifies and routes one Hypothesis event. Malformed events
// (empty text) are discarded silently, per spec §4.1 and §7.
func (ig *Ingestor) Handle(ctx context.Context, h message.Hypothesis) {
	text := strings.TrimSpace(h.Text)
	if text == "" {
		return
	}

	if !h.IsFinal {
		ig.handleInterim(ctx, text, h.Language)
		return
	}
	ig.handleFinal(ctx, text, h.Language)
}

func (ig *Ingestor) handleInterim(ctx context.Context, text, lang string) {
	ig.mu.Lock()
	if text == ig.lastInterim {
		ig.mu.Unlock()
		return
	}
	prevInterim := ig.lastInterim
	ig.lastInterim = text
	ig.mu.Unlock()

	snap := ig.cfg.Get()

	if !snap.SyncDisplayMode {
		ig.sink.Emit(message.Outbound{
			Type: message.KindInterim,
			Original: message.TextBlock{
				FullText: text,
				Delta:    delta.Compute(prevInterim, text),
				Language: lang,
			},
			Translation: nil,
			Timestamp:   ig.now().UnixMilli(),
		})
	}

	if snap.InterimDebounceEnabled {
		ig.interim.Submit(ctx, text)
	}
}

func (ig *Ingestor) handleFinal(ctx context.Context, text, lang string) {
	ig.mu.Lock()
	seq := ig.nextSequence
	ig.nextSequence++
	ig.lastInterim = ""
	ig.mu.Unlock()

	// A final always cancels in-flight interim work before enqueueing,
	// so no interim translation can be delivered after the final for the
	// same utterance (spec §3 invariant 3, §5 ordering guarantee).
	ig.interim.Cancel()

	ig.final.Submit(ctx, message.Sentence{
		Sequence:   seq,
		SourceText: text,
		SourceLang: lang,
		EnqueuedAt: ig.now().UnixMilli(),
	})
}
