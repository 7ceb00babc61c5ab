// Package interim implements C3, the Debounced Interim Translator: it
// coalesces rapid interim updates behind a per-session debounce window,
// guarantees at most one in-flight translation, and yields no output at
// all when cancelled — by a newer interim, by a final, or by teardown.
package interim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/christian-lee/translate-mediator/internal/config"
	"github.com/christian-lee/translate-mediator/internal/delta"
	"github.com/christian-lee/translate-mediator/internal/message"
	"github.com/christian-lee/translate-mediator/internal/metrics"
	"github.com/christian-lee/translate-mediator/internal/translate"
)

// Emitter delivers an outbound message to the Delivery Sink.
type Emitter interface {
	Emit(msg message.Outbound)
}

// Translator is C3. One instance per session.
type Translator struct {
	cfg        *config.RuntimeConfig
	svc        translate.Translator
	sink       Emitter
	reqTimeout time.Duration
	now        func() time.Time

	// mu guards only the in-flight-task bookkeeping below, never the
	// RuntimeConfig (which has its own lock).
	mu              sync.Mutex
	cancelFn        context.CancelFunc
	lastOriginal    string
	lastTranslation string
}

func New(cfg *config.RuntimeConfig, svc translate.Translator, sink Emitter, reqTimeout time.Duration) *Translator {
	return &Translator{cfg: cfg, svc: svc, sink: sink, reqTimeout: reqTimeout, now: time.Now}
}

// Submit schedules (after debounce) a translation of sourceSnapshot,
// cancelling any task currently scheduled or in flight. Internal
// supersession does not reset the delta snapshots — those persist across
// revisions of the same sentence.
func (t *Translator) Submit(parent context.Context, sourceSnapshot string) {
	snap := t.cfg.Get()
	if !snap.InterimDebounceEnabled {
		return
	}

	t.mu.Lock()
	if t.cancelFn != nil {
		t.cancelFn()
	}
	taskCtx, cancel := context.WithCancel(parent)
	t.cancelFn = cancel
	t.mu.Unlock()

	go t.run(taskCtx, sourceSnapshot, snap)
}

// Cancel aborts any scheduled or in-flight task and resets delta
// snapshots to empty — called by the Ingestor when a final arrives for
// this sentence. Session teardown does not call Cancel; it stops tasks by
// cancelling the parent context given to Submit. Per spec §4.2,
// finalization resets both prev snapshots for the next sentence cycle.
func (t *Translator) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelFn != nil {
		t.cancelFn()
		t.cancelFn = nil
	}
	t.lastOriginal = ""
	t.lastTranslation = ""
}

func (t *Translator) run(ctx context.Context, source string, snap config.Snapshot) {
	debounce := time.Duration(snap.DebounceMS) * time.Millisecond
	timer := time.NewTimer(debounce)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		metrics.InterimDebounceCancelled.Inc()
		return
	case <-timer.C:
	}

	callCtx := ctx
	if t.reqTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.reqTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := t.svc.Translate(callCtx, []string{source}, snap.SourceLang, snap.TargetLang)
	metrics.TranslationLatency.WithLabelValues("interim").Observe(float64(time.Since(start).Milliseconds()))

	// A task cancelled during its translation request has no observable
	// effect on outbound messages — check immediately before touching
	// shared state or calling into the sink.
	if ctx.Err() != nil {
		metrics.InterimDebounceCancelled.Inc()
		return
	}
	if err != nil {
		metrics.TranslationErrors.WithLabelValues("interim").Inc()
		slog.Warn("interim translation failed, dropping", "err", err)
		return
	}

	translated := ""
	if len(result) > 0 {
		translated = result[0]
	}

	if ctx.Err() != nil {
		metrics.InterimDebounceCancelled.Inc()
		return
	}

	// In sync display mode the Ingestor never emits an original-only
	// message, so this combined message is the first (and only) place
	// the original's delta is computed. Outside sync mode the Ingestor
	// already delivered the original text; this update carries only the
	// translation (original.delta is empty — nothing new to render).
	originalDelta := ""
	t.mu.Lock()
	if snap.SyncDisplayMode {
		originalDelta = delta.Compute(t.lastOriginal, source)
		t.lastOriginal = source
	}
	prevTranslation := t.lastTranslation
	t.lastTranslation = translated
	t.mu.Unlock()

	if ctx.Err() != nil {
		metrics.InterimDebounceCancelled.Inc()
		return
	}

	out := message.Outbound{
		Type: message.KindInterim,
		Original: message.TextBlock{
			FullText: source,
			Delta:    originalDelta,
			Language: snap.SourceLang,
		},
		Translation: &message.TextBlock{
			FullText: translated,
			Delta:    delta.Compute(prevTranslation, translated),
			Language: snap.TargetLang,
		},
		Timestamp: t.now().UnixMilli(),
	}
	t.sink.Emit(out)
	metrics.InterimTranslationsEmitted.Inc()
}
