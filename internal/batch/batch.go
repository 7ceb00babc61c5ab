// Package batch implements C4, the Adaptive Batch Translator: an empty
// pending queue with nothing outstanding gets a sentence translated
// immediately (single-item call, fast path for isolated sentences);
// otherwise the sentence joins the backlog, which flushes independently
// on batch_size or batch_timeout_ms, whichever comes first. Because a
// backlog flush is not gated on an earlier call's completion, two
// translation calls can legitimately be in flight at once and complete
// out of order — that is exactly what the Ordered Dispatcher (C5) exists
// to reorder.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/christian-lee/translate-mediator/internal/config"
	"github.com/christian-lee/translate-mediator/internal/message"
	"github.com/christian-lee/translate-mediator/internal/metrics"
	"github.com/christian-lee/translate-mediator/internal/translate"
)

// Dispatcher is the subset of the Ordered Dispatcher (C5) the batch
// translator reports completed translations to.
type Dispatcher interface {
	Submit(sequence uint64, sourceText, sourceLang, targetLang string, translated *string) error
}

// Translator is C4. One instance per session. A single mutex guards the
// pending queue, the flush timer, and the outstanding-call counter, per
// spec §4.4; every translation request itself runs outside the lock.
type Translator struct {
	cfg  *config.RuntimeConfig
	svc  translate.Translator
	disp Dispatcher

	reqTimeout time.Duration

	mu       sync.Mutex
	pending  []message.Sentence
	timer    *time.Timer
	inFlight int

	// wg tracks flush goroutines still outstanding so a caller tearing
	// down the session can wait for every submitted sentence to be
	// dispatched instead of abandoning an in-flight translation.
	wg sync.WaitGroup
}

func New(cfg *config.RuntimeConfig, svc translate.Translator, disp Dispatcher, reqTimeout time.Duration) *Translator {
	return &Translator{cfg: cfg, svc: svc, disp: disp, reqTimeout: reqTimeout}
}

// Wait blocks until every flush this translator has started — including
// any chained by afterFlush — has reported its results to the
// dispatcher. Callers tearing down a session use this so a final's
// translation is never silently abandoned mid-flight.
func (t *Translator) Wait() {
	t.wg.Wait()
}

// Submit adds a finalized sentence. If nothing is queued and no call is
// currently outstanding, it is translated immediately as a single-item
// request — the fast path for isolated sentences. Otherwise it joins the
// backlog.
func (t *Translator) Submit(ctx context.Context, s message.Sentence) {
	t.mu.Lock()

	if len(t.pending) == 0 && t.inFlight == 0 {
		t.inFlight++
		t.wg.Add(1)
		t.mu.Unlock()
		go t.flush(ctx, []message.Sentence{s})
		return
	}

	t.pending = append(t.pending, s)
	metrics.BatchQueueDepth.Set(float64(len(t.pending)))
	snap := t.cfg.Get()

	if len(t.pending) >= snap.BatchSize {
		batch := t.takePendingLocked()
		t.inFlight++
		t.wg.Add(1)
		t.mu.Unlock()
		go t.flush(ctx, batch)
		return
	}

	t.armTimerLocked(ctx, snap)
	t.mu.Unlock()
}

// armTimerLocked (re)arms the batch-timeout timer; spec requires it be
// re-armed on each non-empty addition. Caller holds t.mu.
func (t *Translator) armTimerLocked(ctx context.Context, snap config.Snapshot) {
	if t.timer != nil {
		t.timer.Stop()
	}
	d := time.Duration(snap.BatchTimeoutMS) * time.Millisecond
	t.timer = time.AfterFunc(d, func() { t.onTimeout(ctx) })
}

// onTimeout flushes whatever has accumulated, independent of any other
// call's completion — the timeout is a flush trigger in its own right,
// not merely a backstop for an idle backlog (spec §4.4 flush trigger b;
// testable property 6).
func (t *Translator) onTimeout(ctx context.Context) {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return
	}
	batch := t.takePendingLocked()
	t.inFlight++
	t.wg.Add(1)
	t.mu.Unlock()

	go t.flush(ctx, batch)
}

// takePendingLocked drains and returns the pending queue, disarming the
// timer. Caller holds t.mu.
func (t *Translator) takePendingLocked() []message.Sentence {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	batch := t.pending
	t.pending = nil
	metrics.BatchQueueDepth.Set(0)
	return batch
}

// flush runs a single translation call (outside the lock) for the given
// batch, then reports results to the dispatcher in sequence order. On
// failure every member is submitted with translated=nil so the Ordered
// Dispatcher can still release the original text without stalling.
func (t *Translator) flush(ctx context.Context, batch []message.Sentence) {
	defer t.wg.Done()
	snap := t.cfg.Get()
	metrics.BatchSize.Observe(float64(len(batch)))

	texts := make([]string, len(batch))
	for i, s := range batch {
		texts[i] = s.SourceText
	}

	callCtx := ctx
	if t.reqTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.reqTimeout)
		defer cancel()
	}

	start := time.Now()
	results, err := t.svc.Translate(callCtx, texts, snap.SourceLang, snap.TargetLang)
	metrics.TranslationLatency.WithLabelValues("batch").Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.TranslationErrors.WithLabelValues("batch").Inc()
		slog.Warn("batch translation failed, dispatching originals only", "size", len(batch), "err", err)
	}

	for i, s := range batch {
		var translated *string
		if err == nil && i < len(results) {
			v := results[i]
			translated = &v
		}
		if dispErr := t.disp.Submit(s.Sequence, s.SourceText, s.SourceLang, snap.TargetLang, translated); dispErr != nil {
			slog.Error("dispatcher rejected submission", "sequence", s.Sequence, "err", dispErr)
		}
	}

	t.afterFlush(ctx)
}

// afterFlush releases this call's outstanding slot and, if the counter
// has dropped to zero and a backlog has accumulated since (and has not
// already been picked up by its own timeout), opportunistically starts
// translating it rather than waiting out the rest of its timer.
func (t *Translator) afterFlush(ctx context.Context) {
	t.mu.Lock()
	t.inFlight--
	if t.inFlight > 0 || len(t.pending) == 0 {
		t.mu.Unlock()
		return
	}
	batch := t.takePendingLocked()
	t.inFlight++
	t.wg.Add(1)
	t.mu.Unlock()

	go t.flush(ctx, batch)
}
