// Package session wires C1-C5, the STT source, the translation service,
// and the delivery sink into one running translation session, and maps
// internal failures onto the process exit codes in SPEC_FULL §6.5.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/christian-lee/translate-mediator/internal/batch"
	"github.com/christian-lee/translate-mediator/internal/config"
	"github.com/christian-lee/translate-mediator/internal/dispatch"
	"github.com/christian-lee/translate-mediator/internal/ingest"
	"github.com/christian-lee/translate-mediator/internal/interim"
	"github.com/christian-lee/translate-mediator/internal/message"
	"github.com/christian-lee/translate-mediator/internal/metrics"
	"github.com/christian-lee/translate-mediator/internal/sink"
	"github.com/christian-lee/translate-mediator/internal/stt"
	"github.com/christian-lee/translate-mediator/internal/translate"
)

// translationRequestTimeout bounds a single interim or batch translation
// call so a wedged upstream API can never stall debounce cancellation.
const translationRequestTimeout = 10 * time.Second

// hypothesisQueueDepth bounds how many STT hypotheses may wait for the
// Ingestor; once it is full, the STT source blocks on its next send.
const hypothesisQueueDepth = 64

// ErrOverflow is returned when the Ordered Dispatcher's pending buffer
// overflows — a session-fatal condition per spec §7 (misbehaving
// component, not a translation failure), mapped to exit code 2.
var ErrOverflow = errors.New("session: dispatch ordering buffer overflow")

// ErrMisconfigured names a session that could not even start. No function
// in this module returns it; cmd/translate-mediator maps its own startup
// failures to exit code 1 directly.
var ErrMisconfigured = errors.New("session: misconfigured")

// Coordinator owns one end-to-end session: one audio source feeding one
// STT stream, through the Ingestor/interim/batch/dispatch pipeline, out to
// one Delivery Sink.
type Coordinator struct {
	ID string

	cfg   *config.RuntimeConfig
	ing   *ingest.Ingestor
	bt    *batch.Translator
	dis   *dispatch.Dispatcher
	snk   *sink.Sink
	src   stt.Source
	audio io.Reader

	dispatchErr chan error
}

// dispatchAdapter adapts *dispatch.Dispatcher to report fatal ordering
// errors back to the Coordinator instead of only logging them, since an
// overflow here means the session can no longer guarantee delivery order.
type dispatchAdapter struct {
	*dispatch.Dispatcher
	errs chan<- error
}

func (d *dispatchAdapter) Submit(sequence uint64, sourceText, sourceLang, targetLang string, translated *string) error {
	if err := d.Dispatcher.Submit(sequence, sourceText, sourceLang, targetLang, translated); err != nil {
		err = fmt.Errorf("%w: %v", ErrOverflow, err)
		select {
		case d.errs <- err:
		default:
		}
		return err
	}
	return nil
}

// New builds a Coordinator for one session. idPrefix comes from
// config.SessionConfig; svc is the translation backend (GeminiTranslator
// in production, translate.Fake in tests); src is the STT source; audio
// is the raw audio reader fed to src.Stream.
func New(idPrefix string, runtime config.RuntimeDefaults, svc translate.Translator, src stt.Source, audio io.Reader, transport sink.Transport) *Coordinator {
	cfg := config.NewRuntimeConfig(runtime)

	// The sink's own delivery loop outlives construction until Close is
	// called explicitly at the end of Run, independent of the session ctx.
	snk := sink.New(context.Background(), transport)

	errs := make(chan error, 1)
	rawDispatch := dispatch.New(snk)
	dis := &dispatchAdapter{Dispatcher: rawDispatch, errs: errs}

	bt := batch.New(cfg, svc, dis, translationRequestTimeout)
	it := interim.New(cfg, svc, snk, translationRequestTimeout)
	ig := ingest.New(cfg, it, bt, snk, nil)

	id := idPrefix + uuid.NewString()

	return &Coordinator{
		ID:          id,
		cfg:         cfg,
		ing:         ig,
		bt:          bt,
		dis:         rawDispatch,
		snk:         snk,
		src:         src,
		audio:       audio,
		dispatchErr: errs,
	}
}

// UpdateConfig applies a runtime patch — the update_translation_config RPC
// from spec §6.3 — and returns the acknowledgement string.
func (c *Coordinator) UpdateConfig(p config.Patch) string {
	result := c.cfg.Apply(p)
	slog.Info("runtime config updated", "session", c.ID, "result", result, "snapshot", c.cfg.Get())
	return result
}

// Run drives the session until the context is cancelled, the STT source
// ends, or a session-fatal error (dispatch overflow) occurs. The returned
// error is nil on clean shutdown.
func (c *Coordinator) Run(ctx context.Context) error {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	slog.Info("session started", "session", c.ID)
	defer slog.Info("session ended", "session", c.ID)

	g, gctx := errgroup.WithContext(ctx)

	hypotheses := make(chan message.Hypothesis, hypothesisQueueDepth)

	g.Go(func() error {
		err := c.src.Stream(gctx, c.audio, hypotheses)
		close(hypotheses)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stt stream: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case h, ok := <-hypotheses:
				if !ok {
					return nil
				}
				c.ing.Handle(gctx, h)
			case err := <-c.dispatchErr:
				return err
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	err := g.Wait()

	// Final translations already accepted into the batch translator may
	// still be in flight after the STT stream ends; wait for them so the
	// sink isn't torn down out from under a pending dispatch.
	c.bt.Wait()

	if closeErr := c.snk.Close(); closeErr != nil {
		slog.Warn("sink close failed", "session", c.ID, "err", closeErr)
	}
	if closeErr := c.src.Close(); closeErr != nil {
		slog.Warn("stt source close failed", "session", c.ID, "err", closeErr)
	}

	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
