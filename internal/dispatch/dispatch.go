// Package dispatch implements C5, the Ordered Dispatcher: finalized
// sentences can complete translation out of order (two concurrent batch
// translator calls can race), but they must always reach the Delivery
// Sink in sequence order. The dispatcher buffers early arrivals keyed by
// sequence number and releases a strictly increasing run starting at
// next_to_emit.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/christian-lee/translate-mediator/internal/delta"
	"github.com/christian-lee/translate-mediator/internal/message"
	"github.com/christian-lee/translate-mediator/internal/metrics"
)

// Emitter delivers an outbound message to the Delivery Sink.
type Emitter interface {
	Emit(msg message.Outbound)
}

// maxPending bounds how many out-of-order results may be buffered while
// waiting for next_to_emit; a submission that would exceed it is a
// session-fatal ordering failure (a sequence that will never arrive, or an
// Ingestor bug skipping sequence numbers). The distance of a sequence from
// next_to_emit is not itself checked.
const maxPending = 256

// Dispatcher is C5. One instance per session.
type Dispatcher struct {
	sink Emitter

	mu         sync.Mutex
	nextToEmit uint64
	buffered   map[uint64]bufferedResult
}

type bufferedResult struct {
	sourceText string
	sourceLang string
	targetLang string
	translated *string
}

func New(sink Emitter) *Dispatcher {
	return &Dispatcher{sink: sink, buffered: make(map[uint64]bufferedResult)}
}

// Submit reports a completed (or failed, translated == nil) translation
// for the sentence at sequence. Results for sequence == next_to_emit, and
// any contiguous run that follows, are emitted immediately in order;
// everything else is buffered until its turn comes.
//
// Finals are whole-sentence deliveries, not incremental revisions of a
// displayed snapshot, so each one's delta is computed against an empty
// previous snapshot per spec §4.5 — the full final text is always the
// delta.
func (d *Dispatcher) Submit(sequence uint64, sourceText, sourceLang, targetLang string, translated *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sequence < d.nextToEmit {
		// Already emitted or superseded; nothing to do.
		return nil
	}

	res := bufferedResult{sourceText: sourceText, sourceLang: sourceLang, targetLang: targetLang, translated: translated}

	if sequence != d.nextToEmit {
		if len(d.buffered) >= maxPending {
			return fmt.Errorf("dispatch: pending buffer exceeded %d entries, sequence %d unresolved", maxPending, d.nextToEmit)
		}
		d.buffered[sequence] = res
		metrics.DispatchBufferDepth.Set(float64(len(d.buffered)))
		return nil
	}

	d.emitLocked(res)
	d.nextToEmit++

	for {
		next, ok := d.buffered[d.nextToEmit]
		if !ok {
			break
		}
		delete(d.buffered, d.nextToEmit)
		d.emitLocked(next)
		d.nextToEmit++
	}
	metrics.DispatchBufferDepth.Set(float64(len(d.buffered)))

	return nil
}

func (d *Dispatcher) emitLocked(res bufferedResult) {
	out := message.Outbound{
		Type: message.KindFinal,
		Original: message.TextBlock{
			FullText: res.sourceText,
			Delta:    delta.Compute("", res.sourceText),
			Language: res.sourceLang,
		},
	}
	if res.translated != nil {
		out.Translation = &message.TextBlock{
			FullText: *res.translated,
			Delta:    delta.Compute("", *res.translated),
			Language: res.targetLang,
		}
	}
	d.sink.Emit(out)
}
