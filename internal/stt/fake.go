package stt

import (
	"context"
	"io"
	"time"

	"github.com/christian-lee/translate-mediator/internal/message"
)

// FakeSource replays a scripted sequence of hypotheses, ignoring the
// audio reader entirely. Tests use it to drive the Ingestor without a
// real STT backend.
type FakeSource struct {
	Script []message.Hypothesis
	// Gate, if set, is read once before each hypothesis is sent,
	// letting a test control pacing precisely.
	Gate <-chan struct{}
}

func NewFakeSource(script []message.Hypothesis) *FakeSource {
	return &FakeSource{Script: script}
}

func (f *FakeSource) Stream(ctx context.Context, _ io.Reader, out chan<- message.Hypothesis) error {
	for _, h := range f.Script {
		if f.Gate != nil {
			select {
			case <-f.Gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if h.ArrivedAt == 0 {
			h.ArrivedAt = time.Now().UnixMilli()
		}
		select {
		case out <- h:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *FakeSource) Close() error { return nil }
