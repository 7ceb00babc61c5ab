// Package stt provides the speech-to-text source that feeds the Event
// Ingestor (C1). It only produces message.Hypothesis values; everything
// downstream of recognition (dedupe, sequencing, translation) belongs to
// the coordinator packages.
package stt

import (
	"context"
	"io"

	"github.com/christian-lee/translate-mediator/internal/message"
)

// Source streams recognition hypotheses from an audio reader until the
// reader is exhausted, the context is cancelled, or a transport error
// occurs.
type Source interface {
	Stream(ctx context.Context, audio io.Reader, out chan<- message.Hypothesis) error
	Close() error
}
