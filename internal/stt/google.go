package stt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/christian-lee/translate-mediator/internal/message"
)

// GoogleSource performs streaming speech-to-text using the Google Cloud
// Speech API. It is the production Source for live sessions.
type GoogleSource struct {
	client   *speech.Client
	language string
	altLangs []string
}

func NewGoogleSource(ctx context.Context, language string, altLangs []string) (*GoogleSource, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	return &GoogleSource{
		client:   client,
		language: language,
		altLangs: altLangs,
	}, nil
}

// Stream reads PCM s16le 16kHz mono from audio and sends every interim
// and final hypothesis to out, tagged with the timestamp of arrival.
func (s *GoogleSource) Stream(ctx context.Context, audio io.Reader, out chan<- message.Hypothesis) error {
	stream, err := s.client.StreamingRecognize(ctx)
	if err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            16000,
					LanguageCode:               s.language,
					AlternativeLanguageCodes:   s.altLangs,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	}); err != nil {
		return fmt.Errorf("send config: %w", err)
	}

	go func() {
		buf := make([]byte, 3200) // 100ms of 16kHz 16-bit mono
		for {
			n, err := audio.Read(buf)
			if err != nil {
				if err != io.EOF {
					slog.Error("audio read error", "err", err)
				}
				_ = stream.CloseSend()
				return
			}
			if n > 0 {
				if err := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
						AudioContent: buf[:n],
					},
				}); err != nil {
					slog.Error("send audio error", "err", err)
					return
				}
			}
		}
	}()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			alt := result.Alternatives[0]
			h := message.Hypothesis{
				Text:      alt.Transcript,
				IsFinal:   result.IsFinal,
				Language:  result.GetLanguageCode(),
				ArrivedAt: time.Now().UnixMilli(),
			}
			if h.IsFinal {
				slog.Info("stt final", "text", h.Text, "lang", h.Language, "confidence", alt.Confidence)
			}
			select {
			case out <- h:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *GoogleSource) Close() error {
	return s.client.Close()
}
