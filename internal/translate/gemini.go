package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/genai"
)

// GeminiTranslator translates text (single strings or batches) using the
// Gemini API. It falls back to a cheaper model on 429/503 for 30s, the
// same degrade/recover pattern the teacher uses, and additionally trips a
// short circuit breaker after a run of consecutive failures of any kind
// (transient and permanent errors are not told apart) — the optional
// breaker spec §7 leaves to implementations.
type GeminiTranslator struct {
	client        *genai.Client
	model         string
	fallbackModel string

	degraded  atomic.Bool
	recoverAt atomic.Int64 // unix millis

	consecutiveFailures atomic.Int32
	breakerUntil        atomic.Int64 // unix millis; 0 = closed
}

const (
	breakerThreshold = 5
	breakerCooldown  = 20 * time.Second
)

func NewGeminiTranslator(ctx context.Context, apiKey, model, fallbackModel string) (*GeminiTranslator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if fallbackModel == "" {
		fallbackModel = "gemini-2.0-flash-lite"
	}

	return &GeminiTranslator{
		client:        client,
		model:         model,
		fallbackModel: fallbackModel,
	}, nil
}

// Translate implements Translator. len(texts) == 1 takes the single-shot
// path (matches the interim translator's fast path); longer batches are
// sent as one request and the response is parsed back into the same
// order. Any failure at either size trips the consecutive-failure
// counter.
func (t *GeminiTranslator) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if until := t.breakerUntil.Load(); until != 0 {
		if time.Now().UnixMilli() < until {
			return nil, fmt.Errorf("gemini translate: circuit breaker open")
		}
		t.breakerUntil.Store(0)
		t.consecutiveFailures.Store(0)
	}

	var out []string
	var err error
	if len(texts) == 1 {
		var single string
		single, err = t.translateOne(ctx, texts[0], sourceLang, targetLang)
		if err == nil {
			out = []string{single}
		}
	} else {
		out, err = t.translateBatch(ctx, texts, sourceLang, targetLang)
	}

	if err != nil {
		if t.consecutiveFailures.Add(1) >= breakerThreshold {
			t.breakerUntil.Store(time.Now().Add(breakerCooldown).UnixMilli())
			slog.Warn("translation circuit breaker tripped", "failures", t.consecutiveFailures.Load(), "cooldown", breakerCooldown)
		}
		return nil, err
	}
	t.consecutiveFailures.Store(0)
	return out, nil
}

func (t *GeminiTranslator) translateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	prompt := fmt.Sprintf(
		"Translate the following %s text to %s. "+
			"Output ONLY the translation, nothing else. "+
			"Keep it natural and concise (suitable for live subtitles). "+
			"For proper nouns and person names, output their romanization instead of translating them.\n\n%s",
		sourceLang, targetLang, text,
	)

	model := t.activeModel()
	resp, err := t.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		if isRateLimited(err) {
			t.degrade()
			resp, err = t.client.Models.GenerateContent(ctx, t.fallbackModel, genai.Text(prompt), nil)
			if err != nil {
				return "", fmt.Errorf("gemini translate (fallback): %w", err)
			}
		} else {
			return "", fmt.Errorf("gemini translate: %w", err)
		}
	}

	result := strings.TrimSpace(resp.Text())
	slog.Debug("translated", "from", text, "to", result, "target", targetLang, "model", model)
	return result, nil
}

// translateBatch sends all texts in one request and expects a JSON array
// of translations, in order. A count mismatch is a translation failure
// for the whole batch — the caller (the adaptive batch translator) is
// responsible for preserving ordering with translated=null on failure.
func (t *GeminiTranslator) translateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("marshal batch payload: %w", err)
	}

	prompt := fmt.Sprintf(
		"Translate each string in this JSON array from %s to %s. "+
			"Respond with ONLY a JSON array of the same length, same order, "+
			"one translated string per input element. No commentary.\n\n%s",
		sourceLang, targetLang, string(payload),
	)

	model := t.activeModel()
	resp, err := t.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		if isRateLimited(err) {
			t.degrade()
			resp, err = t.client.Models.GenerateContent(ctx, t.fallbackModel, genai.Text(prompt), nil)
			if err != nil {
				return nil, fmt.Errorf("gemini translate batch (fallback): %w", err)
			}
		} else {
			return nil, fmt.Errorf("gemini translate batch: %w", err)
		}
	}

	raw := strings.TrimSpace(resp.Text())
	raw = stripCodeFence(raw)

	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse batch translation response: %w", err)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("batch translation desync: sent %d, got %d", len(texts), len(out))
	}
	return out, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite
// instructions not to.
func stripCodeFence(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isRateLimited(err error) bool {
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "503") ||
		strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(s, "UNAVAILABLE")
}

func (t *GeminiTranslator) degrade() {
	if !t.degraded.Load() {
		slog.Warn("rate limited, falling back", "from", t.model, "to", t.fallbackModel, "duration", "30s")
	}
	t.degraded.Store(true)
	t.recoverAt.Store(time.Now().Add(30 * time.Second).UnixMilli())
}

// activeModel returns the current model, auto-recovering from degraded state.
func (t *GeminiTranslator) activeModel() string {
	if t.degraded.Load() {
		if time.Now().UnixMilli() >= t.recoverAt.Load() {
			t.degraded.Store(false)
			slog.Info("recovered from rate limit, back to primary model", "model", t.model)
			return t.model
		}
		return t.fallbackModel
	}
	return t.model
}

func (t *GeminiTranslator) Close() {
	// genai client holds no resources that need explicit closing.
}
