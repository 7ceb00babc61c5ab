package interim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/christian-lee/translate-mediator/internal/config"
	"github.com/christian-lee/translate-mediator/internal/message"
	"github.com/christian-lee/translate-mediator/internal/translate"
)

type recorder struct {
	mu  sync.Mutex
	out []message.Outbound
}

func (r *recorder) Emit(msg message.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, msg)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.out)
}

func (r *recorder) last() message.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out[len(r.out)-1]
}

func newCfg(debounceMS int, enabled, sync bool) *config.RuntimeConfig {
	return config.NewRuntimeConfig(config.RuntimeDefaults{
		SourceLang:             "en",
		TargetLang:             "zh",
		DebounceMS:             debounceMS,
		BatchSize:              4,
		BatchTimeoutMS:         500,
		SyncDisplayMode:        sync,
		InterimDebounceEnabled: enabled,
	})
}

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSubmitNoOpWhenDebounceDisabled(t *testing.T) {
	cfg := newCfg(10, false, false)
	rec := &recorder{}
	tr := New(cfg, translate.NewFake(), rec, 0)

	tr.Submit(context.Background(), "hello")

	time.Sleep(50 * time.Millisecond)
	if rec.len() != 0 {
		t.Fatalf("expected no emission, got %d", rec.len())
	}
}

func TestSubmitEmitsAfterDebounceElapses(t *testing.T) {
	cfg := newCfg(10, true, false)
	rec := &recorder{}
	tr := New(cfg, translate.NewFake(), rec, 0)

	tr.Submit(context.Background(), "hello")

	waitFor(t, func() bool { return rec.len() == 1 })
	out := rec.last()
	if out.Type != message.KindInterim {
		t.Fatalf("expected interim kind, got %v", out.Type)
	}
	if out.Original.FullText != "hello" {
		t.Fatalf("expected original full text 'hello', got %q", out.Original.FullText)
	}
	if out.Translation == nil || out.Translation.FullText != "HELLO" {
		t.Fatalf("expected translation 'HELLO', got %+v", out.Translation)
	}
	if out.Original.Delta != "" {
		t.Fatalf("non-sync mode should leave original delta empty, got %q", out.Original.Delta)
	}
}

func TestSubmitSupersedesEarlierPendingRevision(t *testing.T) {
	cfg := newCfg(40, true, false)
	rec := &recorder{}
	tr := New(cfg, translate.NewFake(), rec, 0)

	tr.Submit(context.Background(), "hel")
	time.Sleep(5 * time.Millisecond)
	tr.Submit(context.Background(), "hello world") // supersedes before the first's debounce fires

	waitFor(t, func() bool { return rec.len() >= 1 })
	time.Sleep(60 * time.Millisecond) // make sure no late second emission follows

	if rec.len() != 1 {
		t.Fatalf("expected exactly one emission from the latest revision, got %d", rec.len())
	}
	out := rec.last()
	if out.Original.FullText != "hello world" {
		t.Fatalf("expected the superseding revision's text, got %q", out.Original.FullText)
	}
}

func TestCancelSuppressesEmissionAndResetsSnapshots(t *testing.T) {
	cfg := newCfg(40, true, false)
	rec := &recorder{}
	tr := New(cfg, translate.NewFake(), rec, 0)

	tr.Submit(context.Background(), "hello")
	time.Sleep(5 * time.Millisecond)
	tr.Cancel()

	time.Sleep(80 * time.Millisecond)
	if rec.len() != 0 {
		t.Fatalf("expected no emission after cancel, got %d", rec.len())
	}

	tr.Submit(context.Background(), "next sentence")
	waitFor(t, func() bool { return rec.len() == 1 })
	out := rec.last()
	if out.Translation.Delta != "NEXT SENTENCE" {
		t.Fatalf("expected full translation delta against reset snapshot, got %q", out.Translation.Delta)
	}
}

func TestSyncDisplayModeComputesIncrementalOriginalDelta(t *testing.T) {
	cfg := newCfg(10, true, true)
	rec := &recorder{}
	tr := New(cfg, translate.NewFake(), rec, 0)

	tr.Submit(context.Background(), "hello")
	waitFor(t, func() bool { return rec.len() == 1 })
	if rec.last().Original.Delta != "hello" {
		t.Fatalf("expected first sync-mode delta to be the full text, got %q", rec.last().Original.Delta)
	}

	tr.Submit(context.Background(), "hello world")
	waitFor(t, func() bool { return rec.len() == 2 })
	if rec.last().Original.Delta != " world" {
		t.Fatalf("expected incremental delta ' world', got %q", rec.last().Original.Delta)
	}
}

func TestTranslationFailureDropsSilently(t *testing.T) {
	cfg := newCfg(10, true, false)
	fake := translate.NewFake()
	fake.FailNext(1)
	rec := &recorder{}
	tr := New(cfg, fake, rec, 0)

	tr.Submit(context.Background(), "hello")

	time.Sleep(80 * time.Millisecond)
	if rec.len() != 0 {
		t.Fatalf("expected no emission on translation failure, got %d", rec.len())
	}
}
