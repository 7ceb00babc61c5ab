package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/christian-lee/translate-mediator/internal/config"
	"github.com/christian-lee/translate-mediator/internal/message"
	"github.com/christian-lee/translate-mediator/internal/translate"
)

type dispatchCall struct {
	sequence   uint64
	sourceText string
	translated *string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (f *fakeDispatcher) Submit(sequence uint64, sourceText, _, _ string, translated *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{sequence: sequence, sourceText: sourceText, translated: translated})
	return nil
}

func (f *fakeDispatcher) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newRuntime(batchSize, batchTimeoutMS int) *config.RuntimeConfig {
	return config.NewRuntimeConfig(config.RuntimeDefaults{
		SourceLang:     "en",
		TargetLang:     "zh",
		BatchSize:      batchSize,
		BatchTimeoutMS: batchTimeoutMS,
	})
}

func sentence(seq uint64, text string) message.Sentence {
	return message.Sentence{Sequence: seq, SourceText: text, SourceLang: "en"}
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

func TestSubmitEmptyQueueDispatchesImmediately(t *testing.T) {
	cfg := newRuntime(3, 5000)
	fake := translate.NewFake()
	disp := &fakeDispatcher{}
	tr := New(cfg, fake, disp, 0)

	tr.Submit(context.Background(), sentence(0, "hello"))

	waitFor(t, func() bool { return disp.len() == 1 })
	require.Equal(t, 1, fake.CallCount())
	require.Len(t, fake.Calls()[0].Texts, 1)
}

func TestSubmitCoalescesBacklogWhileFirstCallInFlight(t *testing.T) {
	cfg := newRuntime(16, 5000) // large batch_size/timeout so only completion frees the backlog
	gate := make(chan struct{})
	fake := translate.NewFake()
	fake.Delay = gate
	disp := &fakeDispatcher{}
	tr := New(cfg, fake, disp, 0)

	tr.Submit(context.Background(), sentence(0, "a"))
	waitFor(t, func() bool { return fake.CallCount() == 1 }) // first call now blocked on the gate

	tr.Submit(context.Background(), sentence(1, "b"))
	tr.Submit(context.Background(), sentence(2, "c"))

	// b and c must not trigger their own calls while a's call is in flight
	// and neither batch_size nor batch_timeout has been reached.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, fake.CallCount())

	gate <- struct{}{} // release a's call

	waitFor(t, func() bool { return fake.CallCount() == 2 })
	calls := fake.Calls()
	require.Len(t, calls[1].Texts, 2)
	require.Equal(t, []string{"b", "c"}, calls[1].Texts)

	gate <- struct{}{} // release the [b, c] batch

	waitFor(t, func() bool { return disp.len() == 3 })
}

func TestSubmitFlushesOnBatchSizeWithoutWaitingForTimeout(t *testing.T) {
	cfg := newRuntime(2, 5000) // timeout far longer than the test
	gate := make(chan struct{})
	fake := translate.NewFake()
	fake.Delay = gate
	disp := &fakeDispatcher{}
	tr := New(cfg, fake, disp, 0)

	tr.Submit(context.Background(), sentence(0, "a"))
	waitFor(t, func() bool { return fake.CallCount() == 1 })

	tr.Submit(context.Background(), sentence(1, "b"))
	tr.Submit(context.Background(), sentence(2, "c")) // pending reaches batch_size=2

	waitFor(t, func() bool { return fake.CallCount() == 2 })

	gate <- struct{}{}
	gate <- struct{}{}
	waitFor(t, func() bool { return disp.len() == 3 })
}

func TestOnTimeoutFlushesConcurrentlyWithAnEarlierInFlightCall(t *testing.T) {
	cfg := newRuntime(16, 20) // short timeout relative to the gated first call (clamped up to 50ms)
	gate := make(chan struct{})
	fake := translate.NewFake()
	fake.Delay = gate
	disp := &fakeDispatcher{}
	tr := New(cfg, fake, disp, 0)

	tr.Submit(context.Background(), sentence(0, "a")) // blocks on the gate indefinitely
	waitFor(t, func() bool { return fake.CallCount() == 1 })

	tr.Submit(context.Background(), sentence(1, "b"))

	// The batch_timeout (50ms after clamping) should flush [b] on its own, independent of
	// a's still-unreleased call — proving two calls can be concurrently in
	// flight, which is what makes out-of-order dispatch possible at all.
	waitFor(t, func() bool { return fake.CallCount() == 2 })

	gate <- struct{}{} // release a
	gate <- struct{}{} // release b's batch
	waitFor(t, func() bool { return disp.len() == 2 })
}

func TestFlushFailureDispatchesNilTranslation(t *testing.T) {
	cfg := newRuntime(3, 5000)
	fake := translate.NewFake()
	fake.FailNext(1)
	disp := &fakeDispatcher{}
	tr := New(cfg, fake, disp, 0)

	tr.Submit(context.Background(), sentence(0, "a"))

	waitFor(t, func() bool { return disp.len() == 1 })
	require.Nil(t, disp.calls[0].translated)
	require.Equal(t, "a", disp.calls[0].sourceText)
}
