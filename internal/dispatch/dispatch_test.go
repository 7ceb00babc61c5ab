package dispatch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/christian-lee/translate-mediator/internal/message"
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

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.out))
	for i, m := range r.out {
		out[i] = m.Original.FullText
	}
	return out
}

func ptr(s string) *string { return &s }

func TestSubmitInOrderPassesThrough(t *testing.T) {
	rec := &recorder{}
	d := New(rec)

	require.NoError(t, d.Submit(0, "a", "en", "zh", ptr("A")))
	require.NoError(t, d.Submit(1, "b", "en", "zh", ptr("B")))
	require.NoError(t, d.Submit(2, "c", "en", "zh", ptr("C")))

	require.Equal(t, []string{"a", "b", "c"}, rec.texts())
}

func TestSubmitOutOfOrderBuffersAndReleasesInOrder(t *testing.T) {
	rec := &recorder{}
	d := New(rec)

	// seq 1 arrives before seq 0 (fast batch beat a slow one).
	require.NoError(t, d.Submit(1, "b", "en", "zh", ptr("B")))
	require.Empty(t, rec.texts(), "seq 1 must not be released before seq 0")

	require.NoError(t, d.Submit(0, "a", "en", "zh", ptr("A")))
	require.Equal(t, []string{"a", "b"}, rec.texts())
}

func TestSubmitReleasesFullContiguousRunOnce(t *testing.T) {
	rec := &recorder{}
	d := New(rec)

	require.NoError(t, d.Submit(2, "c", "en", "zh", ptr("C")))
	require.NoError(t, d.Submit(1, "b", "en", "zh", ptr("B")))
	require.Empty(t, rec.texts())

	require.NoError(t, d.Submit(0, "a", "en", "zh", ptr("A")))
	require.Equal(t, []string{"a", "b", "c"}, rec.texts())
}

func TestSubmitDuplicateBelowNextToEmitIsIgnored(t *testing.T) {
	rec := &recorder{}
	d := New(rec)

	require.NoError(t, d.Submit(0, "a", "en", "zh", ptr("A")))
	require.NoError(t, d.Submit(0, "a-again", "en", "zh", ptr("A2")))

	require.Equal(t, []string{"a"}, rec.texts())
}

func TestSubmitFailedTranslationStillReleasesOriginal(t *testing.T) {
	rec := &recorder{}
	d := New(rec)

	require.NoError(t, d.Submit(0, "a", "en", "zh", nil))

	out := rec.out
	require.Len(t, out, 1)
	require.Nil(t, out[0].Translation)
	require.Equal(t, "a", out[0].Original.FullText)
}

func TestSubmitOverflowReturnsError(t *testing.T) {
	rec := &recorder{}
	d := New(rec)

	for seq := uint64(1); seq <= maxPending; seq++ {
		err := d.Submit(seq, fmt.Sprintf("s%d", seq), "en", "zh", ptr("x"))
		require.NoError(t, err)
	}

	// One more out-of-order entry beyond the buffer's capacity is fatal.
	err := d.Submit(maxPending+1, "overflow", "en", "zh", ptr("x"))
	require.Error(t, err)
}

func TestDeltaIsFullTextAgainstEmptyPrevious(t *testing.T) {
	rec := &recorder{}
	d := New(rec)

	require.NoError(t, d.Submit(0, "hello world", "en", "zh", ptr("你好世界")))

	out := rec.out[0]
	require.Equal(t, "hello world", out.Original.Delta)
	require.Equal(t, "你好世界", out.Translation.Delta)
}
