package chatrelay

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacedWriter_WritesInEnqueueOrder(t *testing.T) {
	var buf bytes.Buffer
	pw := newPacedWriter(context.Background(), &buf)

	now := time.Now()
	// Staggered ready-at times, all in the near future.
	require.True(t, pw.enqueue(fragment{text: "a", tokens: 1, readyAt: now.Add(6 * time.Millisecond)}))
	require.True(t, pw.enqueue(fragment{text: "b", tokens: 1, readyAt: now.Add(9 * time.Millisecond)}))
	require.True(t, pw.enqueue(fragment{text: "c", tokens: 1, readyAt: now.Add(12 * time.Millisecond)}))

	delivered, err := pw.close()
	require.NoError(t, err)
	assert.Equal(t, "abc", buf.String())
	assert.EqualValues(t, 3, delivered)
}

func TestPacedWriter_CloseWaitsForLastScheduledWrite(t *testing.T) {
	var buf bytes.Buffer
	pw := newPacedWriter(context.Background(), &buf)

	ready := time.Now().Add(15 * time.Millisecond)
	require.True(t, pw.enqueue(fragment{text: "late", tokens: 2, readyAt: ready}))

	delivered, err := pw.close()
	require.NoError(t, err)

	// close must not return before the scheduled write happened.
	assert.False(t, time.Now().Before(ready))
	assert.Equal(t, "late", buf.String())
	assert.EqualValues(t, 2, delivered)
}

func TestPacedWriter_CancelDropsPendingWrites(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	pw := newPacedWriter(ctx, &buf)

	require.True(t, pw.enqueue(fragment{text: "x", tokens: 1}))
	// Far enough out that cancellation lands first.
	require.True(t, pw.enqueue(fragment{text: "y", tokens: 1, readyAt: time.Now().Add(time.Second)}))

	time.Sleep(5 * time.Millisecond) // let the immediate write land
	cancel()

	start := time.Now()
	delivered, err := pw.close()
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond, "pending delayed write must be cancelled, not awaited")
	assert.Equal(t, "x", buf.String())
	assert.EqualValues(t, 1, delivered)
}

// failingWriter fails every write after the first n.
type failingWriter struct {
	mu sync.Mutex
	n  int
	w  bytes.Buffer
}

func (fw *failingWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.n <= 0 {
		return 0, errors.New("broken pipe")
	}
	fw.n--
	return fw.w.Write(p)
}

func TestPacedWriter_StopsAcceptingAfterWriteFailure(t *testing.T) {
	fw := &failingWriter{n: 1}
	pw := newPacedWriter(context.Background(), fw)

	require.True(t, pw.enqueue(fragment{text: "ok", tokens: 1}))
	pw.enqueue(fragment{text: "fails", tokens: 1})

	// Once the failure propagates, enqueue refuses new fragments.
	assert.Eventually(t, func() bool {
		return !pw.enqueue(fragment{text: "after", tokens: 1})
	}, time.Second, time.Millisecond)

	delivered, err := pw.close()
	assert.Error(t, err)
	assert.EqualValues(t, 1, delivered)
	assert.Equal(t, "ok", fw.w.String())
}
