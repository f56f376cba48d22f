package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaintetris/internal/chain"
)

// flakySource fails the first failures calls to Watch, then blocks until cancelled.
type flakySource struct {
	mu       sync.Mutex
	watches  int
	failures int
}

func (f *flakySource) Watch(ctx context.Context, sink chan<- chain.Event) error {
	f.mu.Lock()
	f.watches++
	n := f.watches
	f.mu.Unlock()
	if n <= f.failures {
		return errors.New("connection reset")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *flakySource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watches
}

type countingResyncer struct{ n atomic.Int32 }

func (c *countingResyncer) ResyncAll() { c.n.Add(1) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatchEvents_ReconnectResyncs(t *testing.T) {
	src := &flakySource{failures: 2}
	rooms := &countingResyncer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchEvents(ctx, src, rooms, make(chan chain.Event), time.Millisecond, discardLogger())
		close(done)
	}()

	require.Eventually(t, func() bool { return src.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), rooms.n.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchEvents did not stop on cancel")
	}
	assert.Equal(t, int32(2), rooms.n.Load(), "cancel must not resync")
}

func TestWatchEvents_CancelDuringBackoff(t *testing.T) {
	src := &flakySource{failures: 1}
	rooms := &countingResyncer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchEvents(ctx, src, rooms, make(chan chain.Event), time.Hour, discardLogger())
		close(done)
	}()

	require.Eventually(t, func() bool { return src.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchEvents did not stop during backoff")
	}
	assert.Equal(t, int32(0), rooms.n.Load())
}
