package watcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSource struct {
	count atomic.Int64
}

func (f *fakeSource) MutationCount(context.Context) (int64, error) {
	return f.count.Load(), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func awaitEvent(t *testing.T, events <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func assertNoEvent(t *testing.T, events <-chan struct{}) {
	t.Helper()
	select {
	case <-events:
		t.Fatal("unexpected event")
	case <-time.After(100 * time.Millisecond):
	}
}

func startWatcher(t *testing.T, source Source) *Watcher {
	t.Helper()
	w := New(source, 10*time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return w
}

func TestRunFiresInitialEvent(t *testing.T) {
	src := &fakeSource{}
	w := startWatcher(t, src)

	awaitEvent(t, w.Events(), "expected an immediate event on start")
	assertNoEvent(t, w.Events())
}

func TestRunFiresOnCounterChange(t *testing.T) {
	src := &fakeSource{}
	w := startWatcher(t, src)
	awaitEvent(t, w.Events(), "expected the initial event")

	src.count.Add(1)
	awaitEvent(t, w.Events(), "expected an event after a mutation")

	assertNoEvent(t, w.Events())

	src.count.Add(3)
	awaitEvent(t, w.Events(), "expected an event after further mutations")
}

func TestEventsCoalesce(t *testing.T) {
	src := &fakeSource{}
	w := New(src, time.Hour, testLogger())

	// Multiple unconsumed notifications collapse into one.
	w.Notify()
	w.Notify()
	w.Notify()

	awaitEvent(t, w.Events(), "expected one coalesced event")
	assertNoEvent(t, w.Events())
}

func TestNotifyForcesEvent(t *testing.T) {
	src := &fakeSource{}
	w := startWatcher(t, src)
	awaitEvent(t, w.Events(), "expected the initial event")

	// No counter movement, but a deep rescan wants a pass anyway.
	w.Notify()
	awaitEvent(t, w.Events(), "expected the forced event")
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	w := New(src, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	awaitEvent(t, w.Events(), "expected the initial event")
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
