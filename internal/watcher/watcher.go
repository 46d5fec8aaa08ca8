// Package watcher turns structural changes in the observed document into
// scan triggers. It never looks at markup itself: it reads an opaque
// mutation counter from a Source, which keeps the pipeline testable
// against synthetic feeds of change events.
package watcher

import (
	"context"
	"log/slog"
	"time"
)

// Source exposes a monotonic counter that advances whenever nodes are
// added to the observed document.
type Source interface {
	MutationCount(ctx context.Context) (int64, error)
}

// Watcher polls a Source and emits one event per observed change. Events
// are coalesced: a burst of mutations between polls produces a single
// event, and an event that hasn't been consumed yet absorbs new ones. Each
// event means "rescan everything", not "these nodes changed".
type Watcher struct {
	source   Source
	interval time.Duration
	events   chan struct{}
	log      *slog.Logger
}

// New creates a watcher polling source at the given interval.
func New(source Source, interval time.Duration, log *slog.Logger) *Watcher {
	return &Watcher{
		source:   source,
		interval: interval,
		events:   make(chan struct{}, 1),
		log:      log,
	}
}

// Events returns the change notification channel.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Run polls until ctx is canceled. It fires one event immediately so posts
// already present when observation begins get scanned.
func (w *Watcher) Run(ctx context.Context) {
	w.notify()

	var last int64
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := w.source.MutationCount(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Warn("failed to poll document mutations", "error", err)
				continue
			}
			if count != last {
				last = count
				w.notify()
			}
		}
	}
}

// Notify forces an event, used by the periodic deep rescan.
func (w *Watcher) Notify() {
	w.notify()
}

func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
