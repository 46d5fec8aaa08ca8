// Package tracker owns the per-post state machine. Each visible post is
// tracked in a map keyed by its post ID; a post enters the classification
// pipeline at most once per DOM lifetime, and the tracker reconciles the
// analyzer's verdict against the overlay state on its element.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ibeckermayer/cleanfeed/internal/analyzer"
	"github.com/ibeckermayer/cleanfeed/internal/types"
)

// Surface applies visual effects to a post's element. Implementations must
// tolerate the element having left the document: an effect on a stale ID is
// a no-op error at worst, never a crash.
type Surface interface {
	ApplyOverlay(ctx context.Context, id string) error
	RemoveOverlay(ctx context.Context, id string) error
	MarkAPIKeyMissing(ctx context.Context, id string) error
	MarkInvalidResponse(ctx context.Context, id string) error
	ClearMarkers(ctx context.Context, id string) error
}

// Extractor pulls the visible text out of a post's element. ok is false
// when the text container is missing or the element is gone.
type Extractor interface {
	ExtractText(ctx context.Context, id string) (text string, ok bool)
}

// Analyzer answers exclusion queries for post text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) analyzer.Result
}

// Recorder observes terminal classification outcomes. Implementations must
// not feed outcomes back into the pipeline; history is write-only.
type Recorder interface {
	RecordOutcome(ctx context.Context, postID string, state types.Classification, took time.Duration)
}

// record is the typed per-post state, replacing ad hoc element attributes.
type record struct {
	processed      bool
	revealed       bool
	classification types.Classification
}

// Tracker drives posts through unprocessed -> pending -> terminal states.
type Tracker struct {
	mu    sync.Mutex
	posts map[string]*record

	surface   Surface
	extractor Extractor
	analyzer  Analyzer
	recorder  Recorder // may be nil
	log       *slog.Logger

	// inflight counts classification goroutines; tests wait on it.
	inflight sync.WaitGroup
}

// New creates a tracker. recorder may be nil to disable outcome history.
func New(surface Surface, extractor Extractor, an Analyzer, recorder Recorder, log *slog.Logger) *Tracker {
	return &Tracker{
		posts:     make(map[string]*record),
		surface:   surface,
		extractor: extractor,
		analyzer:  an,
		recorder:  recorder,
		log:       log,
	}
}

// Scan is the pipeline entry point. It processes every candidate currently
// in the document and forgets state for posts whose element is gone, so a
// removed-and-reinserted post starts over as unprocessed.
func (t *Tracker) Scan(ctx context.Context, candidates []types.Candidate) {
	live := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		live[c.ID] = true
		t.process(ctx, c)
	}

	t.mu.Lock()
	for id := range t.posts {
		if !live[id] {
			delete(t.posts, id)
		}
	}
	t.mu.Unlock()
}

// process runs one candidate through the entry gate. The processed flag is
// set before the asynchronous classification is issued; that ordering is
// what prevents a re-triggered scan from double-processing a post whose
// verdict is still in flight.
func (t *Tracker) process(ctx context.Context, c types.Candidate) {
	t.mu.Lock()
	rec := t.posts[c.ID]
	if rec == nil {
		rec = &record{}
		t.posts[c.ID] = rec
	}

	// Sync a reveal that happened in the browser since the last scan.
	if c.Revealed {
		rec.revealed = true
	}

	if rec.processed {
		// Settled, revealed or not. Prompts changing does not reopen a
		// processed post; that staleness is the documented trade-off.
		restore := rec.classification == types.ExcludedCovered && !rec.revealed && !c.HasOverlay
		t.mu.Unlock()
		if restore {
			// The timeline's virtual list rebuilt the article and dropped
			// the overlay node. Put it back.
			if err := t.surface.ApplyOverlay(ctx, c.ID); err != nil {
				t.log.Warn("failed to restore overlay", "post", c.ID, "error", err)
			}
		}
		return
	}
	rec.processed = true
	t.mu.Unlock()

	text, ok := t.extractor.ExtractText(ctx, c.ID)
	if !ok {
		// No text, no classification: leave the post unobstructed.
		t.log.Debug("no extractable text, leaving post visible", "post", c.ID)
		t.mu.Lock()
		rec.revealed = false
		t.mu.Unlock()
		t.neutralize(ctx, c.ID)
		return
	}

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		t.classify(ctx, c.ID, text)
	}()
}

// classify awaits the verdict and applies the transition: excluded posts
// get the overlay, clean posts get any leftover effects removed, and the
// two error conditions get distinct markers. All error paths leave the
// post visible.
func (t *Tracker) classify(ctx context.Context, id, text string) {
	start := time.Now()
	res := t.analyzer.Analyze(ctx, text)

	t.mu.Lock()
	rec, ok := t.posts[id]
	if !ok {
		// Element left the document while the call was in flight.
		t.mu.Unlock()
		return
	}

	var state types.Classification
	switch {
	case res.Err == nil && res.Excluded:
		state = types.ExcludedCovered
	case res.Err == nil:
		state = types.NotExcluded
	case errors.Is(res.Err, analyzer.ErrAPIKeyMissing):
		state = types.ErrorAPIKey
	default:
		state = types.ErrorInvalidResponse
	}
	rec.classification = state
	revealed := rec.revealed
	if state != types.ExcludedCovered {
		// Removing the overlay for any reason other than a user action
		// resets the reveal bookkeeping, so a future pass that concealed
		// the post again would show the overlay again.
		rec.revealed = false
	}
	t.mu.Unlock()

	switch state {
	case types.ExcludedCovered:
		if revealed {
			t.log.Debug("post excluded but user already revealed it", "post", id)
			break
		}
		if err := t.surface.ApplyOverlay(ctx, id); err != nil {
			t.log.Warn("failed to apply overlay", "post", id, "error", err)
		}
	case types.NotExcluded:
		t.neutralize(ctx, id)
	case types.ErrorAPIKey:
		t.removeOverlay(ctx, id)
		if err := t.surface.MarkAPIKeyMissing(ctx, id); err != nil {
			t.log.Warn("failed to mark post", "post", id, "error", err)
		}
	case types.ErrorInvalidResponse:
		t.removeOverlay(ctx, id)
		if err := t.surface.MarkInvalidResponse(ctx, id); err != nil {
			t.log.Warn("failed to mark post", "post", id, "error", err)
		}
	}

	t.log.Info("post classified", "post", id, "state", state.String(), "took", time.Since(start))
	if t.recorder != nil {
		t.recorder.RecordOutcome(ctx, id, state, time.Since(start))
	}
}

// neutralize clears every visual effect from a post.
func (t *Tracker) neutralize(ctx context.Context, id string) {
	t.removeOverlay(ctx, id)
	if err := t.surface.ClearMarkers(ctx, id); err != nil {
		t.log.Warn("failed to clear markers", "post", id, "error", err)
	}
}

func (t *Tracker) removeOverlay(ctx context.Context, id string) {
	if err := t.surface.RemoveOverlay(ctx, id); err != nil {
		t.log.Warn("failed to remove overlay", "post", id, "error", err)
	}
}

// Stats returns how many posts are tracked and how many are concealed.
func (t *Tracker) Stats() (tracked, covered int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.posts {
		if rec.classification == types.ExcludedCovered && !rec.revealed {
			covered++
		}
	}
	return len(t.posts), covered
}
