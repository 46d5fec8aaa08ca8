// Package analyzer decides whether a post's text matches the user's
// exclusion criteria. The Evaluator fans one classifier call out per
// exclusion prompt and reduces the verdicts with OR; the Service wraps the
// evaluator in a typed request/response channel for the tracker.
package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
)

// ErrAPIKeyMissing indicates classification is disabled because no
// credential is configured (or the last one was invalidated). It is a
// defined condition, not a failure: the evaluator returns it without
// touching the network, and the tracker surfaces it as a distinct marker.
var ErrAPIKeyMissing = errors.New("API Key Missing")

// Provider defines the interface for classifier backends
type Provider interface {
	// Classify answers one exclusion prompt for one text. It never
	// errors; all failure paths resolve to false.
	Classify(ctx context.Context, text, prompt string) bool
	// HasKey reports whether a credential is currently held.
	HasKey() bool
}

// Evaluator combines per-prompt verdicts into one exclusion decision.
type Evaluator struct {
	provider Provider
	log      *slog.Logger
}

// NewEvaluator creates an evaluator over the given provider.
func NewEvaluator(provider Provider, log *slog.Logger) *Evaluator {
	return &Evaluator{provider: provider, log: log}
}

// Evaluate runs every prompt against text concurrently and reduces with
// OR: the text is excluded iff at least one prompt answers YES. An empty
// prompt set is not excluded without any calls; a missing credential
// returns ErrAPIKeyMissing without any calls. The reduction is commutative,
// so the result does not depend on prompt order or completion order.
func (e *Evaluator) Evaluate(ctx context.Context, text string, prompts []string) (bool, error) {
	if len(prompts) == 0 {
		return false, nil
	}
	if !e.provider.HasKey() {
		return false, ErrAPIKeyMissing
	}

	// Copy before fan-out: a config change mid-scan must not tear the set.
	prompts = slices.Clone(prompts)
	verdicts := make([]bool, len(prompts))

	g, ctx := errgroup.WithContext(ctx)
	for i, prompt := range prompts {
		g.Go(func() error {
			verdicts[i] = e.provider.Classify(ctx, text, prompt)
			return nil
		})
	}

	// Classify never errors, so a Wait failure means the fan-out itself
	// broke. Default to visible.
	if err := g.Wait(); err != nil {
		e.log.Error("prompt fan-out failed", "error", err)
		return false, nil
	}

	return slices.Contains(verdicts, true), nil
}
