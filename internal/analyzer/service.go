package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ibeckermayer/cleanfeed/internal/config"
)

// ErrNoResponse indicates the analysis request got no timely answer. The
// tracker treats it as the invalid-response condition, distinct from
// ErrAPIKeyMissing.
var ErrNoResponse = errors.New("no response from analyzer")

// ReplyTimeout bounds how long a caller waits for an analysis result. It
// covers the slowest fan-out member (classifier call timeout) plus
// scheduling slack.
const ReplyTimeout = 2 * time.Minute

// Result is the answer to one analysis request.
type Result struct {
	Excluded bool
	// Err is nil, ErrAPIKeyMissing, or ErrNoResponse. Whatever the error,
	// Excluded is false: errors fail toward visibility.
	Err error
}

type request struct {
	text  string
	reply chan Result
}

// ProviderFactory builds a classifier provider for a credential. The
// service rebuilds its provider wholesale when the configured key changes.
type ProviderFactory func(apiKey string) Provider

// Service answers analysis requests over a typed channel. Each request is
// evaluated against a snapshot of the prompts and provider taken when the
// request is picked up, so a config change never tears an in-flight
// evaluation. Requests are served concurrently; completion order is
// unrelated to submission order.
type Service struct {
	requests chan request

	mu       sync.RWMutex
	provider Provider
	prompts  []string

	newProvider ProviderFactory
	log         *slog.Logger
}

// NewService creates a service from the current config snapshot.
func NewService(snap config.Snapshot, factory ProviderFactory, log *slog.Logger) *Service {
	return &Service{
		requests:    make(chan request),
		provider:    factory(snap.APIKey),
		prompts:     slices.Clone(snap.Prompts),
		newProvider: factory,
		log:         log,
	}
}

// ApplyConfig is a config.ChangeFunc. Prompts are replaced wholesale. The
// provider is rebuilt only when the key text changed: rebuilding on every
// change would resurrect a key the provider invalidated after an
// authorization failure. The flip side is that rewriting the identical
// key text is indistinguishable from no change, so recovering an
// invalidated key takes `key clear` then `key set`, or a restart.
func (s *Service) ApplyConfig(old, next config.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = slices.Clone(next.Prompts)
	if next.APIKey != old.APIKey {
		s.provider = s.newProvider(next.APIKey)
		s.log.Info("classifier credential reconfigured", "configured", next.APIKey != "")
	}
}

// Run serves analysis requests until ctx is canceled.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			s.mu.RLock()
			provider := s.provider
			prompts := slices.Clone(s.prompts)
			s.mu.RUnlock()

			go func() {
				excluded, err := NewEvaluator(provider, s.log).Evaluate(ctx, req.text, prompts)
				req.reply <- Result{Excluded: excluded, Err: err}
			}()
		}
	}
}

// Analyze submits text for exclusion analysis and waits for the verdict.
// Absence of a timely reply - the service not running, or an evaluation
// that outlives ReplyTimeout - yields ErrNoResponse.
func (s *Service) Analyze(ctx context.Context, text string) Result {
	req := request{text: text, reply: make(chan Result, 1)}

	timeout := time.NewTimer(ReplyTimeout)
	defer timeout.Stop()

	select {
	case s.requests <- req:
	case <-timeout.C:
		return Result{Err: ErrNoResponse}
	case <-ctx.Done():
		return Result{Err: ErrNoResponse}
	}

	select {
	case res := <-req.reply:
		return res
	case <-timeout.C:
		return Result{Err: ErrNoResponse}
	case <-ctx.Done():
		return Result{Err: ErrNoResponse}
	}
}
