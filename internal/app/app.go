// Package app wires the filter together: config store, analyzer service,
// feed session, tracker, watcher, and the maintenance scheduler.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ibeckermayer/cleanfeed/internal/analyzer"
	"github.com/ibeckermayer/cleanfeed/internal/analyzer/providers"
	"github.com/ibeckermayer/cleanfeed/internal/auth"
	"github.com/ibeckermayer/cleanfeed/internal/config"
	"github.com/ibeckermayer/cleanfeed/internal/feed"
	"github.com/ibeckermayer/cleanfeed/internal/history"
	"github.com/ibeckermayer/cleanfeed/internal/scheduler"
	"github.com/ibeckermayer/cleanfeed/internal/tracker"
	"github.com/ibeckermayer/cleanfeed/internal/types"
	"github.com/ibeckermayer/cleanfeed/internal/watcher"
)

// App holds the long-lived pieces of the filter daemon.
type App struct {
	cfgStore    *config.Store
	authManager *auth.Manager
	service     *analyzer.Service
	hist        *history.Store // nil when history is disabled
	log         *slog.Logger
}

// New assembles the daemon. The analyzer service subscribes to config
// changes here, so prompt and key edits take effect without a restart.
func New(cfgStore *config.Store, authManager *auth.Manager, hist *history.Store, log *slog.Logger) *App {
	cfg := cfgStore.Config()
	factory := func(apiKey string) analyzer.Provider {
		return providers.NewOpenAIProvider(
			apiKey,
			cfg.Classifier.Model,
			time.Duration(cfg.Classifier.RequestTimeoutSecs)*time.Second,
			log,
		)
	}

	service := analyzer.NewService(cfgStore.Snapshot(), factory, log)
	cfgStore.Subscribe(service.ApplyConfig)

	return &App{
		cfgStore:    cfgStore,
		authManager: authManager,
		service:     service,
		hist:        hist,
		log:         log,
	}
}

// Run starts the filter and blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if !a.authManager.IsAuthenticated() {
		return fmt.Errorf("no valid x.com session, run `cleanfeed login` first")
	}

	cookies, err := a.authManager.Cookies()
	if err != nil {
		return fmt.Errorf("failed to load session cookies: %w", err)
	}

	cfg := a.cfgStore.Config()

	session, err := feed.NewSession(ctx, cfg.Feed.Headless, cookies, a.log)
	if err != nil {
		return err
	}
	defer session.Close()

	var recorder tracker.Recorder
	if a.hist != nil {
		recorder = &historyRecorder{store: a.hist, cfgStore: a.cfgStore, log: a.log}
	}

	trk := tracker.New(session, session, a.service, recorder, a.log)

	pollInterval := time.Duration(cfg.Feed.MutationPollSecs) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	w := watcher.New(session, pollInterval, a.log)

	go a.service.Run(ctx)
	go w.Run(ctx)
	go func() {
		if err := a.cfgStore.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watcher stopped", "error", err)
		}
	}()

	sched := scheduler.New(a.log)
	rescan := time.Duration(cfg.Feed.DeepRescanIntervalM) * time.Minute
	if rescan > 0 {
		// Belt and braces: the mutation counter can miss changes made
		// while the poll loop was wedged, so sweep periodically too.
		if err := sched.AddEvery("deep-rescan", rescan, func(context.Context) error {
			w.Notify()
			return nil
		}); err != nil {
			return err
		}
	}
	if a.hist != nil && cfg.History.RetentionDays > 0 {
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		if err := sched.AddDaily("history-prune", "03:30", func(ctx context.Context) error {
			pruned, err := a.hist.Prune(ctx, retention)
			if err != nil {
				return err
			}
			if pruned > 0 {
				a.log.Info("pruned classification history", "rows", pruned)
			}
			return nil
		}); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	a.log.Info("cleanfeed running", "headless", cfg.Feed.Headless,
		"prompts", len(cfg.Filter.ExclusionPrompts))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Events():
			candidates, err := session.Candidates(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.log.Warn("timeline scan failed", "error", err)
				continue
			}
			trk.Scan(ctx, candidates)
			tracked, covered := trk.Stats()
			a.log.Debug("scan complete", "candidates", len(candidates),
				"tracked", tracked, "covered", covered)
		}
	}
}

// historyRecorder adapts the history store to the tracker's Recorder
// interface, attaching the prompt count in force at record time.
type historyRecorder struct {
	store    *history.Store
	cfgStore *config.Store
	log      *slog.Logger
}

func (r *historyRecorder) RecordOutcome(ctx context.Context, postID string, state types.Classification, took time.Duration) {
	promptCount := len(r.cfgStore.Snapshot().Prompts)
	if err := r.store.Record(ctx, postID, state, promptCount, took); err != nil {
		r.log.Warn("failed to record outcome", "post", postID, "error", err)
	}
}
