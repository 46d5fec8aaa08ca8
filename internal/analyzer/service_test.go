package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/cleanfeed/internal/config"
)

func newTestService(t *testing.T, snap config.Snapshot, factory ProviderFactory) *Service {
	t.Helper()
	svc := NewService(snap, factory, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Run(ctx)
	return svc
}

func TestServiceAnalyze(t *testing.T) {
	provider := &fakeProvider{hasKey: true, verdicts: map[string]bool{"about politics?": true}}
	snap := config.Snapshot{APIKey: "sk-test", Prompts: []string{"about politics?"}}
	svc := newTestService(t, snap, func(string) Provider { return provider })

	res := svc.Analyze(context.Background(), "a political post")

	require.NoError(t, res.Err)
	assert.True(t, res.Excluded)
}

func TestServiceAnalyzeMissingKey(t *testing.T) {
	provider := &fakeProvider{hasKey: false}
	snap := config.Snapshot{Prompts: []string{"about politics?"}}
	svc := newTestService(t, snap, func(string) Provider { return provider })

	res := svc.Analyze(context.Background(), "some post")

	require.ErrorIs(t, res.Err, ErrAPIKeyMissing)
	assert.False(t, res.Excluded)
}

func TestServiceAnalyzeNotRunning(t *testing.T) {
	provider := &fakeProvider{hasKey: true}
	snap := config.Snapshot{APIKey: "sk-test"}
	svc := NewService(snap, func(string) Provider { return provider }, testLogger())

	// Without a Run loop nothing picks the request up. A canceled context
	// must yield ErrNoResponse instead of blocking for the full timeout.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := svc.Analyze(ctx, "some post")

	require.ErrorIs(t, res.Err, ErrNoResponse)
	assert.False(t, res.Excluded)
}

func TestServiceApplyConfigReplacesPrompts(t *testing.T) {
	provider := &fakeProvider{hasKey: true, verdicts: map[string]bool{"about crypto?": true}}
	old := config.Snapshot{APIKey: "sk-test", Prompts: []string{"about politics?"}}
	svc := newTestService(t, old, func(string) Provider { return provider })

	next := config.Snapshot{APIKey: "sk-test", Prompts: []string{"about crypto?"}}
	svc.ApplyConfig(old, next)

	res := svc.Analyze(context.Background(), "a crypto post")
	require.NoError(t, res.Err)
	assert.True(t, res.Excluded, "new prompt set should be in effect")
}

func TestServiceApplyConfigRebuildsProviderOnKeyChange(t *testing.T) {
	var built []string
	factory := func(apiKey string) Provider {
		built = append(built, apiKey)
		return &fakeProvider{hasKey: apiKey != ""}
	}

	old := config.Snapshot{APIKey: "sk-old", Prompts: []string{"a?"}}
	svc := NewService(old, factory, testLogger())
	require.Equal(t, []string{"sk-old"}, built)

	// Prompt-only change keeps the existing provider.
	promptsOnly := config.Snapshot{APIKey: "sk-old", Prompts: []string{"b?"}}
	svc.ApplyConfig(old, promptsOnly)
	assert.Equal(t, []string{"sk-old"}, built)

	// Key change rebuilds it.
	rekeyed := config.Snapshot{APIKey: "sk-new", Prompts: []string{"b?"}}
	svc.ApplyConfig(promptsOnly, rekeyed)
	assert.Equal(t, []string{"sk-old", "sk-new"}, built)
}

func TestServiceConcurrentRequests(t *testing.T) {
	provider := &fakeProvider{hasKey: true, verdicts: map[string]bool{"a?": true}}
	snap := config.Snapshot{APIKey: "sk-test", Prompts: []string{"a?"}}
	svc := newTestService(t, snap, func(string) Provider { return provider })

	const n = 8
	results := make(chan Result, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- svc.Analyze(context.Background(), "some post")
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case res := <-results:
			require.NoError(t, res.Err)
			assert.True(t, res.Excluded)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for analysis results")
		}
	}
}
