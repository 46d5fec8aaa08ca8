package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/cleanfeed/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, "100", types.ExcludedCovered, 2, 750*time.Millisecond))
	require.NoError(t, s.Record(ctx, "101", types.NotExcluded, 2, 300*time.Millisecond))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byPost := map[string]Entry{}
	for _, e := range entries {
		byPost[e.PostID] = e
	}

	hidden := byPost["100"]
	assert.Equal(t, s.SessionID(), hidden.SessionID)
	assert.Equal(t, "excluded-covered", hidden.State)
	assert.True(t, hidden.Excluded)
	assert.Equal(t, 2, hidden.PromptCount)
	assert.Equal(t, 750*time.Millisecond, hidden.Duration)
	assert.WithinDuration(t, time.Now().UTC(), hidden.RecordedAt, time.Minute)

	shown := byPost["101"]
	assert.Equal(t, "not-excluded", shown.State)
	assert.False(t, shown.Excluded)
}

func TestRecentByPost(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, "100", types.ExcludedCovered, 1, time.Second))
	require.NoError(t, s.Record(ctx, "101", types.NotExcluded, 1, time.Second))
	require.NoError(t, s.Record(ctx, "100", types.ErrorAPIKey, 1, time.Second))

	entries, err := s.RecentByPost(ctx, "100", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "100", e.PostID)
	}

	entries, err = s.RecentByPost(ctx, "999", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecentHonorsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, "100", types.NotExcluded, 1, time.Second))
	}

	entries, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, "100", types.ExcludedCovered, 1, time.Second))

	// Backdate one row past the retention window.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classifications (session_id, post_id, state, excluded, prompt_count, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.sessionID, "old", "not-excluded", false, 1, 100, time.Now().UTC().Add(-48*time.Hour))
	require.NoError(t, err)

	pruned, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "100", entries[0].PostID)
}
