package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestProvider points a provider at a stub chat-completions server.
func newTestProvider(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider("sk-test", "", 0, testLogger())
	p.endpoint = srv.URL
	return p, srv
}

func verdictHandler(t *testing.T, verdict string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, maxVerdictTokens, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[0].Content, "Start your response with 'YES' or 'NO'.")
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Contains(t, req.Messages[1].Content, "Tweet: ")

		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, verdict)
	}
}

func TestClassifyVerdictParsing(t *testing.T) {
	tests := []struct {
		name    string
		verdict string
		want    bool
	}{
		{"plain yes", "YES", true},
		{"yes with explanation", "YES, this is about politics", true},
		{"lowercase yes", "yes", true},
		{"padded yes", "  Yes.", true},
		{"plain no", "NO", false},
		{"no with explanation", "No, this is harmless", false},
		{"free-form answer", "This post discusses sports", false},
		{"empty answer", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTestProvider(t, verdictHandler(t, tc.verdict))

			got := p.Classify(context.Background(), "some post text", "Is this about politics?")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyWithoutKey(t *testing.T) {
	var calls atomic.Int64
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	p.invalidateKey()

	assert.False(t, p.HasKey())
	assert.False(t, p.Classify(context.Background(), "text", "prompt?"))
	assert.Zero(t, calls.Load(), "no credential means no API call")
}

func TestClassifyAuthFailureInvalidatesKey(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			var calls atomic.Int64
			p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(status)
				fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"bad key"}}`)
			})

			require.True(t, p.HasKey())
			assert.False(t, p.Classify(context.Background(), "text", "prompt?"))
			assert.False(t, p.HasKey(), "auth failure must drop the key")

			// Later calls short-circuit without touching the API.
			assert.False(t, p.Classify(context.Background(), "text", "prompt?"))
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestClassifyTransientErrorKeepsKey(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	})

	assert.False(t, p.Classify(context.Background(), "text", "prompt?"))
	assert.True(t, p.HasKey(), "rate limiting must not invalidate the key")
}

func TestClassifyMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>nope</html>"},
		{"no choices", `{"choices":[]}`},
		{"embedded error", `{"error":{"type":"server_error","message":"oops"}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			})

			assert.False(t, p.Classify(context.Background(), "text", "prompt?"))
			assert.True(t, p.HasKey())
		})
	}
}

func TestClassifyServerUnreachable(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	assert.False(t, p.Classify(context.Background(), "text", "prompt?"))
	assert.True(t, p.HasKey())
}

func TestStringOmitsKey(t *testing.T) {
	p := NewOpenAIProvider("sk-secret", "gpt-4o-mini", 0, testLogger())
	assert.Equal(t, "openai(gpt-4o-mini)", p.String())
	assert.NotContains(t, p.String(), "sk-secret")
}

func TestIsYes(t *testing.T) {
	assert.True(t, isYes("YES"))
	assert.True(t, isYes("yes indeed"))
	assert.True(t, isYes("\n YES"))
	assert.False(t, isYes("NO"))
	assert.False(t, isYes("maybe"))
	assert.False(t, isYes(""))
}
