package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	openAIEndpoint = "https://api.openai.com/v1/chat/completions"

	// DefaultModel is the classifier model used unless configured otherwise.
	DefaultModel = "gpt-3.5-turbo"

	// verdictSuffix is appended to every exclusion prompt so the model's
	// answer can be parsed by prefix.
	verdictSuffix = " Start your response with 'YES' or 'NO'."

	// maxVerdictTokens caps the response length; a verdict only needs the
	// leading YES or NO.
	maxVerdictTokens = 5
)

// DefaultTimeout bounds a single classification call. The upstream protocol
// specifies no timeout of its own; these are max_tokens=5 yes/no completions,
// so 30 seconds is already generous. There are no retries - a failed call
// counts as NO and the next scan may try again.
const DefaultTimeout = 30 * time.Second

// OpenAIProvider asks the OpenAI chat-completions API yes/no questions
// about post text. It owns credential-validity tracking: an authorization
// failure drops the held key, and every later call short-circuits until the
// provider is rebuilt from fresh configuration.
type OpenAIProvider struct {
	mu       sync.RWMutex
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

// NewOpenAIProvider creates a provider holding the given credential.
// An empty or invalid key yields a provider that reports HasKey false.
func NewOpenAIProvider(apiKey, model string, timeout time.Duration, log *slog.Logger) *OpenAIProvider {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenAIProvider{
		apiKey:   apiKey,
		model:    model,
		endpoint: openAIEndpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// HasKey reports whether the provider currently holds a credential.
func (p *OpenAIProvider) HasKey() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.apiKey != ""
}

// invalidateKey drops the held credential after an authorization failure.
func (p *OpenAIProvider) invalidateKey() {
	p.mu.Lock()
	p.apiKey = ""
	p.mu.Unlock()
}

// chatRequest represents the request body for the chat completions API
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

// chatMessage represents one message in the conversation
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents the response from the chat completions API
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Classify asks whether text matches the exclusion prompt. It never fails
// toward concealment: every error path - missing key, authorization
// failure, rate limit, transport error, malformed response - resolves to
// false, so unavailable classification shows content rather than hiding it.
func (p *OpenAIProvider) Classify(ctx context.Context, text, prompt string) bool {
	p.mu.RLock()
	apiKey := p.apiKey
	model := p.model
	p.mu.RUnlock()

	if apiKey == "" {
		return false
	}

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt + verdictSuffix},
			{Role: "user", Content: "Tweet: " + text},
		},
		MaxTokens: maxVerdictTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		p.log.Error("failed to marshal classifier request", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		p.log.Error("failed to create classifier request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("classifier call failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Warn("failed to read classifier response", "error", err)
		return false
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Key is bad. Behave as unconfigured until the user sets a new one.
		p.log.Error("classifier rejected credential, invalidating key", "status", resp.StatusCode)
		p.invalidateKey()
		return false
	}

	if resp.StatusCode != http.StatusOK {
		p.log.Warn("classifier returned error status",
			"status", resp.StatusCode, "body", truncate(string(body), 200))
		return false
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		p.log.Warn("failed to parse classifier response", "error", err)
		return false
	}
	if chatResp.Error != nil {
		p.log.Warn("classifier API error",
			"type", chatResp.Error.Type, "message", chatResp.Error.Message)
		return false
	}
	if len(chatResp.Choices) == 0 {
		p.log.Warn("classifier returned no choices")
		return false
	}

	return isYes(chatResp.Choices[0].Message.Content)
}

// isYes reports whether a verdict text answers in the affirmative.
// Anything other than a leading YES - including NO, empty, and free-form
// text - is a negative verdict.
func isYes(verdict string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(verdict)), "YES")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// String implements fmt.Stringer without leaking the credential.
func (p *OpenAIProvider) String() string {
	return fmt.Sprintf("openai(%s)", p.model)
}
