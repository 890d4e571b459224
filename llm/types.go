package llm

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mathews-Tom/SubLLM/types"
)

// FinishReason describes how a completion ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishError     FinishReason = "error"
	FinishTruncated FinishReason = "truncated"
)

// ChatRequest is a normalized completion request. Model carries the
// backend-qualified identifier ("claude-code/sonnet") until the router
// resolves it; providers receive it rewritten to the bare alias.
type ChatRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`

	// SessionID opts in to the backend's native session continuation.
	// Native resume is an unreliable fast path on some backends; leaving it
	// empty selects stateless replay, which is always correct.
	SessionID string `json:"session_id,omitempty"`

	// Prompt is the shaped prompt payload. The router fills it in via the
	// replay strategy before delegating; providers consume it as-is and only
	// build it themselves when called directly.
	Prompt *PromptPayload `json:"-"`
}

// Validate checks the structural constraints of the request.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return types.NewError(types.ErrInvalidRequest, "messages must not be empty")
	}
	return nil
}

// ChatUsage reports best-effort token accounting. Estimated is true when no
// backend-reported usage ever arrived and the counts come from a tokenizer
// heuristic instead.
type ChatUsage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"-"`
}

// ChatChoice is one completion choice (always exactly one for CLI backends).
type ChatChoice struct {
	Index        int           `json:"index"`
	Message      types.Message `json:"message"`
	FinishReason FinishReason  `json:"finish_reason,omitempty"`
}

// ChatResponse is the normalized non-streaming response, shaped to match the
// OpenAI chat completion schema regardless of which backend served it.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`

	// SessionID is the backend's native session identifier when one was
	// reported; callers may feed it back via ChatRequest.SessionID.
	SessionID string `json:"session_id,omitempty"`
}

// NewChatResponse creates an empty response shell for the given model id.
func NewChatResponse(model string) *ChatResponse {
	return &ChatResponse{
		ID:      fmt.Sprintf("chatcmpl-%s", uuid.NewString()[:12]),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
	}
}

// Delta is the incremental payload of one stream chunk.
type Delta struct {
	Role    types.Role `json:"role,omitempty"`
	Content string     `json:"content,omitempty"`
}

// StreamChunk is one unit of normalized streaming output. A stream carries
// zero or more content chunks followed by exactly one terminal chunk: either
// FinishReason is set or Err is set, never both, never neither.
type StreamChunk struct {
	ID           string       `json:"id"`
	Object       string       `json:"object"`
	Created      int64        `json:"created"`
	Model        string       `json:"model"`
	Delta        Delta        `json:"delta"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *ChatUsage   `json:"usage,omitempty"`
	SessionID    string       `json:"session_id,omitempty"`
	Err          *types.Error `json:"error,omitempty"`
}

// Terminal reports whether this chunk ends the stream.
func (c *StreamChunk) Terminal() bool {
	return c.FinishReason != "" || c.Err != nil
}

// AuthMethod identifies how a backend is authenticated.
type AuthMethod string

const (
	AuthMethodSubscription AuthMethod = "subscription"
	AuthMethodAPIKey       AuthMethod = "api_key"
	AuthMethodOAuthToken   AuthMethod = "oauth_token"
	AuthMethodGoogleOAuth  AuthMethod = "google_oauth"
	AuthMethodNone         AuthMethod = "none"
)

// AuthStatus is the result of a single auth probe. It is never cached by the
// core; callers that want caching wrap CheckAuth externally.
type AuthStatus struct {
	Backend       string     `json:"backend"`
	Authenticated bool       `json:"authenticated"`
	Method        AuthMethod `json:"method"`
	Detail        string     `json:"detail,omitempty"`
	CheckedAt     time.Time  `json:"checked_at"`
}

// ModelInfo describes one routable model id.
type ModelInfo struct {
	ID      string `json:"id"`      // "backend/alias"
	Backend string `json:"backend"`
	Alias   string `json:"alias"`
	Model   string `json:"model"` // backend-native model identifier
}
