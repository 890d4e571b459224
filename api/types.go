package api

import (
	"time"

	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/types"
)

// ChatRequest is the body of POST /v1/chat/completions. Model must be the
// qualified "backend/alias" id; the router resolves it.
type ChatRequest struct {
	Model        string          `json:"model"`
	Messages     []types.Message `json:"messages"`
	Stream       bool            `json:"stream,omitempty"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	MaxTokens    int             `json:"max_tokens,omitempty"`
	Temperature  float32         `json:"temperature,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`

	// Timeout is a Go duration string ("90s", "5m"). Zero means the
	// provider's configured timeout applies.
	Timeout string `json:"timeout,omitempty"`
}

// ToLLMRequest converts the wire request into a core request.
func (r *ChatRequest) ToLLMRequest() (*llm.ChatRequest, error) {
	req := &llm.ChatRequest{
		Model:        r.Model,
		Messages:     r.Messages,
		Stream:       r.Stream,
		SystemPrompt: r.SystemPrompt,
		MaxTokens:    r.MaxTokens,
		Temperature:  r.Temperature,
		SessionID:    r.SessionID,
	}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil || d <= 0 {
			return nil, types.Errorf(types.ErrInvalidRequest,
				"timeout %q is not a positive duration", r.Timeout)
		}
		req.Timeout = d
	}
	return req, nil
}

// BatchRequest is the body of POST /v1/batch.
type BatchRequest struct {
	Requests []ChatRequest `json:"requests"`
	// Concurrency bounds simultaneous backend calls; zero selects the
	// server's configured default.
	Concurrency int `json:"concurrency,omitempty"`
}

// BatchItemResult is one element of the batch response, in input order.
// Exactly one of Response and Error is set.
type BatchItemResult struct {
	Index    int               `json:"index"`
	Response *llm.ChatResponse `json:"response,omitempty"`
	Error    *ErrorDetail      `json:"error,omitempty"`
}

// BatchResponse is the body of the batch endpoint response.
type BatchResponse struct {
	Items []BatchItemResult `json:"items"`
}

// ErrorDetail is the JSON error body, OpenAI-style nested under "error".
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Backend   string `json:"backend,omitempty"`
	Model     string `json:"model,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ErrorResponse wraps ErrorDetail for the response body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ModelEntry is one element of GET /v1/models.
type ModelEntry struct {
	ID      string `json:"id"` // "backend/alias"
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"` // backend name
	Model   string `json:"model"`    // backend-native identifier
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// HealthResponse is the body of GET /health: liveness plus the aggregated
// auth state of every registered backend.
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Backends  []llm.AuthStatus `json:"backends"`
}
