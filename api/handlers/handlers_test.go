package handlers

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/types"
)

// stubProvider is an in-memory backend for handler tests.
type stubProvider struct {
	name       string
	aliases    map[string]string
	caps       llm.Capabilities
	completeFn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	streamFn   func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)
	authed     bool
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Models() []string {
	out := make([]string, 0, len(p.aliases))
	for a := range p.aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (p *stubProvider) ResolveModel(alias string) (string, bool) {
	m, ok := p.aliases[alias]
	return m, ok
}

func (p *stubProvider) Capabilities() llm.Capabilities { return p.caps }

func (p *stubProvider) CheckAuth(ctx context.Context) llm.AuthStatus {
	method := llm.AuthMethodNone
	if p.authed {
		method = llm.AuthMethodSubscription
	}
	return llm.AuthStatus{
		Backend:       p.name,
		Authenticated: p.authed,
		Method:        method,
		CheckedAt:     time.Now(),
	}
}

func (p *stubProvider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.completeFn != nil {
		return p.completeFn(ctx, req)
	}
	resp := llm.NewChatResponse(req.Model)
	resp.Choices = []llm.ChatChoice{{
		Message:      types.NewAssistantMessage("stub reply"),
		FinishReason: llm.FinishStop,
	}}
	resp.Usage = llm.ChatUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}
	return resp, nil
}

func (p *stubProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if p.streamFn != nil {
		return p.streamFn(ctx, req)
	}
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.SynthesizeStream(resp), nil
}

func (p *stubProvider) Close() error { return nil }

func newStubProvider(name string) *stubProvider {
	return &stubProvider{
		name:    name,
		aliases: map[string]string{"sonnet": "claude-sonnet-4-5", "haiku": "claude-haiku-4-5"},
		caps: llm.Capabilities{
			SupportsStreaming:    true,
			SupportsSystemPrompt: true,
			MaxContextTokens:     200000,
			SubscriptionAuth:     true,
		},
		authed: true,
	}
}

func newTestRouter(providers ...llm.Provider) *llm.Router {
	registry := llm.NewProviderRegistry()
	for _, p := range providers {
		registry.Register(p)
	}
	return llm.NewRouter(registry, zap.NewNop())
}
