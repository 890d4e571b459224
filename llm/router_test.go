package llm

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/types"
)

// fakeProvider is an in-memory Provider for router and batch tests.
type fakeProvider struct {
	name       string
	aliases    map[string]string
	caps       Capabilities
	completeFn func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	streamFn   func(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	authDelay  time.Duration

	mu       sync.Mutex
	lastReq  *ChatRequest
	closed   bool
	requests int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Models() []string {
	models := make([]string, 0, len(f.aliases))
	for alias := range f.aliases {
		models = append(models, alias)
	}
	sort.Strings(models)
	return models
}

func (f *fakeProvider) ResolveModel(alias string) (string, bool) {
	m, ok := f.aliases[alias]
	return m, ok
}

func (f *fakeProvider) Capabilities() Capabilities { return f.caps }

func (f *fakeProvider) CheckAuth(ctx context.Context) AuthStatus {
	if f.authDelay > 0 {
		select {
		case <-time.After(f.authDelay):
		case <-ctx.Done():
		}
	}
	return AuthStatus{
		Backend:       f.name,
		Authenticated: true,
		Method:        AuthMethodAPIKey,
		CheckedAt:     time.Now(),
	}
}

func (f *fakeProvider) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.lastReq = req
	f.requests++
	f.mu.Unlock()
	if f.completeFn != nil {
		return f.completeFn(ctx, req)
	}
	resp := NewChatResponse(f.name + "/" + req.Model)
	resp.Choices = []ChatChoice{{Message: types.NewAssistantMessage("ok"), FinishReason: FinishStop}}
	return resp, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	if f.streamFn != nil {
		return f.streamFn(ctx, req)
	}
	return Relay(feedEvents(DeltaEvent("ok"), EndEvent()),
		NormalizeOptions{Model: f.name + "/" + req.Model}), nil
}

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestRouter(providers ...Provider) *Router {
	reg := NewProviderRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	return NewRouter(reg, zap.NewNop())
}

func claudeLikeFake() *fakeProvider {
	return &fakeProvider{
		name: "claude-code",
		aliases: map[string]string{
			"opus":   "claude-opus-4-6",
			"sonnet": "claude-sonnet-4-5",
			"haiku":  "claude-haiku-4-5",
		},
		caps: Capabilities{
			SupportsStreaming:      true,
			SupportsNativeSessions: true,
			SupportsSystemPrompt:   true,
			SupportsVision:         true,
			MaxContextTokens:       200_000,
		},
	}
}

func TestRouter_ResolveAllTableEntries(t *testing.T) {
	t.Parallel()

	claude := claudeLikeFake()
	codex := &fakeProvider{
		name:    "codex",
		aliases: map[string]string{"gpt-5.2": "gpt-5.2", "gpt-5-mini": "gpt-5-mini"},
		caps:    Capabilities{SupportsStreaming: true, SupportsSystemPrompt: true},
	}
	r := newTestRouter(claude, codex)

	for _, info := range r.ListModels() {
		p, alias, err := r.Resolve(info.ID)
		require.NoError(t, err, "model %s must resolve", info.ID)
		assert.Equal(t, info.Backend, p.Name())
		assert.Equal(t, info.Alias, alias)
	}
}

func TestRouter_ResolveIsIdempotent(t *testing.T) {
	t.Parallel()

	r := newTestRouter(claudeLikeFake())

	p1, a1, err := r.Resolve("claude-code/sonnet")
	require.NoError(t, err)
	p2, a2, err := r.Resolve("claude-code/sonnet")
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, a1, a2)

	c1, err := r.Capabilities("claude-code")
	require.NoError(t, err)
	c2, err := r.Capabilities("claude-code")
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestRouter_ResolveFailures(t *testing.T) {
	t.Parallel()

	r := newTestRouter(claudeLikeFake())

	_, _, err := r.Resolve("unknown/sonnet")
	assert.Equal(t, types.ErrUnknownBackend, types.GetErrorCode(err))

	_, _, err = r.Resolve("claude-code/nonexistent")
	assert.Equal(t, types.ErrUnknownModelAlias, types.GetErrorCode(err))

	_, _, err = r.Resolve("no-separator")
	assert.Equal(t, types.ErrUnknownBackend, types.GetErrorCode(err))

	_, err2 := r.Capabilities("unknown")
	assert.Equal(t, types.ErrUnknownBackend, types.GetErrorCode(err2))
}

func TestRouter_CompletionShapesPrompt(t *testing.T) {
	t.Parallel()

	claude := claudeLikeFake()
	r := newTestRouter(claude)

	_, err := r.Completion(context.Background(), &ChatRequest{
		Model: "claude-code/sonnet",
		Messages: []types.Message{
			types.NewUserMessage("hello"),
			types.NewAssistantMessage("hi"),
			types.NewUserMessage("more"),
		},
	})
	require.NoError(t, err)

	claude.mu.Lock()
	got := claude.lastReq
	claude.mu.Unlock()
	require.NotNil(t, got)
	assert.Equal(t, "sonnet", got.Model, "provider receives the bare alias")
	require.NotNil(t, got.Prompt)
	assert.Contains(t, got.Prompt.Prompt, "Previous conversation:")
}

func TestRouter_CompletionHealthyBackend(t *testing.T) {
	t.Parallel()

	claude := claudeLikeFake()
	claude.completeFn = func(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
		resp := NewChatResponse("claude-code/" + req.Model)
		resp.Choices = []ChatChoice{{Message: types.NewAssistantMessage("4"), FinishReason: FinishStop}}
		return resp, nil
	}
	r := newTestRouter(claude)

	resp, err := r.Completion(context.Background(), &ChatRequest{
		Model:    "claude-code/sonnet",
		Messages: []types.Message{types.NewUserMessage("2+2?")},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Choices[0].Message.Content)
	assert.Equal(t, FinishStop, resp.Choices[0].FinishReason)
}

func TestRouter_CompletionWrapsErrorsWithContext(t *testing.T) {
	t.Parallel()

	claude := claudeLikeFake()
	claude.completeFn = func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return nil, types.NewError(types.ErrAbnormalExit, "exit status 1 with no parseable error record")
	}
	r := newTestRouter(claude)

	resp, err := r.Completion(context.Background(), &ChatRequest{
		Model:    "claude-code/sonnet",
		Messages: []types.Message{types.NewUserMessage("2+2?")},
	})
	assert.Nil(t, resp)

	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.ErrAbnormalExit, e.Code, "originating code must not be rewritten")
	assert.Equal(t, "claude-code", e.Backend)
	assert.Equal(t, "sonnet", e.Model)
}

func TestRouter_VisionCapabilityGate(t *testing.T) {
	t.Parallel()

	codex := &fakeProvider{
		name:    "codex",
		aliases: map[string]string{"gpt-5.2": "gpt-5.2"},
		caps:    Capabilities{SupportsStreaming: true, SupportsSystemPrompt: true, SupportsVision: false},
	}
	r := newTestRouter(codex)

	_, err := r.Completion(context.Background(), &ChatRequest{
		Model: "codex/gpt-5.2",
		Messages: []types.Message{
			types.NewUserMessage("what is this?").WithImages([]types.ImageContent{{Type: "url", URL: "x"}}),
		},
	})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestRouter_StreamSynthesizedForNonStreamingBackend(t *testing.T) {
	t.Parallel()

	fixed := &fakeProvider{
		name:    "custom",
		aliases: map[string]string{"fixed": "fixed-1"},
		caps:    Capabilities{SupportsStreaming: false, SupportsSystemPrompt: true},
		completeFn: func(context.Context, *ChatRequest) (*ChatResponse, error) {
			resp := NewChatResponse("custom/fixed")
			resp.Choices = []ChatChoice{{Message: types.NewAssistantMessage("whole answer"), FinishReason: FinishStop}}
			return resp, nil
		},
	}
	r := newTestRouter(fixed)

	ch, err := r.Stream(context.Background(), &ChatRequest{
		Model:    "custom/fixed",
		Messages: []types.Message{types.NewUserMessage("q")},
		Stream:   true,
	})
	require.NoError(t, err)

	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "whole answer", chunks[0].Delta.Content)
	assert.True(t, chunks[1].Terminal())
}

func TestRouter_CheckAuthRunsProbesInParallel(t *testing.T) {
	t.Parallel()

	delay := 100 * time.Millisecond
	a := &fakeProvider{name: "a", aliases: map[string]string{"m": "m"}, authDelay: delay}
	b := &fakeProvider{name: "b", aliases: map[string]string{"m": "m"}, authDelay: delay}
	c := &fakeProvider{name: "c", aliases: map[string]string{"m": "m"}, authDelay: delay}
	r := newTestRouter(a, b, c)

	start := time.Now()
	statuses := r.CheckAuth(context.Background())
	elapsed := time.Since(start)

	require.Len(t, statuses, 3)
	assert.Equal(t, "a", statuses[0].Backend)
	assert.Equal(t, "b", statuses[1].Backend)
	assert.Equal(t, "c", statuses[2].Backend)
	// Bounded by the slowest single probe, not the sum.
	assert.Less(t, elapsed, 3*delay)
}

func TestRouter_CloseClosesAllProviders(t *testing.T) {
	t.Parallel()

	a := claudeLikeFake()
	b := &fakeProvider{name: "codex", aliases: map[string]string{"m": "m"}}
	r := newTestRouter(a, b)

	require.NoError(t, r.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestRouter_ListModelsSorted(t *testing.T) {
	t.Parallel()

	r := newTestRouter(claudeLikeFake(), &fakeProvider{
		name:    "codex",
		aliases: map[string]string{"gpt-5.2": "gpt-5.2"},
	})

	infos := r.ListModels()
	require.Len(t, infos, 4)
	assert.True(t, sort.SliceIsSorted(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID }))
	assert.Equal(t, "claude-code/haiku", infos[0].ID)
	assert.Equal(t, "claude-sonnet-4-5", infos[2].Model)
}
