// Package codex adapts the OpenAI codex CLI via spawn-per-request
// `codex exec --json` invocations. The binary is a fast-starting native
// executable, so there is no warm-client pool; every request pays the small
// spawn cost and gets full process isolation in return.
package codex

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/internal/cliexec"
	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/llm/tokenizer"
	"github.com/Mathews-Tom/SubLLM/providers"
	"github.com/Mathews-Tom/SubLLM/types"
)

// Name is the backend id this provider registers under.
const Name = "codex"

const authProbeTimeout = 10 * time.Second

var modelAliases = map[string]string{
	"gpt-5.2":       "gpt-5.2",
	"gpt-5.2-codex": "gpt-5.2-codex",
	"gpt-4.1":       "gpt-4.1",
	"gpt-5-mini":    "gpt-5-mini",
}

var registerTokenizers sync.Once

// Provider routes completions through the codex CLI.
type Provider struct {
	cfg    providers.CodexConfig
	logger *zap.Logger
}

// New creates a codex provider. Tiktoken tokenizers for the gpt model family
// are registered once so usage estimation uses real encodings.
func New(cfg providers.CodexConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	registerTokenizers.Do(tokenizer.RegisterCodexTokenizers)
	return &Provider{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "provider.codex")),
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Models() []string {
	models := make([]string, 0, len(modelAliases))
	for alias := range modelAliases {
		models = append(models, alias)
	}
	sort.Strings(models)
	return models
}

func (p *Provider) ResolveModel(alias string) (string, bool) {
	m, ok := modelAliases[alias]
	return m, ok
}

// Capabilities: `codex exec` has no system prompt flag, so system text is
// folded into the prompt by the replay strategy, and headless resume is not
// exposed because its behavior is unreliable across CLI versions.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsStreaming:      true,
		SupportsNativeSessions: false,
		SupportsSystemPrompt:   false,
		SupportsVision:         false,
		MaxContextTokens:       200_000,
		SubscriptionAuth:       true,
		APIKeyAuth:             true,
	}
}

func (p *Provider) binary() string {
	return providers.BinaryPath(p.cfg.Path, "codex")
}

// CheckAuth: OPENAI_API_KEY short-circuits; otherwise `codex login status`
// answers in well under a second.
func (p *Provider) CheckAuth(ctx context.Context) llm.AuthStatus {
	status := llm.AuthStatus{Backend: Name, CheckedAt: time.Now()}

	if os.Getenv("OPENAI_API_KEY") != "" {
		status.Authenticated = true
		status.Method = llm.AuthMethodAPIKey
		return status
	}

	if !cliexec.LookPath(p.binary()) {
		status.Method = llm.AuthMethodNone
		status.Detail = "codex CLI not found at " + p.binary()
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, authProbeTimeout)
	defer cancel()
	if _, err := cliexec.Run(probeCtx, cliexec.Spec{
		Path: p.binary(),
		Args: []string{"login", "status"},
		Env:  p.cfg.Env,
	}); err != nil {
		status.Method = llm.AuthMethodNone
		status.Detail = "not logged in; run `codex login`"
		return status
	}

	status.Authenticated = true
	status.Method = llm.AuthMethodSubscription
	return status
}

func (p *Provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	events, opts, err := p.run(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Collect(events, opts)
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	events, opts, err := p.run(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Relay(events, opts), nil
}

func (p *Provider) run(ctx context.Context, req *llm.ChatRequest) (<-chan llm.Event, llm.NormalizeOptions, error) {
	model, ok := p.ResolveModel(req.Model)
	if !ok {
		return nil, llm.NormalizeOptions{}, types.Errorf(types.ErrUnknownModelAlias,
			"codex has no model alias %q", req.Model).WithBackend(Name)
	}

	payload, err := providers.ShapePrompt(req, p.Capabilities())
	if err != nil {
		return nil, llm.NormalizeOptions{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, providers.EffectiveTimeout(req.Timeout, p.cfg.Timeout))

	args := []string{"exec", payload.Prompt, "--model", model, "--full-auto", "--json"}
	args = append(args, providers.SplitArgs(p.cfg.ExtraArgs)...)

	s, err := cliexec.Spawn(runCtx, cliexec.Spec{
		Path: p.binary(),
		Args: args,
		Env:  p.cfg.Env,
	})
	if err != nil {
		cancel()
		return nil, llm.NormalizeOptions{}, providers.AsTyped(err).WithBackend(Name)
	}

	events := make(chan llm.Event)
	go func() {
		defer close(events)
		defer cancel()
		defer s.Release()

		state, terminal := parseStream(runCtx, s.Lines(), events)
		if terminal {
			return
		}
		if waitErr := s.Wait(runCtx); waitErr != nil {
			events <- llm.ErrorEvent(providers.AsTyped(waitErr).WithBackend(Name))
			return
		}
		end := llm.EndEvent()
		end.SessionID = state.threadID
		events <- end
	}()

	opts := llm.NormalizeOptions{
		Model:   Name + "/" + req.Model,
		Prompt:  payload.Prompt,
		Counter: tokenizer.GetTokenizerOrEstimator(model),
	}
	return events, opts, nil
}

// Close is a no-op: codex holds no long-lived resources.
func (p *Provider) Close() error { return nil }
