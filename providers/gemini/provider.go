// Package gemini adapts the Google gemini CLI via spawn-per-request headless
// invocations: `-p --output-format json` for completions and
// `--output-format stream-json` for streaming. Headless mode has no session
// resume, so every request replays its conversation statelessly.
package gemini

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/internal/cliexec"
	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/providers"
	"github.com/Mathews-Tom/SubLLM/types"
)

// Name is the backend id this provider registers under.
const Name = "gemini"

var modelAliases = map[string]string{
	"2.5-pro":     "gemini-2.5-pro",
	"2.5-flash":   "gemini-2.5-flash",
	"2.5-pro-exp": "gemini-2.5-pro-exp-03-25",
	"2.0-flash":   "gemini-2.0-flash",
	"pro":         "gemini-2.5-pro",
	"flash":       "gemini-2.5-flash",
}

// Provider routes completions through the gemini CLI.
type Provider struct {
	cfg    providers.GeminiConfig
	logger *zap.Logger
}

// New creates a gemini provider.
func New(cfg providers.GeminiConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "provider.gemini")),
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

func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsStreaming:      true,
		SupportsNativeSessions: false,
		SupportsSystemPrompt:   false,
		SupportsVision:         true,
		MaxContextTokens:       1_000_000,
		SubscriptionAuth:       true,
		APIKeyAuth:             true,
	}
}

func (p *Provider) binary() string {
	return providers.BinaryPath(p.cfg.Path, "gemini")
}

// CheckAuth: API keys short-circuit; otherwise binary presence plus a cached
// OAuth credential file counts as authenticated. No inference probe is run.
func (p *Provider) CheckAuth(_ context.Context) llm.AuthStatus {
	status := llm.AuthStatus{Backend: Name, CheckedAt: time.Now()}

	if os.Getenv("GEMINI_API_KEY") != "" {
		status.Authenticated = true
		status.Method = llm.AuthMethodAPIKey
		return status
	}
	if os.Getenv("GOOGLE_API_KEY") != "" {
		status.Authenticated = true
		status.Method = llm.AuthMethodAPIKey
		status.Detail = "GOOGLE_API_KEY"
		return status
	}

	if !cliexec.LookPath(p.binary()) {
		status.Method = llm.AuthMethodNone
		status.Detail = "gemini CLI not found at " + p.binary()
		return status
	}

	if home, err := os.UserHomeDir(); err == nil {
		if _, err := os.Stat(filepath.Join(home, ".gemini", "oauth_creds.json")); err == nil {
			status.Authenticated = true
			status.Method = llm.AuthMethodGoogleOAuth
			return status
		}
	}

	status.Method = llm.AuthMethodNone
	status.Detail = "not authenticated; run `gemini` to complete Google login or set GEMINI_API_KEY"
	return status
}

func (p *Provider) args(prompt, model, outputFormat string) []string {
	args := []string{"-p", prompt, "--model", model, "--output-format", outputFormat}
	if p.cfg.YoloMode {
		args = append(args, "--yolo")
	}
	return append(args, providers.SplitArgs(p.cfg.ExtraArgs)...)
}

func (p *Provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model, payload, err := p.resolve(req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, providers.EffectiveTimeout(req.Timeout, p.cfg.Timeout))
	defer cancel()

	out, err := cliexec.Run(runCtx, cliexec.Spec{
		Path: p.binary(),
		Args: p.args(payload.Prompt, model, "json"),
		Env:  p.cfg.Env,
	})
	if err != nil {
		return nil, providers.AsTyped(err).WithBackend(Name)
	}

	events := make(chan llm.Event, 4)
	for _, ev := range parseDocument(out) {
		events <- ev
	}
	close(events)

	return llm.Collect(events, llm.NormalizeOptions{
		Model:  Name + "/" + req.Model,
		Prompt: payload.Prompt,
	})
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	model, payload, err := p.resolve(req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, providers.EffectiveTimeout(req.Timeout, p.cfg.Timeout))

	s, err := cliexec.Spawn(runCtx, cliexec.Spec{
		Path: p.binary(),
		Args: p.args(payload.Prompt, model, "stream-json"),
		Env:  p.cfg.Env,
	})
	if err != nil {
		cancel()
		return nil, providers.AsTyped(err).WithBackend(Name)
	}

	events := make(chan llm.Event)
	go func() {
		defer close(events)
		defer cancel()
		defer s.Release()

		if parseStream(runCtx, s.Lines(), events) {
			return
		}
		if waitErr := s.Wait(runCtx); waitErr != nil {
			events <- llm.ErrorEvent(providers.AsTyped(waitErr).WithBackend(Name))
			return
		}
		events <- llm.EndEvent()
	}()

	return llm.Relay(events, llm.NormalizeOptions{
		Model:  Name + "/" + req.Model,
		Prompt: payload.Prompt,
	}), nil
}

func (p *Provider) resolve(req *llm.ChatRequest) (string, llm.PromptPayload, error) {
	model, ok := p.ResolveModel(req.Model)
	if !ok {
		return "", llm.PromptPayload{}, types.Errorf(types.ErrUnknownModelAlias,
			"gemini has no model alias %q", req.Model).WithBackend(Name)
	}
	payload, err := providers.ShapePrompt(req, p.Capabilities())
	if err != nil {
		return "", llm.PromptPayload{}, err
	}
	return model, payload, nil
}

// Close is a no-op: gemini holds no long-lived resources.
func (p *Provider) Close() error { return nil }
