// Package claudecode adapts the claude CLI. Plain requests are served by a
// pool of persistent stream-json clients (one warm subprocess per checkout,
// reused across turns); requests carrying a system prompt or a session id
// fall back to one-shot invocations, since those bind at process start.
package claudecode

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mathews-Tom/SubLLM/internal/cliexec"
	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/providers"
	"github.com/Mathews-Tom/SubLLM/types"
)

// Name is the backend id this provider registers under.
const Name = "claude-code"

const authProbeTimeout = 5 * time.Second

// forceSubscriptionEnv blanks ANTHROPIC_API_KEY for spawned processes so the
// CLI falls back to subscription OAuth even when a key is exported.
const forceSubscriptionEnv = "SUBLLM_FORCE_SUBSCRIPTION"

var modelAliases = map[string]string{
	"opus":       "claude-opus-4-6",
	"opus-4-6":   "claude-opus-4-6",
	"sonnet":     "claude-sonnet-4-5",
	"sonnet-4-5": "claude-sonnet-4-5",
	"haiku":      "claude-haiku-4-5",
	"haiku-4-5":  "claude-haiku-4-5",
}

// Provider routes completions through the claude CLI.
type Provider struct {
	cfg    providers.ClaudeCodeConfig
	logger *zap.Logger

	mu     sync.Mutex
	pools  map[string]*cliexec.ClientPool[*client]
	closed bool
}

// client is one persistent stream-json subprocess, checked out exclusively
// per turn.
type client struct {
	session *cliexec.Session
}

// New creates a claude-code provider.
func New(cfg providers.ClaudeCodeConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "provider.claude-code")),
		pools:  make(map[string]*cliexec.ClientPool[*client]),
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
		SupportsNativeSessions: true,
		SupportsSystemPrompt:   true,
		SupportsVision:         true,
		MaxContextTokens:       200_000,
		SubscriptionAuth:       true,
		APIKeyAuth:             true,
	}
}

func (p *Provider) binary() string {
	return providers.BinaryPath(p.cfg.Path, "claude")
}

// env builds the subprocess environment overlay. CLAUDECODE is blanked so
// spawning from inside an active claude session does not error.
func (p *Provider) env() map[string]string {
	env := map[string]string{"CLAUDECODE": ""}
	for k, v := range p.cfg.Env {
		env[k] = v
	}
	if os.Getenv(forceSubscriptionEnv) != "" {
		env["ANTHROPIC_API_KEY"] = ""
	}
	return env
}

// CheckAuth probes authentication without running inference: env credentials
// first, then binary presence, then the CLI's own fast status subcommand.
func (p *Provider) CheckAuth(ctx context.Context) llm.AuthStatus {
	status := llm.AuthStatus{Backend: Name, CheckedAt: time.Now()}

	if os.Getenv(forceSubscriptionEnv) == "" && os.Getenv("ANTHROPIC_API_KEY") != "" {
		status.Authenticated = true
		status.Method = llm.AuthMethodAPIKey
		return status
	}
	if os.Getenv("CLAUDE_CODE_OAUTH_TOKEN") != "" {
		status.Authenticated = true
		status.Method = llm.AuthMethodOAuthToken
		return status
	}

	if !cliexec.LookPath(p.binary()) {
		status.Method = llm.AuthMethodNone
		status.Detail = "claude CLI not found at " + p.binary()
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, authProbeTimeout)
	defer cancel()
	out, err := cliexec.Run(probeCtx, cliexec.Spec{
		Path: p.binary(),
		Args: []string{"auth", "status"},
		Env:  p.env(),
	})
	if err != nil {
		status.Method = llm.AuthMethodNone
		status.Detail = "not logged in; run `claude login`"
		return status
	}

	var probe struct {
		LoggedIn         bool   `json:"loggedIn"`
		SubscriptionType string `json:"subscriptionType"`
		AuthMethod       string `json:"authMethod"`
	}
	if jsonErr := json.Unmarshal([]byte(out), &probe); jsonErr != nil || !probe.LoggedIn {
		status.Method = llm.AuthMethodNone
		status.Detail = "not logged in; run `claude login`"
		return status
	}

	status.Authenticated = true
	status.Method = llm.AuthMethodSubscription
	status.Detail = probe.SubscriptionType
	return status
}

func (p *Provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	events, payload, err := p.run(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Collect(events, llm.NormalizeOptions{
		Model:  Name + "/" + req.Model,
		Prompt: payload.Prompt,
	})
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	events, payload, err := p.run(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Relay(events, llm.NormalizeOptions{
		Model:  Name + "/" + req.Model,
		Prompt: payload.Prompt,
	}), nil
}

// run dispatches one turn and returns its canonical event stream. Persistent
// clients bind model and system prompt at spawn, so only plain requests use
// the pool.
func (p *Provider) run(ctx context.Context, req *llm.ChatRequest) (<-chan llm.Event, llm.PromptPayload, error) {
	model, ok := p.ResolveModel(req.Model)
	if !ok {
		return nil, llm.PromptPayload{}, types.Errorf(types.ErrUnknownModelAlias,
			"claude-code has no model alias %q", req.Model).WithBackend(Name)
	}

	payload, err := providers.ShapePrompt(req, p.Capabilities())
	if err != nil {
		return nil, llm.PromptPayload{}, err
	}

	var events <-chan llm.Event
	if payload.SystemPrompt != "" || payload.SessionID != "" {
		events, err = p.oneShot(ctx, model, payload, req.Timeout)
	} else {
		events, err = p.pooled(ctx, model, payload, req.Timeout)
	}
	if err != nil {
		return nil, llm.PromptPayload{}, err
	}
	return events, payload, nil
}

func (p *Provider) oneShot(ctx context.Context, model string, payload llm.PromptPayload, timeout time.Duration) (<-chan llm.Event, error) {
	runCtx, cancel := context.WithTimeout(ctx, providers.EffectiveTimeout(timeout, p.cfg.Timeout))

	args := []string{
		"--print", "--verbose",
		"--output-format", "stream-json",
		"--model", model,
		"--max-turns", "1",
		"--permission-mode", "bypassPermissions",
	}
	if payload.SystemPrompt != "" {
		args = append(args, "--system-prompt", payload.SystemPrompt)
	}
	if payload.SessionID != "" {
		args = append(args, "--resume", payload.SessionID)
	}
	args = append(args, providers.SplitArgs(p.cfg.ExtraArgs)...)

	s, err := cliexec.Spawn(runCtx, cliexec.Spec{
		Path:  p.binary(),
		Args:  args,
		Env:   p.env(),
		Stdin: payload.Prompt,
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

		if terminal, _ := parseTurn(runCtx, s.Lines(), events); terminal {
			return
		}
		if waitErr := s.Wait(runCtx); waitErr != nil {
			events <- llm.ErrorEvent(providers.AsTyped(waitErr).WithBackend(Name))
			return
		}
		events <- llm.EndEvent()
	}()
	return events, nil
}

func (p *Provider) pooled(ctx context.Context, model string, payload llm.PromptPayload, timeout time.Duration) (<-chan llm.Event, error) {
	pl, err := p.pool(model)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, providers.EffectiveTimeout(timeout, p.cfg.Timeout))

	c, err := pl.Acquire(runCtx)
	if err != nil {
		cancel()
		return nil, providers.AsTyped(err).WithBackend(Name)
	}
	if err := c.session.Write(userRecord(payload.Prompt)); err != nil {
		pl.Discard(c)
		cancel()
		return nil, providers.AsTyped(err).WithBackend(Name)
	}

	events := make(chan llm.Event)
	go func() {
		defer close(events)
		defer cancel()

		terminal, healthy := parseTurn(runCtx, c.session.Lines(), events)
		if terminal {
			if healthy {
				pl.Release(c)
			} else {
				pl.Discard(c)
			}
			return
		}

		// stdout closed mid-turn: the persistent client died.
		waitErr := c.session.Wait(runCtx)
		pl.Discard(c)
		if waitErr == nil {
			waitErr = types.NewError(types.ErrBrokenPipe, "persistent client exited mid-turn")
		}
		events <- llm.ErrorEvent(providers.AsTyped(waitErr).WithBackend(Name))
	}()
	return events, nil
}

// pool returns the persistent-client pool for a resolved model, creating it
// on first use.
func (p *Provider) pool(model string) (*cliexec.ClientPool[*client], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, types.NewError(types.ErrInternalError, "provider is closed").WithBackend(Name)
	}
	if pl, ok := p.pools[model]; ok {
		return pl, nil
	}

	pl := cliexec.NewClientPool(p.cfg.PoolSize,
		func(ctx context.Context) (*client, error) {
			return p.spawnClient(ctx, model)
		},
		func(c *client) error {
			c.session.Release()
			return nil
		},
	)
	p.pools[model] = pl
	return pl, nil
}

func (p *Provider) spawnClient(_ context.Context, model string) (*client, error) {
	args := []string{
		"--print", "--verbose",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--model", model,
		"--permission-mode", "bypassPermissions",
	}
	args = append(args, providers.SplitArgs(p.cfg.ExtraArgs)...)

	// Persistent clients outlive individual request contexts; Release is the
	// only kill path.
	s, err := cliexec.Spawn(context.Background(), cliexec.Spec{
		Path:        p.binary(),
		Args:        args,
		Env:         p.env(),
		Interactive: true,
	})
	if err != nil {
		return nil, providers.AsTyped(err).WithBackend(Name)
	}
	p.logger.Debug("spawned persistent client", zap.String("model", model))
	return &client{session: s}, nil
}

// Close shuts down every persistent client pool.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for model, pl := range p.pools {
		_ = pl.Close()
		delete(p.pools, model)
	}
	return nil
}
