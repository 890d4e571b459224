package llm

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mathews-Tom/SubLLM/types"
)

// Router dispatches completion calls to the backend named by the model
// prefix. It is the only entry point other in-process layers (CLI, batch
// driver, HTTP adapter) call; the contract is stable regardless of which
// backend serves a given model id.
type Router struct {
	registry *ProviderRegistry
	logger   *zap.Logger
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *ProviderRegistry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		logger:   logger.With(zap.String("component", "router")),
	}
}

// Registry exposes the underlying registry for provider registration.
func (r *Router) Registry() *ProviderRegistry {
	return r.registry
}

// Resolve splits a "backend/alias" model id and returns the provider plus
// the alias. Both components are checked against static tables; resolving
// the same id twice always yields the same provider and model mapping.
func (r *Router) Resolve(model string) (Provider, string, error) {
	backend, alias, ok := strings.Cut(model, "/")
	if !ok || backend == "" || alias == "" {
		return nil, "", types.Errorf(types.ErrUnknownBackend,
			"model id %q is not of the form <backend>/<alias>", model)
	}

	p, ok := r.registry.Get(backend)
	if !ok {
		return nil, "", types.Errorf(types.ErrUnknownBackend,
			"no backend registered as %q (available: %s)",
			backend, strings.Join(r.registry.List(), ", "))
	}

	if _, ok := p.ResolveModel(alias); !ok {
		return nil, "", types.Errorf(types.ErrUnknownModelAlias,
			"backend %q has no model alias %q (available: %s)",
			backend, alias, strings.Join(p.Models(), ", ")).WithBackend(backend)
	}

	return p, alias, nil
}

// Capabilities returns the capability descriptor for a backend id.
func (r *Router) Capabilities(backend string) (Capabilities, error) {
	p, ok := r.registry.Get(backend)
	if !ok {
		return Capabilities{}, types.Errorf(types.ErrUnknownBackend,
			"no backend registered as %q", backend)
	}
	return p.Capabilities(), nil
}

// Completion runs a non-streaming request. The per-request state machine is
// strictly forward: resolved, then executing, then completed or failed.
func (r *Router) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	p, alias, shaped, err := r.prepare(req)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("request executing",
		zap.String("backend", p.Name()),
		zap.String("alias", alias),
		zap.Bool("stream", false),
	)

	start := time.Now()
	resp, err := p.Complete(ctx, shaped)
	if err != nil {
		r.logger.Warn("request failed",
			zap.String("backend", p.Name()),
			zap.String("alias", alias),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, r.wrap(err, p.Name(), alias)
	}

	r.logger.Info("request completed",
		zap.String("backend", p.Name()),
		zap.String("alias", alias),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Bool("usage_estimated", resp.Usage.Estimated),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// Stream runs a streaming request. For backends without native streaming the
// call completes synchronously and the result is synthesized as a
// single-chunk stream, so the contract holds for every capability set.
func (r *Router) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	p, alias, shaped, err := r.prepare(req)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("request executing",
		zap.String("backend", p.Name()),
		zap.String("alias", alias),
		zap.Bool("stream", true),
	)

	if !p.Capabilities().SupportsStreaming {
		resp, err := p.Complete(ctx, shaped)
		if err != nil {
			return nil, r.wrap(err, p.Name(), alias)
		}
		return SynthesizeStream(resp), nil
	}

	ch, err := p.Stream(ctx, shaped)
	if err != nil {
		return nil, r.wrap(err, p.Name(), alias)
	}
	return ch, nil
}

// prepare resolves the backend, checks capability gates, and shapes the
// prompt via the replay strategy. The provider receives a copy of the
// request with Model rewritten to the bare alias.
func (r *Router) prepare(req *ChatRequest) (Provider, string, *ChatRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, "", nil, err
	}

	p, alias, err := r.Resolve(req.Model)
	if err != nil {
		return nil, "", nil, err
	}

	caps := p.Capabilities()
	if hasImages(req.Messages) && !caps.SupportsVision {
		return nil, "", nil, types.Errorf(types.ErrInvalidRequest,
			"backend %q does not support image inputs", p.Name()).
			WithBackend(p.Name()).WithModel(alias)
	}

	payload, err := BuildPrompt(req, caps)
	if err != nil {
		return nil, "", nil, r.wrap(err, p.Name(), alias)
	}

	shaped := *req
	shaped.Model = alias
	shaped.Prompt = &payload
	return p, alias, &shaped, nil
}

// CheckAuth probes every registered backend in parallel. The aggregate time
// is bounded by the slowest single probe, not the sum; results come back in
// sorted backend name order.
func (r *Router) CheckAuth(ctx context.Context) []AuthStatus {
	names := r.registry.List()
	statuses := make([]AuthStatus, len(names))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		p, ok := r.registry.Get(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			statuses[i] = p.CheckAuth(ctx)
			return nil
		})
	}
	_ = g.Wait() // probes report via AuthStatus, never via error

	return statuses
}

// ListModels enumerates every routable "backend/alias" id, sorted.
func (r *Router) ListModels() []ModelInfo {
	var infos []ModelInfo
	for _, name := range r.registry.List() {
		p, ok := r.registry.Get(name)
		if !ok {
			continue
		}
		for _, alias := range p.Models() {
			resolved, _ := p.ResolveModel(alias)
			infos = append(infos, ModelInfo{
				ID:      name + "/" + alias,
				Backend: name,
				Alias:   alias,
				Model:   resolved,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Close releases every provider's long-lived resources.
func (r *Router) Close() error {
	var errs []error
	for _, name := range r.registry.List() {
		if p, ok := r.registry.Get(name); ok {
			if err := p.Close(); err != nil {
				r.logger.Warn("provider close failed", zap.String("backend", name), zap.Error(err))
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// wrap adds request context to an error without rewriting its code, so the
// originating layer stays visible to the caller.
func (r *Router) wrap(err error, backend, alias string) error {
	var e *types.Error
	if errors.As(err, &e) {
		if e.Backend == "" {
			e.Backend = backend
		}
		if e.Model == "" {
			e.Model = alias
		}
		return e
	}
	return types.NewError(types.ErrInternalError, "backend call failed").
		WithCause(err).WithBackend(backend).WithModel(alias)
}

func hasImages(msgs []types.Message) bool {
	for _, m := range msgs {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}
