package llm

import "context"

// Provider is the unified contract every backend adapter implements. A
// provider owns the execution surface for one backend family (subprocess per
// request or a pool of persistent clients) and is safe for concurrent use;
// concurrent requests never share a process or connection handle.
//
// To add a new backend:
//  1. Implement Provider (usually on top of internal/cliexec)
//  2. Declare Capabilities for what the backend supports
//  3. Register it with a ProviderRegistry consumed by the Router
type Provider interface {
	// Name returns the backend identifier used as the model prefix.
	Name() string

	// Models returns the supported model aliases, sorted.
	Models() []string

	// ResolveModel maps an alias to the backend-native model identifier.
	// Returns false if the alias is not in the provider's static table.
	ResolveModel(alias string) (string, bool)

	// Capabilities returns the static capability declaration.
	Capabilities() Capabilities

	// CheckAuth performs a fast, side-effect-free auth probe. It inspects
	// environment credentials and cached CLI login state; it never runs a
	// full inference call, so N backends can be probed in parallel with the
	// aggregate time bounded by the slowest single probe.
	CheckAuth(ctx context.Context) AuthStatus

	// Complete runs the request to completion and returns the normalized
	// response. Any error event in the underlying stream fails the whole
	// call; partial content is never presented as success.
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream runs the request and emits normalized chunks in arrival order.
	// The returned channel always ends with exactly one terminal chunk.
	// Cancelling ctx releases the underlying session immediately.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// Close releases long-lived resources (persistent client pools).
	Close() error
}
