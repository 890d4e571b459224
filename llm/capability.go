package llm

// Capabilities declares what a backend supports. It is pure data, loaded once
// when the provider is constructed and never mutated by requests. The router
// and the replay strategy branch on these flags explicitly; there is no
// runtime feature probing.
type Capabilities struct {
	// SupportsStreaming: the backend can emit incremental output. Backends
	// without it get a synthesized single-chunk stream from the normalizer.
	SupportsStreaming bool `json:"supports_streaming"`

	// SupportsNativeSessions: the backend can resume a prior conversation
	// from a session identifier. Treated as an optional fast path only; the
	// stateless replay strategy remains the default.
	SupportsNativeSessions bool `json:"supports_native_sessions"`

	// SupportsSystemPrompt: the backend has a native system prompt channel.
	// Without it, system messages are prepended to the flattened prompt.
	SupportsSystemPrompt bool `json:"supports_system_prompt"`

	// SupportsVision: the backend accepts image inputs.
	SupportsVision bool `json:"supports_vision"`

	// MaxContextTokens is the backend's advertised context window.
	MaxContextTokens int `json:"max_context_tokens"`

	// SubscriptionAuth / APIKeyAuth describe which credential mechanisms the
	// backend's own tooling accepts. The core only probes, never manages.
	SubscriptionAuth bool `json:"subscription_auth"`
	APIKeyAuth       bool `json:"api_key_auth"`
}
