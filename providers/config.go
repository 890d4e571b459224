package providers

import (
	"time"

	"github.com/kballard/go-shellquote"
)

// DefaultTimeout bounds a single backend invocation when neither the request
// nor the provider config sets one. CLI backends run full agent turns, so
// this is generous compared to API latencies.
const DefaultTimeout = 5 * time.Minute

// ClaudeCodeConfig configures the claude-code backend.
type ClaudeCodeConfig struct {
	Path      string            `yaml:"path" env:"PATH"`
	ExtraArgs string            `yaml:"extra_args" env:"EXTRA_ARGS"`
	Env       map[string]string `yaml:"env"`
	Timeout   time.Duration     `yaml:"timeout" env:"TIMEOUT"`

	// PoolSize caps persistent clients per model. Zero means one.
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
}

// CodexConfig configures the codex backend.
type CodexConfig struct {
	Path      string            `yaml:"path" env:"PATH"`
	ExtraArgs string            `yaml:"extra_args" env:"EXTRA_ARGS"`
	Env       map[string]string `yaml:"env"`
	Timeout   time.Duration     `yaml:"timeout" env:"TIMEOUT"`
}

// GeminiConfig configures the gemini backend.
type GeminiConfig struct {
	Path      string            `yaml:"path" env:"PATH"`
	ExtraArgs string            `yaml:"extra_args" env:"EXTRA_ARGS"`
	Env       map[string]string `yaml:"env"`
	Timeout   time.Duration     `yaml:"timeout" env:"TIMEOUT"`

	// YoloMode passes --yolo, skipping the CLI's tool confirmations.
	YoloMode bool `yaml:"yolo_mode" env:"YOLO_MODE"`
}

// BinaryPath resolves the configured path with a fallback default.
func BinaryPath(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

// SplitArgs parses a shell-quoted extra_args string into argv elements.
// Malformed quoting yields no extra arguments rather than a partial parse.
func SplitArgs(s string) []string {
	if s == "" {
		return nil
	}
	args, err := shellquote.Split(s)
	if err != nil {
		return nil
	}
	return args
}

// EffectiveTimeout picks the per-request timeout: request override first,
// then provider config, then the package default.
func EffectiveTimeout(request, configured time.Duration) time.Duration {
	if request > 0 {
		return request
	}
	if configured > 0 {
		return configured
	}
	return DefaultTimeout
}
