package claudecode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/providers"
	"github.com/Mathews-Tom/SubLLM/types"
)

// fakeCLI writes an executable shell script standing in for the claude
// binary.
func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// persistentScript behaves like a stream-json client: one assistant record
// and one result record per input line, staying alive between turns.
const persistentScript = `
while read -r line; do
  echo '{"type":"assistant","message":{"content":[{"type":"text","text":"pooled answer"}]}}'
  echo '{"type":"result","subtype":"success","is_error":false,"session_id":"sess-p1","usage":{"input_tokens":6,"output_tokens":3}}'
done
`

// oneShotScript consumes the prompt from stdin, emits a turn, and exits.
const oneShotScript = `
cat > /dev/null
echo '{"type":"assistant","message":{"content":[{"type":"text","text":"one-shot answer"}]}}'
echo '{"type":"result","subtype":"success","is_error":false,"session_id":"sess-o1","usage":{"input_tokens":9,"output_tokens":4}}'
`

func TestProvider_ModelTable(t *testing.T) {
	t.Parallel()

	p := New(providers.ClaudeCodeConfig{}, nil)
	assert.Equal(t, Name, p.Name())

	for _, alias := range p.Models() {
		_, ok := p.ResolveModel(alias)
		assert.True(t, ok, "listed alias %s must resolve", alias)
	}

	short, _ := p.ResolveModel("sonnet")
	versioned, _ := p.ResolveModel("sonnet-4-5")
	assert.Equal(t, short, versioned, "multiple aliases map to one model")

	_, ok := p.ResolveModel("nonexistent")
	assert.False(t, ok)
}

func TestProvider_Capabilities(t *testing.T) {
	t.Parallel()

	caps := New(providers.ClaudeCodeConfig{}, nil).Capabilities()
	assert.True(t, caps.SupportsStreaming)
	assert.True(t, caps.SupportsNativeSessions)
	assert.True(t, caps.SupportsSystemPrompt)
	assert.True(t, caps.SupportsVision)
	assert.Equal(t, 200_000, caps.MaxContextTokens)
}

func TestCheckAuth_APIKeyShortCircuits(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv(forceSubscriptionEnv, "")

	status := New(providers.ClaudeCodeConfig{}, nil).CheckAuth(context.Background())
	assert.True(t, status.Authenticated)
	assert.Equal(t, llm.AuthMethodAPIKey, status.Method)
	assert.False(t, status.CheckedAt.IsZero())
}

func TestCheckAuth_ForceSubscriptionIgnoresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CLAUDE_CODE_OAUTH_TOKEN", "")
	t.Setenv(forceSubscriptionEnv, "1")

	cli := fakeCLI(t, `echo '{"loggedIn":true,"subscriptionType":"max"}'`)
	status := New(providers.ClaudeCodeConfig{Path: cli}, nil).CheckAuth(context.Background())
	assert.True(t, status.Authenticated)
	assert.Equal(t, llm.AuthMethodSubscription, status.Method)
	assert.Equal(t, "max", status.Detail)
}

func TestCheckAuth_OAuthToken(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_CODE_OAUTH_TOKEN", "tok-test")

	status := New(providers.ClaudeCodeConfig{}, nil).CheckAuth(context.Background())
	assert.True(t, status.Authenticated)
	assert.Equal(t, llm.AuthMethodOAuthToken, status.Method)
}

func TestCheckAuth_MissingBinary(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_CODE_OAUTH_TOKEN", "")

	status := New(providers.ClaudeCodeConfig{Path: "/nonexistent/claude"}, nil).CheckAuth(context.Background())
	assert.False(t, status.Authenticated)
	assert.Contains(t, status.Detail, "not found")
}

func TestCheckAuth_NotLoggedIn(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_CODE_OAUTH_TOKEN", "")

	cli := fakeCLI(t, `echo '{"loggedIn":false}'`)
	status := New(providers.ClaudeCodeConfig{Path: cli}, nil).CheckAuth(context.Background())
	assert.False(t, status.Authenticated)
	assert.Contains(t, status.Detail, "claude login")
}

func TestComplete_PooledClient(t *testing.T) {
	t.Parallel()

	p := New(providers.ClaudeCodeConfig{Path: fakeCLI(t, persistentScript)}, nil)
	defer p.Close()

	req := &llm.ChatRequest{
		Model:    "sonnet",
		Messages: []types.Message{types.NewUserMessage("2+2?")},
	}

	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "pooled answer", resp.Choices[0].Message.Content)
	assert.Equal(t, llm.FinishStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 6, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
	assert.False(t, resp.Usage.Estimated)
	assert.Equal(t, "sess-p1", resp.SessionID)

	// The second turn reuses the warm client rather than respawning.
	_, err = p.Complete(context.Background(), req)
	require.NoError(t, err)
	pl, poolErr := p.pool("claude-sonnet-4-5")
	require.NoError(t, poolErr)
	assert.Equal(t, int64(1), pl.Stats().Creates)
	assert.Equal(t, int64(2), pl.Stats().Acquires)
}

func TestComplete_SystemPromptUsesOneShot(t *testing.T) {
	t.Parallel()

	p := New(providers.ClaudeCodeConfig{Path: fakeCLI(t, oneShotScript)}, nil)
	defer p.Close()

	resp, err := p.Complete(context.Background(), &llm.ChatRequest{
		Model:        "opus",
		SystemPrompt: "be terse",
		Messages:     []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "one-shot answer", resp.Choices[0].Message.Content)
	assert.Equal(t, "sess-o1", resp.SessionID)
}

func TestStream_PooledClient(t *testing.T) {
	t.Parallel()

	p := New(providers.ClaudeCodeConfig{Path: fakeCLI(t, persistentScript)}, nil)
	defer p.Close()

	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Model:    "haiku",
		Messages: []types.Message{types.NewUserMessage("hello")},
		Stream:   true,
	})
	require.NoError(t, err)

	var chunks []llm.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "pooled answer", chunks[0].Delta.Content)
	assert.Equal(t, types.RoleAssistant, chunks[0].Delta.Role)
	assert.True(t, chunks[1].Terminal())
	assert.Equal(t, llm.FinishStop, chunks[1].FinishReason)
	assert.Equal(t, "sess-p1", chunks[1].SessionID)
}

func TestComplete_ClientCrashMidTurn(t *testing.T) {
	t.Parallel()

	crash := fakeCLI(t, `
read -r line
echo '{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}'
echo "boom" >&2
exit 2
`)
	p := New(providers.ClaudeCodeConfig{Path: crash}, nil)
	defer p.Close()

	_, err := p.Complete(context.Background(), &llm.ChatRequest{
		Model:    "sonnet",
		Messages: []types.Message{types.NewUserMessage("q")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrAbnormalExit, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestComplete_UnknownAliasWhenCalledDirectly(t *testing.T) {
	t.Parallel()

	p := New(providers.ClaudeCodeConfig{}, nil)
	_, err := p.Complete(context.Background(), &llm.ChatRequest{
		Model:    "no-such-alias",
		Messages: []types.Message{types.NewUserMessage("q")},
	})
	assert.Equal(t, types.ErrUnknownModelAlias, types.GetErrorCode(err))
}
