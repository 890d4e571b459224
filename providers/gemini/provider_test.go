package gemini

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

func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gemini")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestProvider_ModelTable(t *testing.T) {
	t.Parallel()

	p := New(providers.GeminiConfig{}, nil)
	assert.Equal(t, Name, p.Name())

	pro, _ := p.ResolveModel("pro")
	versioned, _ := p.ResolveModel("2.5-pro")
	assert.Equal(t, "gemini-2.5-pro", pro)
	assert.Equal(t, pro, versioned)

	_, ok := p.ResolveModel("ultra")
	assert.False(t, ok)
}

func TestProvider_Capabilities(t *testing.T) {
	t.Parallel()

	caps := New(providers.GeminiConfig{}, nil).Capabilities()
	assert.True(t, caps.SupportsStreaming)
	assert.False(t, caps.SupportsNativeSessions, "headless mode cannot resume sessions")
	assert.True(t, caps.SupportsVision)
	assert.Equal(t, 1_000_000, caps.MaxContextTokens)
}

func TestCheckAuth_APIKeys(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key-a")
	t.Setenv("GOOGLE_API_KEY", "")

	status := New(providers.GeminiConfig{}, nil).CheckAuth(context.Background())
	assert.True(t, status.Authenticated)
	assert.Equal(t, llm.AuthMethodAPIKey, status.Method)

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "key-b")
	status = New(providers.GeminiConfig{}, nil).CheckAuth(context.Background())
	assert.True(t, status.Authenticated)
	assert.Equal(t, "GOOGLE_API_KEY", status.Detail)
}

func TestCheckAuth_OAuthCredsFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cli := fakeCLI(t, `exit 0`)

	status := New(providers.GeminiConfig{Path: cli}, nil).CheckAuth(context.Background())
	assert.False(t, status.Authenticated)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".gemini"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".gemini", "oauth_creds.json"), []byte("{}"), 0o600))

	status = New(providers.GeminiConfig{Path: cli}, nil).CheckAuth(context.Background())
	assert.True(t, status.Authenticated)
	assert.Equal(t, llm.AuthMethodGoogleOAuth, status.Method)
}

func TestComplete_ParsesResultDocument(t *testing.T) {
	t.Parallel()

	script := fakeCLI(t, `echo '{"response":"The answer is 4.","stats":{"models":{"gemini-2.5-flash":{"tokens":{"input":11,"output":6}}}}}'`)
	p := New(providers.GeminiConfig{Path: script}, nil)

	resp, err := p.Complete(context.Background(), &llm.ChatRequest{
		Model:    "flash",
		Messages: []types.Message{types.NewUserMessage("2+2?")},
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", resp.Choices[0].Message.Content)
	assert.Equal(t, llm.FinishStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 11, resp.Usage.PromptTokens)
	assert.Equal(t, 6, resp.Usage.CompletionTokens)
}

func TestComplete_AbnormalExit(t *testing.T) {
	t.Parallel()

	script := fakeCLI(t, `echo "auth expired" >&2; exit 1`)
	p := New(providers.GeminiConfig{Path: script}, nil)

	_, err := p.Complete(context.Background(), &llm.ChatRequest{
		Model:    "pro",
		Messages: []types.Message{types.NewUserMessage("q")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrAbnormalExit, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "auth expired")
}

func TestStream_ParsesStreamJSON(t *testing.T) {
	t.Parallel()

	script := fakeCLI(t, `
echo '{"type":"init","session_id":"s-1"}'
echo '{"type":"message","role":"assistant","content":"Hello ","delta":true}'
echo '{"type":"content","value":"world"}'
echo '{"type":"result","status":"success","stats":{"models":{"gemini-2.5-flash":{"tokens":{"input":3,"output":2}}}}}'
`)
	p := New(providers.GeminiConfig{Path: script}, nil)

	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Model:    "flash",
		Messages: []types.Message{types.NewUserMessage("hi")},
		Stream:   true,
	})
	require.NoError(t, err)

	var chunks []llm.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 3)
	assert.Equal(t, "Hello ", chunks[0].Delta.Content)
	assert.Equal(t, types.RoleAssistant, chunks[0].Delta.Role)
	assert.Equal(t, "world", chunks[1].Delta.Content)
	assert.True(t, chunks[2].Terminal())
	require.NotNil(t, chunks[2].Usage)
	assert.Equal(t, 5, chunks[2].Usage.TotalTokens)
}

func TestArgs_YoloMode(t *testing.T) {
	t.Parallel()

	p := New(providers.GeminiConfig{YoloMode: true, ExtraArgs: "--sandbox"}, nil)
	args := p.args("hi", "gemini-2.5-pro", "json")
	assert.Contains(t, args, "--yolo")
	assert.Contains(t, args, "--sandbox")
	assert.Equal(t, []string{"-p", "hi", "--model", "gemini-2.5-pro", "--output-format", "json"}, args[:6])
}
