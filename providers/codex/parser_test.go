package codex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/types"
)

func linesCh(lines ...string) <-chan string {
	ch := make(chan string, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return ch
}

func runParse(t *testing.T, ctx context.Context, lines <-chan string) ([]llm.Event, turnState, bool) {
	t.Helper()
	events := make(chan llm.Event, 16)
	state, terminal := parseStream(ctx, lines, events)
	close(events)
	var out []llm.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out, state, terminal
}

func TestParseStream_AgentMessagesAndUsage(t *testing.T) {
	t.Parallel()

	events, state, terminal := runParse(t, context.Background(), linesCh(
		`{"type":"thread.started","thread_id":"th-42"}`,
		`{"type":"turn.started"}`,
		`{"type":"item.completed","item":{"type":"agent_message","text":"The answer is 4."}}`,
		`{"type":"item.completed","item":{"type":"reasoning","text":"ignored"}}`,
		`{"type":"turn.completed","usage":{"input_tokens":10,"cached_input_tokens":2,"output_tokens":5}}`,
	))
	assert.False(t, terminal, "clean EOF leaves the terminal to the caller")
	assert.Equal(t, "th-42", state.threadID)
	require.Len(t, events, 2)

	assert.Equal(t, llm.EventContentDelta, events[0].Kind)
	assert.Equal(t, "The answer is 4.", events[0].Text)

	assert.Equal(t, llm.EventUsageUpdate, events[1].Kind)
	assert.Equal(t, 12, events[1].PromptTokens, "cached input tokens count toward the prompt")
	assert.Equal(t, 5, events[1].CompletionTokens)
	assert.Equal(t, "th-42", events[1].SessionID)
}

func TestParseStream_ErrorEventIsTerminal(t *testing.T) {
	t.Parallel()

	events, _, terminal := runParse(t, context.Background(), linesCh(
		`{"type":"item.completed","item":{"type":"agent_message","text":"partial"}}`,
		`{"type":"error","message":"stream disconnected before completion"}`,
		`{"type":"item.completed","item":{"type":"agent_message","text":"never parsed"}}`,
	))
	require.True(t, terminal)
	require.Len(t, events, 2)
	require.Equal(t, llm.EventError, events[1].Kind)
	assert.Equal(t, types.ErrAbnormalExit, events[1].Err.Code)
	assert.Contains(t, events[1].Err.Message, "stream disconnected")
	assert.Equal(t, Name, events[1].Err.Backend)
}

func TestParseStream_MalformedLineStops(t *testing.T) {
	t.Parallel()

	events, _, terminal := runParse(t, context.Background(), linesCh(
		`not json at all`,
	))
	require.True(t, terminal)
	require.Len(t, events, 1)
	assert.Equal(t, types.ErrMalformedOutput, events[0].Err.Code)
}

func TestParseStream_DeadlineEmitsTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events, _, terminal := runParse(t, ctx, make(chan string))
	require.True(t, terminal)
	require.Len(t, events, 1)
	assert.Equal(t, types.ErrTimeout, events[0].Err.Code)
}
