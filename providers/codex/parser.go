package codex

import (
	"context"
	"encoding/json"

	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/providers"
	"github.com/Mathews-Tom/SubLLM/types"
)

// execEvent is one line of `codex exec --json` output. The CLI emits
// thread/turn/item lifecycle events; the adapter consumes completed agent
// messages, turn usage, and error records.
type execEvent struct {
	Type     string      `json:"type"`
	ThreadID string      `json:"thread_id"`
	Message  string      `json:"message"`
	Item     *execItem   `json:"item"`
	Usage    *tokenUsage `json:"usage"`
}

type execItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type tokenUsage struct {
	InputTokens       int `json:"input_tokens"`
	CachedInputTokens int `json:"cached_input_tokens"`
	OutputTokens      int `json:"output_tokens"`
}

// turnState carries what the parser learned beyond content.
type turnState struct {
	threadID string
}

// parseStream consumes the JSONL event stream until EOF or a terminal
// failure. terminal=true means an error event was already emitted; at plain
// EOF the caller inspects the process exit and emits the terminal itself.
func parseStream(ctx context.Context, lines <-chan string, events chan<- llm.Event) (state turnState, terminal bool) {
	for {
		select {
		case <-ctx.Done():
			events <- llm.ErrorEvent(types.NewError(types.ErrTimeout,
				"turn deadline exceeded").WithCause(ctx.Err()).WithBackend(Name).WithRetryable(true))
			return state, true

		case line, open := <-lines:
			if !open {
				return state, false
			}
			if line == "" {
				continue
			}

			var ev execEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				events <- llm.ErrorEvent(types.Errorf(types.ErrMalformedOutput,
					"unparseable exec event: %s", providers.Snippet(line)).
					WithCause(err).WithBackend(Name))
				return state, true
			}

			switch ev.Type {
			case "thread.started":
				state.threadID = ev.ThreadID

			case "item.completed":
				if ev.Item != nil && ev.Item.Type == "agent_message" && ev.Item.Text != "" {
					events <- llm.DeltaEvent(ev.Item.Text)
				}

			case "turn.completed":
				if ev.Usage != nil {
					usage := llm.UsageEvent(
						ev.Usage.InputTokens+ev.Usage.CachedInputTokens,
						ev.Usage.OutputTokens,
					)
					usage.SessionID = state.threadID
					events <- usage
				}

			case "error":
				msg := ev.Message
				if msg == "" {
					msg = "backend reported an error event"
				}
				events <- llm.ErrorEvent(types.NewError(types.ErrAbnormalExit, msg).WithBackend(Name))
				return state, true
			}
		}
	}
}
