package claudecode

import (
	"context"
	"encoding/json"

	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/providers"
	"github.com/Mathews-Tom/SubLLM/types"
)

// streamRecord is one line of the claude CLI's stream-json output. Only the
// record kinds the adapter consumes are modeled; everything else (system
// init, tool traffic, echoed user turns) is skipped.
type streamRecord struct {
	Type      string         `json:"type"`
	Subtype   string         `json:"subtype"`
	SessionID string         `json:"session_id"`
	IsError   bool           `json:"is_error"`
	Result    string         `json:"result"`
	Message   *messageRecord `json:"message"`
	Usage     *usageRecord   `json:"usage"`
}

type messageRecord struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usageRecord struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// parseTurn consumes stdout lines for exactly one turn and emits canonical
// events. It returns once a terminal event has been emitted, or once lines
// closes without one (terminal=false; the caller inspects the process exit).
// healthy reports whether the underlying client can serve another turn.
func parseTurn(ctx context.Context, lines <-chan string, events chan<- llm.Event) (terminal, healthy bool) {
	for {
		select {
		case <-ctx.Done():
			events <- llm.ErrorEvent(types.NewError(types.ErrTimeout,
				"turn deadline exceeded").WithCause(ctx.Err()).WithBackend(Name).WithRetryable(true))
			return true, false

		case line, open := <-lines:
			if !open {
				return false, false
			}
			if line == "" {
				continue
			}

			var rec streamRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				events <- llm.ErrorEvent(types.Errorf(types.ErrMalformedOutput,
					"unparseable stream record: %s", providers.Snippet(line)).
					WithCause(err).WithBackend(Name))
				return true, false
			}

			switch rec.Type {
			case "assistant":
				if rec.Message == nil {
					continue
				}
				for _, block := range rec.Message.Content {
					if block.Type == "text" && block.Text != "" {
						events <- llm.DeltaEvent(block.Text)
					}
				}

			case "result":
				if rec.IsError {
					msg := rec.Result
					if msg == "" {
						msg = "backend reported error result (" + rec.Subtype + ")"
					}
					events <- llm.ErrorEvent(types.NewError(types.ErrAbnormalExit, msg).WithBackend(Name))
					return true, false
				}
				if rec.Usage != nil {
					ev := llm.UsageEvent(rec.Usage.InputTokens, rec.Usage.OutputTokens)
					ev.SessionID = rec.SessionID
					events <- ev
				}
				end := llm.EndEvent()
				end.SessionID = rec.SessionID
				events <- end
				return true, true
			}
		}
	}
}

// userRecord frames one prompt as a stream-json input record for a
// persistent client.
func userRecord(prompt string) string {
	rec := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role": "user",
			"content": []map[string]string{
				{"type": "text", "text": prompt},
			},
		},
	}
	b, _ := json.Marshal(rec)
	return string(b) + "\n"
}
