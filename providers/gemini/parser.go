package gemini

import (
	"context"
	"encoding/json"

	"github.com/Mathews-Tom/SubLLM/llm"
	"github.com/Mathews-Tom/SubLLM/providers"
	"github.com/Mathews-Tom/SubLLM/types"
)

// resultDocument is the CLI's single-document output under
// `--output-format json`.
type resultDocument struct {
	Response string       `json:"response"`
	Stats    *resultStats `json:"stats"`
	Error    *cliError    `json:"error"`
}

type cliError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type resultStats struct {
	Models map[string]modelStats `json:"models"`
}

type modelStats struct {
	Tokens tokenCounts `json:"tokens"`
}

// tokenCounts tolerates both field spellings the CLI has used across
// releases.
type tokenCounts struct {
	Input    int `json:"input"`
	Prompt   int `json:"prompt"`
	Output   int `json:"output"`
	Response int `json:"response"`
}

func (s *resultStats) totals() (promptTokens, completionTokens int) {
	if s == nil {
		return 0, 0
	}
	for _, m := range s.Models {
		promptTokens += max(m.Tokens.Input, m.Tokens.Prompt)
		completionTokens += max(m.Tokens.Output, m.Tokens.Response)
	}
	return promptTokens, completionTokens
}

// parseDocument converts one json-format result document into a terminated
// canonical event sequence.
func parseDocument(raw string) []llm.Event {
	var doc resultDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return []llm.Event{llm.ErrorEvent(types.Errorf(types.ErrMalformedOutput,
			"unparseable result document: %s", providers.Snippet(raw)).
			WithCause(err).WithBackend(Name))}
	}
	if doc.Error != nil && doc.Error.Message != "" {
		return []llm.Event{llm.ErrorEvent(
			types.NewError(types.ErrAbnormalExit, doc.Error.Message).WithBackend(Name))}
	}

	var events []llm.Event
	if doc.Response != "" {
		events = append(events, llm.DeltaEvent(doc.Response))
	}
	if p, c := doc.Stats.totals(); p > 0 || c > 0 {
		events = append(events, llm.UsageEvent(p, c))
	}
	return append(events, llm.EndEvent())
}

// streamEvent is one line of `--output-format stream-json` output.
type streamEvent struct {
	Type    string       `json:"type"`
	Role    string       `json:"role"`
	Content string       `json:"content"`
	Value   string       `json:"value"`
	Status  string       `json:"status"`
	Stats   *resultStats `json:"stats"`
}

// parseStream consumes stream-json lines until EOF or a terminal failure.
// terminal=true means an error event was already emitted; at plain EOF the
// caller inspects the process exit and emits the terminal itself.
func parseStream(ctx context.Context, lines <-chan string, events chan<- llm.Event) (terminal bool) {
	for {
		select {
		case <-ctx.Done():
			events <- llm.ErrorEvent(types.NewError(types.ErrTimeout,
				"turn deadline exceeded").WithCause(ctx.Err()).WithBackend(Name).WithRetryable(true))
			return true

		case line, open := <-lines:
			if !open {
				return false
			}
			if line == "" {
				continue
			}

			var ev streamEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				events <- llm.ErrorEvent(types.Errorf(types.ErrMalformedOutput,
					"unparseable stream event: %s", providers.Snippet(line)).
					WithCause(err).WithBackend(Name))
				return true
			}

			switch ev.Type {
			case "message":
				if ev.Role == "assistant" && ev.Content != "" {
					events <- llm.DeltaEvent(ev.Content)
				}
			case "content":
				if ev.Value != "" {
					events <- llm.DeltaEvent(ev.Value)
				}
			case "result":
				if p, c := ev.Stats.totals(); p > 0 || c > 0 {
					events <- llm.UsageEvent(p, c)
				}
			}
		}
	}
}
