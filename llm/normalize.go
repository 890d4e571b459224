package llm

import (
	"strings"

	"github.com/Mathews-Tom/SubLLM/llm/tokenizer"
	"github.com/Mathews-Tom/SubLLM/types"
)

// NormalizeOptions parameterizes event normalization for one request.
type NormalizeOptions struct {
	// Model is the backend-qualified model id stamped on responses.
	Model string

	// Prompt is the serialized prompt, used for usage estimation when the
	// backend never reported token counts.
	Prompt string

	// Counter estimates token counts; nil falls back to the char heuristic.
	Counter tokenizer.Tokenizer
}

func (o NormalizeOptions) counter() tokenizer.Tokenizer {
	if o.Counter != nil {
		return o.Counter
	}
	return tokenizer.NewEstimatorTokenizer(o.Model, 0)
}

func (o NormalizeOptions) estimate(text string) int {
	n, err := o.counter().CountTokens(text)
	if err != nil {
		// Heuristic of last resort: ~4 chars per token.
		return len(text) / 4
	}
	return n
}

// Collect fully drains a canonical event sequence into one ChatResponse.
// Content deltas are concatenated in arrival order; the last usage update
// wins, or usage is estimated when none arrived. Any error event fails the
// whole call with that error — partial content is discarded rather than
// silently presented as a truncated success.
func Collect(events <-chan Event, opts NormalizeOptions) (*ChatResponse, error) {
	var (
		content   strings.Builder
		usage     *ChatUsage
		sessionID string
	)

	for ev := range events {
		switch ev.Kind {
		case EventContentDelta:
			content.WriteString(ev.Text)
		case EventUsageUpdate:
			usage = &ChatUsage{
				PromptTokens:     ev.PromptTokens,
				CompletionTokens: ev.CompletionTokens,
				TotalTokens:      ev.PromptTokens + ev.CompletionTokens,
			}
			if ev.SessionID != "" {
				sessionID = ev.SessionID
			}
		case EventError:
			drain(events)
			return nil, ev.Err
		case EventEnd:
			if ev.SessionID != "" {
				sessionID = ev.SessionID
			}
		}
	}

	text := content.String()
	if usage == nil {
		p := opts.estimate(opts.Prompt)
		c := opts.estimate(text)
		usage = &ChatUsage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c, Estimated: true}
	}

	resp := NewChatResponse(opts.Model)
	resp.Choices = []ChatChoice{{
		Message:      types.NewAssistantMessage(text),
		FinishReason: FinishStop,
	}}
	resp.Usage = *usage
	resp.SessionID = sessionID
	return resp, nil
}

// Relay re-emits canonical events as normalized stream chunks immediately on
// arrival, preserving order. The output carries exactly one terminal chunk:
// a finish-reason chunk after a clean end, or an error chunk after a failure.
// An error after content was already delivered is surfaced as
// PARTIAL_STREAM_ERROR wrapping the original failure, never swallowed.
func Relay(events <-chan Event, opts NormalizeOptions) <-chan StreamChunk {
	out := make(chan StreamChunk)
	go func() {
		defer close(out)

		shell := NewChatResponse(opts.Model)
		base := StreamChunk{
			ID:      shell.ID,
			Object:  "chat.completion.chunk",
			Created: shell.Created,
			Model:   opts.Model,
		}

		var (
			usage     *ChatUsage
			sessionID string
			delivered int
		)

		for ev := range events {
			switch ev.Kind {
			case EventContentDelta:
				chunk := base
				chunk.Delta = Delta{Content: ev.Text}
				if delivered == 0 {
					chunk.Delta.Role = types.RoleAssistant
				}
				delivered++
				out <- chunk
			case EventUsageUpdate:
				usage = &ChatUsage{
					PromptTokens:     ev.PromptTokens,
					CompletionTokens: ev.CompletionTokens,
					TotalTokens:      ev.PromptTokens + ev.CompletionTokens,
				}
				if ev.SessionID != "" {
					sessionID = ev.SessionID
				}
			case EventError:
				drain(events)
				chunk := base
				err := ev.Err
				if delivered > 0 {
					err = types.NewError(types.ErrPartialStream,
						"stream failed after partial output").WithCause(ev.Err)
					err.Backend = ev.Err.Backend
					err.Model = ev.Err.Model
				}
				chunk.Err = err
				out <- chunk
				return
			case EventEnd:
				if ev.SessionID != "" {
					sessionID = ev.SessionID
				}
				chunk := base
				chunk.FinishReason = FinishStop
				chunk.Usage = usage
				chunk.SessionID = sessionID
				out <- chunk
				return
			}
		}

		// Event source closed without a terminal event. Parsers should not
		// do this; surface it rather than ending the stream silently.
		chunk := base
		chunk.Err = types.NewError(types.ErrInternalError, "event stream ended without terminal event")
		out <- chunk
	}()
	return out
}

// SynthesizeStream converts a completed response into a single-chunk stream.
// Used for backends that cannot stream natively, so the streaming contract
// holds for every capability combination.
func SynthesizeStream(resp *ChatResponse) <-chan StreamChunk {
	out := make(chan StreamChunk, 2)
	base := StreamChunk{
		ID:      resp.ID,
		Object:  "chat.completion.chunk",
		Created: resp.Created,
		Model:   resp.Model,
	}
	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		chunk := base
		chunk.Delta = Delta{Role: types.RoleAssistant, Content: resp.Choices[0].Message.Content}
		out <- chunk
	}
	final := base
	final.FinishReason = FinishStop
	usage := resp.Usage
	final.Usage = &usage
	final.SessionID = resp.SessionID
	out <- final
	close(out)
	return out
}

// drain consumes any remaining events so the producing goroutine can exit.
func drain(events <-chan Event) {
	for range events {
	}
}
