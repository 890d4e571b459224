package llm

import (
	"strings"

	"github.com/Mathews-Tom/SubLLM/types"
)

// Transcript labels. The flattening format is deterministic so that multi-turn
// context survives backends without reliable native sessions: prior turns are
// enumerated under a "Previous conversation" block and the newest user turn
// goes under "Current request". ParseTranscript inverts the format.
const (
	previousHeader = "Previous conversation:"
	currentHeader  = "Current request:"
	userLabel      = "[User]: "
	assistantLabel = "[Assistant]: "
	systemLabel    = "[System]: "
)

// PromptPayload is the shaped input handed to a backend session.
type PromptPayload struct {
	// Prompt is the serialized prompt text: the full flattened transcript on
	// the stateless path, or only the newest user turn on the native path.
	Prompt string

	// SystemPrompt carries system text for backends with a native system
	// prompt mechanism. Empty when the system text was folded into Prompt.
	SystemPrompt string

	// SessionID is non-empty only on the native continuation path.
	SessionID string
}

// BuildPrompt applies the conversation replay strategy.
//
// The native path (newest turn + session id) is taken only when the backend
// declares SupportsNativeSessions AND the caller supplied a SessionID from a
// prior turn; it is an explicitly opted-in fast path that may be unreliable.
// Everything else uses stateless replay: the full history is re-sent every
// turn, so cost and latency grow linearly with turn count. That is the
// accepted trade-off for universal correctness.
func BuildPrompt(req *ChatRequest, caps Capabilities) (PromptPayload, error) {
	if err := req.Validate(); err != nil {
		return PromptPayload{}, err
	}

	system, rest := splitSystem(req)

	var payload PromptPayload
	if caps.SupportsNativeSessions && req.SessionID != "" {
		payload.Prompt = latestUserContent(rest)
		payload.SessionID = req.SessionID
	} else {
		payload.Prompt = FlattenConversation(rest)
	}

	if system != "" {
		if caps.SupportsSystemPrompt {
			payload.SystemPrompt = system
		} else {
			payload.Prompt = systemLabel + system + "\n\n" + payload.Prompt
		}
	}
	return payload, nil
}

// splitSystem extracts the system text (explicit option first, then at most
// one leading system message) and returns the remaining messages.
func splitSystem(req *ChatRequest) (string, []types.Message) {
	var parts []string
	if req.SystemPrompt != "" {
		parts = append(parts, req.SystemPrompt)
	}
	msgs := req.Messages
	if len(msgs) > 0 && msgs[0].Role == types.RoleSystem {
		if msgs[0].Content != "" {
			parts = append(parts, msgs[0].Content)
		}
		msgs = msgs[1:]
	}
	return strings.Join(parts, "\n\n"), msgs
}

// latestUserContent returns the content of the newest user message.
func latestUserContent(msgs []types.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser {
			return msgs[i].Content
		}
	}
	if len(msgs) > 0 {
		return msgs[len(msgs)-1].Content
	}
	return ""
}

// FlattenConversation serializes an ordered message sequence into one prompt.
// A single-turn conversation flattens to the bare message content; multi-turn
// conversations get the labeled transcript blocks.
func FlattenConversation(msgs []types.Message) string {
	if len(msgs) == 0 {
		return ""
	}

	// The newest user message is the current request; everything before it
	// is prior context.
	current := len(msgs) - 1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser {
			current = i
			break
		}
	}

	if current == 0 && len(msgs) == 1 {
		return msgs[0].Content
	}

	var b strings.Builder
	if current > 0 {
		b.WriteString(previousHeader)
		b.WriteByte('\n')
		for _, m := range msgs[:current] {
			switch m.Role {
			case types.RoleAssistant:
				b.WriteString(assistantLabel)
			case types.RoleSystem:
				b.WriteString(systemLabel)
			default:
				b.WriteString(userLabel)
			}
			b.WriteString(m.Content)
			b.WriteByte('\n')
		}
	}
	b.WriteString(currentHeader)
	b.WriteByte('\n')
	b.WriteString(msgs[current].Content)
	return b.String()
}

// ParseTranscript inverts FlattenConversation. Lines that do not start a new
// labeled turn are treated as continuations of the current turn, so multi-line
// contents survive the round trip as long as no content line itself begins
// with a turn label or block header.
func ParseTranscript(prompt string) []types.Message {
	if !strings.HasPrefix(prompt, previousHeader+"\n") {
		if rest, ok := strings.CutPrefix(prompt, currentHeader+"\n"); ok {
			return []types.Message{{Role: types.RoleUser, Content: rest}}
		}
		return []types.Message{{Role: types.RoleUser, Content: prompt}}
	}

	var msgs []types.Message
	appendLine := func(line string) {
		if len(msgs) == 0 {
			return
		}
		last := &msgs[len(msgs)-1]
		if last.Content == "" {
			last.Content = line
		} else {
			last.Content += "\n" + line
		}
	}

	body := strings.TrimPrefix(prompt, previousHeader+"\n")
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		switch {
		case line == currentHeader:
			rest := strings.Join(lines[i+1:], "\n")
			return append(msgs, types.Message{Role: types.RoleUser, Content: rest})
		case strings.HasPrefix(line, userLabel):
			msgs = append(msgs, types.Message{Role: types.RoleUser, Content: strings.TrimPrefix(line, userLabel)})
		case strings.HasPrefix(line, assistantLabel):
			msgs = append(msgs, types.Message{Role: types.RoleAssistant, Content: strings.TrimPrefix(line, assistantLabel)})
		case strings.HasPrefix(line, systemLabel):
			msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: strings.TrimPrefix(line, systemLabel)})
		default:
			appendLine(line)
		}
	}
	return msgs
}
