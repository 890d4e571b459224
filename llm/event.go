package llm

import "github.com/Mathews-Tom/SubLLM/types"

// EventKind tags a canonical stream event.
type EventKind int

const (
	EventContentDelta EventKind = iota
	EventUsageUpdate
	EventError
	EventEnd
)

// Event is the canonical unit of backend output, independent of the wire
// format each CLI speaks. Parsers emit events in strict arrival order and
// terminate every sequence with exactly one EventEnd or EventError; nothing
// follows the terminal event. Usage updates may arrive zero or more times;
// the last one wins.
type Event struct {
	Kind             EventKind
	Text             string // EventContentDelta
	PromptTokens     int    // EventUsageUpdate
	CompletionTokens int    // EventUsageUpdate
	SessionID        string // optional, on EventUsageUpdate/EventEnd
	Err              *types.Error // EventError
}

// DeltaEvent builds a content delta event.
func DeltaEvent(text string) Event {
	return Event{Kind: EventContentDelta, Text: text}
}

// UsageEvent builds a usage update event.
func UsageEvent(promptTokens, completionTokens int) Event {
	return Event{Kind: EventUsageUpdate, PromptTokens: promptTokens, CompletionTokens: completionTokens}
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(err *types.Error) Event {
	return Event{Kind: EventError, Err: err}
}

// EndEvent builds a terminal end event.
func EndEvent() Event {
	return Event{Kind: EventEnd}
}
