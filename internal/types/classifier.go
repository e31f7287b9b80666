// Event classification uses the discriminated union pattern: the `type` field
// in each JSON line acts as the tag that selects the concrete Go type for the
// second parsing pass. Unknown tags classify as StreamEventUnknown rather than
// failing, so the translator can pass them through untouched.
package types

import (
	"encoding/json"
	"fmt"
)

// StreamEventType represents the classified type of a streaming event.
type StreamEventType int

const (
	StreamEventUnknown StreamEventType = iota
	StreamEventInit
	StreamEventUserMessage
	StreamEventAssistantMessage
	StreamEventToolUse
	StreamEventToolResult
	StreamEventResult
)

// String returns a human-readable name for the event type.
func (t StreamEventType) String() string {
	switch t {
	case StreamEventInit:
		return "init"
	case StreamEventUserMessage:
		return "message:user"
	case StreamEventAssistantMessage:
		return "message:assistant"
	case StreamEventToolUse:
		return "tool_use"
	case StreamEventToolResult:
		return "tool_result"
	case StreamEventResult:
		return "result"
	default:
		return "unknown"
	}
}

// ClassifiedStreamEvent holds a parsed streaming event with its classified
// type. Only ONE of the event pointers is non-nil, matching EventType.
type ClassifiedStreamEvent struct {
	EventType StreamEventType
	Raw       json.RawMessage // Preserved for passthrough emission

	Init       *InitEvent
	Message    *MessageEvent
	ToolUse    *ToolUseEvent
	ToolResult *ToolResultEvent
	Result     *StreamResultEvent
}

// ClassifyStreamEvent parses one stdout line and returns a classified event.
// Two-pass parsing: extract the discriminator first, then parse into the
// matching concrete type. A JSON parse failure is an error; an unrecognized
// discriminator is not.
func ClassifyStreamEvent(line string) (*ClassifiedStreamEvent, error) {
	if line == "" {
		return nil, fmt.Errorf("empty line")
	}

	var discriminator struct {
		Type string `json:"type"`
		Role string `json:"role,omitempty"`
	}
	if err := json.Unmarshal([]byte(line), &discriminator); err != nil {
		return nil, fmt.Errorf("failed to parse discriminator: %w", err)
	}

	result := &ClassifiedStreamEvent{
		Raw: json.RawMessage(line),
	}

	switch discriminator.Type {
	case StreamTypeInit:
		var event InitEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("failed to parse init event: %w", err)
		}
		result.EventType = StreamEventInit
		result.Init = &event

	case StreamTypeMessage:
		var event MessageEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("failed to parse message event: %w", err)
		}
		if event.IsAssistant() {
			result.EventType = StreamEventAssistantMessage
		} else {
			result.EventType = StreamEventUserMessage
		}
		result.Message = &event

	case StreamTypeToolUse:
		var event ToolUseEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("failed to parse tool_use event: %w", err)
		}
		result.EventType = StreamEventToolUse
		result.ToolUse = &event

	case StreamTypeToolResult:
		var event ToolResultEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("failed to parse tool_result event: %w", err)
		}
		result.EventType = StreamEventToolResult
		result.ToolResult = &event

	case StreamTypeResult:
		var event StreamResultEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("failed to parse result event: %w", err)
		}
		result.EventType = StreamEventResult
		result.Result = &event

	default:
		result.EventType = StreamEventUnknown
	}

	return result, nil
}

// RawPayload decodes the preserved raw line into a generic map for forwarding
// to the UI channel.
func (c *ClassifiedStreamEvent) RawPayload() map[string]any {
	var payload map[string]any
	if err := json.Unmarshal(c.Raw, &payload); err != nil {
		return nil
	}
	return payload
}
