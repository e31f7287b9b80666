package types

// Streaming event shapes emitted by the Gemini CLI when run with
// --output-format stream-json. One JSON object per line, discriminated by the
// "type" field.

// Stream event type discriminator values.
const (
	StreamTypeInit       = "init"
	StreamTypeMessage    = "message"
	StreamTypeToolUse    = "tool_use"
	StreamTypeToolResult = "tool_result"
	StreamTypeResult     = "result"
)

// Result status values.
const (
	ResultStatusSuccess = "success"
	ResultStatusError   = "error"
)

// InitEvent is the first streaming event, containing session initialization
// data. This is where the authoritative session_id comes from.
type InitEvent struct {
	Type      string   `json:"type"` // "init"
	SessionID string   `json:"session_id"`
	Model     string   `json:"model,omitempty"`
	Cwd       string   `json:"cwd,omitempty"`
	Version   string   `json:"version,omitempty"`
	Tools     []string `json:"tools,omitempty"`
}

// MessageEvent carries conversational content for either role.
type MessageEvent struct {
	Type    string `json:"type"` // "message"
	Role    string `json:"role"` // "user", "assistant" or "model"
	Content any    `json:"content"`
}

// Text flattens the message content into plain text. Content is either a
// string or an ordered list of parts (strings or objects with a text field).
func (e *MessageEvent) Text() string {
	return flattenContent(e.Content)
}

// IsAssistant reports whether the message is model output. The CLI has used
// both role spellings across versions.
func (e *MessageEvent) IsAssistant() bool {
	return e.Role == "assistant" || e.Role == "model"
}

// ToolUseEvent announces a tool invocation.
type ToolUseEvent struct {
	Type  string `json:"type"` // "tool_use"
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input any    `json:"input,omitempty"`
}

// ToolResultEvent carries the outcome of a tool invocation.
type ToolResultEvent struct {
	Type      string `json:"type"` // "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// StreamResultEvent is the terminal streaming event.
type StreamResultEvent struct {
	Type   string `json:"type"` // "result"
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
}

// Success reports whether the run completed cleanly.
func (e *StreamResultEvent) Success() bool {
	return e.Status == ResultStatusSuccess
}

// flattenContent extracts plain text from a string-or-parts content value.
func flattenContent(raw any) string {
	switch c := raw.(type) {
	case string:
		return c
	case []any:
		text := ""
		for _, part := range c {
			switch p := part.(type) {
			case string:
				text += p
			case map[string]any:
				if t, ok := p["text"].(string); ok {
					text += t
				}
			}
		}
		return text
	}
	return ""
}
