// Package types defines the wire contracts of the integration layer: the
// normalized event tags pushed to the UI channel and the streaming event
// shapes the Gemini CLI emits on stdout.
package types

// =============================================================================
// OUTBOUND EVENT TAGS (UI channel)
// =============================================================================

// Event tags pushed over the UI channel. The gemini-*/claude-* split is a
// client compatibility contract: the web UI renders claude-response payloads
// with the same code path it uses for the Anthropic streaming format.
const (
	EventSystem        = "gemini-system"
	EventSessionMade   = "session-created"
	EventUser          = "gemini-user"
	EventResponse      = "claude-response"
	EventToolResult    = "gemini-tool-result"
	EventResult        = "gemini-result"
	EventPassthrough   = "gemini-response"
	EventOutput        = "gemini-output"
	EventError         = "gemini-error"
	EventComplete      = "claude-complete"
	EventSessionsDirty = "sessions-updated"
)

// Emitter delivers a normalized event to the UI channel. Implementations must
// be safe for concurrent use; multiple subprocess translators emit at once.
type Emitter interface {
	Emit(event string, payload map[string]any)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(event string, payload map[string]any)

// Emit calls f.
func (f EmitterFunc) Emit(event string, payload map[string]any) {
	f(event, payload)
}

// SessionField returns the sessionId payload value: the captured identifier,
// or nil when no init event has reported one yet.
func SessionField(sessionID string) any {
	if sessionID == "" {
		return nil
	}
	return sessionID
}
