package providers

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Leonccaa/claudecodeui/internal/types"
)

// stdoutNoise lists known non-JSON startup banter the CLI prints to stdout.
// These lines are dropped before JSON parsing is attempted.
var stdoutNoise = []string{
	"Loaded cached credentials",
	"Data collection is disabled",
}

// stderrIgnore lists informational stderr notices (matched case-insensitively
// as substrings) that must never surface as errors.
var stderrIgnore = []string{
	"deprecationwarning",
	"experimentalwarning",
	"--trace-deprecation",
	"loaded cached credentials",
	"data collection is disabled",
}

// translatorConfig seeds a translator for one subprocess lifetime.
type translatorConfig struct {
	key          string // current process-table key (provisional or session id)
	sessionID    string // known up front only when resuming
	isNewSession bool
	workingDir   string
	rekey        func(oldKey, newKey string)
}

// translator is the per-subprocess state machine. Single-threaded: one
// goroutine consumes one subprocess's stdout; separate subprocesses get
// separate translators.
type translator struct {
	emitter types.Emitter
	translatorConfig

	accumulated    strings.Builder // assistant text, decides the closing event
	createdEmitted bool
}

func newTranslator(emitter types.Emitter, cfg translatorConfig) *translator {
	return &translator{emitter: emitter, translatorConfig: cfg}
}

// currentKey returns the process-table key, which migrates from the
// provisional key to the session id on the first init event.
func (t *translator) currentKey() string {
	return t.key
}

// capturedSessionID returns the authoritative session id, or "" before the
// CLI has reported one.
func (t *translator) capturedSessionID() string {
	return t.sessionID
}

func (t *translator) emit(event string, payload map[string]any) {
	payload["sessionId"] = types.SessionField(t.sessionID)
	t.emitter.Emit(event, payload)
}

// consumeStdout reads the subprocess stdout to EOF, translating each line.
func (t *translator) consumeStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	// Tool results can carry large file contents on one line.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		t.handleLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("[DEBUG] consumeStdout: scanner error: %v\n", err)
	}
}

// handleLine translates one stdout line into zero or more UI events.
func (t *translator) handleLine(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	for _, noise := range stdoutNoise {
		if strings.Contains(trimmed, noise) {
			fmt.Printf("[DEBUG] handleLine: skipping startup notice: %s\n", trimmed)
			return
		}
	}

	classified, err := types.ClassifyStreamEvent(trimmed)
	if err != nil {
		// Unrecognized output format: forward verbatim instead of dropping,
		// the UI decides what to do with it.
		t.emit(types.EventOutput, map[string]any{"text": line})
		return
	}

	switch classified.EventType {
	case types.StreamEventInit:
		t.handleInit(classified)

	case types.StreamEventUserMessage:
		t.emit(types.EventUser, map[string]any{"text": classified.Message.Text()})

	case types.StreamEventAssistantMessage:
		text := classified.Message.Text()
		t.accumulated.WriteString(text)
		t.emit(types.EventResponse, map[string]any{
			"data": map[string]any{
				"type":  "content_block_delta",
				"delta": map[string]any{"type": "text_delta", "text": text},
			},
		})

	case types.StreamEventToolUse:
		t.emit(types.EventResponse, map[string]any{
			"data": map[string]any{
				"type": "content_block_start",
				"content_block": map[string]any{
					"type":  "tool_use",
					"id":    classified.ToolUse.ID,
					"name":  classified.ToolUse.Name,
					"input": classified.ToolUse.Input,
				},
			},
		})

	case types.StreamEventToolResult:
		t.emit(types.EventResponse, map[string]any{
			"data": map[string]any{
				"type":  "content_block_delta",
				"delta": map[string]any{"type": "stop_reason", "stop_reason": "tool_use"},
			},
		})
		t.emit(types.EventToolResult, map[string]any{"data": classified.RawPayload()})

	case types.StreamEventResult:
		if t.accumulated.Len() > 0 {
			t.emit(types.EventResponse, map[string]any{
				"data": map[string]any{"type": "content_block_stop"},
			})
		}
		t.emit(types.EventResult, map[string]any{
			"success": classified.Result.Success(),
			"data":    classified.RawPayload(),
		})

	default:
		t.emit(types.EventPassthrough, map[string]any{"data": classified.RawPayload()})
	}
}

// handleInit captures the session id on first sight, migrates the process
// table entry, and announces brand-new sessions exactly once.
func (t *translator) handleInit(classified *types.ClassifiedStreamEvent) {
	init := classified.Init

	if init.SessionID != "" && t.sessionID == "" {
		t.sessionID = init.SessionID
		if t.key != init.SessionID {
			if t.rekey != nil {
				t.rekey(t.key, init.SessionID)
			}
			t.key = init.SessionID
		}

		if t.isNewSession && !t.createdEmitted {
			t.createdEmitted = true
			t.emit(types.EventSessionMade, map[string]any{
				"model":      init.Model,
				"workingDir": t.workingDir,
			})
		}
	}

	t.emit(types.EventSystem, map[string]any{"data": classified.RawPayload()})
}

// emitStderr filters the subprocess's buffered stderr and, when anything
// actionable remains, forwards it as one error event. Never one event per
// line: multi-line stack traces would flood the UI.
func (t *translator) emitStderr(text string) {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		ignored := false
		for _, noise := range stderrIgnore {
			if strings.Contains(lower, noise) {
				ignored = true
				break
			}
		}
		if !ignored {
			kept = append(kept, line)
		}
	}

	if len(kept) == 0 {
		return
	}
	t.emit(types.EventError, map[string]any{"error": strings.Join(kept, "\n")})
}
