package types

import (
	"testing"
)

func TestClassifyInitEvent(t *testing.T) {
	line := `{"type":"init","session_id":"abc-123","model":"gemini-2.5-pro","cwd":"/tmp/proj"}`
	classified, err := ClassifyStreamEvent(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if classified.EventType != StreamEventInit {
		t.Fatalf("EventType=%s, want init", classified.EventType)
	}
	if classified.Init == nil {
		t.Fatal("Init is nil")
	}
	if classified.Init.SessionID != "abc-123" {
		t.Errorf("SessionID=%q, want abc-123", classified.Init.SessionID)
	}
	if classified.Init.Model != "gemini-2.5-pro" {
		t.Errorf("Model=%q", classified.Init.Model)
	}
	if classified.Init.Cwd != "/tmp/proj" {
		t.Errorf("Cwd=%q", classified.Init.Cwd)
	}
}

func TestClassifyMessageRoles(t *testing.T) {
	tests := []struct {
		name string
		line string
		want StreamEventType
		text string
	}{
		{
			name: "assistant string content",
			line: `{"type":"message","role":"assistant","content":"hi"}`,
			want: StreamEventAssistantMessage,
			text: "hi",
		},
		{
			name: "model role counts as assistant",
			line: `{"type":"message","role":"model","content":"hello"}`,
			want: StreamEventAssistantMessage,
			text: "hello",
		},
		{
			name: "user message",
			line: `{"type":"message","role":"user","content":"question"}`,
			want: StreamEventUserMessage,
			text: "question",
		},
		{
			name: "parts array content",
			line: `{"type":"message","role":"assistant","content":["a",{"text":"b"},{"other":1}]}`,
			want: StreamEventAssistantMessage,
			text: "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified, err := ClassifyStreamEvent(tt.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if classified.EventType != tt.want {
				t.Fatalf("EventType=%s, want %s", classified.EventType, tt.want)
			}
			if got := classified.Message.Text(); got != tt.text {
				t.Errorf("Text()=%q, want %q", got, tt.text)
			}
		})
	}
}

func TestClassifyToolEvents(t *testing.T) {
	use, err := ClassifyStreamEvent(`{"type":"tool_use","id":"t1","name":"read_file","input":{"path":"/tmp/a"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if use.EventType != StreamEventToolUse || use.ToolUse == nil {
		t.Fatalf("expected tool_use, got %s", use.EventType)
	}
	if use.ToolUse.Name != "read_file" || use.ToolUse.ID != "t1" {
		t.Errorf("tool_use fields: id=%q name=%q", use.ToolUse.ID, use.ToolUse.Name)
	}

	res, err := ClassifyStreamEvent(`{"type":"tool_result","tool_use_id":"t1","content":"done"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EventType != StreamEventToolResult || res.ToolResult == nil {
		t.Fatalf("expected tool_result, got %s", res.EventType)
	}
	if res.ToolResult.ToolUseID != "t1" {
		t.Errorf("ToolUseID=%q", res.ToolResult.ToolUseID)
	}
}

func TestClassifyResultStatus(t *testing.T) {
	ok, err := ClassifyStreamEvent(`{"type":"result","status":"success"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.EventType != StreamEventResult || !ok.Result.Success() {
		t.Errorf("expected successful result, got %s success=%v", ok.EventType, ok.Result.Success())
	}

	bad, err := ClassifyStreamEvent(`{"type":"result","status":"error","result":"boom"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bad.Result.Success() {
		t.Error("error status classified as success")
	}
}

func TestClassifyUnknownType(t *testing.T) {
	classified, err := ClassifyStreamEvent(`{"type":"telemetry","payload":{"x":1}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if classified.EventType != StreamEventUnknown {
		t.Fatalf("EventType=%s, want unknown", classified.EventType)
	}
	payload := classified.RawPayload()
	if payload["type"] != "telemetry" {
		t.Errorf("RawPayload lost the type field: %v", payload)
	}
}

func TestClassifyInvalidJSON(t *testing.T) {
	if _, err := ClassifyStreamEvent(`not json at all`); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, err := ClassifyStreamEvent(""); err == nil {
		t.Fatal("expected error for empty line")
	}
}
