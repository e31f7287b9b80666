// Package session locates, reads and normalizes the transcript files the
// Gemini CLI persists under ~/.gemini/tmp/<project-id>/chats. Transcripts are
// owned by the CLI: this layer reads and deletes them but never creates one.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// TranscriptExt is the fixed extension of session transcript files.
const TranscriptExt = ".json"

// Reads race the CLI, which writes transcripts incrementally. A partial file
// fails to parse; retrying with a growing delay lets the writer finish.
const (
	readRetries    = 8
	readRetryDelay = 60 * time.Millisecond
)

// Transcript is the on-disk session file shape.
type Transcript struct {
	SessionID   string              `json:"sessionId"`
	ProjectHash string              `json:"projectHash,omitempty"`
	StartTime   string              `json:"startTime,omitempty"`
	LastUpdated string              `json:"lastUpdated,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Messages    []TranscriptMessage `json:"messages"`
}

// TranscriptMessage is one message record inside a transcript. Content is a
// string or an ordered list of parts (plain strings or objects carrying a
// text field).
type TranscriptMessage struct {
	Role      string     `json:"role"` // "user" or "model"
	Content   any        `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
}

// Text flattens the message content into plain text.
func (m *TranscriptMessage) Text() string {
	switch c := m.Content.(type) {
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

// ToolCall is one tool invocation recorded in a transcript message. Result is
// a string, an ordered list of response-part objects, or an arbitrary
// structured value.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Args      any    `json:"args,omitempty"`
	Result    any    `json:"result,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// readTranscript reads and parses a transcript file with bounded retry.
// The CLI appends to these files while a session runs, so a read can observe
// a half-written document; each retry waits 60ms × attempt number.
func readTranscript(path string) (*Transcript, error) {
	var lastErr error
	for attempt := 1; attempt <= readRetries; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt-1) * readRetryDelay)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		var t Transcript
		if err := json.Unmarshal(data, &t); err != nil {
			lastErr = fmt.Errorf("failed to parse transcript %s: %w", path, err)
			continue
		}
		return &t, nil
	}
	return nil, lastErr
}

// parseTranscriptOnce reads and parses without retry. Used by the locator's
// directory scan, where an unparsable candidate just means "not this file".
func parseTranscriptOnce(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", path, err)
	}
	return &t, nil
}

// parseTimestamp converts a transcript timestamp to time.Time; zero on failure.
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// displayName derives a listing title: the stored summary when present,
// otherwise the first user message's text.
func (t *Transcript) displayName() string {
	if t.Summary != "" {
		return t.Summary
	}
	for i := range t.Messages {
		if t.Messages[i].Role == "user" {
			text := strings.TrimSpace(t.Messages[i].Text())
			if text != "" {
				if len(text) > 100 {
					text = text[:100] + "..."
				}
				return text
			}
		}
	}
	return "Untitled session"
}
