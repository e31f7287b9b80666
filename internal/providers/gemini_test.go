package providers

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/Leonccaa/claudecodeui/internal/types"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		opts SpawnOptions
		want []string
	}{
		{
			name: "new session with prompt",
			opts: SpawnOptions{Prompt: "hello"},
			want: []string{"-p", "hello", "--output-format", "stream-json"},
		},
		{
			name: "new session with model",
			opts: SpawnOptions{Prompt: "hello", Model: "gemini-2.5-pro"},
			want: []string{"-p", "hello", "--model", "gemini-2.5-pro", "--output-format", "stream-json"},
		},
		{
			name: "resume with prompt ignores model",
			opts: SpawnOptions{Prompt: "more", SessionID: "s1", Model: "gemini-2.5-pro"},
			want: []string{"--resume", "s1", "-p", "more", "--output-format", "stream-json"},
		},
		{
			name: "resume only",
			opts: SpawnOptions{SessionID: "s1"},
			want: []string{"--resume", "s1"},
		},
		{
			name: "yolo via flag",
			opts: SpawnOptions{Prompt: "x", SkipPermissions: true},
			want: []string{"-p", "x", "--output-format", "stream-json", "--yolo"},
		},
		{
			name: "yolo via settings",
			opts: SpawnOptions{Prompt: "x", Settings: &ToolSettings{SkipPermissions: true}},
			want: []string{"-p", "x", "--output-format", "stream-json", "--yolo"},
		},
		{
			name: "empty prompt omits output format",
			opts: SpawnOptions{SessionID: "s1", Model: "ignored"},
			want: []string{"--resume", "s1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildArgs(tt.opts); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildArgs=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestProcessTableRekey(t *testing.T) {
	table := newProcessTable()
	cmd := exec.Command("true")

	table.insert("temp_1", cmd)
	table.rekey("temp_1", "session-x")

	keys := table.keys()
	if len(keys) != 1 || keys[0] != "session-x" {
		t.Fatalf("keys=%v, want exactly [session-x]", keys)
	}
	if got, ok := table.get("session-x"); !ok || got != cmd {
		t.Error("entry not reachable under the new key")
	}
	if _, ok := table.get("temp_1"); ok {
		t.Error("stale entry survived under the old key")
	}
}

func TestProcessTableRekeyNoops(t *testing.T) {
	table := newProcessTable()
	cmd := exec.Command("true")
	table.insert("same", cmd)

	table.rekey("same", "same")
	table.rekey("missing", "other")

	if keys := table.keys(); len(keys) != 1 || keys[0] != "same" {
		t.Errorf("keys=%v, want [same]", keys)
	}
	if _, ok := table.get("other"); ok {
		t.Error("rekey of a missing entry created a phantom")
	}
}

func TestAbortUnknownSession(t *testing.T) {
	s := &GeminiService{emitter: &recorder{}, table: newProcessTable()}
	if s.Abort("never-spawned") {
		t.Error("Abort=true for an unknown session")
	}
}

func TestAbortLiveProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sleep not available")
	}

	s := &GeminiService{emitter: &recorder{}, table: newProcessTable()}
	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer cmd.Wait()

	s.table.insert("live-1", cmd)

	if !s.Abort("live-1") {
		t.Fatal("Abort=false for a tracked session")
	}
	if s.IsActive("live-1") {
		t.Error("session still tracked after abort")
	}
	if s.Abort("live-1") {
		t.Error("second abort=true, entry should be gone")
	}
}

// fakeGemini writes an executable script standing in for the real CLI.
func fakeGemini(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	path := filepath.Join(t.TempDir(), "gemini")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunEndToEnd(t *testing.T) {
	script := `echo '{"type":"init","session_id":"abc","model":"gemini-2.5-pro"}'
echo '{"type":"message","role":"assistant","content":"hi"}'
echo '{"type":"result","status":"success"}'
`
	rec := &recorder{}
	s := &GeminiService{
		emitter: rec,
		table:   newProcessTable(),
		binPath: fakeGemini(t, script),
	}

	if err := s.Run(context.Background(), SpawnOptions{Prompt: "hello", Cwd: t.TempDir()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := rec.all()
	wantOrder := []string{
		types.EventSessionMade,
		types.EventSystem,
		types.EventResponse,
		types.EventResponse,
		types.EventResult,
		types.EventComplete,
	}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d events %v, want %d", len(got), eventNames(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].event != want {
			t.Errorf("event[%d]=%s, want %s", i, got[i].event, want)
		}
	}

	done := got[len(got)-1].payload
	if done["sessionId"] != "abc" || done["exitCode"] != 0 || done["isNewSession"] != true {
		t.Errorf("claude-complete payload: %v", done)
	}

	if active := s.ActiveSessions(); len(active) != 0 {
		t.Errorf("process table not empty after Run: %v", active)
	}
}

func TestRunNonzeroExit(t *testing.T) {
	script := `echo '{"type":"init","session_id":"dead"}'
echo 'Error: quota exceeded' >&2
exit 3
`
	rec := &recorder{}
	s := &GeminiService{
		emitter: rec,
		table:   newProcessTable(),
		binPath: fakeGemini(t, script),
	}

	if err := s.Run(context.Background(), SpawnOptions{Prompt: "x", Cwd: t.TempDir()}); err == nil {
		t.Fatal("Run returned nil for a nonzero exit")
	}

	got := rec.all()
	var sawError, sawComplete bool
	for _, e := range got {
		switch e.event {
		case types.EventError:
			sawError = true
			if e.payload["error"] != "Error: quota exceeded" {
				t.Errorf("error payload: %v", e.payload)
			}
		case types.EventComplete:
			sawComplete = true
			if e.payload["exitCode"] != 3 {
				t.Errorf("exitCode=%v, want 3", e.payload["exitCode"])
			}
		}
	}
	if !sawError || !sawComplete {
		t.Errorf("events=%v, want gemini-error and claude-complete", eventNames(got))
	}
	if last := got[len(got)-1]; last.event != types.EventComplete {
		t.Errorf("last event=%s, want %s", last.event, types.EventComplete)
	}

	if active := s.ActiveSessions(); len(active) != 0 {
		t.Errorf("process table not empty after failed Run: %v", active)
	}
}

func TestRunResumeKeepsSessionKey(t *testing.T) {
	script := `echo '{"type":"init","session_id":"keep-me"}'
echo '{"type":"result","status":"success"}'
`
	rec := &recorder{}
	s := &GeminiService{
		emitter: rec,
		table:   newProcessTable(),
		binPath: fakeGemini(t, script),
	}

	if err := s.Run(context.Background(), SpawnOptions{SessionID: "keep-me", Cwd: t.TempDir()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, e := range rec.all() {
		if e.event == types.EventSessionMade {
			t.Error("session-created emitted for a resumed session")
		}
	}
	done := rec.all()[len(rec.all())-1].payload
	if done["isNewSession"] != false {
		t.Errorf("isNewSession=%v, want false", done["isNewSession"])
	}
}
