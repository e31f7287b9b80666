// Package providers spawns the Gemini CLI and translates its streaming JSON
// output into normalized UI events. Each spawned subprocess is an independent
// unit of concurrency; the shared process table is the only coordination
// point between them.
package providers

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/Leonccaa/claudecodeui/internal/defaults"
	"github.com/Leonccaa/claudecodeui/internal/types"
)

// Attachment is an image the UI attached to a prompt. Accepted for API
// compatibility; it does not alter spawn arguments.
type Attachment struct {
	Name      string `json:"name,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Data      string `json:"data,omitempty"`
}

// ToolSettings is the UI's tooling-settings bundle. Only the permission flag
// influences the spawn.
type ToolSettings struct {
	SkipPermissions bool `json:"skipPermissions"`
}

// SpawnOptions describes one Gemini CLI invocation.
type SpawnOptions struct {
	Prompt          string       // empty means "resume only"
	SessionID       string       // empty means "start new"
	ProjectPath     string       // used for cwd resolution when Cwd is empty
	Cwd             string       // explicit working directory
	Model           string       // only passed for brand-new sessions
	SkipPermissions bool         // adds --yolo
	Images          []Attachment // accepted, not forwarded as arguments
	Settings        *ToolSettings
}

// =============================================================================
// PROCESS TABLE
// =============================================================================

// processTable tracks live subprocesses by session key. Entries start under a
// provisional key and migrate to the authoritative session id once the CLI
// reports it; re-keying removes the old entry before inserting the new one so
// there is never more than one entry per process.
type processTable struct {
	mu    sync.RWMutex
	procs map[string]*exec.Cmd
}

func newProcessTable() *processTable {
	return &processTable{procs: make(map[string]*exec.Cmd)}
}

func (t *processTable) insert(key string, cmd *exec.Cmd) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.procs[key] = cmd
}

func (t *processTable) remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, key)
}

func (t *processTable) get(key string) (*exec.Cmd, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cmd, ok := t.procs[key]
	return cmd, ok
}

// rekey migrates an entry to a new key. No-op when the keys match or the old
// entry is already gone.
func (t *processTable) rekey(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cmd, ok := t.procs[oldKey]
	if !ok {
		return
	}
	delete(t.procs, oldKey)
	t.procs[newKey] = cmd
}

func (t *processTable) keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.procs))
	for k := range t.procs {
		keys = append(keys, k)
	}
	return keys
}

// =============================================================================
// GEMINI SERVICE
// =============================================================================

// GeminiService orchestrates Gemini CLI subprocesses.
type GeminiService struct {
	emitter types.Emitter
	table   *processTable
	binPath string
}

// NewGeminiService creates the orchestrator. Emitted events flow to the UI
// channel through emitter.
func NewGeminiService(emitter types.Emitter) *GeminiService {
	return &GeminiService{
		emitter: emitter,
		table:   newProcessTable(),
		binPath: defaults.GetGeminiPath(),
	}
}

// buildArgs constructs the CLI argument list:
// [--resume <id>] [-p <prompt> [--model <m>] --output-format stream-json] [--yolo]
func buildArgs(opts SpawnOptions) []string {
	var args []string

	if opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	}

	if opts.Prompt != "" {
		args = append(args, "-p", opts.Prompt)
		// The model can only be chosen at session creation; the CLI pins it
		// for resumed sessions.
		if opts.SessionID == "" && opts.Model != "" {
			args = append(args, "--model", opts.Model)
		}
		args = append(args, "--output-format", "stream-json")
	}

	if opts.SkipPermissions || (opts.Settings != nil && opts.Settings.SkipPermissions) {
		args = append(args, "--yolo")
	}

	return args
}

// resolveCwd picks the working directory: explicit cwd, else project path,
// else the current process directory.
func resolveCwd(opts SpawnOptions) string {
	if opts.Cwd != "" {
		return opts.Cwd
	}
	if opts.ProjectPath != "" {
		return opts.ProjectPath
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// Run spawns the CLI and blocks until it exits. The process-table entry is
// always removed and a claude-complete event always emitted before Run
// returns, on success and failure alike. Callers that want concurrency run it
// in a goroutine; a crashed subprocess is terminal — no retry here, the
// caller may respawn with --resume.
func (s *GeminiService) Run(ctx context.Context, opts SpawnOptions) error {
	if s.binPath == "" {
		return fmt.Errorf("gemini CLI not found in PATH or common locations")
	}

	args := buildArgs(opts)
	cmd := exec.CommandContext(ctx, s.binPath, args...)
	cmd.Dir = resolveCwd(opts)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	// Provisional key until the init event reports the authoritative id.
	key := opts.SessionID
	if key == "" {
		key = fmt.Sprintf("temp_%d", time.Now().UnixMilli())
	}

	tr := newTranslator(s.emitter, translatorConfig{
		key:          key,
		sessionID:    opts.SessionID,
		isNewSession: opts.SessionID == "",
		workingDir:   cmd.Dir,
		rekey:        s.table.rekey,
	})

	s.table.insert(key, cmd)

	if err := cmd.Start(); err != nil {
		s.finish(tr, -1)
		return fmt.Errorf("failed to start gemini: %w", err)
	}

	fmt.Printf("[DEBUG] Run: started gemini PID=%d key=%s args=%v\n", cmd.Process.Pid, key, args)

	// Drain stderr concurrently; it is filtered and emitted as a single
	// error event after the stream closes.
	var stderrText string
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		data, _ := io.ReadAll(stderr)
		stderrText = string(data)
	}()

	tr.consumeStdout(stdout)
	wg.Wait()

	err = cmd.Wait()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	tr.emitStderr(stderrText)
	s.finish(tr, exitCode)

	if err != nil {
		if exitCode != 0 {
			return fmt.Errorf("gemini exited with code %d", exitCode)
		}
		return fmt.Errorf("gemini failed: %w", err)
	}
	return nil
}

// finish removes the process-table entry under the authoritative key and
// emits the completion event.
func (s *GeminiService) finish(tr *translator, exitCode int) {
	s.table.remove(tr.currentKey())
	s.emitter.Emit(types.EventComplete, map[string]any{
		"sessionId":    types.SessionField(tr.capturedSessionID()),
		"exitCode":     exitCode,
		"isNewSession": tr.isNewSession,
	})
}

// Abort terminates the live subprocess for a session. Reports whether an
// entry existed; aborting an unknown session sends no signal.
func (s *GeminiService) Abort(sessionID string) bool {
	cmd, ok := s.table.get(sessionID)
	if !ok {
		return false
	}

	if cmd.Process != nil {
		// SIGINT, like Ctrl+C in a terminal, lets the CLI flush its
		// transcript before exiting.
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			fmt.Printf("[DEBUG] Abort: signal error (process may have exited): %v\n", err)
		}
	}

	s.table.remove(sessionID)
	fmt.Printf("[DEBUG] Abort: removed session %s\n", sessionID)
	return true
}

// ActiveSessions lists the session keys with a live subprocess.
func (s *GeminiService) ActiveSessions() []string {
	return s.table.keys()
}

// IsActive reports whether a session has a live subprocess.
func (s *GeminiService) IsActive(sessionID string) bool {
	_, ok := s.table.get(sessionID)
	return ok
}
