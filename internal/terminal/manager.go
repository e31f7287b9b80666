// Package terminal manages interactive PTY sessions for the shell channel.
// Output travels to the UI base64-encoded so raw escape sequences survive the
// JSON transport.
package terminal

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/Leonccaa/claudecodeui/internal/defaults"
	"github.com/Leonccaa/claudecodeui/internal/types"
)

// Info is the public metadata for a PTY session.
type Info struct {
	ID  string `json:"id"`
	Cwd string `json:"cwd"`
}

// Session is one running PTY.
type Session struct {
	ID     string
	Cwd    string
	pty    *os.File
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// CreateOptions controls what runs inside the PTY.
type CreateOptions struct {
	Cwd       string
	SessionID string // resume this Gemini session instead of a plain shell
	RunGemini bool   // run the Gemini CLI interactively
}

// Manager tracks PTY sessions and streams their output as events.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	emitter  types.Emitter
}

func NewManager(emitter types.Emitter) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		emitter:  emitter,
	}
}

// Create spawns a new PTY session. The default command is the user's login
// shell; with RunGemini set, the Gemini CLI runs interactively instead,
// optionally resuming a session.
func (m *Manager) Create(opts CreateOptions) (*Info, error) {
	name, args, err := commandFor(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Cwd
	cmd.Env = os.Environ()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start pty: %w", err)
	}

	sess := &Session{
		ID:     uuid.NewString(),
		Cwd:    opts.Cwd,
		pty:    ptmx,
		cmd:    cmd,
		cancel: cancel,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	go m.readOutput(ctx, sess)

	return &Info{ID: sess.ID, Cwd: sess.Cwd}, nil
}

// commandFor picks the program the PTY runs.
func commandFor(opts CreateOptions) (string, []string, error) {
	if opts.RunGemini {
		bin := defaults.GetGeminiPath()
		if bin == "" {
			return "", nil, fmt.Errorf("gemini CLI not found in PATH or common locations")
		}
		if opts.SessionID != "" {
			return bin, []string{"--resume", opts.SessionID}, nil
		}
		return bin, nil, nil
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	return shell, []string{"-l"}, nil
}

// readOutput streams PTY output until the process exits.
func (m *Manager) readOutput(ctx context.Context, sess *Session) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := sess.pty.Read(buf)
		if n > 0 {
			m.emitter.Emit("terminal:output", map[string]any{
				"id":   sess.ID,
				"data": base64.StdEncoding.EncodeToString(buf[:n]),
			})
		}
		if err != nil {
			if err != io.EOF {
				fmt.Printf("[DEBUG] readOutput: pty read error: %v\n", err)
			}
			m.mu.Lock()
			delete(m.sessions, sess.ID)
			m.mu.Unlock()
			m.emitter.Emit("terminal:exit", map[string]any{"id": sess.ID})
			return
		}
	}
}

// Write sends input to a terminal's PTY.
func (m *Manager) Write(id string, data []byte) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("terminal %s not found", id)
	}
	_, err := sess.pty.Write(data)
	return err
}

// Resize changes the PTY window size.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("terminal %s not found", id)
	}
	return pty.Setsize(sess.pty, &pty.Winsize{Cols: cols, Rows: rows})
}

// Close terminates one terminal session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("terminal %s not found", id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	sess.cancel()
	sess.pty.Close()
	if sess.cmd.Process != nil {
		sess.cmd.Process.Kill()
	}
	return nil
}

// List returns metadata for all active terminals.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		list = append(list, Info{ID: sess.ID, Cwd: sess.Cwd})
	}
	return list
}

// Shutdown closes every terminal session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}
