package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Leonccaa/claudecodeui/internal/auth"
	"github.com/Leonccaa/claudecodeui/internal/defaults"
	"github.com/Leonccaa/claudecodeui/internal/hub"
	"github.com/Leonccaa/claudecodeui/internal/providers"
	"github.com/Leonccaa/claudecodeui/internal/registry"
	"github.com/Leonccaa/claudecodeui/internal/session"
	"github.com/Leonccaa/claudecodeui/internal/terminal"
	"github.com/Leonccaa/claudecodeui/internal/types"
	"github.com/Leonccaa/claudecodeui/internal/watcher"
)

// App wires the backend services behind the HTTP and WebSocket surface.
type App struct {
	hub       *hub.Hub
	resolver  *registry.Resolver
	reader    *session.Reader
	gemini    *providers.GeminiService
	watcher   *watcher.SessionWatcher
	terminals *terminal.Manager
	auth      *auth.Store
}

// NewApp constructs the full service graph.
func NewApp() (*App, error) {
	h := hub.New()
	resolver := registry.NewResolver()

	sw, err := watcher.NewSessionWatcher(h, resolver)
	if err != nil {
		return nil, err
	}

	store, err := auth.NewStore(authDBPath())
	if err != nil {
		return nil, err
	}

	return &App{
		hub:       h,
		resolver:  resolver,
		reader:    session.NewReader(resolver, defaults.TmpDir(), nil),
		gemini:    providers.NewGeminiService(h),
		watcher:   sw,
		terminals: terminal.NewManager(h),
		auth:      store,
	}, nil
}

// authDBPath returns the auth database location, next to nothing the Gemini
// CLI owns.
func authDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".claudecodeui", "auth.db")
}

// Serve blocks on the HTTP server.
func (a *App) Serve(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	fmt.Printf("[DEBUG] Serve: listening on %s\n", addr)
	return http.ListenAndServe(addr, a.routes())
}

// Shutdown releases background resources.
func (a *App) Shutdown() {
	a.watcher.Close()
	a.terminals.Shutdown()
	a.auth.Close()
}

// =============================================================================
// ROUTING
// =============================================================================

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/auth/status", a.handleAuthStatus)
	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", a.requireAuth(a.handleLogout))

	mux.HandleFunc("GET /api/sessions", a.requireAuth(a.handleListSessions))
	mux.HandleFunc("GET /api/sessions/{id}/messages", a.requireAuth(a.handleSessionMessages))
	mux.HandleFunc("DELETE /api/sessions/{id}", a.requireAuth(a.handleDeleteSession))
	mux.HandleFunc("POST /api/sessions/{id}/abort", a.requireAuth(a.handleAbortSession))

	mux.HandleFunc("/ws", a.requireAuth(a.handleChatSocket))
	mux.HandleFunc("/shell", a.requireAuth(a.handleShellSocket))

	return mux
}

// requireAuth rejects requests without a valid token. While no account
// exists every request passes, so the UI can drive initial setup.
func (a *App) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		needsSetup, err := a.auth.NeedsSetup()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if needsSetup {
			next(w, r)
			return
		}

		user, err := a.auth.Validate(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid or missing token"))
			return
		}
		next(w, r)
	}
}

// bearerToken extracts the token from the Authorization header, falling back
// to the query string for WebSocket upgrades (browsers cannot set headers on
// those).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

func (a *App) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	needsSetup, err := a.auth.NeedsSetup()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"needsSetup": needsSetup})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, token, err := a.auth.Register(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, token, err := a.auth.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.Revoke(bearerToken(r)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

func (a *App) handleListSessions(w http.ResponseWriter, r *http.Request) {
	projectPath := r.URL.Query().Get("project")
	summaries := a.reader.List(projectPath)

	// Keep the sidebar fresh from here on.
	if projectPath != "" {
		if err := a.watcher.WatchProject(projectPath); err != nil {
			fmt.Printf("[WARN] handleListSessions: watch failed: %v\n", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (a *App) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	projectPath := r.URL.Query().Get("project")

	messages, ok := a.reader.Messages(sessionID, projectPath)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("session %s not found", sessionID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (a *App) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	projectPath := r.URL.Query().Get("project")

	deleted, err := a.reader.Delete(sessionID, projectPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, fmt.Errorf("session %s not found", sessionID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *App) handleAbortSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]any{"aborted": a.gemini.Abort(sessionID)})
}

// =============================================================================
// CHAT SOCKET
// =============================================================================

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The UI is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatCommand is one inbound message on the chat socket.
type chatCommand struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Options struct {
		SessionID       string                 `json:"sessionId,omitempty"`
		ProjectPath     string                 `json:"projectPath,omitempty"`
		Cwd             string                 `json:"cwd,omitempty"`
		Model           string                 `json:"model,omitempty"`
		SkipPermissions bool                   `json:"skipPermissions,omitempty"`
		Images          []providers.Attachment `json:"images,omitempty"`
	} `json:"options"`
	SessionID string `json:"sessionId,omitempty"` // for abort-session
}

func (a *App) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("[WARN] handleChatSocket: upgrade failed: %v\n", err)
		return
	}
	sc := hub.NewSafeConn(conn)
	a.hub.Register(sc)
	defer func() {
		a.hub.Unregister(sc)
		sc.Close()
	}()

	for {
		_, data, err := sc.ReadMessage()
		if err != nil {
			return
		}

		var cmd chatCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			fmt.Printf("[DEBUG] handleChatSocket: bad message: %v\n", err)
			continue
		}

		switch cmd.Type {
		case "gemini-command":
			opts := providers.SpawnOptions{
				Prompt:          cmd.Command,
				SessionID:       cmd.Options.SessionID,
				ProjectPath:     cmd.Options.ProjectPath,
				Cwd:             cmd.Options.Cwd,
				Model:           cmd.Options.Model,
				SkipPermissions: cmd.Options.SkipPermissions,
				Images:          cmd.Options.Images,
			}
			go func() {
				if err := a.gemini.Run(context.Background(), opts); err != nil {
					fmt.Printf("[DEBUG] handleChatSocket: run finished with error: %v\n", err)
				}
				// A first spawn may have just registered the project.
				if opts.ProjectPath != "" {
					a.watcher.WatchProject(opts.ProjectPath)
				}
			}()

		case "abort-session":
			a.gemini.Abort(cmd.SessionID)

		default:
			fmt.Printf("[DEBUG] handleChatSocket: unknown command type %q\n", cmd.Type)
		}
	}
}

// =============================================================================
// SHELL SOCKET
// =============================================================================

// shellCommand is one inbound message on the shell socket.
type shellCommand struct {
	Type      string `json:"type"` // init, input, resize
	Cwd       string `json:"cwd,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	RunGemini bool   `json:"runGemini,omitempty"`
	Data      string `json:"data,omitempty"`
	Cols      uint16 `json:"cols,omitempty"`
	Rows      uint16 `json:"rows,omitempty"`
}

// handleShellSocket binds one PTY to one connection. Output stays on this
// connection instead of the broadcast hub.
func (a *App) handleShellSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("[WARN] handleShellSocket: upgrade failed: %v\n", err)
		return
	}
	sc := hub.NewSafeConn(conn)
	defer sc.Close()

	emit := types.EmitterFunc(func(event string, payload map[string]any) {
		envelope := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			envelope[k] = v
		}
		envelope["type"] = event
		data, err := json.Marshal(envelope)
		if err != nil {
			return
		}
		sc.WriteMessage(websocket.TextMessage, data)
	})

	terminals := terminal.NewManager(emit)
	defer terminals.Shutdown()

	var termID string
	for {
		_, data, err := sc.ReadMessage()
		if err != nil {
			return
		}

		var cmd shellCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}

		switch cmd.Type {
		case "init":
			if termID != "" {
				terminals.Close(termID)
			}
			info, err := terminals.Create(terminal.CreateOptions{
				Cwd:       cmd.Cwd,
				SessionID: cmd.SessionID,
				RunGemini: cmd.RunGemini,
			})
			if err != nil {
				emit("terminal:error", map[string]any{"error": err.Error()})
				continue
			}
			termID = info.ID
			emit("terminal:ready", map[string]any{"id": info.ID})

		case "input":
			if termID != "" {
				terminals.Write(termID, []byte(cmd.Data))
			}

		case "resize":
			if termID != "" {
				terminals.Resize(termID, cmd.Cols, cmd.Rows)
			}
		}
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Printf("[WARN] writeJSON: encode error: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
