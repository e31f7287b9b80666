package session

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/Leonccaa/claudecodeui/internal/defaults"
	"github.com/Leonccaa/claudecodeui/internal/registry"
)

// ProviderGemini is the fixed provider tag stamped on every summary.
const ProviderGemini = "gemini"

// Summary is the UI-facing session listing entry. Creation and last-updated
// timestamps are duplicated under two key spellings because deployed clients
// read either.
type Summary struct {
	ID           string `json:"id"`
	Summary      string `json:"summary"`
	CreatedAt    string `json:"createdAt"`
	CreatedAtAlt string `json:"created_at"`
	UpdatedAt    string `json:"lastUpdated"`
	UpdatedAtAlt string `json:"updated_at"`
	ProjectPath  string `json:"projectPath"`
	MessageCount int    `json:"messageCount"`
	SourceFile   string `json:"sourceFile"`
	Provider     string `json:"__provider"`
}

// DisplayMessage is one UI-facing message derived from a transcript: a
// user/assistant text message, a tool-use event, or a tool-result event.
// Never persisted; derived deterministically on every read.
type DisplayMessage struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "user", "assistant", "tool_use", "tool_result"
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	ToolID    string `json:"toolId,omitempty"`
	ToolName  string `json:"toolName,omitempty"`
	ToolInput any    `json:"toolInput,omitempty"`
}

// SummaryCache remembers the last successful normalization per transcript
// path. Consulted only when a re-parse persistently fails, so a session the
// CLI is mid-rewrite on does not vanish from the listing.
type SummaryCache struct {
	mu sync.Mutex
	m  map[string]Summary
}

// NewSummaryCache returns an empty cache.
func NewSummaryCache() *SummaryCache {
	return &SummaryCache{m: make(map[string]Summary)}
}

// Put stores the summary for a transcript path.
func (c *SummaryCache) Put(path string, s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[path] = s
}

// Get returns the cached summary for a transcript path, if any.
func (c *SummaryCache) Get(path string) (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[path]
	return s, ok
}

// Reader lists, reads and deletes session transcripts.
type Reader struct {
	resolver *registry.Resolver
	locator  *Locator
	cache    *SummaryCache
	tmpDir   string

	// cliLister invokes the external CLI's own session-listing command;
	// replaced in tests.
	cliLister func(projectPath string) (string, error)
}

// NewReader returns a reader over the CLI's tmp tree. The cache is injected
// so callers own its lifetime.
func NewReader(resolver *registry.Resolver, tmpDir string, cache *SummaryCache) *Reader {
	if cache == nil {
		cache = NewSummaryCache()
	}
	return &Reader{
		resolver:  resolver,
		locator:   NewLocator(resolver, tmpDir),
		cache:     cache,
		tmpDir:    tmpDir,
		cliLister: runListSessions,
	}
}

// Locator exposes the reader's locator for callers that only need lookup.
func (r *Reader) Locator() *Locator {
	return r.locator
}

// =============================================================================
// LISTING
// =============================================================================

// List returns the session summaries for a project, newest first.
func (r *Reader) List(projectPath string) []Summary {
	var summaries []Summary

	if projectID := r.resolver.Resolve(projectPath); projectID != "" {
		summaries = r.listDir(filepath.Join(r.tmpDir, projectID, "chats"), projectPath)
	}

	// Secondary fallback: only when the directory listing came up empty, ask
	// the CLI itself. Its tabular output has no timestamps, so these entries
	// sort last.
	if len(summaries) == 0 {
		summaries = append(summaries, r.listViaCLI(projectPath)...)
	}

	// Deduplicate by session id, last write wins.
	byID := make(map[string]int)
	deduped := make([]Summary, 0, len(summaries))
	for _, s := range summaries {
		if idx, ok := byID[s.ID]; ok {
			deduped[idx] = s
			continue
		}
		byID[s.ID] = len(deduped)
		deduped = append(deduped, s)
	}

	// Sort descending by last-updated; missing timestamps sort as earliest.
	sort.SliceStable(deduped, func(i, j int) bool {
		return parseTimestamp(deduped[i].UpdatedAt).After(parseTimestamp(deduped[j].UpdatedAt))
	})

	return deduped
}

// listDir normalizes every transcript in one chats directory.
func (r *Reader) listDir(dir, projectPath string) []Summary {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), TranscriptExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		t, err := readTranscript(path)
		if err != nil {
			// Persistent parse failure: fall back to the last successful
			// normalization of this exact file, re-stamped for this project.
			// A file with no history is dropped silently — the sidebar
			// degrades quietly rather than erroring (see DESIGN.md).
			if cached, ok := r.cache.Get(path); ok {
				cached.ProjectPath = projectPath
				cached.SourceFile = entry.Name()
				summaries = append(summaries, cached)
			} else {
				fmt.Printf("[DEBUG] List: dropping unreadable transcript %s: %v\n", entry.Name(), err)
			}
			continue
		}

		s := summarize(t, projectPath, entry.Name())
		r.cache.Put(path, s)
		summaries = append(summaries, s)
	}
	return summaries
}

// summarize derives the UI-facing summary from a parsed transcript.
func summarize(t *Transcript, projectPath, filename string) Summary {
	return Summary{
		ID:           t.SessionID,
		Summary:      t.displayName(),
		CreatedAt:    t.StartTime,
		CreatedAtAlt: t.StartTime,
		UpdatedAt:    t.LastUpdated,
		UpdatedAtAlt: t.LastUpdated,
		ProjectPath:  projectPath,
		MessageCount: len(t.Messages),
		SourceFile:   filename,
		Provider:     ProviderGemini,
	}
}

// listSessionPattern matches one line of the CLI's session-listing output:
// index, name, identifier — e.g. `  3. Fix the build (8f14e45f-ceea-41b2)`.
var listSessionPattern = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.*?)\s+\(([\w-]{8,})\)\s*$`)

// listViaCLI asks the external CLI for its own session list and parses the
// tabular output. Best-effort: a missing binary or nonzero exit yields nil.
func (r *Reader) listViaCLI(projectPath string) []Summary {
	output, err := r.cliLister(projectPath)
	if err != nil {
		fmt.Printf("[DEBUG] listViaCLI: %v\n", err)
		return nil
	}

	var summaries []Summary
	for _, line := range strings.Split(output, "\n") {
		m := listSessionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		summaries = append(summaries, Summary{
			ID:          m[3],
			Summary:     m[2],
			ProjectPath: projectPath,
			Provider:    ProviderGemini,
		})
	}
	return summaries
}

// runListSessions shells out to the gemini CLI for its session table.
func runListSessions(projectPath string) (string, error) {
	path := defaults.GetGeminiPath()
	if path == "" {
		return "", fmt.Errorf("gemini CLI not found in PATH or common locations")
	}
	cmd := exec.Command(path, "--list-sessions")
	if projectPath != "" {
		cmd.Dir = projectPath
	}
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("gemini --list-sessions failed: %w", err)
	}
	return string(output), nil
}

// =============================================================================
// READING
// =============================================================================

// Messages returns the ordered display messages for a session, or ok=false
// when the session cannot be found. A transcript whose embedded id does not
// match the request is treated as not-found, never as the wrong session's
// data; a stale scoped lookup gets one retry against the global locator.
func (r *Reader) Messages(sessionID, projectPath string) ([]DisplayMessage, bool) {
	path := r.locator.Find(sessionID, projectPath)
	t := r.verify(path, sessionID)

	if t == nil && projectPath != "" {
		global := r.locator.Find(sessionID, "")
		if global != "" && global != path {
			t = r.verify(global, sessionID)
		}
	}

	if t == nil {
		return nil, false
	}
	return flatten(t), true
}

// verify reads path and confirms it holds sessionID; nil on any failure.
func (r *Reader) verify(path, sessionID string) *Transcript {
	if path == "" {
		return nil
	}
	t, err := readTranscript(path)
	if err != nil {
		return nil
	}
	if t.SessionID != sessionID {
		fmt.Printf("[DEBUG] Messages: %s holds session %s, wanted %s\n", filepath.Base(path), t.SessionID, sessionID)
		return nil
	}
	return t
}

// flatten converts a transcript into the UI message sequence: per transcript
// message, zero or one text message (dropped when empty after trimming)
// followed by a use/result pair for each tool call in order.
func flatten(t *Transcript) []DisplayMessage {
	messages := []DisplayMessage{}
	for i := range t.Messages {
		msg := &t.Messages[i]

		if text := strings.TrimSpace(msg.Text()); text != "" {
			messages = append(messages, DisplayMessage{
				ID:        fmt.Sprintf("msg%d", i),
				Type:      roleToType(msg.Role),
				Content:   text,
				Timestamp: msg.Timestamp,
			})
		}

		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			callID := tc.ID
			if callID == "" {
				callID = fmt.Sprintf("msg%d-tool%d", i, j)
			}
			messages = append(messages,
				DisplayMessage{
					ID:        callID + "-use",
					Type:      "tool_use",
					Timestamp: tc.Timestamp,
					ToolID:    callID,
					ToolName:  tc.Name,
					ToolInput: tc.Args,
				},
				DisplayMessage{
					ID:        callID + "-result",
					Type:      "tool_result",
					Content:   toolResultText(tc.Result),
					Timestamp: tc.Timestamp,
					ToolID:    callID,
				})
		}
	}
	return messages
}

// roleToType maps transcript roles to UI message types. The CLI stores model
// output under the "model" role.
func roleToType(role string) string {
	if role == "model" || role == "assistant" {
		return "assistant"
	}
	return "user"
}

// toolResultText derives display text from a tool-call result. Priority:
// literal strings as-is; ordered sequences join each element's nested
// functionResponse.response.output (non-empty only) with newlines; any other
// non-null value renders as pretty-printed JSON.
func toolResultText(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var outputs []string
		for _, elem := range v {
			raw, err := json.Marshal(elem)
			if err != nil {
				continue
			}
			if out := gjson.GetBytes(raw, "functionResponse.response.output"); out.Exists() && out.String() != "" {
				outputs = append(outputs, out.String())
			}
		}
		return strings.Join(outputs, "\n")
	default:
		pretty, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(pretty)
	}
}

// =============================================================================
// DELETION
// =============================================================================

// Delete removes a session's transcript file. Returns false when no file was
// found; not-found is an outcome, not an error.
func (r *Reader) Delete(sessionID, projectPath string) (bool, error) {
	path := r.locator.Find(sessionID, projectPath)
	if path == "" {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	fmt.Printf("[DEBUG] Delete: removed %s\n", path)
	return true, nil
}
