package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Leonccaa/claudecodeui/internal/registry"
)

// Locator finds the on-disk transcript file for a session identifier.
type Locator struct {
	resolver *registry.Resolver
	tmpDir   string
}

// NewLocator returns a locator over the CLI's tmp tree.
func NewLocator(resolver *registry.Resolver, tmpDir string) *Locator {
	return &Locator{resolver: resolver, tmpDir: tmpDir}
}

// Find returns the absolute path of the transcript for sessionID, or "".
// Two-phase strategy: when projectPath is supplied and resolves to a project
// identifier, only that identifier's chats directory is scanned; otherwise
// (and as a fallback when the scoped scan misses) every known project
// directory is scanned.
func (l *Locator) Find(sessionID, projectPath string) string {
	if sessionID == "" {
		return ""
	}

	if projectPath != "" {
		if projectID := l.resolver.Resolve(projectPath); projectID != "" {
			if path := scanChatsDir(l.chatsDir(projectID), sessionID); path != "" {
				return path
			}
		}
	}

	return l.findAnywhere(sessionID)
}

// findAnywhere brute-force scans every project directory under the tmp tree.
func (l *Locator) findAnywhere(sessionID string) string {
	entries, err := os.ReadDir(l.tmpDir)
	if err != nil {
		return ""
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if path := scanChatsDir(l.chatsDir(entry.Name()), sessionID); path != "" {
			return path
		}
	}
	return ""
}

func (l *Locator) chatsDir(projectID string) string {
	return filepath.Join(l.tmpDir, projectID, "chats")
}

// scanChatsDir scans one transcript directory for sessionID. The first pass
// parses each candidate and matches the embedded sessionId exactly; filename
// matching alone would return false positives for similarly named files. Only
// when no exact match exists does the second pass match filenames containing
// the first 8 characters of the id, tolerating files that fail to parse. Two
// unrelated sessions can share an 8-character prefix, so the exact pass must
// always run first.
func scanChatsDir(dir, sessionID string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), TranscriptExt) {
			continue
		}
		candidates = append(candidates, filepath.Join(dir, entry.Name()))
	}

	for _, path := range candidates {
		t, err := parseTranscriptOnce(path)
		if err != nil {
			continue
		}
		if t.SessionID == sessionID {
			return path
		}
	}

	prefix := sessionID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	for _, path := range candidates {
		if strings.Contains(filepath.Base(path), prefix) {
			fmt.Printf("[DEBUG] scanChatsDir: prefix fallback matched %s for session %s\n", filepath.Base(path), sessionID)
			return path
		}
	}

	return ""
}
