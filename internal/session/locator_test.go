package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Leonccaa/claudecodeui/internal/registry"
)

// newTestTree builds a fake ~/.gemini layout and returns (tmpDir, resolver).
// projects maps project path -> project id.
func newTestTree(t *testing.T, projects map[string]string) (string, *registry.Resolver) {
	t.Helper()
	root := t.TempDir()
	tmpDir := filepath.Join(root, "tmp")

	reg := `{"projects":{`
	first := true
	for path, id := range projects {
		if err := os.MkdirAll(filepath.Join(tmpDir, id, "chats"), 0755); err != nil {
			t.Fatal(err)
		}
		if !first {
			reg += ","
		}
		reg += `"` + path + `":"` + id + `"`
		first = false
	}
	reg += `}}`

	regPath := filepath.Join(root, "projects.json")
	if err := os.WriteFile(regPath, []byte(reg), 0644); err != nil {
		t.Fatal(err)
	}
	return tmpDir, registry.NewResolverAt(regPath)
}

func writeChat(t *testing.T, tmpDir, projectID, filename, content string) string {
	t.Helper()
	dir := filepath.Join(tmpDir, projectID, "chats")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindExactMatchBeatsPrefix(t *testing.T) {
	tmpDir, resolver := newTestTree(t, map[string]string{"/proj/a": "p1"})

	// The decoy's filename carries the session-id prefix but its content
	// belongs to a different session.
	writeChat(t, tmpDir, "p1", "abcdef12-decoy.json", `{"sessionId":"other-session","messages":[]}`)
	want := writeChat(t, tmpDir, "p1", "unrelated-name.json", `{"sessionId":"abcdef12-3456-7890","messages":[]}`)

	loc := NewLocator(resolver, tmpDir)
	if got := loc.Find("abcdef12-3456-7890", "/proj/a"); got != want {
		t.Errorf("Find=%q, want %q (content match must beat filename prefix)", got, want)
	}
}

func TestFindPrefixFallback(t *testing.T) {
	tmpDir, resolver := newTestTree(t, map[string]string{"/proj/a": "p1"})

	// Unparsable file: only the filename-prefix pass can match it.
	want := writeChat(t, tmpDir, "p1", "session-abcdef12.json", `{"sessionId": truncated`)

	loc := NewLocator(resolver, tmpDir)
	if got := loc.Find("abcdef12-3456-7890", "/proj/a"); got != want {
		t.Errorf("Find=%q, want %q", got, want)
	}
}

func TestFindBruteForceWhenScopeMisses(t *testing.T) {
	tmpDir, resolver := newTestTree(t, map[string]string{
		"/proj/a": "p1",
		"/proj/b": "p2",
	})

	// Session lives in p2, but the caller scopes the lookup to /proj/a.
	want := writeChat(t, tmpDir, "p2", "s.json", `{"sessionId":"elsewhere-1234","messages":[]}`)

	loc := NewLocator(resolver, tmpDir)
	if got := loc.Find("elsewhere-1234", "/proj/a"); got != want {
		t.Errorf("Find=%q, want %q (brute-force fallback)", got, want)
	}
	if got := loc.Find("elsewhere-1234", ""); got != want {
		t.Errorf("Find with no project=%q, want %q", got, want)
	}
}

func TestFindMissingSession(t *testing.T) {
	tmpDir, resolver := newTestTree(t, map[string]string{"/proj/a": "p1"})
	loc := NewLocator(resolver, tmpDir)

	if got := loc.Find("no-such-session", "/proj/a"); got != "" {
		t.Errorf("Find=%q, want empty", got)
	}
	if got := loc.Find("", "/proj/a"); got != "" {
		t.Errorf("Find with empty id=%q, want empty", got)
	}
}
