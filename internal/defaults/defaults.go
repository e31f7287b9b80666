// Package defaults centralizes the filesystem layout owned by the Gemini CLI
// and discovery of its binary. All paths derive from the user's home directory;
// this layer never creates anything under them.
package defaults

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

var (
	geminiPath     string
	geminiPathOnce sync.Once
)

// homeDir returns the user's home directory, tolerating restricted environments.
func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.Getenv("HOME")
}

// GeminiDir returns the Gemini CLI's state directory (~/.gemini).
// The GEMINI_DIR environment variable overrides it, which tests rely on.
func GeminiDir() string {
	if dir := os.Getenv("GEMINI_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".gemini")
}

// RegistryPath returns the CLI's project registry file (~/.gemini/projects.json).
func RegistryPath() string {
	return filepath.Join(GeminiDir(), "projects.json")
}

// TmpDir returns the root under which the CLI keys state by project identifier.
func TmpDir() string {
	return filepath.Join(GeminiDir(), "tmp")
}

// ChatsDir returns the transcript directory for a project identifier.
func ChatsDir(projectID string) string {
	return filepath.Join(TmpDir(), projectID, "chats")
}

// findGeminiBinary searches for the gemini binary in common locations.
// Server processes launched from init systems have a limited PATH, so we
// check common install locations after LookPath.
func findGeminiBinary() string {
	if path, err := exec.LookPath("gemini"); err == nil {
		return path
	}

	home := homeDir()
	locations := []string{
		"/usr/local/bin/gemini",
		"/opt/homebrew/bin/gemini",
		filepath.Join(home, ".local/bin/gemini"),
		filepath.Join(home, ".npm-global/bin/gemini"),
		filepath.Join(home, "bin/gemini"),
	}

	for _, loc := range locations {
		if info, err := os.Stat(loc); err == nil {
			if info.Mode()&0111 != 0 {
				return loc
			}
		}
	}

	return ""
}

// GetGeminiPath returns the path to the gemini binary (cached).
func GetGeminiPath() string {
	geminiPathOnce.Do(func() {
		geminiPath = findGeminiBinary()
	})
	return geminiPath
}

// IsGeminiInstalled reports whether the gemini CLI is available.
func IsGeminiInstalled() bool {
	return GetGeminiPath() != ""
}
