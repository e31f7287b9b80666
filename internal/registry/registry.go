// Package registry resolves project paths to the opaque project identifiers
// the Gemini CLI assigns in its projects.json registry. The lookup is
// advisory: any read or parse failure resolves to "not found", and the
// registry file is never written by this layer.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Leonccaa/claudecodeui/internal/defaults"
)

// projectsFile mirrors the registry file the CLI maintains.
type projectsFile struct {
	Projects map[string]string `json:"projects"`
}

// Resolver maps absolute project paths to CLI project identifiers.
// The registry file is re-read on every lookup; the CLI owns it and may
// rewrite it at any time.
type Resolver struct {
	path string
}

// NewResolver returns a resolver over the default registry location.
func NewResolver() *Resolver {
	return &Resolver{path: defaults.RegistryPath()}
}

// NewResolverAt returns a resolver over a specific registry file.
func NewResolverAt(path string) *Resolver {
	return &Resolver{path: path}
}

// Resolve returns the project identifier registered for projectPath, or ""
// when none is registered or the registry is unreadable. Exact string match
// first; if that fails, the candidate's real path (symlinks resolved) is
// compared against the real path of every registered key, first match wins.
func (r *Resolver) Resolve(projectPath string) string {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return ""
	}

	var reg projectsFile
	if err := json.Unmarshal(data, &reg); err != nil {
		return ""
	}

	if id, ok := reg.Projects[projectPath]; ok {
		return id
	}

	// Symlink/alias tolerance: the UI may hand us an aliased path while the
	// CLI registered the canonical one (or vice versa).
	realCandidate, err := filepath.EvalSymlinks(projectPath)
	if err != nil {
		return ""
	}

	for registered, id := range reg.Projects {
		realRegistered, err := filepath.EvalSymlinks(registered)
		if err != nil {
			continue
		}
		if realRegistered == realCandidate {
			return id
		}
	}

	return ""
}
