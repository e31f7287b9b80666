// Package watcher monitors Gemini CLI chat directories and notifies the UI
// when session files change, so session lists refresh without polling.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Leonccaa/claudecodeui/internal/defaults"
	"github.com/Leonccaa/claudecodeui/internal/registry"
	"github.com/Leonccaa/claudecodeui/internal/types"
)

// debounceDelay coalesces the burst of write events the CLI produces while
// flushing a transcript into a single notification.
const debounceDelay = 250 * time.Millisecond

// SessionWatcher watches the chats directory of each registered project.
// Watches are directory-level only; individual transcript files are never
// watched.
type SessionWatcher struct {
	watcher  *fsnotify.Watcher
	emitter  types.Emitter
	resolver *registry.Resolver
	tmpDir   string

	mu           sync.Mutex
	dirToProject map[string]string // chats dir -> project path
	pending      map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSessionWatcher creates the watcher and starts its event loop.
func NewSessionWatcher(emitter types.Emitter, resolver *registry.Resolver) (*SessionWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sw := &SessionWatcher{
		watcher:      w,
		emitter:      emitter,
		resolver:     resolver,
		tmpDir:       defaults.TmpDir(),
		dirToProject: make(map[string]string),
		pending:      make(map[string]*time.Timer),
		ctx:          ctx,
		cancel:       cancel,
	}

	go sw.run()
	return sw, nil
}

// WatchProject starts watching the chats directory for a project. A project
// that is not registered yet, or whose chats directory does not exist yet, is
// skipped without error; the caller retries after the first spawn.
func (sw *SessionWatcher) WatchProject(projectPath string) error {
	projectID := sw.resolver.Resolve(projectPath)
	if projectID == "" {
		fmt.Printf("[DEBUG] WatchProject: %s not in registry, skipping\n", projectPath)
		return nil
	}

	chatsDir := filepath.Join(sw.tmpDir, projectID, "chats")
	if _, err := os.Stat(chatsDir); os.IsNotExist(err) {
		return nil
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if _, ok := sw.dirToProject[chatsDir]; ok {
		return nil
	}
	if err := sw.watcher.Add(chatsDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", chatsDir, err)
	}
	sw.dirToProject[chatsDir] = projectPath
	fmt.Printf("[DEBUG] WatchProject: watching %s for %s\n", chatsDir, projectPath)
	return nil
}

// UnwatchProject stops watching a project's chats directory.
func (sw *SessionWatcher) UnwatchProject(projectPath string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	for dir, path := range sw.dirToProject {
		if path == projectPath {
			sw.watcher.Remove(dir)
			delete(sw.dirToProject, dir)
			if timer, ok := sw.pending[path]; ok {
				timer.Stop()
				delete(sw.pending, path)
			}
		}
	}
}

// WatchedProjects lists the project paths with an active watch.
func (sw *SessionWatcher) WatchedProjects() []string {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	paths := make([]string, 0, len(sw.dirToProject))
	for _, path := range sw.dirToProject {
		paths = append(paths, path)
	}
	return paths
}

// run processes file system events until Close.
func (sw *SessionWatcher) run() {
	for {
		select {
		case <-sw.ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				sw.handleEvent(event.Name)
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			fmt.Printf("[WARN] SessionWatcher: %v\n", err)
		}
	}
}

// handleEvent schedules a debounced notification for the project owning the
// changed file.
func (sw *SessionWatcher) handleEvent(path string) {
	if !strings.HasSuffix(path, ".json") {
		return
	}

	dir := filepath.Dir(path)

	sw.mu.Lock()
	defer sw.mu.Unlock()
	projectPath, ok := sw.dirToProject[dir]
	if !ok {
		return
	}

	if timer, ok := sw.pending[projectPath]; ok {
		timer.Reset(debounceDelay)
		return
	}
	sw.pending[projectPath] = time.AfterFunc(debounceDelay, func() {
		sw.mu.Lock()
		delete(sw.pending, projectPath)
		sw.mu.Unlock()
		sw.emitter.Emit(types.EventSessionsDirty, map[string]any{
			"projectPath": projectPath,
		})
	})
}

// Close stops the watcher and releases resources.
func (sw *SessionWatcher) Close() {
	sw.cancel()
	sw.watcher.Close()

	sw.mu.Lock()
	defer sw.mu.Unlock()
	for path, timer := range sw.pending {
		timer.Stop()
		delete(sw.pending, path)
	}
}
