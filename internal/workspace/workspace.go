// Package workspace provides uniquely named temporary directories whose
// teardown never fails the caller.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/systmms/pgpsecret/internal/logging"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "OpenPGP-"

// Workspace is a private (0700) temporary directory owned by one operation.
type Workspace struct {
	dir    string
	logger *logging.Logger

	mu      sync.Mutex
	hooks   []func()
	removed bool
}

// New creates a fresh directory under root (os.TempDir() when empty) whose
// name starts with prefix.
func New(root, prefix string, logger *logging.Logger) (*Workspace, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = logging.Discard()
	}

	dir, err := os.MkdirTemp(root, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	logger.Debug("Created workspace %s", dir)

	return &Workspace{dir: dir, logger: logger}, nil
}

// With runs fn inside a new workspace and removes it afterwards, whatever fn
// returns and even if it panics.
func With(root, prefix string, logger *logging.Logger, fn func(*Workspace) error) error {
	ws, err := New(root, prefix, logger)
	if err != nil {
		return err
	}
	defer ws.Remove()
	return fn(ws)
}

// Dir returns the absolute workspace path.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Mkdir creates a private subdirectory and returns its path.
func (w *Workspace) Mkdir(name string) (string, error) {
	p := w.Path(name)
	if err := os.Mkdir(p, 0700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	return p, nil
}

// WriteFile writes data to a file readable only by the current user and
// returns its path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	p := w.Path(name)
	if err := os.WriteFile(p, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return p, nil
}

// OnRemove registers fn to run before the directory is deleted. Hooks run
// in reverse registration order.
func (w *Workspace) OnRemove(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, fn)
}

// Remove runs the registered hooks and deletes the directory tree. It is
// idempotent and never panics; failures are logged.
func (w *Workspace) Remove() {
	w.mu.Lock()
	if w.removed {
		w.mu.Unlock()
		return
	}
	w.removed = true
	hooks := w.hooks
	w.hooks = nil
	w.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		w.runHook(hooks[i])
	}

	if err := os.RemoveAll(w.dir); err != nil {
		w.logger.Warn("Failed to remove workspace %s: %v", w.dir, err)
		return
	}
	w.logger.Debug("Removed workspace %s", w.dir)
}

func (w *Workspace) runHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("Workspace cleanup hook panicked: %v", r)
		}
	}()
	fn()
}
