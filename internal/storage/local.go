package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalStorage hands out per-run workspaces under a root directory and
// recycles them when they are released.
type LocalStorage struct {
	root  string
	trash *Trash
}

// Option configures a LocalStorage.
type Option func(*LocalStorage)

// WithFallbackRetention sets how long released workspaces are kept in
// <root>/.trash, the bin used when the recycle bin is on another
// filesystem. Zero keeps them until removed by hand.
func WithFallbackRetention(d time.Duration) Option {
	return func(s *LocalStorage) {
		s.trash.SetRetention(d)
	}
}

// NewLocalStorage creates a new LocalStorage instance.
// If root is empty, <os.TempDir()>/clipkit is used. A relative root is
// resolved against the current directory, since tools run with the
// workspace as their working directory. trashDir overrides the user recycle
// bin; see NewTrash. The root directory is created if it doesn't exist.
func NewLocalStorage(root, trashDir string, opts ...Option) (*LocalStorage, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "clipkit")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve temp directory: %w", err)
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	trash, err := NewTrash(trashDir, filepath.Join(root, ".trash"))
	if err != nil {
		return nil, err
	}

	s := &LocalStorage{root: root, trash: trash}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the directory workspaces are created in.
func (s *LocalStorage) Root() string {
	return s.root
}

// Trash returns the recycle bin released workspaces are moved into.
func (s *LocalStorage) Trash() *Trash {
	return s.trash
}

// NewWorkspace creates a fresh run directory. The caller must Release it.
func (s *LocalStorage) NewWorkspace(ctx context.Context) (*Workspace, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir := filepath.Join(s.root, "run-"+uuid.NewString())
	if err := os.Mkdir(dir, 0750); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir, trash: s.trash}, nil
}

// Workspace is the scoped directory of a single render.
type Workspace struct {
	dir   string
	trash *Trash

	once sync.Once
	err  error
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Release moves the workspace into the recycle bin. Only the first call
// does any work; later calls return its result.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		if _, err := w.trash.Recycle(w.dir); err != nil {
			w.err = fmt.Errorf("release workspace: %w", err)
		}
	})
	return w.err
}
