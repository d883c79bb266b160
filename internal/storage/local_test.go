package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "root")

		storage, err := NewLocalStorage(root, filepath.Join(t.TempDir(), "Trash"))
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.Root() != root {
			t.Errorf("Root() = %v, want %v", storage.Root(), root)
		}

		info, err := os.Stat(root)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		storage, err := NewLocalStorage("", filepath.Join(t.TempDir(), "Trash"))
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "clipkit")
		if storage.Root() != expected {
			t.Errorf("Root() = %v, want %v", storage.Root(), expected)
		}
	})

	t.Run("uses XDG data home for the trash", func(t *testing.T) {
		xdg := t.TempDir()
		t.Setenv("XDG_DATA_HOME", xdg)

		storage, err := NewLocalStorage(t.TempDir(), "")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}
		if got, want := storage.Trash().Dir(), filepath.Join(xdg, "Trash"); got != want {
			t.Errorf("Trash().Dir() = %v, want %v", got, want)
		}
	})

	t.Run("applies fallback retention", func(t *testing.T) {
		storage, err := NewLocalStorage(t.TempDir(), filepath.Join(t.TempDir(), "Trash"), WithFallbackRetention(time.Hour))
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}
		if got := storage.Trash().retention; got != time.Hour {
			t.Errorf("retention = %v, want %v", got, time.Hour)
		}
		if want := filepath.Join(storage.Root(), ".trash"); storage.Trash().fallback != want {
			t.Errorf("fallback = %v, want %v", storage.Trash().fallback, want)
		}
	})

	t.Run("resolves relative directories", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cwd, err := os.Getwd()
		if err != nil {
			t.Fatalf("Getwd() error = %v", err)
		}

		storage, err := NewLocalStorage("work", "trash")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if want := filepath.Join(cwd, "work"); storage.Root() != want {
			t.Errorf("Root() = %v, want %v", storage.Root(), want)
		}
		if want := filepath.Join(cwd, "trash"); storage.Trash().Dir() != want {
			t.Errorf("Trash().Dir() = %v, want %v", storage.Trash().Dir(), want)
		}

		ws, err := storage.NewWorkspace(context.Background())
		if err != nil {
			t.Fatalf("NewWorkspace() error = %v", err)
		}
		defer func() { _ = ws.Release() }()
		if !filepath.IsAbs(ws.Dir()) || !filepath.IsAbs(ws.Path("seg.mp4")) {
			t.Errorf("workspace paths are not absolute: %s", ws.Dir())
		}
	})
}

func TestLocalStorage_NewWorkspace(t *testing.T) {
	storage := setupTestStorage(t)

	t.Run("creates a unique run directory", func(t *testing.T) {
		a, err := storage.NewWorkspace(context.Background())
		if err != nil {
			t.Fatalf("NewWorkspace() error = %v", err)
		}
		b, err := storage.NewWorkspace(context.Background())
		if err != nil {
			t.Fatalf("NewWorkspace() error = %v", err)
		}
		t.Cleanup(func() { _ = a.Release(); _ = b.Release() })

		if a.Dir() == b.Dir() {
			t.Errorf("workspaces share a directory: %s", a.Dir())
		}
		if !strings.HasPrefix(filepath.Base(a.Dir()), "run-") {
			t.Errorf("Dir() = %s, want run- prefix", a.Dir())
		}
		if filepath.Dir(a.Dir()) != storage.Root() {
			t.Errorf("workspace %s is not under %s", a.Dir(), storage.Root())
		}
		if got := a.Path("x.mp4"); got != filepath.Join(a.Dir(), "x.mp4") {
			t.Errorf("Path() = %s", got)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.NewWorkspace(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestWorkspace_Release(t *testing.T) {
	storage := setupTestStorage(t)

	ws, err := storage.NewWorkspace(context.Background())
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	if err := os.WriteFile(ws.Path("segment.mp4"), []byte("data"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Errorf("workspace %s still exists", ws.Dir())
	}

	recycled := filepath.Join(storage.Trash().Dir(), "files", filepath.Base(ws.Dir()), "segment.mp4")
	content, err := os.ReadFile(recycled)
	if err != nil {
		t.Fatalf("recycled file missing: %v", err)
	}
	if string(content) != "data" {
		t.Errorf("got %q, want %q", content, "data")
	}

	if err := ws.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestPromote(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	if err := os.WriteFile(src, []byte("rendered"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Run("copies into a new file", func(t *testing.T) {
		dst := filepath.Join(dir, "out", "clip.mp4")
		if err := Promote(src, dst); err != nil {
			t.Fatalf("Promote() error = %v", err)
		}
		content, err := os.ReadFile(dst)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(content) != "rendered" {
			t.Errorf("got %q, want %q", content, "rendered")
		}
		if _, err := os.Stat(src); err != nil {
			t.Errorf("source removed: %v", err)
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		dst := filepath.Join(dir, "existing.mp4")
		if err := os.WriteFile(dst, []byte("keep me"), 0600); err != nil {
			t.Fatalf("write: %v", err)
		}

		err := Promote(src, dst)
		if !errors.Is(err, ErrDestinationExists) {
			t.Fatalf("expected ErrDestinationExists, got %v", err)
		}
		content, _ := os.ReadFile(dst)
		if string(content) != "keep me" {
			t.Errorf("destination modified: %q", content)
		}
	})

	t.Run("missing source leaves no destination", func(t *testing.T) {
		dst := filepath.Join(dir, "never.mp4")
		if err := Promote(filepath.Join(dir, "missing.mp4"), dst); err == nil {
			t.Fatal("expected error for missing source")
		}
		if _, err := os.Stat(dst); !os.IsNotExist(err) {
			t.Errorf("destination %s was created", dst)
		}
	})
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	storage, err := NewLocalStorage(t.TempDir(), filepath.Join(t.TempDir(), "Trash"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}
