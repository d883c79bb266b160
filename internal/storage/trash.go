package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
)

// rename is swapped in tests to simulate cross-device moves.
var rename = os.Rename

// Trash is a freedesktop.org style recycle bin: recycled entries live in
// files/ and each one gets a matching info/<name>.trashinfo record.
type Trash struct {
	dir       string
	fallback  string
	retention time.Duration
	now       func() time.Time
}

const deletionDateLayout = "2006-01-02T15:04:05"

// NewTrash resolves the recycle bin location. dir wins when set; otherwise
// $XDG_DATA_HOME/Trash, then ~/.local/share/Trash. fallback is used when an
// entry cannot be renamed into the primary bin because it lives on another
// filesystem.
func NewTrash(dir, fallback string) (*Trash, error) {
	if dir == "" {
		resolved, err := defaultTrashDir()
		if err != nil {
			return nil, err
		}
		dir = resolved
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve trash directory: %w", err)
	}
	if fallback != "" {
		if fallback, err = filepath.Abs(fallback); err != nil {
			return nil, fmt.Errorf("resolve trash directory: %w", err)
		}
	}
	return &Trash{dir: dir, fallback: fallback, now: time.Now}, nil
}

func defaultTrashDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "Trash"), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "Trash"), nil
}

// SetRetention bounds how long entries stay in the fallback bin. Expired
// entries are dropped each time something lands there. Zero keeps them.
func (t *Trash) SetRetention(d time.Duration) {
	t.retention = d
}

// Dir returns the primary recycle bin directory.
func (t *Trash) Dir() string {
	return t.dir
}

// Recycle moves path into the bin and returns where it ended up.
func (t *Trash) Recycle(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if _, err := os.Lstat(abs); err != nil {
		return "", fmt.Errorf("recycle %s: %w", abs, err)
	}

	dst, err := t.recycleInto(t.dir, abs)
	if err != nil && t.fallback != "" && isCrossDevice(err) {
		if dst, err = t.recycleInto(t.fallback, abs); err == nil && t.retention > 0 {
			_, _ = t.PurgeFallback(t.retention)
		}
	}
	if err != nil {
		return "", fmt.Errorf("recycle %s: %w", abs, err)
	}
	return dst, nil
}

// PurgeFallback permanently removes fallback entries recycled more than age
// ago and returns how many were removed. The primary bin belongs to the
// user and is never purged.
func (t *Trash) PurgeFallback(age time.Duration) (int, error) {
	if t.fallback == "" {
		return 0, nil
	}
	infoDir := filepath.Join(t.fallback, "info")
	entries, err := os.ReadDir(infoDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", t.fallback, err)
	}

	now := t.now()
	cutoff := now.Add(-age)
	var removed int
	var errs []error
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".trashinfo")
		if !ok || e.IsDir() {
			continue
		}
		record := filepath.Join(infoDir, e.Name())
		deleted, err := readDeletionDate(record, now.Location())
		if err != nil || !deleted.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(t.fallback, "files", name)); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(record); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if err := errors.Join(errs...); err != nil {
		return removed, fmt.Errorf("purge %s: %w", t.fallback, err)
	}
	return removed, nil
}

// readDeletionDate reads the DeletionDate of a .trashinfo record. The stamp
// carries no zone, so it is read in loc.
func readDeletionDate(path string, loc *time.Location) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "DeletionDate="); ok {
			return time.ParseInLocation(deletionDateLayout, strings.TrimSpace(v), loc)
		}
	}
	if err := sc.Err(); err != nil {
		return time.Time{}, err
	}
	return time.Time{}, fmt.Errorf("%s: no DeletionDate", path)
}

func (t *Trash) recycleInto(dir, abs string) (string, error) {
	files := filepath.Join(dir, "files")
	info := filepath.Join(dir, "info")
	for _, d := range []string{files, info} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return "", err
		}
	}

	name, record, err := reserveInfo(info, filepath.Base(abs))
	if err != nil {
		return "", err
	}

	body := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		filepath.ToSlash(abs), t.now().Format(deletionDateLayout))
	if _, err := record.WriteString(body); err != nil {
		_ = record.Close()
		_ = os.Remove(record.Name())
		return "", err
	}
	if err := record.Close(); err != nil {
		_ = os.Remove(record.Name())
		return "", err
	}

	dst := filepath.Join(files, name)
	if err := rename(abs, dst); err != nil {
		_ = os.Remove(record.Name())
		return "", err
	}
	return dst, nil
}

// reserveInfo claims a unique entry name by exclusively creating its
// .trashinfo file; the name gets a random suffix on collision.
func reserveInfo(infoDir, base string) (string, *os.File, error) {
	name := base
	for {
		f, err := os.OpenFile(filepath.Join(infoDir, name+".trashinfo"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			return name, f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", nil, err
		}
		name = base + "." + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
}

func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
