// Package storage owns the files a render touches outside the external tool:
// per-run workspaces, the recycle bin they are released into, promotion of
// the final artifact to its destination, and optional S3 publication.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrS3NotConfigured is returned when S3 operations are attempted
// without a bucket.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// ErrDestinationExists is returned by Promote when the destination is
// already present.
var ErrDestinationExists = errors.New("destination exists")

// Promote copies src to dst. dst must not exist; it is created exclusively
// and removed again if the copy does not complete.
func Promote(src, dst string) (err error) {
	in, err := os.Open(src) // #nosec G304 - src is a workspace artifact
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = in.Close() }()

	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create destination directory: %w", err)
		}
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644) // #nosec G304 - dst is chosen by the caller
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
		return fmt.Errorf("create destination: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close destination: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy artifact: %w", err)
	}
	return nil
}
