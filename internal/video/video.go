// Package video is the entry point for editing a single source file:
// probe it, register actions, save the result.
package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maauso/clipkit/internal/action"
	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/media"
)

var (
	// ErrSourceUnreadable is returned by New when the source cannot be opened.
	ErrSourceUnreadable = fmt.Errorf("%w: source is not readable", errs.ErrValidation)
	// ErrDestinationExists is returned by Save when the destination is already present.
	ErrDestinationExists = fmt.Errorf("%w: destination exists", errs.ErrValidation)
)

// Prober reads stream metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Metadata, error)
}

// Runner renders an action list applied to source into destination.
type Runner interface {
	Execute(ctx context.Context, source string, actions []action.Action, destination string) error
}

// Video is a probed source file plus the actions registered against it.
type Video struct {
	source   string
	metadata media.Metadata
	runner   Runner

	mu      sync.Mutex
	actions []action.Action
}

// New opens source and probes it.
func New(ctx context.Context, source string, prober Prober, runner Runner) (*Video, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, source, err)
	}
	if err := checkReadable(abs); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, source, err)
	}

	md, err := prober.Probe(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", source, err)
	}

	return &Video{source: abs, metadata: md, runner: runner}, nil
}

func checkReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 - path is the user's source file
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("not a regular file")
	}
	return nil
}

// Source returns the absolute path of the source file.
func (v *Video) Source() string { return v.source }

// Metadata returns the probed stream metadata.
func (v *Video) Metadata() media.Metadata { return v.metadata }

// FPS returns the average frame rate.
func (v *Video) FPS() float64 { return v.metadata.FPS }

// Dimensions returns width and height in pixels.
func (v *Video) Dimensions() (int, int) { return v.metadata.Dimensions() }

// Register appends a to the action list. Validation happens on Save.
func (v *Video) Register(a action.Action) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.actions = append(v.actions, a)
}

// ClearActions empties the action list.
func (v *Video) ClearActions() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.actions = nil
}

// Actions returns a copy of the registered actions.
func (v *Video) Actions() []action.Action {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]action.Action(nil), v.actions...)
}

// Save renders the registered actions into destination, which must not
// exist yet.
func (v *Video) Save(ctx context.Context, destination string) error {
	abs, err := filepath.Abs(destination)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	if _, err := os.Lstat(abs); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, destination)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat destination: %w", err)
	}

	return v.runner.Execute(ctx, v.source, v.Actions(), abs)
}
