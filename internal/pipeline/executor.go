package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/clipkit/internal/action"
	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/process"
	"github.com/maauso/clipkit/internal/storage"
)

// Store hands out scoped workspaces.
type Store interface {
	NewWorkspace(ctx context.Context) (*storage.Workspace, error)
}

// Executor runs plans step by step inside a fresh workspace.
type Executor struct {
	planner *Planner
	store   Store
	logger  *slog.Logger
}

// NewExecutor creates an Executor. If logger is nil, slog.Default() is used.
func NewExecutor(planner *Planner, store Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{planner: planner, store: store, logger: logger}
}

// Execute renders actions applied to source into destination.
//
// The workspace is released on every return path, and a release failure is
// joined into the returned error. Steps run strictly in order; the first
// failing step stops the run. destination is only written once every step
// has succeeded, and never overwritten.
func (e *Executor) Execute(ctx context.Context, source string, actions []action.Action, destination string) (err error) {
	// Steps run inside the workspace, so relative inputs would resolve there.
	if source, err = filepath.Abs(source); err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	ws, err := e.store.NewWorkspace(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			e.logger.Warn("failed to release workspace",
				slog.String("dir", ws.Dir()),
				slog.String("error", rerr.Error()),
			)
			err = errors.Join(err, rerr)
		}
	}()

	plan, err := e.planner.Plan(source, ws.Dir(), actions)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	started := time.Now()
	e.logger.Info("render started",
		slog.String("source", source),
		slog.String("destination", destination),
		slog.Int("steps", len(plan.Steps)),
	)

	for i, step := range plan.Steps {
		if err := e.runStep(ctx, i, step, ws.Dir()); err != nil {
			return err
		}
	}

	if err := storage.Promote(plan.Output(), destination); err != nil {
		if errors.Is(err, storage.ErrDestinationExists) {
			return fmt.Errorf("%w: %w", errs.ErrValidation, err)
		}
		return fmt.Errorf("promote: %w", err)
	}

	e.logger.Info("render completed",
		slog.String("destination", destination),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (e *Executor) runStep(ctx context.Context, i int, step Step, dir string) error {
	for _, f := range step.Files {
		if err := os.WriteFile(f.Path, f.Content, 0600); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(f.Path), err)
		}
	}

	cmdline, err := step.Command()
	if err != nil {
		return fmt.Errorf("step %s: %w", step.Name, err)
	}

	e.logger.Debug("running step",
		slog.Int("index", i),
		slog.String("step", step.Name),
		slog.String("command", cmdline),
	)

	res, err := process.Run(ctx, cmdline, process.WithLogger(e.logger), process.WithDir(dir))
	if err != nil {
		e.logger.Error("step failed",
			slog.String("step", step.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("run step %s: %w", step.Name, err)
	}

	e.logger.Debug("step finished",
		slog.String("step", step.Name),
		slog.Duration("elapsed", res.Elapsed),
	)
	return nil
}

// DryRun plans actions against a placeholder workspace and returns the
// command lines Execute would run.
func (e *Executor) DryRun(source string, actions []action.Action) ([]string, error) {
	plan, err := e.planner.Plan(source, filepath.Join(os.TempDir(), "clipkit-dry-run"), actions)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	return plan.Commands()
}
