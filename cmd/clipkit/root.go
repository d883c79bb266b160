package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/clipkit/internal/bootstrap"
	"github.com/maauso/clipkit/internal/config"
)

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "clipkit",
		Short: "Cut clips and GIFs out of videos with ffmpeg",
		Long: `clipkit - declarative video clipping on top of ffmpeg

Describe what to cut in an action document, then render it:

  actions:
    - join:
        - {start: "00:00:10", end: "00:00:20"}
        - {start: "00:01:00", end: "00:01:05"}
    - gif: {capture_fps: 15, width: 320}

Configuration is read from the environment (FFMPEG_PATH, FFPROBE_PATH,
RENDER_CRF, TEMP_DIR, TRASH_DIR, S3_BUCKET, ...).

Examples:
  clipkit probe talk.mp4
  clipkit render talk.mp4 highlight.gif -f actions.yaml
  clipkit render talk.mp4 highlight.gif -f actions.yaml --dry-run
  clipkit serve`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("clipkit version {{.Version}} (commit: %s)\n", Commit))
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newProbeCmd(opts),
		newRenderCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// setup loads the environment config and a logger writing to stderr, so
// stdout stays free for command output.
func (o *rootOptions) setup(ctx context.Context) (*config.Config, *slog.Logger, *bootstrap.Dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	logger := cfg.NewLoggerTo(os.Stderr)
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return cfg, logger, deps, nil
}
