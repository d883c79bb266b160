package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/maauso/clipkit/internal/action"
	"github.com/maauso/clipkit/internal/storage"
	"github.com/maauso/clipkit/internal/video"
)

type renderOptions struct {
	file   string
	dryRun bool
	s3Key  string
}

func newRenderCmd(root *rootOptions) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render <source> <destination>",
		Short: "Render an action document against a source video",
		Long: `Render applies the actions in the document given with -f to <source> and
writes the result to <destination>. The destination must not exist.

With --dry-run the ffmpeg command lines are printed instead of run.
With --s3-key the rendered file is also uploaded to the configured bucket.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, root, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "action document (YAML)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the ffmpeg commands without running them")
	cmd.Flags().StringVar(&opts.s3Key, "s3-key", "", "upload the result to this S3 object key")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runRender(cmd *cobra.Command, root *rootOptions, opts *renderOptions, source, destination string) error {
	actions, err := loadActions(opts.file)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, logger, deps, err := root.setup(ctx)
	if err != nil {
		return err
	}

	if opts.dryRun {
		cmds, err := deps.Executor.DryRun(source, actions)
		if err != nil {
			return err
		}
		return printLines(cmd.OutOrStdout(), cmds)
	}

	if opts.s3Key != "" && deps.Publisher == nil {
		return storage.ErrS3NotConfigured
	}

	v, err := video.New(ctx, source, deps.Prober, deps.Executor)
	if err != nil {
		return err
	}
	for _, a := range actions {
		v.Register(a)
	}

	logger.Info("rendering",
		slog.String("source", v.Source()),
		slog.String("destination", destination),
		slog.String("metadata", v.Metadata().String()),
	)
	if err := v.Save(ctx, destination); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("render interrupted: %w", err)
		}
		return err
	}

	if opts.s3Key != "" {
		url, err := deps.Publisher.Upload(ctx, opts.s3Key, destination)
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
	}
	return nil
}

// loadActions reads and builds the action document at path; "~" is expanded.
func loadActions(path string) ([]action.Action, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", path, err)
	}

	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("open action document: %w", err)
	}
	defer func() { _ = f.Close() }()

	doc, err := action.DecodeYAML(f)
	if err != nil {
		return nil, err
	}
	return doc.Build()
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
