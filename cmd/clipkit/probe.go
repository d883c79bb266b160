package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/clipkit/internal/video"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the dimensions and frame rate of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, deps, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}

			v, err := video.New(cmd.Context(), args[0], deps.Prober, deps.Executor)
			if err != nil {
				return err
			}

			w, h := v.Dimensions()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source: %s\n", v.Source())
			fmt.Fprintf(out, "width:  %d\n", w)
			fmt.Fprintf(out, "height: %d\n", h)
			fmt.Fprintf(out, "fps:    %.3f\n", v.FPS())
			return nil
		},
	}
}
