// Package main is the clipkit entry point: a CLI for cutting clips and GIFs
// out of videos with ffmpeg, and the HTTP render API behind `clipkit serve`.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
