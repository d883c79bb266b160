// Package media reads stream metadata from source files with ffprobe.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/clipkit/internal/command"
	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/process"
)

// Static errors for probing. Both wrap errs.ErrValidation.
var (
	// ErrProbeIncomplete is returned when ffprobe did not report width,
	// height and frame rate for the first video stream.
	ErrProbeIncomplete = fmt.Errorf("%w: probe output incomplete", errs.ErrValidation)
	// ErrInvalidMetadata is returned when a probed value is malformed or not positive.
	ErrInvalidMetadata = fmt.Errorf("%w: invalid stream metadata", errs.ErrValidation)
)

const probeTemplate command.Template = `{{{FFPROBE}}} -v error -select_streams v:0
	-show_entries stream=avg_frame_rate,width,height
	-of default=noprint_wrappers=1 {{{SRC}}}`

var validate = validator.New()

// Metadata describes the first video stream of a source file.
type Metadata struct {
	Width  int     `json:"width" validate:"gt=0"`
	Height int     `json:"height" validate:"gt=0"`
	FPS    float64 `json:"fps" validate:"gt=0"`
}

// Dimensions returns width and height in pixels.
func (m Metadata) Dimensions() (int, int) {
	return m.Width, m.Height
}

func (m Metadata) String() string {
	return fmt.Sprintf("%dx%d@%.3f", m.Width, m.Height, m.FPS)
}

// Prober queries ffprobe for stream metadata.
type Prober struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	logger      *slog.Logger
}

// NewProber creates a Prober. If ffprobePath is empty, "ffprobe" is found via PATH.
func NewProber(ffprobePath string, logger *slog.Logger) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{ffprobePath: ffprobePath, logger: logger}
}

// Probe reads width, height and average frame rate of path.
func (p *Prober) Probe(ctx context.Context, path string) (Metadata, error) {
	cmdline, err := probeTemplate.NewFormatter().
		AssertParameter("FFPROBE", command.Arg(p.ffprobePath)).
		AssertParameter("SRC", command.Arg(path)).
		Command()
	if err != nil {
		return Metadata{}, err
	}

	res, err := process.Run(ctx, cmdline, process.WithLogger(p.logger))
	if err != nil {
		return Metadata{}, fmt.Errorf("probe %s: %w", path, err)
	}

	meta, err := ParseProbeOutput(res.Stdout)
	if err != nil {
		return Metadata{}, fmt.Errorf("probe %s: %w", path, err)
	}

	p.logger.Debug("probed source",
		slog.String("path", path),
		slog.Int("width", meta.Width),
		slog.Int("height", meta.Height),
		slog.Float64("fps", meta.FPS),
	)
	return meta, nil
}

// ParseProbeOutput reads whitespace-separated key=value pairs. width, height
// and avg_frame_rate must all be present; other keys are ignored.
func ParseProbeOutput(out string) (Metadata, error) {
	var (
		meta Metadata
		seen = make(map[string]bool, 3)
	)

	for _, token := range strings.Fields(out) {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}

		var err error
		switch key {
		case "width":
			meta.Width, err = strconv.Atoi(value)
		case "height":
			meta.Height, err = strconv.Atoi(value)
		case "avg_frame_rate":
			meta.FPS, err = ParseRate(value)
		default:
			continue
		}
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: %s=%q: %w", ErrInvalidMetadata, key, value, err)
		}
		seen[key] = true
	}

	var missing []string
	for _, key := range []string{"width", "height", "avg_frame_rate"} {
		if !seen[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Metadata{}, fmt.Errorf("%w: missing %s", ErrProbeIncomplete, strings.Join(missing, ", "))
	}

	if err := validate.Struct(meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	return meta, nil
}

// ParseRate evaluates a rate given as "A/B" (e.g. 30000/1001) or a plain number.
func ParseRate(s string) (float64, error) {
	num, den, isRatio := strings.Cut(s, "/")

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	if !isRatio {
		return n, nil
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("zero denominator in %q", s)
	}
	return n / d, nil
}
