package action

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/timecode"
)

// Document is the serialized form of an action list, read from YAML files by
// the CLI and from JSON request bodies by the API:
//
//	actions:
//	  - join:
//	      - {start: "00:00:05.000", end: "00:00:07.000"}
//	      - {start: "00:01:00.000", end: "00:01:02.000"}
//	  - gif: {capture_fps: 15, width: 320}
type Document struct {
	Actions []Entry `yaml:"actions" json:"actions" validate:"required,min=1,dive"`
}

// Entry holds exactly one action.
type Entry struct {
	Join []TrimSpec `yaml:"join,omitempty" json:"join,omitempty" validate:"omitempty,dive"`
	GIF  *GIFSpec   `yaml:"gif,omitempty" json:"gif,omitempty"`
}

// TrimSpec is a trim with HH:MM:SS[.fff] bounds; empty means unbounded.
type TrimSpec struct {
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	End   string `yaml:"end,omitempty" json:"end,omitempty"`
}

// GIFSpec mirrors GIF. Omitted fields take GIF defaults.
type GIFSpec struct {
	CaptureFPS     float64 `yaml:"capture_fps" json:"capture_fps" validate:"gt=0"`
	PlaybackFactor float64 `yaml:"playback_factor,omitempty" json:"playback_factor,omitempty" validate:"gte=0"`
	Width          int     `yaml:"width,omitempty" json:"width,omitempty"`
	Height         int     `yaml:"height,omitempty" json:"height,omitempty"`
}

// DecodeYAML reads a Document, rejecting unknown fields.
func DecodeYAML(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errs.Validation("action document is empty")
		}
		return nil, fmt.Errorf("%w: decode action document: %w", errs.ErrValidation, err)
	}
	return &doc, nil
}

// Build converts the document into validated actions.
func (d *Document) Build() ([]Action, error) {
	if err := validate.Struct(d); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrValidation, err)
	}

	actions := make([]Action, 0, len(d.Actions))
	for i, e := range d.Actions {
		a, err := e.build()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func (e Entry) build() (Action, error) {
	switch {
	case e.Join != nil && e.GIF != nil:
		return nil, errs.Validation("entry sets both join and gif")
	case e.Join != nil:
		trims := make([]Trim, 0, len(e.Join))
		for i, ts := range e.Join {
			t, err := ts.build()
			if err != nil {
				return nil, fmt.Errorf("trim %d: %w", i, err)
			}
			trims = append(trims, t)
		}
		return NewJoin(trims...), nil
	case e.GIF != nil:
		return e.GIF.build(), nil
	default:
		return nil, errs.Validation("entry sets neither join nor gif")
	}
}

func (ts TrimSpec) build() (Trim, error) {
	start, err := parseBound(ts.Start)
	if err != nil {
		return Trim{}, err
	}
	end, err := parseBound(ts.End)
	if err != nil {
		return Trim{}, err
	}
	return NewTrim(start, end), nil
}

func parseBound(s string) (*timecode.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := timecode.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTrim, err)
	}
	return &t, nil
}

func (gs GIFSpec) build() GIF {
	g := NewGIF(gs.CaptureFPS)
	if gs.PlaybackFactor != 0 {
		g = g.WithPlaybackFactor(gs.PlaybackFactor)
	}
	if gs.Width != 0 {
		g.Width = gs.Width
	}
	if gs.Height != 0 {
		g.Height = gs.Height
	}
	return g
}
