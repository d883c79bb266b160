// Package action defines the declarative edit steps a pipeline is built from.
// The set of actions is closed: Trim, Join and GIF. Actions carry parameters
// only; the pipeline planner decides what they turn into.
package action

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/timecode"
)

// Static errors for action validation. All of them wrap errs.ErrValidation.
var (
	// ErrInvalidTrim is returned for a trim whose boundaries are out of order
	// or which carries sub-actions.
	ErrInvalidTrim = fmt.Errorf("%w: invalid trim", errs.ErrValidation)
	// ErrEmptyJoin is returned for a join without trims.
	ErrEmptyJoin = fmt.Errorf("%w: join needs at least one trim", errs.ErrValidation)
	// ErrInvalidGIF is returned for a GIF with non-positive rates or sizes.
	ErrInvalidGIF = fmt.Errorf("%w: invalid gif", errs.ErrValidation)
)

// AutoSize keeps the aspect ratio along a GIF dimension.
const AutoSize = -1

var validate = validator.New()

// Kind discriminates the action variants.
type Kind string

const (
	// KindTrim selects a time range from the source.
	KindTrim Kind = "trim"
	// KindJoin concatenates trims in order.
	KindJoin Kind = "join"
	// KindGIF renders the joined result as an animated GIF.
	KindGIF Kind = "gif"
)

// Action is one of Trim, Join or GIF.
type Action interface {
	Kind() Kind
	Validate() error
	isAction()
}

// Trim selects [Start, End) from the source. A nil bound means the start or
// end of the file.
type Trim struct {
	Start *timecode.Time
	End   *timecode.Time
	// SubActions is reserved; a trim carrying sub-actions is rejected.
	SubActions []Action
}

// NewTrim returns a trim between the optional bounds.
func NewTrim(start, end *timecode.Time) Trim {
	return Trim{Start: start, End: end}
}

// Kind implements Action.
func (Trim) Kind() Kind { return KindTrim }

func (Trim) isAction() {}

// Validate checks that Start is before End and that no sub-actions are set.
func (t Trim) Validate() error {
	if t.Start != nil && t.End != nil && !t.Start.Before(*t.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidTrim, t.Start, t.End)
	}
	if len(t.SubActions) > 0 {
		return fmt.Errorf("%w: sub-actions are not supported", ErrInvalidTrim)
	}
	return nil
}

// Join concatenates the output of its trims in order.
type Join struct {
	Trims []Trim
}

// NewJoin returns a join of the given trims.
func NewJoin(trims ...Trim) Join {
	return Join{Trims: trims}
}

// Kind implements Action.
func (Join) Kind() Kind { return KindJoin }

func (Join) isAction() {}

// Validate checks that the join has trims and that each of them is valid.
func (j Join) Validate() error {
	if len(j.Trims) == 0 {
		return ErrEmptyJoin
	}
	for i, t := range j.Trims {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("trim %d: %w", i, err)
		}
	}
	return nil
}

// GIF renders the joined video as a looping animated GIF.
type GIF struct {
	// CaptureFPS is the rate frames are sampled from the video.
	CaptureFPS float64 `validate:"gt=0"`
	// PlaybackFactor speeds playback up (>1) or slows it down (<1).
	PlaybackFactor float64 `validate:"gt=0"`
	// Width and Height are in pixels; AutoSize preserves the aspect ratio.
	Width  int `validate:"eq=-1|gt=0"`
	Height int `validate:"eq=-1|gt=0"`
}

// NewGIF returns a GIF sampled at captureFPS with normal playback speed and
// the source size.
func NewGIF(captureFPS float64) GIF {
	return GIF{
		CaptureFPS:     captureFPS,
		PlaybackFactor: 1.0,
		Width:          AutoSize,
		Height:         AutoSize,
	}
}

// WithPlaybackFactor returns a copy with the playback factor replaced.
func (g GIF) WithPlaybackFactor(f float64) GIF {
	g.PlaybackFactor = f
	return g
}

// WithSize returns a copy scaled to width x height.
func (g GIF) WithSize(width, height int) GIF {
	g.Width = width
	g.Height = height
	return g
}

// Kind implements Action.
func (GIF) Kind() Kind { return KindGIF }

func (GIF) isAction() {}

// Validate checks rates and sizes.
func (g GIF) Validate() error {
	if err := validate.Struct(g); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGIF, err)
	}
	return nil
}

// Count returns how many actions of kind k are in actions.
func Count(actions []Action, k Kind) int {
	n := 0
	for _, a := range actions {
		if a.Kind() == k {
			n++
		}
	}
	return n
}
