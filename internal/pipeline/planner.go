// Package pipeline turns an action list into ordered ffmpeg invocations and
// runs them inside a scoped workspace.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/maauso/clipkit/internal/action"
	"github.com/maauso/clipkit/internal/command"
	"github.com/maauso/clipkit/internal/errs"
)

// Static planning errors. All of them wrap errs.ErrValidation.
var (
	// ErrNoJoin is returned when the action list has no Join.
	ErrNoJoin = fmt.Errorf("%w: no Join action", errs.ErrValidation)
	// ErrMultipleJoins is returned when the action list has more than one Join.
	ErrMultipleJoins = fmt.Errorf("%w: more than one Join action", errs.ErrValidation)
	// ErrMultipleGIFs is returned when the action list has more than one GIF.
	ErrMultipleGIFs = fmt.Errorf("%w: more than one GIF action", errs.ErrValidation)
	// ErrStrayTrim is returned for a Trim outside of a Join.
	ErrStrayTrim = fmt.Errorf("%w: Trim actions must be part of a Join", errs.ErrValidation)
)

// DefaultCRF is the x264 constant rate factor used for trims.
const DefaultCRF = 15

const (
	trimTemplate command.Template = `{{{FFMPEG}}} -hide_banner -loglevel error -i {{{SRC}}}
	{{{START: -ss {{{TIME}}} :}}}
	{{{END: -to {{{TIME}}} :}}}
	-crf {{{CRF}}} -c:v libx264 -c:a aac {{{DST}}}`

	concatTemplate command.Template = `{{{FFMPEG}}} -hide_banner -loglevel error
	-f concat -safe 0 -i {{{LIST}}} -c copy {{{DST}}}`

	gifTemplate command.Template = `{{{FFMPEG}}} -hide_banner -loglevel error -i {{{SRC}}}
	-vf 'fps={{{FPS}}},scale={{{WIDTH}}}:{{{HEIGHT}}}:flags=lanczos,setpts={{{PTS}}}*PTS'
	-loop 0 {{{DST}}}`
)

// StepKind names what a step does.
type StepKind string

const (
	StepTrim   StepKind = "trim"
	StepConcat StepKind = "concat"
	StepGIF    StepKind = "gif"
)

// File is written into the workspace before its step runs.
type File struct {
	Path    string
	Content []byte
}

// Step is one ffmpeg invocation of a plan.
type Step struct {
	Kind   StepKind
	Name   string
	Inputs []string
	Output string
	Files  []File

	formatter *command.Formatter
}

// Command returns the resolved command line.
func (s Step) Command() (string, error) {
	return s.formatter.Command()
}

// Plan is the ordered list of steps for one run.
type Plan struct {
	Steps []Step
}

// Output returns the final temporary artifact: the last step's output.
func (p *Plan) Output() string {
	if len(p.Steps) == 0 {
		return ""
	}
	return p.Steps[len(p.Steps)-1].Output
}

// Commands resolves every step's command line.
func (p *Plan) Commands() ([]string, error) {
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		c, err := s.Command()
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Planner compiles action lists into plans.
type Planner struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	crf        int
	newStem    func() string
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithCRF overrides DefaultCRF.
func WithCRF(crf int) PlannerOption {
	return func(p *Planner) {
		p.crf = crf
	}
}

// WithStemFunc replaces the random file stem generator.
func WithStemFunc(fn func() string) PlannerOption {
	return func(p *Planner) {
		p.newStem = fn
	}
}

// NewPlanner creates a Planner. If ffmpegPath is empty, "ffmpeg" is found via
// PATH. A relative path such as ./bin/ffmpeg is made absolute against the
// current directory: steps run with the workspace as working directory.
func NewPlanner(ffmpegPath string, opts ...PlannerOption) *Planner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &Planner{
		ffmpegPath: resolveTool(ffmpegPath),
		crf:        DefaultCRF,
		newStem:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// resolveTool leaves bare names for PATH lookup and anchors relative paths
// to the current directory.
func resolveTool(path string) string {
	if filepath.IsAbs(path) || !strings.ContainsAny(path, `/\`) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Plan checks the action list and produces its steps. Temporary outputs
// are named inside workDir; nothing is written.
//
// The list must contain exactly one Join and at most one GIF. Each trim of
// the Join becomes a re-encoding step; several trims are concatenated; a GIF
// is rendered from the joined result last.
func (p *Planner) Plan(source, workDir string, actions []action.Action) (*Plan, error) {
	join, gif, err := split(actions)
	if err != nil {
		return nil, err
	}

	b := &builder{planner: p, source: source, workDir: workDir, used: make(map[string]bool)}

	trimOutputs := make([]string, 0, len(join.Trims))
	for i, t := range join.Trims {
		trimOutputs = append(trimOutputs, b.trim(i, t))
	}

	joined := trimOutputs[0]
	if len(trimOutputs) > 1 {
		joined = b.concat(trimOutputs)
	}

	if gif != nil {
		b.gif(joined, *gif)
	}

	return &Plan{Steps: b.steps}, nil
}

// split validates the action list and picks out its Join and optional GIF.
func split(actions []action.Action) (action.Join, *action.GIF, error) {
	switch n := action.Count(actions, action.KindJoin); {
	case n == 0:
		return action.Join{}, nil, ErrNoJoin
	case n > 1:
		return action.Join{}, nil, fmt.Errorf("%w: found %d", ErrMultipleJoins, n)
	}
	if n := action.Count(actions, action.KindGIF); n > 1 {
		return action.Join{}, nil, fmt.Errorf("%w: found %d", ErrMultipleGIFs, n)
	}

	var (
		join action.Join
		gif  *action.GIF
	)
	for i, a := range actions {
		if err := a.Validate(); err != nil {
			return action.Join{}, nil, fmt.Errorf("action %d: %w", i, err)
		}
		switch v := a.(type) {
		case action.Join:
			join = v
		case action.GIF:
			gif = &v
		case action.Trim:
			return action.Join{}, nil, fmt.Errorf("action %d: %w", i, ErrStrayTrim)
		}
	}
	return join, gif, nil
}

type builder struct {
	planner *Planner
	source  string
	workDir string
	used    map[string]bool
	steps   []Step
}

// temp returns a fresh path in the workspace derived from the source name
// with a random stem; ext overrides the source extension when set.
func (b *builder) temp(ext string) string {
	if ext == "" {
		ext = filepath.Ext(b.source)
	}
	for {
		path := filepath.Join(b.workDir, b.planner.newStem()+ext)
		if !b.used[path] {
			b.used[path] = true
			return path
		}
	}
}

func (b *builder) trim(i int, t action.Trim) string {
	out := b.temp("")
	f := trimTemplate.NewFormatter().
		AssertParameter("FFMPEG", command.Arg(b.planner.ffmpegPath)).
		AssertParameter("SRC", command.Arg(b.source)).
		AssertParameter("CRF", strconv.Itoa(b.planner.crf)).
		AssertParameter("DST", command.Arg(out))

	if t.Start != nil {
		f.AssertSection("START", map[string]string{"TIME": t.Start.String()})
	} else {
		f.ExcludeSection("START")
	}
	if t.End != nil {
		f.AssertSection("END", map[string]string{"TIME": t.End.String()})
	} else {
		f.ExcludeSection("END")
	}

	b.steps = append(b.steps, Step{
		Kind:      StepTrim,
		Name:      fmt.Sprintf("trim-%d", i),
		Inputs:    []string{b.source},
		Output:    out,
		formatter: f,
	})
	return out
}

func (b *builder) concat(inputs []string) string {
	list := b.temp(".txt")
	out := b.temp("")
	f := concatTemplate.NewFormatter().
		AssertParameter("FFMPEG", command.Arg(b.planner.ffmpegPath)).
		AssertParameter("LIST", command.Arg(list)).
		AssertParameter("DST", command.Arg(out))

	b.steps = append(b.steps, Step{
		Kind:      StepConcat,
		Name:      "concat",
		Inputs:    inputs,
		Output:    out,
		Files:     []File{{Path: list, Content: ConcatList(inputs)}},
		formatter: f,
	})
	return out
}

func (b *builder) gif(input string, g action.GIF) string {
	out := b.temp(".gif")
	f := gifTemplate.NewFormatter().
		AssertParameter("FFMPEG", command.Arg(b.planner.ffmpegPath)).
		AssertParameter("SRC", command.Arg(input)).
		AssertParameter("FPS", strconv.FormatFloat(g.CaptureFPS, 'f', 3, 64)).
		AssertParameter("WIDTH", strconv.Itoa(g.Width)).
		AssertParameter("HEIGHT", strconv.Itoa(g.Height)).
		AssertParameter("PTS", strconv.FormatFloat(1/g.PlaybackFactor, 'f', 3, 64)).
		AssertParameter("DST", command.Arg(out))

	b.steps = append(b.steps, Step{
		Kind:      StepGIF,
		Name:      "gif",
		Inputs:    []string{input},
		Output:    out,
		formatter: f,
	})
	return out
}

// ConcatList renders the listing read by ffmpeg's concat demuxer: one
// "file '<path>'" line per segment, forward slashes, quotes escaped.
func ConcatList(paths []string) []byte {
	var b strings.Builder
	for _, p := range paths {
		escaped := strings.ReplaceAll(filepath.ToSlash(p), "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return []byte(b.String())
}
