// Package command implements the command template language used to build
// external tool invocations.
//
// A template is plain text with two kinds of placeholders:
//
//	{{{NAME}}}               a parameter, replaced by a literal value
//	{{{NAME: inner text :}}} a section, either unwrapped (asserted) or removed (excluded)
//
// Names are uppercase. Sections may nest; inner sections are resolved before
// the section that contains them. A template is immutable: every caller works
// on its own Formatter.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrUnresolved is returned by Formatter.Command when placeholders remain.
var ErrUnresolved = errors.New("unresolved placeholders")

const (
	openDelim  = "{{{"
	closeParam = "}}}"
	closeSect  = ":}}}"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{\{([A-Z][A-Z0-9_]*)(:|\}\}\})`)
	sectionOpenRe = regexp.MustCompile(`\{\{\{[A-Z][A-Z0-9_]*:`)
	unsafeArgRe   = regexp.MustCompile(`[^A-Za-z0-9_@%+=:,./-]`)
)

// Template is a raw command template.
type Template string

// NewFormatter returns a fresh working copy of the template.
func (t Template) NewFormatter() *Formatter {
	return &Formatter{text: string(t)}
}

// Formatter is a mutable copy of a Template undergoing substitution.
// Its methods return the receiver so calls can be chained.
type Formatter struct {
	text string
}

// AssertParameter replaces every {{{name}}} with value. A parameter that does
// not occur is not an error.
func (f *Formatter) AssertParameter(name, value string) *Formatter {
	f.text = replaceParam(f.text, name, value)
	return f
}

// AssertSection unwraps every section called name, substituting params inside
// the section only.
func (f *Formatter) AssertSection(name string, params map[string]string) *Formatter {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f.text = rewriteSections(f.text, name, func(inner string) string {
		for _, k := range keys {
			inner = replaceParam(inner, k, params[k])
		}
		return inner
	})
	return f
}

// ExcludeSection removes every section called name, including its markers
// and everything nested inside it.
func (f *Formatter) ExcludeSection(name string) *Formatter {
	f.text = rewriteSections(f.text, name, func(string) string { return "" })
	return f
}

// Placeholders returns the names of the placeholders still present, in order
// of first appearance.
func (f *Formatter) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(f.text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// String returns the normalized text: whitespace runs outside single-quoted
// segments collapse to one space and both ends are trimmed.
func (f *Formatter) String() string {
	return normalizeSpace(f.text)
}

// Command returns the normalized command, or ErrUnresolved naming the
// placeholders that were neither asserted nor excluded.
func (f *Formatter) Command() (string, error) {
	if names := f.Placeholders(); len(names) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, strings.Join(names, ", "))
	}
	return f.String(), nil
}

// Quote wraps s in single quotes so it survives tokenizing as one argument.
// Embedded single quotes are written as '\''.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Arg returns s unchanged when it is safe as a bare argument and Quote(s)
// otherwise.
func Arg(s string) string {
	if s != "" && !unsafeArgRe.MatchString(s) {
		return s
	}
	return Quote(s)
}

func replaceParam(text, name, value string) string {
	return strings.ReplaceAll(text, openDelim+name+closeParam, value)
}

// rewriteSections replaces each section called name with fn(inner). Spans are
// rewritten back to front so earlier offsets stay valid.
func rewriteSections(text, name string, fn func(inner string) string) string {
	spans := findSections(text, name)
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		text = text[:sp.start] + fn(text[sp.innerStart:sp.innerEnd]) + text[sp.end:]
	}
	return text
}

type span struct {
	start, innerStart, innerEnd, end int
}

// findSections locates the outermost spans opened by {{{name: and closed by
// the matching :}}}, honouring nested sections. An unterminated section is
// left alone.
func findSections(text, name string) []span {
	open := openDelim + name + ":"
	var spans []span

	for pos := 0; ; {
		idx := strings.Index(text[pos:], open)
		if idx < 0 {
			return spans
		}
		start := pos + idx
		innerStart := start + len(open)
		end, ok := matchClose(text, innerStart)
		if !ok {
			return spans
		}
		spans = append(spans, span{
			start:      start,
			innerStart: innerStart,
			innerEnd:   end - len(closeSect),
			end:        end,
		})
		pos = end
	}
}

// matchClose returns the offset just past the :}}} that closes a section whose
// body starts at from.
func matchClose(text string, from int) (int, bool) {
	depth := 1
	for pos := from; pos < len(text); {
		closeIdx := strings.Index(text[pos:], closeSect)
		if closeIdx < 0 {
			return 0, false
		}
		openLoc := sectionOpenRe.FindStringIndex(text[pos:])
		if openLoc != nil && openLoc[0] < closeIdx {
			depth++
			pos += openLoc[1]
			continue
		}
		depth--
		pos += closeIdx + len(closeSect)
		if depth == 0 {
			return pos, true
		}
	}
	return 0, false
}

func normalizeSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inQuote := false
	pendingSpace := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inQuote && isSpace(c) {
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteByte(c)

		switch {
		case c == '\'':
			inQuote = !inQuote
		case c == '\\' && !inQuote && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
