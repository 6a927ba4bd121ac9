package render

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/FocuswithJustin/LeadSheetML/core/errors"
)

// Backend turns rendering primitives into one output dialect. The renderer
// only ever talks to a Backend through these five calls.
type Backend interface {
	// Header returns a heading of the given level (1-6).
	Header(level int, text string) string
	// Italic returns emphasised text.
	Italic(text string) string
	// Linebreak returns a line break.
	Linebreak() string
	// LineSegment returns one aligned row, whitespace preserved.
	LineSegment(text string) string
	// PreBlock returns a verbatim block spanning several rows.
	PreBlock(text string) string
}

// Markdown renders to Markdown. Aligned rows are indented code lines so
// their spacing survives.
type Markdown struct{}

func (Markdown) Header(level int, text string) string {
	return strings.Repeat("#", clampLevel(level)) + " " + text
}

func (Markdown) Italic(text string) string { return "*" + text + "*" }

func (Markdown) Linebreak() string { return "\n" }

func (Markdown) LineSegment(text string) string { return "    " + text }

func (Markdown) PreBlock(text string) string { return "```\n" + text + "\n```" }

// HTML renders to an HTML fragment. All text is escaped.
type HTML struct{}

func (HTML) Header(level int, text string) string {
	l := clampLevel(level)
	return fmt.Sprintf("<h%d>%s</h%d>", l, html.EscapeString(text), l)
}

func (HTML) Italic(text string) string { return "<i>" + html.EscapeString(text) + "</i>" }

func (HTML) Linebreak() string { return "<br/>\n" }

func (HTML) LineSegment(text string) string {
	return `<span style="white-space: pre">` + html.EscapeString(text) + "</span>"
}

func (HTML) PreBlock(text string) string { return "<pre>" + html.EscapeString(text) + "</pre>" }

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}

// backends maps format names to backends.
var backends = map[string]Backend{
	"markdown": Markdown{},
	"md":       Markdown{},
	"html":     HTML{},
}

// BackendFor returns the backend registered under name.
func BackendFor(name string) (Backend, error) {
	b, ok := backends[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.NewUnsupported("format", fmt.Sprintf("%q (want one of %s)", name, strings.Join(Formats(), ", ")))
	}
	return b, nil
}

// Formats lists the accepted format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
