// Package render turns an ast.Song into text through a Backend.
//
// The renderer owns layout: which headings appear, and how chords line up
// over lyrics (see AlignLine). A Backend only decides how each primitive is
// spelled in its dialect. Markdown and HTML backends are provided.
//
// Missing title or artist directives are not errors; their lines are left
// out.
package render

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/LeadSheetML/core/ast"
	"github.com/FocuswithJustin/LeadSheetML/core/errors"
)

// DefaultMinChordWidth is the narrowest column a chord occupies.
const DefaultMinChordWidth = 4

// Layout selects how aligned rows are handed to the backend.
type Layout int

const (
	// LayoutRows emits each chord row and lyric row as its own line segment.
	LayoutRows Layout = iota
	// LayoutPreformatted emits every row of a block as one verbatim block.
	LayoutPreformatted
)

// String returns the layout's config name.
func (l Layout) String() string {
	switch l {
	case LayoutRows:
		return "rows"
	case LayoutPreformatted:
		return "pre"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout maps "rows" and "pre" to a Layout.
func ParseLayout(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rows":
		return LayoutRows, nil
	case "pre", "preformatted":
		return LayoutPreformatted, nil
	default:
		return LayoutRows, errors.NewUnsupported("layout", fmt.Sprintf("%q (want rows or pre)", name))
	}
}

// Options configures a Renderer.
type Options struct {
	MinChordWidth int
	Layout        Layout
}

// DefaultOptions returns the stock options.
func DefaultOptions() Options {
	return Options{MinChordWidth: DefaultMinChordWidth, Layout: LayoutRows}
}

// Renderer renders songs with fixed options. It holds no state between
// calls and is safe for concurrent use.
type Renderer struct {
	opts Options
}

// New creates a Renderer. A non-positive MinChordWidth means the default.
func New(opts Options) *Renderer {
	if opts.MinChordWidth <= 0 {
		opts.MinChordWidth = DefaultMinChordWidth
	}
	return &Renderer{opts: opts}
}

// Options returns the renderer's options.
func (r *Renderer) Options() Options { return r.opts }

// Render renders song with the default options.
func Render(song *ast.Song, b Backend) string {
	return New(DefaultOptions()).Render(song, b)
}

// Render renders song through b.
func (r *Renderer) Render(song *ast.Song, b Backend) string {
	var sb strings.Builder

	if title, ok := song.Directive(ast.DirectiveTitle); ok {
		sb.WriteString(b.Header(1, title))
		sb.WriteString(b.Linebreak())
	}
	if artist, ok := song.Directive(ast.DirectiveArtist); ok {
		sb.WriteString(b.Italic(artist))
		sb.WriteString(b.Linebreak())
	}

	for _, block := range song.Blocks {
		sb.WriteString(b.Header(3, SectionTitle(block.SectionName)))
		sb.WriteString(b.Linebreak())
		r.renderBlock(&sb, block, b)
	}
	return sb.String()
}

func (r *Renderer) renderBlock(sb *strings.Builder, block *ast.Block, b Backend) {
	var rows []Row
	for _, line := range block.Lines {
		rows = append(rows, AlignLine(line, r.opts.MinChordWidth)...)
	}

	if r.opts.Layout == LayoutPreformatted {
		if len(rows) == 0 {
			return
		}
		lines := make([]string, 0, 2*len(rows))
		for _, row := range rows {
			lines = append(lines, row.Chords, row.Lyrics)
		}
		sb.WriteString(b.PreBlock(strings.Join(lines, "\n")))
		sb.WriteString(b.Linebreak())
		return
	}

	for _, row := range rows {
		sb.WriteString(b.LineSegment(row.Chords))
		sb.WriteString(b.Linebreak())
		sb.WriteString(b.LineSegment(row.Lyrics))
		sb.WriteString(b.Linebreak())
	}
}

// SectionTitle strips the leading '#' markers from a section header.
func SectionTitle(header string) string {
	return strings.TrimSpace(strings.TrimLeft(header, "#"))
}
