// Package parser turns LeadSheetML source text into an ast.Song.
//
// The song structure (directives, section headers, lyric lines, measures
// and chord/text tokens) is read by a hand-written recursive-descent parser
// that builds typed nodes as it goes. The inside of each chord token is
// handed to a small participle grammar (see chord.go).
//
// Parse either returns a complete song or the first *errors.SyntaxError it
// hits; it never returns a partially built tree.
package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/LeadSheetML/core/ast"
	"github.com/FocuswithJustin/LeadSheetML/core/errors"
)

const bom = "\uFEFF"

// maxFound caps how much source text a syntax error quotes.
const maxFound = 20

// Parse parses a complete song.
func Parse(text string) (*ast.Song, error) {
	text = strings.TrimPrefix(text, bom)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !utf8.ValidString(text) {
		return nil, invalidUTF8(text)
	}

	p := &parser{cursor: newCursor(text)}
	return p.parseSong()
}

type parser struct {
	*cursor
}

func (p *parser) parseSong() (*ast.Song, error) {
	song := &ast.Song{Directives: make(map[string]string)}

	p.skipBlank()
	for p.peek() == '@' {
		name, value, err := p.parseDirective()
		if err != nil {
			return nil, err
		}
		song.Directives[name] = value
		p.skipBlank()
	}

	if p.eof() {
		return nil, p.errorf("section header")
	}
	for !p.eof() {
		if p.peek() != '#' {
			return nil, p.errorf("section header")
		}
		block, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		song.Blocks = append(song.Blocks, block)
		p.skipBlank()
	}
	return song, nil
}

// parseDirective reads "@name[:] value" up to the end of the line.
func (p *parser) parseDirective() (string, string, error) {
	p.next() // '@'
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if r == ':' || r == '\n' || isSpace(r) {
			break
		}
		p.next()
	}
	name := strings.ToLower(string(p.src[start:p.pos]))
	if name == "" {
		return "", "", p.errorf("directive name")
	}

	p.skipSpace()
	if p.peek() == ':' {
		p.next()
	}
	value := strings.TrimSpace(p.restOfLine())
	if value == "" {
		return "", "", p.errorf("directive value")
	}
	p.skipNewline()
	return name, value, nil
}

func (p *parser) parseBlock() (*ast.Block, error) {
	header := strings.TrimRightFunc(p.restOfLine(), isSpace)
	p.skipNewline()

	block := &ast.Block{SectionName: header}
	for {
		p.skipBlank()
		if p.eof() || p.peek() == '#' {
			break
		}
		if p.peek() == '@' {
			return nil, p.errorf("lyric line or section header")
		}
		line, err := p.parseLine()
		if err != nil {
			return nil, err
		}
		block.Lines = append(block.Lines, line)
	}

	if len(block.Lines) == 0 {
		return nil, p.errorf("lyric line")
	}
	return block, nil
}

// parseLine reads segments until an unbracketed newline.
func (p *parser) parseLine() (*ast.LyricLine, error) {
	line := &ast.LyricLine{}
	for {
		p.skipSpace()
		switch p.peek() {
		case eofRune:
			return line, nil
		case '\n':
			p.next()
			return line, nil
		case '|':
			p.next()
			measures, err := p.parseMeasures()
			if err != nil {
				return nil, err
			}
			line.Segments = append(line.Segments, measures...)
		default:
			inline, err := p.parseInline()
			if err != nil {
				return nil, err
			}
			line.Segments = append(line.Segments, inline)
		}
	}
}

// parseMeasures reads one measure after its opening bar. When the closing
// bar is followed by another bar later on the same line it also opens the
// next measure, so "| a | b |" is two measures.
func (p *parser) parseMeasures() ([]ast.Segment, error) {
	var out []ast.Segment
	for {
		items, err := p.parseItems(true)
		if err != nil {
			return nil, err
		}
		if p.peek() != '|' {
			return nil, p.errorf(`"|"`)
		}
		if len(items) == 0 {
			return nil, p.errorf("chord or text")
		}
		p.next() // closing '|'
		out = append(out, &ast.Measure{Items: items})

		p.skipSpace()
		switch p.peek() {
		case '|', '\n', eofRune:
			return out, nil
		}
		if !p.barAheadOnLine() {
			return out, nil
		}
	}
}

func (p *parser) parseInline() (ast.Segment, error) {
	items, err := p.parseItems(false)
	if err != nil {
		return nil, err
	}
	return &ast.Inline{Items: items}, nil
}

// parseItems reads chord and text tokens. Outside a measure it stops at a
// bar or newline; inside one it stops at the closing bar, and text may run
// across lines but never into a line that starts a section or directive.
func (p *parser) parseItems(inMeasure bool) ([]ast.Item, error) {
	var items []ast.Item
	for {
		p.skipSpace()
		switch r := p.peek(); {
		case r == eofRune, r == '|':
			return items, nil
		case r == '\n' && (!inMeasure || p.structureAhead()):
			return items, nil
		case r == '[':
			chord, err := p.parseChordToken()
			if err != nil {
				return nil, err
			}
			items = append(items, chord)
		default:
			items = append(items, p.parseText(inMeasure))
		}
	}
}

// parseText reads a text token. Inside a measure the token may span lines;
// indentation after each embedded newline is dropped.
func (p *parser) parseText(inMeasure bool) ast.Text {
	var sb strings.Builder
	for !p.eof() {
		r := p.peek()
		if r == '[' || r == '|' || (r == '\n' && (!inMeasure || p.structureAhead())) {
			break
		}
		sb.WriteRune(p.next())
		if r == '\n' {
			p.skipSpace()
		}
	}
	return ast.Text(sb.String())
}

// parseChordToken reads "[chord]". The brackets must close on the same line.
func (p *parser) parseChordToken() (*ast.Chord, error) {
	p.next() // '['
	at := p.mark()
	start := p.pos
	for {
		switch p.peek() {
		case ']':
			body := string(p.src[start:p.pos])
			if strings.TrimSpace(body) == "" {
				return nil, p.errorf("note")
			}
			chord, err := parseChord(body, at)
			if err != nil {
				return nil, err
			}
			p.next()
			return chord, nil
		case '\n', eofRune:
			return nil, p.errorf(`"]"`)
		}
		p.next()
	}
}

// invalidUTF8 reports the first byte of text that is not valid UTF-8.
func invalidUTF8(text string) *errors.SyntaxError {
	line, col := 1, 1
	for i, r := range text {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(text[i:]); size == 1 {
				return errors.NewSyntax(line, col, i, "UTF-8 text", fmt.Sprintf("byte 0x%02x", text[i]))
			}
		}
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return errors.NewSyntax(line, col, len(text), "UTF-8 text", "")
}

// errorf builds a SyntaxError at the current position.
func (p *parser) errorf(expected string) *errors.SyntaxError {
	return errors.NewSyntax(p.line, p.col, p.offset, expected, p.found())
}

// found quotes the source at the cursor, up to the end of the line.
func (p *parser) found() string {
	if p.eof() {
		return ""
	}
	if p.peek() == '\n' {
		return "\n"
	}
	end := p.pos
	for end < len(p.src) && p.src[end] != '\n' && end-p.pos < maxFound {
		end++
	}
	return string(p.src[p.pos:end])
}

const eofRune = rune(-1)

// cursor walks the source rune by rune, tracking 1-based line and column
// and the byte offset.
type cursor struct {
	src    []rune
	pos    int
	line   int
	col    int
	offset int
}

type mark struct {
	line, col, offset int
}

func newCursor(text string) *cursor {
	return &cursor{src: []rune(text), line: 1, col: 1}
}

func (c *cursor) eof() bool { return c.pos >= len(c.src) }

func (c *cursor) peek() rune {
	if c.eof() {
		return eofRune
	}
	return c.src[c.pos]
}

func (c *cursor) next() rune {
	if c.eof() {
		return eofRune
	}
	r := c.src[c.pos]
	c.pos++
	c.offset += utf8.RuneLen(r)
	if r == '\n' {
		c.line++
		c.col = 1
	} else {
		c.col++
	}
	return r
}

func (c *cursor) mark() mark {
	return mark{line: c.line, col: c.col, offset: c.offset}
}

// skipSpace skips horizontal whitespace.
func (c *cursor) skipSpace() {
	for !c.eof() && isSpace(c.peek()) {
		c.next()
	}
}

// skipBlank skips whitespace including newlines.
func (c *cursor) skipBlank() {
	for !c.eof() && (isSpace(c.peek()) || c.peek() == '\n') {
		c.next()
	}
}

func (c *cursor) skipNewline() {
	if c.peek() == '\n' {
		c.next()
	}
}

// restOfLine consumes and returns the text up to, not including, the next
// newline.
func (c *cursor) restOfLine() string {
	start := c.pos
	for !c.eof() && c.peek() != '\n' {
		c.next()
	}
	return string(c.src[start:c.pos])
}

// structureAhead reports whether the line after the newline at the cursor
// opens with a section header or a directive, ignoring indentation.
func (c *cursor) structureAhead() bool {
	i := c.pos + 1
	for i < len(c.src) && isSpace(c.src[i]) {
		i++
	}
	return i < len(c.src) && (c.src[i] == '#' || c.src[i] == '@')
}

// barAheadOnLine reports whether a '|' occurs between the cursor and the end
// of the current line.
func (c *cursor) barAheadOnLine() bool {
	for i := c.pos; i < len(c.src) && c.src[i] != '\n'; i++ {
		if c.src[i] == '|' {
			return true
		}
	}
	return false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\v' || r == '\f'
}
