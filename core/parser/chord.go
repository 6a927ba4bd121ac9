package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/LeadSheetML/core/ast"
	"github.com/FocuswithJustin/LeadSheetML/core/errors"
)

// chordGrammar is the participle grammar for the body of a chord token.
// Examples: "C", "C#maj7b5", "Am7", "Dsus4", "C/G", "bbm7/ab"
//
//nolint:govet // participle grammar tags are not standard struct tags
type chordGrammar struct {
	Root       string   `@Note`
	Quality    *string  `@Quality?`
	Extensions []string `@Extension*`
	Bass       *string  `( "/" @Note )?`
}

// extensionPattern matches one extension token. Known tokens come first so
// that "b5" is not read as a note-like word; anything else is still a token
// and classifies to an empty slot.
const extensionPattern = `maj7|maj9|min7|min9|dim7|dim9|sus2|sus4|dim|aug|` +
	`b11|b13|b5|b9|#11|#13|#5|#9|11|13|7|9|` +
	`[#b]?[0-9]+|[A-Za-z]+[0-9]*|[^\s/]`

// chordLexer reads root, quality, extensions and bass in that order. The
// quality is only offered straight after the root, so "maj7" there is
// quality "maj" plus extension "7".
var chordLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Note", Pattern: `[A-Ga-g][#b]?`, Action: lexer.Push("Body")},
	},
	"Body": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Slash", Pattern: `/`, Action: lexer.Push("Bass")},
		{Name: "Quality", Pattern: `maj|min|dim|aug|m|\+`, Action: lexer.Push("Extensions")},
		{Name: "Extension", Pattern: extensionPattern, Action: lexer.Push("Extensions")},
	},
	"Extensions": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Slash", Pattern: `/`, Action: lexer.Push("Bass")},
		{Name: "Extension", Pattern: extensionPattern},
	},
	"Bass": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Note", Pattern: `[A-Ga-g][#b]?`},
	},
})

var chordParser = participle.MustBuild[chordGrammar](
	participle.Lexer(chordLexer),
	participle.Elide("Whitespace"),
)

// parseChord parses the text between '[' and ']'. at is the position of the
// first body character, used to place syntax errors in the song source.
func parseChord(body string, at mark) (*ast.Chord, error) {
	parsed, err := chordParser.ParseString("", body)
	if err != nil {
		return nil, chordSyntaxError(body, at, err)
	}

	root, err := ast.ParseNote(parsed.Root)
	if err != nil {
		return nil, syntaxAt(at, body, 0, "note", parsed.Root, err)
	}
	chord := &ast.Chord{Root: root}

	if parsed.Quality != nil {
		chord.Quality = ast.ClassifyQuality(*parsed.Quality)
	}
	if len(parsed.Extensions) > 0 {
		chord.Extensions = make([]*string, len(parsed.Extensions))
		for i, tok := range parsed.Extensions {
			chord.Extensions[i] = ast.ClassifyExtension(tok)
		}
	}
	if parsed.Bass != nil {
		bass, err := ast.ParseNote(*parsed.Bass)
		if err != nil {
			idx := strings.LastIndex(body, *parsed.Bass)
			return nil, syntaxAt(at, body, idx, "bass note", *parsed.Bass, err)
		}
		chord.Bass = &bass
	}
	return chord, nil
}

// chordSyntaxError converts a participle error into a SyntaxError positioned
// in the song source.
func chordSyntaxError(body string, at mark, err error) error {
	var perr participle.Error
	if !errors.As(err, &perr) {
		return syntaxAt(at, body, 0, "chord symbol", body, err)
	}
	pos := perr.Position()
	offset := pos.Offset
	if offset < 0 || offset > len(body) {
		offset = 0
	}
	found := strings.TrimSpace(body[offset:])
	expected := "chord symbol"
	if offset == 0 {
		expected = "note"
	}
	return syntaxAt(at, body, offset, expected, found, err)
}

// syntaxAt builds a SyntaxError byteOffset bytes into the chord body. Chord
// bodies never span lines.
func syntaxAt(at mark, body string, byteOffset int, expected, found string, err error) *errors.SyntaxError {
	if byteOffset < 0 || byteOffset > len(body) {
		byteOffset = 0
	}
	return &errors.SyntaxError{
		Line:     at.line,
		Column:   at.col + utf8.RuneCountInString(body[:byteOffset]),
		Offset:   at.offset + byteOffset,
		Expected: expected,
		Found:    found,
		Err:      err,
	}
}
