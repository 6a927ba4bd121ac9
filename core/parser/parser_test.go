package parser

import (
	"errors"
	"testing"

	"github.com/FocuswithJustin/LeadSheetML/core/ast"
	lserrors "github.com/FocuswithJustin/LeadSheetML/core/errors"
)

// mustParse parses src and fails the test on error.
func mustParse(t *testing.T, src string) *ast.Song {
	t.Helper()
	song, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return song
}

// onlyLine returns the single line of the single block of song.
func onlyLine(t *testing.T, song *ast.Song) *ast.LyricLine {
	t.Helper()
	if len(song.Blocks) != 1 || len(song.Blocks[0].Lines) != 1 {
		t.Fatalf("want 1 block with 1 line, got %d blocks", len(song.Blocks))
	}
	return song.Blocks[0].Lines[0]
}

// firstChord parses "#S\n[body]" and returns the chord.
func firstChord(t *testing.T, body string) *ast.Chord {
	t.Helper()
	line := onlyLine(t, mustParse(t, "#S\n["+body+"]"))
	chord, ok := line.Segments[0].Elements()[0].(*ast.Chord)
	if !ok {
		t.Fatalf("first item is %T, want *ast.Chord", line.Segments[0].Elements()[0])
	}
	return chord
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestParseChord(t *testing.T) {
	tests := []struct {
		body     string
		root     string
		quality  string
		exts     []string
		bass     string
		wantSymb string
	}{
		{body: "C", root: "C", quality: "<nil>", bass: "<nil>", wantSymb: "C"},
		{body: "C#maj7b5", root: "C#", quality: "maj", exts: []string{"7", "b5"}, bass: "<nil>", wantSymb: "C#maj7b5"},
		{body: "C/G", root: "C", quality: "<nil>", bass: "G", wantSymb: "C/G"},
		{body: "D/C#", root: "D", quality: "<nil>", bass: "C#", wantSymb: "D/C#"},
		{body: "Am7", root: "A", quality: "m", exts: []string{"7"}, bass: "<nil>", wantSymb: "Am7"},
		{body: "Bbmin9", root: "Bb", quality: "min", exts: []string{"9"}, bass: "<nil>", wantSymb: "Bbmin9"},
		{body: "Gsus4", root: "G", quality: "<nil>", exts: []string{"sus4"}, bass: "<nil>", wantSymb: "Gsus4"},
		{body: "E7#9", root: "E", quality: "<nil>", exts: []string{"7", "#9"}, bass: "<nil>", wantSymb: "E7#9"},
		{body: "F+", root: "F", quality: "+", bass: "<nil>", wantSymb: "F+"},
		{body: "Cdim7", root: "C", quality: "dim", exts: []string{"7"}, bass: "<nil>", wantSymb: "Cdim7"},
		{body: "em", root: "E", quality: "m", bass: "<nil>", wantSymb: "Em"},
		{body: "bb7/ab", root: "Bb", quality: "<nil>", exts: []string{"7"}, bass: "Ab", wantSymb: "Bb7/Ab"},
		{body: " G / B ", root: "G", quality: "<nil>", bass: "B", wantSymb: "G/B"},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			c := firstChord(t, tt.body)
			if got := c.Root.String(); got != tt.root {
				t.Errorf("Root = %q, want %q", got, tt.root)
			}
			if got := deref(c.Quality); got != tt.quality {
				t.Errorf("Quality = %q, want %q", got, tt.quality)
			}
			if len(c.Extensions) != len(tt.exts) {
				t.Fatalf("Extensions has %d slots, want %d", len(c.Extensions), len(tt.exts))
			}
			for i, want := range tt.exts {
				if got := deref(c.Extensions[i]); got != want {
					t.Errorf("Extensions[%d] = %q, want %q", i, got, want)
				}
			}
			bass := "<nil>"
			if c.Bass != nil {
				bass = c.Bass.String()
			}
			if bass != tt.bass {
				t.Errorf("Bass = %q, want %q", bass, tt.bass)
			}
			if c.Inversion != nil {
				t.Errorf("Inversion = %q, want nil", *c.Inversion)
			}
			if got := c.String(); got != tt.wantSymb {
				t.Errorf("String() = %q, want %q", got, tt.wantSymb)
			}
		})
	}
}

func TestParseChordUnknownTokensAreAbsent(t *testing.T) {
	c := firstChord(t, "Cadd9")
	if c.Quality != nil {
		t.Errorf("Quality = %q, want nil", *c.Quality)
	}
	if len(c.Extensions) != 1 || c.Extensions[0] != nil {
		t.Fatalf("Extensions = %v, want one absent slot", c.Extensions)
	}

	c = firstChord(t, "C6sus4")
	if len(c.Extensions) != 2 {
		t.Fatalf("Extensions has %d slots, want 2", len(c.Extensions))
	}
	if c.Extensions[0] != nil {
		t.Errorf("Extensions[0] = %q, want nil", *c.Extensions[0])
	}
	if deref(c.Extensions[1]) != "sus4" {
		t.Errorf("Extensions[1] = %q, want sus4", deref(c.Extensions[1]))
	}
}

func TestParseSimpleLine(t *testing.T) {
	line := onlyLine(t, mustParse(t, "#Intro\n[C]Hello, [G]world!"))
	if len(line.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(line.Segments))
	}
	if _, ok := line.Segments[0].(*ast.Inline); !ok {
		t.Fatalf("segment is %T, want *ast.Inline", line.Segments[0])
	}
	items := line.Segments[0].Elements()
	if len(items) != 4 {
		t.Fatalf("got %d items, want 4", len(items))
	}
	if got := items[1].(ast.Text); got != "Hello, " {
		t.Errorf("items[1] = %q, want %q", got, "Hello, ")
	}
	if got := items[2].(*ast.Chord).String(); got != "G" {
		t.Errorf("items[2] = %q, want G", got)
	}
	if got := items[3].(ast.Text); got != "world!" {
		t.Errorf("items[3] = %q, want %q", got, "world!")
	}
}

func TestParseMeasures(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantSegs []string // "M" for measure, "I" for inline
	}{
		{name: "single measure", line: "| [C]Hello, [G]world! |", wantSegs: []string{"M"}},
		{name: "shared bar lines", line: "| [C]one | [G]two | [F]three |", wantSegs: []string{"M", "M", "M"}},
		{name: "separate measures", line: "| [C]one | | [G]two |", wantSegs: []string{"M", "M"}},
		{name: "mixed", line: "[Am]intro | [C]one | tail [G]", wantSegs: []string{"I", "M", "I"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := onlyLine(t, mustParse(t, "#S\n"+tt.line))
			if len(line.Segments) != len(tt.wantSegs) {
				t.Fatalf("got %d segments, want %d", len(line.Segments), len(tt.wantSegs))
			}
			for i, want := range tt.wantSegs {
				got := "I"
				if _, ok := line.Segments[i].(*ast.Measure); ok {
					got = "M"
				}
				if got != want {
					t.Errorf("segment %d = %s, want %s", i, got, want)
				}
			}
		})
	}
}

func TestParseMeasureSpanningLines(t *testing.T) {
	song := mustParse(t, "#S\n| [C]first\n  [G]second |\n[F]next")
	lines := song.Blocks[0].Lines
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	items := lines[0].Segments[0].Elements()
	if got := items[1].(ast.Text); got != "first\n" {
		t.Errorf("text = %q, want %q", got, "first\n")
	}
	if got := items[3].(ast.Text); got != "second " {
		t.Errorf("text = %q, want %q", got, "second ")
	}
}

func TestParseDirectives(t *testing.T) {
	src := "@title: For Absent Friends\n@artist: Genesis\n@key A Minor\n@time 4/4\n@Tempo Andante\n\n#Verse\n[Am]Sunday"
	song := mustParse(t, src)
	want := map[string]string{
		"title":  "For Absent Friends",
		"artist": "Genesis",
		"key":    "A Minor",
		"time":   "4/4",
		"tempo":  "Andante",
	}
	if len(song.Directives) != len(want) {
		t.Fatalf("got %d directives, want %d: %v", len(song.Directives), len(want), song.Directives)
	}
	for k, v := range want {
		if got := song.Directives[k]; got != v {
			t.Errorf("directive %q = %q, want %q", k, got, v)
		}
	}
}

func TestParseDuplicateDirectiveOverwrites(t *testing.T) {
	song := mustParse(t, "@title: One\n@title: Two\n#S\nx")
	if got := song.Directives["title"]; got != "Two" {
		t.Errorf("title = %q, want Two", got)
	}
}

func TestParseSong(t *testing.T) {
	src := "@title: Twinkle Twinkle Little Star\n@key: C Major\n" +
		"#Verse\n[C]Twinkle, twinkle, little star\n[G]How I wonder what you are!\n" +
		"[C]Up above the world so high\n[G]Like a diamond in the sky.\n" +
		"#Chorus\n[C]Twinkle, twinkle, little star\n[G]How I wonder what you are!\n" +
		"#Bridge\n[C]Up above the world so high\n" +
		"#Outro\n[C]Twinkle, twinkle, little star\n[G]How I wonder what you are!"
	song := mustParse(t, src)

	wantBlocks := []struct {
		name  string
		lines int
	}{
		{"#Verse", 4}, {"#Chorus", 2}, {"#Bridge", 1}, {"#Outro", 2},
	}
	if len(song.Blocks) != len(wantBlocks) {
		t.Fatalf("got %d blocks, want %d", len(song.Blocks), len(wantBlocks))
	}
	for i, want := range wantBlocks {
		b := song.Blocks[i]
		if b.SectionName != want.name {
			t.Errorf("block %d name = %q, want %q", i, b.SectionName, want.name)
		}
		if len(b.Lines) != want.lines {
			t.Errorf("block %d has %d lines, want %d", i, len(b.Lines), want.lines)
		}
	}
}

func TestParseComplexBlock(t *testing.T) {
	src := "#Verse\n[D] Sunday at [D/C#] six when they [D/C] close both the gates\n" +
		"[D] A [Em] wi [D] dowed [Em]pair\n[D]Still [Em]sit[D]ting [A7]there,\n" +
		"[G]Wonder [Em]if they're [A]late for [D]church\n" +
		"And its [D/C#]cold, so they [D/C]fasten their coats\n" +
		"[D]And [Em]cross [D]the [Em]grass, [D]theyre [Em]al[D]ways [A7]last."
	song := mustParse(t, src)
	if got := len(song.Blocks[0].Lines); got != 6 {
		t.Fatalf("got %d lines, want 6", got)
	}
	count := 0
	song.Chords(func(*ast.Chord) { count++ })
	if count != 25 {
		t.Errorf("got %d chords, want 25", count)
	}
}

func TestParseBlankLinesAndLineEndings(t *testing.T) {
	src := "\uFEFF@title: T\r\n\r\n#Intro\r\n\r\n[C]one\r\n\r\n\r\n#Outro\r\n[G]two\r\n"
	song := mustParse(t, src)
	if len(song.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(song.Blocks))
	}
	if song.Directives["title"] != "T" {
		t.Errorf("title = %q", song.Directives["title"])
	}
	text := song.Blocks[0].Lines[0].Segments[0].Elements()[1].(ast.Text)
	if text != "one" {
		t.Errorf("text = %q, want %q", text, "one")
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		line     int
		column   int
		expected string
	}{
		{name: "empty input", src: "", line: 1, column: 1, expected: "section header"},
		{name: "directives only", src: "@title: T\n", line: 2, column: 1, expected: "section header"},
		{name: "lyrics before header", src: "[C]hello", line: 1, column: 1, expected: "section header"},
		{name: "header without lines", src: "#Verse\n", line: 2, column: 1, expected: "lyric line"},
		{name: "directive after block", src: "#Verse\nla\n@key: C Major", line: 3, column: 1, expected: "lyric line or section header"},
		{name: "unclosed chord", src: "#S\n[C hello", line: 2, column: 9, expected: `"]"`},
		{name: "empty chord", src: "#S\n[]", line: 2, column: 2, expected: "note"},
		{name: "bad root", src: "#S\n[H7]", line: 2, column: 2, expected: "note"},
		{name: "unclosed measure", src: "#S\n| [C]la", line: 2, column: 8, expected: `"|"`},
		{name: "empty measure", src: "#S\n| |", line: 2, column: 3, expected: "chord or text"},
		{name: "measure runs into section", src: "#Verse\n| [C]Hello\n#Chorus\n| [G]world |\n", line: 2, column: 11, expected: `"|"`},
		{name: "measure runs into indented section", src: "#Verse\n| [C]Hello\n  #Chorus\nla", line: 2, column: 11, expected: `"|"`},
		{name: "measure runs into directive", src: "#S\n| [C]la\n@key: C Major", line: 2, column: 8, expected: `"|"`},
		{name: "invalid UTF-8", src: "#S\nla\xff |", line: 2, column: 3, expected: "UTF-8 text"},
		{name: "missing directive value", src: "@title:\n#S\nla", line: 1, column: 8, expected: "directive value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			song, err := Parse(tt.src)
			if song != nil {
				t.Error("Parse() returned a partial song alongside an error")
			}
			var serr *lserrors.SyntaxError
			if !errors.As(err, &serr) {
				t.Fatalf("Parse() error = %v, want SyntaxError", err)
			}
			if serr.Line != tt.line || serr.Column != tt.column {
				t.Errorf("position = %d:%d, want %d:%d", serr.Line, serr.Column, tt.line, tt.column)
			}
			if serr.Expected != tt.expected {
				t.Errorf("Expected = %q, want %q", serr.Expected, tt.expected)
			}
			if !errors.Is(err, lserrors.ErrInvalidInput) {
				t.Error("syntax errors should match ErrInvalidInput")
			}
		})
	}
}

func TestParseBadBassIsSyntaxError(t *testing.T) {
	_, err := Parse("#S\n[C/H]")
	var serr *lserrors.SyntaxError
	if !errors.As(err, &serr) {
		t.Fatalf("Parse() error = %v, want SyntaxError", err)
	}
	if serr.Line != 2 {
		t.Errorf("Line = %d, want 2", serr.Line)
	}
}

func TestParseInvalidUTF8Offset(t *testing.T) {
	_, err := Parse("#S\n[C]Grö\xffe")
	var serr *lserrors.SyntaxError
	if !errors.As(err, &serr) {
		t.Fatalf("Parse() error = %v, want SyntaxError", err)
	}
	if serr.Offset != 10 {
		t.Errorf("Offset = %d, want 10", serr.Offset)
	}
	if serr.Line != 2 || serr.Column != 7 {
		t.Errorf("position = %d:%d, want 2:7", serr.Line, serr.Column)
	}
}
