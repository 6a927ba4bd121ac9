package render

import (
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/LeadSheetML/core/ast"
)

// Row is one visual row: a chord line over a lyric line. Both strings have
// the same width in runes.
type Row struct {
	Chords string
	Lyrics string
}

// aligner accumulates the chord and lyric buffers of the row being built.
type aligner struct {
	minWidth int
	chords   strings.Builder
	lyrics   strings.Builder
	cw, lw   int // widths in runes
	started  bool
	rows     []Row
}

// AlignLine lays out a lyric line as rows of chords over lyrics. Each chord
// takes at least minWidth columns. Chords written before the first syllable
// of a row do not push the lyrics right; later chords do, so a chord never
// overwrites the one before it. A chord wider than minWidth fills its
// column exactly, so a chord written straight after it abuts it.
func AlignLine(line *ast.LyricLine, minWidth int) []Row {
	a := &aligner{minWidth: minWidth}
	for _, seg := range line.Segments {
		for _, item := range seg.Elements() {
			switch it := item.(type) {
			case *ast.Chord:
				a.chord(it.String())
			case ast.Text:
				a.text(string(it))
			}
		}
	}
	a.flush()
	return a.rows
}

func (a *aligner) chord(symbol string) {
	n := utf8.RuneCountInString(symbol)
	w := n
	if w < a.minWidth {
		w = a.minWidth
	}
	if a.started {
		a.level()
		a.lyrics.WriteString(strings.Repeat(" ", w))
		a.lw += w
	}
	a.chords.WriteString(symbol)
	a.chords.WriteString(strings.Repeat(" ", w-n))
	a.cw += w
}

func (a *aligner) text(s string) {
	for i, part := range strings.Split(s, "\n") {
		if i > 0 {
			a.flush()
		}
		a.lyrics.WriteString(part)
		a.lw += utf8.RuneCountInString(part)
		a.padChords()
		if part != "" {
			a.started = true
		}
	}
}

// level pads both buffers to the wider of the two.
func (a *aligner) level() {
	a.padChords()
	if a.lw < a.cw {
		a.lyrics.WriteString(strings.Repeat(" ", a.cw-a.lw))
		a.lw = a.cw
	}
}

func (a *aligner) padChords() {
	if a.cw < a.lw {
		a.chords.WriteString(strings.Repeat(" ", a.lw-a.cw))
		a.cw = a.lw
	}
}

// flush ends the current row. Rows that are blank in both buffers are
// dropped.
func (a *aligner) flush() {
	chords, lyrics := a.chords.String(), a.lyrics.String()
	if strings.TrimSpace(chords) != "" || strings.TrimSpace(lyrics) != "" {
		a.level()
		a.rows = append(a.rows, Row{Chords: a.chords.String(), Lyrics: a.lyrics.String()})
	}
	a.chords.Reset()
	a.lyrics.Reset()
	a.cw, a.lw = 0, 0
	a.started = false
}
