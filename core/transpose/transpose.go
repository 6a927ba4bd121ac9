// Package transpose shifts a song by a signed number of semitones.
//
// Pitches are mapped onto a flat-preferring chromatic scale, shifted, and
// read back. Sharp and unusual spellings (C#, E#, Cb, ...) are normalised to
// the scale first, so the output is always spelled from the scale.
//
// Transpose never mutates its input; it builds a new tree.
package transpose

import (
	"strings"

	"github.com/FocuswithJustin/LeadSheetML/core/ast"
	"github.com/FocuswithJustin/LeadSheetML/core/errors"
)

// scale is the canonical chromatic scale.
var scale = [12]string{"C", "Db", "D", "Eb", "E", "F", "Gb", "G", "Ab", "A", "Bb", "B"}

// enharmonics maps spellings outside the scale onto it.
var enharmonics = map[string]string{
	"C#": "Db",
	"D#": "Eb",
	"E#": "F",
	"Fb": "E",
	"F#": "Gb",
	"G#": "Ab",
	"A#": "Bb",
	"B#": "C",
	"Cb": "B",
}

var scaleIndex = func() map[string]int {
	m := make(map[string]int, len(scale))
	for i, n := range scale {
		m[n] = i
	}
	return m
}()

// Steps reduces a signed semitone count to a shift in [0, 11].
func Steps(semitones int) int {
	if semitones >= 0 {
		return semitones % 12
	}
	neg := -semitones
	return (12 - neg%12) % 12
}

// Note shifts a single note and returns its canonical spelling.
func Note(n ast.Note, semitones int) (ast.Note, error) {
	return shift(n, Steps(semitones))
}

func shift(n ast.Note, steps int) (ast.Note, error) {
	name := n.String()
	if canon, ok := enharmonics[name]; ok {
		name = canon
	}
	idx, ok := scaleIndex[name]
	if !ok {
		return ast.Note{}, errors.NewValidation("note", "cannot place "+n.String()+" on the chromatic scale")
	}
	return ast.ParseNote(scale[(idx+steps)%12])
}

// Chord shifts the root and bass of a chord. Quality, extensions and
// inversion are copied.
func Chord(c *ast.Chord, semitones int) (*ast.Chord, error) {
	return shiftChord(c, Steps(semitones))
}

func shiftChord(c *ast.Chord, steps int) (*ast.Chord, error) {
	out := c.Clone()
	if steps == 0 {
		return out, nil
	}
	root, err := shift(c.Root, steps)
	if err != nil {
		return nil, err
	}
	out.Root = root
	if c.Bass != nil {
		bass, err := shift(*c.Bass, steps)
		if err != nil {
			return nil, err
		}
		out.Bass = &bass
	}
	return out, nil
}

// Key shifts a key directive value of the form "<Note> <Mode>". The mode is
// kept verbatim and rejoined with a single space.
func Key(value string, semitones int) (string, error) {
	return shiftKey(value, Steps(semitones))
}

func shiftKey(value string, steps int) (string, error) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return "", errors.NewMalformedKey(value, `expected "<Note> <Mode>"`)
	}
	note, err := ast.ParseNote(fields[0])
	if err != nil {
		return "", errors.NewMalformedKey(value, err.Error())
	}
	if steps == 0 {
		return fields[0] + " " + fields[1], nil
	}
	shifted, err := shift(note, steps)
	if err != nil {
		return "", errors.NewMalformedKey(value, err.Error())
	}
	return shifted.String() + " " + fields[1], nil
}

// Transpose returns a copy of song shifted by semitones. The key directive
// must be present and well formed; every other directive is copied.
//
// A shift that reduces to zero steps returns an exact copy, spellings
// included.
func Transpose(song *ast.Song, semitones int) (*ast.Song, error) {
	steps := Steps(semitones)

	key, ok := song.Directive(ast.DirectiveKey)
	if !ok {
		return nil, &errors.MissingKeyDirectiveError{}
	}
	newKey, err := shiftKey(key, steps)
	if err != nil {
		return nil, err
	}

	if steps == 0 {
		return song.Clone(), nil
	}

	out := &ast.Song{
		Directives: make(map[string]string, len(song.Directives)),
		Blocks:     make([]*ast.Block, 0, len(song.Blocks)),
	}
	for k, v := range song.Directives {
		out.Directives[k] = v
	}
	out.Directives[ast.DirectiveKey] = newKey

	for _, b := range song.Blocks {
		block, err := shiftBlock(b, steps)
		if err != nil {
			return nil, err
		}
		out.Blocks = append(out.Blocks, block)
	}
	return out, nil
}

func shiftBlock(b *ast.Block, steps int) (*ast.Block, error) {
	out := &ast.Block{
		SectionName: b.SectionName,
		Lines:       make([]*ast.LyricLine, 0, len(b.Lines)),
	}
	for _, l := range b.Lines {
		line := &ast.LyricLine{Segments: make([]ast.Segment, 0, len(l.Segments))}
		for _, seg := range l.Segments {
			items, err := shiftItems(seg.Elements(), steps)
			if err != nil {
				return nil, err
			}
			if _, ok := seg.(*ast.Measure); ok {
				line.Segments = append(line.Segments, &ast.Measure{Items: items})
			} else {
				line.Segments = append(line.Segments, &ast.Inline{Items: items})
			}
		}
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}

func shiftItems(in []ast.Item, steps int) ([]ast.Item, error) {
	out := make([]ast.Item, 0, len(in))
	for _, item := range in {
		c, ok := item.(*ast.Chord)
		if !ok {
			out = append(out, item)
			continue
		}
		shifted, err := shiftChord(c, steps)
		if err != nil {
			return nil, err
		}
		out = append(out, shifted)
	}
	return out, nil
}
