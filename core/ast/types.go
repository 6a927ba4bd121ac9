package ast

import "strings"

// Well-known directive names.
const (
	DirectiveTitle  = "title"
	DirectiveArtist = "artist"
	DirectiveKey    = "key"
)

// Song is the root of the tree.
type Song struct {
	// Directives maps lower-cased directive names to their values.
	// Iteration order carries no meaning.
	Directives map[string]string

	// Blocks are the song's sections in source order.
	Blocks []*Block
}

// Block is one named section of a song.
type Block struct {
	// SectionName is the raw header text, including its leading '#'.
	SectionName string

	// Lines are the lyric lines of the section in source order.
	Lines []*LyricLine
}

// LyricLine is one authored line of the notation.
type LyricLine struct {
	Segments []Segment
}

// Segment is a run of chords and text: either a *Measure or an *Inline.
// The two only differ in how they were delimited in the source.
type Segment interface {
	Elements() []Item
	isSegment()
}

// Measure is a bar delimited by '|' markers.
type Measure struct {
	Items []Item
}

// Elements returns the measure's chords and text in source order.
func (m *Measure) Elements() []Item { return m.Items }

func (*Measure) isSegment() {}

// Inline is a free-floating run of chords and text.
type Inline struct {
	Items []Item
}

// Elements returns the run's chords and text in source order.
func (i *Inline) Elements() []Item { return i.Items }

func (*Inline) isSegment() {}

// Item is either a *Chord or a Text fragment.
type Item interface {
	isItem()
}

// Text is a fragment of lyric text. It may contain embedded line breaks.
type Text string

func (Text) isItem() {}

// Chord is a chord symbol such as "C#maj7b5" or "D/F#".
type Chord struct {
	// Root is always present.
	Root Note

	// Inversion is reserved for forms like "6/9". The parser does not
	// produce it; it is carried through transposition unchanged.
	Inversion *string

	// Quality is one of the quality vocabulary, or nil.
	Quality *string

	// Extensions keeps one slot per written extension token, in order.
	// Tokens outside the vocabulary are nil.
	Extensions []*string

	// Bass is set only for slash chords.
	Bass *Note
}

func (*Chord) isItem() {}

// String formats the chord symbol: root, quality, extensions and bass.
// Absent extension slots are skipped.
func (c *Chord) String() string {
	var sb strings.Builder
	sb.WriteString(c.Root.String())
	if c.Quality != nil {
		sb.WriteString(*c.Quality)
	}
	for _, ext := range c.Extensions {
		if ext != nil {
			sb.WriteString(*ext)
		}
	}
	if c.Bass != nil {
		sb.WriteByte('/')
		sb.WriteString(c.Bass.String())
	}
	return sb.String()
}

// Note is a pitch spelling: a letter and an accidental.
type Note struct {
	Letter     NoteLetter
	Accidental Accidental
}

// String returns the spelling, e.g. "C", "F#" or "Bb".
func (n Note) String() string {
	return n.Letter.String() + n.Accidental.String()
}

// NoteLetter is one of the seven natural note names.
type NoteLetter byte

// Note letters.
const (
	LetterA NoteLetter = 'A'
	LetterB NoteLetter = 'B'
	LetterC NoteLetter = 'C'
	LetterD NoteLetter = 'D'
	LetterE NoteLetter = 'E'
	LetterF NoteLetter = 'F'
	LetterG NoteLetter = 'G'
)

// String returns the letter as a one-character string.
func (l NoteLetter) String() string {
	return string(rune(l))
}

// Accidental modifies a note letter by a semitone.
type Accidental int

// Accidentals.
const (
	AccidentalNone Accidental = iota
	AccidentalSharp
	AccidentalFlat
)

// String returns the accidental mark: "", "#" or "b".
func (a Accidental) String() string {
	switch a {
	case AccidentalSharp:
		return "#"
	case AccidentalFlat:
		return "b"
	default:
		return ""
	}
}

// Directive returns the value of the named directive. The lookup is
// case-insensitive.
func (s *Song) Directive(name string) (string, bool) {
	if s == nil || s.Directives == nil {
		return "", false
	}
	v, ok := s.Directives[strings.ToLower(name)]
	return v, ok
}

// Chords calls fn for every chord in the song in source order.
func (s *Song) Chords(fn func(*Chord)) {
	for _, block := range s.Blocks {
		for _, line := range block.Lines {
			for _, seg := range line.Segments {
				for _, item := range seg.Elements() {
					if c, ok := item.(*Chord); ok {
						fn(c)
					}
				}
			}
		}
	}
}

// Clone returns a deep copy of the song. The copy shares no nodes with s.
func (s *Song) Clone() *Song {
	if s == nil {
		return nil
	}
	out := &Song{
		Directives: make(map[string]string, len(s.Directives)),
		Blocks:     make([]*Block, 0, len(s.Blocks)),
	}
	for k, v := range s.Directives {
		out.Directives[k] = v
	}
	for _, b := range s.Blocks {
		out.Blocks = append(out.Blocks, b.clone())
	}
	return out
}

func (b *Block) clone() *Block {
	out := &Block{
		SectionName: b.SectionName,
		Lines:       make([]*LyricLine, 0, len(b.Lines)),
	}
	for _, l := range b.Lines {
		segs := make([]Segment, 0, len(l.Segments))
		for _, seg := range l.Segments {
			segs = append(segs, cloneSegment(seg))
		}
		out.Lines = append(out.Lines, &LyricLine{Segments: segs})
	}
	return out
}

func cloneSegment(seg Segment) Segment {
	items := make([]Item, 0, len(seg.Elements()))
	for _, item := range seg.Elements() {
		switch it := item.(type) {
		case *Chord:
			items = append(items, it.Clone())
		default:
			items = append(items, item)
		}
	}
	if _, ok := seg.(*Measure); ok {
		return &Measure{Items: items}
	}
	return &Inline{Items: items}
}

// Clone returns a deep copy of the chord.
func (c *Chord) Clone() *Chord {
	out := &Chord{
		Root:      c.Root,
		Inversion: cloneString(c.Inversion),
		Quality:   cloneString(c.Quality),
	}
	if c.Extensions != nil {
		out.Extensions = make([]*string, len(c.Extensions))
		for i, ext := range c.Extensions {
			out.Extensions[i] = cloneString(ext)
		}
	}
	if c.Bass != nil {
		bass := *c.Bass
		out.Bass = &bass
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
