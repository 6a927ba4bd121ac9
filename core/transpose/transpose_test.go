package transpose

import (
	"errors"
	"reflect"
	"testing"

	"github.com/FocuswithJustin/LeadSheetML/core/ast"
	lserrors "github.com/FocuswithJustin/LeadSheetML/core/errors"
	"github.com/FocuswithJustin/LeadSheetML/core/parser"
)

const sampleSong = `@title: Sample
@artist: Nobody
@key: C# Minor
@tempo: 92

#Verse
[C#m]Under the [E/B]lamp, a [F#m7]quiet [G#7sus4]street
| [A]one | [Bbmaj7]two | [Cb]three |

#Chorus
[Fb]Low [E#dim]high [B#]end`

func parseSample(t *testing.T) *ast.Song {
	t.Helper()
	song, err := parser.Parse(sampleSong)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return song
}

func TestSteps(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0}, {1, 1}, {7, 7}, {11, 11}, {12, 0}, {13, 1}, {25, 1},
		{-1, 11}, {-5, 7}, {-12, 0}, {-13, 11}, {-24, 0}, {-25, 11},
	}
	for _, tt := range tests {
		if got := Steps(tt.in); got != tt.want {
			t.Errorf("Steps(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		semitones int
		want      string
	}{
		{name: "flat respelled", value: "Db Major", semitones: 5, want: "Gb Major"},
		{name: "sharp down thirteen", value: "C# Minor", semitones: -13, want: "C Minor"},
		{name: "mode kept verbatim", value: "A dorian", semitones: 2, want: "B dorian"},
		{name: "extra whitespace collapsed", value: "  E   Minor ", semitones: 1, want: "F Minor"},
		{name: "zero keeps spelling", value: "F# Major", semitones: 12, want: "F# Major"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Key(tt.value, tt.semitones)
			if err != nil {
				t.Fatalf("Key() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Key(%q, %d) = %q, want %q", tt.value, tt.semitones, got, tt.want)
			}
		})
	}
}

func TestCircleOfFifths(t *testing.T) {
	want := []string{"G", "D", "A", "E", "B", "Gb", "Db", "Ab", "Eb", "Bb", "F", "C"}
	song := &ast.Song{
		Directives: map[string]string{"key": "C Major"},
		Blocks: []*ast.Block{{
			SectionName: "#S",
			Lines: []*ast.LyricLine{{Segments: []ast.Segment{
				&ast.Inline{Items: []ast.Item{&ast.Chord{Root: ast.Note{Letter: ast.LetterC}}}},
			}}},
		}},
	}
	for i, note := range want {
		next, err := Transpose(song, 7)
		if err != nil {
			t.Fatalf("step %d: Transpose() error = %v", i, err)
		}
		if got := next.Directives["key"]; got != note+" Major" {
			t.Errorf("step %d: key = %q, want %q", i, got, note+" Major")
		}
		chord := next.Blocks[0].Lines[0].Segments[0].Elements()[0].(*ast.Chord)
		if got := chord.String(); got != note {
			t.Errorf("step %d: chord = %q, want %q", i, got, note)
		}
		song = next
	}
}

func TestTransposeChords(t *testing.T) {
	got, err := Transpose(parseSample(t), 2)
	if err != nil {
		t.Fatalf("Transpose() error = %v", err)
	}
	var chords []string
	got.Chords(func(c *ast.Chord) { chords = append(chords, c.String()) })
	want := []string{"Ebm", "Gb/Db", "Abm7", "Bb7sus4", "B", "Cmaj7", "Db", "Gb", "Gdim", "D"}
	if !reflect.DeepEqual(chords, want) {
		t.Errorf("chords = %v, want %v", chords, want)
	}
	if got.Directives["key"] != "Eb Minor" {
		t.Errorf("key = %q, want Eb Minor", got.Directives["key"])
	}
	for _, name := range []string{"title", "artist", "tempo"} {
		if got.Directives[name] == "" {
			t.Errorf("directive %q was dropped", name)
		}
	}
	if _, ok := got.Blocks[0].Lines[1].Segments[0].(*ast.Measure); !ok {
		t.Error("measure segments should stay measures")
	}
}

func TestTransposeDoesNotMutate(t *testing.T) {
	song := parseSample(t)
	before := song.Clone()
	if _, err := Transpose(song, 5); err != nil {
		t.Fatalf("Transpose() error = %v", err)
	}
	if !reflect.DeepEqual(song, before) {
		t.Error("Transpose() mutated its input")
	}
}

func TestTransposeIdentity(t *testing.T) {
	song := parseSample(t)
	got, err := Transpose(song, 0)
	if err != nil {
		t.Fatalf("Transpose() error = %v", err)
	}
	if !reflect.DeepEqual(got, song) {
		t.Error("Transpose(s, 0) should equal s")
	}
	if got == song || got.Blocks[0] == song.Blocks[0] {
		t.Error("Transpose(s, 0) should not share nodes with s")
	}
}

func TestTransposePeriodicity(t *testing.T) {
	song := parseSample(t)
	for n := -14; n <= 14; n++ {
		a, err := Transpose(song, n)
		if err != nil {
			t.Fatalf("Transpose(%d) error = %v", n, err)
		}
		b, err := Transpose(song, n+12)
		if err != nil {
			t.Fatalf("Transpose(%d) error = %v", n+12, err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("Transpose(s, %d) != Transpose(s, %d)", n, n+12)
		}
	}
}

// pitchClasses reduces every chord to its canonical spelling so songs can be
// compared by pitch rather than by spelling.
func pitchClasses(t *testing.T, song *ast.Song) []string {
	t.Helper()
	var out []string
	song.Chords(func(c *ast.Chord) {
		root, err := Note(c.Root, 0)
		if err != nil {
			t.Fatalf("Note() error = %v", err)
		}
		s := root.String()
		if c.Bass != nil {
			bass, err := Note(*c.Bass, 0)
			if err != nil {
				t.Fatalf("Note() error = %v", err)
			}
			s += "/" + bass.String()
		}
		out = append(out, s)
	})
	return out
}

func TestTransposeComposition(t *testing.T) {
	song := parseSample(t)
	pairs := [][2]int{{1, 2}, {5, 7}, {-3, 4}, {11, -11}, {-13, 6}, {0, 9}, {6, 0}}
	for _, p := range pairs {
		ab, err := Transpose(song, p[0])
		if err != nil {
			t.Fatalf("Transpose(%d) error = %v", p[0], err)
		}
		ab, err = Transpose(ab, p[1])
		if err != nil {
			t.Fatalf("Transpose(%d) error = %v", p[1], err)
		}
		direct, err := Transpose(song, p[0]+p[1])
		if err != nil {
			t.Fatalf("Transpose(%d) error = %v", p[0]+p[1], err)
		}
		if !reflect.DeepEqual(pitchClasses(t, ab), pitchClasses(t, direct)) {
			t.Errorf("composition %d then %d differs from %d", p[0], p[1], p[0]+p[1])
		}
	}
}

func TestNoteNormalisesSpelling(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"C#", "Db"}, {"D#", "Eb"}, {"E#", "F"}, {"Fb", "E"}, {"F#", "Gb"},
		{"G#", "Ab"}, {"A#", "Bb"}, {"B#", "C"}, {"Cb", "B"}, {"Bb", "Bb"}, {"E", "E"},
	}
	for _, tt := range tests {
		n, err := ast.ParseNote(tt.in)
		if err != nil {
			t.Fatalf("ParseNote(%q) error = %v", tt.in, err)
		}
		got, err := Note(n, 0)
		if err != nil {
			t.Fatalf("Note(%q) error = %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Errorf("Note(%q, 0) = %q, want %q", tt.in, got.String(), tt.want)
		}
	}
}

func TestTransposeKeyErrors(t *testing.T) {
	tests := []struct {
		name      string
		key       *string
		wantType  string
		semitones int
	}{
		{name: "missing key", key: nil, wantType: "missing", semitones: 2},
		{name: "missing key at zero", key: nil, wantType: "missing", semitones: 0},
		{name: "one token", key: strp("C"), wantType: "malformed", semitones: 2},
		{name: "three tokens", key: strp("C sharp Minor"), wantType: "malformed", semitones: 2},
		{name: "not a note", key: strp("H Major"), wantType: "malformed", semitones: 2},
		{name: "malformed at zero", key: strp("Major"), wantType: "malformed", semitones: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			song := parseSample(t)
			delete(song.Directives, "key")
			if tt.key != nil {
				song.Directives["key"] = *tt.key
			}
			got, err := Transpose(song, tt.semitones)
			if got != nil {
				t.Error("Transpose() returned a song alongside an error")
			}
			if !errors.Is(err, lserrors.ErrTranspose) {
				t.Fatalf("Transpose() error = %v, want ErrTranspose", err)
			}
			switch tt.wantType {
			case "missing":
				var e *lserrors.MissingKeyDirectiveError
				if !errors.As(err, &e) {
					t.Errorf("error = %T, want MissingKeyDirectiveError", err)
				}
			case "malformed":
				var e *lserrors.MalformedKeyDirectiveError
				if !errors.As(err, &e) {
					t.Errorf("error = %T, want MalformedKeyDirectiveError", err)
				}
			}
		})
	}
}

func strp(s string) *string { return &s }
