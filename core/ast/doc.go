// Package ast defines the syntax tree for LeadSheetML songs.
//
// A song is a set of directives (title, artist, key, ...) followed by
// sectioned blocks of lyric lines. Each line is a sequence of segments, and
// each segment is a run of chords and lyric text:
//
//   - Song: directives plus ordered blocks
//   - Block: one section ("#Verse", "#Chorus") and its lines
//   - LyricLine: one authored line, possibly rendered as several rows
//   - Segment: a bar-delimited Measure or a free Inline run
//   - Item: a *Chord or a Text fragment
//
// # Chords
//
// A Chord has a root Note, an optional quality, an ordered list of optional
// extensions and an optional bass note for slash chords. Quality and
// extension tokens are classified against fixed vocabularies; anything
// outside them is kept as an absent (nil) slot rather than rejected.
//
// # Ownership
//
// Trees are built once by the parser and never mutated afterwards. Code that
// needs a modified song (transposition, for instance) builds a new tree; use
// Song.Clone for a deep copy.
//
// # Example
//
//	song := &ast.Song{
//	    Directives: map[string]string{"title": "Hello", "key": "C Major"},
//	    Blocks: []*ast.Block{{
//	        SectionName: "#Intro",
//	        Lines: []*ast.LyricLine{{
//	            Segments: []ast.Segment{&ast.Inline{Items: []ast.Item{
//	                &ast.Chord{Root: ast.Note{Letter: ast.LetterC}},
//	                ast.Text("Hello, world!"),
//	            }}},
//	        }},
//	    }},
//	}
package ast
