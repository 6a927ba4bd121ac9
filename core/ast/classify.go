package ast

import (
	"strings"

	"github.com/FocuswithJustin/LeadSheetML/core/errors"
)

// qualities is the chord quality vocabulary.
var qualities = map[string]string{
	"maj": "maj",
	"min": "min",
	"dim": "dim",
	"aug": "aug",
	"m":   "m",
	"+":   "+",
}

// extensions is the chord extension vocabulary.
var extensions = map[string]string{
	"7":    "7",
	"9":    "9",
	"11":   "11",
	"13":   "13",
	"maj7": "maj7",
	"maj9": "maj9",
	"min7": "min7",
	"min9": "min9",
	"b5":   "b5",
	"b9":   "b9",
	"b11":  "b11",
	"b13":  "b13",
	"#5":   "#5",
	"#9":   "#9",
	"#11":  "#11",
	"#13":  "#13",
	"dim7": "dim7",
	"dim9": "dim9",
	"sus2": "sus2",
	"sus4": "sus4",
	"dim":  "dim",
	"aug":  "aug",
}

// ClassifyQuality maps a quality token to its canonical value.
// Unknown tokens classify to nil.
func ClassifyQuality(token string) *string {
	if q, ok := qualities[token]; ok {
		return &q
	}
	return nil
}

// ClassifyExtension maps an extension token to its canonical value.
// Unknown tokens classify to nil; the caller keeps the empty slot.
func ClassifyExtension(token string) *string {
	if e, ok := extensions[token]; ok {
		return &e
	}
	return nil
}

// ParseNoteLetter converts a letter A-G, in either case, to a NoteLetter.
func ParseNoteLetter(r rune) (NoteLetter, error) {
	switch r {
	case 'A', 'a':
		return LetterA, nil
	case 'B', 'b':
		return LetterB, nil
	case 'C', 'c':
		return LetterC, nil
	case 'D', 'd':
		return LetterD, nil
	case 'E', 'e':
		return LetterE, nil
	case 'F', 'f':
		return LetterF, nil
	case 'G', 'g':
		return LetterG, nil
	}
	return 0, &errors.UnknownNoteLetterError{Letter: string(r)}
}

// ParseAccidental maps "#" and "b" to Sharp and Flat. Anything else is None.
func ParseAccidental(token string) Accidental {
	switch token {
	case "#":
		return AccidentalSharp
	case "b":
		return AccidentalFlat
	default:
		return AccidentalNone
	}
}

// ParseNote parses a spelling such as "C", "f#" or "Bb".
func ParseNote(token string) (Note, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Note{}, &errors.UnknownNoteLetterError{Letter: ""}
	}
	runes := []rune(token)
	letter, err := ParseNoteLetter(runes[0])
	if err != nil {
		return Note{}, err
	}
	switch len(runes) {
	case 1:
		return Note{Letter: letter}, nil
	case 2:
		acc := ParseAccidental(string(runes[1]))
		if acc == AccidentalNone {
			return Note{}, errors.NewValidation("note", "unknown accidental in "+token)
		}
		return Note{Letter: letter, Accidental: acc}, nil
	default:
		return Note{}, errors.NewValidation("note", "too many characters in "+token)
	}
}
