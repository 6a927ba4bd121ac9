// Package validation checks user-supplied paths and lead-sheet sources
// before they reach the parser or the filesystem.
package validation

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FocuswithJustin/LeadSheetML/core/errors"
)

// Limits on untrusted input (CWE-400).
const (
	// MaxSourceSize is the largest lead sheet accepted (1 MiB).
	MaxSourceSize = 1 << 20
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// LeadSheetExtension is the file extension of LeadSheetML sources.
const LeadSheetExtension = ".lmpl"

// ValidatePath rejects empty or overlong paths and paths containing control
// characters.
func ValidatePath(path string) error {
	if path == "" {
		return errors.NewValidation("path", "cannot be empty")
	}
	if len(path) > MaxPathLength {
		return errors.NewValidation("path", fmt.Sprintf("longer than %d bytes", MaxPathLength))
	}

	// Null bytes are the usual injection vector; other control characters
	// never appear in a legitimate file name.
	for _, r := range path {
		if unicode.IsControl(r) {
			return errors.NewValidation("path", "control character not allowed")
		}
	}
	return nil
}

// ValidateLeadSheetPath checks path and requires the .lmpl extension.
func ValidateLeadSheetPath(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if filepath.Ext(path) != LeadSheetExtension {
		return errors.NewValidation("file", fmt.Sprintf("%s: expected a %s file", path, LeadSheetExtension))
	}
	return nil
}

// ValidateSource checks that src looks like a lead sheet: UTF-8 text within
// MaxSourceSize, without NUL bytes. name labels the error.
func ValidateSource(name string, src []byte) error {
	if len(src) > MaxSourceSize {
		return errors.NewValidation("source", fmt.Sprintf("%s is %d bytes, limit is %d", name, len(src), MaxSourceSize))
	}
	if bytes.IndexByte(src, 0) >= 0 {
		return errors.NewValidation("source", name+" contains NUL bytes (binary file?)")
	}
	if !utf8.Valid(src) {
		return errors.NewValidation("source", name+" is not valid UTF-8")
	}
	return nil
}

// IsPathSafe reports whether rel stays inside its base directory once
// cleaned. Absolute paths are never safe.
func IsPathSafe(rel string) bool {
	if ValidatePath(rel) != nil || filepath.IsAbs(rel) {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(rel))
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
