// Package errors provides the error taxonomy shared by the LeadSheetML core
// and the tools built around it.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrInvalidInput indicates malformed source text or an invalid argument
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
	// ErrTranspose indicates a song cannot be transposed as written
	ErrTranspose = errors.New("cannot transpose")
)

// SyntaxError reports the first grammar mismatch found while parsing a song.
// Line and Column are 1-based; Offset is the byte offset into the normalised
// source.
type SyntaxError struct {
	Line     int
	Column   int
	Offset   int
	Expected string // construct the parser was looking for
	Found    string // what was there instead, quoted by Error
	Err      error  // Underlying error, if any
}

func (e *SyntaxError) Error() string {
	found := "end of input"
	if e.Found != "" {
		found = fmt.Sprintf("%q", e.Found)
	}
	return fmt.Sprintf("syntax error at %d:%d: expected %s, found %s", e.Line, e.Column, e.Expected, found)
}

func (e *SyntaxError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// Is lets a SyntaxError match ErrInvalidInput even when it wraps a lower
// level parser error.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrInvalidInput
}

// UnknownNoteLetterError is returned when a note letter outside A-G reaches
// the classifier.
type UnknownNoteLetterError struct {
	Letter string
}

func (e *UnknownNoteLetterError) Error() string {
	return fmt.Sprintf("unknown note letter %q", e.Letter)
}

func (e *UnknownNoteLetterError) Unwrap() error {
	return ErrInvalidInput
}

// MissingKeyDirectiveError is returned when a song without a key directive
// is transposed.
type MissingKeyDirectiveError struct{}

func (e *MissingKeyDirectiveError) Error() string {
	return "cannot transpose: song has no key directive"
}

func (e *MissingKeyDirectiveError) Unwrap() error {
	return ErrTranspose
}

// MalformedKeyDirectiveError is returned when the key directive is not of
// the form "<Note> <Mode>".
type MalformedKeyDirectiveError struct {
	Value  string // the directive value as written
	Reason string
}

func (e *MalformedKeyDirectiveError) Error() string {
	return fmt.Sprintf("cannot transpose: malformed key directive %q: %s", e.Value, e.Reason)
}

func (e *MalformedKeyDirectiveError) Unwrap() error {
	return ErrTranspose
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "song", "catalog entry")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewSyntax creates a SyntaxError at the given position.
func NewSyntax(line, column, offset int, expected, found string) *SyntaxError {
	return &SyntaxError{
		Line:     line,
		Column:   column,
		Offset:   offset,
		Expected: expected,
		Found:    found,
	}
}

// NewMalformedKey creates a MalformedKeyDirectiveError
func NewMalformedKey(value, reason string) *MalformedKeyDirectiveError {
	return &MalformedKeyDirectiveError{
		Value:  value,
		Reason: reason,
	}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
