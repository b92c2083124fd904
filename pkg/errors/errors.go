// Package errors provides the error taxonomy shared by parsers, the registry
// and the factory.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Base Error Types
// =============================================================================

// Error is the base error type for all scanlens errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "registry.Register")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindParse
	KindFormat
	KindVersion
	KindRegistration
	KindNoParser
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindParse:
		return "parse"
	case KindFormat:
		return "format"
	case KindVersion:
		return "version"
	case KindRegistration:
		return "registration"
	case KindNoParser:
		return "no_parser"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// =============================================================================
// Parse Error
// =============================================================================

// ParseError reports malformed or unsupported content. It carries the name of
// the processor that failed and, when known, the file and line being read.
type ParseError struct {
	// Kind is KindParse, KindFormat or KindVersion.
	Kind Kind

	// Processor is the tool name of the parser that raised the error.
	Processor string

	// FileName is the input file, if known.
	FileName string

	// Line is the 1-based line number, or 0 when unknown.
	Line int

	// Message is a human-readable description.
	Message string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Processor != "" {
		b.WriteString(e.Processor)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.FileName != "" {
		b.WriteString(" (file ")
		b.WriteString(e.FileName)
		if e.Line > 0 {
			fmt.Fprintf(&b, ", line %d", e.Line)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a ParseError against a kind sentinel such as ErrFormat.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind() == t.Kind
}

func (e *ParseError) kind() Kind {
	if e.Kind == KindUnknown {
		return KindParse
	}
	return e.Kind
}

// WithFile returns a copy of the error annotated with the input file name.
func (e *ParseError) WithFile(name string) *ParseError {
	cp := *e
	cp.FileName = name
	return &cp
}

// =============================================================================
// Constructors
// =============================================================================

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op or Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// NewParseError creates a ParseError for the given processor.
func NewParseError(processor, message string, err error) *ParseError {
	return &ParseError{Kind: KindParse, Processor: processor, Message: message, Err: err}
}

// NewFormatError reports that no parser understands the detected format.
func NewFormatError(format, message string) *ParseError {
	return &ParseError{Kind: KindFormat, Processor: "factory", Message: fmt.Sprintf("unsupported format %q: %s", format, message)}
}

// NewVersionError reports a tool version outside a parser's declared support.
func NewVersionError(processor, version string, supported []string) *ParseError {
	return &ParseError{
		Kind:      KindVersion,
		Processor: processor,
		Message:   fmt.Sprintf("version %q not supported (supported: %s)", version, strings.Join(supported, ", ")),
	}
}

// NewRegistrationError reports an invalid or duplicate parser registration.
func NewRegistrationError(tool, message string) error {
	return &Error{Kind: KindRegistration, Op: "registry.Register", Message: fmt.Sprintf("%s: %s", tool, message)}
}

// =============================================================================
// Error Checkers
// =============================================================================

// GetKind returns the Kind of the error, or KindUnknown.
func GetKind(err error) Kind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.kind()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AsParseError checks if err is a ParseError and returns it.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsParseError reports whether err is any member of the parse family
// (parse, format or version).
func IsParseError(err error) bool {
	switch GetKind(err) {
	case KindParse, KindFormat, KindVersion:
		return true
	}
	return false
}

// IsFormatError checks if the error is a format error.
func IsFormatError(err error) bool {
	return GetKind(err) == KindFormat
}

// IsVersionError checks if the error is a version error.
func IsVersionError(err error) bool {
	return GetKind(err) == KindVersion
}

// IsRegistrationError checks if the error is a registration error.
func IsRegistrationError(err error) bool {
	return GetKind(err) == KindRegistration
}

// IsNoParser checks if the error is the factory's "no parser" outcome.
func IsNoParser(err error) bool {
	return GetKind(err) == KindNoParser
}

// =============================================================================
// Common Errors
// =============================================================================

var (
	// ErrNoParser is returned when no registered parser scored above zero.
	ErrNoParser = &Error{Kind: KindNoParser, Message: "no compatible parser found"}

	// ErrFormat matches any format error via errors.Is.
	ErrFormat = &Error{Kind: KindFormat, Message: "unsupported format"}

	// ErrVersion matches any version error via errors.Is.
	ErrVersion = &Error{Kind: KindVersion, Message: "unsupported version"}

	// ErrRegistration matches any registration error via errors.Is.
	ErrRegistration = &Error{Kind: KindRegistration, Message: "invalid registration"}

	// ErrInvalidConfig is returned for invalid configuration.
	ErrInvalidConfig = &Error{Kind: KindInvalidInput, Message: "invalid configuration"}
)
