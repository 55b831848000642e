package parser

import (
	"fmt"
	"strings"
)

// DefaultErrorLimit is the number of errors accumulated before the
// assembler gives up on a source set.
const DefaultErrorLimit = 200

// Position represents a location in a source file
type Position struct {
	Filename string
	Line     int
	Column   int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// ErrorKind categorizes the type of error
type ErrorKind int

const (
	ErrorSyntax ErrorKind = iota
	ErrorUndefinedLabel
	ErrorDuplicateLabel
	ErrorInvalidDirective
	ErrorInvalidInstruction
	ErrorInvalidOperand
	ErrorAddressRange
	ErrorCircularInclude
	ErrorMacroExpansion
	ErrorFileIO
)

// Error represents an assembly error with position information
type Error struct {
	Pos     Position
	Message string
	Context string // The line of code where the error occurred
	Kind    ErrorKind
}

func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: error: %s\n", e.Pos, e.Message))

	if e.Context != "" {
		sb.WriteString(fmt.Sprintf("    %s\n", e.Context))
	}

	return sb.String()
}

// NewError creates a new assembly error
func NewError(pos Position, kind ErrorKind, message string) *Error {
	return &Error{
		Pos:     pos,
		Message: message,
		Kind:    kind,
	}
}

// NewErrorWithContext creates a new assembly error with source context
func NewErrorWithContext(pos Position, kind ErrorKind, message, context string) *Error {
	return &Error{
		Pos:     pos,
		Message: message,
		Context: context,
		Kind:    kind,
	}
}

// Warning represents a non-fatal assembly warning
type Warning struct {
	Pos     Position
	Message string
}

func (w *Warning) String() string {
	return fmt.Sprintf("%s: warning: %s", w.Pos, w.Message)
}

// ErrorList collects errors and warnings produced during assembly.
// Once Limit errors have accumulated, AtLimit reports true and the
// caller is expected to abort; errors recorded after that are still
// kept so the final count stays honest.
type ErrorList struct {
	Errors   []*Error
	Warnings []*Warning
	Limit    int
	// WarningsAreErrors promotes every warning to an error
	WarningsAreErrors bool
}

// NewErrorList creates an error list with the default error limit
func NewErrorList() *ErrorList {
	return &ErrorList{Limit: DefaultErrorLimit}
}

// AddError adds an error to the list
func (el *ErrorList) AddError(err *Error) {
	el.Errors = append(el.Errors, err)
}

// AddWarning adds a warning, or an error when warnings are promoted
func (el *ErrorList) AddWarning(warn *Warning) {
	if el.WarningsAreErrors {
		el.AddError(NewError(warn.Pos, ErrorSyntax, warn.Message))
		return
	}
	el.Warnings = append(el.Warnings, warn)
}

// HasErrors returns true if there are any errors
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// AtLimit returns true once the error cap has been reached
func (el *ErrorList) AtLimit() bool {
	limit := el.Limit
	if limit <= 0 {
		limit = DefaultErrorLimit
	}
	return len(el.Errors) >= limit
}

// Merge appends another list's errors and warnings to this one
func (el *ErrorList) Merge(other *ErrorList) {
	if other == nil {
		return
	}
	el.Errors = append(el.Errors, other.Errors...)
	for _, w := range other.Warnings {
		el.AddWarning(w)
	}
}

// Error implements the error interface
func (el *ErrorList) Error() string {
	if !el.HasErrors() {
		return ""
	}

	var sb strings.Builder
	for _, err := range el.Errors {
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// PrintWarnings formats all warnings, one per line
func (el *ErrorList) PrintWarnings() string {
	if len(el.Warnings) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, warn := range el.Warnings {
		sb.WriteString(warn.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Summary returns a one-line count of errors and warnings
func (el *ErrorList) Summary() string {
	return fmt.Sprintf("%d error(s), %d warning(s)", len(el.Errors), len(el.Warnings))
}
