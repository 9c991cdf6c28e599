package query

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/outpack/internal/failure"
)

// Error codes reported by the query engine.
const (
	CodeParseError         = "PARSE_ERROR"
	CodeUnknownFunction    = "UNKNOWN_FUNCTION"
	CodeArityMismatch      = "ARITY_MISMATCH"
	CodeAmbiguousQuery     = "AMBIGUOUS_QUERY"
	CodeUnknownLookupScope = "UNKNOWN_LOOKUP_SCOPE"
)

// ParseError reports query text that does not match the grammar.
type ParseError struct {
	// Query is the full query text.
	Query string

	// Position is the byte offset of the offending token.
	Position int

	// Expected lists what the parser would have accepted.
	Expected []string

	// Found describes the offending token.
	Found string
}

// Kind implements failure.Classified.
func (e *ParseError) Kind() failure.Kind {
	return failure.KindParse
}

// ErrorCode returns PARSE_ERROR.
func (e *ParseError) ErrorCode() string {
	return CodeParseError
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: at position %d: expected %s, found %s",
		CodeParseError, e.Position, strings.Join(e.Expected, " or "), e.Found)
}

// Pointer renders the query with a caret under the offending position.
func (e *ParseError) Pointer() string {
	return e.Query + "\n" + strings.Repeat(" ", e.Position) + "^"
}

// EvalError reports a well-formed query that cannot be answered.
type EvalError struct {
	Code    string
	Message string

	// Position is the byte offset of the offending construct, or -1.
	Position int

	Details map[string]string
}

// Kind implements failure.Classified.
func (e *EvalError) Kind() failure.Kind {
	return failure.KindEvaluation
}

// ErrorCode returns the error's code.
func (e *EvalError) ErrorCode() string {
	return e.Code
}

func (e *EvalError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Position >= 0 {
		fmt.Fprintf(&b, " (position %d)", e.Position)
	}
	if len(e.Details) > 0 {
		keys := slices.Sorted(maps.Keys(e.Details))
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + e.Details[k]
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, ", "))
	}
	return b.String()
}

func newEvalError(code string, pos int, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...), Position: pos}
}

func (e *EvalError) with(key, value string) *EvalError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsAmbiguous reports whether err is an AMBIGUOUS_QUERY error.
func IsAmbiguous(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee) && ee.Code == CodeAmbiguousQuery
}
