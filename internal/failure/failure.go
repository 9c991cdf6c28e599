// Package failure defines the error taxonomy shared by every outpack package.
//
// Errors fall into five kinds:
//   - parse: malformed query text
//   - evaluation: a well-formed query that cannot be answered (ambiguous
//     single(), unknown lookup scope, bad function call)
//   - integrity: a repository or request whose content contradicts itself
//     (dangling dependency, malformed hash, hash/content mismatch)
//   - not_found: an unknown packet id, object hash or location
//   - store: filesystem or database failures
//
// The core never retries. Errors are returned to the caller, which maps the
// kind onto whatever its surface needs (exit code, HTTP status).
package failure

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindParse      Kind = "parse"
	KindEvaluation Kind = "evaluation"
	KindIntegrity  Kind = "integrity"
	KindNotFound   Kind = "not_found"
	KindStore      Kind = "store"

	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = "unknown"
)

// Error codes. Codes are stable strings intended for machine consumption.
const (
	CodeMalformedHash      = "MALFORMED_HASH"
	CodeHashMismatch       = "HASH_MISMATCH"
	CodeDanglingDependency = "DANGLING_DEPENDENCY"
	CodeDependencyCycle    = "DEPENDENCY_CYCLE"
	CodeMalformedMetadata  = "MALFORMED_METADATA"
	CodeIDMismatch         = "ID_MISMATCH"
	CodeMetadataConflict   = "METADATA_CONFLICT"
	CodeIncompletePacket   = "INCOMPLETE_PACKET"

	CodePacketNotFound   = "PACKET_NOT_FOUND"
	CodeObjectNotFound   = "OBJECT_NOT_FOUND"
	CodeLocationNotFound = "LOCATION_NOT_FOUND"

	CodeIOFailure     = "IO_FAILURE"
	CodeConfigInvalid = "CONFIG_INVALID"
)

// Classified is implemented by every typed error in the module.
type Classified interface {
	error
	Kind() Kind
}

// Error is the general coded error used outside the query engine.
//
// PacketID is set when the error is attached to a specific packet, which is
// how integrity problems found while indexing are reported.
type Error struct {
	kind Kind

	// Code identifies the error category within its kind.
	Code string

	// Message is a human-readable description.
	Message string

	// PacketID identifies the affected packet, if any.
	PacketID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Kind implements Classified.
func (e *Error) Kind() Kind {
	return e.kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.PacketID != "" {
		fmt.Fprintf(&b, " (packet=%s)", e.PacketID)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Details[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{kind: kind, Code: code, Message: message}
}

// Wrap creates a coded error of the given kind around a cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{kind: kind, Code: code, Message: message, Err: err}
}

// WithPacket attaches a packet id and returns the receiver.
func (e *Error) WithPacket(id string) *Error {
	e.PacketID = id
	return e
}

// WithDetail adds a detail entry and returns the receiver.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Integrity creates an integrity error.
func Integrity(code, message string) *Error {
	return New(KindIntegrity, code, message)
}

// NotFound creates a not-found error.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// IO wraps a filesystem or database failure.
func IO(message string, err error) *Error {
	return Wrap(KindStore, CodeIOFailure, message, err)
}

// KindOf reports the kind of err, looking through wrapping.
// Returns KindUnknown for nil or unclassified errors.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindUnknown
}

// CodeOf reports the code of err if it is (or wraps) a coded error.
func CodeOf(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

// ErrorCode exposes the code through CodeOf.
func (e *Error) ErrorCode() string {
	return e.Code
}

// IsNotFound returns true if err is classified as not_found.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsIntegrity returns true if err is classified as integrity.
func IsIntegrity(err error) bool {
	return KindOf(err) == KindIntegrity
}

// HasCode returns true if err carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
