package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/query"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failures, integrity errors
	ExitCommandError = 2 // Bad arguments, malformed queries, invalid configuration
	ExitNotFound     = 3 // Unknown packet, object or location
	ExitStoreError   = 4 // Filesystem or database failure
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. ExitErrors carry their
// own code; classified errors map by kind; anything else is ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch failure.KindOf(err) {
	case failure.KindParse, failure.KindEvaluation:
		return ExitCommandError
	case failure.KindNotFound:
		return ExitNotFound
	case failure.KindStore:
		if failure.HasCode(err, failure.CodeConfigInvalid) {
			return ExitCommandError
		}
		return ExitStoreError
	}
	return ExitFailure
}

// OutputFormatter handles text, JSON and YAML output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard structured response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status" yaml:"status"`                   // "ok" or "error"
	Data   any       `json:"data,omitempty" yaml:"data,omitempty"`   // success payload
	Error  *CLIError `json:"error,omitempty" yaml:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code" yaml:"code"`                           // e.g. "PACKET_NOT_FOUND"
	Message string `json:"message" yaml:"message"`                     // human-readable message
	Details any    `json:"details,omitempty" yaml:"details,omitempty"` // additional context
}

func (f *OutputFormatter) encode(v any) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("format %q is not structured", f.Format)
}

// Success outputs a successful result in the configured format. text, if
// not nil, renders the human-readable form; otherwise data is printed.
func (f *OutputFormatter) Success(data any, text ...func(io.Writer)) error {
	if f.Format != "text" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	if len(text) > 0 && text[0] != nil {
		text[0](f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format != "text" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		_ = f.Error("COMMAND_ERROR", exitErr.Message, nil)
		return exitErr
	}

	code := failure.CodeOf(err)
	if code == "" {
		code = "ERROR"
	}
	message := err.Error()
	var details any

	var fe *failure.Error
	var pe *query.ParseError
	var ee *query.EvalError
	switch {
	case errors.As(err, &pe):
		message = pe.Error()
		if f.Format == "text" {
			message += "\n" + pe.Pointer()
		}
		details = map[string]any{"position": pe.Position, "expected": pe.Expected}
	case errors.As(err, &ee):
		if len(ee.Details) > 0 {
			details = ee.Details
		}
	case errors.As(err, &fe):
		d := map[string]string{}
		for k, v := range fe.Details {
			d[k] = v
		}
		if fe.PacketID != "" {
			d["packet"] = fe.PacketID
		}
		if len(d) > 0 {
			details = d
		}
	}

	_ = f.Error(code, message, details)
	return WrapExitError(GetExitCode(err), code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
