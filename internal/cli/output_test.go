package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/query"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_YAMLSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "yaml",
		Writer: buf,
	}

	err := formatter.Success([]string{"P1", "P2"})
	require.NoError(t, err)

	var resp struct {
		Status string   `yaml:"status"`
		Data   []string `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"P1", "P2"}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("PACKET_NOT_FOUND", "no such packet", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PACKET_NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "no such packet", resp.Error.Message)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc\n", buf.String())
}

func TestOutputFormatter_TextRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success([]string{"ignored"}, func(w io.Writer) {
		fmt.Fprint(w, "rendered")
	})
	require.NoError(t, err)
	assert.Equal(t, "rendered", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"hash": "sha256:00"}
	err := formatter.Error("HASH_MISMATCH", "content does not match", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [HASH_MISMATCH]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_FailClassified(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := failure.NotFound(failure.CodePacketNotFound, "no such packet").WithPacket("P9")
	err := formatter.Fail(fmt.Errorf("lookup: %w", cause))
	require.Error(t, err)
	assert.Equal(t, ExitNotFound, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, failure.CodePacketNotFound, resp.Error.Code)
	assert.Equal(t, map[string]any{"packet": "P9"}, resp.Error.Details)
}

func TestOutputFormatter_FailParseError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	_, parseErr := query.Parse("name ==")
	require.Error(t, parseErr)

	err := formatter.Fail(parseErr)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [PARSE_ERROR]")
	assert.Contains(t, buf.String(), "name ==\n")
	assert.Contains(t, buf.String(), "^")
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit_error", NewExitError(ExitFailure, "failed"), ExitFailure},
		{"not_found", failure.NotFound(failure.CodeObjectNotFound, "gone"), ExitNotFound},
		{"integrity", failure.Integrity(failure.CodeHashMismatch, "bad"), ExitFailure},
		{"store", failure.IO("write", errors.New("disk full")), ExitStoreError},
		{"config", failure.New(failure.KindStore, failure.CodeConfigInvalid, "bad config"), ExitCommandError},
		{"unclassified", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Opening %s", "archive")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Opening archive")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}
