package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/hash"
	"github.com/roach88/outpack/internal/testutil"
)

// newFixture builds a repository with two versions of "a" and one "b" that
// depends on the first.
func newFixture(t *testing.T) *testutil.Repo {
	t.Helper()
	repo := testutil.NewRepo(t)
	repo.Packet("P1", "a").Param("n", 1).WithObjects().File("data.csv", "x,y").Commit()
	repo.Packet("P2", "a").Param("n", 2).Commit()
	repo.Packet("P3", "b").Depends("P1").Commit()
	return repo
}

func lines(out string) []string {
	return strings.Fields(out)
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")

	out, err := execute(t, "init", dir, "--hash-algorithm", "blake3")
	require.NoError(t, err)
	assert.Contains(t, out, "blake3")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, hash.Algorithm("blake3"), cfg.Core.HashAlgorithm)

	_, err = execute(t, "init", dir)
	require.Error(t, err, "init refuses an existing repository")
}

func TestInitCommandRejectsAlgorithm(t *testing.T) {
	_, err := execute(t, "init", t.TempDir(), "--hash-algorithm", "crc32")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryCommand(t *testing.T) {
	repo := newFixture(t)

	out, err := execute(t, "--root", repo.Root, "query", "latest(name == 'a')")
	require.NoError(t, err)
	assert.Equal(t, []string{"P2"}, lines(out))

	out, err = execute(t, "--root", repo.Root, "query", "usedby(id == 'P1')")
	require.NoError(t, err)
	assert.Equal(t, []string{"P3"}, lines(out))
}

func TestQueryCommandThis(t *testing.T) {
	repo := newFixture(t)

	out, err := execute(t, "--root", repo.Root, "query", "parameter:n == this:n", "--this", "n=1")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, lines(out))

	_, err = execute(t, "--root", repo.Root, "query", "parameter:n == this:n")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryCommandJSON(t *testing.T) {
	repo := newFixture(t)

	out, err := execute(t, "--root", repo.Root, "--format", "json", "query", "name == 'a'")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"P1", "P2"}, resp.Data.IDs)
}

func TestQueryCommandParseError(t *testing.T) {
	repo := newFixture(t)

	out, err := execute(t, "--root", repo.Root, "query", "name ==")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "PARSE_ERROR")
}

func TestParseBindings(t *testing.T) {
	env, err := parseBindings([]string{"n=1", "s=abc", "b=true", "z=null", "e="})
	require.NoError(t, err)
	assert.Equal(t, "1", env["n"].String())
	assert.Equal(t, `"abc"`, env["s"].String())
	assert.Equal(t, "true", env["b"].String())
	assert.Equal(t, "null", env["z"].String())
	assert.Equal(t, `""`, env["e"].String())

	env, err = parseBindings(nil)
	require.NoError(t, err)
	assert.Nil(t, env)

	_, err = parseBindings([]string{"novalue"})
	require.Error(t, err)
}

func TestMetadataGetCommand(t *testing.T) {
	repo := newFixture(t)

	out, err := execute(t, "--root", repo.Root, "metadata", "get", "P1", "--raw")
	require.NoError(t, err)
	stored, err := os.ReadFile(filepath.Join(config.MetadataDir(repo.Root), "P1"))
	require.NoError(t, err)
	assert.Equal(t, string(stored), out)

	out, err = execute(t, "--root", repo.Root, "metadata", "get", "P3")
	require.NoError(t, err)
	assert.Contains(t, out, "name:  b")
	assert.Contains(t, out, "depends:")

	_, err = execute(t, "--root", repo.Root, "metadata", "get", "P9")
	require.Error(t, err)
	assert.Equal(t, ExitNotFound, GetExitCode(err))
}

func TestMetadataSinceCommand(t *testing.T) {
	repo := newFixture(t)

	out, err := execute(t, "--root", repo.Root, "--format", "json", "metadata", "since", "--since", "100")
	require.NoError(t, err)

	var resp struct {
		Data []PacketSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "P2", resp.Data[0].ID)
	assert.Equal(t, "P3", resp.Data[1].ID)

	_, err = execute(t, "--root", repo.Root, "metadata", "since", "--since", "yesterday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestChecksumCommand(t *testing.T) {
	repo := newFixture(t)

	out, err := execute(t, "--root", repo.Root, "checksum")
	require.NoError(t, err)
	want := hash.DigestString("P1P2P3", hash.Default).String()
	assert.Equal(t, want+"\n", out)

	out, err = execute(t, "--root", repo.Root, "checksum", "--alg", "md5")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "md5:"))
}

func TestMissingPacketsCommand(t *testing.T) {
	repo := newFixture(t)

	out, err := execute(t, "--root", repo.Root, "missing", "packets", "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"P2", "P3"}, lines(out))

	// Fixture records bypass the local location, so nothing is unpacked.
	out, err = execute(t, "--root", repo.Root, "missing", "packets", "--unpacked")
	require.NoError(t, err)
	assert.Empty(t, lines(out))
}

func TestMissingFilesCommand(t *testing.T) {
	repo := newFixture(t)
	present := hash.DigestString("x,y", hash.Default).String()
	absent := hash.DigestString("absent", hash.Default).String()

	out, err := execute(t, "--root", repo.Root, "missing", "files", present, absent)
	require.NoError(t, err)
	assert.Equal(t, []string{absent}, lines(out))

	_, err = execute(t, "--root", repo.Root, "missing", "files", "not-a-hash")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestFileCommands(t *testing.T) {
	repo := newFixture(t)
	src := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("report"), 0o644))
	h := hash.DigestString("report", hash.Default).String()

	_, err := execute(t, "--root", repo.Root, "file", "path", h)
	require.Error(t, err)
	assert.Equal(t, ExitNotFound, GetExitCode(err))

	_, err = execute(t, "--root", repo.Root, "file", "put", h, src)
	require.NoError(t, err)

	out, err := execute(t, "--root", repo.Root, "file", "path", h)
	require.NoError(t, err)
	stored, err := os.ReadFile(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "report", string(stored))

	wrong := hash.DigestString("other", hash.Default).String()
	_, err = execute(t, "--root", repo.Root, "file", "put", wrong, src)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestPacketPutCommand(t *testing.T) {
	repo := newFixture(t)
	p := repo.Packet("P4", "c").Depends("P2").Build()
	data, h := repo.Encode(p)
	src := filepath.Join(t.TempDir(), "P4.json")
	require.NoError(t, os.WriteFile(src, data, 0o644))

	out, err := execute(t, "--root", repo.Root, "packet", "put", h, src)
	require.NoError(t, err)
	assert.Contains(t, out, "Committed P4")

	out, err = execute(t, "--root", repo.Root, "query", "usedby(id == 'P2')")
	require.NoError(t, err)
	assert.Equal(t, []string{"P4"}, lines(out))

	out, err = execute(t, "--root", repo.Root, "locations", "--name", "local")
	require.NoError(t, err)
	assert.Contains(t, out, "P4")
	assert.Contains(t, out, h)
}

func TestLocationsCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Location = append(cfg.Location, config.Location{Name: "origin", Type: "path", Args: map[string]any{"path": "/srv/origin"}})
	repo := testutil.NewRepoWithConfig(t, cfg)

	out, err := execute(t, "--root", repo.Root, "locations")
	require.NoError(t, err)
	assert.Contains(t, out, "local\tlocal\t0 packet(s)")
	assert.Contains(t, out, "origin\tpath\t0 packet(s)")

	_, err = execute(t, "--root", repo.Root, "locations", "--name", "elsewhere")
	require.Error(t, err)
	assert.Equal(t, ExitNotFound, GetExitCode(err))
}
