// Package testutil builds outpack repositories for tests.
//
// Fixtures write records straight into the metadata area and objects straight
// into the object area, bypassing commit checks, so tests can also construct
// repositories that a well-behaved writer never would (dangling dependencies,
// cycles, records stored under the wrong name).
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/hash"
	"github.com/roach88/outpack/internal/packet"
)

// Repo is an initialised repository under a temporary directory.
type Repo struct {
	t      testing.TB
	Root   string
	Config *config.Config
	Clock  *PacketClock
}

// NewRepo initialises an empty repository with the default configuration.
func NewRepo(t testing.TB) *Repo {
	t.Helper()
	return NewRepoWithConfig(t, config.Default())
}

// NewRepoWithConfig initialises an empty repository with cfg.
func NewRepoWithConfig(t testing.TB, cfg *config.Config) *Repo {
	t.Helper()
	root := t.TempDir()
	loaded, err := config.Init(root, cfg)
	require.NoError(t, err)
	return &Repo{t: t, Root: root, Config: loaded, Clock: NewPacketClock(0, 100)}
}

// Algorithm returns the repository hash algorithm.
func (r *Repo) Algorithm() hash.Algorithm {
	return r.Config.Core.HashAlgorithm
}

// WriteRecord writes raw bytes as the metadata record named name.
func (r *Repo) WriteRecord(name string, data []byte) {
	r.t.Helper()
	require.NoError(r.t, os.WriteFile(filepath.Join(config.MetadataDir(r.Root), name), data, 0o644))
}

// Encode returns the persisted form of p and its hash under the repository
// algorithm.
func (r *Repo) Encode(p *packet.Packet) ([]byte, string) {
	r.t.Helper()
	data, err := json.Marshal(p)
	require.NoError(r.t, err)
	return data, hash.Digest(data, r.Algorithm()).String()
}

// WriteObject stores content in the object area and returns its hash.
func (r *Repo) WriteObject(content []byte) string {
	r.t.Helper()
	h := hash.Digest(content, r.Algorithm())
	p := filepath.Join(config.FilesDir(r.Root), string(h.Algorithm), h.Hex[:2], h.Hex[2:])
	require.NoError(r.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(r.t, os.WriteFile(p, content, 0o644))
	return h.String()
}

// Packet starts building a packet with the given id and name. Its time is
// taken from the repository clock unless At is called.
func (r *Repo) Packet(id, name string) *PacketBuilder {
	return &PacketBuilder{
		repo: r,
		p: &packet.Packet{
			SchemaVersion: packet.SchemaVersion,
			ID:            id,
			Name:          name,
			Parameters:    packet.Parameters{},
		},
	}
}

// PacketBuilder accumulates a packet record.
type PacketBuilder struct {
	repo    *Repo
	p       *packet.Packet
	timed   bool
	objects bool
}

// At sets the packet time.
func (b *PacketBuilder) At(t float64) *PacketBuilder {
	b.p.Time = t
	b.p.End = t
	b.timed = true
	return b
}

// Param sets a parameter. v must be a string, number, bool or nil.
func (b *PacketBuilder) Param(key string, v any) *PacketBuilder {
	b.repo.t.Helper()
	value, err := packet.ValueOf(v)
	require.NoError(b.repo.t, err)
	b.p.Parameters[key] = value
	return b
}

// File adds a manifest entry for content at path. After WithObjects the
// content is also stored in the object area.
func (b *PacketBuilder) File(path, content string) *PacketBuilder {
	b.repo.t.Helper()
	if b.objects {
		b.repo.WriteObject([]byte(content))
	}
	b.p.Files = append(b.p.Files, packet.File{
		Path: path,
		Size: int64(len(content)),
		Hash: hash.DigestString(content, b.repo.Algorithm()).String(),
	})
	return b
}

// WithObjects makes subsequent File calls store their content as objects.
func (b *PacketBuilder) WithObjects() *PacketBuilder {
	b.objects = true
	return b
}

// Depends adds a dependency on id, optionally mapping files.
func (b *PacketBuilder) Depends(id string, files ...packet.DependencyFile) *PacketBuilder {
	b.p.Depends = append(b.p.Depends, packet.Dependency{Packet: id, Files: files})
	return b
}

// Custom sets the opaque custom payload.
func (b *PacketBuilder) Custom(raw string) *PacketBuilder {
	b.p.Custom = json.RawMessage(raw)
	return b
}

// Build returns the packet without writing it.
func (b *PacketBuilder) Build() *packet.Packet {
	if !b.timed {
		b.At(b.repo.Clock.Next())
	}
	return b.p
}

// Commit writes the record into the metadata area and returns the packet.
func (b *PacketBuilder) Commit() *packet.Packet {
	b.repo.t.Helper()
	p := b.Build()
	data, _ := b.repo.Encode(p)
	b.repo.WriteRecord(p.ID, data)
	return p
}
