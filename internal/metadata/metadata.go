// Package metadata implements the metadata repository: one immutable record
// per packet, stored as outpack metadata JSON under .outpack/metadata/<id>.
//
// The repository is a live append-only directory with concurrent writers.
// Enumeration tolerates records that vanish between listing and reading, and
// records that fail to parse are reported as integrity problems attached to
// the record's id rather than failing the load.
package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/fsutil"
	"github.com/roach88/outpack/internal/hash"
	"github.com/roach88/outpack/internal/packet"
)

// Repository reads and writes packet records under one root.
type Repository struct {
	dir     string
	staging string
	alg     hash.Algorithm
	workers int
	logger  *slog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

// WithWorkers bounds the number of records read concurrently by Load.
func WithWorkers(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New returns the repository of root. alg is the repository hash algorithm,
// used for the ids digest default and for commit verification.
func New(root string, alg hash.Algorithm, opts ...Option) *Repository {
	r := &Repository{
		dir:     config.MetadataDir(root),
		staging: config.StagingDir(root),
		alg:     alg,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the metadata area.
func (r *Repository) Dir() string {
	return r.dir
}

// Snapshot is the result of one enumeration of the repository.
type Snapshot struct {
	// Packets holds every record that parsed, ordered by (time, id).
	Packets []*packet.Packet

	// Problems holds one integrity error per record that could not be
	// loaded, each carrying the record's id.
	Problems []*failure.Error
}

// IDs lists the ids of every record present, sorted lexically. Entries that
// are not valid packet ids are ignored.
func (r *Repository) IDs() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, failure.IO("list metadata", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || packet.ValidateID(e.Name()) != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	// ReadDir sorts by file name already; keep the contract explicit.
	slices.Sort(ids)
	return ids, nil
}

// Fingerprint summarises the repository's listing. Because the area is
// append-only, any commit changes the fingerprint.
type Fingerprint struct {
	Count   int
	ModTime time.Time
}

// Fingerprint returns the current fingerprint of the metadata area.
func (r *Repository) Fingerprint() (Fingerprint, error) {
	info, err := os.Stat(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fingerprint{}, nil
		}
		return Fingerprint{}, failure.IO("stat metadata", err)
	}
	ids, err := r.IDs()
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Count: len(ids), ModTime: info.ModTime()}, nil
}

// Load reads and parses every record.
//
// Records are read in parallel. A record listed but gone by the time it is
// read is skipped with a warning. Records that fail to decode, or whose id
// differs from their file name, are reported in Snapshot.Problems.
// Only I/O failures on the area itself and context cancellation are returned
// as errors.
func (r *Repository) Load(ctx context.Context) (*Snapshot, error) {
	ids, err := r.IDs()
	if err != nil {
		return nil, err
	}

	type result struct {
		packet  *packet.Packet
		problem *failure.Error
	}
	results := make([]result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(r.dir, id))
			if errors.Is(err, fs.ErrNotExist) {
				r.logger.Warn("metadata record vanished during enumeration", "packet", id)
				return nil
			}
			if err != nil {
				return failure.IO("read metadata", err).WithPacket(id)
			}
			p, perr := parseRecord(id, data)
			if perr != nil {
				results[i].problem = perr
				return nil
			}
			results[i].packet = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{Packets: make([]*packet.Packet, 0, len(ids))}
	for _, res := range results {
		switch {
		case res.packet != nil:
			snap.Packets = append(snap.Packets, res.packet)
		case res.problem != nil:
			r.logger.Warn("skipping invalid metadata record", "packet", res.problem.PacketID, "error", res.problem)
			snap.Problems = append(snap.Problems, res.problem)
		}
	}
	slices.SortFunc(snap.Packets, packet.Compare)

	r.logger.Debug("metadata loaded", "packets", len(snap.Packets), "problems", len(snap.Problems))
	return snap, nil
}

// parseRecord decodes a record and checks it is stored under its own id.
func parseRecord(name string, data []byte) (*packet.Packet, *failure.Error) {
	p, err := packet.Decode(data)
	if err != nil {
		var fe *failure.Error
		if errors.As(err, &fe) {
			return nil, fe.WithPacket(name)
		}
		return nil, failure.Wrap(failure.KindIntegrity, failure.CodeMalformedMetadata, "cannot decode metadata", err).WithPacket(name)
	}
	if p.ID != name {
		return nil, failure.Integrity(failure.CodeIDMismatch,
			fmt.Sprintf("record stored as %q declares id %q", name, p.ID)).WithPacket(name)
	}
	return p, nil
}

// GetText returns the raw bytes of a record.
// Returns PACKET_NOT_FOUND if no record exists for id.
func (r *Repository) GetText(id string) ([]byte, error) {
	if err := packet.ValidateID(id); err != nil {
		return nil, notFound(id)
	}
	data, err := os.ReadFile(filepath.Join(r.dir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, failure.IO("read metadata", err).WithPacket(id)
	}
	return data, nil
}

// GetByID reads and parses one record.
// Returns PACKET_NOT_FOUND if no record exists for id.
func (r *Repository) GetByID(id string) (*packet.Packet, error) {
	data, err := r.GetText(id)
	if err != nil {
		return nil, err
	}
	p, perr := parseRecord(id, data)
	if perr != nil {
		return nil, perr
	}
	return p, nil
}

// Exists reports whether a record for id is present.
func (r *Repository) Exists(id string) bool {
	if packet.ValidateID(id) != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(r.dir, id))
	return err == nil && info.Mode().IsRegular()
}

// GetSince returns packets with time strictly greater than since, ordered by
// (time, id). A nil since returns every packet. Invalid records are skipped.
func (r *Repository) GetSince(ctx context.Context, since *float64) ([]*packet.Packet, error) {
	snap, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	if since == nil {
		return snap.Packets, nil
	}
	i, _ := slices.BinarySearchFunc(snap.Packets, *since, func(p *packet.Packet, t float64) int {
		if p.Time <= t {
			return -1
		}
		return 1
	})
	return snap.Packets[i:], nil
}

// IDsDigest hashes the sorted id list, concatenated without separators, with
// alg (the repository algorithm when empty).
func (r *Repository) IDsDigest(alg hash.Algorithm) (hash.Hash, error) {
	if alg == "" {
		alg = r.alg
	}
	ids, err := r.IDs()
	if err != nil {
		return hash.Hash{}, err
	}
	return DigestIDs(ids, alg), nil
}

// DigestIDs computes the ids digest over an id list. The list is sorted
// first, so callers may pass ids in any order.
func DigestIDs(ids []string, alg hash.Algorithm) hash.Hash {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return hash.DigestString(strings.Join(sorted, ""), alg)
}

// Check is an additional acceptance test run by Commit after the record has
// been parsed and before it is written.
type Check func(*packet.Packet) error

// Commit writes a new record.
//
// The payload must hash to h, parse as a valid record, and reference only
// dependencies already present. Extra checks run afterwards. The write is
// atomic and write-once: committing the same bytes again succeeds with
// created=false; committing different bytes for an existing id fails with
// METADATA_CONFLICT.
func (r *Repository) Commit(ctx context.Context, h string, data []byte, checks ...Check) (p *packet.Packet, created bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := hash.Verify(data, h); err != nil {
		return nil, false, err
	}

	p, err = packet.Decode(data)
	if err != nil {
		return nil, false, err
	}
	for _, dep := range p.Depends {
		if !r.Exists(dep.Packet) {
			return nil, false, failure.Integrity(failure.CodeDanglingDependency,
				fmt.Sprintf("dependency %s is not in the repository", dep.Packet)).
				WithPacket(p.ID).WithDetail("dependency", dep.Packet)
		}
	}
	for _, check := range checks {
		if err := check(p); err != nil {
			return nil, false, err
		}
	}

	final := filepath.Join(r.dir, p.ID)
	created, err = fsutil.WriteOnce(r.staging, final, data)
	if err != nil {
		return nil, false, failure.IO("write metadata", err).WithPacket(p.ID)
	}
	if !created {
		existing, err := os.ReadFile(final)
		if err != nil {
			return nil, false, failure.IO("read metadata", err).WithPacket(p.ID)
		}
		if !bytes.Equal(existing, data) {
			return nil, false, failure.Integrity(failure.CodeMetadataConflict,
				"a different record already exists for this id").WithPacket(p.ID)
		}
		r.logger.Debug("metadata already present", "packet", p.ID)
		return p, false, nil
	}

	r.logger.Info("packet committed", "packet", p.ID, "name", p.Name)
	return p, true, nil
}

func notFound(id string) *failure.Error {
	return failure.NotFound(failure.CodePacketNotFound, "packet not found").WithPacket(id)
}
