// Package outpack ties the repository components together behind the
// operations the request layer calls.
//
// A Root is one opened repository: its configuration, object store, metadata
// repository, cached index and location inventory. All reads go through a
// whole-index snapshot taken from the cache; writes invalidate it so the next
// read rebuilds. A Registry keeps recently used roots open.
package outpack

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/hash"
	"github.com/roach88/outpack/internal/index"
	"github.com/roach88/outpack/internal/location"
	"github.com/roach88/outpack/internal/metadata"
	"github.com/roach88/outpack/internal/packet"
	"github.com/roach88/outpack/internal/query"
	"github.com/roach88/outpack/internal/reconcile"
	"github.com/roach88/outpack/internal/store"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	workers int
}

// WithLogger sets the logger shared by every component of the root.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithWorkers bounds parallel metadata reads while indexing.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Root is an opened repository. Safe for concurrent use.
type Root struct {
	path   string
	cfg    *config.Config
	logger *slog.Logger

	objects   *store.Store
	meta      *metadata.Repository
	cache     *index.Cache
	locations *location.Store
}

// Info describes a repository root.
type Info struct {
	SchemaVersion string         `json:"schema_version" yaml:"schema_version"`
	HashAlgorithm hash.Algorithm `json:"hash_algorithm" yaml:"hash_algorithm"`
}

// Open opens the repository at path. The location inventory is brought in
// line with the configured locations.
func Open(ctx context.Context, path string, opts ...Option) (*Root, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, failure.IO("resolve root", err)
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	alg := cfg.Core.HashAlgorithm
	logger := o.logger.With("root", abs)

	metaOpts := []metadata.Option{metadata.WithLogger(logger)}
	if o.workers > 0 {
		metaOpts = append(metaOpts, metadata.WithWorkers(o.workers))
	}
	meta := metadata.New(abs, alg, metaOpts...)

	locations, err := location.OpenRoot(abs)
	if err != nil {
		return nil, err
	}
	if err := locations.Sync(ctx, cfg); err != nil {
		locations.Close()
		return nil, err
	}

	logger.Debug("root opened", "hash_algorithm", alg)
	return &Root{
		path:      abs,
		cfg:       cfg,
		logger:    logger,
		objects:   store.New(abs, alg, store.WithLogger(logger)),
		meta:      meta,
		cache:     index.NewCache(meta, alg, logger),
		locations: locations,
	}, nil
}

// Init creates a repository at path with cfg (the default when nil) and
// opens it.
func Init(ctx context.Context, path string, cfg *config.Config, opts ...Option) (*Root, error) {
	if _, err := config.Init(path, cfg); err != nil {
		return nil, err
	}
	return Open(ctx, path, opts...)
}

// Close releases the location inventory.
func (r *Root) Close() error {
	return r.locations.Close()
}

// Path returns the absolute root directory.
func (r *Root) Path() string {
	return r.path
}

// Config returns the repository configuration.
func (r *Root) Config() *config.Config {
	return r.cfg
}

// RootInfo describes the repository.
func (r *Root) RootInfo() Info {
	return Info{SchemaVersion: r.cfg.SchemaVersion, HashAlgorithm: r.cfg.Core.HashAlgorithm}
}

// Index returns a current snapshot of the index.
func (r *Root) Index(ctx context.Context) (*index.Index, error) {
	return r.cache.Get(ctx)
}

// EvaluateQuery evaluates text against the current index. env, when not
// nil, is the environment for this:<key> lookups.
func (r *Root) EvaluateQuery(ctx context.Context, text string, env packet.Parameters) ([]string, error) {
	expr, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	idx, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}
	var opts []query.Option
	if env != nil {
		opts = append(opts, query.WithThis(env))
	}
	return query.Eval(idx, expr, opts...)
}

// GetPacket returns the packet with the given id.
func (r *Root) GetPacket(id string) (*packet.Packet, error) {
	return r.meta.GetByID(id)
}

// GetPacketText returns the record of id exactly as stored.
func (r *Root) GetPacketText(id string) ([]byte, error) {
	return r.meta.GetText(id)
}

// GetPacketsSince returns packets with time strictly after since (all when
// nil), ordered by (time, id).
func (r *Root) GetPacketsSince(ctx context.Context, since *float64) ([]*packet.Packet, error) {
	idx, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}
	packets := idx.Packets()
	start := 0
	if since != nil {
		for start < len(packets) && packets[start].Time <= *since {
			start++
		}
	}
	return append([]*packet.Packet{}, packets[start:]...), nil
}

// IDsDigest digests the sorted packet ids with alg, the repository
// algorithm when empty.
func (r *Root) IDsDigest(alg string) (hash.Hash, error) {
	a := r.cfg.Core.HashAlgorithm
	if alg != "" {
		parsed, err := hash.ParseAlgorithm(alg)
		if err != nil {
			return hash.Hash{}, err
		}
		a = parsed
	}
	return r.meta.IDsDigest(a)
}

func (r *Root) reconciler(ctx context.Context) (*reconcile.Reconciler, error) {
	idx, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}
	unpacked, err := r.locations.Known(ctx, config.LocalLocation)
	if err != nil {
		return nil, err
	}
	return reconcile.New(idx, r.objects, unpacked), nil
}

// MissingPackets returns the ids this repository holds that are absent from
// ids, ordered by (time, id). With unpackedOnly only packets unpacked in the
// local location are offered.
func (r *Root) MissingPackets(ctx context.Context, ids []string, unpackedOnly bool) ([]string, error) {
	rec, err := r.reconciler(ctx)
	if err != nil {
		return nil, err
	}
	return rec.MissingPackets(ids, unpackedOnly), nil
}

// MissingFiles returns the hashes absent from the object store.
func (r *Root) MissingFiles(hashes []string) ([]string, error) {
	return r.objects.Missing(hashes)
}

// MissingFilesFor returns the manifest hashes of ids absent from the object
// store.
func (r *Root) MissingFilesFor(ctx context.Context, ids []string) ([]string, error) {
	rec, err := r.reconciler(ctx)
	if err != nil {
		return nil, err
	}
	return rec.MissingFilesFor(ids)
}

// ObjectPath returns where the object h lives.
func (r *Root) ObjectPath(h string) (string, error) {
	return r.objects.Path(h)
}

// CommitObject stores content under h after verifying it.
func (r *Root) CommitObject(ctx context.Context, h string, content []byte) error {
	return r.objects.Commit(ctx, h, content)
}

// CommitObjectFile stores the file at path under h after verifying it.
func (r *Root) CommitObjectFile(ctx context.Context, h, path string) error {
	return r.objects.CommitFile(ctx, h, path)
}

// OpenObject opens the object h for reading.
func (r *Root) OpenObject(h string) (*os.File, error) {
	return r.objects.Open(h)
}

// CommitPacket stores a metadata record whose bytes hash to h and marks the
// packet in the local location. With require_complete_tree and the file
// store enabled every manifest file must already be stored.
func (r *Root) CommitPacket(ctx context.Context, h string, data []byte) (*packet.Packet, error) {
	claimed, err := hash.Parse(h)
	if err != nil {
		return nil, err
	}
	if claimed.Algorithm != r.cfg.Core.HashAlgorithm {
		return nil, failure.Integrity(failure.CodeMalformedHash,
			fmt.Sprintf("hash uses %s, repository uses %s", claimed.Algorithm, r.cfg.Core.HashAlgorithm)).
			WithDetail("hash", h)
	}

	var checks []metadata.Check
	if r.cfg.Core.UseFileStore && r.cfg.Core.RequireCompleteTree {
		checks = append(checks, r.requireFiles)
	}

	p, created, err := r.meta.Commit(ctx, h, data, checks...)
	if err != nil {
		return nil, err
	}
	if created {
		r.cache.Invalidate()
	}

	if _, err := r.locations.Mark(ctx, config.LocalLocation, location.Entry{
		Packet: p.ID, Time: p.Time, Hash: claimed.String(),
	}); err != nil {
		return nil, fmt.Errorf("mark %s in %s: %w", p.ID, config.LocalLocation, err)
	}
	return p, nil
}

func (r *Root) requireFiles(p *packet.Packet) error {
	hashes := make([]string, len(p.Files))
	for i, f := range p.Files {
		hashes[i] = f.Hash
	}
	missing, err := r.objects.Missing(hashes)
	if err != nil {
		return fmt.Errorf("packet %s manifest: %w", p.ID, err)
	}
	if len(missing) > 0 {
		return failure.Integrity(failure.CodeIncompletePacket,
			fmt.Sprintf("%d manifest file(s) not in the object store", len(missing))).
			WithPacket(p.ID).WithDetail("missing", missing[0])
	}
	return nil
}

// Locations summarises every location.
func (r *Root) Locations(ctx context.Context) ([]location.Location, error) {
	return r.locations.Locations(ctx)
}

// ListLocation returns the packets recorded for name, ordered by time then
// id.
func (r *Root) ListLocation(ctx context.Context, name string) ([]location.Entry, error) {
	return r.locations.Entries(ctx, name)
}

// Problems returns the integrity problems of the current index.
func (r *Root) Problems(ctx context.Context) ([]*failure.Error, error) {
	idx, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Problems(), nil
}
