// Package store implements the content-addressed object store.
//
// Objects are immutable files named by their hash and sharded by the first two
// hex characters of the digest:
//
//	.outpack/files/sha256/9f/86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
//
// Commits are write-once. Content is staged, verified against the claimed
// hash, then moved into place with a no-replace rename. Committing content
// that is already present is a no-op success, so concurrent writers of the
// same object never conflict. Content that does not match its claimed hash
// is rejected and never becomes visible.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/fsutil"
	"github.com/roach88/outpack/internal/hash"
)

// Store is the object store of one repository root.
// Safe for concurrent use; it holds no mutable state.
type Store struct {
	dir     string
	staging string
	alg     hash.Algorithm
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for commit diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New returns the object store under root using the repository's hash
// algorithm.
func New(root string, alg hash.Algorithm, opts ...Option) *Store {
	s := &Store{
		dir:     config.FilesDir(root),
		staging: config.StagingDir(root),
		alg:     alg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Algorithm returns the repository hash algorithm.
func (s *Store) Algorithm() hash.Algorithm {
	return s.alg
}

// parse validates h and checks it uses the repository algorithm.
func (s *Store) parse(h string) (hash.Hash, error) {
	parsed, err := hash.Parse(h)
	if err != nil {
		return hash.Hash{}, err
	}
	if parsed.Algorithm != s.alg {
		return hash.Hash{}, failure.Integrity(failure.CodeMalformedHash,
			fmt.Sprintf("hash algorithm %s does not match repository algorithm %s", parsed.Algorithm, s.alg)).
			WithDetail("hash", h)
	}
	return parsed, nil
}

func (s *Store) pathOf(h hash.Hash) string {
	return filepath.Join(s.dir, string(h.Algorithm), h.Hex[:2], h.Hex[2:])
}

// Path maps a hash to its object path. Fails with MALFORMED_HASH if the hash
// cannot be parsed or uses another algorithm. The object need not exist.
func (s *Store) Path(h string) (string, error) {
	parsed, err := s.parse(h)
	if err != nil {
		return "", err
	}
	return s.pathOf(parsed), nil
}

// Exists reports whether the object is present. Malformed hashes are never
// present.
func (s *Store) Exists(h string) bool {
	p, err := s.Path(h)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Open opens an object for reading. Returns OBJECT_NOT_FOUND if absent.
func (s *Store) Open(h string) (*os.File, error) {
	p, err := s.Path(h)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.NotFound(failure.CodeObjectNotFound, "object not found").WithDetail("hash", h)
	}
	if err != nil {
		return nil, failure.IO("open object", err)
	}
	return f, nil
}

// Commit stores content under the claimed hash.
//
// The content is hashed with the claimed hash's algorithm before it is made
// visible; a mismatch fails with HASH_MISMATCH and leaves nothing at the
// object path. Committing an object that already exists succeeds without
// writing.
func (s *Store) Commit(ctx context.Context, h string, content []byte) error {
	return s.CommitReader(ctx, h, bytes.NewReader(content))
}

// CommitFile stores the file at path under the claimed hash.
func (s *Store) CommitFile(ctx context.Context, h string, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return failure.IO("open source file", err)
	}
	defer f.Close()
	return s.CommitReader(ctx, h, f)
}

// CommitReader streams r into the store under the claimed hash.
func (s *Store) CommitReader(ctx context.Context, h string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want, err := s.parse(h)
	if err != nil {
		return err
	}

	// Content is verified even when the object exists, so a wrong payload
	// for a known hash is rejected rather than taken as a repeat commit.
	final := s.pathOf(want)
	hasher := want.Algorithm.New()
	created, err := fsutil.CopyOnce(s.staging, final, io.TeeReader(r, hasher), func() error {
		if got := hash.Sum(hasher, want.Algorithm); got.Hex != want.Hex {
			return hash.Mismatch(want, got)
		}
		return nil
	})
	if err != nil {
		if failure.IsIntegrity(err) {
			s.logger.Warn("object rejected", "hash", h, "error", err)
			return err
		}
		return failure.IO("commit object", err)
	}

	if created {
		s.logger.Debug("object committed", "hash", h)
	} else {
		s.logger.Debug("object already present", "hash", h)
	}
	return nil
}

// Missing returns the hashes from candidates that are not present, in input
// order without duplicates. Fails with MALFORMED_HASH if any candidate is
// malformed.
func (s *Store) Missing(candidates []string) ([]string, error) {
	missing := []string{}
	seen := make(map[string]bool, len(candidates))
	for _, h := range candidates {
		if seen[h] {
			continue
		}
		seen[h] = true
		if _, err := s.parse(h); err != nil {
			return nil, err
		}
		if !s.Exists(h) {
			missing = append(missing, h)
		}
	}
	return missing, nil
}

// List returns every stored object hash for the repository algorithm,
// sorted.
func (s *Store) List() ([]string, error) {
	base := filepath.Join(s.dir, string(s.alg))
	var hashes []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == base {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		h := hash.Format(s.alg, strings.ReplaceAll(filepath.ToSlash(rel), "/", ""))
		if _, err := hash.Parse(h); err != nil {
			s.logger.Warn("ignoring stray file in object store", "path", path)
			return nil
		}
		hashes = append(hashes, h)
		return nil
	})
	if err != nil {
		return nil, failure.IO("list objects", err)
	}
	slices.Sort(hashes)
	return hashes, nil
}
