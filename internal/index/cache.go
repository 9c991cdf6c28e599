package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/outpack/internal/hash"
	"github.com/roach88/outpack/internal/metadata"
)

// Cache holds the latest Index of one repository and rebuilds it whole when
// the metadata area changes.
//
// Readers always see either the previous complete Index or the new complete
// one; an Index is never mutated after Build returns. Rebuilds are
// serialised so concurrent callers that observe the same change share one
// rebuild.
type Cache struct {
	repo   *metadata.Repository
	alg    hash.Algorithm
	logger *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[cached]
}

type cached struct {
	fp  metadata.Fingerprint
	idx *Index
}

// NewCache returns an empty cache over repo.
func NewCache(repo *metadata.Repository, alg hash.Algorithm, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{repo: repo, alg: alg, logger: logger}
}

// Get returns an Index at least as fresh as the metadata area at the time of
// the call.
func (c *Cache) Get(ctx context.Context) (*Index, error) {
	fp, err := c.repo.Fingerprint()
	if err != nil {
		return nil, err
	}
	if cur := c.current.Load(); cur != nil && cur.fp == fp {
		return cur.idx, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have rebuilt while we waited.
	if cur := c.current.Load(); cur != nil && cur.fp == fp {
		return cur.idx, nil
	}

	snap, err := c.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	idx := Build(snap, c.alg)
	c.current.Store(&cached{fp: fp, idx: idx})

	c.logger.Debug("index rebuilt", "packets", idx.Len(), "problems", len(idx.Problems()))
	for _, p := range idx.Problems() {
		c.logger.Warn("integrity problem", "packet", p.PacketID, "code", p.Code, "error", p.Message)
	}
	return idx, nil
}

// Invalidate drops the cached Index so the next Get rebuilds.
func (c *Cache) Invalidate() {
	c.current.Store(nil)
}
