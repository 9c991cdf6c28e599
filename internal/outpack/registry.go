package outpack

import (
	"context"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/outpack/internal/failure"
)

// DefaultRegistrySize bounds the number of roots a Registry keeps open.
const DefaultRegistrySize = 16

// Registry caches open roots by absolute path. Roots evicted from the cache
// are closed.
type Registry struct {
	mu    sync.Mutex
	roots *lru.Cache[string, *Root]
	opts  []Option
}

// NewRegistry returns a registry holding at most size roots, each opened
// with opts.
func NewRegistry(size int, opts ...Option) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	roots, err := lru.NewWithEvict(size, func(_ string, r *Root) {
		if err := r.Close(); err != nil {
			r.logger.Warn("closing evicted root", "error", err)
		}
	})
	if err != nil {
		return nil, failure.Wrap(failure.KindStore, failure.CodeConfigInvalid, "create root registry", err)
	}
	return &Registry{roots: roots, opts: opts}, nil
}

// Get returns the open root at path, opening it on first use.
func (g *Registry) Get(ctx context.Context, path string) (*Root, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, failure.IO("resolve root", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.roots.Get(abs); ok {
		return r, nil
	}
	r, err := Open(ctx, abs, g.opts...)
	if err != nil {
		return nil, err
	}
	g.roots.Add(abs, r)
	return r, nil
}

// Len returns the number of open roots.
func (g *Registry) Len() int {
	return g.roots.Len()
}

// Close closes every open root.
func (g *Registry) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roots.Purge()
}
