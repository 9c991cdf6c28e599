// Package reconcile computes what a peer lacks relative to this repository.
//
// Both halves of the diff are pure set operations over state that has
// already been built: the packet side runs against an index snapshot, the
// file side asks the object store which hashes it holds. Transport and
// locking are left to the caller.
package reconcile

import (
	"github.com/roach88/outpack/internal/index"
	"github.com/roach88/outpack/internal/store"
)

// Reconciler diffs inventories against one index snapshot and object store.
type Reconciler struct {
	idx     *index.Index
	objects *store.Store

	// unpacked holds the ids whose files are materialised locally.
	unpacked map[string]bool
}

// New returns a Reconciler. unpacked is the set of packet ids recorded in
// the local location; it is only consulted when restricting to unpacked
// packets.
func New(idx *index.Index, objects *store.Store, unpacked map[string]bool) *Reconciler {
	if unpacked == nil {
		unpacked = map[string]bool{}
	}
	return &Reconciler{idx: idx, objects: objects, unpacked: unpacked}
}

// MissingPackets returns the indexed ids that are not in known, ordered by
// (time, id) without duplicates. With restrictToUnpacked only packets
// unpacked locally are offered.
func (r *Reconciler) MissingPackets(known []string, restrictToUnpacked bool) []string {
	have := make(map[string]struct{}, len(known))
	for _, id := range known {
		have[id] = struct{}{}
	}

	missing := []string{}
	for _, p := range r.idx.Packets() {
		if _, ok := have[p.ID]; ok {
			continue
		}
		if restrictToUnpacked && !r.unpacked[p.ID] {
			continue
		}
		missing = append(missing, p.ID)
	}
	return missing
}

// MissingFiles returns the hashes in candidates the object store does not
// hold, in input order without duplicates.
func (r *Reconciler) MissingFiles(candidates []string) ([]string, error) {
	return r.objects.Missing(candidates)
}

// FilesFor returns the manifest hashes of ids, in id order then manifest
// order, without duplicates.
func (r *Reconciler) FilesFor(ids []string) ([]string, error) {
	var hashes []string
	seen := map[string]bool{}
	for _, id := range ids {
		p, err := r.idx.Get(id)
		if err != nil {
			return nil, err
		}
		for _, f := range p.Files {
			if !seen[f.Hash] {
				seen[f.Hash] = true
				hashes = append(hashes, f.Hash)
			}
		}
	}
	return hashes, nil
}

// MissingFilesFor returns the manifest hashes of ids absent from the object
// store: what must be fetched before those packets can be unpacked here.
func (r *Reconciler) MissingFilesFor(ids []string) ([]string, error) {
	hashes, err := r.FilesFor(ids)
	if err != nil {
		return nil, err
	}
	return r.objects.Missing(hashes)
}
