// Package index builds the in-memory view of a repository that queries and
// reconciliation run against.
//
// An Index is an immutable point-in-time snapshot of the metadata area. It
// holds every loaded packet in (time, id) order and addresses them by
// position; dependency edges are kept as adjacency lists of positions in both
// directions, so graph traversals never follow pointers and always terminate.
//
// Integrity problems found while building (dangling dependencies, dependency
// cycles, file hashes under the wrong algorithm, unreadable records) are
// attached to the affected packet id and reported through Problems. They
// never abort the build: a packet with a dangling dependency stays indexed,
// and only the dangling edge is left out of the graph.
package index

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/hash"
	"github.com/roach88/outpack/internal/metadata"
	"github.com/roach88/outpack/internal/packet"
)

// Index is a read-only snapshot. Safe for concurrent use.
type Index struct {
	alg hash.Algorithm

	// packets is ordered by (time, id); a packet's position is its index.
	packets []*packet.Packet
	pos     map[string]int

	dependsOn [][]int
	usedBy    [][]int
	byName    map[string][]int

	problems []*failure.Error
}

// Build indexes a snapshot of the metadata area. alg is the repository hash
// algorithm; manifest hashes using another algorithm are flagged.
func Build(snap *metadata.Snapshot, alg hash.Algorithm) *Index {
	packets := slices.Clone(snap.Packets)
	slices.SortFunc(packets, packet.Compare)

	idx := &Index{
		alg:       alg,
		pos:       make(map[string]int, len(packets)),
		dependsOn: make([][]int, 0, len(packets)),
		usedBy:    make([][]int, 0, len(packets)),
		byName:    make(map[string][]int),
		problems:  slices.Clone(snap.Problems),
	}

	// Pass 1: positions. Duplicate ids cannot come from a directory listing,
	// but a caller-built snapshot may hold them; the first in order wins.
	for _, p := range packets {
		if _, dup := idx.pos[p.ID]; dup {
			idx.problems = append(idx.problems, failure.Integrity(failure.CodeMetadataConflict,
				"duplicate packet id").WithPacket(p.ID))
			continue
		}
		idx.pos[p.ID] = len(idx.packets)
		idx.packets = append(idx.packets, p)
		idx.dependsOn = append(idx.dependsOn, nil)
		idx.usedBy = append(idx.usedBy, nil)
		key := norm.NFC.String(p.Name)
		idx.byName[key] = append(idx.byName[key], len(idx.packets)-1)
	}

	// Pass 2: edges and per-packet checks.
	for i, p := range idx.packets {
		for _, dep := range p.Depends {
			j, ok := idx.pos[dep.Packet]
			if !ok {
				idx.problems = append(idx.problems, failure.Integrity(failure.CodeDanglingDependency,
					fmt.Sprintf("dependency %s is not in the repository", dep.Packet)).
					WithPacket(p.ID).WithDetail("dependency", dep.Packet))
				continue
			}
			if !slices.Contains(idx.dependsOn[i], j) {
				idx.dependsOn[i] = append(idx.dependsOn[i], j)
				idx.usedBy[j] = append(idx.usedBy[j], i)
			}
		}
		for _, f := range p.Files {
			if h, err := hash.Parse(f.Hash); err == nil && h.Algorithm != alg {
				idx.problems = append(idx.problems, failure.Integrity(failure.CodeMalformedHash,
					fmt.Sprintf("file %s uses %s, repository uses %s", f.Path, h.Algorithm, alg)).
					WithPacket(p.ID).WithDetail("hash", f.Hash))
			}
		}
	}
	for i := range idx.dependsOn {
		slices.Sort(idx.dependsOn[i])
		slices.Sort(idx.usedBy[i])
	}

	idx.problems = append(idx.problems, idx.findCycles()...)
	slices.SortStableFunc(idx.problems, func(a, b *failure.Error) int {
		return strings.Compare(a.PacketID, b.PacketID)
	})
	return idx
}

// Algorithm returns the repository hash algorithm.
func (idx *Index) Algorithm() hash.Algorithm {
	return idx.alg
}

// Len returns the number of indexed packets.
func (idx *Index) Len() int {
	return len(idx.packets)
}

// At returns the packet at position i.
func (idx *Index) At(i int) *packet.Packet {
	return idx.packets[i]
}

// Position returns the position of id.
func (idx *Index) Position(id string) (int, bool) {
	i, ok := idx.pos[id]
	return i, ok
}

// Packet returns the packet with the given id.
func (idx *Index) Packet(id string) (*packet.Packet, bool) {
	i, ok := idx.pos[id]
	if !ok {
		return nil, false
	}
	return idx.packets[i], true
}

// Get is Packet with a PACKET_NOT_FOUND error.
func (idx *Index) Get(id string) (*packet.Packet, error) {
	p, ok := idx.Packet(id)
	if !ok {
		return nil, failure.NotFound(failure.CodePacketNotFound, "packet not found").WithPacket(id)
	}
	return p, nil
}

// Packets returns every packet ordered by (time, id). The slice is shared
// and must not be modified.
func (idx *Index) Packets() []*packet.Packet {
	return idx.packets
}

// IDs returns every id ordered by (time, id).
func (idx *Index) IDs() []string {
	return idx.idsAt(nil)
}

func (idx *Index) idsAt(positions []int) []string {
	if positions == nil {
		ids := make([]string, len(idx.packets))
		for i, p := range idx.packets {
			ids[i] = p.ID
		}
		return ids
	}
	ids := make([]string, len(positions))
	for k, i := range positions {
		ids[k] = idx.packets[i].ID
	}
	return ids
}

// DependsOnAt returns the positions of the direct upstream packets of the
// packet at i, ascending. Shared; do not modify.
func (idx *Index) DependsOnAt(i int) []int {
	return idx.dependsOn[i]
}

// UsedByAt returns the positions of the direct downstream packets of the
// packet at i, ascending. Shared; do not modify.
func (idx *Index) UsedByAt(i int) []int {
	return idx.usedBy[i]
}

// DependsOn returns the ids id directly depends on, ordered by (time, id).
func (idx *Index) DependsOn(id string) []string {
	i, ok := idx.pos[id]
	if !ok {
		return []string{}
	}
	return idx.idsAt(append([]int{}, idx.dependsOn[i]...))
}

// UsedBy returns the ids that directly depend on id, ordered by (time, id).
func (idx *Index) UsedBy(id string) []string {
	i, ok := idx.pos[id]
	if !ok {
		return []string{}
	}
	return idx.idsAt(append([]int{}, idx.usedBy[i]...))
}

// ByNameAt returns the positions of packets called name, ascending. Names
// are matched after NFC normalisation. Shared; do not modify.
func (idx *Index) ByNameAt(name string) []int {
	return idx.byName[norm.NFC.String(name)]
}

// ByName returns the ids of packets called name ordered by time.
func (idx *Index) ByName(name string) []string {
	return idx.idsAt(append([]int{}, idx.ByNameAt(name)...))
}

// Names returns every packet name in NFC form, sorted.
func (idx *Index) Names() []string {
	names := make([]string, 0, len(idx.byName))
	for n := range idx.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Problems returns the integrity problems found while building, ordered by
// packet id.
func (idx *Index) Problems() []*failure.Error {
	return idx.problems
}

// ProblemsFor returns the problems attached to id.
func (idx *Index) ProblemsFor(id string) []*failure.Error {
	var out []*failure.Error
	for _, p := range idx.problems {
		if p.PacketID == id {
			out = append(out, p)
		}
	}
	return out
}

// SortIDs orders ids by (time, id). Unknown ids sort last, lexically.
func (idx *Index) SortIDs(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		i, aok := idx.pos[a]
		j, bok := idx.pos[b]
		switch {
		case aok && bok:
			return i - j
		case aok:
			return -1
		case bok:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
}

// IDsDigest digests the sorted id list with alg (the repository algorithm
// when empty). Equal to metadata.Repository.IDsDigest for a fresh index over
// a repository without unreadable records.
func (idx *Index) IDsDigest(alg hash.Algorithm) hash.Hash {
	if alg == "" {
		alg = idx.alg
	}
	return metadata.DigestIDs(idx.IDs(), alg)
}

// RequiredFiles returns the hashes of every file the packet id needs from its
// upstream packets, resolved through the upstream manifests, in dependency
// order without duplicates. Paths missing from the upstream manifest are
// reported as an INCOMPLETE_PACKET error.
func (idx *Index) RequiredFiles(id string) ([]string, error) {
	p, err := idx.Get(id)
	if err != nil {
		return nil, err
	}
	var hashes []string
	seen := map[string]bool{}
	for _, dep := range p.Depends {
		upstream, err := idx.Get(dep.Packet)
		if err != nil {
			return nil, failure.Integrity(failure.CodeDanglingDependency,
				fmt.Sprintf("dependency %s is not in the repository", dep.Packet)).WithPacket(id)
		}
		for _, df := range dep.Files {
			f, ok := upstream.FileByPath(df.There)
			if !ok {
				return nil, failure.Integrity(failure.CodeIncompletePacket,
					fmt.Sprintf("%s has no file %q", dep.Packet, df.There)).WithPacket(id)
			}
			if !seen[f.Hash] {
				seen[f.Hash] = true
				hashes = append(hashes, f.Hash)
			}
		}
	}
	return hashes, nil
}
