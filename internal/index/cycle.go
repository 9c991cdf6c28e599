package index

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/outpack/internal/failure"
)

// findCycles reports every dependency cycle as a DEPENDENCY_CYCLE problem.
//
// Well-formed repositories are acyclic: a packet can only depend on packets
// that existed when it was committed. A cycle means records were written
// outside the commit path. Each strongly connected component with more than
// one member yields one problem, attached to its earliest packet, with the
// cycle path in the "cycle" detail. Self-dependencies are rejected when the
// record is decoded, so single-node components are never cycles.
func (idx *Index) findCycles() []*failure.Error {
	var problems []*failure.Error
	for _, scc := range tarjanSCC(idx.dependsOn) {
		if len(scc) < 2 {
			continue
		}
		slices.Sort(scc)
		path := idx.idsAt(reconstructCyclePath(scc, idx.dependsOn))
		problems = append(problems, failure.Integrity(failure.CodeDependencyCycle,
			fmt.Sprintf("dependency cycle through %d packets", len(scc))).
			WithPacket(idx.packets[scc[0]].ID).
			WithDetail("cycle", strings.Join(path, " -> ")))
	}
	return problems
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm
// over an adjacency list indexed by position.
func tarjanSCC(graph [][]int) [][]int {
	var (
		counter = 0
		stack   []int
		indices = make([]int, len(graph))
		lowlink = make([]int, len(graph))
		onStack = make([]bool, len(graph))
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for v := range graph {
		if indices[v] < 0 {
			strongConnect(v)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside the component from its first
// member until it returns to the start or runs out of unvisited members.
func reconstructCyclePath(scc []int, graph [][]int) []int {
	members := make(map[int]bool, len(scc))
	for _, v := range scc {
		members[v] = true
	}

	start := scc[0]
	current := start
	path := []int{current}
	visited := map[int]bool{}
	for {
		visited[current] = true
		next := -1
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next < 0 {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
