// Package partition implements spec.md §4.E: grouping novel-augmented reads
// into connected components that share novel k-mers, so each component can
// be assembled independently.
package partition

import (
	"sort"

	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/reads"
)

// Opts configures partitioning.
type Opts struct {
	// MinSharedKmers is the minimum number of novel k-mers two reads must
	// share for an edge to be kept between them (spec.md §4.E: "edges are
	// pruned when the shared k-mer set is too small to be informative").
	MinSharedKmers int
}

// Partition is one connected component of reads that share novel k-mers,
// sorted by ascending read ID.
type Partition struct {
	// Label identifies the partition in output order, e.g. for the
	// "#part=<label>" annotation of the augmented-FASTX format.
	Label string
	Reads []reads.AugmentedRead
}

// union-find with path compression and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

type pairKey struct{ a, b int }

// Run partitions ars into connected components. Reads with an identical
// Sequence are deduplicated, keeping the first occurrence (spec.md §4.E:
// "duplicate sequences collapse to a single representative before
// partitioning"). Components are returned in descending order of member
// count, ties broken by the lexicographically smallest read ID in the
// component (spec.md §4.E "Guarantees").
func Run(ars []reads.AugmentedRead, opts Opts) []Partition {
	dedup := make([]reads.AugmentedRead, 0, len(ars))
	seen := make(map[string]bool, len(ars))
	for _, ar := range ars {
		if seen[ar.Sequence] {
			continue
		}
		seen[ar.Sequence] = true
		dedup = append(dedup, ar)
	}

	index := make(map[kmer.K][]int)
	for i, ar := range dedup {
		for _, nk := range ar.Novel {
			index[nk.Canonical] = append(index[nk.Canonical], i)
		}
	}

	shared := make(map[pairKey]int)
	for _, readIdxs := range index {
		for i := 0; i < len(readIdxs); i++ {
			for j := i + 1; j < len(readIdxs); j++ {
				a, b := readIdxs[i], readIdxs[j]
				if a > b {
					a, b = b, a
				}
				shared[pairKey{a, b}]++
			}
		}
	}

	uf := newUnionFind(len(dedup))
	minShared := opts.MinSharedKmers
	if minShared < 1 {
		minShared = 1
	}
	for pk, n := range shared {
		if n >= minShared {
			uf.union(pk.a, pk.b)
		}
	}

	groups := make(map[int][]int)
	for i := range dedup {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	partitions := make([]Partition, 0, len(groups))
	for _, idxs := range groups {
		members := make([]reads.AugmentedRead, len(idxs))
		for i, idx := range idxs {
			members[i] = dedup[idx]
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
		partitions = append(partitions, Partition{Reads: members})
	}

	sort.Slice(partitions, func(i, j int) bool {
		if len(partitions[i].Reads) != len(partitions[j].Reads) {
			return len(partitions[i].Reads) > len(partitions[j].Reads)
		}
		return partitions[i].Reads[0].ID < partitions[j].Reads[0].ID
	})
	for i := range partitions {
		partitions[i].Label = partitions[i].Reads[0].ID
	}
	return partitions
}
