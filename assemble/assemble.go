// Package assemble implements spec.md §4.F: turning one partition's reads
// into a single contig sequence, preferring a de Bruijn graph walk and
// falling back to a greedy read-overlap chain when the graph is ambiguous.
package assemble

import (
	"sort"
	"strings"

	"github.com/grailbio/denovar/partition"
	"github.com/grailbio/denovar/reads"
)

// Opts configures assembly.
type Opts struct {
	// K is the de Bruijn k-mer length used to build the graph (distinct
	// from the novelty k used by earlier stages; spec.md §4.F allows these
	// to differ).
	K int
}

// Contig is the assembled sequence for one partition, together with the IDs
// of the reads that contributed to it.
type Contig struct {
	Sequence        string
	SupportingReads []string
	// Method records which strategy produced the contig, for diagnostics.
	Method string
	// NovelKmers carries every supporting read's novel k-mer annotations,
	// translated from read-relative to contig-relative offsets (spec.md §3:
	// "novel k-mer annotations propagated to offsets in the contig").
	NovelKmers []reads.NovelKmer
}

// Assembler turns a partition into a contig.
type Assembler interface {
	Assemble(p partition.Partition) (Contig, error)
}

// New returns the default Assembler: a de Bruijn graph walk, falling back
// to greedy overlap chaining when the graph doesn't reduce to one
// unambiguous path (spec.md §4.F).
func New(opts Opts) Assembler {
	return &assembler{opts: opts}
}

type assembler struct {
	opts Opts
}

func (a *assembler) Assemble(p partition.Partition) (Contig, error) {
	if c, ok := deBruijnAssemble(p, a.opts.K); ok {
		c.Method = "debruijn"
		return c, nil
	}
	c := greedyAssemble(p, a.opts.K)
	c.Method = "greedy"
	return c, nil
}

// node is a (k-1)-mer in the de Bruijn graph, represented as its sequence
// rather than a packed integer: partition-scale inputs make this cheap and
// it sidesteps k>32 length limits that the canonical kmer package imposes.
type node = string

type edge struct {
	to    node
	base  byte // the base appended to go from `from` to `to`
	count int
}

// deBruijnAssemble builds the graph of (k-1)-mer nodes connected by k-mer
// edges across every read in p and, when every node has in/out-degree <= 1
// and exactly one node has in-degree 0, walks the single path from that node
// and returns its sequence if the walk visits every node.
// Branchy or cyclic graphs are rejected (ok=false) so the caller can fall
// back to greedy assembly (spec.md §4.F: "a de Bruijn graph that cannot be
// reduced to a single path is ambiguous; the assembler must not guess").
func deBruijnAssemble(p partition.Partition, k int) (Contig, bool) {
	if k < 2 {
		return Contig{}, false
	}
	out := make(map[node][]edge)
	nodesSeen := make(map[node]bool)
	indegree := make(map[node]int)
	outdegree := make(map[node]int)

	addEdge := func(from, to node, base byte) {
		nodesSeen[from] = true
		nodesSeen[to] = true
		for i, e := range out[from] {
			if e.to == to && e.base == base {
				out[from][i].count++
				return
			}
		}
		out[from] = append(out[from], edge{to: to, base: base, count: 1})
		outdegree[from]++
		indegree[to]++
	}

	for _, ar := range p.Reads {
		seq := ar.Sequence
		if len(seq) < k {
			continue
		}
		for i := 0; i+k <= len(seq); i++ {
			from := seq[i : i+k-1]
			to := seq[i+1 : i+k]
			addEdge(from, to, seq[i+k-1])
		}
	}
	if len(nodesSeen) == 0 {
		return Contig{}, false
	}

	// A graph reduces to one path only if exactly one node has outdegree
	// 1 and indegree 0 (the start) and every other node has indegree <= 1
	// and outdegree <= 1.
	var start node
	nStarts := 0
	for n := range nodesSeen {
		if indegree[n] > 1 || outdegree[n] > 1 {
			return Contig{}, false
		}
		if indegree[n] == 0 {
			start = n
			nStarts++
		}
	}
	if nStarts != 1 {
		return Contig{}, false
	}

	var b strings.Builder
	b.WriteString(start)
	cur := start
	visited := map[node]bool{start: true}
	for {
		edges := out[cur]
		if len(edges) == 0 {
			break
		}
		next := edges[0]
		if visited[next.to] {
			return Contig{}, false // cycle
		}
		b.WriteByte(next.base)
		visited[next.to] = true
		cur = next.to
	}
	if len(visited) != len(nodesSeen) {
		return Contig{}, false // disconnected component left unvisited
	}

	c := Contig{Sequence: b.String(), SupportingReads: readIDs(p)}
	c.NovelKmers = propagateNovelKmers(c.Sequence, p.Reads)
	return c, true
}

func readIDs(p partition.Partition) []string {
	ids := make([]string, len(p.Reads))
	for i, r := range p.Reads {
		ids[i] = r.ID
	}
	return ids
}

// greedyAssemble implements spec.md §4.F's exact fallback algorithm: seed
// with the read carrying the most novel k-mer annotations, then repeatedly
// extend the growing contig at either end with whichever unused read has
// the largest exact overlap of at least K bases against that end, breaking
// ties first by that read's novel-k-mer count (descending) and then by
// read ID (ascending). Extension stops once no remaining read overlaps
// either end by >= K.
func greedyAssemble(p partition.Partition, k int) Contig {
	remaining := append([]reads.AugmentedRead{}, p.Reads...)
	if len(remaining) == 0 {
		return Contig{}
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		if len(remaining[i].Novel) != len(remaining[j].Novel) {
			return len(remaining[i].Novel) > len(remaining[j].Novel)
		}
		return remaining[i].ID < remaining[j].ID
	})

	seed := remaining[0]
	used := map[string]bool{seed.ID: true}
	contig := seed.Sequence
	support := []string{seed.ID}

	for {
		bestIdx := -1
		bestOverlap := k - 1
		bestRight := true
		consider := func(i, overlap int, atRight bool) {
			switch {
			case overlap > bestOverlap:
				bestOverlap, bestIdx, bestRight = overlap, i, atRight
			case overlap == bestOverlap && bestIdx >= 0 && extendTieBreakLess(remaining[i], remaining[bestIdx]):
				bestIdx, bestRight = i, atRight
			}
		}
		for i, r := range remaining {
			if used[r.ID] {
				continue
			}
			consider(i, suffixPrefixOverlap(contig, r.Sequence), true)
			consider(i, suffixPrefixOverlap(r.Sequence, contig), false)
		}
		if bestIdx < 0 {
			break
		}
		r := remaining[bestIdx]
		if bestRight {
			contig += r.Sequence[bestOverlap:]
		} else {
			contig = r.Sequence[:len(r.Sequence)-bestOverlap] + contig
		}
		used[r.ID] = true
		support = append(support, r.ID)
	}
	c := Contig{Sequence: contig, SupportingReads: support}
	c.NovelKmers = propagateNovelKmers(c.Sequence, p.Reads)
	return c
}

// propagateNovelKmers locates each supporting read's position within the
// final contig and translates its novel k-mer annotations from
// read-relative to contig-relative offsets. A read that no longer occurs
// literally in the contig (possible when the de Bruijn walk collapses
// repeated k-mers) contributes no annotations.
func propagateNovelKmers(contig string, supporting []reads.AugmentedRead) []reads.NovelKmer {
	var out []reads.NovelKmer
	for _, ar := range supporting {
		if !ar.HasNovel() {
			continue
		}
		base := strings.Index(contig, ar.Sequence)
		if base < 0 {
			continue
		}
		for _, nk := range ar.Novel {
			out = append(out, reads.NovelKmer{
				Offset:     base + nk.Offset,
				Canonical:  nk.Canonical,
				Abundances: nk.Abundances,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// extendTieBreakLess reports whether candidate a should be preferred over
// the current best candidate b when both overlap the growing contig by the
// same number of bases: more novel k-mer annotations wins, then the
// lexicographically smaller read ID (spec.md §4.F).
func extendTieBreakLess(a, b reads.AugmentedRead) bool {
	if len(a.Novel) != len(b.Novel) {
		return len(a.Novel) > len(b.Novel)
	}
	return a.ID < b.ID
}

// suffixPrefixOverlap returns the length of the longest suffix of a that is
// also a prefix of b.
func suffixPrefixOverlap(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for l := max; l > 0; l-- {
		if a[len(a)-l:] == b[:l] {
			return l
		}
	}
	return 0
}
