// Package localize implements spec.md §4.G: finding the reference window(s)
// a partition's reads most likely originate from, by seeding against the
// reference's k-mer index and clustering hit positions.
package localize

import (
	"sort"

	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/partition"
	"github.com/grailbio/denovar/refindex"
)

// Opts configures localization.
type Opts struct {
	// Spacing is the distance, in bases, between successive seed k-mers
	// taken from each read (spec.md §4.G).
	Spacing int
	// ClusterGap is the maximum distance, in reference bases, between two
	// seed hits for them to be considered part of the same cluster.
	ClusterGap uint64
	// Pad extends each emitted window by this many bases on each side.
	Pad uint64
}

// Window is a candidate reference region a partition may correspond to.
type Window struct {
	SeqName string
	Start   uint64 // inclusive, already padded
	End     uint64 // exclusive, already padded
	// Hits is the number of seed k-mer occurrences supporting this window,
	// used to rank multiple candidate windows for the same partition.
	Hits int
}

// Locate seeds every read in p against idx every Spacing bases, clusters the
// resulting reference hits within ClusterGap, and returns the candidate
// windows in descending order of supporting hit count (spec.md §4.G:
// "windows are ranked by the number of supporting seed hits").
func Locate(p partition.Partition, idx *refindex.SeedIndex, opts Opts) []Window {
	spacing := opts.Spacing
	if spacing < 1 {
		spacing = 1
	}
	type hit struct {
		seqName string
		pos     uint64
	}
	var hits []hit
	scanner := kmer.NewScanner(idx.K())
	for _, ar := range p.Reads {
		if ar.Len() < idx.K() {
			continue
		}
		scanner.Reset(ar.Sequence)
		for scanner.Scan() {
			if scanner.Pos()%spacing != 0 {
				continue
			}
			for _, h := range idx.Lookup(scanner.Canonical()) {
				hits = append(hits, hit{seqName: h.SeqName, pos: h.Pos})
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}

	bySeq := make(map[string][]uint64)
	for _, h := range hits {
		bySeq[h.seqName] = append(bySeq[h.seqName], h.pos)
	}

	var windows []Window
	for seqName, positions := range bySeq {
		sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
		clusterStart, clusterEnd := positions[0], positions[0]+1
		count := 1
		flush := func() {
			start := uint64(0)
			if clusterStart > opts.Pad {
				start = clusterStart - opts.Pad
			}
			windows = append(windows, Window{
				SeqName: seqName,
				Start:   start,
				End:     clusterEnd + opts.Pad,
				Hits:    count,
			})
		}
		for _, pos := range positions[1:] {
			if pos <= clusterEnd+opts.ClusterGap {
				if pos+1 > clusterEnd {
					clusterEnd = pos + 1
				}
				count++
				continue
			}
			flush()
			clusterStart, clusterEnd = pos, pos+1
			count = 1
		}
		flush()
	}

	sort.Slice(windows, func(i, j int) bool {
		if windows[i].Hits != windows[j].Hits {
			return windows[i].Hits > windows[j].Hits
		}
		if windows[i].SeqName != windows[j].SeqName {
			return windows[i].SeqName < windows[j].SeqName
		}
		return windows[i].Start < windows[j].Start
	})
	return windows
}
