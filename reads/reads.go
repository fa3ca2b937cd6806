// Package reads defines the read and augmented-read record types shared by
// every pipeline stage (spec.md §3).
package reads

import "github.com/grailbio/denovar/kmer"

// MateRef identifies a paired mate, e.g. "R1" or "R2"; empty for unpaired
// reads.
type MateRef string

// Read is a single sequencing read.
type Read struct {
	ID        string
	Sequence  string
	Qualities string // optional; empty if not tracked
	Mate      MateRef
}

// Len returns the length of the read's sequence.
func (r Read) Len() int { return len(r.Sequence) }

// Abundances is the per-sample abundance tuple recorded for a novel k-mer:
// index 0 is the case sample, indices 1..N are the control samples, in the
// order the Novel stage was configured with (spec.md §3).
type Abundances []uint16

// Case returns the case-sample abundance.
func (a Abundances) Case() uint16 {
	if len(a) == 0 {
		return 0
	}
	return a[0]
}

// Controls returns the control-sample abundances, in configured order.
func (a Abundances) Controls() []uint16 {
	if len(a) <= 1 {
		return nil
	}
	return a[1:]
}

// NovelKmer annotates one occurrence of a novel k-mer within a read, at a
// given 0-based offset (spec.md §3: "ordered list of (offset, canonical
// kmer, abundances)").
type NovelKmer struct {
	Offset     int
	Canonical  kmer.K
	Abundances Abundances
}

// AugmentedRead is a Read together with the novel k-mers found within it.
// Annotations are in ascending offset order; the same canonical k-mer may
// appear more than once, at different offsets (spec.md §4.C: "a k-mer may
// appear at multiple positions within a read; each occurrence is annotated
// separately").
type AugmentedRead struct {
	Read
	Novel []NovelKmer
}

// HasNovel reports whether r carries at least one novel k-mer annotation.
func (r AugmentedRead) HasNovel() bool { return len(r.Novel) > 0 }

// Clone returns a deep copy of r, safe to mutate independently.
func (r AugmentedRead) Clone() AugmentedRead {
	out := r
	out.Novel = make([]NovelKmer, len(r.Novel))
	for i, nk := range r.Novel {
		out.Novel[i] = nk
		out.Novel[i].Abundances = append(Abundances(nil), nk.Abundances...)
	}
	return out
}
