// Package refine implements spec.md §4.D: re-validates each novel k-mer
// annotation left by the Novel stage against a reference-genome mask, a
// case sketch freshly rebuilt over the much smaller novel-read corpus, and
// an optional contamination sketch.
package refine

import (
	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/reads"
	"github.com/grailbio/denovar/sketch"
)

// Opts configures refinement.
type Opts struct {
	// CaseMin is the minimum count a k-mer must reach in the freshly
	// rebuilt case sketch to survive (spec.md §4.D step ii).
	CaseMin uint16
}

// Refiner re-validates novel k-mer annotations.
type Refiner struct {
	opts Opts
	// reference masks out k-mers that hit the reference genome.
	reference *sketch.Sketch
	// freshCase is rebuilt from only the reads the Novel stage emitted, a
	// much smaller corpus than the original case sample, so it is cheap to
	// make exact-enough to drop the false positives a whole-genome sketch
	// would have admitted (spec.md §4.D).
	freshCase *sketch.Sketch
	// contamination is optional; k-mers present there are masked just like
	// reference hits.
	contamination *sketch.Sketch
}

// New returns a Refiner. reference and freshCase must be non-nil;
// contamination may be nil to disable that check.
func New(reference, freshCase, contamination *sketch.Sketch, opts Opts) *Refiner {
	return &Refiner{opts: opts, reference: reference, freshCase: freshCase, contamination: contamination}
}

// BuildFreshCase rebuilds a case sketch from the corpus of reads the Novel
// stage emitted, sized for that much smaller corpus. next returns false
// once the corpus is exhausted.
func BuildFreshCase(k int, targetBytes uint64, hashes int, next func() (reads.AugmentedRead, bool)) *sketch.Sketch {
	s := sketch.New(sketch.Opts{Kind: sketch.Counting, K: k, TargetBytes: targetBytes, Hashes: hashes})
	scanner := kmer.NewScanner(k)
	for {
		ar, ok := next()
		if !ok {
			break
		}
		if ar.Len() < k {
			continue
		}
		scanner.Reset(ar.Sequence)
		for scanner.Scan() {
			s.Add(scanner.Canonical())
		}
	}
	return s
}

// Process re-validates ar's novel-k-mer annotations in place, dropping any
// that are masked by the reference or contamination sketch, or whose fresh
// case count falls below CaseMin. If every annotation is dropped, the read
// itself is dropped (spec.md §4.D: "Reads whose annotations are fully
// drained are dropped").
func (f *Refiner) Process(ar reads.AugmentedRead) (reads.AugmentedRead, bool) {
	kept := ar.Novel[:0:0]
	for _, nk := range ar.Novel {
		if f.reference.Contains(nk.Canonical) {
			continue // masked: hits the reference genome
		}
		if f.contamination != nil && f.contamination.Contains(nk.Canonical) {
			continue // masked: contamination
		}
		freshCount := f.freshCase.Count(nk.Canonical)
		if freshCount < f.opts.CaseMin {
			continue
		}
		nk.Abundances = append(reads.Abundances{freshCount}, nk.Abundances.Controls()...)
		kept = append(kept, nk)
	}
	if len(kept) == 0 {
		return reads.AugmentedRead{}, false
	}
	ar.Novel = kept
	return ar, true
}
