package sketch

import (
	"math/rand"

	"github.com/grailbio/denovar/kmer"
)

// CascadedOpts configures insertion into a downstream sample's sketch that
// reuses a smaller footprint because it only needs to represent k-mers
// already known to be present in sample 0 (spec.md §4.A, "Cascaded
// sizing"). Any k-mer missing from sample 0 is missing from every sample by
// construction of the pipeline, so restricting insertion this way never
// drops a k-mer a later stage needs.
type CascadedOpts struct {
	// Source is sample 0's already-built sketch.
	Source *Sketch
	// Fraction, in (0,1], subsamples the k-mers passed through even after
	// the Source.Contains() gate, for further memory reduction. 0 or 1
	// disables subsampling.
	Fraction float64
	// Rand supplies the subsampling randomness; if nil, math/rand's
	// top-level source is used. Tests should supply a seeded *rand.Rand
	// for determinism (spec.md §8, invariant 3: partitioning, and by
	// extension any sketch built from it, must be deterministic given
	// identical inputs and parameters).
	Rand *rand.Rand
}

// AddCascaded inserts k into s only if it passes the cascaded-sizing gate:
// present in opts.Source, and (if Fraction is set) surviving the subsample
// roll. It is a no-op, not an Add, if the gate rejects k. Returns whether k
// was inserted.
func (s *Sketch) AddCascaded(k kmer.K, opts CascadedOpts) bool {
	if opts.Source != nil && !opts.Source.Contains(k) {
		return false
	}
	if opts.Fraction > 0 && opts.Fraction < 1 {
		r := opts.Rand
		if r == nil {
			r = rand.New(rand.NewSource(rand.Int63()))
		}
		if r.Float64() >= opts.Fraction {
			return false
		}
	}
	s.Add(k)
	return true
}
