// Package count implements spec.md §4.B: decomposing a read stream into
// canonical k-mers and inserting them into per-sample sketches.
package count

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/reads"
	"github.com/grailbio/denovar/sketch"
)

// Opts configures a Count run.
type Opts struct {
	// K is the k-mer length. Every sketch involved must share this K
	// (spec.md §3: "reusing a sketch with a different K is an error").
	K int
	// Cascade, if its Source or Fraction is set, restricts insertion to k-mers present in
	// Cascade.Source (spec.md §4.A). Leave zero-valued to count every
	// valid k-mer.
	Cascade sketch.CascadedOpts
}

// Stats reports what one Count pass did.
type Stats struct {
	ReadsProcessed uint64
	KmersStored    uint64
	KmersSkippedN  uint64
}

// FPR is a convenience read-out paired with Stats, since callers almost
// always want to log both together (spec.md §4.B: "Reports reads
// processed, k-mers stored, and estimated FPR").
func FPR(s *sketch.Sketch) float64 { return s.EstimatedFPR() }

// Run reads every record from next (which returns false at end of stream)
// and inserts its k-mers into dst. It does not deduplicate reads (spec.md
// §4.B); a k-mer observed N times across reads is inserted N times, which
// is what lets Count-Min abundance reflect sequencing depth.
func Run(dst *sketch.Sketch, opts Opts, next func() (reads.Read, bool)) Stats {
	if dst.K() != opts.K {
		log.Panicf("count: sketch K=%d does not match Opts.K=%d", dst.K(), opts.K)
	}
	var stats Stats
	scanner := kmer.NewScanner(opts.K)
	cascade := opts.Cascade.Source != nil || opts.Cascade.Fraction > 0

	for {
		r, ok := next()
		if !ok {
			break
		}
		stats.ReadsProcessed++
		if r.Len() < opts.K {
			continue
		}
		scanner.Reset(r.Sequence)
		for scanner.Scan() {
			c := scanner.Canonical()
			if cascade {
				if dst.AddCascaded(c, opts.Cascade) {
					stats.KmersStored++
				}
			} else {
				dst.Add(c)
				stats.KmersStored++
			}
		}
		if scanner.SawAmbiguous() {
			stats.KmersSkippedN++
		}
	}
	return stats
}
