// Package novel implements the core streaming filter of spec.md §4.C: it
// scans a proband ("case") read stream against one case sketch and one or
// more control sketches, and emits only the reads whose k-mers are abundant
// in the case and effectively absent from every control, annotated with the
// positions of those k-mers.
package novel

import (
	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/reads"
	"github.com/grailbio/denovar/sketch"
)

// Opts configures the novelty predicate.
type Opts struct {
	// K is the k-mer length; must match every sketch's K.
	K int
	// CaseMin is the inclusive minimum case-sketch count for a k-mer to be
	// considered abundant in the proband.
	CaseMin uint16
	// CtrlMax is the inclusive maximum count, in every control sketch, for
	// a k-mer to be considered absent from the controls. Per spec.md §9's
	// resolved ambiguity, this bound is inclusive. Use math.MaxUint16 (or
	// set CtrlMaxDisabled) to disable the control
	// test entirely (spec.md §8: "ctrl_max=∞ disables the control test").
	CtrlMax uint16
	// CtrlMaxDisabled, when true, makes every k-mer pass the control test
	// regardless of CtrlMax (ctrl_max=∞).
	CtrlMaxDisabled bool
	// AbundScreen, if nonzero, causes Scan to discard a read outright if
	// any of its canonical k-mers has a case-sketch count below this
	// threshold (spec.md §4.C step 1; used for sequencing-error
	// suppression before the novelty test). 0 disables screening.
	AbundScreen uint16
}

// passesControl reports whether counts observed in every control sketch are
// within bound, honoring CtrlMaxDisabled.
func (o Opts) passesControl(ctrlCounts []uint16) bool {
	if o.CtrlMaxDisabled {
		return true
	}
	for _, c := range ctrlCounts {
		if c > o.CtrlMax {
			return false
		}
	}
	return true
}

// Filter holds the sketches a Scan call is evaluated against. Sketches are
// read-only and may be shared across multiple Filters/goroutines (spec.md
// §5).
type Filter struct {
	opts    Opts
	cases   *sketch.Sketch
	ctrls   []*sketch.Sketch
	scanner *kmer.Scanner

	// scratch avoids a per-read allocation for the position/kmer/count
	// triples gathered before the novelty decision is made.
	scratch []candidate
}

type candidate struct {
	offset    int
	canonical kmer.K
	caseCount uint16
	ctrl      []uint16
}

// New returns a Filter. caseSketch and every entry in ctrlSketches must
// share opts.K (spec.md §3: reusing a sketch built for a different K is an
// error).
func New(caseSketch *sketch.Sketch, ctrlSketches []*sketch.Sketch, opts Opts) *Filter {
	if caseSketch.K() != opts.K {
		panic("novel: case sketch K mismatch")
	}
	for _, c := range ctrlSketches {
		if c.K() != opts.K {
			panic("novel: control sketch K mismatch")
		}
	}
	return &Filter{
		opts:    opts,
		cases:   caseSketch,
		ctrls:   ctrlSketches,
		scanner: kmer.NewScanner(opts.K),
	}
}

// Scan evaluates one read against the novelty predicate. It returns the
// augmented read and true if at least one novel k-mer was found; otherwise
// it returns the zero value and false, meaning the read is dropped (spec.md
// §4.C step 3). Scan never modifies r's sequence or reorders output
// relative to input (spec.md §4.C "Guarantees").
func (f *Filter) Scan(r reads.Read) (reads.AugmentedRead, bool) {
	f.scratch = f.scratch[:0]
	f.scanner.Reset(r.Sequence)

	for f.scanner.Scan() {
		c := f.scanner.Canonical()
		caseCount := f.cases.Count(c)

		if f.opts.AbundScreen > 0 && caseCount < f.opts.AbundScreen {
			// spec.md §4.C step 1: any sub-screen k-mer discards the whole read.
			return reads.AugmentedRead{}, false
		}

		var ctrlCounts []uint16
		if len(f.ctrls) > 0 {
			ctrlCounts = make([]uint16, len(f.ctrls))
			for i, ctrl := range f.ctrls {
				ctrlCounts[i] = ctrl.Count(c)
			}
		}
		f.scratch = append(f.scratch, candidate{
			offset:    f.scanner.Pos(),
			canonical: c,
			caseCount: caseCount,
			ctrl:      ctrlCounts,
		})
	}

	var novel []reads.NovelKmer
	for _, cand := range f.scratch {
		if cand.caseCount < f.opts.CaseMin {
			continue
		}
		if !f.opts.passesControl(cand.ctrl) {
			continue
		}
		abund := make(reads.Abundances, 1+len(cand.ctrl))
		abund[0] = cand.caseCount
		copy(abund[1:], cand.ctrl)
		novel = append(novel, reads.NovelKmer{
			Offset:     cand.offset,
			Canonical:  cand.canonical,
			Abundances: abund,
		})
	}
	if len(novel) == 0 {
		// Either no k-mers at all (read shorter than K, or all-N), or none
		// satisfied the predicate: dropped silently (spec.md §4.C).
		return reads.AugmentedRead{}, false
	}
	return reads.AugmentedRead{Read: r, Novel: novel}, true
}
