package call

import (
	"github.com/grailbio/hts/sam"

	"github.com/grailbio/denovar/reads"
)

// Class distinguishes the kind of variant a Call represents.
type Class string

const (
	ClassSNV     Class = "SNV"
	ClassMNV     Class = "MNV"
	ClassInsert  Class = "INS"
	ClassDelete  Class = "DEL"
	ClassComplex Class = "COMPLEX"
)

// Opts configures call extraction from an alignment.
type Opts struct {
	// K is the novelty k-mer length, used to derive RW/VW window sizes and
	// the supporting_kmers count (spec.md §4.H).
	K int
	// TerminalSNVDistance suppresses SNVs within this many bases of either
	// end of the contig, where alignment artifacts are most likely
	// (spec.md §4.H; resolved default is 12).
	TerminalSNVDistance int
	// MergeGap is the maximum reference-coordinate gap between two raw
	// variant events for them to be merged into one complex call (spec.md
	// §4.H: "complex call merging").
	MergeGap int
}

// DefaultOpts mirrors the resolved Open Question defaults.
var DefaultOpts = Opts{K: 25, TerminalSNVDistance: 12, MergeGap: 3}

// Call is one extracted variant.
type Call struct {
	Class Class
	// RefStart, RefEnd are 0-based half-open reference-window-relative
	// coordinates of the reference bases replaced (RefEnd==RefStart for a
	// pure insertion).
	RefStart, RefEnd int
	// QueryStart, QueryEnd are the corresponding contig-relative
	// coordinates of the replacement bases (QueryEnd==QueryStart for a
	// pure deletion).
	QueryStart, QueryEnd int
	RefAllele            string
	AltAllele            string
	// RW, VW are the reference and variant windows of length 2K-1 centered
	// on the call, used for k-mer re-derivation (spec.md §4.H, §6 INFO
	// fields RW/VW).
	RW, VW string
	// SupportingKmers counts how many of the contig's propagated novel
	// k-mers fall within this call's variant window: a subset of the
	// contig's actual novel k-mer set, not every k-mer substring of the
	// window (spec.md §4.H: "supporting_kmers").
	SupportingKmers int
}

type rawEvent struct {
	class                Class
	refStart, refEnd     int
	queryStart, queryEnd int
}

// ExtractCalls walks aln's CIGAR against query and ref (the same strings
// passed to Align) and returns the merged, terminal-suppressed variant
// calls (spec.md §4.H steps: SNV/INDEL/MNV extraction, terminal-SNV
// suppression, complex-call merging, center-aligned gap placement).
// contigNovel is the assembled contig's novel k-mer annotations, in
// contig-relative offsets; it gates leading/trailing insertion calls and
// feeds each Call's SupportingKmers count.
func ExtractCalls(aln Alignment, query, ref string, contigNovel []reads.NovelKmer, opts Opts) []Call {
	events := rawEvents(aln, query, ref)
	events = suppressTerminalSNVs(events, len(query), opts.TerminalSNVDistance)
	events = suppressUnsupportedTerminalInserts(events, len(query), contigNovel)
	events = mergeComplex(events, opts.MergeGap)
	calls := make([]Call, 0, len(events))
	for _, e := range events {
		calls = append(calls, buildCall(e, query, ref, contigNovel, opts.K))
	}
	return calls
}

// rawEvents walks the CIGAR emitting one event per mismatch run and per
// indel run; equal-length adjacent M runs are not split further here
// (mismatch detection is done base by base within each M op). ri starts at
// aln.RefStart, the length of reference skipped for free before the CIGAR
// begins under semi-global alignment (spec.md §4.H).
func rawEvents(aln Alignment, query, ref string) []rawEvent {
	var events []rawEvent
	qi, ri := 0, aln.RefStart
	for _, op := range aln.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch:
			// center-aligned gap policy downstream assumes mismatch runs
			// are reported eagerly; scan for runs of consecutive mismatches
			// within this M block and emit SNV/MNV events for them.
			start := -1
			for k := 0; k < n; k++ {
				if query[qi+k] != ref[ri+k] {
					if start < 0 {
						start = k
					}
					continue
				}
				if start >= 0 {
					events = append(events, rawEvent{
						class:      classForLen(k - start),
						refStart:   ri + start, refEnd: ri + k,
						queryStart: qi + start, queryEnd: qi + k,
					})
					start = -1
				}
			}
			if start >= 0 {
				events = append(events, rawEvent{
					class:      classForLen(n - start),
					refStart:   ri + start, refEnd: ri + n,
					queryStart: qi + start, queryEnd: qi + n,
				})
			}
			qi += n
			ri += n
		case sam.CigarInsertion:
			events = append(events, rawEvent{class: ClassInsert, refStart: ri, refEnd: ri, queryStart: qi, queryEnd: qi + n})
			qi += n
		case sam.CigarDeletion:
			events = append(events, rawEvent{class: ClassDelete, refStart: ri, refEnd: ri + n, queryStart: qi, queryEnd: qi})
			ri += n
		}
	}
	return events
}

func classForLen(runLen int) Class {
	if runLen == 1 {
		return ClassSNV
	}
	return ClassMNV
}

// suppressTerminalSNVs drops single-base SNV events too close to either end
// of the query (spec.md §4.H: alignment ends are the least reliable part of
// a local assembly).
func suppressTerminalSNVs(events []rawEvent, queryLen, dist int) []rawEvent {
	if dist <= 0 {
		return events
	}
	kept := events[:0:0]
	for _, e := range events {
		if e.class == ClassSNV && (e.queryStart < dist || queryLen-e.queryEnd < dist) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// suppressUnsupportedTerminalInserts drops insertion runs at either end of
// the query that aren't backed by any of the contig's propagated novel
// k-mers. A semi-global alignment may place extra query bases at either
// end simply because they fall outside the localized reference window, not
// because they represent a real novel insertion (spec.md §4.H:
// "leading/trailing I runs... produce calls only when supported by novel
// k-mers inside the inserted segment").
func suppressUnsupportedTerminalInserts(events []rawEvent, queryLen int, contigNovel []reads.NovelKmer) []rawEvent {
	kept := events[:0:0]
	for _, e := range events {
		if e.class == ClassInsert && (e.queryStart == 0 || e.queryEnd == queryLen) &&
			countNovelInRange(contigNovel, e.queryStart, e.queryEnd) == 0 {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func countNovelInRange(novel []reads.NovelKmer, start, end int) int {
	count := 0
	for _, nk := range novel {
		if nk.Offset >= start && nk.Offset < end {
			count++
		}
	}
	return count
}

// mergeComplex merges any two consecutive events whose reference gap is
// <= maxGap into a single COMPLEX call spanning both (spec.md §4.H:
// "nearby raw events are merged rather than reported as independent
// calls").
func mergeComplex(events []rawEvent, maxGap int) []rawEvent {
	if len(events) == 0 {
		return events
	}
	merged := []rawEvent{events[0]}
	for _, e := range events[1:] {
		last := &merged[len(merged)-1]
		if e.refStart-last.refEnd <= maxGap {
			last.class = ClassComplex
			last.refEnd = e.refEnd
			last.queryEnd = e.queryEnd
			continue
		}
		merged = append(merged, e)
	}
	return merged
}

func buildCall(e rawEvent, query, ref string, contigNovel []reads.NovelKmer, k int) Call {
	refStart, refEnd, queryStart, queryEnd := anchorIndel(e, query, ref)
	c := Call{
		Class:      e.class,
		RefStart:   refStart,
		RefEnd:     refEnd,
		QueryStart: queryStart,
		QueryEnd:   queryEnd,
		RefAllele:  ref[refStart:refEnd],
		AltAllele:  query[queryStart:queryEnd],
	}
	half := k - 1
	rs, re := clampWindow(refStart, refEnd, half, len(ref))
	qs, qe := clampWindow(queryStart, queryEnd, half, len(query))
	c.RW, c.VW = ref[rs:re], query[qs:qe]
	c.SupportingKmers = countNovelInRange(contigNovel, qs, qe)
	return c
}

// anchorIndel extends a pure insertion or deletion event by one shared
// anchor base so RefAllele and AltAllele are never both empty, matching
// VCF 4.2's convention that every REF/ALT allele carries at least one base
// (spec.md §8.4: a 50bp insertion's alt_allele is 51 bases long, the
// anchor plus the insert). SNV/MNV/COMPLEX events already have a nonempty
// ref and alt span and pass through unchanged.
func anchorIndel(e rawEvent, query, ref string) (refStart, refEnd, queryStart, queryEnd int) {
	refStart, refEnd, queryStart, queryEnd = e.refStart, e.refEnd, e.queryStart, e.queryEnd
	if refStart != refEnd && queryStart != queryEnd {
		return
	}
	switch {
	case refStart > 0 && queryStart > 0:
		refStart--
		queryStart--
	case refEnd < len(ref) && queryEnd < len(query):
		refEnd++
		queryEnd++
	}
	return
}

func clampWindow(start, end, pad, limit int) (int, int) {
	s := start - pad
	if s < 0 {
		s = 0
	}
	e := end + pad
	if e > limit {
		e = limit
	}
	return s, e
}
