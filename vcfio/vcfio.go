// Package vcfio writes de novo calls as VCF 4.2 records (spec.md §6),
// encoding the per-call reference/variant windows, supporting-kmer
// evidence, and likelihood score as INFO fields.
package vcfio

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/denovar/call"
)

// Filter is a typed VCF FILTER value.
type Filter string

const (
	FilterPass              Filter = "PASS"
	FilterLikelihoodFail    Filter = "LikelihoodFail"
	FilterControlAbundance  Filter = "ControlAbundance"
	FilterAbundMismatch     Filter = "AbundMismatch"
	FilterNoReferenceMatch  Filter = "NoReferenceMatch"
	FilterPartitionTooSmall Filter = "PartitionTooSmall"
	FilterHomopolymer       Filter = "Homopolymer"
	FilterContigEndTooClose Filter = "ContigEndTooClose"
)

// Record is one VCF data line's worth of de novo call information.
type Record struct {
	Chrom         string
	Pos           int // 1-based
	Call          call.Call
	SupportKmers  int
	LikelihoodLog float64
	Filters       []Filter
}

// Writer emits VCF 4.2 records in the teacher's streaming-writer style:
// construct once, call WriteHeader, then Write per record.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteHeader emits the VCF meta-information and column header lines.
func (vw *Writer) WriteHeader(sampleName string) error {
	if vw.err != nil {
		return vw.err
	}
	lines := []string{
		"##fileformat=VCFv4.2",
		`##INFO=<ID=RW,Number=1,Type=String,Description="Reference window around the call">`,
		`##INFO=<ID=VW,Number=1,Type=String,Description="Variant (contig) window around the call">`,
		`##INFO=<ID=ALTWINDOW,Number=1,Type=Integer,Description="Length of the variant window">`,
		`##INFO=<ID=REFRWINDOW,Number=1,Type=Integer,Description="Length of the reference window">`,
		`##INFO=<ID=LIKESCORE,Number=1,Type=Float,Description="De novo log-likelihood score">`,
		`##INFO=<ID=CALLCLASS,Number=1,Type=String,Description="SNV, MNV, INS, DEL, or COMPLEX">`,
		`##FILTER=<ID=PASS,Description="All filters passed">`,
		`##FILTER=<ID=LikelihoodFail,Description="De novo log-likelihood below threshold">`,
		`##FILTER=<ID=ControlAbundance,Description="Variant k-mer too abundant in a control sample">`,
		`##FILTER=<ID=AbundMismatch,Description="Case/control abundance inconsistent with the call">`,
		`##FILTER=<ID=NoReferenceMatch,Description="Contig could not be localized to the reference">`,
		`##FILTER=<ID=PartitionTooSmall,Description="Partition had too few supporting reads">`,
		`##FILTER=<ID=Homopolymer,Description="Call falls within a homopolymer run">`,
		`##FILTER=<ID=ContigEndTooClose,Description="Call falls too close to a contig end">`,
	}
	for _, l := range lines {
		vw.writeLine(l)
	}
	vw.writeLine(fmt.Sprintf("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t%s", sampleName))
	return vw.err
}

// Write appends one record.
func (vw *Writer) Write(r Record) error {
	if vw.err != nil {
		return vw.err
	}
	filter := filterString(r.Filters)
	info := fmt.Sprintf("RW=%s;VW=%s;ALTWINDOW=%d;REFRWINDOW=%d;LIKESCORE=%.4f;CALLCLASS=%s",
		r.Call.RW, r.Call.VW, len(r.Call.VW), len(r.Call.RW), r.LikelihoodLog, r.Call.Class)
	ref := r.Call.RefAllele
	alt := r.Call.AltAllele
	if ref == "" {
		ref = "."
	}
	if alt == "" {
		alt = "."
	}
	vw.writeLine(fmt.Sprintf("%s\t%d\t.\t%s\t%s\t.\t%s\t%s\tSK\t%d",
		r.Chrom, r.Pos, ref, alt, filter, info, r.SupportKmers))
	return vw.err
}

// Flush flushes buffered output.
func (vw *Writer) Flush() error {
	if vw.err != nil {
		return vw.err
	}
	return vw.w.Flush()
}

func (vw *Writer) writeLine(s string) {
	if vw.err != nil {
		return
	}
	if _, err := vw.w.WriteString(s); err != nil {
		vw.err = err
		return
	}
	if _, err := vw.w.WriteString("\n"); err != nil {
		vw.err = err
	}
}

func filterString(filters []Filter) string {
	if len(filters) == 0 {
		return string(FilterPass)
	}
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = string(f)
	}
	sort.Strings(names)
	out := names[0]
	for _, n := range names[1:] {
		out += ";" + n
	}
	return out
}
