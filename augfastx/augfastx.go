// Package augfastx implements the augmented FASTX streaming codec described
// in spec.md §6: a standard FASTQ record followed by zero or more
// "# offset\tkmer\tabundances" annotation lines, terminated by a bare "#"
// sentinel line. It is the wire format every stage from Novel onward reads
// and writes (spec.md §4.C-§4.E).
package augfastx

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/reads"
)

// ErrInvalid is returned when a record does not match the augmented FASTX
// grammar.
var ErrInvalid = errors.New("augfastx: invalid record")

// Scanner reads augmented FASTX records one at a time, in input order
// (spec.md §4.C "Guarantees": output is single-pass and in input order).
// Scanners are not thread-safe.
type Scanner struct {
	b       *bufio.Scanner
	err     error
	partTag string // most recently seen "#part=<label>" header, if any
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(nil, 1<<20)
	return &Scanner{b: s}
}

// Partition returns the label from the most recently encountered
// "#part=<label>" header, or "" if the stream is not partitioned.
func (s *Scanner) Partition() string { return s.partTag }

// Scan reads the next record into out. It returns false at EOF or on error;
// callers must check Err() after a false return.
func (s *Scanner) Scan(out *reads.AugmentedRead) bool {
	if s.err != nil {
		return false
	}
	for s.b.Scan() {
		line := s.b.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#part=") {
			s.partTag = strings.TrimPrefix(line, "#part=")
			continue
		}
		if line[0] != '@' {
			s.err = errors.Wrapf(ErrInvalid, "expected '@' id line, got %q", line)
			return false
		}
		return s.scanRecord(line, out)
	}
	s.err = s.b.Err()
	return false
}

func (s *Scanner) scanRecord(idLine string, out *reads.AugmentedRead) bool {
	id := strings.TrimPrefix(idLine, "@")
	mate := reads.MateRef("")
	if i := strings.IndexByte(id, ' '); i >= 0 {
		id = id[:i]
	}

	if !s.b.Scan() {
		s.err = errors.Wrap(io.ErrUnexpectedEOF, "augfastx: missing sequence line")
		return false
	}
	seq := s.b.Text()

	if !s.b.Scan() {
		s.err = errors.Wrap(io.ErrUnexpectedEOF, "augfastx: missing '+' line")
		return false
	}
	plus := s.b.Text()
	if len(plus) == 0 || plus[0] != '+' {
		s.err = errors.Wrapf(ErrInvalid, "expected '+' line, got %q", plus)
		return false
	}

	if !s.b.Scan() {
		s.err = errors.Wrap(io.ErrUnexpectedEOF, "augfastx: missing quality line")
		return false
	}
	qual := s.b.Text()

	out.Read = reads.Read{ID: id, Sequence: seq, Qualities: qual, Mate: mate}
	out.Novel = out.Novel[:0]

	for s.b.Scan() {
		line := s.b.Text()
		if line == "#" {
			return true
		}
		if !strings.HasPrefix(line, "# ") {
			// Not an annotation line: push back by treating it as the start of
			// the next record on the following Scan call is not possible with
			// bufio.Scanner, so a record with no trailing "#" sentinel is
			// malformed (spec.md §6 requires the terminating "#").
			s.err = errors.Wrapf(ErrInvalid, "missing '#' annotation terminator before %q", line)
			return false
		}
		nk, err := parseAnnotation(line)
		if err == errMateLine {
			continue
		}
		if err != nil {
			s.err = err
			return false
		}
		out.Novel = append(out.Novel, nk)
	}
	// Stream ended without a terminating "#"; treat as malformed per spec.md §6.
	s.err = errors.Wrap(ErrInvalid, "unterminated annotation block at EOF")
	return false
}

func parseAnnotation(line string) (reads.NovelKmer, error) {
	body := strings.TrimPrefix(line, "# ")
	if strings.HasPrefix(body, "mateseq=") {
		// Mate annotations share the line grammar but aren't part of this
		// record's own novel k-mer list; the scanner skips them and does not
		// keep the mate sequence.
		return reads.NovelKmer{}, errMateLine
	}
	fields := strings.SplitN(body, "\t", 3)
	if len(fields) != 3 {
		return reads.NovelKmer{}, errors.Wrapf(ErrInvalid, "malformed annotation %q", line)
	}
	offset, err := strconv.Atoi(fields[0])
	if err != nil {
		return reads.NovelKmer{}, errors.Wrapf(ErrInvalid, "bad offset in %q", line)
	}
	k := kmer.Encode(fields[1])
	abundStrs := strings.Split(fields[2], ",")
	abund := make(reads.Abundances, len(abundStrs))
	for i, a := range abundStrs {
		v, err := strconv.ParseUint(a, 10, 16)
		if err != nil {
			return reads.NovelKmer{}, errors.Wrapf(ErrInvalid, "bad abundance in %q", line)
		}
		abund[i] = uint16(v)
	}
	return reads.NovelKmer{Offset: offset, Canonical: k, Abundances: abund}, nil
}

var errMateLine = errors.New("augfastx: mate annotation line (not a novel k-mer)")

// Err returns the first error encountered, or nil at a clean EOF.
func (s *Scanner) Err() error {
	if s.err == nil || s.err == io.EOF {
		return nil
	}
	return s.err
}

// Writer serializes augmented FASTX records in the same format Scanner
// reads.
type Writer struct {
	w   io.Writer
	k   int
	err error
}

// NewWriter returns a Writer writing to w. k is the pipeline's k-mer length,
// needed to render each annotation's canonical k-mer back to an ACGT
// string; the augmented-FASTX grammar itself does not carry K per record
// (spec.md §6), so it must be fixed for the lifetime of one stream, matching
// "K is fixed for a pipeline run" (spec.md §3).
func NewWriter(w io.Writer, k int) *Writer { return &Writer{w: w, k: k} }

// WritePartitionHeader emits a "#part=<label>" header preceding a
// partition's records, per spec.md §6.
func (w *Writer) WritePartitionHeader(label string) error {
	if w.err != nil {
		return w.err
	}
	_, w.err = fmt.Fprintf(w.w, "#part=%s\n", label)
	return w.err
}

// Write emits one augmented record.
func (w *Writer) Write(r reads.AugmentedRead) error {
	if w.err != nil {
		return w.err
	}
	qual := r.Qualities
	if qual == "" {
		qual = strings.Repeat("I", len(r.Sequence))
	}
	if _, w.err = fmt.Fprintf(w.w, "@%s\n%s\n+\n%s\n", r.ID, r.Sequence, qual); w.err != nil {
		return w.err
	}
	for _, nk := range r.Novel {
		abund := make([]string, len(nk.Abundances))
		for i, a := range nk.Abundances {
			abund[i] = strconv.FormatUint(uint64(a), 10)
		}
		if _, w.err = fmt.Fprintf(w.w, "# %d\t%s\t%s\n", nk.Offset, nk.Canonical.String(w.k), strings.Join(abund, ",")); w.err != nil {
			return w.err
		}
	}
	_, w.err = fmt.Fprintln(w.w, "#")
	return w.err
}
