// Package call implements spec.md §4.H: aligning an assembled contig
// against its localized reference window with an affine-gap scoring model,
// then extracting SNV/INDEL/MNV calls from the resulting CIGAR.
package call

import (
	"github.com/grailbio/hts/sam"
)

// AlignOpts configures the aligner's scoring scheme.
type AlignOpts struct {
	Match    int
	Mismatch int
	// GapOpen is charged once per gap; GapExtend is charged per gap base,
	// including the first (spec.md §4.H: "affine gap penalty").
	GapOpen   int
	GapExtend int
}

// DefaultAlignOpts mirrors common short-read affine-gap scoring.
var DefaultAlignOpts = AlignOpts{Match: 1, Mismatch: -4, GapOpen: -5, GapExtend: -1}

const negInf = -(1 << 30)

// state identifies which of the three Gotoh matrices a cell belongs to.
type state uint8

const (
	stateM  state = iota // match/mismatch
	stateIx              // gap in the reference: query base consumed, no ref advance (insertion)
	stateIy              // gap in the query: ref base consumed, no query advance (deletion)
)

// Alignment is the result of aligning a query (the assembled contig)
// against a reference window. The CIGAR is query-relative: M/X consumes
// both query and reference, I consumes query only, D consumes reference
// only, matching sam.Cigar conventions. RefStart is the number of leading
// reference bases skipped for free before the CIGAR begins (spec.md §4.H:
// "global in the query, local in the reference"); a trailing skip needs no
// field since it is simply never represented in the CIGAR.
type Alignment struct {
	Cigar    sam.Cigar
	Score    int
	RefStart int
}

// matrices holds the three Gotoh score matrices plus, for each, a
// traceback matrix recording which state the optimal score at that cell
// came from. Storing the traceback explicitly (rather than re-deriving it
// from score equalities during backtrace) avoids ambiguity when several
// predecessor states tie.
type matrices struct {
	rows, cols int
	m, ix, iy  []int

	traceM, traceIx, traceIy []state
}

func newMatrices(rows, cols int) *matrices {
	n := rows * cols
	return &matrices{
		rows: rows, cols: cols,
		m:       make([]int, n),
		ix:      make([]int, n),
		iy:      make([]int, n),
		traceM:  make([]state, n),
		traceIx: make([]state, n),
		traceIy: make([]state, n),
	}
}

func (mx *matrices) idx(i, j int) int { return i*mx.cols + j }

// Align computes a semi-global ("glocal") affine-gap alignment of query
// against ref: every query base must be consumed, by a match, mismatch, or
// insertion, but any prefix and/or suffix of ref may be skipped for free
// (spec.md §4.H: "global in the query, local in the reference"). This lets
// one localized reference window anchor contigs of varying length without
// paying affine-gap cost for reference bases the contig never touches.
func Align(query, ref string, opts AlignOpts) Alignment {
	rows, cols := len(query)+1, len(ref)+1
	mx := newMatrices(rows, cols)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			k := mx.idx(i, j)
			switch {
			case i == 0:
				// top row: any amount of leading reference may be skipped
				// for free, so every column starts a fresh alignment at
				// zero cost instead of paying a deletion run to reach it.
				mx.m[k] = 0
				mx.ix[k] = negInf
				mx.iy[k] = negInf
			case j == 0:
				mx.m[k] = negInf
				mx.iy[k] = negInf
				mx.ix[k] = opts.GapOpen + opts.GapExtend*i
				mx.traceIx[k] = stateIx
			default:
				sub := opts.Mismatch
				if query[i-1] == ref[j-1] {
					sub = opts.Match
				}
				pm, pix, piy := mx.m[mx.idx(i-1, j-1)], mx.ix[mx.idx(i-1, j-1)], mx.iy[mx.idx(i-1, j-1)]
				best, bestState := pm, stateM
				if pix > best {
					best, bestState = pix, stateIx
				}
				if piy > best {
					best, bestState = piy, stateIy
				}
				mx.m[k] = best + sub
				mx.traceM[k] = bestState

				openIx := mx.m[mx.idx(i-1, j)] + opts.GapOpen + opts.GapExtend
				extIx := mx.ix[mx.idx(i-1, j)] + opts.GapExtend
				if openIx >= extIx {
					mx.ix[k] = openIx
					mx.traceIx[k] = stateM
				} else {
					mx.ix[k] = extIx
					mx.traceIx[k] = stateIx
				}

				openIy := mx.m[mx.idx(i, j-1)] + opts.GapOpen + opts.GapExtend
				extIy := mx.iy[mx.idx(i, j-1)] + opts.GapExtend
				if openIy >= extIy {
					mx.iy[k] = openIy
					mx.traceIy[k] = stateM
				} else {
					mx.iy[k] = extIy
					mx.traceIy[k] = stateIy
				}
			}
		}
	}

	// The best alignment may end anywhere in the last row: a trailing run
	// of reference bases may likewise be skipped for free, so search every
	// column instead of only the bottom-right corner.
	i := rows - 1
	best, cur, bestJ := negInf-1, stateM, 0
	for j := 0; j < cols; j++ {
		k := mx.idx(i, j)
		if mx.m[k] > best {
			best, cur, bestJ = mx.m[k], stateM, j
		}
		if mx.ix[k] > best {
			best, cur, bestJ = mx.ix[k], stateIx, j
		}
		if mx.iy[k] > best {
			best, cur, bestJ = mx.iy[k], stateIy, j
		}
	}
	j := bestJ

	var ops []byte
	for i > 0 {
		k := mx.idx(i, j)
		switch cur {
		case stateM:
			ops = append(ops, 'M')
			cur = mx.traceM[k]
			i--
			j--
		case stateIx:
			ops = append(ops, 'I')
			cur = mx.traceIx[k]
			i--
		case stateIy:
			ops = append(ops, 'D')
			cur = mx.traceIy[k]
			j--
		}
	}

	cigar := make(sam.Cigar, 0, len(ops))
	n := 0
	var curOp byte
	flush := func() {
		if n == 0 {
			return
		}
		switch curOp {
		case 'M':
			cigar = append(cigar, sam.NewCigarOp(sam.CigarMatch, n))
		case 'I':
			cigar = append(cigar, sam.NewCigarOp(sam.CigarInsertion, n))
		case 'D':
			cigar = append(cigar, sam.NewCigarOp(sam.CigarDeletion, n))
		}
		n = 0
	}
	for o := len(ops) - 1; o >= 0; o-- {
		if ops[o] != curOp {
			flush()
			curOp = ops[o]
		}
		n++
	}
	flush()

	// Whatever is left of j once the backtrace reaches i==0 is the length
	// of the free leading reference skip.
	return Alignment{Cigar: cigar, Score: best, RefStart: j}
}
