// Package kmer implements fixed-length DNA k-mer encoding, canonicalization,
// and streaming k-merization of a read sequence.
//
// A Kmer packs up to 32 bases into a uint64, two bits per base, using an
// A=0/C=1/G=2/T=3 encoding. Only canonical k-mers (the lexicographic min of
// the k-mer and its reverse complement) are ever stored or compared.
package kmer

import (
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/denovar/biosimd"
	"github.com/pkg/errors"
)

const invalidBits = uint8(255)

var (
	asciiToBits   [256]uint8
	asciiToRCBits [256]uint8
)

func init() {
	for i := range asciiToBits {
		asciiToBits[i] = invalidBits
		asciiToRCBits[i] = invalidBits
	}
	set := func(ch byte, bits, rcBits uint8) {
		asciiToBits[ch] = bits
		asciiToRCBits[ch] = rcBits
	}
	set('A', 0, 3)
	set('a', 0, 3)
	set('C', 1, 2)
	set('c', 1, 2)
	set('G', 2, 1)
	set('g', 2, 1)
	set('T', 3, 0)
	set('t', 3, 0)
}

// K is a uint64-packed DNA k-mer, 2 bits/base, up to 32 bases.
type K uint64

// Invalid is returned by codec functions when the input contains a
// non-ACGT base and thus has no valid encoding.
const Invalid = K(0xffffffffffffffff)

// MaxLength is the largest k-mer length representable in a K.
const MaxLength = 32

// Encode packs seq (which must contain only A/C/G/T, case-insensitive) into
// a Kmer. It returns Invalid if seq contains any other base or is too long.
func Encode(seq string) K {
	if len(seq) > MaxLength {
		return Invalid
	}
	var k K
	for i := 0; i < len(seq); i++ {
		b := asciiToBits[seq[i]]
		if b == invalidBits {
			return Invalid
		}
		k = (k << 2) | K(b)
	}
	return k
}

// ReverseComplement returns the reverse complement of the length-k k-mer k.
func ReverseComplement(k K, length int) K {
	var rc K
	for i := 0; i < length; i++ {
		rc = (rc << 2) | (3 - (k & 3))
		k >>= 2
	}
	return rc
}

// Canonical returns the lexicographically smaller of k and its reverse
// complement at the given length. This is the only form ever stored in a
// Sketch or compared between samples (spec.md §3, invariant:
// canonical(k) == canonical(revcomp(k))).
func Canonical(k K, length int) K {
	rc := ReverseComplement(k, length)
	if rc < k {
		return rc
	}
	return k
}

// String renders k as an uppercase ACGT string of the given length.
func (k K) String(length int) string {
	buf := make([]byte, length)
	bases := [4]byte{'A', 'C', 'G', 'T'}
	for i := length - 1; i >= 0; i-- {
		buf[i] = bases[k&3]
		k >>= 2
	}
	return string(buf)
}

// Scanner yields every k-mer of a fixed length from a sequence in forward
// order, tracking both the forward and reverse-complement encodings so that
// Canonical() can be computed without re-scanning. The common case slides a
// 2-bit window one base at a time; an ambiguous (non-ACGT) base resets the
// window.
type Scanner struct {
	length int
	mask   K

	seq    string
	offset int // start of next candidate k-mer
	pos    int // start of Cur()

	forward, revcomp K
	primed           bool
	tmp              []byte

	sawAmbiguous bool
}

// NewScanner returns a Scanner for k-mers of the given length.
func NewScanner(length int) *Scanner {
	if length <= 0 || length > MaxLength {
		panic(errors.Errorf("kmer length %d out of range (1..%d)", length, MaxLength))
	}
	return &Scanner{
		length: length,
		mask:   ^(K(0xffffffffffffffff) << uint(length*2)),
	}
}

// Length returns the configured k-mer length.
func (s *Scanner) Length() int { return s.length }

// Reset begins scanning a new sequence.
func (s *Scanner) Reset(seq string) {
	s.seq = seq
	s.offset = 0
	s.primed = false
	s.sawAmbiguous = false
}

// SawAmbiguous reports whether the sequence passed to Reset contained any
// non-ACGT base (including one past the last yielded k-mer).
func (s *Scanner) SawAmbiguous() bool { return s.sawAmbiguous }

// Scan advances to the next valid (non-ambiguous) k-mer position. It returns
// false once no further full-length k-mer exists in the sequence.
func (s *Scanner) Scan() bool {
	if s.primed && s.offset+s.length <= len(s.seq) {
		nextCh := s.seq[s.offset+s.length-1]
		bits := asciiToBits[nextCh]
		if bits != invalidBits {
			s.pos = s.offset
			s.forward = ((s.forward << 2) | K(bits)) & s.mask
			shift := uint(s.length-1) * 2
			s.revcomp = (s.revcomp >> 2) | (K(asciiToRCBits[nextCh]) << shift)
			s.offset++
			return true
		}
		s.sawAmbiguous = true
	}
	for s.offset+s.length <= len(s.seq) {
		window := s.seq[s.offset : s.offset+s.length]
		fwd := Encode(window)
		if fwd == Invalid {
			s.sawAmbiguous = true
			s.offset += nextAmbiguous(s.seq, s.offset) + 1
			continue
		}
		if cap(s.tmp) < s.length {
			s.tmp = make([]byte, s.length)
		}
		s.tmp = s.tmp[:s.length]
		biosimd.ReverseComp8NoValidate(s.tmp, gunsafe.StringToBytes(window))
		rc := Encode(gunsafe.BytesToString(s.tmp))
		s.pos = s.offset
		s.forward = fwd
		s.revcomp = rc
		s.offset++
		s.primed = true
		return true
	}
	return false
}

// nextAmbiguous returns the offset, relative to start, of the next
// non-ACGT base in seq at or after start.
func nextAmbiguous(seq string, start int) int {
	for i := start; i < len(seq); i++ {
		if asciiToBits[seq[i]] == invalidBits {
			return i - start
		}
	}
	return len(seq) - start
}

// Pos returns the 0-based offset of the current k-mer within the sequence
// passed to Reset.
func (s *Scanner) Pos() int { return s.pos }

// Forward returns the current k-mer in its as-sequenced orientation.
func (s *Scanner) Forward() K { return s.forward }

// Canonical returns the canonical form (min of forward, reverse complement)
// of the current k-mer.
func (s *Scanner) Canonical() K {
	if s.revcomp < s.forward {
		return s.revcomp
	}
	return s.forward
}
