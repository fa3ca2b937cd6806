// Package sketch implements the probabilistic k-mer abundance sketches used
// throughout the pipeline (spec.md §3, §4.A): a Count-Min-style counting
// sketch and a 1-bit presence-only variant, both keyed on canonical k-mers,
// sized to a byte budget and a target false-positive rate.
package sketch

import (
	"encoding/binary"
	"io"
	"math"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/denovar/kmer"
)

// Kind selects the cell representation: Counting sketches saturate at a
// configurable ceiling; Presence sketches store a single bit per cell and
// only answer Contains, never Count.
type Kind uint8

const (
	// Counting sketches answer Count() with a saturating Count-Min estimate.
	Counting Kind = iota
	// Presence sketches are 1-bit-per-cell and only answer Contains().
	Presence
)

const (
	magic   = "KVSK"
	version = 1

	// CountCeiling8 is the saturation ceiling for 1-byte counting cells.
	CountCeiling8 = 255
	// CountCeiling16 is the saturation ceiling for 2-byte counting cells.
	CountCeiling16 = 65535
)

// Opts configures a new Sketch.
type Opts struct {
	// Kind selects Counting or Presence cells.
	Kind Kind
	// K is the k-mer length this sketch was built for. Reusing a sketch
	// with a different K than the one it was built with is a fatal error
	// (spec.md §3).
	K int
	// TargetBytes is the approximate memory budget (M in spec.md §4.A).
	TargetBytes uint64
	// Hashes is the number of independent hash tables (H).
	Hashes int
	// WideCells selects 2-byte (65535 ceiling) counting cells instead of
	// the default 1-byte (255 ceiling) cells. Ignored for Presence.
	WideCells bool
}

// DefaultOpts matches the parameters used by the seed-corpus end-to-end
// scenarios in spec.md §8: K=25, 4 hash tables, 255-ceiling counting cells.
var DefaultOpts = Opts{
	Kind:        Counting,
	K:           25,
	TargetBytes: 256 << 20,
	Hashes:      4,
}

// Sketch is a fixed-size, append-only probabilistic k-mer set. It is safe
// for concurrent readers once construction (Add calls) has finished; the
// pipeline relies on this to share sketches read-only across workers
// (spec.md §5).
type Sketch struct {
	kind    Kind
	k       int
	hashes  int
	width   uint64 // W: cells per table
	ceiling uint32
	cellLog int // 0 => 1 bit, 3 => 1 byte, 4 => 2 bytes

	// tables is hashes*width cells, laid out table-major.
	tables []byte
	nAdded uint64

	// keyed selects HighwayHash (via NewKeyed) instead of farm+seahash.
	keyed bool
}

// New allocates a Sketch per Opts. Table width is chosen as the nearest
// prime at or above TargetBytes/Hashes/bytesPerCell, matching spec.md §4.A's
// "W per table ≈ M/H rounded to a prime".
func New(opts Opts) *Sketch {
	if opts.Hashes <= 0 {
		opts.Hashes = DefaultOpts.Hashes
	}
	if opts.K <= 0 {
		opts.K = DefaultOpts.K
	}
	cellLog := 0
	ceiling := uint32(1)
	if opts.Kind == Counting {
		if opts.WideCells {
			cellLog = 4
			ceiling = CountCeiling16
		} else {
			cellLog = 3
			ceiling = CountCeiling8
		}
	}
	bytesPerCell := 1.0
	switch cellLog {
	case 0:
		bytesPerCell = 1.0 / 8
	case 3:
		bytesPerCell = 1
	case 4:
		bytesPerCell = 2
	}
	cellsPerTable := uint64(float64(opts.TargetBytes) / float64(opts.Hashes) / bytesPerCell)
	if cellsPerTable < 16 {
		cellsPerTable = 16
	}
	width := nextPrime(cellsPerTable)

	var tableBytes uint64
	switch cellLog {
	case 0:
		tableBytes = (width + 7) / 8
	case 3:
		tableBytes = width
	case 4:
		tableBytes = width * 2
	}
	s := &Sketch{
		kind:    opts.Kind,
		k:       opts.K,
		hashes:  opts.Hashes,
		width:   width,
		ceiling: ceiling,
		cellLog: cellLog,
		tables:  make([]byte, tableBytes*uint64(opts.Hashes)),
	}
	return s
}

// K returns the k-mer length this sketch was built for.
func (s *Sketch) K() int { return s.k }

// Kind returns Counting or Presence.
func (s *Sketch) Kind() Kind { return s.kind }

// hash computes the two independent 64-bit hashes combined as h1 + i*h2
// (spec.md §4.A) to derive H cell indices from one k-mer. Sketches built via
// NewKeyed use HighwayHash instead of farm+seahash (see keyed.go).
func (s *Sketch) hash(k kmer.K) (h1, h2 uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	if s.keyed {
		return highwayHashPair(buf[:])
	}
	h1 = farm.Hash64(buf[:])
	h2 = seahash.Sum64(buf[:])
	if h2 == 0 {
		h2 = 1 // avoid degenerating to a single probed cell
	}
	return h1, h2
}

func (s *Sketch) cellIndex(table int, h1, h2 uint64) uint64 {
	combined := h1 + uint64(table)*h2
	return combined % s.width
}

// Add inserts the canonical k-mer k into the sketch, incrementing (and
// saturating) all H cells for Counting sketches, or setting all H bits for
// Presence sketches.
func (s *Sketch) Add(k kmer.K) {
	h1, h2 := s.hash(k)
	for t := 0; t < s.hashes; t++ {
		idx := s.cellIndex(t, h1, h2)
		s.incrementCell(t, idx)
	}
	s.nAdded++
}

func (s *Sketch) incrementCell(table int, idx uint64) {
	switch s.cellLog {
	case 0:
		byteIdx := uint64(table)*((s.width+7)/8) + idx/8
		bit := byte(1 << (idx % 8))
		s.tables[byteIdx] |= bit
	case 3:
		off := uint64(table)*s.width + idx
		if s.tables[off] < CountCeiling8 {
			s.tables[off]++
		}
	case 4:
		off := (uint64(table)*s.width + idx) * 2
		v := binary.LittleEndian.Uint16(s.tables[off : off+2])
		if v < CountCeiling16 {
			binary.LittleEndian.PutUint16(s.tables[off:off+2], v+1)
		}
	}
}

func (s *Sketch) readCell(table int, idx uint64) uint32 {
	switch s.cellLog {
	case 0:
		byteIdx := uint64(table)*((s.width+7)/8) + idx/8
		bit := byte(1 << (idx % 8))
		if s.tables[byteIdx]&bit != 0 {
			return 1
		}
		return 0
	case 3:
		off := uint64(table)*s.width + idx
		return uint32(s.tables[off])
	case 4:
		off := (uint64(table)*s.width + idx) * 2
		return uint32(binary.LittleEndian.Uint16(s.tables[off : off+2]))
	}
	return 0
}

// Count returns the Count-Min estimate for k: the minimum across all H
// cells. Always 0 or 1 for a Presence sketch (equivalent to Contains).
func (s *Sketch) Count(k kmer.K) uint16 {
	h1, h2 := s.hash(k)
	min := uint32(math.MaxUint32)
	for t := 0; t < s.hashes; t++ {
		v := s.readCell(t, s.cellIndex(t, h1, h2))
		if v < min {
			min = v
		}
	}
	if min > 0xffff {
		min = 0xffff
	}
	return uint16(min)
}

// Contains reports whether every one of the H cells for k is nonzero/set.
func (s *Sketch) Contains(k kmer.K) bool {
	h1, h2 := s.hash(k)
	for t := 0; t < s.hashes; t++ {
		if s.readCell(t, s.cellIndex(t, h1, h2)) == 0 {
			return false
		}
	}
	return true
}

// EstimatedFPR computes the probabilistic false-positive rate from observed
// fill ratio, per spec.md §4.A: (1 - e^(-n/W)) per table, reported as
// whichever of the cross-table product or the single-table estimate is
// more pessimistic (larger), since the product is always the smaller,
// more optimistic figure once H > 1.
func (s *Sketch) EstimatedFPR() float64 {
	if s.nAdded == 0 {
		return 0
	}
	fillRatio := float64(s.nAdded) / float64(s.width)
	perTable := 1 - math.Exp(-fillRatio)
	product := math.Pow(perTable, float64(s.hashes))
	if perTable > product {
		return perTable
	}
	return product
}

// NAdded exposes the number of Add calls observed (the count EstimatedFPR
// uses), for callers reporting sketch fill statistics.
func (s *Sketch) NAdded() uint64 { return s.nAdded }

// header mirrors the binary layout in spec.md §6.
type header struct {
	Version      uint8
	Kind         uint8
	K            uint8
	Hashes       uint8
	Width        uint64
	CountCeiling uint32
}

// HeaderSize is the fixed-size prefix of a serialized sketch file.
const HeaderSize = 4 + 1 + 1 + 1 + 1 + 8 + 4

// Serialize writes the sketch in the binary format described in spec.md §6:
// a fixed header followed by the raw cell tables, little-endian.
func (s *Sketch) Serialize(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], magic)
	buf[4] = version
	buf[5] = uint8(s.kind)
	buf[6] = uint8(s.k)
	buf[7] = uint8(s.hashes)
	binary.LittleEndian.PutUint64(buf[8:16], s.width)
	binary.LittleEndian.PutUint32(buf[16:20], s.ceiling)
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "sketch: write header")
	}
	if _, err := w.Write(s.tables); err != nil {
		return errors.Wrap(err, "sketch: write cells")
	}
	return nil
}

// Load reads a sketch previously written by Serialize. An unreadable magic
// or version is fatal per spec.md §7.
func Load(r io.Reader) (*Sketch, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "sketch: read header")
	}
	if string(buf[0:4]) != magic {
		log.Panicf("sketch: bad magic %q, expected %q", buf[0:4], magic)
	}
	if buf[4] != version {
		log.Panicf("sketch: unsupported version %d", buf[4])
	}
	kind := Kind(buf[5])
	k := int(buf[6])
	hashes := int(buf[7])
	width := binary.LittleEndian.Uint64(buf[8:16])
	ceiling := binary.LittleEndian.Uint32(buf[16:20])

	cellLog := 0
	switch {
	case kind == Presence:
		cellLog = 0
	case ceiling == CountCeiling16:
		cellLog = 4
	default:
		cellLog = 3
	}
	var tableBytes uint64
	switch cellLog {
	case 0:
		tableBytes = (width + 7) / 8
	case 3:
		tableBytes = width
	case 4:
		tableBytes = width * 2
	}
	tables := make([]byte, tableBytes*uint64(hashes))
	if _, err := io.ReadFull(r, tables); err != nil {
		return nil, errors.Wrap(err, "sketch: read cells")
	}
	return &Sketch{
		kind:    kind,
		k:       k,
		hashes:  hashes,
		width:   width,
		ceiling: ceiling,
		cellLog: cellLog,
		tables:  tables,
	}, nil
}

// nextPrime returns the smallest prime >= n, scanning upward by odd numbers.
// n is expected to be at least a few hundred in practice, so trial division
// is fast enough (spec.md §4.A: "W per table rounded to a prime").
func nextPrime(n uint64) uint64 {
	if n <= 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for !isPrime(n) {
		n += 2
	}
	return n
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
