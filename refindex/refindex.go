// Package refindex gives localize and call read-only access to the
// reference genome: named-sequence lookup by coordinate range, plus a seed
// k-mer index used to find candidate reference windows for a partition
// (spec.md §4.G).
package refindex

import (
	"bufio"
	"io"
	"strings"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/pkg/errors"

	"github.com/grailbio/denovar/biosimd"
	"github.com/grailbio/denovar/kmer"
)

const bufferInitSize = 300 * 1024 * 1024

// Reference is a named-sequence FASTA store with 0-based half-open
// coordinate access, the same contract the rest of the corpus exposes for
// FASTA data.
type Reference interface {
	// Get returns the substring of seqName over [start, end).
	Get(seqName string, start, end uint64) (string, error)
	// Len returns the length of seqName.
	Len(seqName string) (uint64, error)
	// SeqNames returns every sequence name, in file order.
	SeqNames() []string
}

type reference struct {
	seqs     map[string]string
	seqNames []string
}

// Opt configures New.
type Opt func(*opts)

type opts struct {
	clean bool
}

// OptClean cleans sequences with biosimd.CleanASCIISeqInplace after
// loading (uppercases, masks non-ACGTN characters to N).
func OptClean(o *opts) { o.clean = true }

// New loads an entire FASTA reference into memory.
func New(r io.Reader, userOpts ...Opt) (Reference, error) {
	var o opts
	for _, u := range userOpts {
		u(&o)
	}
	ref := &reference{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	var seqName string
	var seq strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if seq.Len() != 0 {
				if seqName == "" {
					return nil, errors.Errorf("refindex: malformed FASTA, sequence data before a header")
				}
				ref.seqs[seqName] = seq.String()
				ref.seqNames = append(ref.seqNames, seqName)
				seq.Reset()
			}
			seqName = strings.Split(line[1:], " ")[0]
		} else {
			seq.WriteString(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "refindex: reading FASTA")
	}
	if seqName != "" {
		ref.seqs[seqName] = seq.String()
		ref.seqNames = append(ref.seqNames, seqName)
	}
	if o.clean {
		for name := range ref.seqs {
			biosimd.CleanASCIISeqInplace(gunsafe.StringToBytes(ref.seqs[name]))
		}
	}
	return ref, nil
}

func (f *reference) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("refindex: sequence not found: %s", seqName)
	}
	if end <= start || end > uint64(len(s)) {
		return "", errors.Errorf("refindex: invalid range %d-%d for sequence %s of length %d", start, end, seqName, len(s))
	}
	return s[start:end], nil
}

func (f *reference) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("refindex: sequence not found: %s", seqName)
	}
	return uint64(len(s)), nil
}

func (f *reference) SeqNames() []string { return f.seqNames }

// Hit is one occurrence of a seed k-mer in the reference.
type Hit struct {
	SeqName string
	Pos     uint64 // 0-based offset of the k-mer's first base
}

// SeedIndex maps canonical seed k-mers, taken every Spacing bases along
// every reference sequence, to their reference positions (spec.md §4.G:
// "the reference is indexed by seed k-mers spaced s bases apart").
type SeedIndex struct {
	k       int
	spacing int
	hits    map[kmer.K][]Hit
}

// BuildSeedIndex scans every sequence in ref and records a canonical seed
// k-mer every spacing bases.
func BuildSeedIndex(ref Reference, k, spacing int) *SeedIndex {
	if spacing < 1 {
		spacing = 1
	}
	idx := &SeedIndex{k: k, spacing: spacing, hits: make(map[kmer.K][]Hit)}
	scanner := kmer.NewScanner(k)
	for _, name := range ref.SeqNames() {
		n, err := ref.Len(name)
		if err != nil {
			continue
		}
		seq, err := ref.Get(name, 0, n)
		if err != nil {
			continue
		}
		scanner.Reset(seq)
		for scanner.Scan() {
			pos := scanner.Pos()
			if pos%spacing != 0 {
				continue
			}
			c := scanner.Canonical()
			idx.hits[c] = append(idx.hits[c], Hit{SeqName: name, Pos: uint64(pos)})
		}
	}
	return idx
}

// K returns the seed k-mer length the index was built with.
func (idx *SeedIndex) K() int { return idx.k }

// Lookup returns every reference position where the given canonical k-mer
// occurs as a seed.
func (idx *SeedIndex) Lookup(c kmer.K) []Hit { return idx.hits[c] }
