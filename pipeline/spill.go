package pipeline

import (
	"encoding/binary"
	"io"

	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"

	"github.com/grailbio/denovar/assemble"
	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/reads"
)

// SpillContigs writes contigs to w as a zstd-compressed recordio stream, so
// the assemble stage's output can be spilled to disk between pipeline runs
// without holding every contig in memory at once (spec.md §5).
func SpillContigs(w io.Writer, label string, contigs []assemble.Contig) error {
	rw := recordio.NewWriter(w, recordio.WriterOpts{
		Marshal:      marshalContig,
		Transformers: []string{recordiozstd.Name},
	})
	rw.AddHeader("label", label)
	rw.AddHeader(recordio.KeyTrailer, true)
	for i := range contigs {
		rw.Append(&contigs[i])
	}
	rw.SetTrailer(int64(len(contigs)))
	return rw.Finish()
}

// LoadContigs reads back a stream written by SpillContigs.
func LoadContigs(r io.ReadSeeker) ([]assemble.Contig, error) {
	scanner := recordio.NewScanner(r, recordio.ScannerOpts{Unmarshal: unmarshalContig})
	var contigs []assemble.Contig
	for scanner.Scan() {
		contigs = append(contigs, *scanner.Get().(*assemble.Contig))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return contigs, nil
}

// marshalContig encodes a *assemble.Contig as: u32 method-length,
// method bytes, u32 sequence-length, sequence bytes, u32 read-count,
// then for each read a u32 length-prefixed ID, then u32 novel-kmer-count
// and for each one its offset, canonical value, a u32 abundance count and
// that many u16 abundances. The
// novel-kmer annotations travel with the contig so a reloaded contig still
// supports the same SupportingKmers computation as a freshly assembled one.
func marshalContig(scratch []byte, p interface{}) ([]byte, error) {
	c := p.(*assemble.Contig)
	size := 4 + len(c.Method) + 4 + len(c.Sequence) + 4
	for _, id := range c.SupportingReads {
		size += 4 + len(id)
	}
	size += 4 + len(c.NovelKmers)*(8+8+4)
	for _, nk := range c.NovelKmers {
		size += len(nk.Abundances) * 2
	}
	t := scratch
	if cap(t) < size {
		t = make([]byte, size)
	}
	t = t[:size]

	off := 0
	writeString := func(s string) {
		binary.LittleEndian.PutUint32(t[off:], uint32(len(s)))
		off += 4
		copy(t[off:], s)
		off += len(s)
	}
	writeString(c.Method)
	writeString(c.Sequence)
	binary.LittleEndian.PutUint32(t[off:], uint32(len(c.SupportingReads)))
	off += 4
	for _, id := range c.SupportingReads {
		writeString(id)
	}
	binary.LittleEndian.PutUint32(t[off:], uint32(len(c.NovelKmers)))
	off += 4
	for _, nk := range c.NovelKmers {
		binary.LittleEndian.PutUint64(t[off:], uint64(nk.Offset))
		off += 8
		binary.LittleEndian.PutUint64(t[off:], uint64(nk.Canonical))
		off += 8
		binary.LittleEndian.PutUint32(t[off:], uint32(len(nk.Abundances)))
		off += 4
		for _, a := range nk.Abundances {
			binary.LittleEndian.PutUint16(t[off:], a)
			off += 2
		}
	}
	return t, nil
}

func unmarshalContig(in []byte) (interface{}, error) {
	off := 0
	readString := func() string {
		n := binary.LittleEndian.Uint32(in[off:])
		off += 4
		s := string(in[off : off+int(n)])
		off += int(n)
		return s
	}
	c := &assemble.Contig{}
	c.Method = readString()
	c.Sequence = readString()
	n := binary.LittleEndian.Uint32(in[off:])
	off += 4
	c.SupportingReads = make([]string, n)
	for i := range c.SupportingReads {
		c.SupportingReads[i] = readString()
	}
	nk := binary.LittleEndian.Uint32(in[off:])
	off += 4
	c.NovelKmers = make([]reads.NovelKmer, nk)
	for i := range c.NovelKmers {
		offset := int(binary.LittleEndian.Uint64(in[off:]))
		off += 8
		canonical := kmer.K(binary.LittleEndian.Uint64(in[off:]))
		off += 8
		na := binary.LittleEndian.Uint32(in[off:])
		off += 4
		abundances := make(reads.Abundances, na)
		for j := range abundances {
			abundances[j] = binary.LittleEndian.Uint16(in[off:])
			off += 2
		}
		c.NovelKmers[i] = reads.NovelKmer{Offset: offset, Canonical: canonical, Abundances: abundances}
	}
	return c, nil
}
