package augfastx_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/denovar/augfastx"
	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/reads"
)

func TestWriteScanRoundTrip(t *testing.T) {
	const k = 4
	in := []reads.AugmentedRead{
		{
			Read: reads.Read{ID: "read1", Sequence: "ACGTACGT", Qualities: "IIIIIIII"},
			Novel: []reads.NovelKmer{
				{Offset: 0, Canonical: kmer.Canonical(kmer.Encode("ACGT"), k), Abundances: reads.Abundances{10, 0}},
				{Offset: 4, Canonical: kmer.Canonical(kmer.Encode("ACGT"), k), Abundances: reads.Abundances{12, 1}},
			},
		},
		{
			Read:  reads.Read{ID: "read2", Sequence: "TTTTTTTT", Qualities: "IIIIIIII"},
			Novel: nil,
		},
	}

	var buf bytes.Buffer
	w := augfastx.NewWriter(&buf, k)
	for _, r := range in {
		require.NoError(t, w.Write(r))
	}

	sc := augfastx.NewScanner(&buf)
	var got []reads.AugmentedRead
	var r reads.AugmentedRead
	for sc.Scan(&r) {
		got = append(got, r.Clone())
	}
	require.NoError(t, sc.Err())
	require.Len(t, got, 2)
	assert.Equal(t, "read1", got[0].ID)
	assert.Len(t, got[0].Novel, 2)
	assert.Equal(t, "read2", got[1].ID)
	assert.Len(t, got[1].Novel, 0)
}

func TestPartitionHeader(t *testing.T) {
	var buf bytes.Buffer
	w := augfastx.NewWriter(&buf, 4)
	require.NoError(t, w.WritePartitionHeader("0"))
	require.NoError(t, w.Write(reads.AugmentedRead{Read: reads.Read{ID: "r1", Sequence: "ACGT", Qualities: "IIII"}}))

	sc := augfastx.NewScanner(&buf)
	var r reads.AugmentedRead
	require.True(t, sc.Scan(&r))
	assert.Equal(t, "0", sc.Partition())
}
