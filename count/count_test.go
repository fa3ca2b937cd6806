package count_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/denovar/count"
	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/reads"
	"github.com/grailbio/denovar/sketch"
)

func TestRunCountsKmersAndSkipsN(t *testing.T) {
	s := sketch.New(sketch.Opts{Kind: sketch.Counting, K: 4, TargetBytes: 1 << 12, Hashes: 4})
	in := []reads.Read{
		{ID: "r1", Sequence: "ACGTACGT"}, // 5 windows of length 4
		{ID: "r2", Sequence: "ACNTACGT"}, // contains an N
		{ID: "r3", Sequence: "AC"},       // shorter than K
	}
	i := 0
	stats := count.Run(s, count.Opts{K: 4}, func() (reads.Read, bool) {
		if i >= len(in) {
			return reads.Read{}, false
		}
		r := in[i]
		i++
		return r, true
	})

	require.EqualValues(t, 3, stats.ReadsProcessed)
	assert.EqualValues(t, 1, stats.KmersSkippedN)
	assert.Greater(t, stats.KmersStored, uint64(0))

	c := kmer.Canonical(kmer.Encode("ACGT"), 4)
	assert.Greater(t, s.Count(c), uint16(0))
}
