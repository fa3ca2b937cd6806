package pipeline_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/denovar/assemble"
	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/pipeline"
	"github.com/grailbio/denovar/reads"
)

func TestSpillContigsRoundTripsNovelKmers(t *testing.T) {
	contigs := []assemble.Contig{
		{
			Sequence:        "ACGTACGTAC",
			SupportingReads: []string{"r1", "r2"},
			Method:          "greedy",
			NovelKmers: []reads.NovelKmer{
				{Offset: 2, Canonical: kmer.K(42), Abundances: reads.Abundances{1, 2, 3}},
				{Offset: 5, Canonical: kmer.K(7)},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, pipeline.SpillContigs(&buf, "p1", contigs))

	got, err := pipeline.LoadContigs(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, contigs[0].Sequence, got[0].Sequence)
	assert.Equal(t, contigs[0].SupportingReads, got[0].SupportingReads)
	require.Len(t, got[0].NovelKmers, 2)
	assert.Equal(t, contigs[0].NovelKmers[0], got[0].NovelKmers[0])
	assert.Equal(t, contigs[0].NovelKmers[1].Offset, got[0].NovelKmers[1].Offset)
}
