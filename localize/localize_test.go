package localize_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/denovar/localize"
	"github.com/grailbio/denovar/partition"
	"github.com/grailbio/denovar/reads"
	"github.com/grailbio/denovar/refindex"
)

type fakeRef struct {
	seqs map[string]string
}

func (f fakeRef) Get(name string, start, end uint64) (string, error) { return f.seqs[name][start:end], nil }
func (f fakeRef) Len(name string) (uint64, error)                    { return uint64(len(f.seqs[name])), nil }
func (f fakeRef) SeqNames() []string                                 { return []string{"chr1"} }

func TestLocateFindsSupportingWindow(t *testing.T) {
	const k = 10
	chr1 := "GATTACA" + strings.Repeat("CGTACGATCC", 5) + "GATTACA"
	ref := fakeRef{seqs: map[string]string{"chr1": chr1}}
	idx := refindex.BuildSeedIndex(ref, k, 1)

	p := partition.Partition{
		Reads: []reads.AugmentedRead{
			{Read: reads.Read{ID: "r1", Sequence: chr1[7:27]}},
		},
	}
	windows := localize.Locate(p, idx, localize.Opts{Spacing: 1, ClusterGap: 5, Pad: 2})
	require.NotEmpty(t, windows)
	assert.Equal(t, "chr1", windows[0].SeqName)
	assert.Greater(t, windows[0].Hits, 0)
}

func TestLocateReturnsNilWithNoHits(t *testing.T) {
	ref := fakeRef{seqs: map[string]string{"chr1": "AAAAAAAAAAAAAAAAAAAA"}}
	idx := refindex.BuildSeedIndex(ref, 10, 1)
	p := partition.Partition{Reads: []reads.AugmentedRead{{Read: reads.Read{ID: "r1", Sequence: "CCCCCCCCCCCCCCCCCCCC"}}}}
	windows := localize.Locate(p, idx, localize.Opts{Spacing: 1, ClusterGap: 5, Pad: 0})
	assert.Empty(t, windows)
}
