package vcfio_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/denovar/call"
	"github.com/grailbio/denovar/vcfio"
)

func TestWriterEmitsHeaderAndRecord(t *testing.T) {
	var buf bytes.Buffer
	w := vcfio.NewWriter(&buf)
	require.NoError(t, w.WriteHeader("proband"))
	require.NoError(t, w.Write(vcfio.Record{
		Chrom: "chr1",
		Pos:   101,
		Call: call.Call{
			Class:     call.ClassSNV,
			RefAllele: "T",
			AltAllele: "C",
			RW:        "AAATAAA",
			VW:        "AAACAAA",
		},
		SupportKmers:  6,
		LikelihoodLog: 12.5,
	}))
	require.NoError(t, w.Flush())

	out := buf.String()
	assert.Contains(t, out, "##fileformat=VCFv4.2")
	assert.Contains(t, out, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tproband")
	assert.Contains(t, out, "chr1\t101\t.\tT\tC\t.\tPASS\t")
	assert.True(t, strings.Contains(out, "CALLCLASS=SNV"))
}

func TestFilterStringSortsAndJoins(t *testing.T) {
	var buf bytes.Buffer
	w := vcfio.NewWriter(&buf)
	require.NoError(t, w.Write(vcfio.Record{
		Chrom:   "chr1",
		Pos:     1,
		Filters: []vcfio.Filter{vcfio.FilterLikelihoodFail, vcfio.FilterHomopolymer},
	}))
	require.NoError(t, w.Flush())
	assert.Contains(t, buf.String(), "Homopolymer;LikelihoodFail")
}
