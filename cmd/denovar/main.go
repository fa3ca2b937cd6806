// denovar finds de novo germline variants in a proband sample by
// comparing its k-mer content against parental control samples and a
// reference genome, without aligning reads first.
//
// Example:
//
//	denovar --case=proband.fastq --ctrl=father.fastq,mother.fastq \
//	  --ref=genome.fa --out=denovo.vcf
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/grailbio/denovar/augfastx"
	"github.com/grailbio/denovar/call"
	"github.com/grailbio/denovar/count"
	"github.com/grailbio/denovar/encoding/fastq"
	"github.com/grailbio/denovar/kmer"
	"github.com/grailbio/denovar/likelihood"
	"github.com/grailbio/denovar/localize"
	"github.com/grailbio/denovar/novel"
	"github.com/grailbio/denovar/partition"
	"github.com/grailbio/denovar/pipeline"
	"github.com/grailbio/denovar/reads"
	"github.com/grailbio/denovar/refindex"
	"github.com/grailbio/denovar/refine"
	"github.com/grailbio/denovar/sketch"
	"github.com/grailbio/denovar/vcfio"
)

// Exit codes (spec.md §6).
const (
	exitSuccess       = 0
	exitUsageError    = 1
	exitIOError       = 2
	exitMalformed     = 3
	exitInternalError = 4
)

type flags struct {
	casePath    string
	ctrlPaths   string
	refPath     string
	outPath     string
	k           int
	caseMin     int
	ctrlMax     int
	sketchBytes int64
	hashes      int
	parallelism int
}

func usage() {
	fmt.Fprintf(os.Stderr, `denovar: reference-free k-mer novelty de novo variant caller

Usage: denovar --case=FASTQ --ctrl=FASTQ[,FASTQ...] --ref=FASTA --out=VCF [flags]

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

func run() int {
	var f flags
	flag.Usage = usage
	flag.StringVar(&f.casePath, "case", "", "FASTQ file for the proband (case) sample")
	flag.StringVar(&f.ctrlPaths, "ctrl", "", "comma-separated FASTQ files for control samples (e.g. parents)")
	flag.StringVar(&f.refPath, "ref", "", "reference genome FASTA")
	flag.StringVar(&f.outPath, "out", "", "output VCF path")
	flag.IntVar(&f.k, "k", 25, "k-mer length")
	flag.IntVar(&f.caseMin, "case-min", 5, "minimum case-sketch count for a k-mer to be considered abundant")
	flag.IntVar(&f.ctrlMax, "ctrl-max", 1, "maximum control-sketch count for a k-mer to be considered absent")
	flag.Int64Var(&f.sketchBytes, "sketch-bytes", 256<<20, "target size in bytes of each sketch")
	flag.IntVar(&f.hashes, "hashes", 4, "number of hash functions per sketch")
	flag.IntVar(&f.parallelism, "parallelism", 4, "number of partitions processed concurrently")

	cleanup := grail.Init()
	defer cleanup()

	flag.Parse()
	if f.casePath == "" || f.ctrlPaths == "" || f.refPath == "" || f.outPath == "" {
		usage()
		return exitUsageError
	}

	if err := denovar(f); err != nil {
		log.Error.Printf("denovar: %v", err)
		return classifyError(err)
	}
	return exitSuccess
}

func classifyError(err error) int {
	switch err.(type) {
	case *malformedInputError:
		return exitMalformed
	case *ioError:
		return exitIOError
	default:
		return exitInternalError
	}
}

type malformedInputError struct{ error }
type ioError struct{ error }

func openFastqReads(path string) (func() (reads.Read, bool), func() error, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, &ioError{err}
	}
	scanner := fastq.NewScanner(fh, fastq.All)
	next := func() (reads.Read, bool) {
		var r fastq.Read
		if !scanner.Scan(&r) {
			return reads.Read{}, false
		}
		return reads.Read{ID: r.ID, Sequence: r.Seq, Qualities: r.Qual}, true
	}
	return next, fh.Close, nil
}

func buildSketch(path string, k int, targetBytes uint64, hashes int) (*sketch.Sketch, count.Stats, error) {
	next, closeFn, err := openFastqReads(path)
	if err != nil {
		return nil, count.Stats{}, err
	}
	defer closeFn()
	s := sketch.New(sketch.Opts{Kind: sketch.Counting, K: k, TargetBytes: targetBytes, Hashes: hashes})
	stats := count.Run(s, count.Opts{K: k}, next)
	return s, stats, nil
}

func denovar(f flags) error {
	caseSketch, caseStats, err := buildSketch(f.casePath, f.k, uint64(f.sketchBytes), f.hashes)
	if err != nil {
		return err
	}
	log.Printf("denovar: case sketch built: %d reads, %d kmers stored, FPR=%.4f",
		caseStats.ReadsProcessed, caseStats.KmersStored, count.FPR(caseSketch))

	var ctrlSketches []*sketch.Sketch
	for _, p := range strings.Split(f.ctrlPaths, ",") {
		s, stats, err := buildSketch(p, f.k, uint64(f.sketchBytes), f.hashes)
		if err != nil {
			return err
		}
		log.Printf("denovar: control sketch %s built: %d reads, %d kmers stored", p, stats.ReadsProcessed, stats.KmersStored)
		ctrlSketches = append(ctrlSketches, s)
	}

	refFile, err := os.Open(f.refPath)
	if err != nil {
		return &ioError{err}
	}
	defer refFile.Close()
	ref, err := refindex.New(refFile, refindex.OptClean)
	if err != nil {
		return &malformedInputError{err}
	}
	seedIdx := refindex.BuildSeedIndex(ref, f.k, f.k)

	caseNext, closeCase, err := openFastqReads(f.casePath)
	if err != nil {
		return err
	}
	defer closeCase()

	filter := novel.New(caseSketch, ctrlSketches, novel.Opts{
		K: f.k, CaseMin: uint16(f.caseMin), CtrlMax: uint16(f.ctrlMax),
	})

	var novelReads []reads.AugmentedRead
	for {
		r, ok := caseNext()
		if !ok {
			break
		}
		ar, ok := filter.Scan(r)
		if ok {
			novelReads = append(novelReads, ar)
		}
	}
	log.Printf("denovar: %d reads carry novel k-mers", len(novelReads))

	novelReads, err = spillAugmented(novelReads, f.k)
	if err != nil {
		return &malformedInputError{err}
	}

	freshCase := refine.BuildFreshCase(f.k, uint64(f.sketchBytes)/16, f.hashes, sliceIterator(novelReads))
	refSketch := sketch.NewKeyed(sketch.Opts{Kind: sketch.Presence, K: f.k, TargetBytes: uint64(f.sketchBytes), Hashes: f.hashes})
	refScanner := kmer.NewScanner(f.k)
	for _, name := range ref.SeqNames() {
		n, _ := ref.Len(name)
		seq, err := ref.Get(name, 0, n)
		if err != nil {
			continue
		}
		refScanner.Reset(seq)
		for refScanner.Scan() {
			refSketch.Add(refScanner.Canonical())
		}
	}
	refiner := refine.New(refSketch, freshCase, nil, refine.Opts{CaseMin: uint16(f.caseMin)})
	refined := make([]reads.AugmentedRead, 0, len(novelReads))
	for _, ar := range novelReads {
		if out, ok := refiner.Process(ar); ok {
			refined = append(refined, out)
		}
	}
	log.Printf("denovar: %d reads survive refinement", len(refined))

	parts := partition.Run(refined, partition.Opts{MinSharedKmers: 2})
	log.Printf("denovar: %d partitions", len(parts))

	outFile, err := os.Create(f.outPath)
	if err != nil {
		return &ioError{err}
	}
	defer outFile.Close()
	vw := vcfio.NewWriter(outFile)
	if err := vw.WriteHeader("proband"); err != nil {
		return &ioError{err}
	}

	cfg := pipeline.Config{
		Localize:    localize.Opts{Spacing: f.k / 2, ClusterGap: 200, Pad: 50},
		Align:       call.DefaultAlignOpts,
		Call:        call.DefaultOpts,
		Likelihood:  likelihood.Opts{MinDeNovoLogOdds: 5},
		Depth:       likelihood.EstimateDepthModel(nil),
		Parallelism: f.parallelism,
	}
	cfg.Call.K = f.k
	cfg.Assemble.K = f.k

	parentAbundance := func(c call.Call) (father, mother float64) {
		if len(ctrlSketches) == 0 {
			return 0, 0
		}
		scanner := kmer.NewScanner(f.k)
		scanner.Reset(c.VW)
		if !scanner.Scan() {
			return 0, 0
		}
		canon := scanner.Canonical()
		father = float64(ctrlSketches[0].Count(canon))
		if len(ctrlSketches) > 1 {
			mother = float64(ctrlSketches[1].Count(canon))
		}
		return father, mother
	}

	summary, err := pipeline.Run(parts, seedIdx, ref, parentAbundance, cfg, func(res pipeline.Result) error {
		for _, cr := range res.Calls {
			filters := []vcfio.Filter{}
			if !cr.Passed {
				filters = append(filters, vcfio.FilterLikelihoodFail)
			}
			rec := vcfio.Record{
				Chrom:         cr.Window.SeqName,
				Pos:           int(cr.Window.Start) + cr.Call.RefStart + 1,
				Call:          cr.Call,
				SupportKmers:  cr.Call.SupportingKmers,
				LikelihoodLog: cr.Likelihood.DeNovoLogOdds,
				Filters:       filters,
			}
			if err := vw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := vw.Flush(); err != nil {
		return &ioError{err}
	}
	log.Printf("denovar: done. %d partitions processed, %d partitions failed, %d calls emitted, %d filtered",
		summary.PartitionsProcessed, summary.PartitionsFailed, summary.CallsEmitted, summary.CallsFiltered)
	return nil
}

// spillAugmented round-trips ars through the augmented FASTX wire format
// (spec.md §6), the format every stage from Novel onward reads and writes.
// Stages here share one process and one slice in memory, but serializing
// the Novel-to-Refine handoff through augfastx keeps that boundary
// interchangeable with the out-of-process form spec.md §5 allows.
func spillAugmented(ars []reads.AugmentedRead, k int) ([]reads.AugmentedRead, error) {
	var buf bytes.Buffer
	w := augfastx.NewWriter(&buf, k)
	for _, ar := range ars {
		if err := w.Write(ar); err != nil {
			return nil, err
		}
	}

	s := augfastx.NewScanner(&buf)
	out := make([]reads.AugmentedRead, 0, len(ars))
	for {
		var ar reads.AugmentedRead
		if !s.Scan(&ar) {
			break
		}
		out = append(out, ar)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func sliceIterator(ars []reads.AugmentedRead) func() (reads.AugmentedRead, bool) {
	i := 0
	return func() (reads.AugmentedRead, bool) {
		if i >= len(ars) {
			return reads.AugmentedRead{}, false
		}
		ar := ars[i]
		i++
		return ar, true
	}
}
