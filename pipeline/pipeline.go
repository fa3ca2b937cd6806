// Package pipeline wires stages F through I into one worker-pooled run
// over a set of partitions (spec.md §5): assemble, localize, align, call,
// and score, writing results through a single mutex-guarded sink.
package pipeline

import (
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/grailbio/denovar/assemble"
	"github.com/grailbio/denovar/call"
	"github.com/grailbio/denovar/likelihood"
	"github.com/grailbio/denovar/localize"
	"github.com/grailbio/denovar/partition"
	"github.com/grailbio/denovar/refindex"
)

// Config bundles the per-stage options the pipeline threads through.
type Config struct {
	Assemble   assemble.Opts
	Localize   localize.Opts
	Align      call.AlignOpts
	Call       call.Opts
	Likelihood likelihood.Opts
	Depth      likelihood.DepthModel
	// Parallelism is the number of concurrent worker goroutines
	// (spec.md §5: "a fixed-size worker pool processes partitions
	// independently").
	Parallelism int
}

// Result is everything produced for one partition.
type Result struct {
	Partition partition.Partition
	Contig    assemble.Contig
	Windows   []localize.Window
	Calls     []CallResult
}

// CallResult pairs an extracted call with the window it was localized
// against and its trio likelihood evaluation.
type CallResult struct {
	Window     localize.Window
	Call       call.Call
	Likelihood likelihood.TrioResult
	Passed     bool
}

// RunSummary reports aggregate counters for one pipeline run (spec.md §7).
type RunSummary struct {
	PartitionsProcessed uint64
	PartitionsFailed    uint64
	CallsEmitted        uint64
	CallsFiltered       uint64
}

// ParentAbundance looks up a parent sample's k-mer abundance for the
// variant allele of a call, used to feed the likelihood model. The first
// return value is the father's abundance, the second the mother's.
type ParentAbundance func(c call.Call) (father, mother float64)

// Run processes every partition in parts through assemble -> localize ->
// align -> extract calls -> score, using a fixed worker pool, and invokes
// write for each partition's Result under a single mutex so callers don't
// need their own synchronization (spec.md §5: "output order need not match
// input order unless Sort is requested upstream"). ref resolves each
// localize.Window to its reference bases for alignment.
func Run(
	parts []partition.Partition,
	idx *refindex.SeedIndex,
	ref refindex.Reference,
	parentAbundance ParentAbundance,
	cfg Config,
	write func(Result) error,
) (RunSummary, error) {
	parallelism := cfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	assembler := assemble.New(cfg.Assemble)

	var (
		mu       sync.Mutex
		summary  RunSummary
		writeErr error
	)

	err := traverse.Each(parallelism, func(i int) error {
		p := parts[i]
		contig, err := assembler.Assemble(p)
		if err != nil {
			mu.Lock()
			summary.PartitionsFailed++
			mu.Unlock()
			log.Error.Printf("pipeline: assembling partition %s: %v", p.Label, err)
			return nil
		}

		windows := localize.Locate(p, idx, cfg.Localize)
		res := Result{Partition: p, Contig: contig, Windows: windows}

		for _, w := range windows {
			refSeq, err := ref.Get(w.SeqName, w.Start, w.End)
			if err != nil {
				continue
			}
			aln := call.Align(contig.Sequence, refSeq, cfg.Align)
			calls := call.ExtractCalls(aln, contig.Sequence, refSeq, contig.NovelKmers, cfg.Call)
			for _, c := range calls {
				father, mother := parentAbundance(c)
				lr := likelihood.Evaluate(father, mother, cfg.Depth)
				passed := lr.Passes(cfg.Likelihood)
				res.Calls = append(res.Calls, CallResult{Window: w, Call: c, Likelihood: lr, Passed: passed})
				mu.Lock()
				summary.CallsEmitted++
				if !passed {
					summary.CallsFiltered++
				}
				mu.Unlock()
			}
		}

		mu.Lock()
		summary.PartitionsProcessed++
		if writeErr == nil {
			writeErr = write(res)
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return summary, err
	}
	return summary, writeErr
}
