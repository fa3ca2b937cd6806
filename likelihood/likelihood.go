// Package likelihood implements spec.md §4.I: scoring a candidate de novo
// call against trio k-mer abundances using a Normal approximation of
// Poisson sequencing depth, and deciding whether the call passes the
// likelihood filter.
package likelihood

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Genotype is one of the three diploid genotypes considered for a parent.
type Genotype int

const (
	HomRef Genotype = iota // 0/0
	Het                    // 0/1
	HomAlt                 // 1/1
)

func (g Genotype) String() string {
	switch g {
	case HomRef:
		return "0/0"
	case Het:
		return "0/1"
	case HomAlt:
		return "1/1"
	default:
		return "?"
	}
}

// copies returns the expected fraction of reads at a site carrying the
// variant allele under g, used to scale the per-copy mean depth.
func (g Genotype) copies() float64 {
	switch g {
	case HomRef:
		return 0
	case Het:
		return 0.5
	case HomAlt:
		return 1
	default:
		return 0
	}
}

// DepthModel estimates the mean and standard deviation of per-k-mer
// sequencing depth from a sample of background k-mer counts (spec.md §4.I:
// "mu and sigma are estimated from the case sample's overall k-mer
// abundance distribution").
type DepthModel struct {
	Mu, Sigma float64
}

// EstimateDepthModel fits mu/sigma over a set of representative k-mer
// counts using gonum's streaming mean/stddev, the same statistics package
// used elsewhere in the corpus for descriptive stats.
func EstimateDepthModel(counts []float64) DepthModel {
	if len(counts) == 0 {
		return DepthModel{Mu: 1, Sigma: 1}
	}
	mu, sigma := stat.MeanStdDev(counts, nil)
	if sigma <= 0 {
		sigma = 1
	}
	return DepthModel{Mu: mu, Sigma: sigma}
}

// genotypeLogLikelihood scores an observed abundance count against the
// Normal(mu*g, sigma*sqrt(g)) model for genotype g (spec.md §4.I), using
// gonum's distuv.Normal for the density evaluation. A hom-ref genotype
// with zero expected copies collapses to a point mass at 0.
func genotypeLogLikelihood(observed float64, g Genotype, m DepthModel) float64 {
	copies := g.copies()
	mean := m.Mu * copies
	if copies == 0 {
		if observed == 0 {
			return 0
		}
		// Penalize nonzero observations under a strict hom-ref model by the
		// same Normal shape used for the other genotypes, centered at 0 with
		// sigma scaled to the smallest supported copy number.
		copies = 0.5
	}
	dist := distuv.Normal{Mu: mean, Sigma: m.Sigma * math.Sqrt(copies)}
	return dist.LogProb(observed)
}

// TrioResult is the per-genotype likelihood evaluation for one parent at
// one candidate call.
type TrioResult struct {
	Father, Mother [3]float64 // indexed by Genotype
	// DeNovoLogOdds compares the best trio explanation including a de novo
	// event against the best explanation where the variant is inherited
	// (spec.md §4.I: "de novo log-likelihood score").
	DeNovoLogOdds float64
}

// Evaluate scores fatherObserved and motherObserved (the parental k-mer
// abundances at the call's variant k-mer) against m, and returns the
// per-genotype log-likelihoods together with a de novo log-odds score: the
// best parental explanation assuming inheritance (either parent
// heterozygous or homozygous alt) versus both parents strictly hom-ref.
func Evaluate(fatherObserved, motherObserved float64, m DepthModel) TrioResult {
	var r TrioResult
	for g := HomRef; g <= HomAlt; g++ {
		r.Father[g] = genotypeLogLikelihood(fatherObserved, g, m)
		r.Mother[g] = genotypeLogLikelihood(motherObserved, g, m)
	}
	bothHomRef := r.Father[HomRef] + r.Mother[HomRef]
	bestInherited := math.Inf(-1)
	for g := Het; g <= HomAlt; g++ {
		if v := r.Father[g] + r.Mother[HomRef]; v > bestInherited {
			bestInherited = v
		}
		if v := r.Father[HomRef] + r.Mother[g]; v > bestInherited {
			bestInherited = v
		}
	}
	r.DeNovoLogOdds = bothHomRef - bestInherited
	return r
}

// Opts configures the likelihood filter.
type Opts struct {
	// MinDeNovoLogOdds is the minimum DeNovoLogOdds a call must reach to
	// pass (spec.md §4.I: "LikelihoodFail" filter).
	MinDeNovoLogOdds float64
}

// Passes reports whether r's de novo evidence clears opts' threshold.
func (r TrioResult) Passes(opts Opts) bool {
	return r.DeNovoLogOdds >= opts.MinDeNovoLogOdds
}
