package likelihood_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grailbio/denovar/likelihood"
)

func TestEstimateDepthModel(t *testing.T) {
	m := likelihood.EstimateDepthModel([]float64{28, 30, 32, 30, 30})
	assert.InDelta(t, 30, m.Mu, 1)
	assert.Greater(t, m.Sigma, 0.0)
}

func TestEvaluateFavorsDeNovoWhenParentsAbsent(t *testing.T) {
	m := likelihood.DepthModel{Mu: 30, Sigma: 4}
	r := likelihood.Evaluate(0, 0, m)
	assert.True(t, r.Passes(likelihood.Opts{MinDeNovoLogOdds: 0}))
}

func TestEvaluateRejectsWhenParentCarriesAllele(t *testing.T) {
	m := likelihood.DepthModel{Mu: 30, Sigma: 4}
	r := likelihood.Evaluate(15, 0, m) // father heterozygous-depth evidence
	assert.False(t, r.Passes(likelihood.Opts{MinDeNovoLogOdds: 5}))
}
