package sim

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Oracle produces independent synthetic records standing in for the unknown
// population the private data was drawn from.
type Oracle interface {
	// Sample returns count i.i.d. records.
	Sample(count int) []float64
}

// NormalDistribution is a Gaussian population oracle.
type NormalDistribution struct {
	dist distuv.Normal
}

// NewNormalDistribution creates a Normal(mean, std) oracle drawing from rng.
func NewNormalDistribution(mean, std float64, rng *rand.Rand) (*NormalDistribution, error) {
	if !(std > 0) {
		return nil, configErrorf("normal distribution needs a positive std, got %f", std)
	}
	return &NormalDistribution{dist: distuv.Normal{Mu: mean, Sigma: std, Src: rng}}, nil
}

func (d *NormalDistribution) Sample(count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = d.dist.Rand()
	}
	return out
}

// MixtureComponent is one (mean, std, weight) entry of a GaussianMixture.
type MixtureComponent struct {
	Mean   float64 `yaml:"mean"`
	Std    float64 `yaml:"std"`
	Weight float64 `yaml:"weight"`
}

// GaussianMixture draws each record from a component picked by weight.
type GaussianMixture struct {
	components []distuv.Normal
	pick       distuv.Categorical
}

// NewGaussianMixture normalizes the component weights.
func NewGaussianMixture(components []MixtureComponent, rng *rand.Rand) (*GaussianMixture, error) {
	if len(components) == 0 {
		return nil, configErrorf("gaussian mixture needs at least one component")
	}
	weights := make([]float64, len(components))
	normals := make([]distuv.Normal, len(components))
	for i, c := range components {
		if !(c.Std > 0) {
			return nil, configErrorf("mixture component %d needs a positive std, got %f", i, c.Std)
		}
		if !(c.Weight >= 0) {
			return nil, configErrorf("mixture component %d has negative weight %f", i, c.Weight)
		}
		weights[i] = c.Weight
		normals[i] = distuv.Normal{Mu: c.Mean, Sigma: c.Std, Src: rng}
	}
	if floats.Sum(weights) <= 0 {
		return nil, configErrorf("mixture weights must not all be zero")
	}
	return &GaussianMixture{components: normals, pick: distuv.NewCategorical(weights, rng)}, nil
}

func (g *GaussianMixture) Sample(count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = g.components[int(g.pick.Rand())].Rand()
	}
	return out
}
