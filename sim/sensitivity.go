package sim

import (
	"math"
	"slices"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// SamplerConfig controls how many neighbouring database pairs the
// SensitivitySampler draws. Nil pointer fields mean "not set".
type SamplerConfig struct {
	N     int      // records per database
	M     *int     // number of sampled pairs
	Gamma *float64 // target confidence gap
}

// samplerPlan is the resolved sample count and order statistic.
type samplerPlan struct {
	m     int
	k     int
	rho   float64
	gamma float64
}

// SensitivitySampler estimates the sensitivity of a query by sampling pairs
// of neighbouring databases from an oracle, following Rubinstein and Aldà,
// "Pain-Free Random Differential Privacy with Sensitivity Sampling" (ICML 2017).
type SensitivitySampler struct{}

// SampleSensitivity returns the k-th smallest of m sampled distances as the
// certified sensitivity bound, and the mean of all m distances.
// At least one of cfg.M and cfg.Gamma must be set.
func (SensitivitySampler) SampleSensitivity(query Query, norm SensitivityNorm, oracle Oracle, cfg SamplerConfig) (sensitivity, mean float64, err error) {
	if query == nil || norm == nil || oracle == nil {
		return 0, 0, configErrorf("sensitivity sampler needs a query, a norm and an oracle")
	}
	if cfg.N < 1 {
		return 0, 0, configErrorf("database size n must be at least 1, got %d", cfg.N)
	}
	plan, err := planSampler(cfg.M, cfg.Gamma)
	if err != nil {
		return 0, 0, err
	}
	logrus.Debugf("sensitivity sampler: n=%d m=%d k=%d rho=%.6f gamma=%.6f", cfg.N, plan.m, plan.k, plan.rho, plan.gamma)

	distances := make([]float64, plan.m)
	for i := range distances {
		shared := oracle.Sample(cfg.N - 1)
		extra := oracle.Sample(2)
		db1 := vectorOwned(append(slices.Clone(shared), extra[0]))
		db2 := vectorOwned(append(shared, extra[1]))
		distances[i] = norm.Compute(query.Get(db1), query.Get(db2))
	}
	mean = stat.Mean(distances, nil)
	slices.Sort(distances)
	return distances[plan.k-1], mean, nil
}

// planSampler resolves (m, k) from whichever of m and gamma are set.
//
// gamma only: rho = exp(W₋₁(-gamma/(2√e)) + 1/2), m = ⌈ln(1/rho) / (2(gamma-rho)²)⌉.
// m given:    rho = exp(W₋₁(-1/(4m)) / 2).
// In both cases gammaLo = rho + sqrt(ln(1/rho)/(2m)) and k = ⌈m(1 - gamma + gammaLo)⌉,
// except that m without gamma uses k = m.
func planSampler(m *int, gamma *float64) (samplerPlan, error) {
	if m == nil && gamma == nil {
		return samplerPlan{}, configErrorf("sensitivity sampler needs m, gamma, or both")
	}
	if gamma != nil && (math.IsNaN(*gamma) || *gamma <= 0 || *gamma >= 1) {
		return samplerPlan{}, configErrorf("gamma must be in (0,1), got %f", *gamma)
	}
	if m != nil && *m < 1 {
		return samplerPlan{}, configErrorf("m must be at least 1, got %d", *m)
	}

	var plan samplerPlan
	if m == nil {
		g := *gamma
		w := LambertWm1(-g / (2 * math.Exp(0.5)))
		if math.IsNaN(w) {
			return samplerPlan{}, configErrorf("gamma %f is too large to certify", g)
		}
		plan.rho = math.Exp(w + 0.5)
		plan.m = int(math.Ceil(math.Log(1/plan.rho) / (2 * math.Pow(g-plan.rho, 2))))
		plan.gamma = g
		plan.k = int(math.Ceil(float64(plan.m) * (1 - g + gammaLo(plan.rho, plan.m))))
	} else {
		plan.m = *m
		plan.rho = math.Exp(LambertWm1(-1/(4*float64(plan.m))) / 2)
		lo := gammaLo(plan.rho, plan.m)
		if gamma == nil {
			plan.gamma = lo
			plan.k = plan.m
		} else {
			plan.gamma = *gamma
			plan.k = int(math.Ceil(float64(plan.m) * (1 - *gamma + lo)))
		}
	}
	plan.k = max(1, min(plan.k, plan.m))
	return plan, nil
}

func gammaLo(rho float64, m int) float64 {
	return rho + math.Sqrt(math.Log(1/rho)/(2*float64(m)))
}
