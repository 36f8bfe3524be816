package scenario

import (
	"errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/fedsim/fedsim/sim"
	"github.com/fedsim/fedsim/sim/trace"
)

// SensitivityEstimate is the outcome of sensitivity sampling.
type SensitivityEstimate struct {
	Certified float64
	Mean      float64
}

// Result summarizes a scenario run.
type Result struct {
	// RunID tags this run's exported decisions.
	RunID string
	// Sensitivity is nil when the scenario gave the sensitivity explicitly.
	Sensitivity *SensitivityEstimate
	// Rounds is the number of federated query rounds issued.
	Rounds    int
	Granted   int
	Denied    int
	Exhausted bool // every node ran out of budget before max_queries
	// RoundMeans holds, per round, the mean of the granted answers.
	RoundMeans []float64
	// Spent is the basic-composition total charged to each node.
	Spent   map[string]sim.EpsilonDelta
	Trace   *trace.LedgerTrace
	Summary *trace.TraceSummary
	// Metrics holds the run's ledger counters.
	Metrics *prometheus.Registry
}

// Run executes a validated scenario: draw the dataset from the oracle,
// federate it, configure the mechanism on every node, and query until every
// node is out of budget or max_queries rounds have been issued.
func Run(spec *ScenarioSpec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	budget, err := spec.Budget()
	if err != nil {
		return nil, err
	}

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(spec.Seed))
	defer rng.Teardown()

	oracle, err := NewOracle(spec.Data.Oracle, rng.ForSubsystem(sim.SubsystemOracle))
	if err != nil {
		return nil, err
	}
	records := sim.Vector(oracle.Sample(spec.Data.Records))

	level := trace.TraceLevel(spec.Trace)
	if level == "" {
		level = trace.TraceLevelNone
	}
	lt := trace.NewLedgerTrace(trace.TraceConfig{Level: level})
	reg := prometheus.NewRegistry()
	metrics, err := trace.NewLedgerMetrics(reg)
	if err != nil {
		return nil, err
	}

	registry := sim.NewIdentifierRegistry()
	fd, err := sim.FederateArray(registry, rng, spec.Data.Identifier, records, spec.Data.Nodes, sim.NodeConfig{
		Budget:      budget,
		Composition: spec.Privacy.Composition,
		Trace:       lt,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if spec.Data.Threshold != nil {
		if err := fd.ApplyFederatedTransformation(binarize(*spec.Data.Threshold)); err != nil {
			return nil, err
		}
	}

	result := &Result{
		RunID:   uuid.NewString(),
		Trace:   lt,
		Metrics: reg,
		Spent:   make(map[string]sim.EpsilonDelta),
	}
	shareSize := spec.Data.Records / spec.Data.Nodes

	var sensitivity float64
	if spec.Mechanism.Sensitivity == nil && spec.Sensitivity != nil {
		est, err := estimateSensitivity(spec, shareSize, rng)
		if err != nil {
			return nil, err
		}
		result.Sensitivity = est
		sensitivity = est.Certified
	}

	mech, err := NewMechanism(spec.Mechanism, sensitivity, shareSize)
	if err != nil {
		return nil, err
	}
	var policy sim.AccessPolicy
	if mech == nil {
		policy, err = sim.NewAccessPolicy(NewQuery(spec.Mechanism.Query), nil)
	} else {
		policy, err = sim.NewAccessPolicy(nil, mech)
	}
	if err != nil {
		return nil, err
	}
	if err := fd.ConfigureDataAccess(policy); err != nil {
		return nil, err
	}
	logrus.Infof("scenario %s: %d records on %d nodes, mechanism %q, budget %v", result.RunID, spec.Data.Records, fd.NumNodes(), spec.Mechanism.Type, spec.Privacy.Budget)

	for round := 1; round <= spec.MaxQueries; round++ {
		answers, qerr := fd.Query()
		if qerr != nil && !onlyBudgetDenials(qerr) {
			return nil, qerr
		}
		result.Rounds = round
		var means []float64
		for _, a := range answers {
			if a.Len() == 0 {
				result.Denied++
				continue
			}
			result.Granted++
			means = append(means, stat.Mean(a.Float64s(), nil))
		}
		if len(means) == 0 {
			result.Exhausted = true
			logrus.Infof("scenario: every node exhausted its budget in round %d", round)
			break
		}
		result.RoundMeans = append(result.RoundMeans, stat.Mean(means, nil))
	}

	for _, node := range fd.Nodes() {
		var spent sim.EpsilonDelta
		for _, c := range node.History(spec.Data.Identifier) {
			spent = spent.Add(c)
		}
		result.Spent[node.ID()] = spent
	}
	result.Summary = trace.Summarize(lt)
	return result, nil
}

// estimateSensitivity samples the sensitivity of the mechanism's query over
// databases of one node's size. The sampler draws from its own oracle
// stream so the federated records are unaffected.
func estimateSensitivity(spec *ScenarioSpec, shareSize int, rng *sim.PartitionedRNG) (*SensitivityEstimate, error) {
	oracle, err := NewOracle(spec.Data.Oracle, rng.ForSubsystem(sim.SubsystemSampler))
	if err != nil {
		return nil, err
	}
	cfg := sim.SamplerConfig{N: shareSize, M: spec.Sensitivity.M, Gamma: spec.Sensitivity.Gamma}
	certified, mean, err := sim.SensitivitySampler{}.SampleSensitivity(
		NewQuery(spec.Mechanism.Query), NewNorm(spec.Sensitivity.Norm), oracle, cfg)
	if err != nil {
		return nil, err
	}
	logrus.Infof("scenario: sampled sensitivity %.6g (mean %.6g)", certified, mean)
	return &SensitivityEstimate{Certified: certified, Mean: mean}, nil
}

// onlyBudgetDenials reports whether every error joined into err is a budget
// denial. Those end a node's participation; anything else aborts the run.
func onlyBudgetDenials(err error) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return errors.Is(err, sim.ErrBudgetExceeded)
	}
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, sim.ErrBudgetExceeded) {
			return false
		}
	}
	return true
}

func binarize(threshold float64) sim.Transformation {
	return func(v sim.Value) sim.Value {
		xs := v.Float64s()
		for i, x := range xs {
			if x >= threshold {
				xs[i] = 1
			} else {
				xs[i] = 0
			}
		}
		return sim.Vector(xs)
	}
}
