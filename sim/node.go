package sim

import (
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/fedsim/fedsim/sim/trace"
)

// ModelParamsProperty is the ledger name under which model parameter
// queries are charged.
const ModelParamsProperty = "model_params"

// TrainableModel is the narrow view a node has of the learning model it hosts.
// Training and prediction stay with the orchestration layer.
type TrainableModel interface {
	ModelParams() []float64
	SetModelParams(params []float64)
}

// Transformation rewrites a private value inside its node, e.g. to normalize
// features or to simulate a poisoning attack.
type Transformation func(v Value) Value

// NodeConfig holds the fixed settings of a DataNode.
type NodeConfig struct {
	ID string
	// Budget is the node's (epsilon, delta) budget. Nil means the node only
	// accepts unprotected policies.
	Budget *EpsilonDelta
	// Composition names the rule in ValidCompositionRules; empty is adaptive.
	Composition string
	// Trace receives one record per private query attempt. May be nil.
	Trace *trace.LedgerTrace
	// Metrics counts private query attempts. May be nil.
	Metrics *trace.LedgerMetrics
}

// DataNode owns private values and answers queries on them through the
// configured access policies, charging private queries to a per-property
// ledger.
//
// Thread-safety: NOT thread-safe. A ledger append, check and rollback must
// not interleave with another query on the same node.
type DataNode struct {
	id          string
	budget      *EpsilonDelta
	composition CompositionRule
	trace       *trace.LedgerTrace
	metrics     *trace.LedgerMetrics
	rng         *rand.Rand

	privateData     map[string]Value
	privateTestData map[string]Value
	policies        map[string]AccessPolicy
	histories       map[string]*AccessHistory

	model TrainableModel
}

// NewDataNode creates an empty node whose randomness comes from the node's
// own stream of rng.
func NewDataNode(cfg NodeConfig, rng *PartitionedRNG) (*DataNode, error) {
	if rng == nil {
		return nil, configErrorf("node %q needs an RNG", cfg.ID)
	}
	if !IsValidCompositionRule(cfg.Composition) {
		return nil, configErrorf("unknown composition rule %q", cfg.Composition)
	}
	n := &DataNode{
		id:              cfg.ID,
		composition:     NewCompositionRule(cfg.Composition),
		trace:           cfg.Trace,
		metrics:         cfg.Metrics,
		rng:             rng.ForSubsystem(SubsystemNode(cfg.ID)),
		privateData:     make(map[string]Value),
		privateTestData: make(map[string]Value),
		policies:        make(map[string]AccessPolicy),
		histories:       make(map[string]*AccessHistory),
	}
	if cfg.Budget != nil {
		budget, err := NewPrivacyBudget(cfg.Budget.Epsilon, cfg.Budget.Delta)
		if err != nil {
			return nil, err
		}
		n.budget = &budget
	} else {
		// Without a budget the model parameters are readable as-is until
		// configured otherwise.
		n.policies[ModelParamsProperty] = UnprotectedAccess()
	}
	return n, nil
}

// ID returns the node identifier.
func (n *DataNode) ID() string { return n.id }

// EpsilonDelta returns the node budget; ok is false for a node without one.
func (n *DataNode) EpsilonDelta() (budget EpsilonDelta, ok bool) {
	if n.budget == nil {
		return EpsilonDelta{}, false
	}
	return *n.budget, true
}

// SetPrivateData stores a copy of v under name, replacing any previous value.
func (n *DataNode) SetPrivateData(name string, v Value) {
	n.privateData[name] = v.Clone()
}

// SetPrivateTestData stores a copy of v under name in the test partition.
func (n *DataNode) SetPrivateTestData(name string, v Value) {
	n.privateTestData[name] = v.Clone()
}

// PrivateTestData returns a copy of the named test value.
func (n *DataNode) PrivateTestData(name string) (Value, bool) {
	v, ok := n.privateTestData[name]
	return v.Clone(), ok
}

// ApplyDataTransformation replaces the named private value with t's output.
func (n *DataNode) ApplyDataTransformation(name string, t Transformation) error {
	v, ok := n.privateData[name]
	if !ok {
		return configErrorf("node %q has no private data %q", n.id, name)
	}
	n.privateData[name] = t(v.Clone()).Clone()
	return nil
}

// ConfigureDataAccess binds policy to the named property. A private policy
// needs a node budget and a node with a budget only takes private policies.
// The ledger of an already configured property is kept.
func (n *DataNode) ConfigureDataAccess(name string, policy AccessPolicy) error {
	if !policy.configured() {
		return configErrorf("access policy for %q is empty; build it with NewAccessPolicy", name)
	}
	_, private := policy.EpsilonDelta()
	switch {
	case private && n.budget == nil:
		return configErrorf("node %q has no privacy budget, cannot attach differentially private access to %q", n.id, name)
	case !private && n.budget != nil:
		return configErrorf("node %q has privacy budget %s, access to %q must be differentially private", n.id, *n.budget, name)
	}
	n.policies[name] = policy
	if _, ok := n.histories[name]; !ok {
		n.histories[name] = &AccessHistory{}
	}
	return nil
}

// Query releases the named property through its access policy.
func (n *DataNode) Query(name string) (Value, error) {
	policy, ok := n.policies[name]
	if !ok || name == ModelParamsProperty {
		return Value{}, configErrorf("data access to %q on node %q must be configured before querying", name, n.id)
	}
	data, ok := n.privateData[name]
	if !ok {
		return Value{}, configErrorf("node %q has no private data %q", n.id, name)
	}
	return n.release(name, policy, data)
}

// History returns a copy of the ledger of the named property.
func (n *DataNode) History(name string) []EpsilonDelta {
	h, ok := n.histories[name]
	if !ok {
		return nil
	}
	return h.Entries()
}

// SetModel attaches the model whose parameters this node serves.
func (n *DataNode) SetModel(model TrainableModel) {
	n.model = model
}

// SetModelParams pushes parameters into the hosted model.
func (n *DataNode) SetModelParams(params []float64) error {
	if n.model == nil {
		return configErrorf("node %q has no model", n.id)
	}
	n.model.SetModelParams(params)
	return nil
}

// ConfigureModelParamsAccess binds the policy used by QueryModelParams.
// The same budget pairing rules as ConfigureDataAccess apply.
func (n *DataNode) ConfigureModelParamsAccess(policy AccessPolicy) error {
	return n.ConfigureDataAccess(ModelParamsProperty, policy)
}

// QueryModelParams releases the hosted model's parameters through the
// model params policy, charging ModelParamsProperty when it is private.
func (n *DataNode) QueryModelParams() (Value, error) {
	if n.model == nil {
		return Value{}, configErrorf("node %q has no model", n.id)
	}
	policy, ok := n.policies[ModelParamsProperty]
	if !ok {
		return Value{}, configErrorf("model params access on node %q must be configured before querying", n.id)
	}
	if _, ok := n.histories[ModelParamsProperty]; !ok {
		n.histories[ModelParamsProperty] = &AccessHistory{}
	}
	return n.release(ModelParamsProperty, policy, Vector(n.model.ModelParams()))
}

// release applies policy to data. For a private policy the cost is appended
// to the ledger first and popped again if the composition rule rejects it or
// the mechanism fails, so a failed query leaves the ledger untouched.
func (n *DataNode) release(name string, policy AccessPolicy, data Value) (Value, error) {
	cost, private := policy.EpsilonDelta()
	if !private {
		return policy.apply(n.rng, data)
	}

	history := n.histories[name]
	spent := history.Spent()
	history.Append(cost)
	if n.composition.Exceeded(history.entries, *n.budget) {
		history.Pop()
		n.record(name, false, "budget exceeded", cost, spent)
		logrus.Warnf("node %s: denied query on %q costing %s, spent %s of %s", n.id, name, cost, spent, *n.budget)
		return Value{}, &BudgetExceededError{Property: name, Budget: *n.budget, Requested: cost, Spent: spent}
	}

	out, err := policy.apply(n.rng, data)
	if err != nil {
		history.Pop()
		n.record(name, false, err.Error(), cost, spent)
		return Value{}, err
	}
	n.record(name, true, "within budget", cost, history.Spent())
	logrus.Debugf("node %s: granted query on %q costing %s, spent %s of %s", n.id, name, cost, history.Spent(), *n.budget)
	return out, nil
}

func (n *DataNode) record(name string, granted bool, reason string, cost, spent EpsilonDelta) {
	if !n.trace.Enabled() && n.metrics == nil {
		return
	}
	r := trace.QueryRecord{
		NodeID:       n.id,
		Property:     name,
		Granted:      granted,
		Reason:       reason,
		Epsilon:      cost.Epsilon,
		Delta:        cost.Delta,
		SpentEpsilon: spent.Epsilon,
		SpentDelta:   spent.Delta,
	}
	n.metrics.Observe(r)
	if n.trace.Enabled() {
		n.trace.RecordQuery(r)
	}
}
