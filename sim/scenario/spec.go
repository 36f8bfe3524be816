package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fedsim/fedsim/sim"
	"github.com/fedsim/fedsim/sim/trace"
)

// ScenarioSpec is the top-level scenario configuration.
// Loaded from YAML via LoadScenarioSpec(path).
type ScenarioSpec struct {
	Version     string        `yaml:"version"`
	Seed        int64         `yaml:"seed"`
	Data        DataSpec      `yaml:"data"`
	Privacy     PrivacySpec   `yaml:"privacy"`
	Mechanism   MechanismSpec `yaml:"mechanism"`
	Sensitivity *SamplerSpec  `yaml:"sensitivity_sampling,omitempty"`
	MaxQueries  int           `yaml:"max_queries"`
	Trace       string        `yaml:"trace,omitempty"`
}

// DataSpec describes the synthetic dataset federated across nodes.
type DataSpec struct {
	Identifier string     `yaml:"identifier"`
	Records    int        `yaml:"records"`
	Nodes      int        `yaml:"nodes"`
	Oracle     OracleSpec `yaml:"oracle"`
	// Threshold, when set, turns every record into 1 if it is >= the
	// threshold and 0 otherwise, e.g. for randomized response.
	Threshold *float64 `yaml:"threshold,omitempty"`
}

// OracleSpec parameterizes the population records are drawn from.
type OracleSpec struct {
	Type       string                 `yaml:"type"`
	Mean       float64                `yaml:"mean"`
	Std        float64                `yaml:"std"`
	Components []sim.MixtureComponent `yaml:"components,omitempty"`
}

// PrivacySpec holds the per-node budget. A nil Budget makes every node
// unprotected.
type PrivacySpec struct {
	Budget      []float64 `yaml:"budget,omitempty"` // [epsilon, delta]
	Composition string    `yaml:"composition,omitempty"`
}

// MechanismSpec selects the mechanism every node applies to its share.
type MechanismSpec struct {
	Type           string        `yaml:"type"`
	Query          string        `yaml:"query,omitempty"`
	Sensitivity    *float64      `yaml:"sensitivity,omitempty"`
	Epsilon        *float64      `yaml:"epsilon,omitempty"`
	Delta          *float64      `yaml:"delta,omitempty"`
	ProbHeadFirst  *float64      `yaml:"prob_head_first,omitempty"`
	ProbHeadSecond *float64      `yaml:"prob_head_second,omitempty"`
	F0             *float64      `yaml:"f0,omitempty"`
	F1             *float64      `yaml:"f1,omitempty"`
	ResponseSpace  []float64     `yaml:"response_space,omitempty"`
	Size           int           `yaml:"size,omitempty"` // exponential draws per query (default 1)
	Sampling       *SamplingSpec `yaml:"sampling,omitempty"`
}

// SamplingSpec wraps the mechanism in sub-sampling amplification.
type SamplingSpec struct {
	Method     string `yaml:"method"`
	SampleSize int    `yaml:"sample_size"`
}

// SamplerSpec configures sensitivity sampling when the mechanism's
// sensitivity is not given explicitly.
type SamplerSpec struct {
	M     *int     `yaml:"m,omitempty"`
	Gamma *float64 `yaml:"gamma,omitempty"`
	Norm  string   `yaml:"norm,omitempty"`
}

// Valid value registries.
// Shared by Validate() and the New* factories in build.go.
var (
	// ValidMechanisms is the set of recognized mechanism types.
	ValidMechanisms = map[string]bool{
		"": true, "none": true, "laplace": true, "gaussian": true,
		"randomized-response-coins": true, "randomized-response-binary": true, "exponential": true,
	}
	// ValidQueries is the set of recognized query names.
	ValidQueries = map[string]bool{"": true, "identity": true, "mean": true}
	// ValidNorms is the set of recognized sensitivity norms.
	ValidNorms = map[string]bool{"": true, "l1": true, "l2": true}
	// ValidOracles is the set of recognized population oracles.
	ValidOracles = map[string]bool{"": true, "normal": true, "mixture": true}
	// ValidSamplingMethods is the set of recognized sub-sampling methods.
	ValidSamplingMethods = map[string]bool{"": true, "none": true, "without-replacement": true, "with-replacement": true}
)

// sensitivityMechanisms need a sensitivity, given or sampled.
var sensitivityMechanisms = map[string]bool{"laplace": true, "gaussian": true, "exponential": true}

// LoadScenarioSpec reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenarioSpec(path string) (*ScenarioSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var spec ScenarioSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &spec, nil
}

// IsPrivate reports whether the scenario applies a differentially private
// mechanism.
func (s *ScenarioSpec) IsPrivate() bool {
	return s.Mechanism.Type != "" && s.Mechanism.Type != "none"
}

// Budget returns the parsed node budget, or nil for unprotected scenarios.
func (s *ScenarioSpec) Budget() (*sim.EpsilonDelta, error) {
	if s.Privacy.Budget == nil {
		return nil, nil
	}
	ed, err := sim.ParseEpsilonDelta(s.Privacy.Budget)
	if err != nil {
		return nil, fmt.Errorf("privacy.budget: %w", err)
	}
	budget, err := sim.NewPrivacyBudget(ed.Epsilon, ed.Delta)
	if err != nil {
		return nil, fmt.Errorf("privacy.budget: %w", err)
	}
	return &budget, nil
}

// Validate checks that all fields in the spec are valid.
func (s *ScenarioSpec) Validate() error {
	if err := s.Data.validate(); err != nil {
		return err
	}
	budget, err := s.Budget()
	if err != nil {
		return err
	}
	if !sim.IsValidCompositionRule(s.Privacy.Composition) {
		return fmt.Errorf("privacy.composition: unknown rule %q; valid: basic, advanced, adaptive", s.Privacy.Composition)
	}
	if s.IsPrivate() && budget == nil {
		return fmt.Errorf("mechanism %q needs privacy.budget", s.Mechanism.Type)
	}
	if !s.IsPrivate() && budget != nil {
		return fmt.Errorf("privacy.budget is set, so mechanism.type must be differentially private")
	}
	if err := s.Mechanism.validate(s.Sensitivity != nil, s.Data.Records/s.Data.Nodes); err != nil {
		return err
	}
	if s.Sensitivity != nil {
		if !ValidNorms[s.Sensitivity.Norm] {
			return fmt.Errorf("sensitivity_sampling.norm: unknown norm %q; valid: l1, l2", s.Sensitivity.Norm)
		}
		if s.Sensitivity.M == nil && s.Sensitivity.Gamma == nil {
			return fmt.Errorf("sensitivity_sampling needs m, gamma, or both")
		}
	}
	if s.MaxQueries <= 0 {
		return fmt.Errorf("max_queries must be positive, got %d", s.MaxQueries)
	}
	if !trace.IsValidTraceLevel(s.Trace) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions", s.Trace)
	}
	return nil
}

func (d *DataSpec) validate() error {
	if d.Identifier == "" {
		return fmt.Errorf("data.identifier must not be empty")
	}
	if d.Records <= 0 {
		return fmt.Errorf("data.records must be positive, got %d", d.Records)
	}
	if d.Nodes <= 0 || d.Nodes > d.Records {
		return fmt.Errorf("data.nodes must be in [1, %d], got %d", d.Records, d.Nodes)
	}
	if !ValidOracles[d.Oracle.Type] {
		return fmt.Errorf("data.oracle: unknown type %q; valid: normal, mixture", d.Oracle.Type)
	}
	if d.Oracle.Type == "mixture" && len(d.Oracle.Components) == 0 {
		return fmt.Errorf("data.oracle: mixture needs components")
	}
	if d.Oracle.Type != "mixture" {
		if err := validateFinitePositive("data.oracle.std", d.Oracle.Std); err != nil {
			return err
		}
	}
	return nil
}

func (m *MechanismSpec) validate(sampled bool, shareSize int) error {
	if !ValidMechanisms[m.Type] {
		return fmt.Errorf("mechanism: unknown type %q; valid: none, laplace, gaussian, randomized-response-coins, randomized-response-binary, exponential", m.Type)
	}
	if !ValidQueries[m.Query] {
		return fmt.Errorf("mechanism.query: unknown query %q; valid: identity, mean", m.Query)
	}
	if sensitivityMechanisms[m.Type] && m.Sensitivity == nil && !sampled {
		return fmt.Errorf("mechanism %q needs sensitivity or sensitivity_sampling", m.Type)
	}
	if m.Sensitivity != nil {
		if err := validateFinitePositive("mechanism.sensitivity", *m.Sensitivity); err != nil {
			return err
		}
	}
	switch m.Type {
	case "laplace", "exponential", "randomized-response-binary":
		if m.Epsilon == nil {
			return fmt.Errorf("mechanism %q needs epsilon", m.Type)
		}
	case "gaussian":
		if m.Epsilon == nil || m.Delta == nil {
			return fmt.Errorf("mechanism %q needs epsilon and delta", m.Type)
		}
	}
	if m.Type == "randomized-response-binary" && (m.F0 == nil || m.F1 == nil) {
		return fmt.Errorf("mechanism %q needs f0 and f1", m.Type)
	}
	if m.Type == "exponential" && len(m.ResponseSpace) == 0 {
		return fmt.Errorf("mechanism %q needs response_space", m.Type)
	}
	if m.Size < 0 {
		return fmt.Errorf("mechanism.size must be non-negative, got %d", m.Size)
	}
	if m.Sampling != nil {
		if !ValidSamplingMethods[m.Sampling.Method] {
			return fmt.Errorf("mechanism.sampling: unknown method %q; valid: none, without-replacement, with-replacement", m.Sampling.Method)
		}
		if m.Type == "" || m.Type == "none" {
			return fmt.Errorf("mechanism.sampling needs a differentially private mechanism")
		}
		if m.Sampling.Method != "" && m.Sampling.Method != "none" &&
			(m.Sampling.SampleSize < 1 || m.Sampling.SampleSize > shareSize) {
			return fmt.Errorf("mechanism.sampling.sample_size must be in [1, %d], got %d", shareSize, m.Sampling.SampleSize)
		}
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
