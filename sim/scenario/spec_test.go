package scenario

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedsim/fedsim/sim"
)

func float64Ptr(v float64) *float64 { return &v }
func intPtr(v int) *int             { return &v }

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// laplaceSpec is a valid private scenario tests tweak one field at a time.
func laplaceSpec() *ScenarioSpec {
	return &ScenarioSpec{
		Seed: 42,
		Data: DataSpec{
			Identifier: "heights",
			Records:    400,
			Nodes:      4,
			Oracle:     OracleSpec{Type: "normal", Mean: 175, Std: 7},
		},
		Privacy: PrivacySpec{Budget: []float64{1, 0}},
		Mechanism: MechanismSpec{
			Type:        "laplace",
			Query:       "mean",
			Sensitivity: float64Ptr(0.5),
			Epsilon:     float64Ptr(0.25),
		},
		MaxQueries: 10,
	}
}

func TestLoadScenarioSpec_ValidYAML(t *testing.T) {
	path := writeTempYAML(t, `
version: "1"
seed: 7
data:
  identifier: heights
  records: 1000
  nodes: 5
  oracle:
    type: normal
    mean: 175
    std: 7
privacy:
  budget: [1.0, 0.01]
  composition: adaptive
mechanism:
  type: gaussian
  query: mean
  epsilon: 0.1
  delta: 0.0001
  sampling:
    method: without-replacement
    sample_size: 100
sensitivity_sampling:
  gamma: 0.33
  norm: l1
max_queries: 20
trace: decisions
`)
	spec, err := LoadScenarioSpec(path)
	require.NoError(t, err)

	assert.Equal(t, int64(7), spec.Seed)
	assert.Equal(t, 5, spec.Data.Nodes)
	assert.Equal(t, []float64{1.0, 0.01}, spec.Privacy.Budget)
	assert.Equal(t, "gaussian", spec.Mechanism.Type)
	require.NotNil(t, spec.Mechanism.Delta)
	assert.Equal(t, 0.0001, *spec.Mechanism.Delta)
	assert.Nil(t, spec.Mechanism.Sensitivity, "sensitivity left to sampling")
	require.NotNil(t, spec.Sensitivity)
	assert.Nil(t, spec.Sensitivity.M)
	assert.Equal(t, 100, spec.Mechanism.Sampling.SampleSize)
	assert.NoError(t, spec.Validate())
}

func TestLoadScenarioSpec_UnknownFieldRejected(t *testing.T) {
	path := writeTempYAML(t, `
data:
  identifier: x
  records: 10
  nodes: 1
  oracle: {type: normal, mean: 0, std: 1}
mechanism:
  type: laplace
  epsilonn: 0.5
max_queries: 1
`)
	_, err := LoadScenarioSpec(path)
	assert.Error(t, err)
}

func TestLoadScenarioSpec_NonexistentFile(t *testing.T) {
	_, err := LoadScenarioSpec("/nonexistent/scenario.yaml")
	assert.Error(t, err)
}

func TestLoadScenarioSpec_MalformedYAML(t *testing.T) {
	_, err := LoadScenarioSpec(writeTempYAML(t, "{{invalid yaml"))
	assert.Error(t, err)
}

func TestScenarioSpec_Validate_Valid(t *testing.T) {
	assert.NoError(t, laplaceSpec().Validate())

	unprotected := laplaceSpec()
	unprotected.Privacy.Budget = nil
	unprotected.Mechanism = MechanismSpec{Type: "none", Query: "mean"}
	assert.NoError(t, unprotected.Validate())
}

func TestScenarioSpec_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *ScenarioSpec)
	}{
		{"unknown mechanism", func(s *ScenarioSpec) { s.Mechanism.Type = "rappor" }},
		{"unknown query", func(s *ScenarioSpec) { s.Mechanism.Query = "median" }},
		{"private mechanism without budget", func(s *ScenarioSpec) { s.Privacy.Budget = nil }},
		{"budget without private mechanism", func(s *ScenarioSpec) { s.Mechanism = MechanismSpec{Type: "none"} }},
		{"budget with three elements", func(s *ScenarioSpec) { s.Privacy.Budget = []float64{1, 0, 0} }},
		{"budget with zero epsilon", func(s *ScenarioSpec) { s.Privacy.Budget = []float64{0, 0} }},
		{"unknown composition", func(s *ScenarioSpec) { s.Privacy.Composition = "moments" }},
		{"laplace without epsilon", func(s *ScenarioSpec) { s.Mechanism.Epsilon = nil }},
		{"laplace without sensitivity", func(s *ScenarioSpec) { s.Mechanism.Sensitivity = nil }},
		{"negative sensitivity", func(s *ScenarioSpec) { s.Mechanism.Sensitivity = float64Ptr(-1) }},
		{"gaussian without delta", func(s *ScenarioSpec) { s.Mechanism.Type = "gaussian" }},
		{"binary response without f0", func(s *ScenarioSpec) { s.Mechanism.Type = "randomized-response-binary" }},
		{"exponential without response space", func(s *ScenarioSpec) { s.Mechanism.Type = "exponential" }},
		{"more nodes than records", func(s *ScenarioSpec) { s.Data.Nodes = 401 }},
		{"empty identifier", func(s *ScenarioSpec) { s.Data.Identifier = "" }},
		{"zero std", func(s *ScenarioSpec) { s.Data.Oracle.Std = 0 }},
		{"mixture without components", func(s *ScenarioSpec) { s.Data.Oracle.Type = "mixture" }},
		{"zero max queries", func(s *ScenarioSpec) { s.MaxQueries = 0 }},
		{"unknown trace level", func(s *ScenarioSpec) { s.Trace = "everything" }},
		{"sample larger than share", func(s *ScenarioSpec) {
			s.Mechanism.Sampling = &SamplingSpec{Method: "with-replacement", SampleSize: 101}
		}},
		{"unknown sampling method", func(s *ScenarioSpec) {
			s.Mechanism.Sampling = &SamplingSpec{Method: "poisson", SampleSize: 10}
		}},
		{"sensitivity sampling without m or gamma", func(s *ScenarioSpec) {
			s.Mechanism.Sensitivity = nil
			s.Sensitivity = &SamplerSpec{}
		}},
		{"unknown norm", func(s *ScenarioSpec) {
			s.Sensitivity = &SamplerSpec{M: intPtr(10), Norm: "linf"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := laplaceSpec()
			tt.mutate(spec)
			assert.Error(t, spec.Validate())
		})
	}
}

func TestScenarioSpec_UnsetFieldsStayNil(t *testing.T) {
	path := writeTempYAML(t, `
data:
  identifier: x
  records: 10
  nodes: 1
  oracle: {mean: 0, std: 1}
mechanism:
  type: none
max_queries: 1
`)
	spec, err := LoadScenarioSpec(path)
	require.NoError(t, err)

	assert.Nil(t, spec.Mechanism.Sensitivity)
	assert.Nil(t, spec.Privacy.Budget)
	assert.False(t, spec.IsPrivate())
	budget, err := spec.Budget()
	assert.NoError(t, err)
	assert.Nil(t, budget)
}

func TestNewQueryAndNorm(t *testing.T) {
	assert.NotNil(t, NewQuery(""))
	assert.NotNil(t, NewQuery("mean"))
	assert.NotNil(t, NewNorm("l2"))
	assert.Panics(t, func() { NewQuery("median") })
	assert.Panics(t, func() { NewNorm("linf") })
}

func TestNewMechanism_NoneIsNil(t *testing.T) {
	mech, err := NewMechanism(MechanismSpec{Type: "none"}, 0, 10)
	require.NoError(t, err)
	assert.Nil(t, mech)
}

func TestNewMechanism_SampledSensitivityFillsGap(t *testing.T) {
	// GIVEN a Laplace spec without an explicit sensitivity
	spec := MechanismSpec{Type: "laplace", Epsilon: float64Ptr(1)}

	// WHEN it is built with a sampled sensitivity and wrapped in sampling
	spec.Sampling = &SamplingSpec{Method: "without-replacement", SampleSize: 5}
	mech, err := NewMechanism(spec, 0.2, 10)

	// THEN the cost reflects the amplification
	require.NoError(t, err)
	private, ok := mech.(sim.PrivateMechanism)
	require.True(t, ok)
	assert.InDelta(t, math.Log(1+0.5*(math.E-1)), private.EpsilonDelta().Epsilon, 1e-12)
	_, err = NewMechanism(MechanismSpec{Type: "laplace", Epsilon: float64Ptr(1),
		Sampling: &SamplingSpec{Method: "with-replacement", SampleSize: 11}}, 0.2, 10)
	assert.Error(t, err)
}

func TestExampleScenarios_LoadAndValidate(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			spec, err := LoadScenarioSpec(path)
			require.NoError(t, err)
			assert.NoError(t, spec.Validate())
		})
	}
}
