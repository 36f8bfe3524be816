package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey and identical configuration
// MUST release bit-for-bit identical randomized answers.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemMechanism is the RNG subsystem for mechanisms applied outside a node.
	SubsystemMechanism = "mechanism"

	// SubsystemOracle is the RNG subsystem for population oracles.
	SubsystemOracle = "oracle"

	// SubsystemSampler is the RNG subsystem for the sensitivity sampler.
	SubsystemSampler = "sampler"
)

// SubsystemNode returns the subsystem name for node id.
// Every node draws mechanism noise from its own stream, so adding a node
// never shifts the answers of the others.
func SubsystemNode(id string) string {
	return fmt.Sprintf("node_%s", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
// It is the run-scoped reproducibility state: build one per simulation run,
// pass it by reference, and call Teardown before reusing it for an
// independent run.
//
// Derivation formula: stream seeds are (masterSeed, fnv1a64(subsystemName))
// fed into a PCG generator.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached)
// until Teardown is called. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewPCG(uint64(p.key), fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// Teardown drops every cached stream. The next ForSubsystem call for a
// name restarts that stream from its first value.
func (p *PartitionedRNG) Teardown() {
	clear(p.subsystems)
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
