// Package sim provides the differential-privacy access-control core of the
// fedsim federated learning simulator.
//
// # Reading Guide
//
// Start with these three files to understand the access-control kernel:
//   - access.go: AccessPolicy, the query+mechanism pair bound to a property
//   - node.go: DataNode, the per-property privacy ledger and its query path
//   - composition.go: the rules that decide whether a ledger exceeds a budget
//
// # Architecture
//
// The sim package defines the value, mechanism and ledger types; the
// sub-packages build on them:
//   - sim/trace/: Ledger decision traces, Prometheus counters and SQLite export
//   - sim/scenario/: YAML scenario loading and the scenario runner
//
// All randomness flows from a PartitionedRNG created once per run. Each
// DataNode, oracle and sampler draws from its own named stream, so adding a
// node never shifts another node's noise.
//
// # Key Interfaces
//
// The extension points are single-method or small interfaces:
//   - Query: deterministic function of a private Value
//   - Mechanism / PrivateMechanism: randomize a Value, optionally with a cost
//   - CompositionRule: decide whether a ledger exceeds a budget
//   - SensitivityNorm: distance between two query answers
//   - Oracle: synthetic records for sensitivity sampling
//   - TrainableModel: parameter access for a node's hosted model
package sim
