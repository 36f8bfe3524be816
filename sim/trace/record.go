// Package trace provides decision-trace recording for privacy ledger analysis.
// It has no dependencies on sim/: nodes push QueryRecords into a LedgerTrace
// or LedgerMetrics, and ExportSQLite persists a finished trace.
package trace

// QueryRecord captures a single ledger decision for a differentially
// private query.
type QueryRecord struct {
	NodeID   string
	Property string
	Seq      int // per-trace attempt counter, starting at 1
	Granted  bool
	Reason   string
	Epsilon  float64 // cost of this attempt
	Delta    float64
	// SpentEpsilon and SpentDelta are the basic-composition totals after the
	// decision (a denied attempt leaves them unchanged).
	SpentEpsilon float64
	SpentDelta   float64
}
