package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every grant and denial made by a ledger.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// LedgerTrace collects ledger decision records during a simulation run.
// A single trace may be shared by every node of a run.
type LedgerTrace struct {
	Config  TraceConfig
	Queries []QueryRecord
}

// NewLedgerTrace creates a LedgerTrace ready for recording.
func NewLedgerTrace(config TraceConfig) *LedgerTrace {
	return &LedgerTrace{
		Config:  config,
		Queries: make([]QueryRecord, 0),
	}
}

// Enabled reports whether records should be collected.
func (lt *LedgerTrace) Enabled() bool {
	return lt != nil && lt.Config.Level == TraceLevelDecisions
}

// RecordQuery appends a ledger decision record and assigns its sequence number.
func (lt *LedgerTrace) RecordQuery(record QueryRecord) {
	record.Seq = len(lt.Queries) + 1
	lt.Queries = append(lt.Queries, record)
}
