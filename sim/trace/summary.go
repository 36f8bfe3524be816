package trace

// PropertyKey identifies a property on a specific node.
type PropertyKey struct {
	NodeID   string
	Property string
}

// TraceSummary aggregates statistics from a LedgerTrace.
type TraceSummary struct {
	TotalDecisions int
	GrantedCount   int
	DeniedCount    int
	// SpentEpsilon holds the final spent epsilon per (node, property).
	SpentEpsilon map[PropertyKey]float64
	// FirstDenial holds the sequence number of the first denial per
	// (node, property); absent when the property was never denied.
	FirstDenial     map[PropertyKey]int
	MaxSpentEpsilon float64
}

// Summarize computes aggregate statistics from a LedgerTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(lt *LedgerTrace) *TraceSummary {
	summary := &TraceSummary{
		SpentEpsilon: make(map[PropertyKey]float64),
		FirstDenial:  make(map[PropertyKey]int),
	}
	if lt == nil {
		return summary
	}

	summary.TotalDecisions = len(lt.Queries)
	for _, q := range lt.Queries {
		key := PropertyKey{NodeID: q.NodeID, Property: q.Property}
		if q.Granted {
			summary.GrantedCount++
		} else {
			summary.DeniedCount++
			if _, seen := summary.FirstDenial[key]; !seen {
				summary.FirstDenial[key] = q.Seq
			}
		}
		summary.SpentEpsilon[key] = q.SpentEpsilon
	}
	for _, spent := range summary.SpentEpsilon {
		if spent > summary.MaxSpentEpsilon {
			summary.MaxSpentEpsilon = spent
		}
	}

	return summary
}
