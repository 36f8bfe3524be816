package sim

import "slices"

// AccessHistory is the ordered ledger of costs charged to one property.
// Entries are only appended, except that the most recent one may be popped
// to undo a denied access.
type AccessHistory struct {
	entries []EpsilonDelta
}

// Append charges cost to the property.
func (h *AccessHistory) Append(cost EpsilonDelta) {
	h.entries = append(h.entries, cost)
}

// Pop removes and returns the most recent entry. ok is false when empty.
func (h *AccessHistory) Pop() (cost EpsilonDelta, ok bool) {
	if len(h.entries) == 0 {
		return EpsilonDelta{}, false
	}
	last := len(h.entries) - 1
	cost = h.entries[last]
	h.entries = h.entries[:last]
	return cost, true
}

// Len returns the number of charged accesses.
func (h *AccessHistory) Len() int { return len(h.entries) }

// Entries returns a copy of the ledger in charge order.
func (h *AccessHistory) Entries() []EpsilonDelta { return slices.Clone(h.entries) }

// Spent returns the basic-composition total of the ledger.
func (h *AccessHistory) Spent() EpsilonDelta { return sumCosts(h.entries) }
