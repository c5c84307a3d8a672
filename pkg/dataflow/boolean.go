package dataflow

// combineMasks merges the retained masks of two or more filter-like
// predecessors with logical AND or OR. Every predecessor must have
// computed a mask against the same base table; masks over a different
// base table, or of a different length, are rejected.
//
// The combined mask is computed eagerly; applying it to the base table is
// left to the caller so and/or output can materialize lazily.
func combineMasks(kind NodeKind, predecessors []*ExecutionRecord) (Mask, *Table, error) {
	if len(predecessors) < 2 {
		return nil, nil, dependencyErrorf("%s node requires at least 2 predecessor filters", kind)
	}

	for _, pred := range predecessors {
		if pred.Err != nil {
			return nil, nil, dependencyErrorf("%s node depends on failed node %q", kind, pred.NodeID)
		}
		if pred.mask == nil {
			return nil, nil, dependencyErrorf(
				"%s node predecessor %q has no mask; only filter, and, or nodes can feed it", kind, pred.NodeID)
		}
	}

	base := predecessors[0].base
	combined := make(Mask, len(predecessors[0].mask))
	copy(combined, predecessors[0].mask)

	for _, pred := range predecessors[1:] {
		if pred.base != base {
			return nil, nil, dependencyErrorf(
				"%s node predecessors filter different base tables", kind)
		}
		if len(pred.mask) != len(combined) {
			return nil, nil, dependencyErrorf(
				"%s node masks disagree in length (%d vs %d); all predecessors must filter the same base table",
				kind, len(combined), len(pred.mask))
		}
		for i, keep := range pred.mask {
			if kind == NodeKindAnd {
				combined[i] = combined[i] && keep
			} else {
				combined[i] = combined[i] || keep
			}
		}
	}

	return combined, base, nil
}
