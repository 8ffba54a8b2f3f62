package medgraph

// Fuse merges the outputs of both evidence channels into a single ordered,
// deduplicated set. Graph facts come first, then passages; within each kind
// the retrieval rank order is preserved. Scores are never compared across
// kinds.
func Fuse(passages []PassageEvidence, facts []GraphEvidence) *EvidenceSet {
	set := NewEvidenceSet()
	for _, fact := range facts {
		set.Add(GraphItem(fact))
	}
	for _, passage := range passages {
		set.Add(PassageItem(passage))
	}
	return set
}

// Truncate bounds a fused set to at most budget items. Because fused order is
// graph facts first, truncation deterministically prefers graph evidence and
// drops the lowest-ranked passages first. A budget of zero or less means
// unbounded.
func Truncate(set *EvidenceSet, budget int) *EvidenceSet {
	if budget <= 0 || set.Len() <= budget {
		return set
	}
	out := NewEvidenceSet()
	for _, item := range set.Items()[:budget] {
		out.Add(item)
	}
	return out
}
