package kg

import "strings"

// LabelIndex maps normalized node labels to node ids. It is built once at
// graph load time so entity resolution never scans the node set per query.
type LabelIndex struct {
	graph  *Graph
	byNorm map[string]string // normalized label -> node id
	norms  []string          // normalized labels in node insertion order
}

// BuildIndex constructs the label index for a graph.
func BuildIndex(g *Graph) *LabelIndex {
	idx := &LabelIndex{
		graph:  g,
		byNorm: make(map[string]string, g.NodeCount()),
	}
	for _, node := range g.Nodes() {
		norm := NormalizeLabel(node.Label)
		if _, exists := idx.byNorm[norm]; exists {
			continue // first label wins
		}
		idx.byNorm[norm] = node.ID
		idx.norms = append(idx.norms, norm)
	}
	return idx
}

// NormalizeLabel lowercases a label and collapses runs of whitespace,
// hyphens and underscores to single spaces.
func NormalizeLabel(label string) string {
	fields := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '-' || r == '_'
	})
	return strings.Join(fields, " ")
}

// Resolve finds the node for an exact (normalized) label match.
func (idx *LabelIndex) Resolve(label string) (*Node, bool) {
	id, ok := idx.byNorm[NormalizeLabel(label)]
	if !ok {
		return nil, false
	}
	return idx.graph.Node(id), true
}

// ResolveFuzzy finds the best node for a label, falling back to token-overlap
// scoring when no exact match exists. Candidates scoring below minScore are
// rejected. Ties resolve to the earliest-inserted node, which keeps
// resolution deterministic.
func (idx *LabelIndex) ResolveFuzzy(label string, minScore float64) (*Node, float64, bool) {
	norm := NormalizeLabel(label)
	if norm == "" {
		return nil, 0, false
	}
	if id, ok := idx.byNorm[norm]; ok {
		return idx.graph.Node(id), 1.0, true
	}

	queryTokens := strings.Fields(norm)
	var bestID string
	bestScore := 0.0
	for _, candidate := range idx.norms {
		score := overlapScore(queryTokens, strings.Fields(candidate))
		if score > bestScore {
			bestScore = score
			bestID = idx.byNorm[candidate]
		}
	}
	if bestID == "" || bestScore < minScore {
		return nil, 0, false
	}
	return idx.graph.Node(bestID), bestScore, true
}

// Labels returns the original labels of all indexed nodes, longest first so
// that substring scans prefer the most specific entity ("Outflow Vein"
// before "Vein"). Order among equal lengths follows node insertion order.
func (idx *LabelIndex) Labels() []string {
	labels := make([]string, 0, len(idx.norms))
	for _, norm := range idx.norms {
		labels = append(labels, idx.graph.Node(idx.byNorm[norm]).Label)
	}
	// insertion sort by descending length, stable
	for i := 1; i < len(labels); i++ {
		for j := i; j > 0 && len(labels[j]) > len(labels[j-1]); j-- {
			labels[j], labels[j-1] = labels[j-1], labels[j]
		}
	}
	return labels
}

// overlapScore is the fraction of query tokens present in the candidate,
// scaled down when the candidate has many extra tokens.
func overlapScore(query, candidate []string) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(candidate))
	for _, tok := range candidate {
		set[tok] = struct{}{}
	}
	hits := 0
	for _, tok := range query {
		if _, ok := set[tok]; ok {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	precision := float64(hits) / float64(len(candidate))
	recall := float64(hits) / float64(len(query))
	return 2 * precision * recall / (precision + recall)
}
