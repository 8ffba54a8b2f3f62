package medgraph

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Strategy identifies which retrieval path produced an answer.
type Strategy string

const (
	// StrategyVector indicates the answer was produced from passage evidence only.
	StrategyVector Strategy = "vector"
	// StrategyGraph indicates the answer was produced from graph evidence only.
	StrategyGraph Strategy = "graph"
	// StrategyHybrid indicates the answer was produced from both evidence kinds.
	StrategyHybrid Strategy = "hybrid"
	// StrategyFallback indicates no strategy cleared the confidence gate.
	StrategyFallback Strategy = "fallback"
)

// EvidenceKind distinguishes the two evidence variants.
type EvidenceKind string

const (
	// EvidencePassage marks evidence retrieved from the document corpus.
	EvidencePassage EvidenceKind = "passage"
	// EvidenceGraph marks evidence retrieved from the knowledge graph.
	EvidenceGraph EvidenceKind = "graph"
)

// Question is an immutable incoming question. Entities may be pre-extracted
// by the caller; when empty, the configured extractor runs instead.
type Question struct {
	Text     string   `json:"text"`
	Entities []string `json:"entities,omitempty"`
	TraceID  string   `json:"trace_id,omitempty"`
}

// PassageEvidence is a ranked chunk from semantic search over the corpus.
type PassageEvidence struct {
	DocumentID string  `json:"document_id"`
	Chunk      string  `json:"chunk"`
	Similarity float64 `json:"similarity"` // in [0,1]
}

// PathStep is one traversal hop: the relation followed and the node reached.
type PathStep struct {
	Relation string `json:"relation"`
	Node     string `json:"node"`
}

// GraphEvidence is a fact found by traversing the knowledge graph from a
// resolved entity node.
type GraphEvidence struct {
	NodeLabel string     `json:"node_label"`
	NodeType  string     `json:"node_type"`
	Path      []PathStep `json:"path"`
	Relevance float64    `json:"relevance"` // 1/(1+path length), in [0,1]
}

// EvidenceItem is the tagged variant over the two evidence kinds. Exactly one
// of Passage or Graph is non-nil, matching Kind.
type EvidenceItem struct {
	Kind    EvidenceKind     `json:"kind"`
	Passage *PassageEvidence `json:"passage,omitempty"`
	Graph   *GraphEvidence   `json:"graph,omitempty"`
}

// PassageItem wraps a PassageEvidence into an EvidenceItem.
func PassageItem(p PassageEvidence) EvidenceItem {
	return EvidenceItem{Kind: EvidencePassage, Passage: &p}
}

// GraphItem wraps a GraphEvidence into an EvidenceItem.
func GraphItem(g GraphEvidence) EvidenceItem {
	return EvidenceItem{Kind: EvidenceGraph, Graph: &g}
}

// Score returns the item's native score. Scores are never compared across
// kinds; ranking is only meaningful within a kind.
func (e EvidenceItem) Score() float64 {
	switch e.Kind {
	case EvidencePassage:
		if e.Passage != nil {
			return e.Passage.Similarity
		}
	case EvidenceGraph:
		if e.Graph != nil {
			return e.Graph.Relevance
		}
	}
	return 0
}

// SourceKey returns the per-kind deduplication key. For passages this is the
// document plus a content hash (one document yields many chunks); for graph
// facts it is the relation path plus the target node.
func (e EvidenceItem) SourceKey() string {
	switch e.Kind {
	case EvidencePassage:
		if e.Passage != nil {
			h := fnv.New32a()
			h.Write([]byte(e.Passage.Chunk))
			return fmt.Sprintf("%s#%08x", e.Passage.DocumentID, h.Sum32())
		}
	case EvidenceGraph:
		if e.Graph != nil {
			parts := make([]string, 0, len(e.Graph.Path)+1)
			for _, step := range e.Graph.Path {
				parts = append(parts, step.Relation)
			}
			parts = append(parts, e.Graph.NodeLabel)
			return strings.Join(parts, ">")
		}
	}
	return ""
}

// String renders the item as a single evidence line for prompts and logs.
func (e EvidenceItem) String() string {
	switch e.Kind {
	case EvidencePassage:
		if e.Passage != nil {
			return fmt.Sprintf("[%s] %s", e.Passage.DocumentID, e.Passage.Chunk)
		}
	case EvidenceGraph:
		if e.Graph != nil {
			var sb strings.Builder
			for _, step := range e.Graph.Path {
				fmt.Fprintf(&sb, "-[%s]-> (%s) ", step.Relation, step.Node)
			}
			return strings.TrimSpace(sb.String())
		}
	}
	return ""
}

// EvidenceSet is an ordered, deduplicated sequence of evidence items.
// Insertion order is the retrieval rank order within each kind; duplicates
// by (kind, source key) are dropped on insert, first occurrence wins.
type EvidenceSet struct {
	items []EvidenceItem
	seen  map[string]struct{}
}

// NewEvidenceSet creates an empty evidence set.
func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{seen: make(map[string]struct{})}
}

// Add appends an item unless an item with the same (kind, source key) is
// already present. Reports whether the item was inserted.
func (s *EvidenceSet) Add(item EvidenceItem) bool {
	key := string(item.Kind) + "|" + item.SourceKey()
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, item)
	return true
}

// Items returns the items in insertion order. The returned slice is a copy.
func (s *EvidenceSet) Items() []EvidenceItem {
	if s == nil {
		return nil
	}
	out := make([]EvidenceItem, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of items in the set.
func (s *EvidenceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// CountKind returns how many items of the given kind the set holds.
func (s *EvidenceSet) CountKind(kind EvidenceKind) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, item := range s.items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

// AnswerCandidate is a synthesized answer before the confidence gate.
type AnswerCandidate struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"` // normalized into [0,1]
	Evidence   *EvidenceSet `json:"-"`
	Strategy   Strategy     `json:"strategy"`
}

// FinalAnswer is the orchestrator's result. Every provenance item existed in
// the evidence set that produced the winning candidate; a fallback answer
// carries empty provenance.
type FinalAnswer struct {
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
	Strategy   Strategy       `json:"strategy"`
	Provenance []EvidenceItem `json:"provenance,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
}

// clamp01 bounds a score into [0,1]. Collaborator scores are never trusted
// to be bounded.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
