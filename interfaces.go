package medgraph

import "context"

// EntityExtractor derives candidate medical entities from raw question text.
// Implementations should only return entities that resolve against the
// knowledge graph; an empty result routes the question to vector-only
// retrieval.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// Retriever wraps semantic search over the document corpus.
// Results are ordered by descending similarity, length at most k.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]PassageEvidence, error)
}

// GraphQuerier wraps lookup and bounded traversal over the knowledge graph.
// For each entity it resolves label matches to nodes and collects outgoing
// and incoming relations up to the hop bound.
type GraphQuerier interface {
	Query(ctx context.Context, entities []string, hops int) ([]GraphEvidence, error)
}

// Synthesizer produces a candidate answer from a question and fused evidence.
// Generation failures are returned wrapped with ErrCodeGenerationFailure; the
// orchestrator downgrades them to a zero-confidence candidate rather than
// surfacing them.
type Synthesizer interface {
	Synthesize(ctx context.Context, question Question, evidence *EvidenceSet) (*AnswerCandidate, error)
}

// FallbackHandler produces a safe low-confidence response when nothing clears
// the confidence gate. It never fails; best is the highest-confidence
// rejected candidate and may be nil.
type FallbackHandler interface {
	Respond(ctx context.Context, question Question, best *AnswerCandidate) *FinalAnswer
}

// Cache provides storage for frequently accessed data, like final answers
// keyed on normalized question text.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}
