// Package adapters implements the collaborator interfaces of the medgraph
// runtime: vector retrieval, knowledge graph lookup, answer synthesis,
// entity extraction, and the fallback handler.
package adapters

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/medgraph-genkit"
	"github.com/firebase/genkit/go/ai"
)

// VectorStoreRetriever implements the medgraph.Retriever interface over a
// Genkit vector store retriever.
type VectorStoreRetriever struct {
	genkitRetriever ai.Retriever
	maxResults      int
	minScore        float64
}

// VectorStoreRetrieverOption is a function that configures a VectorStoreRetriever.
type VectorStoreRetrieverOption func(*VectorStoreRetriever)

// WithMaxResults sets the maximum number of passages to return when the
// caller does not bound the search itself.
func WithMaxResults(max int) VectorStoreRetrieverOption {
	return func(r *VectorStoreRetriever) {
		r.maxResults = max
	}
}

// WithMinScore sets the minimum similarity score for passages.
func WithMinScore(min float64) VectorStoreRetrieverOption {
	return func(r *VectorStoreRetriever) {
		r.minScore = min
	}
}

// NewVectorStoreRetriever creates a new vector store-based retriever.
func NewVectorStoreRetriever(genkitRetriever ai.Retriever, options ...VectorStoreRetrieverOption) *VectorStoreRetriever {
	// Default configuration
	retriever := &VectorStoreRetriever{
		genkitRetriever: genkitRetriever,
		maxResults:      5,
		minScore:        0.0,
	}

	// Apply options
	for _, option := range options {
		option(retriever)
	}

	return retriever
}

// Search implements the medgraph.Retriever interface. Results are ordered by
// descending similarity as returned by the store; scores are clamped into
// [0,1] because store scores are not trusted to be bounded.
func (r *VectorStoreRetriever) Search(ctx context.Context, query string, k int) ([]medgraph.PassageEvidence, error) {
	startTime := time.Now()

	if k <= 0 {
		k = r.maxResults
	}

	resp, err := ai.Retrieve(ctx, r.genkitRetriever,
		ai.WithTextDocs(query),
		ai.WithConfig(map[string]interface{}{
			"k":            k,
			"minScore":     r.minScore,
			"returnScores": true,
		}),
	)
	if err != nil {
		return nil, medgraph.NewRetrievalUnavailableError(err)
	}

	passages := make([]medgraph.PassageEvidence, 0, len(resp.Documents))
	for i, doc := range resp.Documents {
		score := 0.0
		if scoreVal, ok := doc.Metadata["score"]; ok {
			if s, ok := scoreVal.(float64); ok {
				score = s
			}
		}
		if score < r.minScore {
			continue
		}

		passages = append(passages, medgraph.PassageEvidence{
			DocumentID: documentID(doc, i),
			Chunk:      docText(doc),
			Similarity: clampScore(score),
		})
		if len(passages) >= k {
			break
		}
	}

	log.Printf("Vector retrieval complete (documents_retrieved: %d, passages_used: %d, duration_ms: %d)",
		len(resp.Documents),
		len(passages),
		time.Since(startTime).Milliseconds())

	return passages, nil
}

// documentID extracts the document identity from metadata, falling back to a
// positional id when the store does not carry one.
func documentID(doc *ai.Document, position int) string {
	if doc.Metadata != nil {
		if idVal, ok := doc.Metadata["id"]; ok {
			if id, ok := idVal.(string); ok && id != "" {
				return id
			}
		}
	}
	return fmt.Sprintf("doc-%d", position)
}

// docText flattens a document's text parts into a single chunk.
func docText(doc *ai.Document) string {
	var sb strings.Builder
	for _, part := range doc.Content {
		if part == nil {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
