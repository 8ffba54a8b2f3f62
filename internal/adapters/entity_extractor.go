package adapters

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/medgraph-genkit/internal/kg"
)

// LabelIndexExtractor extracts entities by scanning question text for known
// graph node labels. Because it only emits labels that exist in the graph,
// every extracted entity is guaranteed to resolve; a question that mentions
// no known entity yields an empty list and skips the graph lookup entirely.
type LabelIndexExtractor struct {
	index *kg.LabelIndex
}

// NewLabelIndexExtractor creates an extractor over a graph's label index.
func NewLabelIndexExtractor(index *kg.LabelIndex) *LabelIndexExtractor {
	return &LabelIndexExtractor{index: index}
}

// Extract implements the medgraph.EntityExtractor interface. Labels are
// matched case-insensitively, longest first, and each matched span is
// consumed so "Internal Carotid Artery" does not additionally match
// "Carotid Artery".
func (e *LabelIndexExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	haystack := normalizeText(text)
	var entities []string
	for _, label := range e.index.Labels() {
		needle := normalizeText(label)
		if needle == "" {
			continue
		}
		idx := strings.Index(haystack, needle)
		if idx < 0 {
			continue
		}
		entities = append(entities, label)
		// Consume the span so shorter labels cannot re-match inside it. The
		// boundary spaces stay so adjacent labels still see word boundaries.
		haystack = haystack[:idx+1] + strings.Repeat("\x00", len(needle)-2) + haystack[idx+len(needle)-1:]
	}
	return entities, nil
}

// normalizeText lowercases and collapses separators the same way node labels
// are normalized, so label containment checks line up.
func normalizeText(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '-' || r == '_'
	})
	return " " + strings.Join(fields, " ") + " "
}
