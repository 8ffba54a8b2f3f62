package adapters

import (
	"context"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/medgraph-genkit"
	"github.com/firebase/genkit/go/core"
)

// SynthInput is the expected input structure for the synthesizer flow.
type SynthInput struct {
	Question string   `json:"question"`
	Evidence []string `json:"evidence"`
}

// GenkitSynthesizerAdapter uses a Genkit Flow to implement the Synthesizer
// interface. The flow is prompted to end its output with a line of the form
// "CONFIDENCE: 0.8"; when the model omits it, a coverage heuristic over the
// evidence stands in.
type GenkitSynthesizerAdapter struct {
	synthFlow *core.Flow[*SynthInput, string, struct{}]
}

// NewGenkitSynthesizerAdapter creates a new adapter for the synthesizer flow.
func NewGenkitSynthesizerAdapter(flow *core.Flow[*SynthInput, string, struct{}]) *GenkitSynthesizerAdapter {
	return &GenkitSynthesizerAdapter{synthFlow: flow}
}

// Synthesize implements the medgraph.Synthesizer interface.
func (a *GenkitSynthesizerAdapter) Synthesize(ctx context.Context, question medgraph.Question, evidence *medgraph.EvidenceSet) (*medgraph.AnswerCandidate, error) {
	if a.synthFlow == nil {
		return nil, medgraph.NewConfigurationError("synthesizer flow is not configured", nil)
	}

	items := evidence.Items()
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.String())
	}

	input := SynthInput{
		Question: question.Text,
		Evidence: lines,
	}

	raw, err := a.synthFlow.Run(ctx, &input)
	if err != nil {
		return nil, medgraph.NewGenerationFailureError(err)
	}

	text, confidence, found := ParseConfidence(raw)
	if !found {
		confidence = HeuristicConfidence(question.Text, evidence)
	}

	return &medgraph.AnswerCandidate{
		Text:       text,
		Confidence: confidence,
		Evidence:   evidence,
	}, nil
}

// ParseConfidence splits a generated answer into its text and the
// self-reported confidence from a trailing "CONFIDENCE: x" line. Reports
// whether such a line was present and parseable.
func ParseConfidence(raw string) (string, float64, bool) {
	trimmed := strings.TrimRight(raw, " \t\n")
	idx := strings.LastIndex(trimmed, "\n")
	last := trimmed
	if idx >= 0 {
		last = trimmed[idx+1:]
	}

	rest, ok := strings.CutPrefix(strings.TrimSpace(last), "CONFIDENCE:")
	if !ok {
		return trimmed, 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return trimmed, 0, false
	}

	text := trimmed
	if idx >= 0 {
		text = strings.TrimRight(trimmed[:idx], " \t\n")
	} else {
		text = ""
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return text, value, true
}

// HeuristicConfidence estimates confidence from evidence coverage when the
// model does not self-report: the fraction of question terms present in the
// evidence, weighted up slightly when both evidence kinds contributed.
func HeuristicConfidence(question string, evidence *medgraph.EvidenceSet) float64 {
	if evidence.Len() == 0 {
		return 0
	}

	var corpus strings.Builder
	for _, item := range evidence.Items() {
		corpus.WriteString(strings.ToLower(item.String()))
		corpus.WriteString(" ")
	}
	haystack := corpus.String()

	terms := strings.Fields(strings.ToLower(question))
	covered := 0
	counted := 0
	for _, term := range terms {
		term = strings.Trim(term, "?.,:;!")
		if len(term) < 4 {
			continue // skip stopword-sized terms
		}
		counted++
		if strings.Contains(haystack, term) {
			covered++
		}
	}
	if counted == 0 {
		return 0.5
	}

	score := float64(covered) / float64(counted)
	if evidence.CountKind(medgraph.EvidenceGraph) > 0 && evidence.CountKind(medgraph.EvidencePassage) > 0 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}
