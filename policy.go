package medgraph

import (
	"log"
	"strings"

	"github.com/Knetic/govaluate"
)

// DefaultAcceptExpression is the stock confidence gate: a candidate clears
// the gate when its confidence reaches the threshold and it cites at least
// one piece of evidence.
const DefaultAcceptExpression = "confidence >= threshold && evidence > 0"

// AcceptancePolicy decides whether a synthesized candidate is good enough to
// return. The gate is a compiled boolean expression over the candidate's
// confidence and evidence counts, so deployments can tighten it (for example
// requiring graph corroboration) without code changes.
type AcceptancePolicy struct {
	expression *govaluate.EvaluableExpression
}

// NewAcceptancePolicy compiles an acceptance expression. Available
// parameters: confidence, threshold, evidence, graph, passages.
func NewAcceptancePolicy(expression string) (*AcceptancePolicy, error) {
	if strings.TrimSpace(expression) == "" {
		expression = DefaultAcceptExpression
	}
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, NewConfigurationError("invalid acceptance expression", err)
	}
	return &AcceptancePolicy{expression: expr}, nil
}

// Accept evaluates the gate for a candidate. A nil candidate never passes.
// Evaluation errors fail closed: a broken expression must not let an
// unverified answer through.
func (p *AcceptancePolicy) Accept(candidate *AnswerCandidate, evidence *EvidenceSet, threshold float64) bool {
	if candidate == nil {
		return false
	}

	parameters := map[string]interface{}{
		"confidence": candidate.Confidence,
		"threshold":  threshold,
		"evidence":   float64(evidence.Len()),
		"graph":      float64(evidence.CountKind(EvidenceGraph)),
		"passages":   float64(evidence.CountKind(EvidencePassage)),
	}

	result, err := p.expression.Evaluate(parameters)
	if err != nil {
		log.Printf("Acceptance expression evaluation failed, rejecting candidate: %v", err)
		return false
	}
	accepted, ok := result.(bool)
	if !ok {
		log.Printf("Acceptance expression returned non-boolean %T, rejecting candidate", result)
		return false
	}
	return accepted
}

// strategyFor classifies an evidence set into the strategy label carried on
// the answer.
func strategyFor(evidence *EvidenceSet) Strategy {
	graph := evidence.CountKind(EvidenceGraph)
	passages := evidence.CountKind(EvidencePassage)
	switch {
	case graph > 0 && passages > 0:
		return StrategyHybrid
	case graph > 0:
		return StrategyGraph
	default:
		return StrategyVector
	}
}

// NormalizeQuestion canonicalizes question text for answer-cache keys:
// lowercase, whitespace collapsed, trailing question marks dropped.
func NormalizeQuestion(text string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return strings.TrimSpace(strings.TrimRight(norm, "?"))
}
