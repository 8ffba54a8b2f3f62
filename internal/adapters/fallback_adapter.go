package adapters

import (
	"context"
	"sync/atomic"

	"github.com/ZanzyTHEbar/medgraph-genkit"
)

// defaultFallbackResponses are the canned safe responses returned when no
// answer clears the confidence gate. They never assert medical facts.
var defaultFallbackResponses = []string{
	"I could not find enough reliable evidence to answer that confidently. Please consult a qualified clinician or the relevant clinical guidelines.",
	"The available sources do not support a confident answer to this question. A vascular specialist or the primary literature would be the right place to check.",
	"I don't have sufficient verified information to answer that. For patient-specific concerns, please seek professional medical advice.",
}

// FallbackConfidence is the nominal confidence carried on fallback answers.
// It is non-zero only so downstream consumers can distinguish "answered with
// a disclaimer" from "no answer produced at all".
const FallbackConfidence = 0.01

// CannedFallback implements the medgraph.FallbackHandler interface with a
// rotating set of canned responses. Respond never fails.
type CannedFallback struct {
	responses []string
	next      atomic.Uint64
	hedge     bool
}

// CannedFallbackOption is a function that configures a CannedFallback.
type CannedFallbackOption func(*CannedFallback)

// WithResponses replaces the default response set.
func WithResponses(responses []string) CannedFallbackOption {
	return func(f *CannedFallback) {
		if len(responses) > 0 {
			f.responses = responses
		}
	}
}

// WithHedging controls whether the rejected best candidate is surfaced,
// clearly labeled as unverified. Off by default: showing rejected medical
// answers at all is a deployment decision.
func WithHedging(enabled bool) CannedFallbackOption {
	return func(f *CannedFallback) {
		f.hedge = enabled
	}
}

// NewCannedFallback creates a fallback handler.
func NewCannedFallback(options ...CannedFallbackOption) *CannedFallback {
	f := &CannedFallback{responses: defaultFallbackResponses}
	for _, option := range options {
		option(f)
	}
	return f
}

// Respond implements the medgraph.FallbackHandler interface. The answer is
// tagged with the fallback strategy and carries no provenance; the rejected
// candidate's evidence must not leak into a response that does not use it.
func (f *CannedFallback) Respond(ctx context.Context, question medgraph.Question, best *medgraph.AnswerCandidate) *medgraph.FinalAnswer {
	idx := f.next.Add(1) - 1
	text := f.responses[idx%uint64(len(f.responses))]

	if f.hedge && best != nil && best.Text != "" && best.Confidence > 0 {
		text += "\n\nA possibly relevant but UNVERIFIED answer was found; it did not meet the confidence bar and must not be relied on: " + best.Text
	}

	return &medgraph.FinalAnswer{
		Text:       text,
		Confidence: FallbackConfidence,
		Strategy:   medgraph.StrategyFallback,
		TraceID:    question.TraceID,
	}
}
