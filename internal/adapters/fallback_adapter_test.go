package adapters

import (
	"context"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/medgraph-genkit"
)

func TestFallbackRespondNeverFails(t *testing.T) {
	f := NewCannedFallback()
	q := medgraph.Question{Text: "What is an AVF?", TraceID: "t-1"}

	answer := f.Respond(context.Background(), q, nil)
	if answer == nil || answer.Text == "" {
		t.Fatalf("fallback must always produce an answer")
	}
	if answer.Strategy != medgraph.StrategyFallback {
		t.Errorf("strategy = %q, want fallback", answer.Strategy)
	}
	if len(answer.Provenance) != 0 {
		t.Errorf("fallback answers carry no provenance, got %v", answer.Provenance)
	}
	if answer.Confidence != FallbackConfidence {
		t.Errorf("confidence = %v, want %v", answer.Confidence, FallbackConfidence)
	}
	if answer.TraceID != "t-1" {
		t.Errorf("trace id not propagated")
	}
}

func TestFallbackRotatesResponses(t *testing.T) {
	f := NewCannedFallback(WithResponses([]string{"first", "second"}))
	q := medgraph.Question{Text: "anything"}

	a := f.Respond(context.Background(), q, nil)
	b := f.Respond(context.Background(), q, nil)
	c := f.Respond(context.Background(), q, nil)
	if a.Text != "first" || b.Text != "second" || c.Text != "first" {
		t.Errorf("responses should rotate: %q, %q, %q", a.Text, b.Text, c.Text)
	}
}

func TestFallbackHedging(t *testing.T) {
	best := &medgraph.AnswerCandidate{Text: "maybe this", Confidence: 0.3}
	q := medgraph.Question{Text: "anything"}

	plain := NewCannedFallback().Respond(context.Background(), q, best)
	if strings.Contains(plain.Text, best.Text) {
		t.Errorf("hedging is off by default, candidate text leaked: %q", plain.Text)
	}

	hedged := NewCannedFallback(WithHedging(true)).Respond(context.Background(), q, best)
	if !strings.Contains(hedged.Text, best.Text) {
		t.Errorf("hedged response should surface the rejected candidate: %q", hedged.Text)
	}
	if !strings.Contains(hedged.Text, "UNVERIFIED") {
		t.Errorf("hedged candidate must be labeled unverified: %q", hedged.Text)
	}

	// No candidate to hedge with: plain canned response.
	none := NewCannedFallback(WithHedging(true)).Respond(context.Background(), q, nil)
	if strings.Contains(none.Text, "UNVERIFIED") {
		t.Errorf("nothing to hedge, got: %q", none.Text)
	}
}
