package medgraph

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
)

type dummyExtractor struct {
	entities []string
	err      error
	calls    int32
}

func (d *dummyExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	atomic.AddInt32(&d.calls, 1)
	return d.entities, d.err
}

type dummyRetriever struct {
	passages []PassageEvidence
	err      error
	calls    int32
}

func (d *dummyRetriever) Search(ctx context.Context, query string, k int) ([]PassageEvidence, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.err != nil {
		return nil, d.err
	}
	return d.passages, nil
}

type dummyGraph struct {
	facts []GraphEvidence
	err   error
	calls int32
}

func (d *dummyGraph) Query(ctx context.Context, entities []string, hops int) ([]GraphEvidence, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.err != nil {
		return nil, d.err
	}
	return d.facts, nil
}

type dummySynthesizer struct {
	text       string
	confidence float64
	err        error
	calls      int32
}

func (d *dummySynthesizer) Synthesize(ctx context.Context, question Question, evidence *EvidenceSet) (*AnswerCandidate, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.err != nil {
		return nil, d.err
	}
	return &AnswerCandidate{Text: d.text, Confidence: d.confidence, Evidence: evidence}, nil
}

type dummyFallback struct {
	calls int32
}

func (d *dummyFallback) Respond(ctx context.Context, question Question, best *AnswerCandidate) *FinalAnswer {
	atomic.AddInt32(&d.calls, 1)
	return &FinalAnswer{Text: "safe fallback response", Confidence: 0.01, Strategy: StrategyFallback}
}

func testPassages() []PassageEvidence {
	return []PassageEvidence{
		{DocumentID: "doc-1", Chunk: "an AVF connects artery and vein", Similarity: 0.9},
		{DocumentID: "doc-2", Chunk: "maturation takes six weeks", Similarity: 0.7},
	}
}

func testFacts() []GraphEvidence {
	return []GraphEvidence{
		{NodeLabel: "Inflow Artery", NodeType: "Vessel", Path: []PathStep{{Relation: "requires", Node: "Inflow Artery"}}, Relevance: 0.5},
		{NodeLabel: "Outflow Vein", NodeType: "Vessel", Path: []PathStep{{Relation: "requires", Node: "Outflow Vein"}}, Relevance: 0.5},
	}
}

func newTestRuntime(t *testing.T, options ...Option) *MedGraph {
	t.Helper()
	cfg := DefaultConfig()
	cfg.EnableEventBus = false
	all := append([]Option{WithConfig(cfg)}, options...)
	mg, err := New(all...)
	if err != nil {
		t.Fatalf("failed to build runtime: %v", err)
	}
	return mg
}

func TestAnswer_HybridSuccess(t *testing.T) {
	mg := newTestRuntime(t,
		WithEntityExtractor(&dummyExtractor{entities: []string{"Arteriovenous Fistula"}}),
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithGraphQuerier(&dummyGraph{facts: testFacts()}),
		WithSynthesizer(&dummySynthesizer{text: "an answer", confidence: 0.9}),
		WithFallback(&dummyFallback{}),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "What vessels does an AVF require?", TraceID: "t-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Strategy != StrategyHybrid {
		t.Errorf("strategy = %q, want hybrid", answer.Strategy)
	}
	if answer.Confidence != 0.9 || answer.Text != "an answer" {
		t.Errorf("unexpected answer: %+v", answer)
	}
	if len(answer.Provenance) != 4 {
		t.Fatalf("expected 4 provenance items, got %d", len(answer.Provenance))
	}
	// Fused order is graph facts first, passages after, rank preserved.
	if answer.Provenance[0].Kind != EvidenceGraph || answer.Provenance[2].Kind != EvidencePassage {
		t.Errorf("fusion order lost: %+v", answer.Provenance)
	}
	if answer.Provenance[2].Passage.DocumentID != "doc-1" || answer.Provenance[3].Passage.DocumentID != "doc-2" {
		t.Errorf("passage rank order lost")
	}
	if answer.TraceID != "t-1" {
		t.Errorf("trace id not propagated")
	}
}

func TestAnswer_LowConfidenceFallsBack(t *testing.T) {
	fallback := &dummyFallback{}
	mg := newTestRuntime(t,
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithSynthesizer(&dummySynthesizer{text: "weak answer", confidence: 0.2}),
		WithFallback(fallback),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "uncertain question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Strategy != StrategyFallback {
		t.Errorf("strategy = %q, want fallback", answer.Strategy)
	}
	if len(answer.Provenance) != 0 {
		t.Errorf("fallback answers carry no provenance, got %d items", len(answer.Provenance))
	}
	if fallback.calls != 1 {
		t.Errorf("fallback handler calls = %d, want 1", fallback.calls)
	}
}

func TestAnswer_ThresholdBoundaryAccepts(t *testing.T) {
	// Confidence exactly at the threshold clears the gate.
	mg := newTestRuntime(t,
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithSynthesizer(&dummySynthesizer{text: "boundary answer", confidence: 0.5}),
		WithFallback(&dummyFallback{}),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "boundary question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Strategy == StrategyFallback {
		t.Errorf("confidence equal to threshold must be accepted")
	}
}

func TestAnswer_EmptyEvidenceSkipsSynthesis(t *testing.T) {
	synth := &dummySynthesizer{text: "never", confidence: 1.0}
	fallback := &dummyFallback{}
	mg := newTestRuntime(t,
		WithRetriever(&dummyRetriever{}),
		WithSynthesizer(synth),
		WithFallback(fallback),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "question with no evidence"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Strategy != StrategyFallback {
		t.Errorf("strategy = %q, want fallback", answer.Strategy)
	}
	if synth.calls != 0 {
		t.Errorf("synthesizer must not run on empty evidence, ran %d times", synth.calls)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback handler calls = %d, want 1", fallback.calls)
	}
}

func TestAnswer_RetrievalFailureDowngradesToGraphOnly(t *testing.T) {
	mg := newTestRuntime(t,
		WithEntityExtractor(&dummyExtractor{entities: []string{"Arteriovenous Fistula"}}),
		WithRetriever(&dummyRetriever{err: NewRetrievalUnavailableError(errors.New("index down"))}),
		WithGraphQuerier(&dummyGraph{facts: testFacts()}),
		WithSynthesizer(&dummySynthesizer{text: "graph answer", confidence: 0.8}),
		WithFallback(&dummyFallback{}),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "What does an AVF require?"})
	if err != nil {
		t.Fatalf("collaborator failure must not surface: %v", err)
	}
	if answer.Strategy != StrategyGraph {
		t.Errorf("strategy = %q, want graph", answer.Strategy)
	}
	for _, item := range answer.Provenance {
		if item.Kind != EvidenceGraph {
			t.Errorf("provenance must be graph-only, found %s", item.Kind)
		}
	}
}

func TestAnswer_GraphFailureDowngradesToVectorOnly(t *testing.T) {
	mg := newTestRuntime(t,
		WithEntityExtractor(&dummyExtractor{entities: []string{"Arteriovenous Fistula"}}),
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithGraphQuerier(&dummyGraph{err: NewGraphUnavailableError(errors.New("graph down"))}),
		WithSynthesizer(&dummySynthesizer{text: "vector answer", confidence: 0.8}),
		WithFallback(&dummyFallback{}),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "anything"})
	if err != nil {
		t.Fatalf("collaborator failure must not surface: %v", err)
	}
	if answer.Strategy != StrategyVector {
		t.Errorf("strategy = %q, want vector", answer.Strategy)
	}
}

func TestAnswer_ZeroEntitiesSkipsGraph(t *testing.T) {
	graph := &dummyGraph{facts: testFacts()}
	retriever := &dummyRetriever{passages: testPassages()}
	mg := newTestRuntime(t,
		WithEntityExtractor(&dummyExtractor{}),
		WithRetriever(retriever),
		WithGraphQuerier(graph),
		WithSynthesizer(&dummySynthesizer{text: "vector answer", confidence: 0.8}),
		WithFallback(&dummyFallback{}),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "no known entities here"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if graph.calls != 0 {
		t.Errorf("graph adapter must not be called with zero entities, called %d times", graph.calls)
	}
	if retriever.calls != 1 {
		t.Errorf("vector retrieval always runs, calls = %d", retriever.calls)
	}
	if answer.Strategy != StrategyVector {
		t.Errorf("strategy = %q, want vector", answer.Strategy)
	}
}

func TestAnswer_SynthesisFailureFallsBack(t *testing.T) {
	fallback := &dummyFallback{}
	mg := newTestRuntime(t,
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithSynthesizer(&dummySynthesizer{err: NewGenerationFailureError(errors.New("model error"))}),
		WithFallback(fallback),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "anything"})
	if err != nil {
		t.Fatalf("generation failure must not surface: %v", err)
	}
	if answer.Strategy != StrategyFallback {
		t.Errorf("strategy = %q, want fallback", answer.Strategy)
	}
}

func TestAnswer_ValidationErrorSurfaces(t *testing.T) {
	mg := newTestRuntime(t,
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithSynthesizer(&dummySynthesizer{text: "x", confidence: 0.9}),
		WithFallback(&dummyFallback{}),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "   "})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !HasCode(err, ErrCodeValidation) {
		t.Errorf("expected VALIDATION_ERROR code, got %v", err)
	}
	if answer != nil {
		t.Errorf("no answer on validation failure, got %+v", answer)
	}
}

func TestAnswer_Cancellation(t *testing.T) {
	mg := newTestRuntime(t,
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithSynthesizer(&dummySynthesizer{text: "x", confidence: 0.9}),
		WithFallback(&dummyFallback{}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	answer, err := mg.Answer(ctx, Question{Text: "anything"})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if answer != nil {
		t.Errorf("no answer on cancellation, got %+v", answer)
	}
}

func TestAnswer_Idempotent(t *testing.T) {
	mg := newTestRuntime(t,
		WithEntityExtractor(&dummyExtractor{entities: []string{"Arteriovenous Fistula"}}),
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithGraphQuerier(&dummyGraph{facts: testFacts()}),
		WithSynthesizer(&dummySynthesizer{text: "an answer", confidence: 0.9}),
		WithFallback(&dummyFallback{}),
	)

	q := Question{Text: "What vessels does an AVF require?"}
	first, err := mg.Answer(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := mg.Answer(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical questions must yield identical answers:\n%+v\n%+v", first, second)
	}
}

func TestAnswer_CallerEntitiesBypassExtractor(t *testing.T) {
	extractor := &dummyExtractor{entities: []string{"wrong"}}
	graph := &dummyGraph{facts: testFacts()}
	mg := newTestRuntime(t,
		WithEntityExtractor(extractor),
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithGraphQuerier(graph),
		WithSynthesizer(&dummySynthesizer{text: "x", confidence: 0.9}),
		WithFallback(&dummyFallback{}),
	)

	_, err := mg.Answer(context.Background(), Question{Text: "q", Entities: []string{"Steal Phenomenon"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extractor.calls != 0 {
		t.Errorf("extractor must not run when entities are supplied, ran %d times", extractor.calls)
	}
	if graph.calls != 1 {
		t.Errorf("graph adapter calls = %d, want 1", graph.calls)
	}
}

func TestAnswer_EvidenceBudgetPrefersGraph(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableEventBus = false
	cfg.EvidenceBudget = 2
	mg := newTestRuntime(t,
		WithConfig(cfg),
		WithEntityExtractor(&dummyExtractor{entities: []string{"Arteriovenous Fistula"}}),
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithGraphQuerier(&dummyGraph{facts: testFacts()}),
		WithSynthesizer(&dummySynthesizer{text: "x", confidence: 0.9}),
		WithFallback(&dummyFallback{}),
	)

	answer, err := mg.Answer(context.Background(), Question{Text: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(answer.Provenance) != 2 {
		t.Fatalf("budget not applied: %d items", len(answer.Provenance))
	}
	for _, item := range answer.Provenance {
		if item.Kind != EvidenceGraph {
			t.Errorf("truncation must keep graph evidence first, found %s", item.Kind)
		}
	}
}

type mapCache struct {
	store map[string]interface{}
}

func newMapCache() *mapCache {
	return &mapCache{store: make(map[string]interface{})}
}

func (c *mapCache) Get(ctx context.Context, key string) (interface{}, error) {
	if v, ok := c.store[key]; ok {
		return v, nil
	}
	return nil, errors.New("not found")
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}) error {
	c.store[key] = value
	return nil
}

func TestAnswer_CacheHit(t *testing.T) {
	retriever := &dummyRetriever{passages: testPassages()}
	mg := newTestRuntime(t,
		WithRetriever(retriever),
		WithSynthesizer(&dummySynthesizer{text: "cached answer", confidence: 0.9}),
		WithFallback(&dummyFallback{}),
		WithAnswerCache(newMapCache()),
	)

	if _, err := mg.Answer(context.Background(), Question{Text: "What is an AVF?"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same question, different casing and whitespace: normalized key hits.
	answer, err := mg.Answer(context.Background(), Question{Text: "  what is an   avf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Text != "cached answer" {
		t.Errorf("expected cached answer, got %q", answer.Text)
	}
	if retriever.calls != 1 {
		t.Errorf("cache hit must skip retrieval, calls = %d", retriever.calls)
	}
	if mg.Metrics().CacheHits != 1 {
		t.Errorf("cache hit not counted")
	}
}

func TestAnswer_FallbackNotCached(t *testing.T) {
	cache := newMapCache()
	mg := newTestRuntime(t,
		WithRetriever(&dummyRetriever{}),
		WithSynthesizer(&dummySynthesizer{text: "x", confidence: 0.9}),
		WithFallback(&dummyFallback{}),
		WithAnswerCache(cache),
	)

	if _, err := mg.Answer(context.Background(), Question{Text: "no evidence for this"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cache.store) != 0 {
		t.Errorf("fallback answers must not be cached, store has %d entries", len(cache.store))
	}
}

func TestAnswer_Metrics(t *testing.T) {
	mg := newTestRuntime(t,
		WithRetriever(&dummyRetriever{passages: testPassages()}),
		WithSynthesizer(&dummySynthesizer{text: "x", confidence: 0.9}),
		WithFallback(&dummyFallback{}),
	)

	mg.Answer(context.Background(), Question{Text: "good question"})
	mg.Answer(context.Background(), Question{Text: "   "})

	snapshot := mg.Metrics()
	if snapshot.TotalQuestions != 2 {
		t.Errorf("total = %d, want 2", snapshot.TotalQuestions)
	}
	if snapshot.Accepted != 1 {
		t.Errorf("accepted = %d, want 1", snapshot.Accepted)
	}
	if snapshot.ValidationErrors != 1 {
		t.Errorf("validation errors = %d, want 1", snapshot.ValidationErrors)
	}
}

func TestNew_RequiresComponents(t *testing.T) {
	if _, err := New(); err == nil {
		t.Errorf("New without components must fail")
	}
	if _, err := New(WithRetriever(&dummyRetriever{})); err == nil {
		t.Errorf("New without synthesizer must fail")
	}
}
