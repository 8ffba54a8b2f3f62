// Package medgraph provides the query orchestrator for medical question
// answering over a document corpus and a knowledge graph. A question fans
// out to vector retrieval and graph traversal concurrently, the evidence is
// fused, an answer is synthesized and scored, and anything that fails the
// confidence gate comes back as a safe fallback response instead of an error.
package medgraph

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/medgraph-genkit/internal/eventbus"
	"github.com/google/uuid"
)

// MedGraph is the main entry point into the medgraph-genkit runtime.
// It encapsulates all components required for answering questions.
type MedGraph struct {
	// Core components
	extractor   EntityExtractor
	retriever   Retriever
	graph       GraphQuerier
	synthesizer Synthesizer
	fallback    FallbackHandler
	cache       Cache
	eventBus    eventbus.EventBus
	policy      *AcceptancePolicy

	// Configuration
	config Config

	// Answer metrics
	metrics AnswerMetrics

	// Async processing
	asyncAnswers      map[string]*ProcessContext
	asyncAnswersMutex sync.RWMutex
}

// MedGraphComponents holds references to the core components needed for
// state transitions.
type MedGraphComponents struct {
	Extractor   EntityExtractor
	Retriever   Retriever
	Graph       GraphQuerier
	Synthesizer Synthesizer
	Fallback    FallbackHandler
	Policy      *AcceptancePolicy
	Config      Config
}

// Config holds the configuration options for the MedGraph runtime.
type Config struct {
	// Per-adapter call timeouts
	RetrievalTimeout  time.Duration
	GraphTimeout      time.Duration
	GenerationTimeout time.Duration

	// Evidence gathering bounds
	TopK           int
	MaxHops        int
	EvidenceBudget int

	// Confidence gate
	ConfidenceThreshold float64
	AcceptExpression    string

	// Minimum fuzzy label-match score for entity resolution
	MinResolveScore float64

	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetrievalTimeout:    time.Second * 5,
		GraphTimeout:        time.Second * 5,
		GenerationTimeout:   time.Second * 30,
		TopK:                5,
		MaxHops:             2,
		EvidenceBudget:      8,
		ConfidenceThreshold: 0.5,
		AcceptExpression:    DefaultAcceptExpression,
		MinResolveScore:     0.5,
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 5,
	}
}

// Option is a function that configures a MedGraph instance.
type Option func(*MedGraph)

// WithConfig sets the configuration for the runtime.
func WithConfig(config Config) Option {
	return func(m *MedGraph) {
		m.config = config
	}
}

// WithEntityExtractor sets the entity extractor component.
func WithEntityExtractor(extractor EntityExtractor) Option {
	return func(m *MedGraph) {
		m.extractor = extractor
	}
}

// WithRetriever sets the vector retriever component.
func WithRetriever(retriever Retriever) Option {
	return func(m *MedGraph) {
		m.retriever = retriever
	}
}

// WithGraphQuerier sets the knowledge graph querier component.
func WithGraphQuerier(graph GraphQuerier) Option {
	return func(m *MedGraph) {
		m.graph = graph
	}
}

// WithSynthesizer sets the answer synthesizer component.
func WithSynthesizer(synthesizer Synthesizer) Option {
	return func(m *MedGraph) {
		m.synthesizer = synthesizer
	}
}

// WithFallback sets the fallback handler component.
func WithFallback(fallback FallbackHandler) Option {
	return func(m *MedGraph) {
		m.fallback = fallback
	}
}

// WithAnswerCache sets the optional answer cache. Only gate-accepted answers
// are cached; fallback responses never are.
func WithAnswerCache(cache Cache) Option {
	return func(m *MedGraph) {
		m.cache = cache
	}
}

// New creates a new MedGraph instance with the provided options.
func New(options ...Option) (*MedGraph, error) {
	// Create with default configuration
	m := &MedGraph{
		config:       DefaultConfig(),
		asyncAnswers: make(map[string]*ProcessContext),
	}

	// Apply options
	for _, option := range options {
		option(m)
	}

	// Validate required components
	if m.retriever == nil {
		return nil, NewConfigurationError("retriever is required", nil)
	}

	if m.synthesizer == nil {
		return nil, NewConfigurationError("synthesizer is required", nil)
	}

	if m.fallback == nil {
		return nil, NewConfigurationError("fallback handler is required", nil)
	}

	if m.graph == nil {
		log.Printf("No graph querier configured, answering from passages only")
	}

	// Compile the confidence gate expression
	policy, err := NewAcceptancePolicy(m.config.AcceptExpression)
	if err != nil {
		return nil, err
	}
	m.policy = policy

	// Initialize event bus if enabled but not provided
	if m.config.EnableEventBus && m.eventBus == nil {
		// Create a default channel-based event bus
		m.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(m.config.EventBusBufferSize),
			eventbus.WithWorkerCount(m.config.EventBusWorkerCount),
		)
		log.Printf("Initialized default channel-based event bus")
	}

	return m, nil
}

// Answer handles an end-to-end question through the MedGraph runtime using a
// pushdown automaton state machine approach (State Machine with a stack).
func (m *MedGraph) Answer(ctx context.Context, question Question) (*FinalAnswer, error) {
	start := time.Now()

	// Answer cache short-circuit
	cacheKey := ""
	if m.cache != nil {
		cacheKey = NormalizeQuestion(question.Text)
		if cacheKey != "" {
			if cached, err := m.cache.Get(ctx, cacheKey); err == nil {
				if answer, ok := cached.(*FinalAnswer); ok {
					m.metrics.recordCacheHit()
					return answer, nil
				}
			}
		}
	}

	// Create a state machine for processing
	stateMachine := m.createStateMachine()

	// Create an initial process context with the question
	processContext := NewProcessContext(question)

	// Execute the state machine until completion or error
	answer, err := stateMachine.Execute(ctx, processContext)
	m.metrics.recordAnswer(answer, err, time.Since(start))

	if err == nil && answer != nil && answer.Strategy != StrategyFallback && m.cache != nil && cacheKey != "" {
		if cacheErr := m.cache.Set(ctx, cacheKey, answer); cacheErr != nil {
			log.Printf("Failed to cache answer: %v", cacheErr)
		}
	}

	return answer, err
}

// Metrics returns a snapshot of the runtime's answer counters.
func (m *MedGraph) Metrics() AnswerMetricsSnapshot {
	return m.metrics.Snapshot()
}

// EventBus exposes the runtime's event bus for subscriptions. Nil when the
// bus is disabled.
func (m *MedGraph) EventBus() eventbus.EventBus {
	return m.eventBus
}

// Close shuts down the event bus and releases background workers.
func (m *MedGraph) Close() error {
	if m.eventBus != nil {
		return m.eventBus.Close()
	}
	return nil
}

// createStateMachine builds a state machine with all necessary transitions
// for the MedGraph answering workflow.
func (m *MedGraph) createStateMachine() *StateMachine {
	// Determine if event bus should be used
	var eventBus eventbus.EventBus
	if m.config.EnableEventBus {
		eventBus = m.eventBus
	}

	// Build components structure to pass to state machine
	components := MedGraphComponents{
		Extractor:   m.extractor,
		Retriever:   m.retriever,
		Graph:       m.graph,
		Synthesizer: m.synthesizer,
		Fallback:    m.fallback,
		Policy:      m.policy,
		Config:      m.config,
	}

	// Create and return the state machine
	return CreateAnswerStateMachine(components, eventBus)
}

// AnswerAsync starts an asynchronous question execution. It returns a unique
// answer ID that can be used to check the status or get the result.
func (m *MedGraph) AnswerAsync(ctx context.Context, question Question) (string, error) {
	// Generate a unique answer ID
	answerID := uuid.New().String()

	// Create a state machine for processing
	stateMachine := m.createStateMachine()

	// Create an initial process context with the question
	processContext := NewProcessContext(question)

	// Store the process context in our map
	m.asyncAnswersMutex.Lock()
	m.asyncAnswers[answerID] = processContext
	m.asyncAnswersMutex.Unlock()

	// Create a new background context with cancellation for this async operation
	asyncCtx, cancel := context.WithCancel(context.Background())

	// Store the cancel function in the state data for potential cancellation
	processContext.setStateValue("cancel", cancel)

	// Check if event bus is available
	if m.config.EnableEventBus && m.eventBus != nil {
		startEvent := eventbus.NewEvent(
			eventbus.EventQuestionAsyncStarted,
			question.Text,
			"MedGraph.AnswerAsync",
			map[string]interface{}{
				"timestamp": time.Now().Format(time.RFC3339),
				"answer_id": answerID,
			},
		)
		m.eventBus.Publish(ctx, startEvent)
	}

	// Start a goroutine to execute the state machine
	go func() {
		defer cancel() // Ensure context is cancelled when goroutine exits

		start := time.Now()
		answer, err := stateMachine.Execute(asyncCtx, processContext)
		m.metrics.recordAnswer(answer, err, time.Since(start))

		// Update the process context with the final result
		m.asyncAnswersMutex.RLock()
		pCtx, exists := m.asyncAnswers[answerID]
		m.asyncAnswersMutex.RUnlock()
		if exists {
			pCtx.setFinal(answer)
			if err != nil {
				pCtx.SetError(err, string(pCtx.State()))
			} else if !pCtx.IsTerminal() {
				pCtx.Complete()
			}
		}

		// Publish completion event if event bus is available
		if m.config.EnableEventBus && m.eventBus != nil {
			eventType := eventbus.EventQuestionAsyncSuccess
			metadata := map[string]interface{}{
				"answer_id":   answerID,
				"duration_ms": processContext.GetTotalDuration().Milliseconds(),
			}

			if err != nil {
				_, stage := processContext.failure()
				eventType = eventbus.EventQuestionAsyncFailure
				metadata["error"] = err.Error()
				metadata["error_stage"] = stage
			}

			completionEvent := eventbus.NewEvent(
				eventType,
				question.Text,
				"MedGraph.AnswerAsync",
				metadata,
			)
			// Use background context since original context might be done
			m.eventBus.Publish(context.Background(), completionEvent)
		}
	}()

	return answerID, nil
}
