package medgraph

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/medgraph-genkit/internal/eventbus"
)

// CreateAnswerStateMachine builds a complete state machine for the question
// answering workflow.
func CreateAnswerStateMachine(components MedGraphComponents, eventBus eventbus.EventBus) *StateMachine {
	sm := NewStateMachine(eventBus)

	// Register all state transitions
	sm.RegisterTransition(StateInit, createInitTransition(components))
	sm.RegisterTransition(StateExtraction, createExtractionTransition(components))
	sm.RegisterTransition(StateGathering, createGatheringTransition(components))
	sm.RegisterTransition(StateSynthesis, createSynthesisTransition(components))
	sm.RegisterTransition(StateGate, createGateTransition(components))
	sm.RegisterTransition(StateFallback, createFallbackTransition(components))
	sm.RegisterTransition(StateError, createErrorTransition(components))
	sm.RegisterTransition(StateComplete, createCompleteTransition(components))
	sm.RegisterTransition(StateCancelled, createCancelledTransition(components))

	return sm
}

// createInitTransition handles the initialization state.
func createInitTransition(components MedGraphComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		hasEventBus := eb != nil

		// The only error that ever surfaces to the caller: an empty question.
		if strings.TrimSpace(pCtx.Question.Text) == "" {
			return StateError, NewValidationError("question text is empty")
		}

		if hasEventBus {
			startEvent := eventbus.NewEvent(
				eventbus.EventQuestionProcessingStarted,
				pCtx.Question.Text,
				"StateMachine.Init",
				map[string]interface{}{
					"timestamp": time.Now().Format(time.RFC3339),
					"trace_id":  pCtx.Question.TraceID,
				},
			)
			eb.Publish(ctx, startEvent)
		}

		return StateExtraction, nil
	}
}

// createExtractionTransition handles the entity extraction state. Extraction
// never fails the question: a broken extractor just means no graph lookups.
func createExtractionTransition(components MedGraphComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		hasEventBus := eb != nil

		// Caller-supplied entities are used as-is.
		if len(pCtx.Question.Entities) > 0 {
			pCtx.Entities = pCtx.Question.Entities
			return StateGathering, nil
		}

		extractor := components.Extractor
		if extractor == nil {
			return StateGathering, nil
		}

		if hasEventBus {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventEntityExtractionStarted,
				pCtx.Question.Text,
				"StateMachine.Extraction",
				nil,
			))
		}

		entities, err := extractor.Extract(ctx, pCtx.Question.Text)
		if err != nil {
			log.Printf("Entity extraction failed, continuing without graph lookups: %v", err)
			if hasEventBus {
				eb.Publish(ctx, eventbus.NewEvent(
					eventbus.EventEntityExtractionFailure,
					err.Error(),
					"StateMachine.Extraction",
					map[string]interface{}{"error": err.Error()},
				))
			}
			return StateGathering, nil
		}

		if hasEventBus {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventEntityExtractionSuccess,
				entities,
				"StateMachine.Extraction",
				map[string]interface{}{"entity_count": len(entities)},
			))
		}

		pCtx.Entities = entities
		return StateGathering, nil
	}
}

// createGatheringTransition handles the concurrent evidence gathering state.
// Vector retrieval always runs; the graph lookup runs only when at least one
// entity resolved. Both adapter failures are downgraded to empty evidence.
func createGatheringTransition(components MedGraphComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		result, err := gatherEvidence(ctx, eb, components, pCtx.Question, pCtx.Entities)
		if err != nil {
			// Only cancellation propagates out of the gather join.
			return StateError, err
		}

		pCtx.Passages = result.Passages
		pCtx.GraphFacts = result.GraphFacts
		pCtx.Evidence = Truncate(Fuse(result.Passages, result.GraphFacts), components.Config.EvidenceBudget)

		// Nothing to synthesize from: skip generation entirely.
		if pCtx.Evidence.Len() == 0 {
			return StateFallback, nil
		}

		return StateSynthesis, nil
	}
}

// createSynthesisTransition handles the answer synthesis state.
func createSynthesisTransition(components MedGraphComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		hasEventBus := eb != nil
		synthesizer := components.Synthesizer

		if hasEventBus {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventSynthesisStarted,
				pCtx.Question.Text,
				"StateMachine.Synthesis",
				map[string]interface{}{
					"passage_count": pCtx.Evidence.CountKind(EvidencePassage),
					"graph_count":   pCtx.Evidence.CountKind(EvidenceGraph),
				},
			))
		}

		synthCtx := ctx
		if components.Config.GenerationTimeout > 0 {
			var cancel context.CancelFunc
			synthCtx, cancel = context.WithTimeout(ctx, components.Config.GenerationTimeout)
			defer cancel()
		}

		candidate, err := synthesizer.Synthesize(synthCtx, pCtx.Question, pCtx.Evidence)
		if err != nil {
			if ctx.Err() != nil {
				return StateError, ctx.Err()
			}
			// Generation failure is not the caller's problem: treat it as a
			// zero-confidence candidate so the gate routes to fallback.
			log.Printf("Answer synthesis failed, downgrading to fallback: %v", err)
			if hasEventBus {
				eb.Publish(ctx, eventbus.NewEvent(
					eventbus.EventSynthesisFailure,
					err.Error(),
					"StateMachine.Synthesis",
					map[string]interface{}{"error": err.Error()},
				))
			}
			pCtx.Candidate = &AnswerCandidate{
				Confidence: 0,
				Evidence:   pCtx.Evidence,
				Strategy:   strategyFor(pCtx.Evidence),
			}
			return StateGate, nil
		}

		if candidate.Strategy == "" {
			candidate.Strategy = strategyFor(pCtx.Evidence)
		}
		if candidate.Evidence == nil {
			candidate.Evidence = pCtx.Evidence
		}
		candidate.Confidence = clamp01(candidate.Confidence)

		if hasEventBus {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventSynthesisSuccess,
				candidate.Text,
				"StateMachine.Synthesis",
				map[string]interface{}{
					"confidence": candidate.Confidence,
					"strategy":   string(candidate.Strategy),
				},
			))
		}

		pCtx.Candidate = candidate
		return StateGate, nil
	}
}

// createGateTransition handles the confidence gate state.
func createGateTransition(components MedGraphComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		hasEventBus := eb != nil
		candidate := pCtx.Candidate

		accepted := components.Policy.Accept(candidate, pCtx.Evidence, components.Config.ConfidenceThreshold)
		if !accepted {
			if hasEventBus {
				eb.Publish(ctx, eventbus.NewEvent(
					eventbus.EventAnswerRejected,
					pCtx.Question.Text,
					"StateMachine.Gate",
					map[string]interface{}{
						"confidence": candidate.Confidence,
						"threshold":  components.Config.ConfidenceThreshold,
					},
				))
			}
			return StateFallback, nil
		}

		final := &FinalAnswer{
			Text:       candidate.Text,
			Confidence: candidate.Confidence,
			Strategy:   candidate.Strategy,
			Provenance: candidate.Evidence.Items(),
			TraceID:    pCtx.Question.TraceID,
		}
		pCtx.setFinal(final)

		if hasEventBus {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventAnswerAccepted,
				final.Text,
				"StateMachine.Gate",
				map[string]interface{}{
					"confidence": final.Confidence,
					"strategy":   string(final.Strategy),
				},
			))
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventQuestionProcessingSuccess,
				pCtx.Question.Text,
				"StateMachine.Gate",
				map[string]interface{}{
					"duration_ms": pCtx.GetTotalDuration().Milliseconds(),
				},
			))
		}

		return StateComplete, nil
	}
}

// createFallbackTransition handles the fallback state. The handler never
// fails; its answer is tagged fallback and carries no provenance.
func createFallbackTransition(components MedGraphComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		hasEventBus := eb != nil

		final := components.Fallback.Respond(ctx, pCtx.Question, pCtx.Candidate)
		final.Strategy = StrategyFallback
		final.Provenance = nil
		final.TraceID = pCtx.Question.TraceID
		pCtx.setFinal(final)

		if hasEventBus {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventFallbackTriggered,
				pCtx.Question.Text,
				"StateMachine.Fallback",
				map[string]interface{}{
					"had_candidate": pCtx.Candidate != nil,
					"duration_ms":   pCtx.GetTotalDuration().Milliseconds(),
				},
			))
		}

		return StateComplete, nil
	}
}

// createErrorTransition handles error states. Validation errors surface to
// the caller; every other failure is downgraded into the fallback path.
func createErrorTransition(_ MedGraphComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		hasEventBus := eb != nil
		err, stage := pCtx.failure()

		if hasEventBus && err != nil {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventQuestionProcessingFailure,
				pCtx.Question.Text,
				"StateMachine.Error",
				map[string]interface{}{
					"error": err.Error(),
					"stage": stage,
				},
			))
		}

		if HasCode(err, ErrCodeValidation) {
			// Surface to the caller: terminate with the error still recorded.
			pCtx.Complete()
			return StateComplete, nil
		}
		if err == context.Canceled || err == context.DeadlineExceeded || HasCode(err, ErrCodeCancelled) {
			pCtx.SetCancelled(err, stage)
			return StateCancelled, nil
		}

		// Anything else is a collaborator failure: keep it for diagnostics,
		// clear it from the result path, and answer with the fallback.
		log.Printf("Stage %s failed, routing to fallback: %v", stage, err)
		pCtx.downgrade(err)
		return StateFallback, nil
	}
}

// createCompleteTransition handles the complete state.
func createCompleteTransition(_ MedGraphComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		// This is a terminal state - nothing to do
		// The state machine's Execute method will handle returning the final result
		return StateComplete, nil
	}
}
