package medgraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/medgraph-genkit/internal/eventbus"
)

//! The pushdown automaton approach was specifically chosen because:
//!
//! It allows tracking the answer history (through the state stack)
//! It supports branching paths: gate rejection and collaborator failures
//! both route into the fallback state instead of aborting
//! It can easily be extended to support retries or alternative strategies
//! It provides better visibility into the answer progress

// ProcessState represents the current state of a question execution.
type ProcessState string

const (
	// StateInit is the initial state of the process
	StateInit ProcessState = "init"
	// StateExtraction represents the entity extraction phase
	StateExtraction ProcessState = "extraction"
	// StateGathering represents the concurrent evidence gathering phase
	StateGathering ProcessState = "gathering"
	// StateSynthesis represents the answer synthesis phase
	StateSynthesis ProcessState = "synthesis"
	// StateGate represents the confidence gate phase
	StateGate ProcessState = "gate"
	// StateFallback represents the fallback response phase
	StateFallback ProcessState = "fallback"
	// StateError represents an error state
	StateError ProcessState = "error"
	// StateComplete represents the completed state
	StateComplete ProcessState = "complete"
	// StateCancelled represents the cancelled state
	StateCancelled ProcessState = "cancelled"
	// StateUnknown is used when the status of an async answer cannot be determined.
	StateUnknown ProcessState = "unknown"
)

// ProcessContext contains the data needed for answering a question.
// It acts as the "tape" in the pushdown automaton.
//
// The intermediate result fields are written only by the executing
// goroutine. The state-control fields (current state, stack, timings,
// error, final answer, state data) are additionally read and written by
// async status/result/cancel callers, so all access to them goes through
// the mutex-guarded methods below.
type ProcessContext struct {
	// Input parameters
	Question Question

	// Intermediate results, owned by the executing goroutine
	Entities   []string
	Passages   []PassageEvidence
	GraphFacts []GraphEvidence
	Evidence   *EvidenceSet
	Candidate  *AnswerCandidate

	// Timestamp tracking
	StartTime time.Time

	// mu guards every field below it.
	mu sync.RWMutex

	Final *FinalAnswer

	// Error handling
	LastError  error
	ErrorStage string

	// State management
	CurrentState ProcessState
	StateStack   []ProcessState
	StateData    map[string]interface{}

	EndTime         time.Time
	StateStartTimes map[ProcessState]time.Time
}

// processSnapshot is a consistent point-in-time copy of the shared fields,
// taken under the context mutex for the async status/result surface.
type processSnapshot struct {
	State      ProcessState
	StartTime  time.Time
	Duration   time.Duration
	Final      *FinalAnswer
	LastError  error
	ErrorStage string
}

// NewProcessContext creates a new process context for the given question.
func NewProcessContext(question Question) *ProcessContext {
	return &ProcessContext{
		Question:        question,
		CurrentState:    StateInit,
		StateStack:      []ProcessState{},
		StateData:       make(map[string]interface{}),
		StartTime:       time.Now(),
		StateStartTimes: make(map[ProcessState]time.Time),
	}
}

// PushState pushes the current state onto the stack and sets a new current state.
func (pc *ProcessContext) PushState(state ProcessState) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.StateStack = append(pc.StateStack, pc.CurrentState)
	pc.CurrentState = state
	pc.StateStartTimes[state] = time.Now()
}

// PopState pops the top state from the stack and sets it as the current state.
// Returns false if the stack is empty.
func (pc *ProcessContext) PopState() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if len(pc.StateStack) == 0 {
		return false
	}
	lastIdx := len(pc.StateStack) - 1
	pc.CurrentState = pc.StateStack[lastIdx]
	pc.StateStack = pc.StateStack[:lastIdx]
	pc.StateStartTimes[pc.CurrentState] = time.Now()
	return true
}

// State returns the current state.
func (pc *ProcessContext) State() ProcessState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.CurrentState
}

// IsTerminal checks if the current state is a terminal state (Complete, Cancelled).
// StateError is deliberately not terminal: its transition decides whether the
// failure surfaces or routes into the fallback path.
func (pc *ProcessContext) IsTerminal() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.isTerminalLocked()
}

func (pc *ProcessContext) isTerminalLocked() bool {
	return pc.CurrentState == StateComplete || pc.CurrentState == StateCancelled
}

// SetError sets the last error and error stage, transitioning to StateError.
func (pc *ProcessContext) SetError(err error, stage string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.LastError = err
	pc.ErrorStage = stage
	pc.CurrentState = StateError
	pc.StateStartTimes[StateError] = time.Now()
}

// SetCancelled sets the state to Cancelled and records the cancellation error.
func (pc *ProcessContext) SetCancelled(err error, stage string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.setCancelledLocked(err, stage)
}

func (pc *ProcessContext) setCancelledLocked(err error, stage string) {
	pc.LastError = err
	pc.ErrorStage = stage // Record the stage where cancellation was detected
	pc.CurrentState = StateCancelled
	now := time.Now()
	pc.StateStartTimes[StateCancelled] = now
	if pc.EndTime.IsZero() {
		pc.EndTime = now
	}
}

// Complete marks the process as complete and sets the end time.
func (pc *ProcessContext) Complete() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.completeLocked()
}

func (pc *ProcessContext) completeLocked() {
	pc.CurrentState = StateComplete
	pc.EndTime = time.Now()
	pc.StateStartTimes[StateComplete] = pc.EndTime
}

// advance moves to the next state unless a terminal state was already set by
// a transition's side effects or a concurrent cancellation.
func (pc *ProcessContext) advance(state ProcessState) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.isTerminalLocked() {
		return
	}
	if state == StateComplete {
		pc.completeLocked()
		return
	}
	pc.CurrentState = state
	pc.StateStartTimes[state] = time.Now()
}

// setFinal records the final answer.
func (pc *ProcessContext) setFinal(answer *FinalAnswer) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.Final = answer
}

// failure returns the recorded error and the stage it occurred in.
func (pc *ProcessContext) failure() (error, string) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.LastError, pc.ErrorStage
}

// downgrade stashes a collaborator failure for diagnostics and clears it
// from the result path.
func (pc *ProcessContext) downgrade(err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.StateData["downgraded_error"] = err
	pc.LastError = nil
}

// setStateValue stores an auxiliary value on the context.
func (pc *ProcessContext) setStateValue(key string, value interface{}) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.StateData[key] = value
}

// result returns the final answer and any error that survived the error
// state (validation errors do; collaborator failures are downgraded).
func (pc *ProcessContext) result() (*FinalAnswer, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.Final, pc.LastError
}

// snapshot takes a consistent copy of the shared fields for status readers.
func (pc *ProcessContext) snapshot() processSnapshot {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return processSnapshot{
		State:      pc.CurrentState,
		StartTime:  pc.StartTime,
		Duration:   pc.totalDurationLocked(),
		Final:      pc.Final,
		LastError:  pc.LastError,
		ErrorStage: pc.ErrorStage,
	}
}

// GetStateDuration returns the duration spent in the given state.
func (pc *ProcessContext) GetStateDuration(state ProcessState) time.Duration {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	startTime, ok := pc.StateStartTimes[state]
	if !ok {
		return 0
	}

	if state == pc.CurrentState {
		return time.Since(startTime)
	}

	// For past states, we'd need to track end times for each state
	// This is a simplified implementation
	return 0
}

// GetTotalDuration returns the total duration of the process so far.
func (pc *ProcessContext) GetTotalDuration() time.Duration {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.totalDurationLocked()
}

func (pc *ProcessContext) totalDurationLocked() time.Duration {
	if !pc.EndTime.IsZero() {
		return pc.EndTime.Sub(pc.StartTime)
	}
	return time.Since(pc.StartTime)
}

// StateTransition defines a transition function for the state machine.
type StateTransition func(ctx context.Context, eventBus eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error)

// StateMachine represents a finite state machine for question execution.
type StateMachine struct {
	transitions map[ProcessState]StateTransition
	eventBus    eventbus.EventBus
}

// NewStateMachine creates a new state machine with the provided transitions.
func NewStateMachine(eventBus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[ProcessState]StateTransition),
		eventBus:    eventBus,
	}
}

// RegisterTransition registers a state transition function.
func (sm *StateMachine) RegisterTransition(state ProcessState, transition StateTransition) {
	sm.transitions[state] = transition
}

// Execute runs the state machine until completion or error.
func (sm *StateMachine) Execute(ctx context.Context, pCtx *ProcessContext) (*FinalAnswer, error) {
	for !pCtx.IsTerminal() {
		// Check for context cancellation before executing the next state
		select {
		case <-ctx.Done():
			err := ctx.Err()
			currentStage := string(pCtx.State())
			pCtx.SetCancelled(err, currentStage)
			return nil, NewCancelledError(currentStage, err)
		default:
			// Context is still active, proceed
		}

		state := pCtx.State()
		transition, exists := sm.transitions[state]
		if !exists {
			err := fmt.Errorf("no transition defined for state: %s", state)
			pCtx.SetError(err, string(state))
			return nil, err
		}

		// Execute the transition function for the current state
		nextState, err := transition(ctx, sm.eventBus, pCtx)

		if err != nil {
			currentStage := string(state)
			// Check if the error is due to context cancellation (might be caught within the transition)
			if err == context.Canceled || err == context.DeadlineExceeded {
				pCtx.SetCancelled(err, currentStage)
			} else {
				// Most stage errors are recorded by the transition itself; if a
				// transition returns an error without setting a terminal state,
				// record it here. The error state decides whether it surfaces
				// or routes into fallback.
				if !pCtx.IsTerminal() {
					pCtx.SetError(err, currentStage)
				}
			}
			continue // Go to the top of the loop to check terminal state
		}

		// Advance unless a transition side effect already terminated.
		pCtx.advance(nextState)
	}

	if pCtx.State() == StateCancelled {
		lastErr, stage := pCtx.failure()
		return nil, NewCancelledError(stage, lastErr)
	}

	return pCtx.result()
}

// createCancelledTransition handles the cancelled state.
func createCancelledTransition(_ MedGraphComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		// This is a terminal state. The error (context.Canceled or DeadlineExceeded)
		// should already be set in pCtx.LastError by the Execute loop or a transition.
		lastErr, _ := pCtx.failure()
		return StateCancelled, lastErr
	}
}
