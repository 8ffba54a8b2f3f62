package medgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/medgraph-genkit/internal/eventbus"
)

// AsyncAnswerStatus represents the status information for an async answer.
type AsyncAnswerStatus struct {
	AnswerID     string        `json:"answer_id"`
	Question     string        `json:"question"`
	CurrentState ProcessState  `json:"current_state"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	IsComplete   bool          `json:"is_complete"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
}

// GetAsyncStatus retrieves the current status of an async answer. It is safe
// to call while the answer is still executing.
func (m *MedGraph) GetAsyncStatus(answerID string) (*AsyncAnswerStatus, error) {
	m.asyncAnswersMutex.RLock()
	pCtx, exists := m.asyncAnswers[answerID]
	m.asyncAnswersMutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("answer with ID '%s' not found", answerID)
	}

	snap := pCtx.snapshot()
	status := &AsyncAnswerStatus{
		AnswerID:     answerID,
		Question:     pCtx.Question.Text,
		CurrentState: snap.State,
		StartTime:    snap.StartTime,
		Duration:     snap.Duration,
		IsComplete:   snap.State == StateComplete,
		HasError:     snap.State == StateError || snap.State == StateCancelled,
	}

	if snap.LastError != nil {
		status.ErrorMessage = snap.LastError.Error()
		status.ErrorStage = snap.ErrorStage
	}

	return status, nil
}

// GetAsyncResult retrieves the result of a completed async answer.
// Returns error if the answer is not complete or encountered an error.
func (m *MedGraph) GetAsyncResult(answerID string) (*FinalAnswer, error) {
	m.asyncAnswersMutex.RLock()
	pCtx, exists := m.asyncAnswers[answerID]
	m.asyncAnswersMutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("answer with ID '%s' not found", answerID)
	}

	snap := pCtx.snapshot()

	// Check if execution is complete
	if snap.State != StateComplete {
		if snap.State == StateError || snap.State == StateCancelled {
			return nil, fmt.Errorf("answer failed during stage '%s': %w", snap.ErrorStage, snap.LastError)
		}
		return nil, fmt.Errorf("answer is still in progress (current state: %s)", snap.State)
	}

	// A validation failure terminates in Complete with the error intact.
	if snap.LastError != nil {
		return nil, fmt.Errorf("answer completed but encountered an error during stage '%s': %w", snap.ErrorStage, snap.LastError)
	}

	return snap.Final, nil
}

// CancelAsyncAnswer cancels an ongoing async answer.
// Returns true if the answer was successfully cancelled, false if it was
// already complete or not found.
func (m *MedGraph) CancelAsyncAnswer(answerID string) (bool, error) {
	m.asyncAnswersMutex.RLock()
	pCtx, exists := m.asyncAnswers[answerID]
	m.asyncAnswersMutex.RUnlock()
	if !exists {
		return false, fmt.Errorf("answer with ID '%s' not found", answerID)
	}

	pCtx.mu.Lock()

	// Check if execution is already terminal
	if pCtx.CurrentState == StateComplete || pCtx.CurrentState == StateError || pCtx.CurrentState == StateCancelled {
		pCtx.mu.Unlock()
		return false, nil
	}

	cancelFn, ok := pCtx.StateData["cancel"].(context.CancelFunc)
	if !ok {
		pCtx.mu.Unlock()
		return false, fmt.Errorf("cannot cancel answer: cancel function not found")
	}

	pCtx.setCancelledLocked(fmt.Errorf("answer cancelled by caller"), string(pCtx.CurrentState))
	pCtx.mu.Unlock()

	cancelFn()

	// Publish cancellation event if event bus is available
	if m.config.EnableEventBus && m.eventBus != nil {
		cancelEvent := eventbus.NewEvent(
			eventbus.EventQuestionAsyncCancelled,
			pCtx.Question.Text,
			"MedGraph.CancelAsyncAnswer",
			map[string]interface{}{
				"answer_id":   answerID,
				"duration_ms": pCtx.GetTotalDuration().Milliseconds(),
			},
		)
		m.eventBus.Publish(context.Background(), cancelEvent)
	}

	return true, nil
}

// ListAsyncAnswers returns a list of all async answer IDs and their current states.
func (m *MedGraph) ListAsyncAnswers() map[string]string {
	m.asyncAnswersMutex.RLock()
	defer m.asyncAnswersMutex.RUnlock()

	result := make(map[string]string)
	for id, pCtx := range m.asyncAnswers {
		result[id] = string(pCtx.State())
	}

	return result
}

// CleanupCompletedAnswers removes completed or errored answers older than the
// specified duration. This prevents the async map from growing without bound.
func (m *MedGraph) CleanupCompletedAnswers(olderThan time.Duration) int {
	m.asyncAnswersMutex.Lock()
	defer m.asyncAnswersMutex.Unlock()

	now := time.Now()
	count := 0

	for id, pCtx := range m.asyncAnswers {
		pCtx.mu.RLock()
		terminal := pCtx.CurrentState == StateComplete || pCtx.CurrentState == StateError || pCtx.CurrentState == StateCancelled
		settledAt := pCtx.StateStartTimes[pCtx.CurrentState]
		pCtx.mu.RUnlock()

		// Only cleanup terminal answers
		if terminal && now.Sub(settledAt) > olderThan {
			delete(m.asyncAnswers, id)
			count++
		}
	}

	return count
}
