package medgraph

import (
	"sync"
	"time"
)

// AnswerMetrics tracks runtime counters across questions. All methods are
// safe for concurrent use.
type AnswerMetrics struct {
	mu sync.Mutex

	totalQuestions   int64
	accepted         int64
	fallbacks        int64
	validationErrors int64
	cancellations    int64
	cacheHits        int64
	totalDuration    time.Duration
}

// AnswerMetricsSnapshot is a point-in-time copy of the counters.
type AnswerMetricsSnapshot struct {
	TotalQuestions   int64         `json:"total_questions"`
	Accepted         int64         `json:"accepted"`
	Fallbacks        int64         `json:"fallbacks"`
	ValidationErrors int64         `json:"validation_errors"`
	Cancellations    int64         `json:"cancellations"`
	CacheHits        int64         `json:"cache_hits"`
	TotalDuration    time.Duration `json:"total_duration"`
}

func (am *AnswerMetrics) recordAnswer(answer *FinalAnswer, err error, duration time.Duration) {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.totalQuestions++
	am.totalDuration += duration

	switch {
	case HasCode(err, ErrCodeValidation):
		am.validationErrors++
	case HasCode(err, ErrCodeCancelled) || err != nil && answer == nil:
		am.cancellations++
	case answer != nil && answer.Strategy == StrategyFallback:
		am.fallbacks++
	case answer != nil:
		am.accepted++
	}
}

func (am *AnswerMetrics) recordCacheHit() {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.cacheHits++
}

// Snapshot returns a copy of the current counters.
func (am *AnswerMetrics) Snapshot() AnswerMetricsSnapshot {
	am.mu.Lock()
	defer am.mu.Unlock()
	return AnswerMetricsSnapshot{
		TotalQuestions:   am.totalQuestions,
		Accepted:         am.accepted,
		Fallbacks:        am.fallbacks,
		ValidationErrors: am.validationErrors,
		Cancellations:    am.cancellations,
		CacheHits:        am.cacheHits,
		TotalDuration:    am.totalDuration,
	}
}
