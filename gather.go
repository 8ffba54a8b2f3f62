package medgraph

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/medgraph-genkit/internal/eventbus"
)

// gatherResult carries the joined output of the concurrent evidence fan-out.
type gatherResult struct {
	Passages   []PassageEvidence
	GraphFacts []GraphEvidence
}

// gatherEvidence runs vector retrieval and the graph lookup concurrently and
// joins both before fusion. Vector retrieval always runs; the graph lookup is
// skipped when no entity resolved or no graph querier is configured. Adapter
// failures and timeouts are downgraded to empty evidence of that kind, so the
// only error this returns is context cancellation.
func gatherEvidence(ctx context.Context, eb eventbus.EventBus, components MedGraphComponents, question Question, entities []string) (*gatherResult, error) {
	hasEventBus := eb != nil
	result := &gatherResult{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if hasEventBus {
			eb.Publish(gctx, eventbus.NewEvent(
				eventbus.EventRetrievalStarted,
				question.Text,
				"Gather.Retrieval",
				map[string]interface{}{"top_k": components.Config.TopK},
			))
		}

		callCtx := gctx
		if components.Config.RetrievalTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(gctx, components.Config.RetrievalTimeout)
			defer cancel()
		}

		start := time.Now()
		passages, err := components.Retriever.Search(callCtx, question.Text, components.Config.TopK)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if callCtx.Err() == context.DeadlineExceeded {
				err = NewTimeoutError("retrieval", err)
			}
			log.Printf("Passage retrieval failed, continuing without passages: %v", err)
			if hasEventBus {
				eb.Publish(gctx, eventbus.NewEvent(
					eventbus.EventRetrievalFailure,
					err.Error(),
					"Gather.Retrieval",
					map[string]interface{}{"error": err.Error()},
				))
			}
			return nil
		}

		if hasEventBus {
			eb.Publish(gctx, eventbus.NewEvent(
				eventbus.EventRetrievalSuccess,
				passages,
				"Gather.Retrieval",
				map[string]interface{}{
					"passage_count": len(passages),
					"duration_ms":   time.Since(start).Milliseconds(),
				},
			))
		}

		result.Passages = passages
		return nil
	})

	if len(entities) > 0 && components.Graph != nil {
		g.Go(func() error {
			if hasEventBus {
				eb.Publish(gctx, eventbus.NewEvent(
					eventbus.EventGraphQueryStarted,
					entities,
					"Gather.Graph",
					map[string]interface{}{"max_hops": components.Config.MaxHops},
				))
			}

			callCtx := gctx
			if components.Config.GraphTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, components.Config.GraphTimeout)
				defer cancel()
			}

			start := time.Now()
			facts, err := components.Graph.Query(callCtx, entities, components.Config.MaxHops)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if callCtx.Err() == context.DeadlineExceeded {
					err = NewTimeoutError("graph", err)
				}
				log.Printf("Graph query failed, continuing without graph facts: %v", err)
				if hasEventBus {
					eb.Publish(gctx, eventbus.NewEvent(
						eventbus.EventGraphQueryFailure,
						err.Error(),
						"Gather.Graph",
						map[string]interface{}{"error": err.Error()},
					))
				}
				return nil
			}

			if hasEventBus {
				eb.Publish(gctx, eventbus.NewEvent(
					eventbus.EventGraphQuerySuccess,
					facts,
					"Gather.Graph",
					map[string]interface{}{
						"fact_count":  len(facts),
						"duration_ms": time.Since(start).Milliseconds(),
					},
				))
			}

			result.GraphFacts = facts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
