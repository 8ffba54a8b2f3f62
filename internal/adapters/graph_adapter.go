package adapters

import (
	"context"
	"log"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/medgraph-genkit"
	"github.com/ZanzyTHEbar/medgraph-genkit/internal/kg"
)

// KGQuerier implements the medgraph.GraphQuerier interface over the
// in-memory knowledge graph. The graph is read-only after load, so entity
// lookups run concurrently without locking.
type KGQuerier struct {
	graph           *kg.Graph
	index           *kg.LabelIndex
	minResolveScore float64
	maxConcurrency  int
}

// KGQuerierOption is a function that configures a KGQuerier.
type KGQuerierOption func(*KGQuerier)

// WithMinResolveScore sets the minimum fuzzy label-match score an entity
// needs to resolve to a node.
func WithMinResolveScore(min float64) KGQuerierOption {
	return func(q *KGQuerier) {
		q.minResolveScore = min
	}
}

// WithMaxConcurrency bounds the number of entities resolved in parallel.
func WithMaxConcurrency(n int) KGQuerierOption {
	return func(q *KGQuerier) {
		q.maxConcurrency = n
	}
}

// NewKGQuerier creates a querier over a loaded graph.
func NewKGQuerier(graph *kg.Graph, options ...KGQuerierOption) *KGQuerier {
	q := &KGQuerier{
		graph:           graph,
		index:           kg.BuildIndex(graph),
		minResolveScore: 0.5,
		maxConcurrency:  4,
	}
	for _, option := range options {
		option(q)
	}
	return q
}

// Index exposes the label index, shared with the entity extractor.
func (q *KGQuerier) Index() *kg.LabelIndex {
	return q.index
}

// Query implements the medgraph.GraphQuerier interface. Each entity resolves
// to at most one node; facts are traversal results up to hops away, scored
// 1/(1+path length). The result is sorted by descending relevance with a
// stable sort, so equal scores keep entity order then traversal order.
func (q *KGQuerier) Query(ctx context.Context, entities []string, hops int) ([]medgraph.GraphEvidence, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	perEntity := make([][]medgraph.GraphEvidence, len(entities))
	resolved := make([]bool, len(entities))

	p := pool.New().WithMaxGoroutines(q.maxConcurrency)
	for i, entity := range entities {
		i, entity := i, entity
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			node, score, ok := q.index.ResolveFuzzy(entity, q.minResolveScore)
			if !ok {
				log.Printf("Entity %q did not resolve to a graph node", entity)
				return
			}
			resolved[i] = true
			if score < 1.0 {
				log.Printf("Entity %q fuzzily resolved to %q (score: %.2f)", entity, node.Label, score)
			}

			for _, result := range kg.BFS(q.graph, node.ID, hops) {
				path := make([]medgraph.PathStep, 0, len(result.Path))
				for _, step := range result.Path {
					path = append(path, medgraph.PathStep{
						Relation: step.Relation,
						Node:     step.Node.Label,
					})
				}
				perEntity[i] = append(perEntity[i], medgraph.GraphEvidence{
					NodeLabel: result.Node.Label,
					NodeType:  result.Node.Type,
					Path:      path,
					Relevance: 1.0 / float64(1+len(result.Path)),
				})
			}
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	anyResolved := false
	for _, ok := range resolved {
		anyResolved = anyResolved || ok
	}
	if !anyResolved {
		return nil, medgraph.NewEntityNotFoundError(entities)
	}

	var facts []medgraph.GraphEvidence
	for _, list := range perEntity {
		facts = append(facts, list...)
	}
	sort.SliceStable(facts, func(a, b int) bool {
		return facts[a].Relevance > facts[b].Relevance
	})
	return facts, nil
}
