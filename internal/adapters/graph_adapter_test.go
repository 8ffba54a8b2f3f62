package adapters

import (
	"context"
	"testing"

	"github.com/ZanzyTHEbar/medgraph-genkit"
	"github.com/ZanzyTHEbar/medgraph-genkit/internal/kg"
)

func buildTestGraph() *kg.Graph {
	g := kg.New()
	g.AddNode("avf", "Arteriovenous Fistula", "Procedure")
	g.AddNode("inflow_artery", "Inflow Artery", "Vessel")
	g.AddNode("outflow_vein", "Outflow Vein", "Vessel")
	g.AddNode("steal_phenomenon", "Steal Phenomenon", "Condition")
	g.AddNode("hand_ischemia", "Hand Ischemia", "Symptom")

	g.AddEdge("avf", "inflow_artery", "requires", "")
	g.AddEdge("avf", "outflow_vein", "requires", "")
	g.AddEdge("avf", "steal_phenomenon", "may_cause", "")
	g.AddEdge("steal_phenomenon", "hand_ischemia", "associated_with", "")
	return g
}

func TestKGQuerierResolvesAndTraverses(t *testing.T) {
	q := NewKGQuerier(buildTestGraph())

	facts, err := q.Query(context.Background(), []string{"Arteriovenous Fistula"}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(facts) == 0 {
		t.Fatalf("expected graph facts")
	}

	labels := make(map[string]medgraph.GraphEvidence)
	for _, f := range facts {
		labels[f.NodeLabel] = f
	}
	for _, want := range []string{"Inflow Artery", "Outflow Vein", "Steal Phenomenon", "Hand Ischemia"} {
		if _, ok := labels[want]; !ok {
			t.Errorf("expected fact for %q", want)
		}
	}

	one := labels["Inflow Artery"]
	if one.Relevance != 0.5 {
		t.Errorf("1-hop fact relevance = %v, want 0.5", one.Relevance)
	}
	two := labels["Hand Ischemia"]
	if len(two.Path) != 2 || two.Relevance >= one.Relevance {
		t.Errorf("2-hop fact should rank below 1-hop: %+v", two)
	}
}

func TestKGQuerierSortsByRelevanceStably(t *testing.T) {
	q := NewKGQuerier(buildTestGraph())

	facts, err := q.Query(context.Background(), []string{"Arteriovenous Fistula"}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for i := 1; i < len(facts); i++ {
		if facts[i].Relevance > facts[i-1].Relevance {
			t.Fatalf("facts not sorted by descending relevance at %d", i)
		}
	}
	// Equal scores keep traversal order: requires edges before may_cause.
	if facts[0].NodeLabel != "Inflow Artery" || facts[1].NodeLabel != "Outflow Vein" {
		t.Errorf("stable order lost among equal scores: %q, %q", facts[0].NodeLabel, facts[1].NodeLabel)
	}
}

func TestKGQuerierFuzzyResolution(t *testing.T) {
	q := NewKGQuerier(buildTestGraph())

	facts, err := q.Query(context.Background(), []string{"fistula"}, 1)
	if err != nil {
		t.Fatalf("fuzzy resolution should succeed: %v", err)
	}
	if len(facts) == 0 {
		t.Errorf("expected facts after fuzzy resolution")
	}
}

func TestKGQuerierNoEntityResolves(t *testing.T) {
	q := NewKGQuerier(buildTestGraph())

	_, err := q.Query(context.Background(), []string{"cardiac catheterization", "stent"}, 2)
	if err == nil {
		t.Fatalf("expected entity-not-found error")
	}
	if !medgraph.HasCode(err, medgraph.ErrCodeEntityNotFound) {
		t.Errorf("expected ENTITY_NOT_FOUND code, got %v", err)
	}
}

func TestKGQuerierMixedResolution(t *testing.T) {
	q := NewKGQuerier(buildTestGraph())

	// One unknown entity among known ones is not an error.
	facts, err := q.Query(context.Background(), []string{"stent", "Steal Phenomenon"}, 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(facts) == 0 {
		t.Errorf("expected facts from the resolvable entity")
	}
}

func TestKGQuerierEmptyEntities(t *testing.T) {
	q := NewKGQuerier(buildTestGraph())

	facts, err := q.Query(context.Background(), nil, 2)
	if err != nil || facts != nil {
		t.Errorf("empty entity list should yield nothing, got %v, %v", facts, err)
	}
}
