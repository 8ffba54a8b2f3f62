package kg

// Step is one hop on a traversal path: the relation followed and the node
// it reached. Relations followed against edge direction are recorded with
// the relation as stored; direction is implied by Inbound.
type Step struct {
	Relation string
	Node     *Node
	Inbound  bool
}

// TraversalResult is a node reached during traversal together with its hop
// distance from the source and the path that reached it.
type TraversalResult struct {
	Node     *Node
	Distance int
	Path     []Step
}

// BFS performs breadth-first traversal from a source node, following both
// outgoing and incoming edges, up to maxHops. The source itself is not
// included in the results. Visit order is deterministic: per level, outgoing
// edges in insertion order, then incoming edges in insertion order.
func BFS(g *Graph, sourceID string, maxHops int) []*TraversalResult {
	source := g.Node(sourceID)
	if source == nil || maxHops <= 0 {
		return nil
	}

	visited := map[string]bool{sourceID: true}
	queue := []*TraversalResult{{Node: source, Distance: 0}}
	var results []*TraversalResult

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.Distance > 0 {
			results = append(results, current)
		}
		if current.Distance >= maxHops {
			continue
		}

		expand := func(target *Node, relation string, inbound bool) {
			if target == nil || visited[target.ID] {
				return
			}
			visited[target.ID] = true
			path := make([]Step, len(current.Path), len(current.Path)+1)
			copy(path, current.Path)
			path = append(path, Step{Relation: relation, Node: target, Inbound: inbound})
			queue = append(queue, &TraversalResult{
				Node:     target,
				Distance: current.Distance + 1,
				Path:     path,
			})
		}

		for _, edge := range g.OutEdges(current.Node.ID) {
			expand(g.Node(edge.Target), edge.Relation, false)
		}
		for _, edge := range g.InEdges(current.Node.ID) {
			expand(g.Node(edge.Source), edge.Relation, true)
		}
	}

	return results
}
