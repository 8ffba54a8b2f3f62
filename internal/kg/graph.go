// Package kg implements the in-memory medical knowledge graph: a directed
// labeled multigraph with a label index and bounded traversal. The graph is
// built once at load time and is read-only afterwards, so it is safe to share
// across concurrent queries without locking.
package kg

// Node is a graph node. ID is the stable identity used in edge records;
// Label is the human-readable entity name used for resolution.
type Node struct {
	ID    string
	Label string
	Type  string
}

// Edge is a directed relation between two nodes. Relation is the multigraph
// key: several edges between the same node pair are kept distinct as long as
// their Relation differs. RelationshipType is carried as a separate field so
// serialized graphs round-trip without loss.
type Edge struct {
	Source           string
	Target           string
	Relation         string
	RelationshipType string
}

// Graph is a directed labeled multigraph. Insertion order of nodes and edges
// is preserved, which keeps traversal and serialization deterministic.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string

	out map[string][]*Edge
	in  map[string][]*Edge

	edges   []*Edge
	edgeKey map[string]*Edge // source|relation|target
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		out:     make(map[string][]*Edge),
		in:      make(map[string][]*Edge),
		edgeKey: make(map[string]*Edge),
	}
}

// AddNode inserts a node or updates an existing one. An existing node keeps
// its type unless the update supplies a non-empty one.
func (g *Graph) AddNode(id, label, nodeType string) *Node {
	if n, exists := g.nodes[id]; exists {
		if label != "" {
			n.Label = label
		}
		if nodeType != "" {
			n.Type = nodeType
		}
		return n
	}
	if label == "" {
		label = id
	}
	n := &Node{ID: id, Label: label, Type: nodeType}
	g.nodes[id] = n
	g.nodeOrder = append(g.nodeOrder, id)
	return n
}

// AddEdge inserts a directed edge. Unknown endpoints are added implicitly
// with type "Unknown". An edge with the same (source, relation, target)
// replaces the previous one; distinct relations between the same pair stay
// distinct.
func (g *Graph) AddEdge(source, target, relation, relationshipType string) *Edge {
	if _, ok := g.nodes[source]; !ok {
		g.AddNode(source, "", "Unknown")
	}
	if _, ok := g.nodes[target]; !ok {
		g.AddNode(target, "", "Unknown")
	}
	if relationshipType == "" {
		relationshipType = relation
	}

	key := source + "|" + relation + "|" + target
	if e, exists := g.edgeKey[key]; exists {
		e.RelationshipType = relationshipType
		return e
	}

	e := &Edge{Source: source, Target: target, Relation: relation, RelationshipType: relationshipType}
	g.edgeKey[key] = e
	g.edges = append(g.edges, e)
	g.out[source] = append(g.out[source], e)
	g.in[target] = append(g.in[target], e)
	return e
}

// AddTriplet inserts (subject, relation, object) with optional node types.
func (g *Graph) AddTriplet(subject, subjectType, relation, object, objectType string) {
	g.AddNode(subject, "", subjectType)
	g.AddNode(object, "", objectType)
	g.AddEdge(subject, object, relation, relation)
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// OutEdges returns the outgoing edges of a node in insertion order.
func (g *Graph) OutEdges(id string) []*Edge {
	return g.out[id]
}

// InEdges returns the incoming edges of a node in insertion order.
func (g *Graph) InEdges(id string) []*Edge {
	return g.in[id]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinctly keyed edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}
