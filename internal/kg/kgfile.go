package kg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GraphFile is the serialized knowledge-graph format: explicit node records
// and edge records. Multiple edges between the same node pair with distinct
// relation keys are separate records and must survive a round trip.
type GraphFile struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Nodes       []NodeRecord `yaml:"nodes"`
	Edges       []EdgeRecord `yaml:"edges"`
}

type NodeRecord struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Type  string `yaml:"type"`
}

type EdgeRecord struct {
	Source           string `yaml:"source"`
	Target           string `yaml:"target"`
	Relation         string `yaml:"relation"`
	RelationshipType string `yaml:"relationship_type,omitempty"`
}

// GraphFileLoader defines an interface for loading a GraphFile from a source
// (e.g., file, bytes, etc.).
type GraphFileLoader interface {
	Load(source string) (*GraphFile, error)
	Format() string // e.g., "yaml"
}

// loaderRegistry holds registered GraphFileLoaders by format name.
var loaderRegistry = make(map[string]GraphFileLoader)

// RegisterGraphFileLoader registers a new GraphFileLoader for a given format.
func RegisterGraphFileLoader(loader GraphFileLoader) {
	loaderRegistry[loader.Format()] = loader
}

// GetGraphFileLoader retrieves a loader by format name (e.g., "yaml").
func GetGraphFileLoader(format string) (GraphFileLoader, bool) {
	loader, ok := loaderRegistry[format]
	return loader, ok
}

// YAMLLoader implements GraphFileLoader for YAML files.
type YAMLLoader struct{}

func (YAMLLoader) Load(path string) (*GraphFile, error) {
	return LoadGraphFile(path)
}

func (YAMLLoader) Format() string { return "yaml" }

func init() {
	RegisterGraphFileLoader(YAMLLoader{})
}

// LoadGraphFile parses a YAML graph file and returns a GraphFile struct.
func LoadGraphFile(path string) (*GraphFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph file: %w", err)
	}
	defer f.Close()
	var gf GraphFile
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&gf); err != nil {
		return nil, fmt.Errorf("failed to parse graph YAML: %w", err)
	}
	return &gf, nil
}

// Validate checks the GraphFile for duplicate node ids and duplicate
// (source, relation, target) edge keys. Edge endpoints missing from the node
// list are permitted; ToGraph adds them implicitly.
func (gf *GraphFile) Validate() error {
	idSet := make(map[string]struct{}, len(gf.Nodes))
	for _, n := range gf.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node with empty id (label: %q)", n.Label)
		}
		if _, exists := idSet[n.ID]; exists {
			return fmt.Errorf("duplicate node id found: %s", n.ID)
		}
		idSet[n.ID] = struct{}{}
	}
	edgeSet := make(map[string]struct{}, len(gf.Edges))
	for _, e := range gf.Edges {
		if e.Source == "" || e.Target == "" || e.Relation == "" {
			return fmt.Errorf("edge missing source, target or relation: %+v", e)
		}
		key := e.Source + "|" + e.Relation + "|" + e.Target
		if _, exists := edgeSet[key]; exists {
			return fmt.Errorf("duplicate edge key found: %s", key)
		}
		edgeSet[key] = struct{}{}
	}
	return nil
}

// ToGraph builds a Graph from the file records.
func (gf *GraphFile) ToGraph() (*Graph, error) {
	if err := gf.Validate(); err != nil {
		return nil, err
	}
	g := New()
	for _, n := range gf.Nodes {
		g.AddNode(n.ID, n.Label, n.Type)
	}
	for _, e := range gf.Edges {
		g.AddEdge(e.Source, e.Target, e.Relation, e.RelationshipType)
	}
	return g, nil
}

// FromGraph serializes a Graph into file records. Node and edge order follow
// insertion order, so save/load/save is byte-stable.
func FromGraph(g *Graph, name string) *GraphFile {
	gf := &GraphFile{Name: name}
	for _, n := range g.Nodes() {
		gf.Nodes = append(gf.Nodes, NodeRecord{ID: n.ID, Label: n.Label, Type: n.Type})
	}
	for _, e := range g.Edges() {
		gf.Edges = append(gf.Edges, EdgeRecord{
			Source:           e.Source,
			Target:           e.Target,
			Relation:         e.Relation,
			RelationshipType: e.RelationshipType,
		})
	}
	return gf
}

// SaveGraphFile writes the GraphFile to path as YAML.
func SaveGraphFile(gf *GraphFile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	defer enc.Close()
	if err := enc.Encode(gf); err != nil {
		return fmt.Errorf("failed to encode graph YAML: %w", err)
	}
	return nil
}

// Load reads a graph file, validates it, and builds the graph.
func Load(path string) (*Graph, error) {
	gf, err := LoadGraphFile(path)
	if err != nil {
		return nil, err
	}
	return gf.ToGraph()
}

// Save serializes a graph to path as YAML.
func Save(g *Graph, name, path string) error {
	return SaveGraphFile(FromGraph(g, name), path)
}
