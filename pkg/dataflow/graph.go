package dataflow

import "strings"

// NodeKind is the closed vocabulary of node types a graph may use.
type NodeKind string

const (
	NodeKindSource   NodeKind = "datasource"
	NodeKindFilter   NodeKind = "filter"
	NodeKindAnd      NodeKind = "and"
	NodeKindOr       NodeKind = "or"
	NodeKindGroup    NodeKind = "group"
	NodeKindMerge    NodeKind = "merge"
	NodeKindSort     NodeKind = "sort"
	NodeKindForecast NodeKind = "forecast"
	NodeKindAnomaly  NodeKind = "anomaly"
	NodeKindExport   NodeKind = "export"
	NodeKindChart    NodeKind = "chart"
)

// kindAliases maps intake type strings to node kinds. Chart variants all
// share export semantics; "exampledata" is a legacy name for datasource.
var kindAliases = map[string]NodeKind{
	"datasource":  NodeKindSource,
	"exampledata": NodeKindSource,
	"filter":      NodeKindFilter,
	"and":         NodeKindAnd,
	"or":          NodeKindOr,
	"group":       NodeKindGroup,
	"merge":       NodeKindMerge,
	"sort":        NodeKindSort,
	"forecast":    NodeKindForecast,
	"anomaly":     NodeKindAnomaly,
	"export":      NodeKindExport,
	"chart":       NodeKindChart,
	"linechart":   NodeKindChart,
	"barchart":    NodeKindChart,
	"areachart":   NodeKindChart,
	"piechart":    NodeKindChart,
}

// ParseNodeKind normalizes an intake type string. Unknown kinds are not a
// structural failure; they surface as a per-node ConfigError at execution.
func ParseNodeKind(s string) (NodeKind, bool) {
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	return kind, ok
}

// IsTerminal reports whether the kind is a terminal export/chart node whose
// event doubles as the externally visible final result.
func (k NodeKind) IsTerminal() bool {
	return k == NodeKindExport || k == NodeKindChart
}

type Node struct {
	ID     string
	Kind   NodeKind
	Type   string // raw intake type, kept for unknown-kind errors
	Config map[string]any
}

// NodeSpec and EdgeSpec are the wire shape of a submitted graph.
type NodeSpec struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

type EdgeSpec struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type GraphSpec struct {
	Nodes []NodeSpec `json:"nodes" bson:"nodes"`
	Edges []EdgeSpec `json:"edges" bson:"edges"`
}

// Graph is the parsed dependency graph. Adjacency lists preserve
// edge-declaration order per node: merge treats its first predecessor as
// the left side of the join, and/or weigh predecessor position the same
// way for mask precedence.
type Graph struct {
	nodes     map[string]Node
	nodeOrder []string
	forward   map[string][]string
	backward  map[string][]string
}

// ParseGraph builds adjacency from the node and edge lists. Duplicate node
// ids and edges referencing unknown nodes are structural failures.
func ParseGraph(spec GraphSpec) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]Node, len(spec.Nodes)),
		forward:  map[string][]string{},
		backward: map[string][]string{},
	}

	for _, node := range spec.Nodes {
		if node.ID == "" {
			return nil, structuralErrorf("node with empty id")
		}
		if _, exists := g.nodes[node.ID]; exists {
			return nil, structuralErrorf("duplicate node id %q", node.ID)
		}
		kind, _ := ParseNodeKind(node.Type)
		g.nodes[node.ID] = Node{ID: node.ID, Kind: kind, Type: node.Type, Config: node.Config}
		g.nodeOrder = append(g.nodeOrder, node.ID)
	}

	for _, edge := range spec.Edges {
		if _, ok := g.nodes[edge.Source]; !ok {
			return nil, structuralErrorf("edge references unknown source node %q", edge.Source)
		}
		if _, ok := g.nodes[edge.Target]; !ok {
			return nil, structuralErrorf("edge references unknown target node %q", edge.Target)
		}
		g.forward[edge.Source] = append(g.forward[edge.Source], edge.Target)
		g.backward[edge.Target] = append(g.backward[edge.Target], edge.Source)
	}

	return g, nil
}

func (g *Graph) Node(id string) (Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

func (g *Graph) NumNodes() int { return len(g.nodes) }

// NodeIDs returns node ids in declaration order.
func (g *Graph) NodeIDs() []string { return g.nodeOrder }

// Predecessors returns a node's dependencies in edge-declaration order.
func (g *Graph) Predecessors(id string) []string { return g.backward[id] }

// Successors returns a node's dependents in edge-declaration order.
func (g *Graph) Successors(id string) []string { return g.forward[id] }

// TopologicalOrder linearizes the graph with Kahn's algorithm. The ready
// queue is seeded with zero in-degree nodes in declaration order, so the
// result is deterministic for a given spec. A produced order shorter than
// the node count means a cycle.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, targets := range g.forward {
		for _, target := range targets {
			inDegree[target]++
		}
	}

	queue := make([]string, 0, len(g.nodes))
	for _, id := range g.nodeOrder {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range g.forward[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, &CyclicGraphError{}
	}

	return order, nil
}
