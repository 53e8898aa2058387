package workflow

import "slices"

// Node names. Start and End are the virtual endpoints of the graph.
const (
	NodeStart    = "__start__"
	NodeRetrieve = "retrieve_context"
	NodeGenerate = "generate"
	NodeCompact  = "compact"
	NodeEnd      = "__end__"
)

// Route is the outcome of the conditional edge after generate.
type Route int

// Routes out of generate.
const (
	RouteEnd Route = iota
	RouteCompact
)

func (r Route) String() string {
	if r == RouteCompact {
		return NodeCompact
	}
	return NodeEnd
}

// DecideNext chooses the edge taken after generate. It compacts once the
// history is longer than the configured trigger.
func DecideNext(s *State, cfg Config) Route {
	cfg = cfg.withDefaults()
	if len(s.Messages) > cfg.SummaryTrigger {
		return RouteCompact
	}
	return RouteEnd
}

// GraphConfig selects the optional nodes of a Graph.
type GraphConfig struct {
	// Retrieval inserts retrieve_context between the start and generate.
	Retrieval bool
}

// Graph is the immutable topology of a turn:
//
//	__start__ -> [retrieve_context ->] generate -> {compact, __end__}
//	compact -> __end__
//
// A Graph is built once and shared by every turn.
type Graph struct {
	retrieval bool
}

// NewGraph returns the topology for cfg.
func NewGraph(cfg GraphConfig) *Graph {
	return &Graph{retrieval: cfg.Retrieval}
}

// Entry returns the first node run by a turn.
func (g *Graph) Entry() string {
	if g.retrieval {
		return NodeRetrieve
	}
	return NodeGenerate
}

// Next returns the node that follows node given the post-node state.
func (g *Graph) Next(node string, s *State, cfg Config) string {
	switch node {
	case NodeStart:
		return g.Entry()
	case NodeRetrieve:
		return NodeGenerate
	case NodeGenerate:
		return DecideNext(s, cfg).String()
	default:
		return NodeEnd
	}
}

// Nodes lists the real nodes of the graph in execution order.
func (g *Graph) Nodes() []string {
	nodes := []string{NodeGenerate, NodeCompact}
	if g.retrieval {
		nodes = slices.Insert(nodes, 0, NodeRetrieve)
	}
	return nodes
}

// Has reports whether node belongs to the graph.
func (g *Graph) Has(node string) bool {
	return slices.Contains(g.Nodes(), node)
}
