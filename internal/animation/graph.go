package animation

import "neural_consensus/internal/domain"

const (
	NodeUser        = "User"
	NodeSynthesizer = "Synthesizer"
)

type NodeKind string

const (
	NodeKindUser        NodeKind = "user"
	NodeKindExpert      NodeKind = "expert"
	NodeKindSynthesizer NodeKind = "synthesizer"
)

type Node struct {
	ID    string
	Label string
	Kind  NodeKind
}

type EdgeStage string

const (
	StageDispatch  EdgeStage = "dispatch"
	StageAggregate EdgeStage = "aggregate"
)

type Edge struct {
	From        string
	To          string
	Stage       EdgeStage
	Highlighted bool
}

// topology is the fixed graph: User fans out to every expert, every expert
// feeds the Synthesizer.
type topology struct {
	nodes []Node
	edges []Edge
}

func newTopology(agents []domain.Agent) topology {
	t := topology{
		nodes: make([]Node, 0, len(agents)+2),
		edges: make([]Edge, 0, 2*len(agents)),
	}
	t.nodes = append(t.nodes, Node{ID: NodeUser, Label: "User Query", Kind: NodeKindUser})
	for _, a := range agents {
		t.nodes = append(t.nodes, Node{ID: a.ID, Label: a.Label, Kind: NodeKindExpert})
	}
	t.nodes = append(t.nodes, Node{ID: NodeSynthesizer, Label: "Synthesizer", Kind: NodeKindSynthesizer})
	for _, a := range agents {
		t.edges = append(t.edges, Edge{From: NodeUser, To: a.ID, Stage: StageDispatch})
	}
	for _, a := range agents {
		t.edges = append(t.edges, Edge{From: a.ID, To: NodeSynthesizer, Stage: StageAggregate})
	}
	return t
}

func (t *topology) highlight(stage EdgeStage, on bool) {
	for i := range t.edges {
		if t.edges[i].Stage == stage {
			t.edges[i].Highlighted = on
		}
	}
}

func (t *topology) clear() {
	for i := range t.edges {
		t.edges[i].Highlighted = false
	}
}

func (t *topology) node(id string) (Node, bool) {
	for _, n := range t.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
