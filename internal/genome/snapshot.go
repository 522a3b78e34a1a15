package genome

import (
	"strings"
)

// NodeFormatter renders one node; Serialize concatenates the results.
type NodeFormatter func(v NodeView) (string, error)

// Serialize walks the genome depth-first from NodeZero in framework child
// order and concatenates what format returns for each node.
func (g *Genome) Serialize(format NodeFormatter) (string, error) {
	var b strings.Builder
	for _, n := range g.Preorder(NodeZero) {
		text, err := format(g.View(n))
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

type Snapshot struct {
	NextID NodeID         `json:"next_id"`
	Nodes  []SnapshotNode `json:"nodes"`
	Links  []Link         `json:"links,omitempty"`
}

type SnapshotNode struct {
	ID      NodeID          `json:"id"`
	Parent  NodeID          `json:"parent"`
	Kind    string          `json:"kind"`
	Element string          `json:"element,omitempty"`
	Params  []SnapshotParam `json:"params,omitempty"`
}

type SnapshotParam struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Snapshot captures ids, structure, parameter values and links in preorder.
// Two genomes built from the same seed and call sequence have equal snapshots.
func (g *Genome) Snapshot() Snapshot {
	s := Snapshot{NextID: g.next, Links: g.Links()}
	for _, n := range g.Preorder(NodeZero) {
		node := g.nodes[n]
		sn := SnapshotNode{ID: n, Kind: node.Kind.String()}
		if p, ok := g.parent[n]; ok {
			sn.Parent = p
		}
		if node.Element != nil {
			sn.Element = node.Element.Name()
		}
		for _, name := range node.paramOrder {
			sn.Params = append(sn.Params, SnapshotParam{Name: name, Value: node.params[name].Value()})
		}
		s.Nodes = append(s.Nodes, sn)
	}
	return s
}
