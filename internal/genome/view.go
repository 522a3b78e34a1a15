package genome

import (
	"strconv"
	"strings"
)

// NodeView is a read-only window on one node, handed to validity checks and
// to formatters.
type NodeView struct {
	g  *Genome
	id NodeID
}

func (g *Genome) View(id NodeID) NodeView {
	return NodeView{g: g, id: id}
}

func (v NodeView) ID() NodeID {
	return v.id
}

func (v NodeView) Genome() *Genome {
	return v.g
}

func (v NodeView) Kind() Kind {
	return v.g.nodes[v.id].Kind
}

func (v NodeView) Element() Element {
	return v.g.nodes[v.id].Element
}

// Name is the element name, or "root" for NodeZero.
func (v NodeView) Name() string {
	n := v.g.nodes[v.id]
	if n.Element == nil {
		return n.Kind.String()
	}
	return n.Element.Name()
}

func (v NodeView) Predecessor() (NodeView, bool) {
	p, ok := v.g.parent[v.id]
	if !ok {
		return NodeView{}, false
	}
	return NodeView{g: v.g, id: p}, true
}

func (v NodeView) Successors() []NodeView {
	kids := v.g.children[v.id]
	out := make([]NodeView, len(kids))
	for i, k := range kids {
		out[i] = NodeView{g: v.g, id: k}
	}
	return out
}

// Index is the position of the node among its siblings, -1 for NodeZero.
func (v NodeView) Index() int {
	p, ok := v.g.parent[v.id]
	if !ok {
		return -1
	}
	for i, k := range v.g.children[p] {
		if k == v.id {
			return i
		}
	}
	return -1
}

// Path lists the nodes from NodeZero down to this node.
func (v NodeView) Path() []NodeID {
	path := []NodeID{v.id}
	for n := v.id; ; {
		p, ok := v.g.parent[n]
		if !ok {
			break
		}
		path = append(path, p)
		n = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// PathName renders Path as "n0.n3.n7".
func (v NodeView) PathName() string {
	path := v.Path()
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = "n" + strconv.Itoa(int(n))
	}
	return strings.Join(parts, ".")
}

// Value returns the current value of a macro parameter.
func (v NodeView) Value(name string) (any, bool) {
	p, ok := v.g.nodes[v.id].params[name]
	if !ok {
		return nil, false
	}
	return p.Value(), true
}

// Values maps every parameter name of the node to its current value.
func (v NodeView) Values() map[string]any {
	n := v.g.nodes[v.id]
	out := make(map[string]any, len(n.params))
	for name, p := range n.params {
		out[name] = p.Value()
	}
	return out
}

func (v NodeView) ParamNames() []string {
	return v.g.nodes[v.id].ParamNames()
}

func (v NodeView) LinkOutDegree() int {
	return len(v.g.LinksFrom(v.id))
}

func (v NodeView) LinkInDegree() int {
	return len(v.g.LinksTo(v.id))
}
