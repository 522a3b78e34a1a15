package genome

// Preorder returns root and every node below it in depth-first preorder,
// following framework child order.
func (g *Genome) Preorder(root NodeID) []NodeID {
	if _, ok := g.nodes[root]; !ok {
		return nil
	}
	out := make([]NodeID, 0, len(g.nodes))
	stack := []NodeID{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		kids := g.children[n]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return out
}

// Nodes is Preorder(NodeZero).
func (g *Genome) Nodes() []NodeID {
	return g.Preorder(NodeZero)
}

func (g *Genome) Frames(root NodeID) []NodeID {
	return g.ofKind(root, KindFrame)
}

func (g *Genome) Macros(root NodeID) []NodeID {
	return g.ofKind(root, KindMacro)
}

func (g *Genome) FirstMacro(root NodeID) (NodeID, bool) {
	for _, n := range g.Preorder(root) {
		if g.nodes[n].Kind == KindMacro {
			return n, true
		}
	}
	return 0, false
}

// FramesOf returns, in preorder over the whole genome, the frame nodes whose
// element satisfies match.
func (g *Genome) FramesOf(match func(Element) bool) []NodeID {
	out := make([]NodeID, 0)
	for _, n := range g.Preorder(NodeZero) {
		node := g.nodes[n]
		if node.Kind == KindFrame && match(node.Element) {
			out = append(out, n)
		}
	}
	return out
}

type ParamRef struct {
	Node  NodeID
	Name  string
	Param Parameter
}

// Parameters lists every parameter below root, node by node in preorder and
// in declaration order within a node.
func (g *Genome) Parameters(root NodeID) []ParamRef {
	out := make([]ParamRef, 0)
	for _, n := range g.Preorder(root) {
		node := g.nodes[n]
		for _, name := range node.paramOrder {
			out = append(out, ParamRef{Node: n, Name: name, Param: node.params[name]})
		}
	}
	return out
}

func (g *Genome) ofKind(root NodeID, kind Kind) []NodeID {
	out := make([]NodeID, 0)
	for _, n := range g.Preorder(root) {
		if g.nodes[n].Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
