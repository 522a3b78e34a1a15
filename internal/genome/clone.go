package genome

import (
	"cmp"
	"fmt"
	"slices"
)

// Clone deep-copies the genome. Parameters are cloned and anchored parameters
// are fastened again on the copy with the same node, key and grower.
func (g *Genome) Clone() (*Genome, error) {
	c := &Genome{
		next:     g.next,
		nodes:    make(map[NodeID]*Node, len(g.nodes)),
		parent:   make(map[NodeID]NodeID, len(g.parent)),
		children: make(map[NodeID][]NodeID, len(g.children)),
		links:    make(map[LinkKey]NodeID, len(g.links)),
		shared:   make(map[any]*sharedCell, len(g.shared)),
	}
	for id, p := range g.parent {
		c.parent[id] = p
	}
	for id, kids := range g.children {
		c.children[id] = append([]NodeID(nil), kids...)
	}
	for k, t := range g.links {
		c.links[k] = t
	}
	for k, cell := range g.shared {
		c.shared[k] = &sharedCell{
			param:     cell.param.Clone(),
			owner:     cell.owner,
			owned:     cell.owned,
			claimants: append([]LinkKey(nil), cell.claimants...),
		}
	}

	type pending struct {
		param  Fastener
		anchor Anchor
	}
	refasten := make([]pending, 0)
	for id, n := range g.nodes {
		cn := &Node{
			ID:         n.ID,
			Kind:       n.Kind,
			Element:    n.Element,
			Chosen:     append([]Element(nil), n.Chosen...),
			paramOrder: append([]string(nil), n.paramOrder...),
		}
		if n.params != nil {
			cn.params = make(map[string]Parameter, len(n.params))
		}
		for _, name := range n.paramOrder {
			p := n.params[name]
			cp := p.Clone()
			cn.params[name] = cp
			f, ok := p.(Fastener)
			if !ok {
				continue
			}
			a, anchored := f.Anchor()
			if !anchored {
				continue
			}
			cf, ok := cp.(Fastener)
			if !ok {
				return nil, fmt.Errorf("clone of parameter %d.%s lost its anchor", id, name)
			}
			a.Genome = c
			refasten = append(refasten, pending{param: cf, anchor: a})
		}
		c.nodes[id] = cn
	}
	slices.SortStableFunc(refasten, func(a, b pending) int {
		return cmp.Compare(a.anchor.Node, b.anchor.Node)
	})
	for _, r := range refasten {
		if err := r.param.Fasten(r.anchor); err != nil {
			return nil, err
		}
	}
	return c, nil
}
