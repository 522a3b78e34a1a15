package genome

import (
	"fmt"

	"gramforge/internal/fault"
)

// Validate checks the structural invariants: the framework edges form an
// out-tree rooted at NodeZero spanning every node, only frames and NodeZero
// have children, and every link targets a reachable node.
func (g *Genome) Validate() error {
	root, ok := g.nodes[NodeZero]
	if !ok || root.Kind != KindRoot {
		return fmt.Errorf("%w: node zero is missing", fault.ErrValidity)
	}
	if _, has := g.parent[NodeZero]; has {
		return fmt.Errorf("%w: node zero has a parent", fault.ErrValidity)
	}
	for id, n := range g.nodes {
		if id >= g.next {
			return fmt.Errorf("%w: node %d is beyond the id counter %d", fault.ErrValidity, id, g.next)
		}
		if id == NodeZero {
			continue
		}
		if n.Kind != KindFrame && n.Kind != KindMacro {
			return fmt.Errorf("%w: node %d has kind %s", fault.ErrValidity, id, n.Kind)
		}
		if n.Kind == KindMacro && len(g.children[id]) > 0 {
			return fmt.Errorf("%w: macro node %d has children", fault.ErrValidity, id)
		}
		if _, has := g.parent[id]; !has {
			return fmt.Errorf("%w: node %d has no framework in-edge", fault.ErrValidity, id)
		}
	}
	seen := make(map[NodeID]struct{}, len(g.nodes))
	for _, n := range g.Preorder(NodeZero) {
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: node %d reached twice", fault.ErrValidity, n)
		}
		seen[n] = struct{}{}
		for _, c := range g.children[n] {
			if g.parent[c] != n {
				return fmt.Errorf("%w: child %d of %d records parent %d", fault.ErrValidity, c, n, g.parent[c])
			}
		}
	}
	if len(seen) != len(g.nodes) {
		return fmt.Errorf("%w: %d of %d nodes reachable from node zero", fault.ErrValidity, len(seen), len(g.nodes))
	}
	for k, target := range g.links {
		if _, ok := seen[k.Owner]; !ok {
			return fmt.Errorf("%w: link %s owned by detached node %d", fault.ErrValidity, k.Key, k.Owner)
		}
		if _, ok := seen[target]; !ok {
			return fmt.Errorf("%w: link %d.%s targets detached node %d", fault.ErrValidity, k.Owner, k.Key, target)
		}
	}
	return nil
}
