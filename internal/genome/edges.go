package genome

import (
	"fmt"
	"sort"

	"gramforge/internal/fault"
)

// Connect adds the framework edge parent -> child as the last child of parent.
func (g *Genome) Connect(parent, child NodeID) error {
	return g.InsertChild(parent, child, len(g.children[parent]))
}

// InsertChild adds the framework edge parent -> child at the given position
// among the children of parent.
func (g *Genome) InsertChild(parent, child NodeID, position int) error {
	p, ok := g.nodes[parent]
	if !ok {
		return fmt.Errorf("%w: unknown parent node %d", fault.ErrConfiguration, parent)
	}
	if _, ok := g.nodes[child]; !ok {
		return fmt.Errorf("%w: unknown child node %d", fault.ErrConfiguration, child)
	}
	if child == NodeZero {
		return fmt.Errorf("%w: node zero cannot have a parent", fault.ErrConfiguration)
	}
	if p.Kind == KindMacro {
		return fmt.Errorf("%w: macro node %d cannot have children", fault.ErrConfiguration, parent)
	}
	if existing, has := g.parent[child]; has {
		return fmt.Errorf("%w: node %d already has parent %d", fault.ErrConfiguration, child, existing)
	}
	for n := parent; ; {
		if n == child {
			return fmt.Errorf("%w: edge %d -> %d would close a cycle", fault.ErrConfiguration, parent, child)
		}
		up, has := g.parent[n]
		if !has {
			break
		}
		n = up
	}
	kids := g.children[parent]
	if position < 0 || position > len(kids) {
		return fmt.Errorf("%w: position %d out of range for %d children", fault.ErrConfiguration, position, len(kids))
	}
	kids = append(kids, 0)
	copy(kids[position+1:], kids[position:])
	kids[position] = child
	g.children[parent] = kids
	g.parent[child] = parent
	return nil
}

// Detach removes the framework edge into child and every node below it.
// Links owned by or pointing into the removed nodes are dropped.
func (g *Genome) Detach(child NodeID) error {
	parent, ok := g.parent[child]
	if !ok {
		return fmt.Errorf("%w: node %d has no parent", fault.ErrConfiguration, child)
	}
	removed := g.Preorder(child)
	gone := make(map[NodeID]struct{}, len(removed))
	for _, id := range removed {
		gone[id] = struct{}{}
	}
	g.children[parent] = removeID(g.children[parent], child)
	for _, id := range removed {
		delete(g.nodes, id)
		delete(g.parent, id)
		delete(g.children, id)
	}
	for key, target := range g.links {
		_, ownerGone := gone[key.Owner]
		_, targetGone := gone[target]
		if ownerGone || targetGone {
			delete(g.links, key)
		}
	}
	g.releaseShared(func(id NodeID) bool {
		_, isGone := gone[id]
		return isGone
	})
	return nil
}

func (g *Genome) Parent(id NodeID) (NodeID, bool) {
	p, ok := g.parent[id]
	return p, ok
}

func (g *Genome) Children(id NodeID) []NodeID {
	return append([]NodeID(nil), g.children[id]...)
}

// Siblings returns the children of id's parent, id included, in order.
func (g *Genome) Siblings(id NodeID) ([]NodeID, error) {
	if id == NodeZero {
		return nil, fmt.Errorf("%w: node zero has no siblings", fault.ErrConfiguration)
	}
	parent, ok := g.parent[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d is not attached", fault.ErrResolution, id)
	}
	return g.Children(parent), nil
}

// Reachable reports whether id hangs below NodeZero through framework edges.
func (g *Genome) Reachable(id NodeID) bool {
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	for n := id; n != NodeZero; {
		up, ok := g.parent[n]
		if !ok {
			return false
		}
		n = up
	}
	return true
}

// SetLink points the link (owner, key) to target, replacing any previous one.
func (g *Genome) SetLink(owner NodeID, key string, target NodeID) error {
	n, ok := g.nodes[owner]
	if !ok {
		return fmt.Errorf("%w: unknown link owner %d", fault.ErrConfiguration, owner)
	}
	if n.Kind != KindMacro {
		return fmt.Errorf("%w: link owner %d is a %s", fault.ErrConfiguration, owner, n.Kind)
	}
	if !g.Reachable(target) {
		return fmt.Errorf("%w: link target %d is not reachable from node zero", fault.ErrResolution, target)
	}
	g.links[LinkKey{Owner: owner, Key: key}] = target
	return nil
}

func (g *Genome) Link(owner NodeID, key string) (NodeID, bool) {
	target, ok := g.links[LinkKey{Owner: owner, Key: key}]
	return target, ok
}

func (g *Genome) DropLink(owner NodeID, key string) {
	delete(g.links, LinkKey{Owner: owner, Key: key})
}

// Links returns all link edges sorted by owner and key.
func (g *Genome) Links() []Link {
	out := make([]Link, 0, len(g.links))
	for k, target := range g.links {
		out = append(out, Link{Owner: k.Owner, Target: target, Key: k.Key})
	}
	sortLinks(out)
	return out
}

func (g *Genome) LinksFrom(owner NodeID) []Link {
	out := make([]Link, 0)
	for k, target := range g.links {
		if k.Owner == owner {
			out = append(out, Link{Owner: k.Owner, Target: target, Key: k.Key})
		}
	}
	sortLinks(out)
	return out
}

func (g *Genome) LinksTo(target NodeID) []Link {
	out := make([]Link, 0)
	for k, t := range g.links {
		if t == target {
			out = append(out, Link{Owner: k.Owner, Target: t, Key: k.Key})
		}
	}
	sortLinks(out)
	return out
}

func sortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].Owner != links[j].Owner {
			return links[i].Owner < links[j].Owner
		}
		return links[i].Key < links[j].Key
	})
}
