// Package genome holds the attributed multigraph of one individual.
//
// Nodes live in an arena indexed by NodeID. Framework edges form an out-tree
// rooted at NodeZero and define the grammar composition; link edges record
// the current target of each structural parameter, keyed by the owner node and
// the parameter name. Ids are assigned from a monotonic counter and are never
// reused, even after a rollback.
package genome

import (
	"cmp"
	"fmt"
	"slices"

	"gramforge/internal/fault"
	"gramforge/internal/rrand"
)

type NodeID int

// NodeZero is the synthetic root connecting all independent subtrees.
const NodeZero NodeID = 0

type Kind uint8

const (
	KindRoot Kind = iota
	KindFrame
	KindMacro
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindFrame:
		return "frame"
	case KindMacro:
		return "macro"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Element is the grammar type a node was instantiated from.
type Element interface {
	Name() string
}

// Parameter is one instantiated macro parameter.
type Parameter interface {
	// Value returns nil until the first Mutate.
	Value() any
	Mutate(rng *rrand.Engine, strength float64) error
	// Clone returns an unfastened copy carrying the same value.
	Clone() Parameter
}

// Grower builds a new independent subtree under NodeZero on request of a
// structural parameter.
type Grower interface {
	Grow(g *Genome, target Element, rng *rrand.Engine) (NodeID, error)
}

// Anchor is where a structural parameter lives: its genome, its owner node and
// the key of its link edge. The genome is not owned by the parameter.
type Anchor struct {
	Genome *Genome
	Node   NodeID
	Key    string
	Grower Grower
}

// Fastener is implemented by parameters that need their anchor.
type Fastener interface {
	Fasten(a Anchor) error
	Anchor() (Anchor, bool)
}

type Node struct {
	ID      NodeID
	Kind    Kind
	Element Element
	// Chosen holds the successors a frame drew when it was instantiated.
	Chosen []Element

	paramOrder []string
	params     map[string]Parameter
}

func (n *Node) ParamNames() []string {
	return append([]string(nil), n.paramOrder...)
}

func (n *Node) Param(name string) (Parameter, bool) {
	p, ok := n.params[name]
	return p, ok
}

// SetParam stores p under name, keeping declaration order for new names.
func (n *Node) SetParam(name string, p Parameter) {
	if n.params == nil {
		n.params = make(map[string]Parameter)
	}
	if _, exists := n.params[name]; !exists {
		n.paramOrder = append(n.paramOrder, name)
	}
	n.params[name] = p
}

type LinkKey struct {
	Owner NodeID
	Key   string
}

type Link struct {
	Owner  NodeID `json:"owner"`
	Target NodeID `json:"target"`
	Key    string `json:"key"`
}

type Genome struct {
	next     NodeID
	nodes    map[NodeID]*Node
	parent   map[NodeID]NodeID
	children map[NodeID][]NodeID
	links    map[LinkKey]NodeID
	shared   map[any]*sharedCell
}

type sharedCell struct {
	param     Parameter
	owner     LinkKey
	owned     bool
	claimants []LinkKey
}

func New() *Genome {
	g := &Genome{
		next:     NodeZero + 1,
		nodes:    make(map[NodeID]*Node),
		parent:   make(map[NodeID]NodeID),
		children: make(map[NodeID][]NodeID),
		links:    make(map[LinkKey]NodeID),
		shared:   make(map[any]*sharedCell),
	}
	g.nodes[NodeZero] = &Node{ID: NodeZero, Kind: KindRoot}
	return g
}

// NextID is the id the next AddNode will assign.
func (g *Genome) NextID() NodeID {
	return g.next
}

func (g *Genome) Len() int {
	return len(g.nodes)
}

func (g *Genome) AddNode(kind Kind, element Element) (NodeID, error) {
	if kind != KindFrame && kind != KindMacro {
		return 0, fmt.Errorf("%w: cannot add a node of kind %s", fault.ErrConfiguration, kind)
	}
	if element == nil {
		return 0, fmt.Errorf("%w: node element is required", fault.ErrConfiguration)
	}
	id := g.next
	g.next++
	g.nodes[id] = &Node{ID: id, Kind: kind, Element: element}
	return id, nil
}

func (g *Genome) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Genome) Has(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// SharedCell returns the value cell registered under key, creating it with
// create when missing, and records claimant as one of its handles. The first
// claimant becomes the owner of the cell; the boolean reports whether
// claimant owns it. When the owner node is removed, ownership passes to the
// surviving claimant with the lowest node id, ties broken by declaration
// order.
func (g *Genome) SharedCell(key any, claimant LinkKey, create func() Parameter) (Parameter, bool) {
	cell, ok := g.shared[key]
	if !ok {
		cell = &sharedCell{param: create()}
		g.shared[key] = cell
	}
	if !slices.Contains(cell.claimants, claimant) {
		cell.claimants = append(cell.claimants, claimant)
	}
	if !cell.owned {
		cell.owner = claimant
		cell.owned = true
	}
	return cell.param, cell.owner == claimant
}

// LookupShared reads the cell registered under key without claiming it.
func (g *Genome) LookupShared(key any, claimant LinkKey) (cell Parameter, owner bool, ok bool) {
	c, found := g.shared[key]
	if !found {
		return nil, false, false
	}
	return c.param, c.owned && c.owner == claimant, true
}

func (g *Genome) releaseShared(gone func(NodeID) bool) {
	for _, cell := range g.shared {
		cell.claimants = slices.DeleteFunc(cell.claimants, func(k LinkKey) bool { return gone(k.Owner) })
		if !cell.owned || !gone(cell.owner.Owner) {
			continue
		}
		cell.owned = false
		if len(cell.claimants) == 0 {
			continue
		}
		cell.owner = slices.MinFunc(cell.claimants, g.compareClaimants)
		cell.owned = true
	}
}

func (g *Genome) compareClaimants(a, b LinkKey) int {
	if c := cmp.Compare(a.Owner, b.Owner); c != 0 {
		return c
	}
	return cmp.Compare(g.declarationIndex(a), g.declarationIndex(b))
}

func (g *Genome) declarationIndex(k LinkKey) int {
	n, ok := g.nodes[k.Owner]
	if !ok {
		return -1
	}
	return slices.Index(n.paramOrder, k.Key)
}

// RemoveFrom deletes every node with id >= mark together with its framework
// and link edges. The id counter is not rewound.
func (g *Genome) RemoveFrom(mark NodeID) {
	if mark <= NodeZero {
		mark = NodeZero + 1
	}
	for id := range g.nodes {
		if id < mark {
			continue
		}
		if p, ok := g.parent[id]; ok && p < mark {
			g.children[p] = removeID(g.children[p], id)
		}
		delete(g.nodes, id)
		delete(g.parent, id)
		delete(g.children, id)
	}
	for key, target := range g.links {
		if key.Owner >= mark || target >= mark {
			delete(g.links, key)
		}
	}
	g.releaseShared(func(id NodeID) bool { return id >= mark })
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
