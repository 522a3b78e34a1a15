// Package unroll expands grammar types into genome subtrees.
//
// An unroll attempt either commits a complete, initialized and checked
// subtree or leaves the genome as it was before the attempt (apart from the id
// counter). Retrying is up to the caller.
package unroll

import (
	"fmt"
	"log/slog"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/grammar"
	"gramforge/internal/rrand"
)

const DefaultMaxDepth = 64

// Observer is told the outcome of every unroll attempt, nested growth
// included.
type Observer interface {
	ObserveUnroll(err error)
}

type Option func(*Unroller)

func WithMaxDepth(depth int) Option {
	return func(u *Unroller) {
		u.maxDepth = depth
	}
}

func WithObserver(o Observer) Option {
	return func(u *Unroller) {
		u.observer = o
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(u *Unroller) {
		u.logger = logger
	}
}

type Unroller struct {
	maxDepth int
	observer Observer
	logger   *slog.Logger
}

func New(opts ...Option) *Unroller {
	u := &Unroller{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(u)
	}
	if u.maxDepth <= 0 {
		u.maxDepth = DefaultMaxDepth
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	return u
}

// Unroll builds a new subtree of t and connects it to NodeZero as an
// independent root.
func (u *Unroller) Unroll(g *genome.Genome, t grammar.Type, rng *rrand.Engine) (genome.NodeID, error) {
	return u.Attach(g, t, rng, genome.NodeZero, -1)
}

// Attach builds a new subtree of t and inserts it among the children of parent
// at position. A negative position appends.
func (u *Unroller) Attach(g *genome.Genome, t grammar.Type, rng *rrand.Engine, parent genome.NodeID, position int) (genome.NodeID, error) {
	root, err := u.attempt(g, t, rng, parent, position)
	if u.observer != nil {
		u.observer.ObserveUnroll(err)
	}
	return root, err
}

// Grow lets structural parameters request a new independent subtree.
func (u *Unroller) Grow(g *genome.Genome, target genome.Element, rng *rrand.Engine) (genome.NodeID, error) {
	t, ok := target.(grammar.Type)
	if !ok {
		return 0, fmt.Errorf("%w: cannot grow %T", fault.ErrConfiguration, target)
	}
	return u.Unroll(g, t, rng)
}

func (u *Unroller) attempt(g *genome.Genome, t grammar.Type, rng *rrand.Engine, parent genome.NodeID, position int) (genome.NodeID, error) {
	if g == nil || t == nil || rng == nil {
		return 0, fmt.Errorf("%w: unroll needs a genome, a type and an engine", fault.ErrConfiguration)
	}
	if !g.Has(parent) {
		return 0, fmt.Errorf("%w: unknown parent node %d", fault.ErrConfiguration, parent)
	}
	mark := g.NextID()
	root, err := u.build(g, t, rng, 0)
	if err == nil {
		if position < 0 {
			position = len(g.Children(parent))
		}
		err = g.InsertChild(parent, root, position)
	}
	if err == nil {
		err = u.initialize(g, root, rng)
	}
	if err == nil {
		err = check(g, root)
	}
	if err != nil {
		g.RemoveFrom(mark)
		u.logger.Debug("unroll attempt rejected", "type", t.Name(), "parent", int(parent), "error", err)
		return 0, err
	}
	return root, nil
}

func (u *Unroller) build(g *genome.Genome, t grammar.Type, rng *rrand.Engine, depth int) (genome.NodeID, error) {
	if depth > u.maxDepth {
		return 0, fmt.Errorf("%w: %s nested deeper than %d", fault.ErrResolution, t.Name(), u.maxDepth)
	}
	switch tt := t.(type) {
	case *grammar.Macro:
		id, err := g.AddNode(genome.KindMacro, tt)
		if err != nil {
			return 0, err
		}
		n, _ := g.Node(id)
		for _, decl := range tt.Params() {
			p := decl.Spec.NewParameter()
			if p == nil {
				return 0, fmt.Errorf("%w: parameter %s of %s has no instance", fault.ErrConfiguration, decl.Name, tt.Name())
			}
			n.SetParam(decl.Name, p)
		}
		return id, nil
	case grammar.Frame:
		id, err := g.AddNode(genome.KindFrame, tt)
		if err != nil {
			return 0, err
		}
		successors, err := tt.Successors(rng)
		if err != nil {
			return 0, err
		}
		n, _ := g.Node(id)
		n.Chosen = make([]genome.Element, len(successors))
		for i, s := range successors {
			n.Chosen[i] = s
		}
		for _, s := range successors {
			child, err := u.build(g, s, rng, depth+1)
			if err != nil {
				return 0, err
			}
			if err := g.Connect(id, child); err != nil {
				return 0, err
			}
		}
		return id, nil
	default:
		return 0, fmt.Errorf("%w: %s cannot be unrolled here", fault.ErrConfiguration, t.Name())
	}
}

// initialize fastens every structural parameter of the new subtree and gives
// every parameter its first value.
func (u *Unroller) initialize(g *genome.Genome, root genome.NodeID, rng *rrand.Engine) error {
	for _, ref := range g.Parameters(root) {
		if f, ok := ref.Param.(genome.Fastener); ok {
			anchor := genome.Anchor{Genome: g, Node: ref.Node, Key: ref.Name, Grower: u}
			if err := f.Fasten(anchor); err != nil {
				return err
			}
		}
		if err := ref.Param.Mutate(rng, 1); err != nil {
			return fmt.Errorf("initialize %d.%s: %w", ref.Node, ref.Name, err)
		}
	}
	return nil
}

// Verify checks the structural invariants of g and runs every element check
// over all of its subtrees. Mutation operators use it on their offspring.
func Verify(g *genome.Genome) error {
	if err := g.Validate(); err != nil {
		return err
	}
	for _, root := range g.Children(genome.NodeZero) {
		if err := check(g, root); err != nil {
			return err
		}
	}
	return nil
}

func check(g *genome.Genome, root genome.NodeID) error {
	for _, id := range g.Preorder(root) {
		n, _ := g.Node(id)
		t, ok := n.Element.(grammar.Type)
		if !ok {
			return fmt.Errorf("%w: node %d holds %T", fault.ErrValidity, id, n.Element)
		}
		if m, isMacro := t.(*grammar.Macro); isMacro && !m.Complete(n) {
			return fmt.Errorf("%w: macro node %d misses declared parameters", fault.ErrValidity, id)
		}
		for i, c := range t.Checks() {
			if !c(g.View(id)) {
				return fmt.Errorf("%w: check %d of %s failed at %s", fault.ErrValidity, i, t.Name(), g.View(id).PathName())
			}
		}
	}
	return nil
}
