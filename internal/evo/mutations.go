package evo

import (
	"context"
	"errors"
	"fmt"

	"gramforge/internal/genome"
	"gramforge/internal/grammar"
	"gramforge/internal/individual"
	"gramforge/internal/rrand"
	"gramforge/internal/unroll"
)

// SingleParameterMutation mutates one parameter picked uniformly among all
// parameters of the genome. Strength is in [0, 1].
type SingleParameterMutation struct {
	Rand     *rrand.Engine
	Strength float64
}

func (o *SingleParameterMutation) Name() string {
	return "single_parameter_mutation"
}

func (o *SingleParameterMutation) Applicable(parent *individual.Individual) bool {
	return parent != nil && parent.Genome != nil && len(parent.Genome.Parameters(genome.NodeZero)) > 0
}

func (o *SingleParameterMutation) Apply(ctx context.Context, parent *individual.Individual) (*individual.Individual, error) {
	child, err := offspringOf(ctx, parent, o.Rand)
	if err != nil {
		return nil, err
	}
	params := child.Genome.Parameters(genome.NodeZero)
	if len(params) == 0 {
		return nil, ErrNoMutationChoice
	}
	idx, err := o.Rand.ChoiceIndex(len(params), nil, 1)
	if err != nil {
		return nil, err
	}
	ref := params[idx]
	if err := ref.Param.Mutate(o.Rand, o.Strength); err != nil {
		return nil, fmt.Errorf("%s %d.%s: %w", o.Name(), ref.Node, ref.Name, err)
	}
	return verified(o.Name(), child)
}

// AddMacroToBunch unrolls one more pool member into a bunch that is below its
// maximum size, at a random position among the existing members.
type AddMacroToBunch struct {
	Rand     *rrand.Engine
	Unroller *unroll.Unroller
}

func (o *AddMacroToBunch) Name() string {
	return "add_macro_to_bunch"
}

func (o *AddMacroToBunch) Applicable(parent *individual.Individual) bool {
	return parent != nil && parent.Genome != nil && len(growableBunches(parent.Genome)) > 0
}

func (o *AddMacroToBunch) Apply(ctx context.Context, parent *individual.Individual) (*individual.Individual, error) {
	if o.Unroller == nil {
		return nil, errors.New("unroller is required")
	}
	child, err := offspringOf(ctx, parent, o.Rand)
	if err != nil {
		return nil, err
	}
	g := child.Genome
	candidates := growableBunches(g)
	if len(candidates) == 0 {
		return nil, ErrNoMutationChoice
	}
	idx, err := o.Rand.ChoiceIndex(len(candidates), nil, 1)
	if err != nil {
		return nil, err
	}
	node := candidates[idx]
	bunch := bunchAt(g, node)
	member, err := bunch.Draw(o.Rand)
	if err != nil {
		return nil, err
	}
	members := len(g.Children(node))
	position, err := o.Rand.Randint(0, members+1, nil, 1)
	if err != nil {
		return nil, err
	}
	if _, err := o.Unroller.Attach(g, member, o.Rand, node, position); err != nil {
		return nil, fmt.Errorf("%s: %w", o.Name(), err)
	}
	n, _ := g.Node(node)
	n.Chosen = insertElement(n.Chosen, position, member)
	return verified(o.Name(), child)
}

// RemoveMacroFromBunch drops one member of a bunch that is above its minimum
// size. Structural parameters that pointed into the removed subtree are
// resolved again.
type RemoveMacroFromBunch struct {
	Rand *rrand.Engine
}

func (o *RemoveMacroFromBunch) Name() string {
	return "remove_macro_from_bunch"
}

func (o *RemoveMacroFromBunch) Applicable(parent *individual.Individual) bool {
	return parent != nil && parent.Genome != nil && len(shrinkableBunches(parent.Genome)) > 0
}

func (o *RemoveMacroFromBunch) Apply(ctx context.Context, parent *individual.Individual) (*individual.Individual, error) {
	child, err := offspringOf(ctx, parent, o.Rand)
	if err != nil {
		return nil, err
	}
	g := child.Genome
	candidates := shrinkableBunches(g)
	if len(candidates) == 0 {
		return nil, ErrNoMutationChoice
	}
	idx, err := o.Rand.ChoiceIndex(len(candidates), nil, 1)
	if err != nil {
		return nil, err
	}
	node := candidates[idx]
	members := g.Children(node)
	pos, err := o.Rand.ChoiceIndex(len(members), nil, 1)
	if err != nil {
		return nil, err
	}
	victim := members[pos]

	dangling := danglingLinks(g, victim)
	if err := g.Detach(victim); err != nil {
		return nil, err
	}
	n, _ := g.Node(node)
	if pos < len(n.Chosen) {
		n.Chosen = append(n.Chosen[:pos:pos], n.Chosen[pos+1:]...)
	}
	for _, l := range dangling {
		owner, ok := g.Node(l.Owner)
		if !ok {
			continue
		}
		p, ok := owner.Param(l.Key)
		if !ok {
			continue
		}
		if err := p.Mutate(o.Rand, 1); err != nil {
			return nil, fmt.Errorf("%s: re-resolve %d.%s: %w", o.Name(), l.Owner, l.Key, err)
		}
	}
	return verified(o.Name(), child)
}

// danglingLinks lists the links owned outside the subtree of root that
// point into it.
func danglingLinks(g *genome.Genome, root genome.NodeID) []genome.Link {
	inside := make(map[genome.NodeID]bool)
	for _, id := range g.Preorder(root) {
		inside[id] = true
	}
	out := make([]genome.Link, 0)
	for _, l := range g.Links() {
		if inside[l.Target] && !inside[l.Owner] {
			out = append(out, l)
		}
	}
	return out
}

func bunchAt(g *genome.Genome, id genome.NodeID) *grammar.Bunch {
	n, ok := g.Node(id)
	if !ok {
		return nil
	}
	b, _ := n.Element.(*grammar.Bunch)
	return b
}

func growableBunches(g *genome.Genome) []genome.NodeID {
	return bunchesWhere(g, func(b *grammar.Bunch, members int) bool {
		_, max := b.Size()
		return members < max-1
	})
}

func shrinkableBunches(g *genome.Genome) []genome.NodeID {
	return bunchesWhere(g, func(b *grammar.Bunch, members int) bool {
		min, _ := b.Size()
		return members > min
	})
}

func bunchesWhere(g *genome.Genome, keep func(b *grammar.Bunch, members int) bool) []genome.NodeID {
	out := make([]genome.NodeID, 0)
	for _, id := range g.FramesOf(isBunch) {
		if keep(bunchAt(g, id), len(g.Children(id))) {
			out = append(out, id)
		}
	}
	return out
}

func isBunch(e genome.Element) bool {
	_, ok := e.(*grammar.Bunch)
	return ok
}

func insertElement(list []genome.Element, position int, e genome.Element) []genome.Element {
	if position < 0 || position > len(list) {
		return append(list, e)
	}
	list = append(list, nil)
	copy(list[position+1:], list[position:])
	list[position] = e
	return list
}
