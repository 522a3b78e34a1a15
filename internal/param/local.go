package param

import (
	"fmt"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/rrand"
)

// LocalSpec links a macro to one of its siblings: the nodes sharing its
// framework parent.
type LocalSpec struct {
	backward bool
	selfLoop bool
	forward  bool
}

func NewLocalReference(backward, selfLoop, forward bool) (*LocalSpec, error) {
	if !backward && !selfLoop && !forward {
		return nil, fmt.Errorf("%w: local reference allows no direction", fault.ErrConfiguration)
	}
	return &LocalSpec{backward: backward, selfLoop: selfLoop, forward: forward}, nil
}

func (s *LocalSpec) Directions() (backward, selfLoop, forward bool) {
	return s.backward, s.selfLoop, s.forward
}

func (s *LocalSpec) NewParameter() genome.Parameter { return &LocalReference{spec: s} }

type LocalReference struct {
	fastening
	spec *LocalSpec
}

// Value is the genome.NodeID of the current target, or nil.
func (p *LocalReference) Value() any {
	return p.linkValue()
}

func (p *LocalReference) Candidates() ([]genome.NodeID, error) {
	a, err := p.mustAnchor("local reference")
	if err != nil {
		return nil, err
	}
	siblings, err := a.Genome.Siblings(a.Node)
	if err != nil {
		return nil, err
	}
	pos := -1
	for i, s := range siblings {
		if s == a.Node {
			pos = i
			break
		}
	}
	out := make([]genome.NodeID, 0, len(siblings))
	for i, s := range siblings {
		switch {
		case i < pos && p.spec.backward,
			i == pos && p.spec.selfLoop,
			i > pos && p.spec.forward:
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *LocalReference) Mutate(rng *rrand.Engine, strength float64) error {
	a, err := p.mustAnchor("local reference")
	if err != nil {
		return err
	}
	candidates, err := p.Candidates()
	if err != nil {
		return err
	}
	old := anchoredIndex(a, candidates)
	a.Genome.DropLink(a.Node, a.Key)
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no sibling of node %d fits local reference %s", fault.ErrResolution, a.Node, a.Key)
	}
	idx, err := rng.ChoiceIndex(len(candidates), old, strength)
	if err != nil {
		return err
	}
	return a.Genome.SetLink(a.Node, a.Key, candidates[idx])
}

func (p *LocalReference) Clone() genome.Parameter {
	return &LocalReference{spec: p.spec}
}
