package param

import (
	"fmt"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/grammar"
	"gramforge/internal/rrand"
)

// SharedSpec binds every parameter it creates within one genome to a single
// value cell. The first handle fastened in a genome owns the cell and mutates
// it; the others mirror its value.
type SharedSpec struct {
	inner ValueSpec
}

func NewShared(inner grammar.ParamSpec) (*SharedSpec, error) {
	v, ok := inner.(ValueSpec)
	if !ok {
		return nil, fmt.Errorf("%w: only value parameters can be shared, got %T", fault.ErrConfiguration, inner)
	}
	return &SharedSpec{inner: v}, nil
}

func (s *SharedSpec) Inner() grammar.ParamSpec { return s.inner }

func (s *SharedSpec) NewParameter() genome.Parameter { return &Shared{spec: s} }

type Shared struct {
	fastening
	spec *SharedSpec
}

func (p *Shared) claimant(a genome.Anchor) genome.LinkKey {
	return genome.LinkKey{Owner: a.Node, Key: a.Key}
}

// Fasten registers the handle with the genome's cell for this parameter.
func (p *Shared) Fasten(a genome.Anchor) error {
	if err := p.fastening.Fasten(a); err != nil {
		return err
	}
	a.Genome.SharedCell(p.spec, p.claimant(a), p.spec.inner.NewParameter)
	return nil
}

func (p *Shared) cell() (genome.Parameter, bool, error) {
	a, err := p.mustAnchor("shared parameter")
	if err != nil {
		return nil, false, err
	}
	cell, owner, ok := a.Genome.LookupShared(p.spec, p.claimant(a))
	if !ok {
		return nil, false, fmt.Errorf("%w: shared cell of %d.%s is missing", fault.ErrConfiguration, a.Node, a.Key)
	}
	return cell, owner, nil
}

// Owner reports whether this handle mutates the cell.
func (p *Shared) Owner() bool {
	_, owner, err := p.cell()
	return err == nil && owner
}

func (p *Shared) Value() any {
	cell, _, err := p.cell()
	if err != nil {
		return nil
	}
	return cell.Value()
}

func (p *Shared) Mutate(rng *rrand.Engine, strength float64) error {
	cell, owner, err := p.cell()
	if err != nil {
		return err
	}
	if !owner {
		return nil
	}
	return cell.Mutate(rng, strength)
}

func (p *Shared) Clone() genome.Parameter {
	return &Shared{spec: p.spec}
}
