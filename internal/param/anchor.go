package param

import (
	"fmt"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
)

// fastening is embedded by the parameters that live on a genome anchor.
type fastening struct {
	anchor   genome.Anchor
	fastened bool
}

func (f *fastening) Fasten(a genome.Anchor) error {
	if a.Genome == nil {
		return fmt.Errorf("%w: anchor has no genome", fault.ErrConfiguration)
	}
	n, ok := a.Genome.Node(a.Node)
	if !ok || n.Kind != genome.KindMacro {
		return fmt.Errorf("%w: anchor node %d is not a macro", fault.ErrConfiguration, a.Node)
	}
	if a.Key == "" {
		return fmt.Errorf("%w: anchor key is required", fault.ErrConfiguration)
	}
	f.anchor = a
	f.fastened = true
	return nil
}

func (f *fastening) Anchor() (genome.Anchor, bool) {
	return f.anchor, f.fastened
}

func (f *fastening) mustAnchor(what string) (genome.Anchor, error) {
	if !f.fastened {
		return genome.Anchor{}, fmt.Errorf("%w: %s is not fastened", fault.ErrConfiguration, what)
	}
	return f.anchor, nil
}

func (f *fastening) linkValue() any {
	if !f.fastened {
		return nil
	}
	target, ok := f.anchor.Genome.Link(f.anchor.Node, f.anchor.Key)
	if !ok {
		return nil
	}
	return target
}

// anchoredIndex returns the position of the current link target in candidates.
func anchoredIndex(a genome.Anchor, candidates []genome.NodeID) *int {
	prev, ok := a.Genome.Link(a.Node, a.Key)
	if !ok {
		return nil
	}
	for i, c := range candidates {
		if c == prev {
			return &i
		}
	}
	return nil
}
