package param

import (
	"fmt"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/grammar"
	"gramforge/internal/rrand"
)

// Zeal is the policy deciding when a global reference creates a new target
// subtree instead of reusing an existing one. Its two forms are distinct:
// ZealSlots adds creation candidates, ZealProbability forces creation.
type Zeal interface {
	zeal()
}

// ZealSlots appends that many creation slots to the natural targets.
type ZealSlots int

// ZealProbability replaces the natural targets with a single creation slot
// with the given probability.
type ZealProbability float64

func (ZealSlots) zeal() {}
func (ZealProbability) zeal() {}

// createSlot marks a creation candidate; node ids are never negative.
const createSlot genome.NodeID = -1

// GlobalSpec links a macro to a macro below any frame of the target type in
// the whole genome.
type GlobalSpec struct {
	target     grammar.Type
	targetName string
	dir        *grammar.Directory
	firstMacro bool
	zeal       Zeal
}

// NewGlobalReference targets frames of exactly the given type. A nil zeal
// means ZealSlots(0).
func NewGlobalReference(target grammar.Type, firstMacro bool, zeal Zeal) (*GlobalSpec, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: global reference target is required", fault.ErrConfiguration)
	}
	if _, ok := target.(grammar.Frame); !ok {
		return nil, fmt.Errorf("%w: global reference target %s is not a frame", fault.ErrConfiguration, target.Name())
	}
	z, err := checkZeal(zeal)
	if err != nil {
		return nil, err
	}
	return &GlobalSpec{target: target, firstMacro: firstMacro, zeal: z}, nil
}

// NewNamedGlobalReference targets the frame registered under name in dir. The
// name is resolved at each resolution, so the frame may be registered later.
func NewNamedGlobalReference(dir *grammar.Directory, name string, firstMacro bool, zeal Zeal) (*GlobalSpec, error) {
	if dir == nil {
		return nil, fmt.Errorf("%w: directory is required to resolve %q", fault.ErrConfiguration, name)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: global reference target name is required", fault.ErrConfiguration)
	}
	z, err := checkZeal(zeal)
	if err != nil {
		return nil, err
	}
	return &GlobalSpec{targetName: name, dir: dir, firstMacro: firstMacro, zeal: z}, nil
}

func checkZeal(zeal Zeal) (Zeal, error) {
	switch z := zeal.(type) {
	case nil:
		return ZealSlots(0), nil
	case ZealSlots:
		if z < 0 {
			return nil, fmt.Errorf("%w: negative creation slots %d", fault.ErrConfiguration, int(z))
		}
	case ZealProbability:
		if z < 0 || z >= 1 {
			return nil, fmt.Errorf("%w: creation probability %v outside [0, 1)", fault.ErrConfiguration, float64(z))
		}
	}
	return zeal, nil
}

func (s *GlobalSpec) NewParameter() genome.Parameter { return &GlobalReference{spec: s} }

func (s *GlobalSpec) FirstMacro() bool { return s.firstMacro }

func (s *GlobalSpec) Zeal() Zeal { return s.zeal }

// Target resolves the target frame type.
func (s *GlobalSpec) Target() (grammar.Type, error) {
	if s.target != nil {
		return s.target, nil
	}
	t, err := s.dir.Lookup(s.targetName)
	if err != nil {
		return nil, fmt.Errorf("global reference: %w", err)
	}
	if _, ok := t.(grammar.Frame); !ok {
		return nil, fmt.Errorf("%w: global reference target %s is not a frame", fault.ErrConfiguration, s.targetName)
	}
	return t, nil
}

func (s *GlobalSpec) macrosUnder(g *genome.Genome, frames []genome.NodeID) []genome.NodeID {
	out := make([]genome.NodeID, 0)
	for _, f := range frames {
		if s.firstMacro {
			if m, ok := g.FirstMacro(f); ok {
				out = append(out, m)
			}
			continue
		}
		out = append(out, g.Macros(f)...)
	}
	return out
}

type GlobalReference struct {
	fastening
	spec *GlobalSpec
}

// Value is the genome.NodeID of the current target, or nil.
func (p *GlobalReference) Value() any {
	return p.linkValue()
}

// Candidates lists the natural targets: macros below every frame of the
// target type, in preorder.
func (p *GlobalReference) Candidates() ([]genome.NodeID, error) {
	a, err := p.mustAnchor("global reference")
	if err != nil {
		return nil, err
	}
	target, err := p.spec.Target()
	if err != nil {
		return nil, err
	}
	frames := a.Genome.FramesOf(func(e genome.Element) bool { return e == genome.Element(target) })
	return p.spec.macrosUnder(a.Genome, frames), nil
}

func (p *GlobalReference) Mutate(rng *rrand.Engine, strength float64) error {
	a, err := p.mustAnchor("global reference")
	if err != nil {
		return err
	}
	target, err := p.spec.Target()
	if err != nil {
		return err
	}
	candidates, err := p.Candidates()
	if err != nil {
		return err
	}
	candidates = p.withCreationSlots(candidates, rng)
	old := anchoredIndex(a, candidates)
	a.Genome.DropLink(a.Node, a.Key)
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no %s frame to link %d.%s to", fault.ErrResolution, target.Name(), a.Node, a.Key)
	}

	idx, err := rng.ChoiceIndex(len(candidates), old, strength)
	if err != nil {
		return err
	}
	pick := candidates[idx]
	if pick == createSlot {
		if a.Grower == nil {
			return fmt.Errorf("%w: global reference %d.%s cannot grow without a grower", fault.ErrConfiguration, a.Node, a.Key)
		}
		root, err := a.Grower.Grow(a.Genome, target, rng)
		if err != nil {
			return err
		}
		fresh := p.spec.macrosUnder(a.Genome, []genome.NodeID{root})
		if len(fresh) == 0 {
			return fmt.Errorf("%w: new %s subtree %d has no macro", fault.ErrResolution, target.Name(), root)
		}
		idx, err = rng.ChoiceIndex(len(fresh), nil, 1)
		if err != nil {
			return err
		}
		pick = fresh[idx]
	}
	return a.Genome.SetLink(a.Node, a.Key, pick)
}

// withCreationSlots applies the zeal policy to the natural targets.
func (p *GlobalReference) withCreationSlots(candidates []genome.NodeID, rng *rrand.Engine) []genome.NodeID {
	switch z := p.spec.zeal.(type) {
	case ZealSlots:
		if len(candidates) == 0 && z > 0 {
			return []genome.NodeID{createSlot}
		}
		for i := 0; i < int(z); i++ {
			candidates = append(candidates, createSlot)
		}
	case ZealProbability:
		if len(candidates) == 0 && z > 0 {
			return []genome.NodeID{createSlot}
		}
		if len(candidates) > 0 && z > 0 && rng.Boolean(float64(z)) {
			return []genome.NodeID{createSlot}
		}
	}
	return candidates
}

func (p *GlobalReference) Clone() genome.Parameter {
	return &GlobalReference{spec: p.spec}
}
