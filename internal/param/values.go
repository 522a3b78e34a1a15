// Package param holds the parameter types a macro can declare.
//
// Value parameters (Integer, Float, Choice, Array) carry a plain value and
// mutate it through the random engine. Structural parameters (LocalReference,
// GlobalReference) and Shared handles are fastened to their owner node before
// the first Mutate; their value lives in the genome.
package param

import (
	"fmt"
	"math"
	"strings"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/grammar"
	"gramforge/internal/rrand"
)

// ValueSpec is implemented by the specs whose parameters hold a plain value.
// Only those can be shared.
type ValueSpec interface {
	grammar.ParamSpec
	valueSpec()
}

// IntegerSpec draws integers in [min, max).
type IntegerSpec struct {
	min, max int
}

func NewInteger(min, max int) (*IntegerSpec, error) {
	if max <= min {
		return nil, fmt.Errorf("%w: integer range [%d, %d) is empty", fault.ErrConfiguration, min, max)
	}
	return &IntegerSpec{min: min, max: max}, nil
}

func (s *IntegerSpec) Range() (int, int) { return s.min, s.max }

func (s *IntegerSpec) NewParameter() genome.Parameter { return &Integer{spec: s} }

func (*IntegerSpec) valueSpec() {}

type Integer struct {
	spec  *IntegerSpec
	value *int
}

func (p *Integer) Value() any {
	if p.value == nil {
		return nil
	}
	return *p.value
}

func (p *Integer) Mutate(rng *rrand.Engine, strength float64) error {
	v, err := rng.Randint(p.spec.min, p.spec.max, p.value, strength)
	if err != nil {
		return err
	}
	p.value = &v
	return nil
}

func (p *Integer) Clone() genome.Parameter {
	c := &Integer{spec: p.spec}
	if p.value != nil {
		v := *p.value
		c.value = &v
	}
	return c
}

// FloatSpec draws floats in [min, max).
type FloatSpec struct {
	min, max float64
}

func NewFloat(min, max float64) (*FloatSpec, error) {
	if !(max > min) || math.IsInf(max-min, 0) {
		return nil, fmt.Errorf("%w: float range [%v, %v) is invalid", fault.ErrConfiguration, min, max)
	}
	return &FloatSpec{min: min, max: max}, nil
}

func (s *FloatSpec) Range() (float64, float64) { return s.min, s.max }

func (s *FloatSpec) NewParameter() genome.Parameter { return &Float{spec: s} }

func (*FloatSpec) valueSpec() {}

type Float struct {
	spec  *FloatSpec
	value *float64
}

func (p *Float) Value() any {
	if p.value == nil {
		return nil
	}
	return *p.value
}

func (p *Float) Mutate(rng *rrand.Engine, strength float64) error {
	width := p.spec.max - p.spec.min
	var old *float64
	if p.value != nil {
		o := (*p.value - p.spec.min) / width
		if o >= 1 {
			o = math.Nextafter(1, 0)
		}
		old = &o
	}
	r, err := rng.Random(old, strength)
	if err != nil {
		return err
	}
	v := p.spec.min + r*width
	if v >= p.spec.max {
		v = math.Nextafter(p.spec.max, p.spec.min)
	}
	p.value = &v
	return nil
}

func (p *Float) Clone() genome.Parameter {
	c := &Float{spec: p.spec}
	if p.value != nil {
		v := *p.value
		c.value = &v
	}
	return c
}

// ChoiceSpec picks one of a fixed list of alternatives.
type ChoiceSpec struct {
	alternatives []any
}

func NewChoice(alternatives ...any) (*ChoiceSpec, error) {
	if len(alternatives) == 0 {
		return nil, fmt.Errorf("%w: choice needs at least one alternative", fault.ErrConfiguration)
	}
	return &ChoiceSpec{alternatives: append([]any(nil), alternatives...)}, nil
}

func (s *ChoiceSpec) Alternatives() []any { return append([]any(nil), s.alternatives...) }

func (s *ChoiceSpec) NewParameter() genome.Parameter { return &Choice{spec: s} }

func (*ChoiceSpec) valueSpec() {}

type Choice struct {
	spec  *ChoiceSpec
	index *int
}

func (p *Choice) Value() any {
	if p.index == nil {
		return nil
	}
	return p.spec.alternatives[*p.index]
}

func (p *Choice) Mutate(rng *rrand.Engine, strength float64) error {
	idx, err := rng.ChoiceIndex(len(p.spec.alternatives), p.index, strength)
	if err != nil {
		return err
	}
	p.index = &idx
	return nil
}

func (p *Choice) Clone() genome.Parameter {
	c := &Choice{spec: p.spec}
	if p.index != nil {
		i := *p.index
		c.index = &i
	}
	return c
}

// ArraySpec builds fixed-length strings over an alphabet of symbols.
type ArraySpec struct {
	symbols []string
	length  int
}

// NewArray takes one symbol per rune of symbols.
func NewArray(symbols string, length int) (*ArraySpec, error) {
	parts := make([]string, 0, len(symbols))
	for _, r := range symbols {
		parts = append(parts, string(r))
	}
	return NewArrayOf(parts, length)
}

func NewArrayOf(symbols []string, length int) (*ArraySpec, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: array needs at least one symbol", fault.ErrConfiguration)
	}
	if length < 1 {
		return nil, fmt.Errorf("%w: array length %d must be positive", fault.ErrConfiguration, length)
	}
	return &ArraySpec{symbols: append([]string(nil), symbols...), length: length}, nil
}

func (s *ArraySpec) Symbols() []string { return append([]string(nil), s.symbols...) }

func (s *ArraySpec) Len() int { return s.length }

func (s *ArraySpec) NewParameter() genome.Parameter { return &Array{spec: s} }

func (*ArraySpec) valueSpec() {}

// Array mutates every position independently with the same strength.
type Array struct {
	spec    *ArraySpec
	indices []int
}

func (p *Array) Value() any {
	if p.indices == nil {
		return nil
	}
	var b strings.Builder
	for _, i := range p.indices {
		b.WriteString(p.spec.symbols[i])
	}
	return b.String()
}

func (p *Array) Mutate(rng *rrand.Engine, strength float64) error {
	next := make([]int, p.spec.length)
	for pos := range next {
		var old *int
		if p.indices != nil {
			old = &p.indices[pos]
		}
		idx, err := rng.ChoiceIndex(len(p.spec.symbols), old, strength)
		if err != nil {
			return err
		}
		next[pos] = idx
	}
	p.indices = next
	return nil
}

func (p *Array) Clone() genome.Parameter {
	c := &Array{spec: p.spec}
	if p.indices != nil {
		c.indices = append([]int(nil), p.indices...)
	}
	return c
}
