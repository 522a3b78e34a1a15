package grammar

import (
	"fmt"
	"math"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/rrand"
)

// Sequence expands into its items, in order.
type Sequence struct {
	base
	items []Type
}

func NewSequence(items []Type, opts ...Option) (*Sequence, error) {
	b, err := newBase("Sequence", opts)
	if err != nil {
		return nil, err
	}
	if err := checkMembers(b.name, items); err != nil {
		return nil, err
	}
	return &Sequence{base: b, items: append([]Type(nil), items...)}, nil
}

func (s *Sequence) Kind() genome.Kind { return genome.KindFrame }

func (s *Sequence) Items() []Type { return append([]Type(nil), s.items...) }

func (s *Sequence) Successors(_ *rrand.Engine) ([]Type, error) {
	return s.Items(), nil
}

// Bunch draws a size in [min, max) and then that many independent members
// from its pool, weighted when weights are set.
type Bunch struct {
	base
	pool    []Type
	min     int
	max     int
	weights []float64
}

// NewBunch builds a bunch of minSize to maxSize-1 members.
func NewBunch(pool []Type, minSize, maxSize int, opts ...Option) (*Bunch, error) {
	return NewWeightedBunch(pool, nil, minSize, maxSize, opts...)
}

// NewWeightedBunch is NewBunch with one draw weight per pool member. Nil
// weights mean uniform draws.
func NewWeightedBunch(pool []Type, weights []float64, minSize, maxSize int, opts ...Option) (*Bunch, error) {
	defaultName := "MacroBunch"
	switch {
	case minSize == 1 && maxSize == 2:
		defaultName = "SingleMacro"
	case maxSize-minSize == 1:
		defaultName = "MacroArray"
	}
	b, err := newBase(defaultName, opts)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: %s has an empty pool", fault.ErrConfiguration, b.name)
	}
	if err := checkMembers(b.name, pool); err != nil {
		return nil, err
	}
	if minSize < 1 || maxSize <= minSize {
		return nil, fmt.Errorf("%w: %s size range [%d, %d) is invalid", fault.ErrConfiguration, b.name, minSize, maxSize)
	}
	if weights != nil {
		if err := checkWeights(b.name, weights, len(pool)); err != nil {
			return nil, err
		}
		weights = append([]float64(nil), weights...)
	}
	return &Bunch{base: b, pool: append([]Type(nil), pool...), min: minSize, max: maxSize, weights: weights}, nil
}

func (b *Bunch) Kind() genome.Kind { return genome.KindFrame }

func (b *Bunch) Pool() []Type { return append([]Type(nil), b.pool...) }

// Size returns the half-open size range.
func (b *Bunch) Size() (int, int) { return b.min, b.max }

func (b *Bunch) Weights() []float64 { return append([]float64(nil), b.weights...) }

func (b *Bunch) Successors(rng *rrand.Engine) ([]Type, error) {
	n, err := rng.Randint(b.min, b.max, nil, 1)
	if err != nil {
		return nil, err
	}
	out := make([]Type, 0, n)
	for i := 0; i < n; i++ {
		member, err := b.Draw(rng)
		if err != nil {
			return nil, err
		}
		out = append(out, member)
	}
	return out, nil
}

// Draw picks one pool member.
func (b *Bunch) Draw(rng *rrand.Engine) (Type, error) {
	var (
		idx int
		err error
	)
	if b.weights != nil {
		idx, err = rng.Weighted(b.weights)
	} else {
		idx, err = rng.ChoiceIndex(len(b.pool), nil, 1)
	}
	if err != nil {
		return nil, err
	}
	return b.pool[idx], nil
}

func checkWeights(owner string, weights []float64, n int) error {
	if len(weights) != n {
		return fmt.Errorf("%w: %s has %d weights for %d pool members", fault.ErrConfiguration, owner, len(weights), n)
	}
	total := 0.0
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: %s weight %d is %v", fault.ErrConfiguration, owner, i, w)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("%w: %s weights sum to zero", fault.ErrConfiguration, owner)
	}
	return nil
}

// Alternative expands into one of its forms, drawn uniformly.
type Alternative struct {
	base
	forms []Type
}

func NewAlternative(forms []Type, opts ...Option) (*Alternative, error) {
	b, err := newBase("Alternative", opts)
	if err != nil {
		return nil, err
	}
	if len(forms) == 0 {
		return nil, fmt.Errorf("%w: %s has no forms", fault.ErrConfiguration, b.name)
	}
	if err := checkMembers(b.name, forms); err != nil {
		return nil, err
	}
	return &Alternative{base: b, forms: append([]Type(nil), forms...)}, nil
}

func (a *Alternative) Kind() genome.Kind { return genome.KindFrame }

func (a *Alternative) Forms() []Type { return append([]Type(nil), a.forms...) }

func (a *Alternative) Successors(rng *rrand.Engine) ([]Type, error) {
	form, _, err := rrand.Choice(rng, a.forms, nil, 1)
	if err != nil {
		return nil, err
	}
	return []Type{form}, nil
}

type selfRef struct{}

func (selfRef) Name() string { return "self" }
func (selfRef) Named() bool { return false }
func (selfRef) Kind() genome.Kind { return genome.KindFrame }
func (selfRef) Checks() []Check { return nil }
func (selfRef) Comment() string { return "" }

// Self stands for the enclosing BNF inside one of its productions.
var Self Type = selfRef{}

// BNF expands into one production drawn uniformly, with Self replaced by the
// BNF itself. Recursion depth is bounded by the unroller.
type BNF struct {
	base
	productions [][]Type
}

func NewBNF(productions [][]Type, opts ...Option) (*BNF, error) {
	b, err := newBase("BNF", opts)
	if err != nil {
		return nil, err
	}
	if len(productions) == 0 {
		return nil, fmt.Errorf("%w: %s has no productions", fault.ErrConfiguration, b.name)
	}
	prods := make([][]Type, len(productions))
	for i, p := range productions {
		if len(p) == 0 {
			return nil, fmt.Errorf("%w: %s production %d is empty", fault.ErrConfiguration, b.name, i)
		}
		if err := checkMembers(b.name, p); err != nil {
			return nil, err
		}
		prods[i] = append([]Type(nil), p...)
	}
	return &BNF{base: b, productions: prods}, nil
}

func (f *BNF) Kind() genome.Kind { return genome.KindFrame }

func (f *BNF) Productions() [][]Type {
	out := make([][]Type, len(f.productions))
	for i, p := range f.productions {
		out[i] = append([]Type(nil), p...)
	}
	return out
}

func (f *BNF) Successors(rng *rrand.Engine) ([]Type, error) {
	prod, _, err := rrand.Choice(rng, f.productions, nil, 1)
	if err != nil {
		return nil, err
	}
	out := make([]Type, len(prod))
	for i, t := range prod {
		if t == Self {
			out[i] = f
			continue
		}
		out[i] = t
	}
	return out, nil
}
