// Package rrand is the reproducible random primitive behind every draw the
// generator makes.
//
// Every operation perturbs a previous value with a strength in [0, 1]. With no
// previous value, or with strength 1, the draw is uniform over the whole
// domain. With strength 0 the previous value is returned unchanged. In between
// the draw comes from a normal distribution truncated to [0, 1), centered on the
// previous value, whose standard deviation grows smoothly with strength.
package rrand

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"gramforge/internal/fault"
)

type Option func(*Engine)

// WithLogger sets the logger used to report zero-strength no-op draws.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine is a seeded generator. It is not safe for concurrent use; build one
// engine per goroutine, seeded with Derive.
type Engine struct {
	seed   int64
	rng    *rand.Rand
	noOps  int
	logger *slog.Logger
}

func New(seed int64, opts ...Option) *Engine {
	e := &Engine{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func (e *Engine) Seed() int64 {
	return e.seed
}

// NoOps returns how many draws were requested with strength 0 and therefore
// returned the previous value untouched.
func (e *Engine) NoOps() int {
	return e.noOps
}

// Float64 is a plain uniform draw in [0, 1).
func (e *Engine) Float64() float64 {
	return e.rng.Float64()
}

// Boolean returns true with probability p.
func (e *Engine) Boolean(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return e.rng.Float64() < p
}

// StdDev maps a strength onto the standard deviation of the truncated normal.
func StdDev(strength float64) float64 {
	return 0.8 / math.Pow(1.4, (1-strength)*12-3)
}

// Random returns a number in [0, 1) obtained by perturbing old with the given
// strength. A nil old forces a uniform draw.
func (e *Engine) Random(old *float64, strength float64) (float64, error) {
	if err := checkStrength(strength); err != nil {
		return 0, err
	}
	if old != nil && (*old < 0 || *old >= 1 || math.IsNaN(*old)) {
		return 0, fmt.Errorf("%w: previous value must be in [0, 1), got %v", fault.ErrConfiguration, *old)
	}
	if old == nil && strength == 0 {
		return 0, fmt.Errorf("%w: strength is zero and there is no previous value", fault.ErrDeterminism)
	}

	switch {
	case old == nil || strength == 1:
		return e.rng.Float64(), nil
	case strength == 0:
		e.noOps++
		e.logger.Warn("zero-strength draw returned the previous value", "seed", e.seed, "previous", *old)
		return *old, nil
	default:
		return e.truncatedNormal(*old, StdDev(strength)), nil
	}
}

// ChoiceIndex picks an index in [0, n). When old is given the continuous draw
// is centered on the middle of old's bucket.
func (e *Engine) ChoiceIndex(n int, old *int, strength float64) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: cannot choose among %d items", fault.ErrConfiguration, n)
	}
	var center *float64
	if old != nil {
		if *old < 0 || *old >= n {
			return 0, fmt.Errorf("%w: previous index %d out of range [0, %d)", fault.ErrConfiguration, *old, n)
		}
		c := (float64(*old) + 0.5) / float64(n)
		center = &c
	}
	r, err := e.Random(center, strength)
	if err != nil {
		return 0, err
	}
	idx := int(r * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx, nil
}

// Randint returns an integer in [low, high).
func (e *Engine) Randint(low, high int, old *int, strength float64) (int, error) {
	if high <= low {
		return 0, fmt.Errorf("%w: empty integer range [%d, %d)", fault.ErrConfiguration, low, high)
	}
	var prev *int
	if old != nil {
		if *old < low || *old >= high {
			return 0, fmt.Errorf("%w: previous value %d out of range [%d, %d)", fault.ErrConfiguration, *old, low, high)
		}
		p := *old - low
		prev = &p
	}
	offset, err := e.ChoiceIndex(high-low, prev, strength)
	if err != nil {
		return 0, err
	}
	return low + offset, nil
}

// Weighted draws an index proportionally to weights.
func (e *Engine) Weighted(weights []float64) (int, error) {
	total := 0.0
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return 0, fmt.Errorf("%w: invalid weight %v at %d", fault.ErrConfiguration, w, i)
		}
		total += w
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: weights must have a positive sum", fault.ErrConfiguration)
	}
	r := e.rng.Float64() * total
	acc := 0.0
	last := 0
	for i, w := range weights {
		if w == 0 {
			continue
		}
		acc += w
		last = i
		if r < acc {
			return i, nil
		}
	}
	return last, nil
}

// Choice is ChoiceIndex over a slice, returning the item and its index.
func Choice[T any](e *Engine, items []T, old *int, strength float64) (T, int, error) {
	var zero T
	idx, err := e.ChoiceIndex(len(items), old, strength)
	if err != nil {
		return zero, 0, err
	}
	return items[idx], idx, nil
}

// Derive returns the seed of the index-th child stream of seed. Derived seeds
// do not depend on the order in which children are built.
func Derive(seed int64, index int) int64 {
	z := uint64(seed) + uint64(index+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return int64(z)
}

func (e *Engine) truncatedNormal(loc, scale float64) float64 {
	lo := stdNormalCDF((0 - loc) / scale)
	hi := stdNormalCDF((1 - loc) / scale)
	if hi <= lo {
		return loc
	}
	u := lo + e.rng.Float64()*(hi-lo)
	x := loc + scale*stdNormalQuantile(u)
	switch {
	case math.IsNaN(x):
		return loc
	case x < 0:
		return 0
	case x >= 1:
		return math.Nextafter(1, 0)
	}
	return x
}

func stdNormalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

func stdNormalQuantile(p float64) float64 {
	return -math.Sqrt2 * math.Erfcinv(2*p)
}

func checkStrength(strength float64) error {
	if strength < 0 || strength > 1 || math.IsNaN(strength) {
		return fmt.Errorf("%w: strength must be in [0, 1], got %v", fault.ErrConfiguration, strength)
	}
	return nil
}
