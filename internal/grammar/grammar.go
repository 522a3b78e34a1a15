// Package grammar defines the immutable grammar types a genome is built from:
// macros (leaves with typed parameters) and frames (Sequence, Bunch,
// Alternative, BNF) that expand into successors.
package grammar

import (
	"fmt"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/rrand"
)

// Check is a validity predicate evaluated on an instantiated node once the
// surrounding subtree is complete.
type Check func(v genome.NodeView) bool

type Type interface {
	genome.Element
	Kind() genome.Kind
	Checks() []Check
	// Comment is the prefix used when node info is emitted next to the
	// rendered text. Empty means no info.
	Comment() string
	// Named reports whether the name was chosen by the user.
	Named() bool
}

// Frame is a structural type. Successors draws the child types for one
// instantiation.
type Frame interface {
	Type
	Successors(rng *rrand.Engine) ([]Type, error)
}

type Option func(*base)

func WithName(name string) Option {
	return func(b *base) {
		b.name = name
		b.named = name != ""
	}
}

func WithChecks(checks ...Check) Option {
	return func(b *base) {
		b.checks = append(b.checks, checks...)
	}
}

func WithComment(prefix string) Option {
	return func(b *base) {
		b.comment = prefix
	}
}

type base struct {
	name    string
	named   bool
	comment string
	checks  []Check
}

func newBase(defaultName string, opts []Option) (base, error) {
	b := base{name: defaultName}
	for _, opt := range opts {
		opt(&b)
	}
	if b.named && !validIdentifier(b.name) {
		return base{}, fmt.Errorf("%w: invalid type name %q", fault.ErrConfiguration, b.name)
	}
	for i, c := range b.checks {
		if c == nil {
			return base{}, fmt.Errorf("%w: check %d of %s is nil", fault.ErrConfiguration, i, b.name)
		}
	}
	return b, nil
}

func (b *base) Name() string { return b.name }
func (b *base) Named() bool { return b.named }
func (b *base) Comment() string { return b.comment }

func (b *base) Checks() []Check {
	return append([]Check(nil), b.checks...)
}

// Must panics on a construction error. It is meant for grammars written as
// package-level literals.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '_'):
		default:
			return false
		}
	}
	return true
}

func checkMembers(owner string, members []Type) error {
	for i, m := range members {
		if m == nil {
			return fmt.Errorf("%w: %s member %d is nil", fault.ErrConfiguration, owner, i)
		}
	}
	return nil
}
