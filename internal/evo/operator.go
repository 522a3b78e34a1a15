// Package evo holds the mutation operators a search loop applies to
// individuals. Every operator works on a clone of its parent and returns an
// offspring that passed all element checks; the parent is never touched.
package evo

import (
	"context"
	"errors"
	"fmt"

	"gramforge/internal/individual"
	"gramforge/internal/rrand"
	"gramforge/internal/unroll"
)

var ErrNoMutationChoice = errors.New("no mutation choice available")

type Operator interface {
	Name() string
	Apply(ctx context.Context, parent *individual.Individual) (*individual.Individual, error)
}

// ContextualOperator can declare whether it is applicable to a parent, so a
// caller can avoid picking operators that would abort with
// ErrNoMutationChoice.
type ContextualOperator interface {
	Operator
	Applicable(parent *individual.Individual) bool
}

// DefaultOperators returns the three grammar-preserving mutations sharing one
// engine.
func DefaultOperators(rng *rrand.Engine, u *unroll.Unroller, strength float64) []Operator {
	return []Operator{
		&SingleParameterMutation{Rand: rng, Strength: strength},
		&AddMacroToBunch{Rand: rng, Unroller: u},
		&RemoveMacroFromBunch{Rand: rng},
	}
}

func offspringOf(ctx context.Context, parent *individual.Individual, rng *rrand.Engine) (*individual.Individual, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if parent == nil || parent.Genome == nil {
		return nil, errors.New("parent individual is required")
	}
	return parent.Clone()
}

func verified(op string, child *individual.Individual) (*individual.Individual, error) {
	if err := unroll.Verify(child.Genome); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return child, nil
}
