package individual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/grammar"
	"gramforge/internal/rrand"
	"gramforge/internal/unroll"
)

const DefaultMaxAttempts = 1000

var ErrUnsatisfiable = errors.New("grammar unsatisfiable")

// idSpace namespaces the deterministic individual ids.
var idSpace = uuid.MustParse("6f1c1d2e-93a4-4b5e-8c1a-5d7e2f9b0c31")

// UnsatisfiableError reports a type that produced no valid genome within the
// attempt budget. It matches ErrUnsatisfiable and the last attempt's error.
type UnsatisfiableError struct {
	Type     string
	Attempts int
	Last     error
}

func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempts: %v", ErrUnsatisfiable, e.Type, e.Attempts, e.Last)
}

func (e *UnsatisfiableError) Unwrap() []error {
	return []error{ErrUnsatisfiable, e.Last}
}

type Option func(*Initializer)

func WithMaxAttempts(n int) Option {
	return func(in *Initializer) {
		in.maxAttempts = n
	}
}

func WithUnroller(u *unroll.Unroller) Option {
	return func(in *Initializer) {
		in.unroller = u
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(in *Initializer) {
		in.logger = logger
	}
}

// Initializer creates individuals by unrolling a top type until an attempt
// succeeds or the budget is spent.
type Initializer struct {
	unroller    *unroll.Unroller
	maxAttempts int
	logger      *slog.Logger
}

func NewInitializer(opts ...Option) *Initializer {
	in := &Initializer{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(in)
	}
	if in.maxAttempts <= 0 {
		in.maxAttempts = DefaultMaxAttempts
	}
	if in.logger == nil {
		in.logger = slog.Default()
	}
	if in.unroller == nil {
		in.unroller = unroll.New(unroll.WithLogger(in.logger))
	}
	return in
}

func (in *Initializer) MaxAttempts() int {
	return in.maxAttempts
}

func (in *Initializer) Unroller() *unroll.Unroller {
	return in.unroller
}

// New builds one individual of top from seed. Every attempt starts from an
// empty genome; the engine carries over so retries draw fresh values.
func (in *Initializer) New(ctx context.Context, top grammar.Type, seed int64) (*Individual, error) {
	return in.build(ctx, top, seed, 0)
}

func (in *Initializer) build(ctx context.Context, top grammar.Type, seed int64, index int) (*Individual, error) {
	if top == nil {
		return nil, fmt.Errorf("%w: top type is required", fault.ErrConfiguration)
	}
	rng := rrand.New(seed, rrand.WithLogger(in.logger))
	var last error
	for attempt := 1; attempt <= in.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g := genome.New()
		root, err := in.unroller.Unroll(g, top, rng)
		if err == nil {
			return &Individual{
				ID:       individualID(seed, index),
				Index:    index,
				Seed:     seed,
				Top:      top,
				Genome:   g,
				Root:     root,
				Attempts: attempt,
			}, nil
		}
		if !fault.Recoverable(err) {
			return nil, err
		}
		last = err
	}
	in.logger.Warn("no valid individual within attempt budget", "type", top.Name(), "attempts", in.maxAttempts, "seed", seed)
	return nil, &UnsatisfiableError{Type: top.Name(), Attempts: in.maxAttempts, Last: last}
}

// GenerateBatch builds count individuals on up to workers goroutines. The i-th
// individual is seeded with rrand.Derive(seed, i), so the result does not
// depend on the worker count.
func (in *Initializer) GenerateBatch(ctx context.Context, top grammar.Type, seed int64, count, workers int) ([]*Individual, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative batch size %d", fault.ErrConfiguration, count)
	}
	if workers <= 0 {
		workers = 1
	}
	out := make([]*Individual, count)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i := 0; i < count; i++ {
		group.Go(func() error {
			ind, err := in.build(gctx, top, rrand.Derive(seed, i), i)
			if err != nil {
				return fmt.Errorf("individual %d: %w", i, err)
			}
			out[i] = ind
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func individualID(seed int64, index int) uuid.UUID {
	return uuid.NewSHA1(idSpace, []byte(fmt.Sprintf("%d/%d", seed, index)))
}
