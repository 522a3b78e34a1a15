package individual

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/grammar"
	"gramforge/internal/param"
	"gramforge/internal/rrand"
	"gramforge/internal/stats"
	"gramforge/internal/unroll"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newQuietEngine(seed int64) *rrand.Engine {
	return rrand.New(seed, rrand.WithLogger(discard))
}

func quietInitializer(opts ...Option) *Initializer {
	return NewInitializer(append([]Option{WithLogger(discard)}, opts...)...)
}

func programGrammar(t *testing.T) grammar.Type {
	t.Helper()
	op := grammar.Must(param.NewChoice("inc", "dec", "nop"))
	n := grammar.Must(param.NewInteger(0, 16))
	jump := grammar.Must(param.NewLocalReference(true, false, true))
	instr := grammar.Must(grammar.NewMacro("{op} {n} @{jump}", []grammar.ParamDecl{
		grammar.Param("op", op),
		grammar.Param("n", n),
		grammar.Param("jump", jump),
	}))
	return grammar.Must(grammar.NewBunch([]grammar.Type{instr}, 2, 6))
}

// evenGrammar only accepts even values, so roughly half the attempts fail.
func evenGrammar(t *testing.T) grammar.Type {
	t.Helper()
	n := grammar.Must(param.NewInteger(0, 100))
	even := func(v genome.NodeView) bool {
		value, ok := v.Value("n")
		return ok && value.(int)%2 == 0
	}
	m := grammar.Must(grammar.NewMacro("{n}", []grammar.ParamDecl{grammar.Param("n", n)}, grammar.WithChecks(even)))
	return grammar.Must(grammar.NewSequence([]grammar.Type{m, m, m}))
}

func snapshotJSON(t *testing.T, ind *Individual) string {
	t.Helper()
	data, err := json.Marshal(ind.Genome.Snapshot())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	return string(data)
}

func TestInitializerNew(t *testing.T) {
	ind, err := quietInitializer().New(context.Background(), programGrammar(t), 7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if ind.Attempts < 1 || ind.Seed != 7 {
		t.Fatalf("unexpected individual %+v", ind)
	}
	if err := ind.Genome.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	c := ind.Counts()
	if c.Frames != 1 || c.Macros < 2 || c.Macros > 5 || c.Parameters != 3*c.Macros {
		t.Fatalf("unexpected counts %+v", c)
	}
	desc := ind.String()
	if !strings.Contains(desc, "1 frames") || !strings.Contains(desc, "MacroBunch") {
		t.Fatalf("unexpected description %q", desc)
	}
}

func TestInitializerRetriesUntilValid(t *testing.T) {
	monitor := stats.NewMonitor(nil)
	in := quietInitializer(WithUnroller(unroll.New(unroll.WithLogger(discard), unroll.WithObserver(monitor))))
	top := evenGrammar(t)
	retried := false
	for seed := int64(0); seed < 20; seed++ {
		ind, err := in.New(context.Background(), top, seed)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if ind.Attempts > 1 {
			retried = true
		}
		for _, id := range ind.Genome.Macros(genome.NodeZero) {
			v, _ := ind.Genome.View(id).Value("n")
			if v.(int)%2 != 0 {
				t.Fatalf("seed %d kept odd value %v", seed, v)
			}
		}
	}
	if !retried {
		t.Fatal("expected at least one seed to need a retry")
	}
	s := monitor.Summary()
	if s.Successes != 20 || s.ByOutcome[stats.OutcomeValidity] != s.Failures {
		t.Fatalf("unexpected attempt summary %+v", s)
	}
}

func TestInitializerUnsatisfiable(t *testing.T) {
	never := func(genome.NodeView) bool { return false }
	m := grammar.Must(grammar.NewMacro("x", nil, grammar.WithChecks(never)))
	top := grammar.Must(grammar.NewSequence([]grammar.Type{m}))

	monitor := stats.NewMonitor(nil)
	in := quietInitializer(
		WithMaxAttempts(5),
		WithUnroller(unroll.New(unroll.WithLogger(discard), unroll.WithObserver(monitor))),
	)
	_, err := in.New(context.Background(), top, 1)
	if !errors.Is(err, ErrUnsatisfiable) || !errors.Is(err, fault.ErrValidity) {
		t.Fatalf("expected unsatisfiable validity error, got %v", err)
	}
	var unsat *UnsatisfiableError
	if !errors.As(err, &unsat) || unsat.Attempts != 5 {
		t.Fatalf("expected 5 attempts, got %v", err)
	}
	if got := monitor.Summary().Failures; got != 5 {
		t.Fatalf("expected 5 observed failures, got %d", got)
	}
}

func TestInitializerStopsOnConfigurationError(t *testing.T) {
	dir := grammar.NewDirectory()
	ref := grammar.Must(param.NewNamedGlobalReference(dir, "missing", true, param.ZealSlots(1)))
	m := grammar.Must(grammar.NewMacro("call {to}", []grammar.ParamDecl{grammar.Param("to", ref)}))
	top := grammar.Must(grammar.NewSequence([]grammar.Type{m}))

	monitor := stats.NewMonitor(nil)
	in := quietInitializer(WithUnroller(unroll.New(unroll.WithLogger(discard), unroll.WithObserver(monitor))))
	_, err := in.New(context.Background(), top, 1)
	if !errors.Is(err, fault.ErrConfiguration) || errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if got := monitor.Summary().Attempts; got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestInitializerHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := quietInitializer().New(ctx, programGrammar(t), 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if _, err := quietInitializer().New(context.Background(), nil, 1); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error for nil type, got %v", err)
	}
}

func TestGenerateBatchIndependentOfWorkers(t *testing.T) {
	top := programGrammar(t)
	in := quietInitializer()
	serial, err := in.GenerateBatch(context.Background(), top, 99, 12, 1)
	if err != nil {
		t.Fatalf("serial batch: %v", err)
	}
	parallel, err := in.GenerateBatch(context.Background(), top, 99, 12, 4)
	if err != nil {
		t.Fatalf("parallel batch: %v", err)
	}
	if len(serial) != 12 || len(parallel) != 12 {
		t.Fatalf("unexpected batch sizes %d %d", len(serial), len(parallel))
	}
	ids := make(map[string]bool)
	for i := range serial {
		if serial[i].Index != i || serial[i].ID != parallel[i].ID {
			t.Fatalf("individual %d identity differs", i)
		}
		if snapshotJSON(t, serial[i]) != snapshotJSON(t, parallel[i]) {
			t.Fatalf("individual %d differs between worker counts", i)
		}
		ids[serial[i].ID.String()] = true
	}
	if len(ids) != 12 {
		t.Fatalf("expected distinct ids, got %d", len(ids))
	}
	if _, err := in.GenerateBatch(context.Background(), top, 1, -1, 1); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error for negative count, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	ind, err := quietInitializer().New(context.Background(), programGrammar(t), 3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	before := snapshotJSON(t, ind)
	clone, err := ind.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.ID == ind.ID {
		t.Fatal("clone kept the original id")
	}
	first := clone.Genome.Macros(genome.NodeZero)[0]
	n, _ := clone.Genome.Node(first)
	p, _ := n.Param("n")
	for i := 0; i < 10; i++ {
		if err := p.Mutate(newQuietEngine(int64(i)), 1); err != nil {
			t.Fatalf("mutate: %v", err)
		}
	}
	if snapshotJSON(t, ind) != before {
		t.Fatal("mutating the clone changed the original")
	}
}
