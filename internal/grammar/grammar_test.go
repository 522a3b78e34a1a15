package grammar

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/rrand"
)

type stubSpec struct{}

func (stubSpec) NewParameter() genome.Parameter { return nil }

func quietEngine(seed int64) *rrand.Engine {
	return rrand.New(seed, rrand.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func mustMacro(t *testing.T, text string, params ...ParamDecl) *Macro {
	t.Helper()
	m, err := NewMacro(text, params)
	if err != nil {
		t.Fatalf("macro: %v", err)
	}
	return m
}

func TestMacroValidation(t *testing.T) {
	cases := []struct {
		name   string
		params []ParamDecl
	}{
		{name: "duplicate", params: []ParamDecl{Param("v", stubSpec{}), Param("v", stubSpec{})}},
		{name: "bad identifier", params: []ParamDecl{Param("1v", stubSpec{})}},
		{name: "empty identifier", params: []ParamDecl{Param("", stubSpec{})}},
		{name: "missing spec", params: []ParamDecl{Param("v", nil)}},
	}
	for _, tc := range cases {
		if _, err := NewMacro("{v}", tc.params); !errors.Is(err, fault.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", tc.name, err)
		}
	}

	m := mustMacro(t, "{a} {b_2}", Param("a", stubSpec{}), Param("b_2", stubSpec{}))
	if m.Kind() != genome.KindMacro || m.Name() != "Macro" || m.Named() {
		t.Fatalf("unexpected macro identity %s %s", m.Kind(), m.Name())
	}
	if got := m.Params(); len(got) != 2 || got[0].Name != "a" || got[1].Name != "b_2" {
		t.Fatalf("unexpected params %+v", got)
	}
}

func TestFrameConstructionErrors(t *testing.T) {
	m := mustMacro(t, "x")
	if _, err := NewBunch(nil, 1, 2); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("empty pool: %v", err)
	}
	if _, err := NewBunch([]Type{m}, 0, 2); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("zero min: %v", err)
	}
	if _, err := NewBunch([]Type{m}, 3, 3); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("inverted range: %v", err)
	}
	if _, err := NewWeightedBunch([]Type{m, m}, []float64{1}, 1, 2); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("weights length: %v", err)
	}
	if _, err := NewWeightedBunch([]Type{m, m}, []float64{0, 0}, 1, 2); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("zero weights: %v", err)
	}
	if _, err := NewWeightedBunch([]Type{m, m}, []float64{-1, 2}, 1, 2); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("negative weight: %v", err)
	}
	if _, err := NewAlternative(nil); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("no forms: %v", err)
	}
	if _, err := NewBNF([][]Type{{m}, {}}); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("empty production: %v", err)
	}
	if _, err := NewSequence([]Type{m, nil}); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("nil member: %v", err)
	}
	if _, err := NewSequence([]Type{m}, WithName("bad name")); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("bad name: %v", err)
	}
	if _, err := NewSequence([]Type{m}, WithChecks(nil)); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("nil check: %v", err)
	}
}

func TestBunchSizeStaysInRange(t *testing.T) {
	m := mustMacro(t, "x")
	b, err := NewBunch([]Type{m}, 3, 6)
	if err != nil {
		t.Fatalf("bunch: %v", err)
	}
	rng := quietEngine(7)
	counts := map[int]int{}
	for i := 0; i < 10000; i++ {
		succ, err := b.Successors(rng)
		if err != nil {
			t.Fatalf("successors: %v", err)
		}
		counts[len(succ)]++
	}
	for size := range counts {
		if size < 3 || size > 5 {
			t.Fatalf("size %d out of [3, 6)", size)
		}
	}
	for _, size := range []int{3, 4, 5} {
		if counts[size] == 0 {
			t.Fatalf("size %d never drawn: %v", size, counts)
		}
	}
}

func TestWeightedBunchHonoursZeroWeight(t *testing.T) {
	a := mustMacro(t, "a")
	b := mustMacro(t, "b")
	bunch, err := NewWeightedBunch([]Type{a, b}, []float64{0, 1}, 2, 5)
	if err != nil {
		t.Fatalf("bunch: %v", err)
	}
	rng := quietEngine(3)
	for i := 0; i < 500; i++ {
		succ, err := bunch.Successors(rng)
		if err != nil {
			t.Fatalf("successors: %v", err)
		}
		for _, s := range succ {
			if s != Type(b) {
				t.Fatalf("zero-weight member drawn")
			}
		}
	}
}

func TestAlternativeDrawsEveryForm(t *testing.T) {
	forms := []Type{mustMacro(t, "a"), mustMacro(t, "b"), mustMacro(t, "c")}
	alt, err := NewAlternative(forms)
	if err != nil {
		t.Fatalf("alternative: %v", err)
	}
	rng := quietEngine(11)
	seen := map[Type]int{}
	for i := 0; i < 300; i++ {
		succ, err := alt.Successors(rng)
		if err != nil {
			t.Fatalf("successors: %v", err)
		}
		if len(succ) != 1 {
			t.Fatalf("expected one successor, got %d", len(succ))
		}
		seen[succ[0]]++
	}
	if len(seen) != len(forms) {
		t.Fatalf("expected every form drawn, got %v", seen)
	}
}

func TestBNFResolvesSelf(t *testing.T) {
	open := mustMacro(t, "(")
	closing := mustMacro(t, ")")
	leaf := mustMacro(t, "x")
	expr, err := NewBNF([][]Type{{leaf}, {open, Self, closing}}, WithName("expr"))
	if err != nil {
		t.Fatalf("bnf: %v", err)
	}
	rng := quietEngine(5)
	sawRecursion := false
	for i := 0; i < 100; i++ {
		succ, err := expr.Successors(rng)
		if err != nil {
			t.Fatalf("successors: %v", err)
		}
		for _, s := range succ {
			if s == Self {
				t.Fatal("self sentinel leaked into successors")
			}
			if s == Type(expr) {
				sawRecursion = true
			}
		}
	}
	if !sawRecursion {
		t.Fatal("expected the recursive production to be drawn")
	}
	if !expr.Named() || expr.Name() != "expr" {
		t.Fatalf("unexpected name %q", expr.Name())
	}
}

func TestDirectoryRejectsDuplicates(t *testing.T) {
	d := NewDirectory()
	m := mustMacro(t, "x")
	if err := d.Register("proc", m); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Register("proc", m); !errors.Is(err, ErrTypeExists) || !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected ErrTypeExists, got %v", err)
	}
	got, err := d.Lookup("proc")
	if err != nil || got != Type(m) {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := d.Lookup("missing"); !errors.Is(err, ErrTypeNotFound) {
		t.Fatalf("expected ErrTypeNotFound, got %v", err)
	}
	if err := d.Register("", m); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected empty name error, got %v", err)
	}
}

func TestDirectoryAddSkipsUnnamed(t *testing.T) {
	d := NewDirectory()
	named := Must(NewSequence([]Type{mustMacro(t, "x")}, WithName("body")))
	unnamed := Must(NewSequence([]Type{mustMacro(t, "y")}))
	if err := d.Add(named, unnamed); err != nil {
		t.Fatalf("add: %v", err)
	}
	names := d.Names()
	if len(names) != 1 || names[0] != "body" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestDirectoryConcurrentLookup(t *testing.T) {
	d := NewDirectory()
	if err := d.Register("x", mustMacro(t, "x")); err != nil {
		t.Fatalf("register: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := d.Lookup("x"); err != nil {
					t.Errorf("lookup: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
