package unroll

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/grammar"
	"gramforge/internal/param"
	"gramforge/internal/rrand"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func quietEngine(seed int64) *rrand.Engine {
	return rrand.New(seed, rrand.WithLogger(discard))
}

type countingObserver struct {
	ok, failed int
}

func (o *countingObserver) ObserveUnroll(err error) {
	if err != nil {
		o.failed++
		return
	}
	o.ok++
}

func bitStringGrammar(t *testing.T) grammar.Type {
	t.Helper()
	bits, err := param.NewArray("01", 8)
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	m, err := grammar.NewMacro("{v}", []grammar.ParamDecl{grammar.Param("v", bits)})
	if err != nil {
		t.Fatalf("macro: %v", err)
	}
	seq, err := grammar.NewSequence([]grammar.Type{m})
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	return seq
}

func bitString(t *testing.T, top grammar.Type, seed int64) string {
	t.Helper()
	g := genome.New()
	if _, err := New(WithLogger(discard)).Unroll(g, top, quietEngine(seed)); err != nil {
		t.Fatalf("unroll: %v", err)
	}
	macros := g.Macros(genome.NodeZero)
	if len(macros) != 1 {
		t.Fatalf("expected one macro, got %d", len(macros))
	}
	v, ok := g.View(macros[0]).Value("v")
	if !ok {
		t.Fatal("parameter v missing")
	}
	return v.(string)
}

func TestRoundTripBitString(t *testing.T) {
	top := bitStringGrammar(t)
	first := bitString(t, top, 42)
	second := bitString(t, top, 42)
	if first != second {
		t.Fatalf("same seed produced %q and %q", first, second)
	}
	if len(first) != 8 {
		t.Fatalf("expected 8 bits, got %q", first)
	}
	for _, r := range first {
		if r != '0' && r != '1' {
			t.Fatalf("unexpected symbol in %q", first)
		}
	}
	differs := false
	for seed := int64(43); seed < 48; seed++ {
		if bitString(t, top, seed) != first {
			differs = true
			break
		}
	}
	if !differs {
		t.Fatal("different seeds keep producing the same bit string")
	}
}

func mixedGrammar(t *testing.T) grammar.Type {
	t.Helper()
	n := grammar.Must(param.NewInteger(0, 100))
	f := grammar.Must(param.NewFloat(-1, 1))
	op := grammar.Must(param.NewChoice("add", "sub", "mul"))
	local := grammar.Must(param.NewLocalReference(true, true, true))
	instr := grammar.Must(grammar.NewMacro("{op} {n} {f} {jump}", []grammar.ParamDecl{
		grammar.Param("op", op),
		grammar.Param("n", n),
		grammar.Param("f", f),
		grammar.Param("jump", local),
	}))
	body := grammar.Must(grammar.NewBunch([]grammar.Type{instr}, 2, 7))
	prologue := grammar.Must(grammar.NewMacro("start", nil))
	return grammar.Must(grammar.NewSequence([]grammar.Type{prologue, body}))
}

func TestDeterministicSnapshots(t *testing.T) {
	top := mixedGrammar(t)
	build := func(seed int64) []byte {
		g := genome.New()
		u := New(WithLogger(discard))
		rng := quietEngine(seed)
		for i := 0; i < 3; i++ {
			if _, err := u.Unroll(g, top, rng); err != nil {
				t.Fatalf("unroll %d: %v", i, err)
			}
		}
		out, err := json.Marshal(g.Snapshot())
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return out
	}
	a, b := build(9), build(9)
	if string(a) != string(b) {
		t.Fatalf("same seed produced different genomes:\n%s\n%s", a, b)
	}
	if string(a) == string(build(10)) {
		t.Fatal("different seeds produced identical genomes")
	}
}

func TestUnrolledGenomeKeepsTreeInvariant(t *testing.T) {
	top := mixedGrammar(t)
	u := New(WithLogger(discard))
	for seed := int64(0); seed < 50; seed++ {
		g := genome.New()
		root, err := u.Unroll(g, top, quietEngine(seed))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if err := g.Validate(); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if p, ok := g.Parent(root); !ok || p != genome.NodeZero {
			t.Fatalf("seed %d: root %d not under node zero", seed, root)
		}
		for _, id := range g.Nodes()[1:] {
			if _, ok := g.Parent(id); !ok {
				t.Fatalf("seed %d: node %d has no framework in-edge", seed, id)
			}
		}
		for _, ref := range g.Parameters(genome.NodeZero) {
			if ref.Param.Value() == nil {
				t.Fatalf("seed %d: parameter %d.%s left uninitialized", seed, ref.Node, ref.Name)
			}
		}
	}
}

func TestFailedCheckRollsBack(t *testing.T) {
	leaf := grammar.Must(grammar.NewMacro("x", nil))
	never := func(genome.NodeView) bool { return false }
	top := grammar.Must(grammar.NewSequence([]grammar.Type{leaf, leaf}, grammar.WithChecks(never)))

	obs := &countingObserver{}
	u := New(WithLogger(discard), WithObserver(obs))
	g := genome.New()
	if _, err := u.Unroll(g, bitStringGrammar(t), quietEngine(1)); err != nil {
		t.Fatalf("first unroll: %v", err)
	}
	before := g.Len()
	mark := g.NextID()

	_, err := u.Unroll(g, top, quietEngine(1))
	if !errors.Is(err, fault.ErrValidity) || !fault.Recoverable(err) {
		t.Fatalf("expected recoverable validity failure, got %v", err)
	}
	if g.Len() != before {
		t.Fatalf("rollback left %d nodes, want %d", g.Len(), before)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("validate after rollback: %v", err)
	}
	if g.NextID() <= mark {
		t.Fatal("id counter must not be rewound")
	}
	if obs.ok != 1 || obs.failed != 1 {
		t.Fatalf("unexpected observer counts ok=%d failed=%d", obs.ok, obs.failed)
	}
}

func TestRecursionDepthIsBounded(t *testing.T) {
	leaf := grammar.Must(grammar.NewMacro("x", nil))
	endless := grammar.Must(grammar.NewBNF([][]grammar.Type{{leaf, grammar.Self}}))
	g := genome.New()
	_, err := New(WithLogger(discard), WithMaxDepth(10)).Unroll(g, endless, quietEngine(3))
	if !errors.Is(err, fault.ErrResolution) {
		t.Fatalf("expected resolution failure, got %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("expected only node zero after rollback, got %d nodes", g.Len())
	}
}

func TestBNFUnrollsRecursively(t *testing.T) {
	open := grammar.Must(grammar.NewMacro("(", nil))
	closing := grammar.Must(grammar.NewMacro(")", nil))
	leaf := grammar.Must(grammar.NewMacro("x", nil))
	expr := grammar.Must(grammar.NewBNF([][]grammar.Type{{leaf}, {open, grammar.Self, closing}}))
	u := New(WithLogger(discard))
	nested := false
	for seed := int64(0); seed < 40; seed++ {
		g := genome.New()
		_, err := u.Unroll(g, expr, quietEngine(seed))
		if errors.Is(err, fault.ErrResolution) {
			continue
		}
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if len(g.Frames(genome.NodeZero)) > 1 {
			nested = true
		}
		text, err := g.Serialize(func(v genome.NodeView) (string, error) {
			if m, ok := v.Element().(*grammar.Macro); ok {
				return m.Text(), nil
			}
			return "", nil
		})
		if err != nil {
			t.Fatalf("serialize: %v", err)
		}
		depth := 0
		for _, r := range text {
			switch r {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth < 0 {
				t.Fatalf("unbalanced expression %q", text)
			}
		}
		if depth != 0 {
			t.Fatalf("unbalanced expression %q", text)
		}
	}
	if !nested {
		t.Fatal("expected at least one recursive expansion")
	}
}

func TestSelfOutsideBNFIsConfigurationError(t *testing.T) {
	top := grammar.Must(grammar.NewSequence([]grammar.Type{grammar.Self}))
	_, err := New(WithLogger(discard)).Unroll(genome.New(), top, quietEngine(1))
	if !errors.Is(err, fault.ErrConfiguration) || fault.Recoverable(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAttachInsertsAtPosition(t *testing.T) {
	a := grammar.Must(grammar.NewMacro("a", nil))
	b := grammar.Must(grammar.NewMacro("b", nil))
	top := grammar.Must(grammar.NewSequence([]grammar.Type{a, a}))
	u := New(WithLogger(discard))
	g := genome.New()
	rng := quietEngine(2)
	root, err := u.Unroll(g, top, rng)
	if err != nil {
		t.Fatalf("unroll: %v", err)
	}
	id, err := u.Attach(g, b, rng, root, 1)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	kids := g.Children(root)
	if len(kids) != 3 || kids[1] != id {
		t.Fatalf("unexpected children %v", kids)
	}
	if _, err := u.Attach(g, b, rng, kids[0], 0); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected error attaching under a macro, got %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
