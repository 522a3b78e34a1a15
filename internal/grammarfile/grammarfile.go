// Package grammarfile loads grammars from YAML documents.
//
// A document lists named types and the shared parameter cells they use. Types
// may refer to each other by name in any order; the word self inside a BNF
// production stands for the BNF itself. Every type is registered in the
// directory of the loaded grammar, so global references can target it.
//
//	top: program
//	shared:
//	  - name: reg
//	    integer: {min: 0, max: 8}
//	types:
//	  - name: instr
//	    macro:
//	      text: "{op} r{dst}, {n}"
//	      params:
//	        - {name: op, choice: [add, sub]}
//	        - {name: dst, shared: reg}
//	        - {name: n, integer: {min: 0, max: 256}}
//	  - name: program
//	    bunch: {pool: [instr], min: 2, max: 8}
package grammarfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"gramforge/internal/fault"
	"gramforge/internal/grammar"
	"gramforge/internal/param"
)

// SelfName is the production member standing for the enclosing BNF.
const SelfName = "self"

type Document struct {
	Top    string     `yaml:"top"`
	Shared []ParamDoc `yaml:"shared"`
	Types  []TypeDoc  `yaml:"types"`
}

type TypeDoc struct {
	Name        string     `yaml:"name"`
	Comment     string     `yaml:"comment"`
	Macro       *MacroDoc  `yaml:"macro"`
	Sequence    []string   `yaml:"sequence"`
	Bunch       *BunchDoc  `yaml:"bunch"`
	Alternative []string   `yaml:"alternative"`
	BNF         [][]string `yaml:"bnf"`
}

type MacroDoc struct {
	Text   string     `yaml:"text"`
	Params []ParamDoc `yaml:"params"`
}

type BunchDoc struct {
	Pool    []string  `yaml:"pool"`
	Min     int       `yaml:"min"`
	Max     int       `yaml:"max"`
	Weights []float64 `yaml:"weights"`
}

type ParamDoc struct {
	Name    string      `yaml:"name"`
	Integer *IntRange   `yaml:"integer"`
	Float   *FloatRange `yaml:"float"`
	Choice  []any       `yaml:"choice"`
	Array   *ArrayDoc   `yaml:"array"`
	Local   *LocalDoc   `yaml:"local"`
	Global  *GlobalDoc  `yaml:"global"`
	Shared  string      `yaml:"shared"`
}

type IntRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type FloatRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type ArrayDoc struct {
	Symbols string `yaml:"symbols"`
	Length  int    `yaml:"length"`
}

type LocalDoc struct {
	Backward bool `yaml:"backward"`
	Self     bool `yaml:"self"`
	Forward  bool `yaml:"forward"`
}

// GlobalDoc sets at most one of ZealSlots and ZealProbability.
type GlobalDoc struct {
	Target          string   `yaml:"target"`
	FirstMacro      bool     `yaml:"first_macro"`
	ZealSlots       *int     `yaml:"zeal_slots"`
	ZealProbability *float64 `yaml:"zeal_probability"`
}

// Grammar is a loaded grammar: its directory and its top type.
type Grammar struct {
	Directory *grammar.Directory
	Top       grammar.Type
}

type Option func(*loader)

// WithChecks attaches validity checks to the type declared under name.
func WithChecks(name string, checks ...grammar.Check) Option {
	return func(l *loader) {
		l.checks[name] = append(l.checks[name], checks...)
	}
}

// WithDirectory registers the loaded types in dir instead of a new directory.
func WithDirectory(dir *grammar.Directory) Option {
	return func(l *loader) {
		l.dir = dir
	}
}

func Load(path string, opts ...Option) (*Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func Parse(data []byte, opts ...Option) (*Grammar, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty grammar document", fault.ErrConfiguration)
		}
		return nil, fmt.Errorf("%w: %v", fault.ErrConfiguration, err)
	}
	return Build(doc, opts...)
}

// Build turns a decoded document into grammar types.
func Build(doc Document, opts ...Option) (*Grammar, error) {
	l := &loader{
		docs:     make(map[string]TypeDoc, len(doc.Types)),
		built:    make(map[string]grammar.Type, len(doc.Types)),
		building: make(map[string]bool),
		shared:   make(map[string]*param.SharedSpec, len(doc.Shared)),
		checks:   make(map[string][]grammar.Check),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.dir == nil {
		l.dir = grammar.NewDirectory()
	}

	for _, td := range doc.Types {
		if td.Name == "" {
			return nil, fmt.Errorf("%w: type without a name", fault.ErrConfiguration)
		}
		if td.Name == SelfName {
			return nil, fmt.Errorf("%w: %q is reserved", fault.ErrConfiguration, SelfName)
		}
		if _, dup := l.docs[td.Name]; dup {
			return nil, fmt.Errorf("%w: type %s declared twice", fault.ErrConfiguration, td.Name)
		}
		l.docs[td.Name] = td
	}
	for name := range l.checks {
		if _, ok := l.docs[name]; !ok {
			return nil, fmt.Errorf("%w: checks for undeclared type %s", fault.ErrConfiguration, name)
		}
	}
	for _, sd := range doc.Shared {
		if sd.Name == "" {
			return nil, fmt.Errorf("%w: shared parameter without a name", fault.ErrConfiguration)
		}
		if _, dup := l.shared[sd.Name]; dup {
			return nil, fmt.Errorf("%w: shared parameter %s declared twice", fault.ErrConfiguration, sd.Name)
		}
		if sd.Shared != "" || sd.Local != nil || sd.Global != nil {
			return nil, fmt.Errorf("%w: shared parameter %s must be a value parameter", fault.ErrConfiguration, sd.Name)
		}
		inner, err := l.paramSpec(sd)
		if err != nil {
			return nil, err
		}
		spec, err := param.NewShared(inner)
		if err != nil {
			return nil, fmt.Errorf("shared parameter %s: %w", sd.Name, err)
		}
		l.shared[sd.Name] = spec
	}

	// Declaration order keeps the directory contents independent of map order.
	for _, td := range doc.Types {
		if _, err := l.resolve(td.Name); err != nil {
			return nil, err
		}
	}
	if doc.Top == "" {
		return nil, fmt.Errorf("%w: top type is required", fault.ErrConfiguration)
	}
	top, ok := l.built[doc.Top]
	if !ok {
		return nil, fmt.Errorf("%w: top type %s is not declared", fault.ErrConfiguration, doc.Top)
	}
	return &Grammar{Directory: l.dir, Top: top}, nil
}

type loader struct {
	dir      *grammar.Directory
	docs     map[string]TypeDoc
	built    map[string]grammar.Type
	building map[string]bool
	shared   map[string]*param.SharedSpec
	checks   map[string][]grammar.Check
}

func (l *loader) resolve(name string) (grammar.Type, error) {
	if t, ok := l.built[name]; ok {
		return t, nil
	}
	td, ok := l.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: type %s is not declared", fault.ErrConfiguration, name)
	}
	if l.building[name] {
		return nil, fmt.Errorf("%w: type %s contains itself; use a bnf with self", fault.ErrConfiguration, name)
	}
	l.building[name] = true
	defer delete(l.building, name)

	t, err := l.build(td)
	if err != nil {
		return nil, fmt.Errorf("type %s: %w", name, err)
	}
	if err := l.dir.Register(name, t); err != nil {
		return nil, err
	}
	l.built[name] = t
	return t, nil
}

func (l *loader) build(td TypeDoc) (grammar.Type, error) {
	opts := []grammar.Option{grammar.WithName(td.Name)}
	if td.Comment != "" {
		opts = append(opts, grammar.WithComment(td.Comment))
	}
	if checks := l.checks[td.Name]; len(checks) > 0 {
		opts = append(opts, grammar.WithChecks(checks...))
	}

	kinds := 0
	for _, set := range []bool{td.Macro != nil, td.Sequence != nil, td.Bunch != nil, td.Alternative != nil, td.BNF != nil} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return nil, fmt.Errorf("%w: exactly one of macro, sequence, bunch, alternative, bnf is required", fault.ErrConfiguration)
	}

	switch {
	case td.Macro != nil:
		decls := make([]grammar.ParamDecl, 0, len(td.Macro.Params))
		for _, pd := range td.Macro.Params {
			spec, err := l.paramSpec(pd)
			if err != nil {
				return nil, err
			}
			decls = append(decls, grammar.Param(pd.Name, spec))
		}
		return grammar.NewMacro(td.Macro.Text, decls, opts...)
	case td.Sequence != nil:
		items, err := l.members(td.Sequence)
		if err != nil {
			return nil, err
		}
		return grammar.NewSequence(items, opts...)
	case td.Bunch != nil:
		pool, err := l.members(td.Bunch.Pool)
		if err != nil {
			return nil, err
		}
		return grammar.NewWeightedBunch(pool, td.Bunch.Weights, td.Bunch.Min, td.Bunch.Max, opts...)
	case td.Alternative != nil:
		forms, err := l.members(td.Alternative)
		if err != nil {
			return nil, err
		}
		return grammar.NewAlternative(forms, opts...)
	default:
		prods := make([][]grammar.Type, 0, len(td.BNF))
		for _, names := range td.BNF {
			prod := make([]grammar.Type, 0, len(names))
			for _, n := range names {
				if n == SelfName {
					prod = append(prod, grammar.Self)
					continue
				}
				t, err := l.resolve(n)
				if err != nil {
					return nil, err
				}
				prod = append(prod, t)
			}
			prods = append(prods, prod)
		}
		return grammar.NewBNF(prods, opts...)
	}
}

func (l *loader) members(names []string) ([]grammar.Type, error) {
	out := make([]grammar.Type, 0, len(names))
	for _, n := range names {
		if n == SelfName {
			return nil, fmt.Errorf("%w: %s is only allowed in bnf productions", fault.ErrConfiguration, SelfName)
		}
		t, err := l.resolve(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (l *loader) paramSpec(pd ParamDoc) (grammar.ParamSpec, error) {
	kinds := 0
	for _, set := range []bool{pd.Integer != nil, pd.Float != nil, pd.Choice != nil, pd.Array != nil, pd.Local != nil, pd.Global != nil, pd.Shared != ""} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return nil, fmt.Errorf("%w: parameter %s needs exactly one kind", fault.ErrConfiguration, pd.Name)
	}

	var (
		spec grammar.ParamSpec
		err  error
	)
	switch {
	case pd.Integer != nil:
		spec, err = param.NewInteger(pd.Integer.Min, pd.Integer.Max)
	case pd.Float != nil:
		spec, err = param.NewFloat(pd.Float.Min, pd.Float.Max)
	case pd.Choice != nil:
		spec, err = param.NewChoice(pd.Choice...)
	case pd.Array != nil:
		spec, err = param.NewArray(pd.Array.Symbols, pd.Array.Length)
	case pd.Local != nil:
		spec, err = param.NewLocalReference(pd.Local.Backward, pd.Local.Self, pd.Local.Forward)
	case pd.Global != nil:
		spec, err = l.globalSpec(pd)
	default:
		shared, ok := l.shared[pd.Shared]
		if !ok {
			return nil, fmt.Errorf("%w: parameter %s uses undeclared shared %s", fault.ErrConfiguration, pd.Name, pd.Shared)
		}
		spec = shared
	}
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", pd.Name, err)
	}
	return spec, nil
}

// globalSpec resolves the target lazily through the directory, so targets may
// be declared after their users.
func (l *loader) globalSpec(pd ParamDoc) (grammar.ParamSpec, error) {
	g := pd.Global
	if g.ZealSlots != nil && g.ZealProbability != nil {
		return nil, fmt.Errorf("%w: zeal_slots and zeal_probability are exclusive", fault.ErrConfiguration)
	}
	var zeal param.Zeal = param.ZealSlots(0)
	switch {
	case g.ZealSlots != nil:
		zeal = param.ZealSlots(*g.ZealSlots)
	case g.ZealProbability != nil:
		zeal = param.ZealProbability(*g.ZealProbability)
	}
	if _, declared := l.docs[g.Target]; !declared {
		return nil, fmt.Errorf("%w: global reference target %s is not declared", fault.ErrConfiguration, g.Target)
	}
	return param.NewNamedGlobalReference(l.dir, g.Target, g.FirstMacro, zeal)
}
