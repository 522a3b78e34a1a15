package grammar

import (
	"fmt"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
)

// ParamSpec creates a fresh, uninitialized parameter for one macro instance.
type ParamSpec interface {
	NewParameter() genome.Parameter
}

type ParamDecl struct {
	Name string
	Spec ParamSpec
}

func Param(name string, spec ParamSpec) ParamDecl {
	return ParamDecl{Name: name, Spec: spec}
}

// Macro is a leaf: a text template and its parameters in declaration order.
type Macro struct {
	base
	text   string
	params []ParamDecl
}

func NewMacro(text string, params []ParamDecl, opts ...Option) (*Macro, error) {
	defaultName := "Macro"
	if len(params) == 0 {
		defaultName = "TextMacro"
	}
	b, err := newBase(defaultName, opts)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if !validIdentifier(p.Name) {
			return nil, fmt.Errorf("%w: invalid parameter name %q", fault.ErrConfiguration, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter %q", fault.ErrConfiguration, p.Name)
		}
		if p.Spec == nil {
			return nil, fmt.Errorf("%w: parameter %q has no type", fault.ErrConfiguration, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return &Macro{base: b, text: text, params: append([]ParamDecl(nil), params...)}, nil
}

func (m *Macro) Kind() genome.Kind { return genome.KindMacro }

func (m *Macro) Text() string { return m.text }

func (m *Macro) Params() []ParamDecl {
	return append([]ParamDecl(nil), m.params...)
}

// Complete reports whether the node holds exactly one parameter per declared
// name.
func (m *Macro) Complete(n *genome.Node) bool {
	names := n.ParamNames()
	if len(names) != len(m.params) {
		return false
	}
	for _, decl := range m.params {
		if _, ok := n.Param(decl.Name); !ok {
			return false
		}
	}
	return true
}
