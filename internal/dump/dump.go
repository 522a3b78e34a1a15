// Package dump renders genomes as text by expanding the brace templates of
// their macros.
//
// A template refers to values with {name} or {name:%verb}; {{ and }} are
// literal braces. Macro parameters, the extra values of Options and a few
// node attributes are visible to every template:
//
//	_node      name of the node, e.g. n12
//	_pathname  framework path of the node, e.g. n0.n3.n12
//	_element   name of the grammar element
//	_comment   comment prefix in effect for the node
//
// Structural references render as the name of their target node.
package dump

import (
	"fmt"
	"strings"

	"gramforge/internal/fault"
	"gramforge/internal/genome"
	"gramforge/internal/grammar"
)

const DefaultComment = ";"

type Options struct {
	// Comment is used for elements that declare no comment prefix.
	Comment string
	// NodeInfo appends the path and element of each node as a comment.
	NodeInfo bool
	// Label is emitted before nodes that are the target of a structural
	// reference.
	Label string

	TextBeforeNode  string
	TextAfterNode   string
	TextBeforeMacro string
	TextAfterMacro  string
	TextBeforeFrame string
	TextAfterFrame  string

	Extra map[string]any
}

// DefaultOptions mirror a line-oriented assembly-like listing.
func DefaultOptions() Options {
	return Options{
		Comment:        DefaultComment,
		Label:          "{_node}:\n",
		TextAfterMacro: "\n",
	}
}

// NodeName is how nodes are referred to in dumps.
func NodeName(id genome.NodeID) string {
	return fmt.Sprintf("n%d", id)
}

func Dump(g *genome.Genome, opts Options) (string, error) {
	return g.Serialize(Formatter(opts))
}

// Formatter returns the per-node renderer used by genome.Serialize.
func Formatter(opts Options) genome.NodeFormatter {
	return func(v genome.NodeView) (string, error) {
		if v.Kind() == genome.KindRoot {
			return "", nil
		}
		bag := nodeBag(v, opts)
		var b strings.Builder
		emit := func(tmpl string) error {
			if tmpl == "" {
				return nil
			}
			text, err := Expand(tmpl, bag)
			if err != nil {
				return fmt.Errorf("%s: %w", v.PathName(), err)
			}
			b.WriteString(text)
			return nil
		}

		if err := emit(opts.TextBeforeNode); err != nil {
			return "", err
		}
		if v.LinkInDegree() > 0 {
			if err := emit(opts.Label); err != nil {
				return "", err
			}
		}
		comment := bag["_comment"].(string)
		info := comment + comment + " " + v.PathName() + " -> " + v.Name()
		switch v.Kind() {
		case genome.KindMacro:
			m, ok := v.Element().(*grammar.Macro)
			if !ok {
				return "", fmt.Errorf("%w: macro node %s holds %T", fault.ErrConfiguration, v.PathName(), v.Element())
			}
			if err := emit(opts.TextBeforeMacro); err != nil {
				return "", err
			}
			if err := emit(m.Text()); err != nil {
				return "", err
			}
			if opts.NodeInfo {
				b.WriteString("  " + info)
			}
			if err := emit(opts.TextAfterMacro); err != nil {
				return "", err
			}
		case genome.KindFrame:
			if err := emit(opts.TextBeforeFrame); err != nil {
				return "", err
			}
			if opts.NodeInfo {
				b.WriteString(info)
				if err := emit(opts.TextAfterMacro); err != nil {
					return "", err
				}
			}
			if err := emit(opts.TextAfterFrame); err != nil {
				return "", err
			}
		}
		if err := emit(opts.TextAfterNode); err != nil {
			return "", err
		}
		return b.String(), nil
	}
}

func nodeBag(v genome.NodeView, opts Options) map[string]any {
	bag := make(map[string]any, len(opts.Extra)+8)
	for k, val := range opts.Extra {
		bag[k] = val
	}
	comment := opts.Comment
	if t, ok := v.Element().(grammar.Type); ok && t.Comment() != "" {
		comment = t.Comment()
	}
	bag["_comment"] = comment
	bag["_node"] = NodeName(v.ID())
	bag["_pathname"] = v.PathName()
	bag["_element"] = v.Name()
	for name, val := range v.Values() {
		bag[name] = val
	}
	return bag
}

// Expand substitutes the placeholders of tmpl with values from bag.
func Expand(tmpl string, bag map[string]any) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated placeholder in %q", fault.ErrConfiguration, tmpl)
			}
			field := tmpl[i+1 : i+1+end]
			text, err := render(field, bag)
			if err != nil {
				return "", err
			}
			b.WriteString(text)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
			}
			b.WriteByte('}')
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func render(field string, bag map[string]any) (string, error) {
	name, verb, hasVerb := strings.Cut(field, ":")
	if name == "" {
		return "", fmt.Errorf("%w: empty placeholder", fault.ErrConfiguration)
	}
	value, ok := bag[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown placeholder {%s}", fault.ErrConfiguration, name)
	}
	if value == nil {
		return "", fmt.Errorf("%w: placeholder {%s} has no value", fault.ErrValidity, name)
	}
	if !hasVerb {
		verb = "%v"
	}
	if !strings.HasPrefix(verb, "%") {
		return "", fmt.Errorf("%w: bad format %q for {%s}", fault.ErrConfiguration, verb, name)
	}
	if id, isNode := value.(genome.NodeID); isNode {
		if verb == "%v" || verb == "%s" {
			return NodeName(id), nil
		}
		return fmt.Sprintf(verb, int(id)), nil
	}
	return fmt.Sprintf(verb, value), nil
}
