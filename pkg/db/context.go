package db

import (
	"fmt"
)

// ContainerList marks a predicate whose values preserve element order via
// a per-element index in flake metadata.
const ContainerList = "@list"

// TermDef is one resolved @context entry.
type TermDef struct {
	IRI       string
	Reverse   bool   // @reverse: traverse object→subject
	Container string // "@list" preserves order
	Type      string // "@id" marks string values as references
}

// Context maps local names to IRIs plus @reverse and @container
// directives, used to expand staged documents and query selections and to
// compact results.
type Context map[string]TermDef

// ParseContext resolves a raw JSON-LD-style @context map. Entries may be
// plain IRI strings or maps with @id / @reverse / @container / @type (also
// accepted without the @ prefix); a map without @id or @reverse maps the
// term to itself.
func ParseContext(raw map[string]any) (Context, error) {
	c := make(Context, len(raw))
	for term, v := range raw {
		switch tv := v.(type) {
		case string:
			c[term] = TermDef{IRI: tv}
		case map[string]any:
			var def TermDef
			if id, ok := stringAt(tv, "@id", "id"); ok {
				def.IRI = id
			}
			if rev, ok := stringAt(tv, "@reverse", "reverse"); ok {
				def.IRI = rev
				def.Reverse = true
			}
			if cont, ok := stringAt(tv, "@container", "container"); ok {
				def.Container = cont
			}
			if typ, ok := stringAt(tv, "@type", "type"); ok {
				def.Type = typ
			}
			if def.IRI == "" && def.Container == "" && def.Type == "" {
				return nil, fmt.Errorf("context term %q has no @id, @reverse, @container, or @type", term)
			}
			if def.IRI == "" {
				def.IRI = term
			}
			c[term] = def
		default:
			return nil, fmt.Errorf("context term %q: unsupported definition %T", term, v)
		}
	}
	return c, nil
}

// Expand resolves a term to its definition. Unknown terms expand to
// themselves: a bare keyword is already an IRI.
func (c Context) Expand(term string) TermDef {
	if c != nil {
		if def, ok := c[term]; ok {
			return def
		}
	}
	return TermDef{IRI: term}
}

// Compact maps an IRI back to the shortest non-reverse term declaring it,
// for result projection, when that term is shorter than the IRI; otherwise
// it returns the IRI itself.
func (c Context) Compact(iri string) string {
	best := iri
	for term, def := range c {
		if def.IRI == iri && !def.Reverse && len(term) < len(best) {
			best = term
		}
	}
	return best
}

func stringAt(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
