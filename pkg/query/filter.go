package query

import (
	"strconv"
	"strings"

	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
)

// Filter is a predicate expression over bound variables, parsed from the
// s-expression form: (> ?age 30), (and (> ?age 18) (< ?age 65)).
type Filter struct {
	Op   string
	Var  string
	Arg  flake.Value
	Subs []Filter // and/or
}

func parseFilters(raw any) ([]Filter, error) {
	var exprs []string
	switch v := raw.(type) {
	case string:
		exprs = []string{v}
	case []any:
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, errs.E(errs.KindInvalidQuery, "filter expressions must be strings")
			}
			exprs = append(exprs, s)
		}
	default:
		return nil, errs.E(errs.KindInvalidQuery, "filter must be a string or list of strings")
	}
	out := make([]Filter, 0, len(exprs))
	for _, expr := range exprs {
		f, rest, err := parseFilterExpr(strings.TrimSpace(expr))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(rest) != "" {
			return nil, errs.Ef(errs.KindInvalidQuery, "trailing input in filter %q", expr)
		}
		out = append(out, f)
	}
	return out, nil
}

func parseFilterExpr(s string) (Filter, string, error) {
	if !strings.HasPrefix(s, "(") {
		return Filter{}, "", errs.Ef(errs.KindInvalidQuery, "filter must be parenthesized: %q", s)
	}
	s = s[1:]
	op, s := nextToken(s)
	switch op {
	case "and", "or":
		var f Filter
		f.Op = op
		for {
			s = strings.TrimSpace(s)
			if strings.HasPrefix(s, ")") {
				return f, s[1:], nil
			}
			if s == "" {
				return Filter{}, "", errs.E(errs.KindInvalidQuery, "unterminated filter")
			}
			sub, rest, err := parseFilterExpr(s)
			if err != nil {
				return Filter{}, "", err
			}
			f.Subs = append(f.Subs, sub)
			s = rest
		}
	case ">", ">=", "<", "<=", "=", "not=":
		varTok, s := nextToken(s)
		if !strings.HasPrefix(varTok, "?") {
			return Filter{}, "", errs.Ef(errs.KindInvalidQuery, "filter %s needs a variable", op)
		}
		argTok, s := nextToken(s)
		arg, err := parseFilterLiteral(argTok)
		if err != nil {
			return Filter{}, "", err
		}
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, ")") {
			return Filter{}, "", errs.E(errs.KindInvalidQuery, "unterminated filter")
		}
		return Filter{Op: op, Var: varTok[1:], Arg: arg}, s[1:], nil
	default:
		return Filter{}, "", errs.Ef(errs.KindInvalidQuery, "unknown filter operator %q", op)
	}
}

func nextToken(s string) (string, string) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "\"") {
		if end := strings.Index(s[1:], "\""); end >= 0 {
			return s[:end+2], s[end+2:]
		}
	}
	end := strings.IndexAny(s, " )")
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

func parseFilterLiteral(tok string) (flake.Value, error) {
	if strings.HasPrefix(tok, "\"") && strings.HasSuffix(tok, "\"") && len(tok) >= 2 {
		return flake.String(tok[1 : len(tok)-1]), nil
	}
	if tok == "true" || tok == "false" {
		return flake.Bool(tok == "true"), nil
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return flake.Int(n), nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return flake.Float(f), nil
	}
	return flake.String(tok), nil
}

// eval applies the filter to one binding row. Unbound variables fail the
// filter rather than erroring: a row that never bound the variable
// cannot satisfy a constraint on it.
func (f Filter) eval(row binding) bool {
	switch f.Op {
	case "and":
		for _, sub := range f.Subs {
			if !sub.eval(row) {
				return false
			}
		}
		return true
	case "or":
		for _, sub := range f.Subs {
			if sub.eval(row) {
				return true
			}
		}
		return false
	}
	b, ok := row[f.Var]
	if !ok {
		return false
	}
	c := compareBound(b.Val, f.Arg)
	switch f.Op {
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case "=":
		return c == 0
	case "not=":
		return c != 0
	}
	return false
}

// compareBound compares across the numeric kinds so (> ?age 30) works
// whether the stored value is long or double.
func compareBound(a, b flake.Value) int {
	numeric := func(v flake.Value) (float64, bool) {
		switch v.Kind {
		case flake.KindInt:
			return float64(v.Int), true
		case flake.KindFloat:
			return v.Flt, true
		}
		return 0, false
	}
	if fa, ok := numeric(a); ok {
		if fb, ok := numeric(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return flake.CompareValues(a, b)
}
