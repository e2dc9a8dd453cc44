package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/errs"
)

// SelectKind discriminates selection items.
type SelectKind int

const (
	SelectWildcard SelectKind = iota // :* selects every predicate of the subject
	SelectVar                        // ?name, a bound variable's value
	SelectPred                       // a predicate term on the crawled subject
	SelectMap                        // {var: [sub-selection]}, a graph crawl
	SelectAgg                        // (count ?x) and friends
)

// SelectItem is one node of the selection tree: a tagged variant rather
// than a raw map, so the executor switches on Kind instead of sniffing
// shapes.
type SelectItem struct {
	Kind   SelectKind
	Var    string       // SelectVar, SelectMap: variable name without '?'
	Pred   string       // SelectPred: predicate term as written
	Sub    []SelectItem // SelectMap: nested selection
	Depth  int          // SelectMap: optional per-map depth override, 0 = inherit
	Agg    string       // SelectAgg: function name
	AggVar string       // SelectAgg: argument variable
	SpecID int          // identity of this spec node for crawl cycle control
}

// SelectMode distinguishes the four selection surfaces.
type SelectMode int

const (
	ModeMany SelectMode = iota
	ModeOne             // limit 1, unwrap
	ModeDistinct        // exact de-duplication of projected tuples
	ModeReduced         // permitted de-duplication; evaluated as Distinct
)

// TermKind discriminates pattern terms.
type TermKind int

const (
	TermVar TermKind = iota
	TermIRI
	TermSID
	TermLit
)

// Term is one position of a triple pattern.
type Term struct {
	Kind TermKind
	Var  string // TermVar: name without '?'
	IRI  string // TermIRI
	SID  int64  // TermSID
	Lit  any    // TermLit: literal object value
	DT   *int64 // TermLit: optional datatype pin
}

// Pattern is one [s p o] triple pattern.
type Pattern struct {
	S Term
	P Term
	O Term
}

// OrderSpec is one order-by entry.
type OrderSpec struct {
	Var  string
	Desc bool
}

// Query is the parsed form of a query map.
type Query struct {
	Select      []SelectItem
	Mode        SelectMode
	From        *Term
	Where       []Pattern
	Filters     []Filter
	GroupBy     []string
	OrderBy     []OrderSpec
	Limit       int
	Offset      int
	Depth       int
	Context     db.Context
	PrettyPrint bool
}

// Parse builds the AST from a decoded query map.
func Parse(raw map[string]any) (*Query, error) {
	q := &Query{Depth: defaultDepth}
	specs := 0

	var selRaw any
	switch {
	case raw["select"] != nil:
		selRaw = raw["select"]
		q.Mode = ModeMany
	case raw["selectOne"] != nil:
		selRaw = raw["selectOne"]
		q.Mode = ModeOne
	case raw["selectDistinct"] != nil:
		selRaw = raw["selectDistinct"]
		q.Mode = ModeDistinct
	case raw["selectReduced"] != nil:
		selRaw = raw["selectReduced"]
		q.Mode = ModeReduced
	default:
		return nil, errs.E(errs.KindInvalidQuery, "query has no select clause")
	}
	sel, err := parseSelection(selRaw, &specs)
	if err != nil {
		return nil, err
	}
	q.Select = sel

	if rawCtx, ok := raw["context"].(map[string]any); ok {
		c, err := db.ParseContext(rawCtx)
		if err != nil {
			return nil, errs.Wrap(errs.KindInvalidQuery, "context", err)
		}
		q.Context = c
	}

	if from, ok := raw["from"]; ok {
		t, err := parseTerm(from)
		if err != nil {
			return nil, err
		}
		q.From = &t
	}

	if whereRaw, ok := raw["where"]; ok {
		arr, ok := whereRaw.([]any)
		if !ok {
			return nil, errs.E(errs.KindInvalidQuery, "where must be a list of triple patterns")
		}
		for _, p := range arr {
			pat, err := parsePattern(p)
			if err != nil {
				return nil, err
			}
			q.Where = append(q.Where, pat)
		}
	}

	if filterRaw, ok := raw["filter"]; ok {
		fs, err := parseFilters(filterRaw)
		if err != nil {
			return nil, err
		}
		q.Filters = fs
	}

	if gb, ok := raw["group-by"]; ok {
		q.GroupBy = parseVarList(gb)
	} else if gb, ok := raw["groupBy"]; ok {
		q.GroupBy = parseVarList(gb)
	}

	if ob, ok := raw["order-by"]; ok {
		q.OrderBy = parseOrderBy(ob)
	} else if ob, ok := raw["orderBy"]; ok {
		q.OrderBy = parseOrderBy(ob)
	}

	q.Limit = intAt(raw, "limit", 0)
	q.Offset = intAt(raw, "offset", 0)
	if d := intAt(raw, "depth", -1); d >= 0 {
		q.Depth = d
	}
	if pp, ok := raw["prettyPrint"].(bool); ok {
		q.PrettyPrint = pp
	}

	if q.From == nil && len(q.Where) == 0 {
		return nil, errs.E(errs.KindInvalidQuery, "query needs from or where")
	}
	return q, nil
}

// defaultDepth bounds graph crawls that do not set one.
const defaultDepth = 100

func parseSelection(raw any, specs *int) ([]SelectItem, error) {
	arr, ok := raw.([]any)
	if !ok {
		// a single selection is the one-element list
		arr = []any{raw}
	}
	out := make([]SelectItem, 0, len(arr))
	for _, item := range arr {
		si, err := parseSelectItem(item, specs)
		if err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, nil
}

func parseSelectItem(item any, specs *int) (SelectItem, error) {
	switch v := item.(type) {
	case string:
		switch {
		case v == "*" || v == ":*" || v == "@*":
			return SelectItem{Kind: SelectWildcard}, nil
		case strings.HasPrefix(v, "?"):
			return SelectItem{Kind: SelectVar, Var: v[1:]}, nil
		case strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")"):
			return parseAggregate(v)
		default:
			// keyword selections may be written :term
			return SelectItem{Kind: SelectPred, Pred: strings.TrimPrefix(v, ":")}, nil
		}
	case map[string]any:
		if len(v) != 1 {
			return SelectItem{}, errs.E(errs.KindInvalidQuery, "selection map must have exactly one key")
		}
		for key, subRaw := range v {
			*specs++
			si := SelectItem{Kind: SelectMap, SpecID: *specs}
			if strings.HasPrefix(key, "?") {
				si.Var = key[1:]
			} else {
				si.Pred = key
			}
			sub, err := parseSelection(subRaw, specs)
			if err != nil {
				return SelectItem{}, err
			}
			si.Sub = sub
			return si, nil
		}
	}
	return SelectItem{}, errs.Ef(errs.KindInvalidQuery, "unsupported selection item %T", item)
}

func parseAggregate(expr string) (SelectItem, error) {
	body := strings.TrimSpace(expr[1 : len(expr)-1])
	parts := strings.Fields(body)
	if len(parts) != 2 || !strings.HasPrefix(parts[1], "?") {
		return SelectItem{}, errs.Ef(errs.KindInvalidQuery, "unsupported aggregate %q", expr)
	}
	switch parts[0] {
	case "count", "sum", "avg", "min", "max":
	default:
		return SelectItem{}, errs.Ef(errs.KindInvalidQuery, "unknown aggregate %q", parts[0])
	}
	return SelectItem{Kind: SelectAgg, Agg: parts[0], AggVar: parts[1][1:]}, nil
}

func parsePattern(raw any) (Pattern, error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) != 3 {
		return Pattern{}, errs.E(errs.KindInvalidQuery, "triple pattern must be [s p o]")
	}
	s, err := parseTerm(arr[0])
	if err != nil {
		return Pattern{}, err
	}
	p, err := parseTerm(arr[1])
	if err != nil {
		return Pattern{}, err
	}
	o, err := parseObjectTerm(arr[2])
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{S: s, P: p, O: o}, nil
}

func parseTerm(raw any) (Term, error) {
	switch v := raw.(type) {
	case string:
		if strings.HasPrefix(v, "?") {
			return Term{Kind: TermVar, Var: v[1:]}, nil
		}
		return Term{Kind: TermIRI, IRI: v}, nil
	case float64:
		return Term{Kind: TermSID, SID: int64(v)}, nil
	case int64:
		return Term{Kind: TermSID, SID: v}, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return Term{}, errs.Wrap(errs.KindInvalidQuery, "term", err)
		}
		return Term{Kind: TermSID, SID: n}, nil
	default:
		return Term{}, errs.Ef(errs.KindInvalidQuery, "unsupported term %T", raw)
	}
}

// parseObjectTerm also accepts literals and the [value, dt] pinned form.
func parseObjectTerm(raw any) (Term, error) {
	switch v := raw.(type) {
	case string:
		if strings.HasPrefix(v, "?") {
			return Term{Kind: TermVar, Var: v[1:]}, nil
		}
		return Term{Kind: TermLit, Lit: v}, nil
	case bool:
		return Term{Kind: TermLit, Lit: v}, nil
	case float64, int64, json.Number:
		return Term{Kind: TermLit, Lit: v}, nil
	case []any:
		if len(v) != 2 {
			return Term{}, errs.E(errs.KindInvalidQuery, "pinned object must be [value, dt]")
		}
		inner, err := parseObjectTerm(v[0])
		if err != nil {
			return Term{}, err
		}
		dtRaw, err := parseTerm(v[1])
		if err != nil || dtRaw.Kind != TermSID {
			return Term{}, errs.E(errs.KindInvalidQuery, "pinned object datatype must be an integer")
		}
		inner.DT = &dtRaw.SID
		return inner, nil
	default:
		return Term{}, errs.Ef(errs.KindInvalidQuery, "unsupported object term %T", raw)
	}
}

func parseVarList(raw any) []string {
	var out []string
	switch v := raw.(type) {
	case string:
		out = append(out, strings.TrimPrefix(v, "?"))
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, strings.TrimPrefix(s, "?"))
			}
		}
	}
	return out
}

func parseOrderBy(raw any) []OrderSpec {
	var out []OrderSpec
	switch v := raw.(type) {
	case string:
		out = append(out, OrderSpec{Var: strings.TrimPrefix(v, "?")})
	case []any:
		// either ["?a", "?b"] or ["desc", "?a"]
		if len(v) == 2 {
			if dir, ok := v[0].(string); ok && (dir == "asc" || dir == "desc") {
				if name, ok := v[1].(string); ok {
					return []OrderSpec{{Var: strings.TrimPrefix(name, "?"), Desc: dir == "desc"}}
				}
			}
		}
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, OrderSpec{Var: strings.TrimPrefix(s, "?")})
			}
		}
	}
	return out
}

func intAt(m map[string]any, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return int(i)
		}
	}
	return def
}

func (t Term) String() string {
	switch t.Kind {
	case TermVar:
		return "?" + t.Var
	case TermIRI:
		return t.IRI
	case TermSID:
		return fmt.Sprintf("%d", t.SID)
	default:
		return fmt.Sprintf("%v", t.Lit)
	}
}
