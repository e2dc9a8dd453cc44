package query

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/metrics"
)

// Bound is one bound variable: the typed value plus its datatype id.
type Bound struct {
	Val flake.Value
	DT  int64
}

type binding map[string]Bound

// Run parses and evaluates a query map against a snapshot.
func Run(ctx context.Context, d *db.DB, raw map[string]any) (any, error) {
	q, err := Parse(raw)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	return Exec(ctx, d, q)
}

// Exec evaluates a parsed query.
func Exec(ctx context.Context, d *db.DB, q *Query) (any, error) {
	started := time.Now()
	ex := &executor{d: d, q: q, qctx: mergeContexts(d.Ctx, q.Context)}
	out, err := ex.run(ctx)
	metrics.QueryDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	return out, nil
}

type executor struct {
	d    *db.DB
	q    *Query
	qctx db.Context
}

func (ex *executor) run(ctx context.Context) (any, error) {
	if len(ex.q.Where) == 0 {
		return ex.runFrom(ctx)
	}
	return ex.runWhere(ctx)
}

// runFrom serves subject-addressed selections: from a subject (or every
// subject of a collection predicate), project the selection tree.
func (ex *executor) runFrom(ctx context.Context) (any, error) {
	sids, err := ex.fromSubjects(ctx)
	if err != nil {
		return nil, err
	}
	var results []any
	for _, sid := range sids {
		// the visit set scopes to one top-level selection
		cr := newCrawler(ex.d, ex.qctx, ex.q.Depth)
		doc, err := cr.project(ctx, sid, ex.q.Select, ex.q.Depth)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			results = append(results, doc)
		}
		if ex.q.Mode == ModeOne && len(results) == 1 {
			break
		}
		if ex.q.Limit > 0 && len(results) >= ex.q.Limit {
			break
		}
	}
	return ex.finish(results)
}

func (ex *executor) fromSubjects(ctx context.Context) ([]int64, error) {
	from := ex.q.From
	if from == nil {
		return nil, errs.E(errs.KindInvalidQuery, "selection without where needs from")
	}
	switch from.Kind {
	case TermSID:
		return []int64{from.SID}, nil
	case TermIRI:
		iri := ex.qctx.Expand(from.IRI).IRI
		sid, found, err := ex.d.SubjectByIRI(ctx, iri)
		if err != nil {
			return nil, err
		}
		if found {
			return []int64{sid}, nil
		}
		// a collection predicate names every subject asserting it
		if pred, ok := ex.d.Schema.Predicate(iri); ok {
			return ex.subjectsOf(ctx, pred.ID)
		}
		return nil, nil
	default:
		return nil, errs.E(errs.KindInvalidQuery, "unsupported from")
	}
}

// subjectsOf scans psot for the distinct subjects asserting a predicate.
func (ex *executor) subjectsOf(ctx context.Context, pid int64) ([]int64, error) {
	fromF := flake.Min()
	fromF.P = pid
	toF := flake.Min()
	toF.P = pid + 1
	cur := ex.d.Current(flake.IndexPSOT, fromF, &toF)
	var out []int64
	var last int64
	seen := false
	for {
		f, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if seen && f.S == last {
			continue
		}
		out = append(out, f.S)
		last = f.S
		seen = true
	}
}

// runWhere drives the pattern pipeline and projects bound rows.
func (ex *executor) runWhere(ctx context.Context) (any, error) {
	rows := []binding{{}}
	for _, pat := range ex.q.Where {
		var err error
		rows, err = ex.applyPattern(ctx, pat, rows)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
	}

	for _, f := range ex.q.Filters {
		kept := rows[:0]
		for _, row := range rows {
			if f.eval(row) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	if hasAggregates(ex.q.Select) {
		return ex.aggregate(rows)
	}

	ex.orderRows(rows)
	rows = sliceRows(rows, ex.q.Offset, ex.q.Limit, ex.q.Mode)

	results := make([]any, 0, len(rows))
	for _, row := range rows {
		cr := newCrawler(ex.d, ex.qctx, ex.q.Depth)
		tuple := make([]any, 0, len(ex.q.Select))
		for _, item := range ex.q.Select {
			v, err := ex.projectItem(ctx, cr, item, row)
			if err != nil {
				return nil, err
			}
			tuple = append(tuple, v)
		}
		if len(ex.q.Select) == 1 {
			results = append(results, tuple[0])
		} else {
			results = append(results, tuple)
		}
	}

	if ex.q.Mode == ModeDistinct || ex.q.Mode == ModeReduced {
		results = dedupe(results)
	}
	return ex.finish(results)
}

func (ex *executor) projectItem(ctx context.Context, cr *crawler, item SelectItem, row binding) (any, error) {
	switch item.Kind {
	case SelectVar:
		b, ok := row[item.Var]
		if !ok {
			return nil, errs.Ef(errs.KindInvalidQuery, "unknown variable ?%s in select", item.Var)
		}
		return ex.render(ctx, b)
	case SelectMap:
		b, ok := row[item.Var]
		if !ok {
			return nil, errs.Ef(errs.KindInvalidQuery, "unknown variable ?%s in select", item.Var)
		}
		if !b.Val.IsRef() {
			return ex.render(ctx, b)
		}
		depth := item.Depth
		if depth == 0 {
			depth = ex.q.Depth
		}
		return cr.project(ctx, b.Val.RefSID(), item.Sub, depth)
	case SelectWildcard:
		return nil, errs.E(errs.KindInvalidQuery, "wildcard select requires from")
	default:
		return nil, errs.E(errs.KindInvalidQuery, "unsupported select item")
	}
}

// render emits a bound value: references become their IRIs, compacted
// against the context.
func (ex *executor) render(ctx context.Context, b Bound) (any, error) {
	if b.Val.IsRef() {
		iri, err := ex.d.IRIOf(ctx, b.Val.RefSID())
		if err != nil {
			return nil, err
		}
		if iri == "" {
			return b.Val.RefSID(), nil
		}
		return ex.qctx.Compact(iri), nil
	}
	return b.Val.Native(), nil
}

func (ex *executor) orderRows(rows []binding) {
	if len(ex.q.OrderBy) == 0 {
		return
	}
	specs := ex.q.OrderBy
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range specs {
			a, aok := rows[i][s.Var]
			b, bok := rows[j][s.Var]
			if !aok || !bok {
				continue
			}
			c := compareBound(a.Val, b.Val)
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func sliceRows(rows []binding, offset, limit int, mode SelectMode) []binding {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if mode == ModeOne {
		limit = 1
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func hasAggregates(sel []SelectItem) bool {
	for _, s := range sel {
		if s.Kind == SelectAgg {
			return true
		}
	}
	return false
}

// aggregate evaluates aggregate selections, grouped when group-by is
// present.
func (ex *executor) aggregate(rows []binding) (any, error) {
	groups := map[string][]binding{"": rows}
	var keys []string
	if len(ex.q.GroupBy) > 0 {
		groups = map[string][]binding{}
		for _, row := range rows {
			key := groupKey(row, ex.q.GroupBy)
			if _, ok := groups[key]; !ok {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], row)
		}
		sort.Strings(keys)
	} else {
		keys = []string{""}
	}

	var results []any
	for _, key := range keys {
		group := groups[key]
		tuple := make([]any, 0, len(ex.q.Select))
		for _, item := range ex.q.Select {
			switch item.Kind {
			case SelectAgg:
				v, err := applyAggregate(item, group)
				if err != nil {
					return nil, err
				}
				tuple = append(tuple, v)
			case SelectVar:
				if len(group) > 0 {
					if b, ok := group[0][item.Var]; ok {
						tuple = append(tuple, b.Val.Native())
						continue
					}
				}
				tuple = append(tuple, nil)
			default:
				return nil, errs.E(errs.KindInvalidQuery, "aggregate queries select variables and aggregates only")
			}
		}
		if len(tuple) == 1 {
			results = append(results, tuple[0])
		} else {
			results = append(results, tuple)
		}
	}
	return ex.finish(results)
}

func groupKey(row binding, vars []string) string {
	parts := make([]string, 0, len(vars))
	for _, v := range vars {
		if b, ok := row[v]; ok {
			parts = append(parts, b.Val.String())
		} else {
			parts = append(parts, "\x00")
		}
	}
	data, _ := json.Marshal(parts)
	return string(data)
}

func applyAggregate(item SelectItem, group []binding) (any, error) {
	if item.Agg == "count" {
		n := 0
		for _, row := range group {
			if _, ok := row[item.AggVar]; ok {
				n++
			}
		}
		return int64(n), nil
	}
	var nums []float64
	for _, row := range group {
		b, ok := row[item.AggVar]
		if !ok {
			continue
		}
		switch b.Val.Kind {
		case flake.KindInt:
			nums = append(nums, float64(b.Val.Int))
		case flake.KindFloat:
			nums = append(nums, b.Val.Flt)
		}
	}
	if len(nums) == 0 {
		return nil, nil
	}
	switch item.Agg {
	case "sum", "avg":
		var sum float64
		for _, n := range nums {
			sum += n
		}
		if item.Agg == "avg" {
			return sum / float64(len(nums)), nil
		}
		return sum, nil
	case "min":
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return m, nil
	case "max":
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return m, nil
	}
	return nil, errs.Ef(errs.KindInvalidQuery, "unknown aggregate %q", item.Agg)
}

func dedupe(results []any) []any {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			out = append(out, r)
			continue
		}
		if seen[string(data)] {
			continue
		}
		seen[string(data)] = true
		out = append(out, r)
	}
	return out
}

// finish applies the selection mode's result shape.
func (ex *executor) finish(results []any) (any, error) {
	if ex.q.Mode == ModeOne {
		if len(results) == 0 {
			return nil, nil
		}
		return results[0], nil
	}
	if results == nil {
		return []any{}, nil
	}
	return results, nil
}

func mergeContexts(base, over db.Context) db.Context {
	if len(base) == 0 {
		return over
	}
	if len(over) == 0 {
		return base
	}
	merged := make(db.Context, len(base)+len(over))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}
	return merged
}
