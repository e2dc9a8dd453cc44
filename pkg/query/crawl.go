package query

import (
	"context"
	"sort"

	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
)

// crawler projects subjects into documents, following reference-valued
// predicates through sub-selections. Depth decrements on each descent;
// at zero a reference emits only {id}. A visit set of (subject, spec)
// pairs stops cycles within one top-level selection.
type crawler struct {
	d    *db.DB
	qctx db.Context
	seen map[seenKey]bool
}

type seenKey struct {
	sid  int64
	spec int
}

func newCrawler(d *db.DB, qctx db.Context, _ int) *crawler {
	return &crawler{d: d, qctx: qctx, seen: make(map[seenKey]bool)}
}

// project renders one subject through a selection. A nil result means
// the subject has nothing visible to select.
func (c *crawler) project(ctx context.Context, sid int64, spec []SelectItem, depth int) (map[string]any, error) {
	doc := make(map[string]any)
	for _, item := range spec {
		switch item.Kind {
		case SelectWildcard:
			if err := c.wildcard(ctx, sid, doc, depth); err != nil {
				return nil, err
			}
		case SelectPred:
			if err := c.predicate(ctx, sid, item.Pred, nil, 0, doc, depth); err != nil {
				return nil, err
			}
		case SelectMap:
			key := item.Pred
			if key == "" {
				key = item.Var
			}
			sub := item.Sub
			d := depth
			if item.Depth > 0 {
				d = item.Depth
			}
			if err := c.predicate(ctx, sid, key, sub, item.SpecID, doc, d); err != nil {
				return nil, err
			}
		default:
			return nil, errs.E(errs.KindInvalidQuery, "unsupported selection in graph crawl")
		}
	}
	if len(doc) == 0 {
		return nil, nil
	}
	return doc, nil
}

// wildcard emits every visible predicate of the subject, grouped
// p → value-or-values in index order.
func (c *crawler) wildcard(ctx context.Context, sid int64, doc map[string]any, depth int) error {
	fs, err := c.d.SubjectFlakes(ctx, sid)
	if err != nil {
		return err
	}
	var order []int64
	groups := make(map[int64][]flake.Flake)
	for _, f := range fs {
		if _, ok := groups[f.P]; !ok {
			order = append(order, f.P)
		}
		groups[f.P] = append(groups[f.P], f)
	}
	for _, pid := range order {
		group := groups[pid]
		if pid == db.PidID {
			doc["id"] = c.qctx.Compact(group[0].O.Str)
			continue
		}
		pred, ok := c.d.Schema.PredicateByID(pid)
		if !ok {
			continue
		}
		key := c.qctx.Compact(pred.IRI)
		val, err := c.groupValue(ctx, pred, group, nil, 0, depth)
		if err != nil {
			return err
		}
		doc[key] = val
	}
	return nil
}

// predicate emits one selected predicate: forward through spot, or
// reverse through opst when the context entry declares @reverse.
func (c *crawler) predicate(ctx context.Context, sid int64, term string, sub []SelectItem, specID int, doc map[string]any, depth int) error {
	def := c.qctx.Expand(term)
	if def.Reverse {
		pred, ok := c.d.Schema.Predicate(def.IRI)
		if !ok {
			return nil
		}
		refs, err := c.d.RefsTo(ctx, sid, pred.ID)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return nil
		}
		vals := make([]any, 0, len(refs))
		for _, ref := range refs {
			v, err := c.renderRef(ctx, ref, sub, specID, depth-1)
			if err != nil {
				return err
			}
			vals = append(vals, v)
		}
		doc[term] = vals
		return nil
	}

	if def.IRI == "@id" || def.IRI == "id" {
		iri, err := c.d.IRIOf(ctx, sid)
		if err != nil {
			return err
		}
		if iri != "" {
			doc["id"] = c.qctx.Compact(iri)
		}
		return nil
	}

	pred, ok := c.d.Schema.Predicate(def.IRI)
	if !ok {
		return nil
	}
	fs, err := c.d.SubjectPredicateFlakes(ctx, sid, pred.ID)
	if err != nil {
		return err
	}
	if len(fs) == 0 {
		return nil
	}
	val, err := c.groupValue(ctx, pred, fs, sub, specID, depth)
	if err != nil {
		return err
	}
	doc[term] = val
	return nil
}

// groupValue renders the values of one predicate group: a sequence for
// multi-cardinality or @list predicates, a scalar otherwise. Element
// order for @list predicates lives on the flakes themselves (the staged
// per-element index in metadata), so it is restored whether or not the
// query supplies the @container context.
func (c *crawler) groupValue(ctx context.Context, pred *db.Predicate, fs []flake.Flake, sub []SelectItem, specID int, depth int) (any, error) {
	isList := false
	for _, f := range fs {
		if _, ok := f.M.ListIndex(); ok {
			isList = true
			break
		}
	}
	if isList {
		ordered := make([]flake.Flake, len(fs))
		copy(ordered, fs)
		sort.SliceStable(ordered, func(i, j int) bool {
			a, _ := ordered[i].M.ListIndex()
			b, _ := ordered[j].M.ListIndex()
			return a < b
		})
		fs = ordered
	}

	vals := make([]any, 0, len(fs))
	for _, f := range fs {
		v, err := c.renderValue(ctx, f, sub, specID, depth)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	if pred.Multi || isList || len(vals) > 1 {
		return vals, nil
	}
	return vals[0], nil
}

func (c *crawler) renderValue(ctx context.Context, f flake.Flake, sub []SelectItem, specID int, depth int) (any, error) {
	if f.O.IsRef() {
		return c.renderRef(ctx, f.O.RefSID(), sub, specID, depth-1)
	}
	return f.O.Native(), nil
}

// renderRef renders a referenced subject: recursively through the
// sub-selection while depth remains and the (subject, spec) pair is
// unvisited, otherwise as its identifier.
func (c *crawler) renderRef(ctx context.Context, sid int64, sub []SelectItem, specID int, depth int) (any, error) {
	if len(sub) == 0 {
		return c.refID(ctx, sid, false)
	}
	if depth < 0 {
		depth = 0
	}
	key := seenKey{sid: sid, spec: specID}
	if depth == 0 || c.seen[key] {
		return c.refID(ctx, sid, true)
	}
	c.seen[key] = true
	doc, err := c.project(ctx, sid, sub, depth)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return c.refID(ctx, sid, true)
	}
	return doc, nil
}

// refID is the shallow rendering of a reference: the bare identifier for
// plain predicate selections, {id: ...} at a crawl boundary.
func (c *crawler) refID(ctx context.Context, sid int64, wrap bool) (any, error) {
	iri, err := c.d.IRIOf(ctx, sid)
	if err != nil {
		return nil, err
	}
	var id any = sid
	if iri != "" {
		id = c.qctx.Compact(iri)
	}
	if wrap {
		return map[string]any{"id": id}, nil
	}
	return id, nil
}
