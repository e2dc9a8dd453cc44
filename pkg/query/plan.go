package query

import (
	"context"
	"math"

	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
)

// applyPattern extends every row with the bindings one triple pattern
// produces, probing the index the bound positions select: (s,p) bound ⇒
// spot, (p,o) bound ⇒ post, (o) bound on a reference ⇒ opst, (p) bound ⇒
// psot, nothing bound ⇒ spot.
func (ex *executor) applyPattern(ctx context.Context, pat Pattern, rows []binding) ([]binding, error) {
	var out []binding
	for _, row := range rows {
		extended, err := ex.matchPattern(ctx, pat, row)
		if err != nil {
			return nil, err
		}
		out = append(out, extended...)
	}
	return out, nil
}

// resolved pattern positions against one row
type resolvedPattern struct {
	sBound bool
	s      int64
	sVar   string

	pBound bool
	p      int64
	pVar   string
	pred   *db.Predicate

	oBound bool
	o      flake.Value
	oDT    *int64
	oVar   string
}

func (ex *executor) matchPattern(ctx context.Context, pat Pattern, row binding) ([]binding, error) {
	rp, err := ex.resolvePattern(ctx, pat, row)
	if err != nil {
		return nil, err
	}
	if rp == nil {
		// a constant term resolved to nothing; no rows can match
		return nil, nil
	}

	switch {
	case rp.sBound && rp.pBound:
		return ex.scanSP(ctx, rp, row)
	case rp.sBound:
		return ex.scanS(ctx, rp, row)
	case rp.pBound && rp.oBound:
		return ex.scanPO(ctx, rp, row)
	case rp.oBound && rp.o.IsRef():
		return ex.scanO(ctx, rp, row)
	case rp.pBound:
		return ex.scanP(ctx, rp, row)
	default:
		return ex.scanAll(ctx, rp, row)
	}
}

// resolvePattern grounds each term against the row, the context, and the
// vocabulary. @reverse predicate terms invert subject and object.
func (ex *executor) resolvePattern(ctx context.Context, pat Pattern, row binding) (*resolvedPattern, error) {
	s, p, o := pat.S, pat.P, pat.O

	if p.Kind == TermIRI {
		def := ex.qctx.Expand(p.IRI)
		if def.Reverse {
			s, o = o, s
		}
		p = Term{Kind: TermIRI, IRI: def.IRI}
	}

	rp := &resolvedPattern{}

	// subject
	switch s.Kind {
	case TermVar:
		if b, ok := row[s.Var]; ok {
			if !b.Val.IsRef() {
				return nil, nil
			}
			rp.sBound, rp.s = true, b.Val.RefSID()
		}
		rp.sVar = s.Var
	case TermSID:
		rp.sBound, rp.s = true, s.SID
	case TermIRI:
		iri := ex.qctx.Expand(s.IRI).IRI
		sid, found, err := ex.d.SubjectByIRI(ctx, iri)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		rp.sBound, rp.s = true, sid
	default:
		return nil, errs.E(errs.KindInvalidQuery, "unsupported subject term")
	}

	// predicate
	switch p.Kind {
	case TermVar:
		if b, ok := row[p.Var]; ok {
			rp.pBound, rp.p = true, b.Val.Int
		}
		rp.pVar = p.Var
	case TermIRI:
		pred, ok := ex.d.Schema.Predicate(p.IRI)
		if !ok {
			return nil, nil
		}
		rp.pBound, rp.p, rp.pred = true, pred.ID, pred
	case TermSID:
		rp.pBound, rp.p = true, p.SID
		if pred, ok := ex.d.Schema.PredicateByID(p.SID); ok {
			rp.pred = pred
		}
	default:
		return nil, errs.E(errs.KindInvalidQuery, "unsupported predicate term")
	}

	// object
	switch o.Kind {
	case TermVar:
		if b, ok := row[o.Var]; ok {
			rp.oBound, rp.o = true, b.Val
			dt := b.DT
			rp.oDT = &dt
		}
		rp.oVar = o.Var
	case TermLit:
		val, dt, err := ex.literalObject(ctx, rp.pred, o)
		if err != nil {
			return nil, err
		}
		if val == nil {
			return nil, nil
		}
		rp.oBound, rp.o = true, *val
		rp.oDT = dt
	case TermSID:
		rp.oBound, rp.o = true, flake.Ref(o.SID)
		dt := flake.DtRef
		rp.oDT = &dt
	case TermIRI:
		iri := ex.qctx.Expand(o.IRI).IRI
		sid, found, err := ex.d.SubjectByIRI(ctx, iri)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		rp.oBound, rp.o = true, flake.Ref(sid)
		dt := flake.DtRef
		rp.oDT = &dt
	}
	return rp, nil
}

// literalObject types a literal object term. Strings on reference
// predicates resolve as IRIs; a [value, dt] pin is honored as written.
func (ex *executor) literalObject(ctx context.Context, pred *db.Predicate, o Term) (*flake.Value, *int64, error) {
	switch lit := o.Lit.(type) {
	case string:
		if pred != nil && (pred.Ref || pred.Type == flake.DtRef) {
			iri := ex.qctx.Expand(lit).IRI
			sid, found, err := ex.d.SubjectByIRI(ctx, iri)
			if err != nil {
				return nil, nil, err
			}
			if !found {
				return nil, nil, nil
			}
			v := flake.Ref(sid)
			dt := flake.DtRef
			return &v, &dt, nil
		}
		v := flake.String(lit)
		return &v, o.DT, nil
	case bool:
		v := flake.Bool(lit)
		return &v, o.DT, nil
	case float64:
		if lit == float64(int64(lit)) {
			v := flake.Int(int64(lit))
			return &v, o.DT, nil
		}
		v := flake.Float(lit)
		return &v, o.DT, nil
	case int64:
		v := flake.Int(lit)
		return &v, o.DT, nil
	default:
		return nil, nil, errs.Ef(errs.KindInvalidQuery, "unsupported object literal %T", o.Lit)
	}
}

// scanSP probes spot with subject and predicate bound.
func (ex *executor) scanSP(ctx context.Context, rp *resolvedPattern, row binding) ([]binding, error) {
	from := flake.Min()
	from.S = rp.s
	from.P = rp.p
	to := flake.Min()
	to.S = rp.s
	to.P = rp.p + 1
	return ex.collect(ctx, flake.IndexSPOT, from, &to, rp, row)
}

// scanS probes spot with only the subject bound.
func (ex *executor) scanS(ctx context.Context, rp *resolvedPattern, row binding) ([]binding, error) {
	from := flake.Min()
	from.S = rp.s
	to := flake.Min()
	to.S = rp.s + 1
	return ex.collect(ctx, flake.IndexSPOT, from, &to, rp, row)
}

// scanPO probes post with predicate and object bound. A pinned datatype
// narrows the range; otherwise the predicate range is filtered by value.
func (ex *executor) scanPO(ctx context.Context, rp *resolvedPattern, row binding) ([]binding, error) {
	from := flake.Min()
	from.P = rp.p
	to := flake.Min()
	to.P = rp.p + 1
	if rp.oDT != nil {
		from.DT = *rp.oDT
		from.O = rp.o
		to = from
		to.S = math.MaxInt64
		to.T = math.MaxInt64
		to.Op = false
		to.M = flake.Max().M
	}
	return ex.collect(ctx, flake.IndexPOST, from, &to, rp, row)
}

// scanO probes opst with a reference object bound.
func (ex *executor) scanO(ctx context.Context, rp *resolvedPattern, row binding) ([]binding, error) {
	from := flake.Min()
	from.O = rp.o
	from.DT = flake.DtRef
	to := from
	to.O = flake.Ref(rp.o.RefSID() + 1)
	return ex.collect(ctx, flake.IndexOPST, from, &to, rp, row)
}

// scanP probes psot with only the predicate bound.
func (ex *executor) scanP(ctx context.Context, rp *resolvedPattern, row binding) ([]binding, error) {
	from := flake.Min()
	from.P = rp.p
	to := flake.Min()
	to.P = rp.p + 1
	return ex.collect(ctx, flake.IndexPSOT, from, &to, rp, row)
}

// scanAll walks spot unbounded; the pattern binds everything it touches.
func (ex *executor) scanAll(ctx context.Context, rp *resolvedPattern, row binding) ([]binding, error) {
	return ex.collect(ctx, flake.IndexSPOT, flake.Min(), nil, rp, row)
}

// collect runs the current-view scan and turns matching flakes into
// extended rows.
func (ex *executor) collect(ctx context.Context, idx flake.Index, from flake.Flake, to *flake.Flake, rp *resolvedPattern, row binding) ([]binding, error) {
	bindsNothing := (rp.sBound || rp.sVar == "") &&
		(rp.pBound || rp.pVar == "") &&
		(rp.oBound || rp.oVar == "")
	cur := ex.d.Current(idx, from, to)
	var out []binding
	for {
		f, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if rp.sBound && f.S != rp.s {
			continue
		}
		if rp.pBound && f.P != rp.p {
			continue
		}
		if rp.oBound {
			if rp.oDT != nil && f.DT != *rp.oDT {
				continue
			}
			if flake.CompareValues(f.O, rp.o) != 0 {
				continue
			}
		}
		if bindsNothing {
			// pure existence check: the row passes once
			return []binding{row}, nil
		}
		next := cloneBinding(row)
		if !rp.sBound && rp.sVar != "" {
			next[rp.sVar] = Bound{Val: flake.Ref(f.S), DT: flake.DtRef}
		}
		if !rp.pBound && rp.pVar != "" {
			next[rp.pVar] = Bound{Val: flake.Int(f.P), DT: flake.DtLong}
		}
		if !rp.oBound && rp.oVar != "" {
			next[rp.oVar] = Bound{Val: f.O, DT: f.DT}
		}
		out = append(out, next)
	}
}

func cloneBinding(row binding) binding {
	next := make(binding, len(row)+2)
	for k, v := range row {
		next[k] = v
	}
	return next
}
