package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
)

// StageOpts tunes one staging transaction.
type StageOpts struct {
	// Context expands document keys and carries @container directives.
	Context Context
	// When stamps the transaction's _tx/time metadata flake. Zero means
	// the current wall clock.
	When time.Time
}

// Stage applies a set of JSON-LD-style documents as one transaction,
// returning the new snapshot and the flakes it produced. Scalar values
// assert; null retracts every current value of the predicate; nested maps
// reference (and stage) other subjects; arrays assert multiple values,
// preserving element order when the predicate's context entry declares
// @container @list. Unknown predicates are registered in the vocabulary
// as part of the same transaction.
func (d *DB) Stage(ctx context.Context, docs []map[string]any, opts StageOpts) (*DB, []flake.Flake, error) {
	if len(docs) == 0 {
		return d, nil, nil
	}
	when := opts.When
	if when.IsZero() {
		when = time.Now()
	}

	st := &staging{
		db:     d,
		t:      d.T - 1,
		schema: d.Schema.Clone(),
		ecount: cloneEcount(d.Ecount),
		qctx:   opts.Context,
	}
	for _, doc := range docs {
		if _, err := st.subject(ctx, doc); err != nil {
			return nil, nil, err
		}
	}
	// transaction metadata: the tx subject records its commit instant
	st.flakes = append(st.flakes, flake.New(st.t, PidTxTime, flake.Int(when.UnixMilli()), flake.DtInstant, st.t))

	next, err := d.WithFlakes(st.flakes)
	if err != nil {
		return nil, nil, err
	}
	next.Schema = st.schema
	next.Ecount = st.ecount
	return next, st.flakes, nil
}

type staging struct {
	db     *DB
	t      int64
	schema *Schema
	ecount map[int64]int64
	qctx   Context
	flakes []flake.Flake
	// sids staged this transaction, by IRI, so self- and cross-references
	// within one transaction resolve without a round trip
	staged map[string]int64
}

func cloneEcount(m map[int64]int64) map[int64]int64 {
	c := make(map[int64]int64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// subject stages one document and returns its subject id.
func (st *staging) subject(ctx context.Context, doc map[string]any) (int64, error) {
	sid, err := st.resolveSubject(ctx, doc)
	if err != nil {
		return 0, err
	}
	// sorted keys keep id allocation deterministic, which content
	// addressing of commits depends on
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := doc[key]
		if key == "@id" || key == "id" || key == "@context" {
			continue
		}
		def := st.qctx.Expand(key)
		if def.Reverse {
			return 0, errs.Ef(errs.KindInvalidTx, "reverse term %q cannot be staged", key)
		}
		if val == nil {
			if _, known := st.schema.Predicate(def.IRI); !known {
				// retracting a predicate the vocabulary has never seen
				continue
			}
		}
		pred, err := st.predicate(def, val)
		if err != nil {
			return 0, err
		}
		if err := st.values(ctx, sid, pred, def, val); err != nil {
			return 0, err
		}
	}
	return sid, nil
}

// resolveSubject finds or allocates the document's subject id.
func (st *staging) resolveSubject(ctx context.Context, doc map[string]any) (int64, error) {
	raw, ok := doc["@id"]
	if !ok {
		raw, ok = doc["id"]
	}
	if !ok {
		// anonymous subject
		return st.allocSubject(ctx, "")
	}
	switch v := raw.(type) {
	case string:
		return st.sidForIRI(ctx, v)
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, errs.Wrap(errs.KindInvalidTx, "subject id", err)
		}
		return n, nil
	default:
		return 0, errs.Ef(errs.KindInvalidTx, "unsupported @id %T", raw)
	}
}

// sidForIRI resolves an IRI to its subject id, allocating (and asserting
// the @id flake for) new subjects.
func (st *staging) sidForIRI(ctx context.Context, iri string) (int64, error) {
	if st.staged == nil {
		st.staged = make(map[string]int64)
	}
	if sid, ok := st.staged[iri]; ok {
		return sid, nil
	}
	sid, found, err := st.db.SubjectByIRI(ctx, iri)
	if err != nil {
		return 0, err
	}
	if found {
		st.staged[iri] = sid
		return sid, nil
	}
	sid, err = st.allocSubject(ctx, iri)
	if err != nil {
		return 0, err
	}
	st.staged[iri] = sid
	return sid, nil
}

func (st *staging) allocSubject(_ context.Context, iri string) (int64, error) {
	n := st.ecount[CollDefault]
	st.ecount[CollDefault] = n + 1
	sid := flake.SID(CollDefault, n)
	if iri != "" {
		st.flakes = append(st.flakes, flake.New(sid, PidID, flake.String(iri), flake.DtString, st.t))
	}
	return sid, nil
}

// predicate looks up or registers the predicate for an expanded term.
func (st *staging) predicate(def TermDef, sample any) (*Predicate, error) {
	iri := def.IRI
	if p, ok := st.schema.Predicate(iri); ok {
		return p, nil
	}
	dt, ref := inferDatatype(sample)
	if def.Type == "@id" {
		dt, ref = flake.DtRef, true
	}
	pid := st.ecount[CollPredicate]
	st.ecount[CollPredicate] = pid + 1
	p := &Predicate{
		ID:    pid,
		IRI:   iri,
		Type:  dt,
		Multi: isArray(sample),
		Ref:   ref,
		Index: true,
	}
	st.schema.Pred[iri] = p
	st.schema.PredByID[pid] = p
	// the vocabulary extension is itself recorded as flakes
	st.flakes = append(st.flakes,
		flake.New(pid, PidPredName, flake.String(iri), flake.DtString, st.t),
		flake.New(pid, PidPredType, flake.Int(dt), flake.DtLong, st.t),
	)
	if p.Multi {
		st.flakes = append(st.flakes, flake.New(pid, PidPredMulti, flake.Bool(true), flake.DtBoolean, st.t))
	}
	if p.Ref {
		st.flakes = append(st.flakes, flake.New(pid, PidPredRef, flake.Bool(true), flake.DtBoolean, st.t))
	}
	return p, nil
}

// values stages the value(s) of one predicate on one subject.
func (st *staging) values(ctx context.Context, sid int64, pred *Predicate, def TermDef, val any) error {
	if val == nil {
		return st.retractAll(ctx, sid, pred)
	}
	if arr, ok := val.([]any); ok {
		for i, elem := range arr {
			var meta flake.Meta
			if def.Container == ContainerList {
				meta = flake.Meta{flake.MetaListIndex: i}
			}
			if err := st.value(ctx, sid, pred, def, elem, meta); err != nil {
				return err
			}
		}
		return nil
	}
	// single-cardinality assertion over an existing value retracts it
	if !pred.Multi {
		if err := st.retractAll(ctx, sid, pred); err != nil {
			return err
		}
	}
	return st.value(ctx, sid, pred, def, val, nil)
}

func (st *staging) value(ctx context.Context, sid int64, pred *Predicate, def TermDef, val any, meta flake.Meta) error {
	o, dt, err := st.object(ctx, pred, def, val)
	if err != nil {
		return err
	}
	f := flake.New(sid, pred.ID, o, dt, st.t)
	f.M = meta
	st.flakes = append(st.flakes, f)
	return nil
}

// object converts a document value into its typed object form, staging
// referenced subjects as needed.
func (st *staging) object(ctx context.Context, pred *Predicate, def TermDef, val any) (flake.Value, int64, error) {
	switch v := val.(type) {
	case string:
		if pred.Ref || pred.Type == flake.DtRef || def.Type == "@id" {
			ref, err := st.sidForIRI(ctx, v)
			if err != nil {
				return flake.Value{}, 0, err
			}
			return flake.Ref(ref), flake.DtRef, nil
		}
		return flake.String(v), flake.DtString, nil
	case bool:
		return flake.Bool(v), flake.DtBoolean, nil
	case float64:
		if v == float64(int64(v)) {
			return flake.Int(int64(v)), flake.DtLong, nil
		}
		return flake.Float(v), flake.DtDouble, nil
	case int:
		return flake.Int(int64(v)), flake.DtLong, nil
	case int64:
		return flake.Int(v), flake.DtLong, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return flake.Int(n), flake.DtLong, nil
		}
		f, err := v.Float64()
		if err != nil {
			return flake.Value{}, 0, errs.Wrap(errs.KindInvalidTx, "numeric object", err)
		}
		return flake.Float(f), flake.DtDouble, nil
	case map[string]any:
		ref, err := st.subject(ctx, v)
		if err != nil {
			return flake.Value{}, 0, err
		}
		return flake.Ref(ref), flake.DtRef, nil
	default:
		return flake.Value{}, 0, errs.Ef(errs.KindInvalidTx, "unsupported object %T for %s", val, pred.IRI)
	}
}

// retractAll emits retractions for every visible value of (sid, pred).
func (st *staging) retractAll(ctx context.Context, sid int64, pred *Predicate) error {
	current, err := st.db.SubjectPredicateFlakes(ctx, sid, pred.ID)
	if err != nil {
		return err
	}
	for _, f := range current {
		st.flakes = append(st.flakes, f.Retraction(st.t))
	}
	return nil
}

func inferDatatype(sample any) (dt int64, ref bool) {
	switch s := sample.(type) {
	case []any:
		if len(s) > 0 {
			return inferDatatype(s[0])
		}
		return flake.DtString, false
	case map[string]any:
		return flake.DtRef, true
	case bool:
		return flake.DtBoolean, false
	case float64:
		if s == float64(int64(s)) {
			return flake.DtLong, false
		}
		return flake.DtDouble, false
	case int, int64, json.Number:
		return flake.DtLong, false
	default:
		return flake.DtString, false
	}
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

// ParseDocuments decodes a JSON document or array of documents.
func ParseDocuments(data []byte) ([]map[string]any, error) {
	var one map[string]any
	if err := json.Unmarshal(data, &one); err == nil {
		return []map[string]any{one}, nil
	}
	var many []map[string]any
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("failed to parse documents: %w", err)
	}
	return many, nil
}
