package db

import (
	"context"

	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/index"
)

// Stats is the flake/byte accounting of a DB value. Indexed is the t at
// which the on-disk indexes last included all novelty.
type Stats struct {
	Flakes  int64
	Size    int64
	Indexed int64
}

// DB is an immutable snapshot of a ledger: five index roots, the novelty
// overlay, vocabulary, block and transaction counters. Every mutation
// returns a new value sharing structure with its parent, so a DB handed
// to a reader never changes.
type DB struct {
	Network string
	Ledger  string

	Block int64 // commit counter, strictly increasing
	T     int64 // transaction counter, strictly negative, decreasing

	// AtT caps read visibility for as-of views: flakes with T < AtT
	// (newer than the cap) are invisible. Zero means latest.
	AtT int64

	Ecount map[int64]int64
	Stats  Stats

	Spot *index.Node
	Psot *index.Node
	Post *index.Node
	Opst *index.Node
	Tspo *index.Node

	Novelty *index.Novelty
	Schema  *Schema

	// Opaque per-read context, carried untouched.
	Settings    map[string]any
	Permissions any
	Auth        any
	Roles       any
	Ctx         Context

	resolver *index.Resolver
}

// New returns the genesis DB for a ledger: empty roots, empty novelty,
// bootstrap vocabulary, block 0, t 0 (the first transaction is -1).
func New(network, ledger string, resolver *index.Resolver) *DB {
	return &DB{
		Network:  network,
		Ledger:   ledger,
		Block:    0,
		T:        0,
		Ecount:   GenesisEcount(),
		Spot:     index.NewEmptyLeaf(flake.IndexSPOT, network, ledger),
		Psot:     index.NewEmptyLeaf(flake.IndexPSOT, network, ledger),
		Post:     index.NewEmptyLeaf(flake.IndexPOST, network, ledger),
		Opst:     index.NewEmptyLeaf(flake.IndexOPST, network, ledger),
		Tspo:     index.NewEmptyLeaf(flake.IndexTSPO, network, ledger),
		Novelty:  index.NewNovelty(),
		Schema:   Bootstrap(),
		resolver: resolver,
	}
}

// Resolver returns the node resolver backing this snapshot's reads.
func (d *DB) Resolver() *index.Resolver {
	return d.resolver
}

// Root returns the root node of an index.
func (d *DB) Root(idx flake.Index) *index.Node {
	switch idx {
	case flake.IndexSPOT:
		return d.Spot
	case flake.IndexPSOT:
		return d.Psot
	case flake.IndexPOST:
		return d.Post
	case flake.IndexOPST:
		return d.Opst
	case flake.IndexTSPO:
		return d.Tspo
	default:
		return d.Spot
	}
}

// clone returns a shallow copy; callers replace the fields they change.
func (d *DB) clone() *DB {
	c := *d
	return &c
}

// WithFlakes extends novelty with new flakes, updating stats and
// decrementing t by the number of distinct transactions represented.
// Every flake must belong to a transaction newer than the snapshot's t;
// re-applying flakes at an already-consumed t is rejected with
// invalid-tx and leaves novelty unchanged.
func (d *DB) WithFlakes(fs []flake.Flake) (*DB, error) {
	if len(fs) == 0 {
		return d, nil
	}
	txs := make(map[int64]bool)
	for _, f := range fs {
		if f.T >= d.T {
			return nil, errs.Ef(errs.KindInvalidTx, "flake at t %d not newer than db t %d", f.T, d.T)
		}
		if d.Novelty.Get(flake.IndexSPOT).Contains(f) {
			return nil, errs.Ef(errs.KindInvalidTx, "duplicate flake at t %d", f.T)
		}
		txs[f.T] = true
	}
	c := d.clone()
	c.Novelty = d.Novelty.Add(fs...)
	c.T = d.T - int64(len(txs))
	var added int64
	for _, f := range fs {
		added += f.SizeBytes()
	}
	c.Stats = Stats{
		Flakes:  d.Stats.Flakes + int64(len(fs)),
		Size:    d.Stats.Size + added,
		Indexed: d.Stats.Indexed,
	}
	return c, nil
}

// AsOf returns a view capped at transaction t. Composing views keeps the
// older cap: the closest-to-zero t wins.
func (d *DB) AsOf(t int64) (*DB, error) {
	if t >= 0 {
		return nil, errs.Ef(errs.KindInvalidQuery, "as-of t must be negative, got %d", t)
	}
	if t < d.T {
		return nil, errs.Ef(errs.KindUnavailable, "t %d beyond latest transaction %d", t, d.T)
	}
	bound := t
	if d.AtT != 0 && d.AtT > bound {
		bound = d.AtT
	}
	c := d.clone()
	c.AtT = bound
	return c, nil
}

// visibleT is the newest transaction visible to this view.
func (d *DB) visibleT() int64 {
	if d.AtT != 0 {
		return d.AtT
	}
	return d.T
}

// Scan returns a raw cursor over one index in [from, to): assertions and
// retractions alike, in strict comparator order, novelty fused in.
func (d *DB) Scan(idx flake.Index, from flake.Flake, to *flake.Flake) *index.Iterator {
	return index.NewIterator(d.resolver, d.Root(idx), d.Novelty.Get(idx), from, to)
}

// CurrentScan filters a raw scan to the point-in-time view at the
// snapshot's visible t: per (s,p,o,dt) group the newest visible flake
// wins, and groups whose winner is a retraction are absent.
type CurrentScan struct {
	it   *index.Iterator
	atT  int64
	have bool
	key  flake.Key
}

// Current returns the point-in-time cursor for an index range. Only the
// four value indexes group correctly; in tspo the flakes of one group are
// not adjacent, so the same filter there does not give a reliable view.
func (d *DB) Current(idx flake.Index, from flake.Flake, to *flake.Flake) *CurrentScan {
	return &CurrentScan{it: d.Scan(idx, from, to), atT: d.visibleT()}
}

// Next returns the next visible assertion.
func (s *CurrentScan) Next(ctx context.Context) (flake.Flake, bool, error) {
	for {
		f, ok, err := s.it.Next(ctx)
		if err != nil || !ok {
			return flake.Flake{}, false, err
		}
		if f.T < s.atT {
			// newer than the view's cap
			continue
		}
		k := f.GroupKey()
		if s.have && k == s.key {
			// a newer visible flake already decided this group
			continue
		}
		s.have = true
		s.key = k
		if !f.Op {
			continue
		}
		return f, true, nil
	}
}

// Collect drains the cursor.
func (s *CurrentScan) Collect(ctx context.Context) ([]flake.Flake, error) {
	var out []flake.Flake
	for {
		f, ok, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, f)
	}
}

// SubjectFlakes returns the visible assertions of one subject.
func (d *DB) SubjectFlakes(ctx context.Context, sid int64) ([]flake.Flake, error) {
	from := flake.Min()
	from.S = sid
	to := flake.Min()
	to.S = sid + 1
	return d.Current(flake.IndexSPOT, from, &to).Collect(ctx)
}

// SubjectPredicateFlakes returns the visible assertions of (s, p).
func (d *DB) SubjectPredicateFlakes(ctx context.Context, sid, pid int64) ([]flake.Flake, error) {
	from := flake.Min()
	from.S = sid
	from.P = pid
	to := flake.Min()
	to.S = sid
	to.P = pid + 1
	return d.Current(flake.IndexSPOT, from, &to).Collect(ctx)
}

// SubjectPredicateValueFlakes slices spot to the visible assertions of
// (s, p, o): exactly one (s,p,o,dt) group when dt is pinned, any
// datatype carrying an equal value otherwise. Cross-datatype matches are
// never coerced: a pinned dt that disagrees with the stored one yields
// nothing.
func (d *DB) SubjectPredicateValueFlakes(ctx context.Context, sid, pid int64, o flake.Value, dt *int64) ([]flake.Flake, error) {
	if dt == nil {
		fs, err := d.SubjectPredicateFlakes(ctx, sid, pid)
		if err != nil {
			return nil, err
		}
		matched := fs[:0]
		for _, f := range fs {
			if flake.CompareValues(f.O, o) == 0 {
				matched = append(matched, f)
			}
		}
		return matched, nil
	}
	from := flake.Min()
	from.S = sid
	from.P = pid
	from.O = o
	from.DT = *dt
	to := flake.Max()
	to.S = sid
	to.P = pid
	to.O = o
	to.DT = *dt
	return d.Current(flake.IndexSPOT, from, &to).Collect(ctx)
}

// SubjectByIRI resolves a subject IRI through the post index (p = @id,
// o = iri). Returns 0, false when no subject carries the IRI.
func (d *DB) SubjectByIRI(ctx context.Context, iri string) (int64, bool, error) {
	from := flake.Min()
	from.P = PidID
	from.O = flake.String(iri)
	from.DT = flake.DtString
	to := from
	to.O = flake.String(iri + "\x00")
	cur := d.Current(flake.IndexPOST, from, &to)
	for {
		f, ok, err := cur.Next(ctx)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		if f.O.Str == iri {
			return f.S, true, nil
		}
	}
}

// IRIOf returns the @id IRI of a subject, or "" when anonymous.
func (d *DB) IRIOf(ctx context.Context, sid int64) (string, error) {
	fs, err := d.SubjectPredicateFlakes(ctx, sid, PidID)
	if err != nil {
		return "", err
	}
	if len(fs) == 0 {
		return "", nil
	}
	return fs[0].O.Str, nil
}

// RefsTo returns the visible subjects referencing sid through pid, via
// the opst index.
func (d *DB) RefsTo(ctx context.Context, sid, pid int64) ([]int64, error) {
	from := flake.Min()
	from.O = flake.Ref(sid)
	from.DT = flake.DtRef
	from.P = pid
	to := from
	to.P = pid + 1
	cur := d.Current(flake.IndexOPST, from, &to)
	var out []int64
	for {
		f, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, f.S)
	}
}
