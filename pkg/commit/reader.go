package commit

import (
	"context"
	"sort"

	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/index"
	"github.com/cuemby/strata/pkg/serde"
	"github.com/cuemby/strata/pkg/storage"
)

// Reader loads committed state: roots, blocks, garbage records, and whole
// DB values.
type Reader struct {
	store storage.Store
	codec serde.Serde
}

// NewReader creates a commit reader over a store and codec.
func NewReader(store storage.Store, codec serde.Serde) *Reader {
	return &Reader{store: store, codec: codec}
}

// LoadRoot reads the db-root at a block. Block <= 0 loads the latest.
func (r *Reader) LoadRoot(ctx context.Context, network, ledger string, block int64) (*serde.Root, error) {
	var key string
	if block > 0 {
		key = storage.KeyRoot(network, ledger, block)
	} else {
		prefix := storage.KeyPrefix(network, ledger) + "root_"
		keys, err := r.store.List(ctx, prefix)
		if err != nil {
			return nil, errs.Wrap(errs.KindStorage, "list roots", err)
		}
		if len(keys) == 0 {
			return nil, errs.Ef(errs.KindUnavailable, "no db-root for %s/%s", network, ledger)
		}
		sort.Strings(keys)
		key = keys[len(keys)-1]
	}
	data, err := r.store.Read(ctx, key)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "read db-root "+key, err)
	}
	if data == nil {
		return nil, errs.Ef(errs.KindUnavailable, "no db-root for %s/%s block %d", network, ledger, block)
	}
	root, err := r.codec.DeserializeRoot(data)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "decode db-root "+key, err)
	}
	return root, nil
}

// RootT implements db.RootLoader: the transaction counter at a block.
func (r *Reader) RootT(ctx context.Context, network, ledger string, block int64) (int64, error) {
	root, err := r.LoadRoot(ctx, network, ledger, block)
	if err != nil {
		return 0, err
	}
	return root.T, nil
}

// ReadGarbage loads the garbage record for a block, or nil when the block
// superseded nothing.
func (r *Reader) ReadGarbage(ctx context.Context, network, ledger string, block int64) (*serde.Garbage, error) {
	data, err := r.store.Read(ctx, storage.KeyGarbage(network, ledger, block))
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "read garbage record", err)
	}
	if data == nil {
		return nil, nil
	}
	g, err := r.codec.DeserializeGarbage(data)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "decode garbage record", err)
	}
	return g, nil
}

// ReadBlock loads one block blob.
func (r *Reader) ReadBlock(ctx context.Context, network, ledger string, block int64) (*serde.Block, error) {
	data, err := r.store.Read(ctx, storage.KeyBlock(network, ledger, block))
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "read block", err)
	}
	if data == nil {
		return nil, errs.Ef(errs.KindUnavailable, "no block %d for %s/%s", block, network, ledger)
	}
	b, err := r.codec.DeserializeBlock(data)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "decode block", err)
	}
	return b, nil
}

// LoadDB reconstructs the DB value at a block (<= 0 for latest): index
// roots from the db-root, novelty replayed from the block blobs newer
// than the last reindex, vocabulary rebuilt from predicate records.
func (r *Reader) LoadDB(ctx context.Context, network, ledger string, resolver *index.Resolver, block int64) (*db.DB, error) {
	root, err := r.LoadRoot(ctx, network, ledger, block)
	if err != nil {
		return nil, err
	}

	d := db.New(network, ledger, resolver)
	d.Block = root.Block
	d.T = root.T
	d.Ecount = root.Ecount
	d.Stats = db.Stats{Flakes: root.Stats.Flakes, Size: root.Stats.Size}
	d.Spot = rootNode(root.Spot, flake.IndexSPOT, network, ledger)
	d.Psot = rootNode(root.Psot, flake.IndexPSOT, network, ledger)
	d.Post = rootNode(root.Post, flake.IndexPOST, network, ledger)
	d.Opst = rootNode(root.Opst, flake.IndexOPST, network, ledger)
	d.Tspo = rootNode(root.Tspo, flake.IndexTSPO, network, ledger)
	d.Stats.Indexed = d.Spot.T

	// replay novelty: flakes from blocks committed after the last reindex
	for b := d.Spot.Block + 1; b <= root.Block; b++ {
		blk, err := r.ReadBlock(ctx, network, ledger, b)
		if err != nil {
			return nil, err
		}
		d.Novelty = d.Novelty.Add(blk.Flakes...)
	}

	if err := rebuildSchema(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func rootNode(cs serde.ChildSummary, idx flake.Index, network, ledger string) *index.Node {
	if cs.ID == index.EmptyID || cs.ID == "" {
		return index.NewEmptyLeaf(idx, network, ledger)
	}
	return index.FromSummary(cs, idx, network, ledger)
}

// rebuildSchema scans the _predicate collection and re-registers user
// vocabulary on top of the bootstrap schema.
func rebuildSchema(ctx context.Context, d *db.DB) error {
	from := flake.Min()
	from.S = 0
	to := flake.Min()
	to.S = flake.SID(db.CollPredicate+1, 0)
	cur := d.Current(flake.IndexSPOT, from, &to)

	preds := make(map[int64]*db.Predicate)
	for {
		f, ok, err := cur.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		p := preds[f.S]
		if p == nil {
			p = &db.Predicate{ID: f.S, Index: true}
			preds[f.S] = p
		}
		switch f.P {
		case db.PidPredName:
			p.IRI = f.O.Str
		case db.PidPredType:
			p.Type = f.O.Int
		case db.PidPredMulti:
			p.Multi = f.O.Bool
		case db.PidPredRef:
			p.Ref = f.O.Bool
		case db.PidPredComp:
			p.Component = f.O.Bool
		case db.PidPredUniq:
			p.Unique = f.O.Bool
		}
	}
	schema := d.Schema.Clone()
	for _, p := range preds {
		if p.IRI == "" {
			continue
		}
		if _, exists := schema.Pred[p.IRI]; exists {
			continue
		}
		schema.Pred[p.IRI] = p
		schema.PredByID[p.ID] = p
	}
	d.Schema = schema
	return nil
}
