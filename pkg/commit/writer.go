package commit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/index"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/serde"
	"github.com/cuemby/strata/pkg/storage"
)

// Writer persists commits: tree nodes under fresh keys, then the garbage
// record, then the db-root. The root is the single atomic pointer; a
// reader that loads it sees only nodes written before it.
type Writer struct {
	store storage.Store
	codec serde.Serde
}

// NewWriter creates a commit writer over a store and codec.
func NewWriter(store storage.Store, codec serde.Serde) *Writer {
	return &Writer{store: store, codec: codec}
}

// WriteTree assigns fresh content keys to a freshly built tree and writes
// it bottom-up: leaves first, then branches referencing them. Returns the
// tree with ids attached and the keys written.
func (w *Writer) WriteTree(ctx context.Context, n *index.Node) (*index.Node, []string, error) {
	if !n.Resolved() {
		// an unchanged subtree keeps its existing identity
		return n, nil, nil
	}
	if n.Leaf {
		id := storage.KeyNode(n.Network, n.Ledger, string(n.Idx), uuid.NewString(), true)
		blob, err := w.codec.SerializeLeaf(&serde.Leaf{Flakes: n.Flakes.All()})
		if err != nil {
			return nil, nil, errs.Wrap(errs.KindStorage, "serialize leaf", err)
		}
		if _, err := w.store.Write(ctx, id, blob); err != nil {
			return nil, nil, errs.Wrap(errs.KindStorage, "write leaf "+id, err)
		}
		c := *n
		c.ID = id
		return &c, []string{id}, nil
	}

	var written []string
	children := make([]*index.Node, len(n.Children))
	for i, child := range n.Children {
		wc, ids, err := w.WriteTree(ctx, child)
		if err != nil {
			return nil, nil, err
		}
		children[i] = wc
		written = append(written, ids...)
	}
	summaries := make([]serde.ChildSummary, len(children))
	for i, c := range children {
		summaries[i] = c.Summary()
	}
	id := storage.KeyNode(n.Network, n.Ledger, string(n.Idx), uuid.NewString(), false)
	blob, err := w.codec.SerializeBranch(&serde.Branch{Children: summaries})
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindStorage, "serialize branch", err)
	}
	if _, err := w.store.Write(ctx, id, blob); err != nil {
		return nil, nil, errs.Wrap(errs.KindStorage, "write branch "+id, err)
	}
	c := *n
	c.ID = id
	c.Children = children
	written = append(written, id)
	return &c, written, nil
}

// WriteGarbage records the node keys a reindex superseded.
func (w *Writer) WriteGarbage(ctx context.Context, network, ledger string, block int64, garbage []string) error {
	if len(garbage) == 0 {
		return nil
	}
	blob, err := w.codec.SerializeGarbage(&serde.Garbage{
		Network:  network,
		LedgerID: ledger,
		Block:    block,
		Garbage:  garbage,
	})
	if err != nil {
		return errs.Wrap(errs.KindStorage, "serialize garbage", err)
	}
	key := storage.KeyGarbage(network, ledger, block)
	if _, err := w.store.Write(ctx, key, blob); err != nil {
		return errs.Wrap(errs.KindStorage, "write garbage "+key, err)
	}
	return nil
}

// WriteBlock persists one commit's flakes.
func (w *Writer) WriteBlock(ctx context.Context, network, ledger string, block, t int64, flakes []flake.Flake) error {
	blob, err := w.codec.SerializeBlock(&serde.Block{Block: block, T: t, Flakes: flakes})
	if err != nil {
		return errs.Wrap(errs.KindStorage, "serialize block", err)
	}
	key := storage.KeyBlock(network, ledger, block)
	if _, err := w.store.Write(ctx, key, blob); err != nil {
		return errs.Wrap(errs.KindStorage, "write block "+key, err)
	}
	return nil
}

// WriteRoot publishes the db-root for a snapshot at its block.
func (w *Writer) WriteRoot(ctx context.Context, d *db.DB, timestamp int64, prevIndex int64) error {
	root := &serde.Root{
		Network:   d.Network,
		LedgerID:  d.Ledger,
		Block:     d.Block,
		T:         d.T,
		Ecount:    d.Ecount,
		Stats:     serde.Stats{Flakes: d.Stats.Flakes, Size: d.Stats.Size},
		Spot:      d.Spot.Summary(),
		Psot:      d.Psot.Summary(),
		Post:      d.Post.Summary(),
		Opst:      d.Opst.Summary(),
		Tspo:      d.Tspo.Summary(),
		Timestamp: timestamp,
		PrevIndex: prevIndex,
	}
	blob, err := w.codec.SerializeRoot(root)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "serialize db-root", err)
	}
	key := storage.KeyRoot(d.Network, d.Ledger, d.Block)
	if _, err := w.store.Write(ctx, key, blob); err != nil {
		return errs.Wrap(errs.KindStorage, "write db-root "+key, err)
	}
	return nil
}

// Commit publishes one transaction batch as the next block: the block
// blob first, then the db-root pointing at it. Returns the snapshot with
// the block counter advanced. The flakes must already be staged into d.
func (w *Writer) Commit(ctx context.Context, d *db.DB, flakes []flake.Flake) (*db.DB, error) {
	next := *d
	next.Block = d.Block + 1

	if err := w.WriteBlock(ctx, d.Network, d.Ledger, next.Block, next.T, flakes); err != nil {
		return nil, err
	}
	ts := commitTimestamp(flakes)
	if err := w.WriteRoot(ctx, &next, ts, lastIndexedBlock(d)); err != nil {
		return nil, err
	}

	metrics.CommitsTotal.WithLabelValues(d.Network, d.Ledger).Inc()
	ledgerLog := log.WithLedger(d.Network, d.Ledger)
	ledgerLog.Debug().
		Int64("block", next.Block).
		Int64("t", next.T).
		Int("flakes", len(flakes)).
		Msg("commit published")
	return &next, nil
}

// commitTimestamp takes the transaction's recorded _tx/time so equal
// flake content serializes to equal roots.
func commitTimestamp(flakes []flake.Flake) int64 {
	for _, f := range flakes {
		if f.P == db.PidTxTime && f.Op {
			return f.O.Int
		}
	}
	return time.Now().UnixMilli()
}

func lastIndexedBlock(d *db.DB) int64 {
	// the block whose reindex produced the current roots
	return d.Spot.Block
}
