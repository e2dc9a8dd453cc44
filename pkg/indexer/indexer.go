package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/strata/pkg/commit"
	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/index"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
)

// Config tunes the reindex trigger policy and leaf sizing.
type Config struct {
	// ReindexMin is the novelty byte size that makes a reindex due.
	ReindexMin int64
	// ReindexMax is the hard cap: past it, incoming transactions block
	// until a reindex drains novelty.
	ReindexMax int64
	// Interval reindexes on time even below ReindexMin.
	Interval time.Duration
	// Build bounds leaf sizes during the rebuild.
	Build index.BuildConfig
}

// DefaultConfig mirrors the engine defaults.
func DefaultConfig() Config {
	return Config{
		ReindexMin: 1 << 20,
		ReindexMax: 16 << 20,
		Interval:   10 * time.Minute,
		Build:      index.DefaultBuildConfig(),
	}
}

// Source yields the snapshot to index and accepts the indexed result.
// The session's ledger head implements it; Swap must only replace the
// head if the reindexed snapshot is not older than the current one.
type Source interface {
	Snapshot() *db.DB
	Swap(indexed *db.DB)
}

// Indexer folds novelty into new on-disk tree nodes in the background,
// publishing a fresh db-root and garbage record per run. Watchers receive
// lifecycle events and are unregistered on close.
type Indexer struct {
	cfg    Config
	writer *commit.Writer
	source Source
	broker *events.Broker
	logger zerolog.Logger

	mu       sync.Mutex
	draining *sync.Cond // signaled when novelty drops below ReindexMax
	lastRun  time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an indexer over a snapshot source and commit writer.
func New(cfg Config, source Source, writer *commit.Writer, broker *events.Broker) *Indexer {
	ix := &Indexer{
		cfg:    cfg,
		writer: writer,
		source: source,
		broker: broker,
		logger: log.WithComponent("indexer"),
		stopCh: make(chan struct{}),
	}
	ix.draining = sync.NewCond(&ix.mu)
	return ix
}

// Start begins the background reindex loop.
func (ix *Indexer) Start() {
	go ix.run()
}

// Stop stops the loop. Watchers stop receiving events.
func (ix *Indexer) Stop() {
	ix.stopOnce.Do(func() {
		close(ix.stopCh)
		ix.mu.Lock()
		ix.draining.Broadcast()
		ix.mu.Unlock()
	})
}

func (ix *Indexer) run() {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	ix.logger.Info().Msg("indexer started")
	for {
		select {
		case <-tick.C:
			d := ix.source.Snapshot()
			if d == nil {
				continue
			}
			if ix.due(d) {
				if err := ix.reindexAndPublish(context.Background(), d); err != nil {
					ix.logger.Error().Err(err).Msg("reindex failed")
				}
			}
		case <-ix.stopCh:
			ix.logger.Info().Msg("indexer stopped")
			return
		}
	}
}

func (ix *Indexer) due(d *db.DB) bool {
	size := d.Novelty.Size()
	if size == 0 {
		return false
	}
	if size > ix.cfg.ReindexMin {
		return true
	}
	ix.mu.Lock()
	last := ix.lastRun
	ix.mu.Unlock()
	return ix.cfg.Interval > 0 && time.Since(last) > ix.cfg.Interval
}

// WaitBelowMax blocks the caller while novelty exceeds the hard cap; the
// commit pipeline calls it before accepting new transactions.
func (ix *Indexer) WaitBelowMax(ctx context.Context, size func() int64) error {
	if size() <= ix.cfg.ReindexMax {
		return nil
	}
	// wake the wait when the caller's deadline passes
	stop := context.AfterFunc(ctx, func() {
		ix.mu.Lock()
		ix.draining.Broadcast()
		ix.mu.Unlock()
	})
	defer stop()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for size() > ix.cfg.ReindexMax {
		select {
		case <-ix.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ix.draining.Wait()
	}
	return nil
}

func (ix *Indexer) reindexAndPublish(ctx context.Context, d *db.DB) error {
	ix.publish(&events.Event{
		Type:    events.EventReindexStart,
		Network: d.Network,
		Ledger:  d.Ledger,
		Block:   d.Block,
		T:       d.T,
	})

	indexed, err := ix.Reindex(ctx, d)
	if err != nil {
		metrics.ReindexErrors.Inc()
		ix.publish(&events.Event{
			Type:    events.EventReindexError,
			Network: d.Network,
			Ledger:  d.Ledger,
			Err:     err,
		})
		return err
	}

	ix.source.Swap(indexed)
	ix.mu.Lock()
	ix.lastRun = time.Now()
	ix.draining.Broadcast()
	ix.mu.Unlock()

	ix.publish(&events.Event{
		Type:    events.EventReindexComplete,
		Network: indexed.Network,
		Ledger:  indexed.Ledger,
		Block:   indexed.Block,
		T:       indexed.T,
		Metadata: map[string]any{
			"flakes":  indexed.Stats.Flakes,
			"size":    indexed.Stats.Size,
			"indexed": indexed.Stats.Indexed,
		},
	})
	return nil
}

// Reindex folds the snapshot's novelty into every index tree, writes the
// new nodes, records the superseded ones as garbage, and publishes the
// new db-root. The returned snapshot has empty novelty at or before the
// snapshotted t. Failures leave the last good root untouched.
func (ix *Indexer) Reindex(ctx context.Context, d *db.DB) (*db.DB, error) {
	started := time.Now()
	defer func() {
		metrics.ReindexRuns.Inc()
		metrics.ReindexDuration.Observe(time.Since(started).Seconds())
	}()

	snapshotT := d.T
	out := *d
	var garbage []string

	for _, idx := range flake.Indexes {
		root, err := ix.rebuildIndex(ctx, d, idx, snapshotT)
		if err != nil {
			return nil, err
		}
		garbage = append(garbage, supersededIDs(ctx, d, idx)...)
		switch idx {
		case flake.IndexSPOT:
			out.Spot = root
		case flake.IndexPSOT:
			out.Psot = root
		case flake.IndexPOST:
			out.Post = root
		case flake.IndexOPST:
			out.Opst = root
		case flake.IndexTSPO:
			out.Tspo = root
		}
	}

	out.Novelty = d.Novelty.TruncateAfter(snapshotT)
	out.Stats.Indexed = snapshotT

	if err := ix.writer.WriteGarbage(ctx, d.Network, d.Ledger, d.Block, garbage); err != nil {
		return nil, err
	}
	if err := ix.writer.WriteRoot(ctx, &out, time.Now().UnixMilli(), d.Spot.Block); err != nil {
		return nil, err
	}

	metrics.NoveltyFlakes.WithLabelValues(d.Network, d.Ledger).Set(float64(out.Novelty.Len()))
	metrics.NoveltyBytes.WithLabelValues(d.Network, d.Ledger).Set(float64(out.Novelty.Size()))
	ix.logger.Info().
		Str("ledger", d.Ledger).
		Int64("block", d.Block).
		Int64("t", snapshotT).
		Int("garbage", len(garbage)).
		Dur("took", time.Since(started)).
		Msg("reindex complete")
	return &out, nil
}

// rebuildIndex merges one index's tree with its novelty at or before the
// snapshot t and writes the result.
func (ix *Indexer) rebuildIndex(ctx context.Context, d *db.DB, idx flake.Index, snapshotT int64) (*index.Node, error) {
	existing, err := index.CollectLeaves(ctx, d.Resolver(), d.Root(idx))
	if err != nil {
		return nil, err
	}
	cmp := flake.ComparatorFor(idx)
	merged := make([]flake.Flake, 0, len(existing)+d.Novelty.Len())
	flake.Merge(cmp, existing, noveltyAtOrBefore(d, idx, snapshotT), func(f flake.Flake) bool {
		merged = append(merged, f)
		return true
	})

	tree := index.BuildTree(ix.cfg.Build, idx, d.Network, d.Ledger, d.Block, snapshotT, merged)
	written, _, err := ix.writer.WriteTree(ctx, tree)
	return written, err
}

// noveltyAtOrBefore filters an index's overlay to the snapshot horizon.
func noveltyAtOrBefore(d *db.DB, idx flake.Index, t int64) []flake.Flake {
	all := d.Novelty.Get(idx).All()
	out := make([]flake.Flake, 0, len(all))
	for _, f := range all {
		if f.T >= t {
			out = append(out, f)
		}
	}
	return out
}

// supersededIDs walks the old tree collecting every written node id the
// rebuild replaced.
func supersededIDs(ctx context.Context, d *db.DB, idx flake.Index) []string {
	var ids []string
	var walk func(n *index.Node)
	walk = func(n *index.Node) {
		if n == nil || n.ID == index.EmptyID || n.ID == "" {
			return
		}
		ids = append(ids, n.ID)
		if n.Leaf {
			return
		}
		resolved, err := d.Resolver().Resolve(ctx, n)
		if err != nil {
			return
		}
		for _, c := range resolved.Children {
			walk(c)
		}
	}
	walk(d.Root(idx))
	return ids
}

func (ix *Indexer) publish(ev *events.Event) {
	if ix.broker != nil {
		ix.broker.Publish(ev)
	}
}
