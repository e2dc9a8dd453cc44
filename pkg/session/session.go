package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/indexer"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
)

// Session is the per-ledger handle: it holds the latest DB value,
// serializes the write path, runs the ledger's indexer when the
// connection is a transactor, and publishes update events.
type Session struct {
	conn    *Connection
	network string
	ledger  string
	logger  zerolog.Logger

	mu      sync.RWMutex
	current *db.DB

	writeMu sync.Mutex
	indexer *indexer.Indexer
}

func newSession(ctx context.Context, c *Connection, network, ledger string) (*Session, error) {
	s := &Session{
		conn:    c,
		network: network,
		ledger:  ledger,
		logger:  log.WithLedger(network, ledger),
	}

	d, err := c.reader.LoadDB(ctx, network, ledger, c.cache, 0)
	if err != nil {
		if !errs.IsKind(err, errs.KindUnavailable) {
			return nil, err
		}
		d = db.New(network, ledger, c.cache)
	}
	s.current = d

	if c.opts.Transactor {
		s.indexer = indexer.New(indexer.Config{
			ReindexMin: c.opts.ReindexMin,
			ReindexMax: c.opts.ReindexMax,
			Interval:   c.opts.ReindexInterval,
		}, (*sessionSource)(s), c.writer, c.broker)
		s.indexer.Start()
	}
	return s, nil
}

// DB returns the latest snapshot. The returned value is immutable.
func (s *Session) DB() *db.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Transact stages documents as one transaction and commits it as the
// next block. Backpressure applies first: while novelty exceeds the hard
// cap the call blocks until a reindex drains it. A failed commit
// discards the staged novelty; no partial state is published.
func (s *Session) Transact(ctx context.Context, docs []map[string]any, opts db.StageOpts) (*db.DB, error) {
	if !s.conn.opts.Transactor {
		return nil, errs.E(errs.KindInvalidAuth, "connection is not a transactor")
	}
	// backpressure before taking the write lock: the indexer's swap needs
	// the lock to drain novelty
	if s.indexer != nil {
		err := s.indexer.WaitBelowMax(ctx, func() int64 { return s.DB().Novelty.Size() })
		if err != nil {
			return nil, errs.Wrap(errs.KindTimeout, "backpressure wait", err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	head := s.DB()
	staged, flakes, err := head.Stage(ctx, docs, opts)
	if err != nil {
		return nil, err
	}
	if len(flakes) == 0 {
		return head, nil
	}

	committed, err := s.conn.writer.Commit(ctx, staged, flakes)
	if err != nil {
		// the staged delta is discarded with the local value
		return nil, err
	}

	s.mu.Lock()
	s.current = committed
	s.mu.Unlock()

	metrics.NoveltyFlakes.WithLabelValues(s.network, s.ledger).Set(float64(committed.Novelty.Len()))
	metrics.NoveltyBytes.WithLabelValues(s.network, s.ledger).Set(float64(committed.Novelty.Size()))

	s.conn.broker.Publish(&events.Event{
		Type:    events.EventLocalLedgerUpdate,
		Network: s.network,
		Ledger:  s.ledger,
		Block:   committed.Block,
		T:       committed.T,
	})
	return committed, nil
}

// SyncTo resolves when the session's latest block reaches the target, or
// fails with a timeout error. It installs a one-shot listener keyed by
// the wait itself.
func (s *Session) SyncTo(ctx context.Context, block int64, timeout time.Duration) (*db.DB, error) {
	if d := s.DB(); d.Block >= block {
		return d, nil
	}

	done := make(chan *db.DB, 1)
	key := fmt.Sprintf("sync-to-%d-%d", block, time.Now().UnixNano())
	s.conn.RegisterListener(s.network, s.ledger, key, func(_ events.EventType, ev *events.Event) {
		if ev.Block >= block {
			select {
			case done <- s.DB():
			default:
			}
		}
	})
	defer s.conn.RemoveListener(s.network, s.ledger, key)

	// the block may have landed between the check and the registration
	if d := s.DB(); d.Block >= block {
		return d, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-done:
		return d, nil
	case <-timer.C:
		return nil, errs.Ef(errs.KindTimeout, "block %d not reached within %s", block, timeout)
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindTimeout, "sync-to", ctx.Err())
	}
}

// close stops the session's background services.
func (s *Session) close() {
	if s.indexer != nil {
		s.indexer.Stop()
	}
	s.conn.broker.Publish(&events.Event{
		Type:    events.EventLedgerClosed,
		Network: s.network,
		Ledger:  s.ledger,
	})
}

// sessionSource adapts a Session to the indexer's Source: snapshots come
// from the head, and a reindexed snapshot is grafted under it: new
// roots, novelty the head staged since the reindex horizon retained.
type sessionSource Session

func (src *sessionSource) Snapshot() *db.DB {
	return (*Session)(src).DB()
}

func (src *sessionSource) Swap(indexed *db.DB) {
	s := (*Session)(src)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	head := s.current
	if head.T < indexed.T {
		// the head advanced past the reindex snapshot: keep its counters
		// and the novelty staged after the horizon
		grafted := *head
		grafted.Spot = indexed.Spot
		grafted.Psot = indexed.Psot
		grafted.Post = indexed.Post
		grafted.Opst = indexed.Opst
		grafted.Tspo = indexed.Tspo
		grafted.Stats.Indexed = indexed.Stats.Indexed
		grafted.Novelty = head.Novelty.TruncateAfter(indexed.Stats.Indexed)
		s.current = &grafted
		return
	}
	s.current = indexed
}
