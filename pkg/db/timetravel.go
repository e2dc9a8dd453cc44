package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
)

// RootLoader resolves a block number to the transaction counter recorded
// in that block's db-root. Implemented by the commit reader.
type RootLoader interface {
	RootT(ctx context.Context, network, ledger string, block int64) (int64, error)
}

// TimeRef addresses a point in a ledger's history: a positive block
// number, a negative transaction counter, or a wall-clock instant.
type TimeRef struct {
	Block int64
	T     int64
	Time  time.Time
}

// ParseTimeRef interprets a JSON value: positive integer = block,
// negative integer = t, string = ISO-8601 instant.
func ParseTimeRef(v any) (TimeRef, error) {
	switch tv := v.(type) {
	case float64:
		return timeRefFromInt(int64(tv))
	case int:
		return timeRefFromInt(int64(tv))
	case int64:
		return timeRefFromInt(tv)
	case json.Number:
		n, err := tv.Int64()
		if err != nil {
			return TimeRef{}, errs.Wrap(errs.KindInvalidQuery, "time reference", err)
		}
		return timeRefFromInt(n)
	case string:
		ts, err := time.Parse(time.RFC3339, tv)
		if err != nil {
			return TimeRef{}, errs.Wrap(errs.KindInvalidQuery, "time reference", err)
		}
		return TimeRef{Time: ts}, nil
	default:
		return TimeRef{}, errs.Ef(errs.KindInvalidQuery, "unsupported time reference %T", v)
	}
}

func timeRefFromInt(n int64) (TimeRef, error) {
	switch {
	case n > 0:
		return TimeRef{Block: n}, nil
	case n < 0:
		return TimeRef{T: n}, nil
	default:
		return TimeRef{}, errs.E(errs.KindInvalidQuery, "time reference 0 is neither a block nor a t")
	}
}

// TimeTravel resolves a time reference against this snapshot and returns
// the as-of view at the resolved t. Block references read the t recorded
// in that block's root; instants search transaction metadata in the tspo
// index for the latest transaction at or before the instant.
func (d *DB) TimeTravel(ctx context.Context, loader RootLoader, ref TimeRef) (*DB, error) {
	switch {
	case ref.Block != 0:
		if loader == nil {
			return nil, errs.E(errs.KindUnavailable, "no root loader for block time-travel")
		}
		t, err := loader.RootT(ctx, d.Network, d.Ledger, ref.Block)
		if err != nil {
			return nil, err
		}
		view, err := d.AsOf(t)
		if err != nil {
			return nil, err
		}
		view.Block = ref.Block
		return view, nil
	case !ref.Time.IsZero():
		t, err := d.tAtInstant(ctx, ref.Time)
		if err != nil {
			return nil, err
		}
		return d.AsOf(t)
	case ref.T != 0:
		return d.AsOf(ref.T)
	default:
		return nil, errs.E(errs.KindInvalidQuery, "empty time reference")
	}
}

// tAtInstant scans transaction metadata newest-first and returns the
// first (most recent) transaction whose commit time is at or before the
// instant.
func (d *DB) tAtInstant(ctx context.Context, at time.Time) (int64, error) {
	millis := at.UnixMilli()
	it := d.Scan(flake.IndexTSPO, flake.Min(), nil)
	for {
		f, ok, err := it.Next(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errs.Ef(errs.KindUnavailable, "no transaction at or before %s", at.Format(time.RFC3339))
		}
		if f.P != PidTxTime || !f.Op {
			continue
		}
		if f.O.Int <= millis {
			return f.T, nil
		}
	}
}
