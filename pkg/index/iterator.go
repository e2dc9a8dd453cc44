package index

import (
	"context"
	"errors"

	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
)

// Iterator is a pull-style cursor over one index in the half-open range
// [from, to): it walks on-disk leaves through the resolver and fuses the
// novelty overlay in comparator order, yielding each flake exactly once.
// The cursor is restartable: its state is the current leaf, the offset
// into it, and the novelty offset, so Next can resume after any pause.
type Iterator struct {
	cmp      flake.Comparator
	resolver *Resolver
	from     flake.Flake
	to       *flake.Flake

	// descent state
	stack []frame
	done  bool

	// current leaf run
	leaf    []flake.Flake
	leafPos int

	// novelty run
	nov    []flake.Flake
	novPos int

	// last emitted flake, for cross-run dedup
	last    flake.Flake
	hasLast bool
}

type frame struct {
	node *Node // resolved branch
	pos  int   // index of the child currently descended into
}

// NewIterator builds a cursor over root (which may be unresolved) merged
// with the index's novelty set.
func NewIterator(resolver *Resolver, root *Node, novelty *flake.Set, from flake.Flake, to *flake.Flake) *Iterator {
	it := &Iterator{
		cmp:      flake.ComparatorFor(root.Idx),
		resolver: resolver,
		from:     from,
		to:       to,
	}
	it.nov = novelty.Slice(from, to)
	it.stack = []frame{{node: root, pos: -1}}
	return it
}

// Next returns the next flake in range, or ok=false when exhausted.
func (it *Iterator) Next(ctx context.Context) (flake.Flake, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return flake.Flake{}, false, timeoutOr(err)
		}

		// fill the leaf run if empty and the tree is not exhausted
		if it.leafPos >= len(it.leaf) && !it.done {
			if err := it.advanceLeaf(ctx); err != nil {
				return flake.Flake{}, false, err
			}
		}

		var f flake.Flake
		haveLeaf := it.leafPos < len(it.leaf)
		haveNov := it.novPos < len(it.nov)
		switch {
		case haveLeaf && haveNov:
			c := it.cmp(it.leaf[it.leafPos], it.nov[it.novPos])
			if c <= 0 {
				f = it.leaf[it.leafPos]
				it.leafPos++
				if c == 0 {
					it.novPos++
				}
			} else {
				f = it.nov[it.novPos]
				it.novPos++
			}
		case haveLeaf:
			f = it.leaf[it.leafPos]
			it.leafPos++
		case haveNov:
			f = it.nov[it.novPos]
			it.novPos++
		default:
			return flake.Flake{}, false, nil
		}

		if it.to != nil && it.cmp(f, *it.to) >= 0 {
			it.done = true
			it.leaf = nil
			it.leafPos = 0
			it.nov = nil
			it.novPos = 0
			return flake.Flake{}, false, nil
		}
		if it.hasLast && it.cmp(it.last, f) == 0 {
			continue
		}
		it.last = f
		it.hasLast = true
		return f, true, nil
	}
}

// advanceLeaf descends to the next leaf holding flakes >= the cursor
// position and loads its in-range run.
func (it *Iterator) advanceLeaf(ctx context.Context) error {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		resolved, err := it.resolver.Resolve(ctx, top.node)
		if err != nil {
			return err
		}
		top.node = resolved

		if resolved.Leaf {
			it.stack = it.stack[:len(it.stack)-1]
			run := resolved.Flakes.Slice(it.from, it.to)
			if len(run) == 0 {
				continue
			}
			it.leaf = run
			it.leafPos = 0
			return nil
		}

		if top.pos < 0 {
			top.pos = it.firstChild(resolved)
		} else {
			top.pos++
		}
		if top.pos >= len(resolved.Children) {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		child := resolved.Children[top.pos]
		// prune subtrees entirely past the right bound
		if it.to != nil && child.First != nil && it.cmp(*child.First, *it.to) >= 0 {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		it.stack = append(it.stack, frame{node: child, pos: -1})
	}
	it.done = true
	return nil
}

// firstChild selects the leftmost child whose rhs is > from (rhs is
// exclusive, so a child whose rhs equals from holds nothing at or after
// from), or the rightmost child when every boundary is at most from.
func (it *Iterator) firstChild(branch *Node) int {
	for i, child := range branch.Children {
		if child.Rhs == nil {
			return i
		}
		if it.cmp(*child.Rhs, it.from) > 0 {
			return i
		}
	}
	return len(branch.Children) - 1
}

func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, "range scan", err)
	}
	return err
}

// Collect drains the iterator into a slice. Intended for tests and small
// ranges; large scans should pull incrementally.
func (it *Iterator) Collect(ctx context.Context) ([]flake.Flake, error) {
	var out []flake.Flake
	for {
		f, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, f)
	}
}
