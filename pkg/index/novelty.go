package index

import "github.com/cuemby/strata/pkg/flake"

// Novelty is the in-memory overlay of flakes not yet folded into on-disk
// tree nodes: one sorted set per index, identical as sets for spot, psot,
// post, and tspo, while opst holds only the subset whose objects are
// subject references. Novelty values are immutable; Add returns a new
// overlay, so readers holding a DB snapshot never observe partial updates.
type Novelty struct {
	spot *flake.Set
	psot *flake.Set
	post *flake.Set
	opst *flake.Set
	tspo *flake.Set
}

// NewNovelty returns an empty overlay.
func NewNovelty() *Novelty {
	return &Novelty{
		spot: flake.NewSet(flake.CmpSPOT),
		psot: flake.NewSet(flake.CmpPSOT),
		post: flake.NewSet(flake.CmpPOST),
		opst: flake.NewSet(flake.CmpOPST),
		tspo: flake.NewSet(flake.CmpTSPO),
	}
}

// Get returns the overlay set for an index.
func (n *Novelty) Get(idx flake.Index) *flake.Set {
	switch idx {
	case flake.IndexSPOT:
		return n.spot
	case flake.IndexPSOT:
		return n.psot
	case flake.IndexPOST:
		return n.post
	case flake.IndexOPST:
		return n.opst
	case flake.IndexTSPO:
		return n.tspo
	default:
		return n.spot
	}
}

// Add returns a new overlay with fs merged into every index; opst only
// receives reference-valued flakes.
func (n *Novelty) Add(fs ...flake.Flake) *Novelty {
	if len(fs) == 0 {
		return n
	}
	var refs []flake.Flake
	for _, f := range fs {
		if f.DT == flake.DtRef {
			refs = append(refs, f)
		}
	}
	return &Novelty{
		spot: n.spot.Add(fs...),
		psot: n.psot.Add(fs...),
		post: n.post.Add(fs...),
		opst: n.opst.Add(refs...),
		tspo: n.tspo.Add(fs...),
	}
}

// Len returns the number of distinct flakes in the overlay.
func (n *Novelty) Len() int {
	return n.spot.Len()
}

// Size returns the byte weight of the overlay.
func (n *Novelty) Size() int64 {
	return n.spot.Size()
}

// TruncateAfter returns a new overlay keeping only flakes newer than t
// (numerically smaller, since newer transactions are more negative). The
// reindexer uses it to empty novelty at or before the snapshotted t while
// preserving flakes staged after the snapshot.
func (n *Novelty) TruncateAfter(t int64) *Novelty {
	keep := func(f flake.Flake) bool { return f.T < t }
	out := NewNovelty()
	var kept []flake.Flake
	for _, f := range n.spot.All() {
		if keep(f) {
			kept = append(kept, f)
		}
	}
	return out.Add(kept...)
}
