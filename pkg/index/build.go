package index

import (
	"context"

	"github.com/cuemby/strata/pkg/flake"
)

// BuildConfig bounds node sizes during a rebuild. Leaves are packed up to
// LeafMax bytes, so every leaf but the rightmost lands in [LeafMin, LeafMax]
// as long as no single flake exceeds LeafMax - LeafMin; a flake larger than
// LeafMax gets a leaf of its own.
type BuildConfig struct {
	LeafMin   int64
	LeafMax   int64
	BranchFan int // children per branch level
}

// DefaultBuildConfig mirrors the engine defaults.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		LeafMin:   64 << 10,
		LeafMax:   256 << 10,
		BranchFan: 64,
	}
}

func (c BuildConfig) normalize() BuildConfig {
	if c.LeafMax <= 0 {
		c.LeafMax = 256 << 10
	}
	if c.LeafMin <= 0 || c.LeafMin > c.LeafMax {
		c.LeafMin = c.LeafMax / 4
	}
	if c.BranchFan < 2 {
		c.BranchFan = 64
	}
	return c
}

// BuildTree constructs a fully resolved in-memory tree over the sorted
// flakes of one index. Node ids stay empty; the commit path assigns fresh
// keys as it writes leaves then branches bottom-up. An empty input yields
// the empty leaf.
func BuildTree(cfg BuildConfig, idx flake.Index, network, ledger string, block, t int64, flakes []flake.Flake) *Node {
	cfg = cfg.normalize()
	if len(flakes) == 0 {
		n := NewEmptyLeaf(idx, network, ledger)
		n.Block = block
		n.T = t
		return n
	}

	leaves := buildLeaves(cfg, idx, network, ledger, block, t, flakes)
	level := leaves
	for len(level) > 1 {
		level = buildBranchLevel(cfg, idx, network, ledger, block, t, level)
	}
	if !level[0].Leaf {
		return level[0]
	}
	// a single leaf still gets a root branch so the root shape is stable
	return newBranch(idx, network, ledger, block, t, level)
}

func buildLeaves(cfg BuildConfig, idx flake.Index, network, ledger string, block, t int64, flakes []flake.Flake) []*Node {
	cmp := flake.ComparatorFor(idx)
	var leaves []*Node
	var run []flake.Flake
	var runBytes int64
	flush := func() {
		if len(run) == 0 {
			return
		}
		set := flake.NewSet(cmp, run...)
		first := set.All()[0]
		leaves = append(leaves, &Node{
			Idx:     idx,
			Leaf:    true,
			First:   &first,
			Size:    set.Size(),
			Network: network,
			Ledger:  ledger,
			Block:   block,
			T:       t,
			Flakes:  set,
		})
		run = nil
		runBytes = 0
	}
	for _, f := range flakes {
		sz := f.SizeBytes()
		if len(run) > 0 && runBytes+sz > cfg.LeafMax {
			flush()
		}
		run = append(run, f)
		runBytes += sz
	}
	flush()

	// rhs of each leaf is the first flake of its right sibling
	for i := 0; i < len(leaves)-1; i++ {
		rhs := *leaves[i+1].First
		leaves[i].Rhs = &rhs
	}
	leaves[0].Leftmost = true
	return leaves
}

func buildBranchLevel(cfg BuildConfig, idx flake.Index, network, ledger string, block, t int64, children []*Node) []*Node {
	var level []*Node
	for start := 0; start < len(children); start += cfg.BranchFan {
		end := start + cfg.BranchFan
		if end > len(children) {
			end = len(children)
		}
		level = append(level, newBranch(idx, network, ledger, block, t, children[start:end]))
	}
	return level
}

func newBranch(idx flake.Index, network, ledger string, block, t int64, children []*Node) *Node {
	kids := make([]*Node, len(children))
	copy(kids, children)
	var size int64
	for _, c := range kids {
		size += c.Size
	}
	b := &Node{
		Idx:      idx,
		Leaf:     false,
		First:    kids[0].First,
		Rhs:      kids[len(kids)-1].Rhs,
		Size:     size,
		Leftmost: kids[0].Leftmost,
		Network:  network,
		Ledger:   ledger,
		Block:    block,
		T:        t,
		Children: kids,
	}
	return b
}

// CollectLeaves resolves and walks the whole subtree under n, appending
// every flake in order. Used by the reindexer to rebuild an index and by
// equivalence checks.
func CollectLeaves(ctx context.Context, r *Resolver, n *Node) ([]flake.Flake, error) {
	resolved, err := r.Resolve(ctx, n)
	if err != nil {
		return nil, err
	}
	if resolved.Leaf {
		return resolved.Flakes.All(), nil
	}
	var out []flake.Flake
	for _, child := range resolved.Children {
		fs, err := CollectLeaves(ctx, r, child)
		if err != nil {
			return nil, err
		}
		out = append(out, fs...)
	}
	return out, nil
}
