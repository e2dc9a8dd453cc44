package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/serde"
	"github.com/cuemby/strata/pkg/storage"
)

func mkFlake(s, p, o, t int64) flake.Flake {
	return flake.Flake{S: s, P: p, O: flake.Int(o), DT: flake.DtLong, T: t, Op: true}
}

// writeTree persists a built tree by hand, returning the unresolved root
// as a reader would see it.
func writeTree(t *testing.T, store storage.Store, codec serde.Serde, n *Node) *Node {
	t.Helper()
	ctx := context.Background()
	if n.Leaf {
		id := storage.KeyNode(n.Network, n.Ledger, string(n.Idx), "test-"+randomSuffix(n), true)
		blob, err := codec.SerializeLeaf(&serde.Leaf{Flakes: n.Flakes.All()})
		require.NoError(t, err)
		_, err = store.Write(ctx, id, blob)
		require.NoError(t, err)
		n.ID = id
		return FromSummary(n.Summary(), n.Idx, n.Network, n.Ledger)
	}
	summaries := make([]serde.ChildSummary, len(n.Children))
	for i, c := range n.Children {
		writeTree(t, store, codec, c)
		summaries[i] = c.Summary()
	}
	id := storage.KeyNode(n.Network, n.Ledger, string(n.Idx), "test-"+randomSuffix(n), false)
	blob, err := codec.SerializeBranch(&serde.Branch{Children: summaries})
	require.NoError(t, err)
	_, err = store.Write(ctx, id, blob)
	require.NoError(t, err)
	n.ID = id
	return FromSummary(n.Summary(), n.Idx, n.Network, n.Ledger)
}

var suffix int

func randomSuffix(*Node) string {
	suffix++
	return string(rune('a' + suffix%26)) + string(rune('a'+(suffix/26)%26))
}

func buildAndPersist(t *testing.T, flakes []flake.Flake) (*Resolver, *Node) {
	t.Helper()
	store := storage.NewMemStore()
	codec := serde.NewJSON()
	cfg := BuildConfig{LeafMax: 200, LeafMin: 50, BranchFan: 2}
	tree := BuildTree(cfg, flake.IndexSPOT, "net", "l", 1, -1, flakes)
	root := writeTree(t, store, codec, tree)
	resolver, err := NewResolver(store, codec, 1<<20)
	require.NoError(t, err)
	return resolver, root
}

func TestBuildTreeBoundaries(t *testing.T) {
	var fs []flake.Flake
	for i := int64(0); i < 50; i++ {
		fs = append(fs, mkFlake(i, 1, i, -1))
	}
	cfg := BuildConfig{LeafMax: 300, LeafMin: 75, BranchFan: 3}
	tree := BuildTree(cfg, flake.IndexSPOT, "net", "l", 1, -1, fs)

	require.False(t, tree.Leaf)
	var leaves []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Leaf {
			leaves = append(leaves, n)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(tree)
	require.NotEmpty(t, leaves)

	// leftmost marking and rhs chaining
	assert.True(t, leaves[0].Leftmost)
	for i := 0; i < len(leaves)-1; i++ {
		require.NotNil(t, leaves[i].Rhs)
		assert.True(t, leaves[i].Rhs.Equal(*leaves[i+1].First))
	}
	assert.Nil(t, leaves[len(leaves)-1].Rhs)

	// every flake present exactly once, in order
	var got []flake.Flake
	for _, l := range leaves {
		got = append(got, l.Flakes.All()...)
	}
	require.Len(t, got, len(fs))
	for i := range got {
		assert.True(t, got[i].Equal(fs[i]))
	}
}

func TestIteratorScanOrderAndNoveltyMerge(t *testing.T) {
	ctx := context.Background()
	var persisted []flake.Flake
	for i := int64(0); i < 40; i += 2 {
		persisted = append(persisted, mkFlake(i, 1, i, -1))
	}
	resolver, root := buildAndPersist(t, persisted)

	novelty := flake.NewSet(flake.CmpSPOT)
	for i := int64(1); i < 40; i += 2 {
		novelty = novelty.Add(mkFlake(i, 1, i, -2))
	}
	// one exact duplicate of a persisted flake must not double-emit
	novelty = novelty.Add(mkFlake(10, 1, 10, -1))

	it := NewIterator(resolver, root, novelty, flake.Min(), nil)
	got, err := it.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, got, 40)
	for i := 0; i < len(got)-1; i++ {
		assert.Negative(t, flake.CmpSPOT(got[i], got[i+1]), "strictly ascending, no duplicates")
	}
}

func TestIteratorRange(t *testing.T) {
	ctx := context.Background()
	var persisted []flake.Flake
	for i := int64(0); i < 30; i++ {
		persisted = append(persisted, mkFlake(i, 1, i, -1))
	}
	resolver, root := buildAndPersist(t, persisted)

	from := flake.Min()
	from.S = 10
	to := flake.Min()
	to.S = 20

	it := NewIterator(resolver, root, flake.NewSet(flake.CmpSPOT), from, &to)
	got, err := it.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, int64(10), got[0].S)
	assert.Equal(t, int64(19), got[len(got)-1].S)
}

func TestIteratorRestartable(t *testing.T) {
	ctx := context.Background()
	var persisted []flake.Flake
	for i := int64(0); i < 20; i++ {
		persisted = append(persisted, mkFlake(i, 1, i, -1))
	}
	resolver, root := buildAndPersist(t, persisted)

	it := NewIterator(resolver, root, flake.NewSet(flake.CmpSPOT), flake.Min(), nil)
	var first []flake.Flake
	for i := 0; i < 7; i++ {
		f, ok, err := it.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		first = append(first, f)
	}
	rest, err := it.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, append(first, rest...), 20)
}

func TestResolverCachesAndCollapses(t *testing.T) {
	ctx := context.Background()
	var persisted []flake.Flake
	for i := int64(0); i < 10; i++ {
		persisted = append(persisted, mkFlake(i, 1, i, -1))
	}
	resolver, root := buildAndPersist(t, persisted)

	r1, err := resolver.Resolve(ctx, root)
	require.NoError(t, err)
	r2, err := resolver.Resolve(ctx, root)
	require.NoError(t, err)
	assert.Same(t, r1, r2, "second resolution must come from the cache")
	assert.Positive(t, resolver.CachedBytes())

	resolver.Release()
	assert.Zero(t, resolver.CachedBytes())
}

func TestResolveMissingNodeIsStorageError(t *testing.T) {
	ctx := context.Background()
	resolver, err := NewResolver(storage.NewMemStore(), serde.NewJSON(), 1<<20)
	require.NoError(t, err)

	dangling := &Node{ID: "net_l_spot_missing-l", Idx: flake.IndexSPOT, Leaf: true, Network: "net", Ledger: "l"}
	_, err = resolver.Resolve(ctx, dangling)
	require.Error(t, err)
	assert.Equal(t, errs.KindStorage, errs.KindOf(err))
}

func TestNoveltyInvariants(t *testing.T) {
	n := NewNovelty()
	n = n.Add(
		mkFlake(1, 1, 5, -1),
		flake.Flake{S: 1, P: 2, O: flake.Ref(9), DT: flake.DtRef, T: -1, Op: true},
		mkFlake(2, 1, 6, -2),
	)

	assert.Equal(t, 3, n.Get(flake.IndexSPOT).Len())
	assert.Equal(t, 3, n.Get(flake.IndexPSOT).Len())
	assert.Equal(t, 3, n.Get(flake.IndexPOST).Len())
	assert.Equal(t, 3, n.Get(flake.IndexTSPO).Len())
	// opst holds only reference-valued flakes
	assert.Equal(t, 1, n.Get(flake.IndexOPST).Len())

	truncated := n.TruncateAfter(-2)
	assert.Zero(t, truncated.Len(), "nothing staged after t=-2 remains")
}

func TestNoveltyTruncateAfter(t *testing.T) {
	n := NewNovelty()
	n = n.Add(mkFlake(1, 1, 1, -1), mkFlake(2, 1, 1, -2), mkFlake(3, 1, 1, -3))

	kept := n.TruncateAfter(-2)
	require.Equal(t, 1, kept.Len())
	assert.Equal(t, int64(-3), kept.Get(flake.IndexSPOT).All()[0].T)
}
