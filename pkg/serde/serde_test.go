package serde

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/flake"
)

func sampleFlakes() []flake.Flake {
	return []flake.Flake{
		{S: 10, P: 1, O: flake.String("Alice"), DT: flake.DtString, T: -1, Op: true},
		{S: 10, P: 2, O: flake.Int(42), DT: flake.DtLong, T: -1, Op: true},
		{S: 10, P: 3, O: flake.Ref(11), DT: flake.DtRef, T: -2, Op: false},
		{S: 10, P: 4, O: flake.Bool(true), DT: flake.DtBoolean, T: -2, Op: true},
		{S: 10, P: 5, O: flake.Float(2.5), DT: flake.DtDouble, T: -3, Op: true},
		{S: 10, P: 6, O: flake.Decimal("10.250"), DT: flake.DtBigDec, T: -3, Op: true},
		{S: 10, P: 7, O: flake.Bytes([]byte{1, 2, 3}), DT: flake.DtBytes, T: -3, Op: true},
		{S: 10, P: 8, O: flake.Int(99), DT: flake.DtLong, T: -3, Op: true,
			M: flake.Meta{"i": int64(2)}},
	}
}

func TestLeafRoundTrip(t *testing.T) {
	codec := NewJSON()
	leaf := &Leaf{Flakes: sampleFlakes()}

	data, err := codec.SerializeLeaf(leaf)
	require.NoError(t, err)

	got, err := codec.DeserializeLeaf(data)
	require.NoError(t, err)
	require.Len(t, got.Flakes, len(leaf.Flakes))
	for i, f := range leaf.Flakes {
		assert.True(t, f.Equal(got.Flakes[i]), "flake %d: %v != %v", i, f, got.Flakes[i])
	}
}

func TestBranchRoundTrip(t *testing.T) {
	codec := NewJSON()
	first := flake.Flake{S: 1, P: 1, O: flake.Int(1), DT: flake.DtLong, T: -1, Op: true}
	rhs := flake.Flake{S: 5, P: 1, O: flake.Int(1), DT: flake.DtLong, T: -1, Op: true}
	branch := &Branch{Children: []ChildSummary{
		{ID: "net_l_spot_u1-l", Leaf: true, First: &first, Rhs: &rhs, Size: 1024, Leftmost: true, Block: 3, T: -7},
		{ID: "net_l_spot_u2-l", Leaf: true, First: &rhs, Size: 512, Block: 3, T: -7},
	}}

	data, err := codec.SerializeBranch(branch)
	require.NoError(t, err)
	got, err := codec.DeserializeBranch(data)
	require.NoError(t, err)
	require.Len(t, got.Children, 2)
	assert.Equal(t, branch.Children[0].ID, got.Children[0].ID)
	assert.True(t, got.Children[0].First.Equal(first))
	assert.True(t, got.Children[0].Rhs.Equal(rhs))
	assert.Nil(t, got.Children[1].Rhs)
	assert.True(t, got.Children[0].Leftmost)
}

func TestRootRoundTrip(t *testing.T) {
	codec := NewJSON()
	root := &Root{
		Network:   "net",
		LedgerID:  "books",
		Block:     4,
		T:         -9,
		Ecount:    map[int64]int64{0: 1002, 3: 17},
		Stats:     Stats{Flakes: 120, Size: 9001},
		Spot:      ChildSummary{ID: "empty", Leaf: true},
		Psot:      ChildSummary{ID: "empty", Leaf: true},
		Post:      ChildSummary{ID: "empty", Leaf: true},
		Opst:      ChildSummary{ID: "empty", Leaf: true},
		Tspo:      ChildSummary{ID: "empty", Leaf: true},
		Timestamp: 1700000000000,
		PrevIndex: 2,
	}

	data, err := codec.SerializeRoot(root)
	require.NoError(t, err)
	got, err := codec.DeserializeRoot(data)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestGarbageAndBlockRoundTrip(t *testing.T) {
	codec := NewJSON()

	g := &Garbage{Network: "net", LedgerID: "books", Block: 4, Garbage: []string{"a-l", "b-b"}}
	data, err := codec.SerializeGarbage(g)
	require.NoError(t, err)
	gotG, err := codec.DeserializeGarbage(data)
	require.NoError(t, err)
	assert.Equal(t, g, gotG)

	b := &Block{Block: 4, T: -9, Flakes: sampleFlakes()}
	data, err = codec.SerializeBlock(b)
	require.NoError(t, err)
	gotB, err := codec.DeserializeBlock(data)
	require.NoError(t, err)
	require.Len(t, gotB.Flakes, len(b.Flakes))
	for i := range b.Flakes {
		assert.True(t, b.Flakes[i].Equal(gotB.Flakes[i]))
	}
}

func TestSerializationIsDeterministic(t *testing.T) {
	codec := NewJSON()
	root := &Root{
		Network:  "net",
		LedgerID: "books",
		Block:    1,
		T:        -1,
		Ecount:   map[int64]int64{3: 5, 0: 1001, 1: 100, 2: 0},
		Spot:     ChildSummary{ID: "empty", Leaf: true},
		Psot:     ChildSummary{ID: "empty", Leaf: true},
		Post:     ChildSummary{ID: "empty", Leaf: true},
		Opst:     ChildSummary{ID: "empty", Leaf: true},
		Tspo:     ChildSummary{ID: "empty", Leaf: true},
	}
	a, err := codec.SerializeRoot(root)
	require.NoError(t, err)
	b, err := codec.SerializeRoot(root)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	leaf := &Leaf{Flakes: sampleFlakes()}
	la, err := codec.SerializeLeaf(leaf)
	require.NoError(t, err)
	lb, err := codec.SerializeLeaf(leaf)
	require.NoError(t, err)
	assert.Equal(t, la, lb)
}
