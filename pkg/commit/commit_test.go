package commit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/index"
	"github.com/cuemby/strata/pkg/serde"
	"github.com/cuemby/strata/pkg/storage"
)

var txTime = time.Date(2024, 10, 13, 10, 30, 0, 0, time.UTC)

type harness struct {
	store    *storage.MemStore
	writer   *Writer
	reader   *Reader
	resolver *index.Resolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := storage.NewMemStore()
	codec := serde.NewJSON()
	resolver, err := index.NewResolver(store, codec, 1<<20)
	require.NoError(t, err)
	return &harness{
		store:    store,
		writer:   NewWriter(store, codec),
		reader:   NewReader(store, codec),
		resolver: resolver,
	}
}

func stageAndCommit(t *testing.T, h *harness, d *db.DB, docs ...map[string]any) *db.DB {
	t.Helper()
	ctx := context.Background()
	staged, flakes, err := d.Stage(ctx, docs, db.StageOpts{When: txTime})
	require.NoError(t, err)
	committed, err := h.writer.Commit(ctx, staged, flakes)
	require.NoError(t, err)
	return committed
}

func TestCommitAdvancesBlockAndPersistsRoot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := db.New("net", "books", h.resolver)

	d1 := stageAndCommit(t, h, d, map[string]any{"@id": "ex/a", "schema/name": "A"})
	require.Equal(t, int64(1), d1.Block)
	require.Equal(t, int64(-1), d1.T)

	d2 := stageAndCommit(t, h, d1, map[string]any{"@id": "ex/b", "schema/name": "B"})
	require.Equal(t, int64(2), d2.Block)
	require.Equal(t, int64(-2), d2.T)

	root, err := h.reader.LoadRoot(ctx, "net", "books", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), root.Block)
	assert.Equal(t, int64(-2), root.T)

	root1, err := h.reader.LoadRoot(ctx, "net", "books", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), root1.T)

	tAt, err := h.reader.RootT(ctx, "net", "books", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), tAt)
}

func TestLoadRootMissingIsUnavailable(t *testing.T) {
	h := newHarness(t)
	_, err := h.reader.LoadRoot(context.Background(), "net", "nope", 3)
	require.Error(t, err)
	assert.Equal(t, errs.KindUnavailable, errs.KindOf(err))
}

func TestContentAddressedRoots(t *testing.T) {
	ctx := context.Background()

	build := func() []byte {
		h := newHarness(t)
		d := db.New("net", "books", h.resolver)
		stageAndCommit(t, h, d, map[string]any{"@id": "ex/a", "schema/name": "A"})
		data, err := h.store.Read(ctx, storage.KeyRoot("net", "books", 1))
		require.NoError(t, err)
		require.NotNil(t, data)
		return data
	}

	assert.Equal(t, build(), build(),
		"identical flake content and schema must produce byte-identical db-roots")
}

func TestLoadDBReconstructsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := db.New("net", "books", h.resolver)
	d1 := stageAndCommit(t, h, d, map[string]any{"@id": "ex/a", "schema/name": "A", "schema/age": float64(30)})
	d2 := stageAndCommit(t, h, d1, map[string]any{"@id": "ex/b", "schema/name": "B"})

	loaded, err := h.reader.LoadDB(ctx, "net", "books", h.resolver, 0)
	require.NoError(t, err)
	assert.Equal(t, d2.Block, loaded.Block)
	assert.Equal(t, d2.T, loaded.T)
	assert.Equal(t, d2.Novelty.Len(), loaded.Novelty.Len())

	// vocabulary survives the reload
	name, ok := loaded.Schema.Predicate("schema/name")
	require.True(t, ok)
	assert.Equal(t, flake.DtString, name.Type)

	sid, found, err := loaded.SubjectByIRI(ctx, "ex/a")
	require.NoError(t, err)
	require.True(t, found)
	fs, err := loaded.SubjectFlakes(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, fs, 3)
}

func TestWriteTreeAssignsFreshLeafAndBranchKeys(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var fs []flake.Flake
	for i := int64(0); i < 20; i++ {
		fs = append(fs, flake.New(i, 1, flake.Int(i), flake.DtLong, -1))
	}
	tree := index.BuildTree(index.BuildConfig{LeafMax: 300, LeafMin: 75, BranchFan: 2},
		flake.IndexSPOT, "net", "books", 1, -1, fs)

	written, ids, err := h.writer.WriteTree(ctx, tree)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	assert.NotEmpty(t, written.ID)
	assert.False(t, written.Leaf)

	// every id round-trips through storage
	for _, id := range ids {
		ok, err := h.store.Exists(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok, "node %s must be durable", id)
	}

	// an unresolved copy of the root resolves back to the same flakes
	unresolved := index.FromSummary(written.Summary(), flake.IndexSPOT, "net", "books")
	got, err := index.CollectLeaves(ctx, h.resolver, unresolved)
	require.NoError(t, err)
	require.Len(t, got, len(fs))
	for i := range fs {
		assert.True(t, fs[i].Equal(got[i]))
	}
}

func TestGarbageRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.writer.WriteGarbage(ctx, "net", "books", 3, []string{"old-1-l", "old-2-b"}))
	g, err := h.reader.ReadGarbage(ctx, "net", "books", 3)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, []string{"old-1-l", "old-2-b"}, g.Garbage)

	// a block that superseded nothing has no record
	g, err = h.reader.ReadGarbage(ctx, "net", "books", 4)
	require.NoError(t, err)
	assert.Nil(t, g)
}
