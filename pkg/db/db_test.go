package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/index"
	"github.com/cuemby/strata/pkg/serde"
	"github.com/cuemby/strata/pkg/storage"
)

var txTime = time.Date(2024, 10, 13, 10, 30, 0, 0, time.UTC)

func testDB(t *testing.T) *DB {
	t.Helper()
	resolver, err := index.NewResolver(storage.NewMemStore(), serde.NewJSON(), 1<<20)
	require.NoError(t, err)
	return New("net", "books", resolver)
}

func mustStage(t *testing.T, d *DB, qctx Context, docs ...map[string]any) *DB {
	t.Helper()
	next, _, err := d.Stage(context.Background(), docs, StageOpts{Context: qctx, When: txTime})
	require.NoError(t, err)
	return next
}

func aliceDoc() map[string]any {
	return map[string]any{
		"@id":         "ex/alice",
		"type":        "ex/User",
		"schema/name": "Alice",
		"schema/age":  float64(42),
	}
}

func TestStageAssertsSubject(t *testing.T) {
	ctx := context.Background()
	d := mustStage(t, testDB(t), nil, aliceDoc())

	assert.Equal(t, int64(-1), d.T)

	sid, found, err := d.SubjectByIRI(ctx, "ex/alice")
	require.NoError(t, err)
	require.True(t, found)

	fs, err := d.SubjectFlakes(ctx, sid)
	require.NoError(t, err)
	// @id, rdf:type, schema/name, schema/age
	require.Len(t, fs, 4)

	iri, err := d.IRIOf(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "ex/alice", iri)
}

func TestStageRegistersVocabulary(t *testing.T) {
	d := mustStage(t, testDB(t), nil, aliceDoc())

	name, ok := d.Schema.Predicate("schema/name")
	require.True(t, ok)
	assert.Equal(t, flake.DtString, name.Type)
	assert.False(t, name.Multi)

	typePred, ok := d.Schema.Predicate("type")
	require.True(t, ok)
	assert.True(t, typePred.Ref)
}

func TestRetractionViaNull(t *testing.T) {
	ctx := context.Background()
	d := mustStage(t, testDB(t), nil, aliceDoc())
	d = mustStage(t, d, nil, map[string]any{"@id": "ex/alice", "schema/age": nil})

	sid, _, err := d.SubjectByIRI(ctx, "ex/alice")
	require.NoError(t, err)

	age, _ := d.Schema.Predicate("schema/age")
	fs, err := d.SubjectPredicateFlakes(ctx, sid, age.ID)
	require.NoError(t, err)
	assert.Empty(t, fs, "retracted predicate must vanish from the current view")

	name, _ := d.Schema.Predicate("schema/name")
	fs, err = d.SubjectPredicateFlakes(ctx, sid, name.ID)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, "Alice", fs[0].O.Str)
}

func TestSingleCardinalityReplacement(t *testing.T) {
	ctx := context.Background()
	d := mustStage(t, testDB(t), nil, aliceDoc())
	d = mustStage(t, d, nil, map[string]any{"@id": "ex/alice", "schema/name": "Alicia"})

	sid, _, err := d.SubjectByIRI(ctx, "ex/alice")
	require.NoError(t, err)
	name, _ := d.Schema.Predicate("schema/name")
	fs, err := d.SubjectPredicateFlakes(ctx, sid, name.ID)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, "Alicia", fs[0].O.Str)
}

func TestWithFlakesRejectsReplay(t *testing.T) {
	d := testDB(t)
	f := flake.New(flake.SID(CollDefault, 0), PidID, flake.String("ex/x"), flake.DtString, -1)

	d2, err := d.WithFlakes([]flake.Flake{f})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), d2.T)

	// same flakes at the same t: rejected, novelty unchanged
	_, err = d2.WithFlakes([]flake.Flake{f})
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidTx, errs.KindOf(err))
	assert.Equal(t, 1, d2.Novelty.Len())
}

func TestAsOfComposition(t *testing.T) {
	d := testDB(t)
	d = mustStage(t, d, nil, map[string]any{"@id": "ex/a", "p": "1"})
	d = mustStage(t, d, nil, map[string]any{"@id": "ex/b", "p": "2"})
	d = mustStage(t, d, nil, map[string]any{"@id": "ex/c", "p": "3"})

	v1, err := d.AsOf(-1)
	require.NoError(t, err)
	v12, err := v1.AsOf(-2)
	require.NoError(t, err)
	// the older cap (closest to zero) wins
	assert.Equal(t, int64(-1), v12.AtT)

	v21, err := d.AsOf(-2)
	require.NoError(t, err)
	v21, err = v21.AsOf(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v21.AtT)
}

func TestAsOfValidation(t *testing.T) {
	d := mustStage(t, testDB(t), nil, aliceDoc())

	_, err := d.AsOf(5)
	assert.Equal(t, errs.KindInvalidQuery, errs.KindOf(err))

	_, err = d.AsOf(-99)
	assert.Equal(t, errs.KindUnavailable, errs.KindOf(err))
}

func TestAsOfHidesNewerState(t *testing.T) {
	ctx := context.Background()
	d := mustStage(t, testDB(t), nil, aliceDoc())
	d = mustStage(t, d, nil, map[string]any{"@id": "ex/alice", "schema/age": nil})

	sid, _, err := d.SubjectByIRI(ctx, "ex/alice")
	require.NoError(t, err)
	age, _ := d.Schema.Predicate("schema/age")

	v1, err := d.AsOf(-1)
	require.NoError(t, err)
	fs, err := v1.SubjectPredicateFlakes(ctx, sid, age.ID)
	require.NoError(t, err)
	require.Len(t, fs, 1, "the retraction at t=-2 is invisible at t=-1")
	assert.Equal(t, int64(42), fs[0].O.Int)
}

func TestIndexSliceFavNums(t *testing.T) {
	ctx := context.Background()
	d := mustStage(t, testDB(t), nil, map[string]any{
		"@id":        "ex/alice",
		"ex/favNums": []any{float64(9), float64(42), float64(76)},
	})

	sid, _, err := d.SubjectByIRI(ctx, "ex/alice")
	require.NoError(t, err)
	favNums, ok := d.Schema.Predicate("ex/favNums")
	require.True(t, ok)
	require.Equal(t, flake.DtLong, favNums.Type)

	// prefix slice: three flakes in ascending object order
	fs, err := d.SubjectPredicateFlakes(ctx, sid, favNums.ID)
	require.NoError(t, err)
	require.Len(t, fs, 3)
	assert.Equal(t, int64(9), fs[0].O.Int)
	assert.Equal(t, int64(42), fs[1].O.Int)
	assert.Equal(t, int64(76), fs[2].O.Int)

	// pinned (value, dt): exactly one flake
	dt := flake.DtLong
	fs, err = d.SubjectPredicateValueFlakes(ctx, sid, favNums.ID, flake.Int(42), &dt)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, int64(42), fs[0].O.Int)

	// mismatched datatype: empty, no coercion
	wrongDT := flake.DtInt
	fs, err = d.SubjectPredicateValueFlakes(ctx, sid, favNums.ID, flake.Int(42), &wrongDT)
	require.NoError(t, err)
	assert.Empty(t, fs)

	// unpinned value matches any datatype
	fs, err = d.SubjectPredicateValueFlakes(ctx, sid, favNums.ID, flake.Int(42), nil)
	require.NoError(t, err)
	assert.Len(t, fs, 1)
}

func TestListContainerStampsMetadata(t *testing.T) {
	ctx := context.Background()
	qctx, err := ParseContext(map[string]any{
		"ex/list": map[string]any{"@container": "@list"},
	})
	require.NoError(t, err)

	d := mustStage(t, testDB(t), qctx, map[string]any{
		"@id":     "L",
		"ex/list": []any{float64(42), float64(2), float64(88), float64(1)},
	})

	sid, _, err := d.SubjectByIRI(ctx, "L")
	require.NoError(t, err)
	listPred, _ := d.Schema.Predicate("ex/list")
	fs, err := d.SubjectPredicateFlakes(ctx, sid, listPred.ID)
	require.NoError(t, err)
	require.Len(t, fs, 4)

	byIndex := make(map[int64]int64)
	for _, f := range fs {
		i, ok := f.M.ListIndex()
		require.True(t, ok, "list elements carry their position")
		byIndex[i] = f.O.Int
	}
	assert.Equal(t, map[int64]int64{0: 42, 1: 2, 2: 88, 3: 1}, byIndex)
}

func TestTimeTravelByT(t *testing.T) {
	ctx := context.Background()
	d := mustStage(t, testDB(t), nil, aliceDoc())
	d = mustStage(t, d, nil, map[string]any{"@id": "ex/alice", "schema/age": nil})

	view, err := d.TimeTravel(ctx, nil, TimeRef{T: -1})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), view.AtT)
}

func TestTimeTravelByInstant(t *testing.T) {
	ctx := context.Background()
	d := testDB(t)

	first, _, err := d.Stage(ctx, []map[string]any{{"@id": "ex/a", "p": "1"}},
		StageOpts{When: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	second, _, err := first.Stage(ctx, []map[string]any{{"@id": "ex/b", "p": "2"}},
		StageOpts{When: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	// an instant between the two commits resolves to the first
	view, err := second.TimeTravel(ctx, nil, TimeRef{Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), view.AtT)

	// before the ledger existed: unavailable
	_, err = second.TimeTravel(ctx, nil, TimeRef{Time: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, errs.KindUnavailable, errs.KindOf(err))
}

func TestScanStrictOrderNoDuplicates(t *testing.T) {
	ctx := context.Background()
	d := mustStage(t, testDB(t), nil, aliceDoc(), map[string]any{
		"@id": "ex/bob", "schema/name": "Bob", "schema/age": float64(17),
	})

	for _, idx := range flake.Indexes {
		it := d.Scan(idx, flake.Min(), nil)
		fs, err := it.Collect(ctx)
		require.NoError(t, err)
		cmp := flake.ComparatorFor(idx)
		for i := 0; i < len(fs)-1; i++ {
			assert.Negative(t, cmp(fs[i], fs[i+1]), "%s scan must be strictly ascending", idx)
		}
	}
}
