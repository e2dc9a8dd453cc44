package query

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

func testDB(t *testing.T) *db.DB {
	t.Helper()
	resolver, err := index.NewResolver(storage.NewMemStore(), serde.NewJSON(), 1<<20)
	require.NoError(t, err)
	return db.New("net", "books", resolver)
}

func mustStage(t *testing.T, d *db.DB, rawCtx map[string]any, docs ...map[string]any) *db.DB {
	t.Helper()
	var qctx db.Context
	if rawCtx != nil {
		var err error
		qctx, err = db.ParseContext(rawCtx)
		require.NoError(t, err)
	}
	next, _, err := d.Stage(context.Background(), docs, db.StageOpts{Context: qctx, When: txTime})
	require.NoError(t, err)
	return next
}

func run(t *testing.T, d *db.DB, raw map[string]any) any {
	t.Helper()
	out, err := Run(context.Background(), d, raw)
	require.NoError(t, err)
	return out
}

func stagedAlice(t *testing.T) *db.DB {
	return mustStage(t, testDB(t), nil, map[string]any{
		"@id":         "ex/alice",
		"type":        "ex/User",
		"schema/name": "Alice",
		"schema/age":  float64(42),
	})
}

// Single-subject wildcard selection.
func TestWildcardFromSubject(t *testing.T) {
	d := stagedAlice(t)

	out := run(t, d, map[string]any{
		"select": []any{"*"},
		"from":   "ex/alice",
	})

	results, ok := out.([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	doc := results[0].(map[string]any)
	assert.Equal(t, "ex/alice", doc["id"])
	assert.Equal(t, []any{"ex/User"}, doc["rdf:type"])
	assert.Equal(t, "Alice", doc["schema/name"])
	assert.Equal(t, int64(42), doc["schema/age"])
}

// Retraction via null removes the predicate from the projection.
func TestWildcardAfterRetraction(t *testing.T) {
	d := stagedAlice(t)
	d = mustStage(t, d, nil, map[string]any{"@id": "ex/alice", "schema/age": nil})

	out := run(t, d, map[string]any{
		"select": []any{"*"},
		"from":   "ex/alice",
	})

	results := out.([]any)
	require.Len(t, results, 1)
	doc := results[0].(map[string]any)
	assert.Equal(t, "Alice", doc["schema/name"])
	assert.Equal(t, []any{"ex/User"}, doc["rdf:type"])
	assert.NotContains(t, doc, "schema/age")
}

// Reverse context traverses opst from the referenced subject.
func TestReverseContextSelection(t *testing.T) {
	refCtx := map[string]any{
		"ex/friend": map[string]any{"@type": "@id"},
	}
	d := stagedAlice(t)
	d = mustStage(t, d, refCtx,
		map[string]any{"@id": "ex/cam", "ex/friend": []any{"ex/brian", "ex/alice"}},
		map[string]any{"@id": "ex/brian", "ex/friend": []any{"ex/alice"}},
	)

	out := run(t, d, map[string]any{
		"context":   map[string]any{"friended": map[string]any{"reverse": "ex/friend"}},
		"selectOne": []any{"schema/name", ":friended"},
		"from":      "ex/alice",
	})

	doc, ok := out.(map[string]any)
	require.True(t, ok, "selectOne unwraps the vector")
	assert.Equal(t, "Alice", doc["schema/name"])
	assert.Equal(t, []any{"ex/cam", "ex/brian"}, doc["friended"])
}

// @list containers preserve stage order. The order lives in flake
// metadata, so it survives a query that supplies no context at all.
func TestListOrderPreserved(t *testing.T) {
	listCtx := map[string]any{"ex/list": map[string]any{"@container": "@list"}}
	d := mustStage(t, testDB(t), listCtx, map[string]any{
		"@id":     "L",
		"ex/list": []any{float64(42), float64(2), float64(88), float64(1)},
	})

	// no query-time context: order comes from the stored element indexes
	out := run(t, d, map[string]any{
		"select": []any{"*"},
		"from":   "L",
	})

	results := out.([]any)
	require.Len(t, results, 1)
	doc := results[0].(map[string]any)
	assert.Equal(t, "L", doc["id"])
	assert.Equal(t, []any{int64(42), int64(2), int64(88), int64(1)}, doc["ex/list"])

	// re-supplying the @container context changes nothing
	out = run(t, d, map[string]any{
		"context": listCtx,
		"select":  []any{"*"},
		"from":    "L",
	})
	doc = out.([]any)[0].(map[string]any)
	assert.Equal(t, []any{int64(42), int64(2), int64(88), int64(1)}, doc["ex/list"])
}

func TestWherePipelineBindsAndFilters(t *testing.T) {
	d := mustStage(t, testDB(t), nil,
		map[string]any{"@id": "ex/alice", "schema/name": "Alice", "schema/age": float64(42)},
		map[string]any{"@id": "ex/bob", "schema/name": "Bob", "schema/age": float64(17)},
		map[string]any{"@id": "ex/cam", "schema/name": "Cam", "schema/age": float64(30)},
	)

	out := run(t, d, map[string]any{
		"select": []any{"?name"},
		"where": []any{
			[]any{"?s", "schema/age", "?age"},
			[]any{"?s", "schema/name", "?name"},
		},
		"filter":   []any{"(> ?age 20)"},
		"order-by": "?age",
	})

	assert.Equal(t, []any{"Cam", "Alice"}, out)
}

func TestWhereWithBoundObject(t *testing.T) {
	d := mustStage(t, testDB(t), nil,
		map[string]any{"@id": "ex/alice", "schema/name": "Alice"},
		map[string]any{"@id": "ex/bob", "schema/name": "Bob"},
	)

	out := run(t, d, map[string]any{
		"select": []any{"?s"},
		"where":  []any{[]any{"?s", "schema/name", "Alice"}},
	})

	assert.Equal(t, []any{"ex/alice"}, out)
}

func TestSelectDistinct(t *testing.T) {
	d := mustStage(t, testDB(t), nil,
		map[string]any{"@id": "ex/a", "schema/city": "Lisbon"},
		map[string]any{"@id": "ex/b", "schema/city": "Lisbon"},
		map[string]any{"@id": "ex/c", "schema/city": "Porto"},
	)

	out := run(t, d, map[string]any{
		"selectDistinct": []any{"?city"},
		"where":          []any{[]any{"?s", "schema/city", "?city"}},
		"order-by":       "?city",
	})

	assert.Equal(t, []any{"Lisbon", "Porto"}, out)
}

func TestSelectReducedMatchesDistinct(t *testing.T) {
	d := mustStage(t, testDB(t), nil,
		map[string]any{"@id": "ex/a", "schema/city": "Lisbon"},
		map[string]any{"@id": "ex/b", "schema/city": "Lisbon"},
	)

	out := run(t, d, map[string]any{
		"selectReduced": []any{"?city"},
		"where":         []any{[]any{"?s", "schema/city", "?city"}},
	})

	assert.Equal(t, []any{"Lisbon"}, out)
}

func TestLimitAndOffset(t *testing.T) {
	d := mustStage(t, testDB(t), nil,
		map[string]any{"@id": "ex/a", "schema/age": float64(1)},
		map[string]any{"@id": "ex/b", "schema/age": float64(2)},
		map[string]any{"@id": "ex/c", "schema/age": float64(3)},
	)

	out := run(t, d, map[string]any{
		"select":   []any{"?age"},
		"where":    []any{[]any{"?s", "schema/age", "?age"}},
		"order-by": "?age",
		"limit":    float64(1),
		"offset":   float64(1),
	})

	assert.Equal(t, []any{int64(2)}, out)
}

func TestAggregates(t *testing.T) {
	d := mustStage(t, testDB(t), nil,
		map[string]any{"@id": "ex/a", "schema/age": float64(10)},
		map[string]any{"@id": "ex/b", "schema/age": float64(20)},
		map[string]any{"@id": "ex/c", "schema/age": float64(30)},
	)

	out := run(t, d, map[string]any{
		"select": []any{"(count ?age)"},
		"where":  []any{[]any{"?s", "schema/age", "?age"}},
	})
	assert.Equal(t, []any{int64(3)}, out)

	out = run(t, d, map[string]any{
		"select": []any{"(avg ?age)"},
		"where":  []any{[]any{"?s", "schema/age", "?age"}},
	})
	assert.Equal(t, []any{float64(20)}, out)
}

func TestGraphCrawlFollowsReferences(t *testing.T) {
	refCtx := map[string]any{"ex/friend": map[string]any{"@type": "@id"}}
	d := mustStage(t, testDB(t), refCtx,
		map[string]any{"@id": "ex/a", "schema/name": "A", "ex/friend": []any{"ex/b"}},
		map[string]any{"@id": "ex/b", "schema/name": "B", "ex/friend": []any{"ex/a"}},
	)

	out := run(t, d, map[string]any{
		"context": refCtx,
		"select": []any{"?s", map[string]any{
			"?s": []any{"schema/name", map[string]any{"ex/friend": []any{"schema/name"}}},
		}},
		"where": []any{[]any{"?s", "schema/name", "A"}},
		"depth": float64(3),
	})

	rows := out.([]any)
	require.Len(t, rows, 1)
	tuple := rows[0].([]any)
	assert.Equal(t, "ex/a", tuple[0])
	doc := tuple[1].(map[string]any)
	assert.Equal(t, "A", doc["schema/name"])
	friend := doc["ex/friend"].([]any)[0].(map[string]any)
	assert.Equal(t, "B", friend["schema/name"])
	// the sub-selection lists only schema/name, so the crawl stops there
	assert.NotContains(t, friend, "ex/friend")
}

func TestGraphCrawlVisitSetStopsRevisits(t *testing.T) {
	refCtx := map[string]any{"ex/friend": map[string]any{"@type": "@id"}}
	// diamond: s → x, s → y, x → z, y → z
	d := mustStage(t, testDB(t), refCtx,
		map[string]any{"@id": "ex/z", "schema/name": "Z"},
		map[string]any{"@id": "ex/x", "schema/name": "X", "ex/friend": []any{"ex/z"}},
		map[string]any{"@id": "ex/y", "schema/name": "Y", "ex/friend": []any{"ex/z"}},
		map[string]any{"@id": "ex/s", "schema/name": "S", "ex/friend": []any{"ex/x", "ex/y"}},
	)

	out := run(t, d, map[string]any{
		"context": refCtx,
		"selectOne": []any{"schema/name", map[string]any{
			"ex/friend": []any{"schema/name", map[string]any{"ex/friend": []any{"schema/name"}}},
		}},
		"from":  "ex/s",
		"depth": float64(5),
	})

	doc := out.(map[string]any)
	friends := doc["ex/friend"].([]any)
	require.Len(t, friends, 2)

	first := friends[0].(map[string]any)
	second := friends[1].(map[string]any)
	// z is crawled once; the second arrival under the same spec stops at
	// its identifier
	firstZ := first["ex/friend"].([]any)[0]
	secondZ := second["ex/friend"].([]any)[0]
	assert.Equal(t, map[string]any{"schema/name": "Z"}, firstZ)
	assert.Equal(t, map[string]any{"id": "ex/z"}, secondZ)
}

func TestDepthZeroStopsAtIdentifiers(t *testing.T) {
	refCtx := map[string]any{"ex/friend": map[string]any{"@type": "@id"}}
	d := mustStage(t, testDB(t), refCtx,
		map[string]any{"@id": "ex/a", "schema/name": "A", "ex/friend": []any{"ex/b"}},
		map[string]any{"@id": "ex/b", "schema/name": "B"},
	)

	out := run(t, d, map[string]any{
		"context":   refCtx,
		"selectOne": []any{"schema/name", map[string]any{"ex/friend": []any{"schema/name"}}},
		"from":      "ex/a",
		"depth":     float64(0),
	})

	doc := out.(map[string]any)
	assert.Equal(t, "A", doc["schema/name"])
	assert.Equal(t, []any{map[string]any{"id": "ex/b"}}, doc["ex/friend"])
}

func TestFromCollectionPredicate(t *testing.T) {
	d := mustStage(t, testDB(t), nil,
		map[string]any{"@id": "ex/a", "schema/name": "A"},
		map[string]any{"@id": "ex/b", "schema/name": "B"},
	)

	out := run(t, d, map[string]any{
		"select": []any{"*"},
		"from":   "schema/name",
	})
	assert.Len(t, out.([]any), 2)
}

func TestInvalidQueries(t *testing.T) {
	d := stagedAlice(t)
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"no select", map[string]any{"from": "ex/alice"}},
		{"unknown variable", map[string]any{
			"select": []any{"?nope"},
			"where":  []any{[]any{"?s", "schema/name", "?name"}},
		}},
		{"malformed pattern", map[string]any{
			"select": []any{"?s"},
			"where":  []any{[]any{"?s", "schema/name"}},
		}},
		{"bad filter", map[string]any{
			"select": []any{"?s"},
			"where":  []any{[]any{"?s", "schema/name", "?n"}},
			"filter": []any{"(?? ?n 1)"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), d, tt.raw)
			require.Error(t, err)
			assert.Equal(t, errs.KindInvalidQuery, errs.KindOf(err))
		})
	}
}

func TestTimeTravelQueryMatchesEarlierState(t *testing.T) {
	ctx := context.Background()
	d := stagedAlice(t)
	d2 := mustStage(t, d, nil, map[string]any{"@id": "ex/alice", "schema/age": nil})

	view, err := d2.AsOf(-1)
	require.NoError(t, err)

	out := run(t, view, map[string]any{
		"select": []any{"*"},
		"from":   "ex/alice",
	})
	doc := out.([]any)[0].(map[string]any)
	assert.Equal(t, int64(42), doc["schema/age"], "the as-of view still sees the age")

	// and the equality holds flake-for-flake against the pre-retraction db
	sid, _, err := d.SubjectByIRI(ctx, "ex/alice")
	require.NoError(t, err)
	before, err := d.SubjectFlakes(ctx, sid)
	require.NoError(t, err)
	after, err := view.SubjectFlakes(ctx, sid)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].Equal(after[i]))
	}
}

func TestUnknownPredicateInWhereYieldsNothing(t *testing.T) {
	d := stagedAlice(t)
	out := run(t, d, map[string]any{
		"select": []any{"?s"},
		"where":  []any{[]any{"?s", "schema/nope", "?v"}},
	})
	assert.Equal(t, []any{}, out)
}

func TestDatatypePinnedObject(t *testing.T) {
	d := mustStage(t, testDB(t), nil, map[string]any{
		"@id":        "ex/alice",
		"ex/favNums": []any{float64(9), float64(42), float64(76)},
	})

	out := run(t, d, map[string]any{
		"select": []any{"?s"},
		"where":  []any{[]any{"?s", "ex/favNums", []any{float64(42), float64(flake.DtLong)}}},
	})
	assert.Equal(t, []any{"ex/alice"}, out)

	out = run(t, d, map[string]any{
		"select": []any{"?s"},
		"where":  []any{[]any{"?s", "ex/favNums", []any{float64(42), float64(flake.DtInt)}}},
	})
	assert.Equal(t, []any{}, out, "mismatched datatype pin matches nothing")
}
