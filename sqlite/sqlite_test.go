package sqlite

import (
	"context"
	"fmt"
	"sort"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/kekyo/massivepoints"
)

// File-based databases are more reliable than in-memory ones under a
// connection pool, so every test gets its own temp file.
func newTestProvider(t *testing.T, maxNodePoints int) *DataProvider[string] {
	t.Helper()
	c := qt.New(t)
	provider, err := Open(
		t.TempDir()+"/tree.db",
		JSONCodec[string]{},
		massivepoints.NewUniformBound(2, 0, 100),
		maxNodePoints)
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() {
		c.Assert(provider.Close(), qt.IsNil)
	})
	return provider
}

func sortedValues(items []massivepoints.PointItem[string]) []string {
	vs := make([]string, len(items))
	for i, item := range items {
		vs[i] = item.Value
	}
	sort.Strings(vs)
	return vs
}

func TestTreeOverSQLite(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	provider := newTestProvider(t, 4)
	tree := massivepoints.NewQuadTree[string, int64](provider)

	session, err := tree.BeginUpdateSession(ctx)
	c.Assert(err, qt.IsNil)
	for i, p := range []massivepoints.Point{
		massivepoints.NewPoint(10, 10),
		massivepoints.NewPoint(10, 10),
		massivepoints.NewPoint(20, 20),
		massivepoints.NewPoint(30, 30),
		massivepoints.NewPoint(40, 40),
		massivepoints.NewPoint(80, 80),
	} {
		_, err := session.InsertPoint(ctx, p, fmt.Sprintf("v%d", i))
		c.Assert(err, qt.IsNil)
	}
	c.Assert(session.Finish(ctx), qt.IsNil)

	// A fresh session observes the committed tree.
	session, err = tree.BeginSession(ctx)
	c.Assert(err, qt.IsNil)
	items, err := session.LookupPoint(ctx, massivepoints.NewPoint(10, 10))
	c.Assert(err, qt.IsNil)
	c.Assert(sortedValues(items), qt.DeepEquals, []string{"v0", "v1"})

	items, err = session.LookupBound(ctx, massivepoints.NewBound(
		massivepoints.NewAxis(0, 50), massivepoints.NewAxis(0, 50)))
	c.Assert(err, qt.IsNil)
	c.Assert(sortedValues(items), qt.DeepEquals, []string{"v0", "v1", "v2", "v3", "v4"})

	var enumerated []string
	for item, err := range session.EnumerateBound(ctx, session.Entire()) {
		c.Assert(err, qt.IsNil)
		enumerated = append(enumerated, item.Value)
	}
	sort.Strings(enumerated)
	c.Assert(enumerated, qt.DeepEquals, []string{"v0", "v1", "v2", "v3", "v4", "v5"})
	c.Assert(session.Finish(ctx), qt.IsNil)
}

func TestSQLiteDistributeAndShrink(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	provider := newTestProvider(t, 4)
	tree := massivepoints.NewQuadTree[string, int64](provider)

	session, err := tree.BeginUpdateSession(ctx)
	c.Assert(err, qt.IsNil)
	items := make([]massivepoints.PointItem[string], 100)
	for i := range items {
		items[i] = massivepoints.NewPointItem(
			massivepoints.NewPoint(float64(i%10)*10+1, float64(i/10)*10+1),
			fmt.Sprintf("v%d", i))
	}
	_, err = session.InsertPointSlice(ctx, items, massivepoints.DefaultBulkInsertConfig())
	c.Assert(err, qt.IsNil)
	c.Assert(session.Finish(ctx), qt.IsNil)

	// A hundred points over capacity four subdivided the root.
	var nodeCount int
	c.Assert(provider.db.QueryRow(`SELECT COUNT(*) FROM quad_nodes`).Scan(&nodeCount), qt.IsNil)
	c.Assert(nodeCount > 0, qt.IsTrue)

	session, err = tree.BeginUpdateSession(ctx)
	c.Assert(err, qt.IsNil)
	removed, err := session.RemoveBound(ctx, session.Entire(), massivepoints.RemoveConfig{Shrink: true})
	c.Assert(err, qt.IsNil)
	c.Assert(removed, qt.Equals, int64(100))
	left, err := session.LookupBound(ctx, session.Entire())
	c.Assert(err, qt.IsNil)
	c.Assert(left, qt.HasLen, 0)
	c.Assert(session.Finish(ctx), qt.IsNil)

	// The tree collapsed back into an empty root leaf.
	c.Assert(provider.db.QueryRow(`SELECT COUNT(*) FROM quad_nodes`).Scan(&nodeCount), qt.IsNil)
	c.Assert(nodeCount, qt.Equals, 0)
	var pointCount int
	c.Assert(provider.db.QueryRow(`SELECT COUNT(*) FROM quad_points`).Scan(&pointCount), qt.IsNil)
	c.Assert(pointCount, qt.Equals, 0)
}

func TestSQLiteReopenKeepsTree(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	path := t.TempDir() + "/tree.db"
	entire := massivepoints.NewUniformBound(2, 0, 100)

	provider, err := Open(path, JSONCodec[string]{}, entire, 4)
	c.Assert(err, qt.IsNil)
	tree := massivepoints.NewQuadTree[string, int64](provider)
	session, err := tree.BeginUpdateSession(ctx)
	c.Assert(err, qt.IsNil)
	_, err = session.InsertPoint(ctx, massivepoints.NewPoint(42, 7), "kept")
	c.Assert(err, qt.IsNil)
	c.Assert(session.Finish(ctx), qt.IsNil)
	c.Assert(provider.Close(), qt.IsNil)

	// Reopening without an expected bound adopts the stored one.
	provider, err = Open[string](path, JSONCodec[string]{}, nil, 0)
	c.Assert(err, qt.IsNil)
	defer provider.Close()
	tree = massivepoints.NewQuadTree[string, int64](provider)
	session, err = tree.BeginSession(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(session.Entire().Equal(entire), qt.IsTrue)
	c.Assert(session.MaxNodePoints(), qt.Equals, 4)
	items, err := session.LookupPoint(ctx, massivepoints.NewPoint(42, 7))
	c.Assert(err, qt.IsNil)
	c.Assert(sortedValues(items), qt.DeepEquals, []string{"kept"})
	c.Assert(session.Finish(ctx), qt.IsNil)
}

func TestSQLiteReopenRejectsMismatchedBound(t *testing.T) {
	c := qt.New(t)
	path := t.TempDir() + "/tree.db"

	provider, err := Open(path, JSONCodec[string]{}, massivepoints.NewUniformBound(2, 0, 100), 4)
	c.Assert(err, qt.IsNil)
	c.Assert(provider.Close(), qt.IsNil)

	_, err = Open(path, JSONCodec[string]{}, massivepoints.NewUniformBound(3, 0, 1), 4)
	c.Assert(err, qt.IsNotNil)
}

func TestSQLiteCodecRoundtrip(t *testing.T) {
	type payload struct {
		Name  string
		Count int
	}

	c := qt.New(t)
	ctx := context.Background()
	provider, err := Open(
		t.TempDir()+"/tree.db",
		JSONCodec[payload]{},
		massivepoints.NewUniformBound(2, 0, 100), 4)
	c.Assert(err, qt.IsNil)
	defer provider.Close()

	tree := massivepoints.NewQuadTree[payload, int64](provider)
	session, err := tree.BeginUpdateSession(ctx)
	c.Assert(err, qt.IsNil)
	want := payload{Name: "sensor-7", Count: 3}
	_, err = session.InsertPoint(ctx, massivepoints.NewPoint(1, 2), want)
	c.Assert(err, qt.IsNil)
	items, err := session.LookupPoint(ctx, massivepoints.NewPoint(1, 2))
	c.Assert(err, qt.IsNil)
	c.Assert(items, qt.HasLen, 1)
	c.Assert(items[0].Value, qt.Equals, want)
	c.Assert(session.Finish(ctx), qt.IsNil)
}

func TestSQLiteReadOnlySessionRejectsWrites(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	provider := newTestProvider(t, 4)
	tree := massivepoints.NewQuadTree[string, int64](provider)

	session, err := tree.BeginSession(ctx)
	c.Assert(err, qt.IsNil)
	defer session.Finish(ctx)
	_, err = session.InsertPoint(ctx, massivepoints.NewPoint(1, 1), "nope")
	c.Assert(err, qt.ErrorIs, massivepoints.ErrReadOnlySession)
}

func TestSQLiteRemovePointRemains(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	provider := newTestProvider(t, 8)

	session, err := provider.BeginSession(ctx, true)
	c.Assert(err, qt.IsNil)
	items := []massivepoints.PointItem[string]{
		massivepoints.NewPointItem(massivepoints.NewPoint(10, 10), "a"),
		massivepoints.NewPointItem(massivepoints.NewPoint(10, 10), "b"),
		massivepoints.NewPointItem(massivepoints.NewPoint(20, 20), "c"),
	}
	_, err = session.InsertPoints(ctx, session.RootID(), items, 0, false)
	c.Assert(err, qt.IsNil)

	results, err := session.RemovePoint(ctx, session.RootID(), massivepoints.NewPoint(10, 10), true)
	c.Assert(err, qt.IsNil)
	c.Assert(results.Removed, qt.Equals, int64(2))
	c.Assert(results.Remains, qt.Equals, 1)

	results, err = session.RemoveBound(ctx, session.RootID(), session.Entire(), false)
	c.Assert(err, qt.IsNil)
	c.Assert(results.Removed, qt.Equals, int64(1))
	c.Assert(results.Remains, qt.Equals, massivepoints.RemainsUnknown)
	c.Assert(session.Finish(ctx), qt.IsNil)
}
