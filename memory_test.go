package massivepoints

import (
	"context"
	"errors"
	"testing"
)

func beginMemorySession(t *testing.T, provider *InMemoryDataProvider[string], willUpdate bool) ProviderSession[string, int] {
	t.Helper()
	session, err := provider.BeginSession(context.Background(), willUpdate)
	if err != nil {
		t.Fatalf("error beginning session: %v", err)
	}
	return session
}

func TestMemoryInsertClampsAtCapacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := NewInMemoryDataProvider[string](NewUniformBound(2, 0, 100), 4)
	session := beginMemorySession(t, provider, true)
	defer session.Finish(ctx)

	items := []PointItem[string]{
		NewPointItem(NewPoint(1, 1), "a"),
		NewPointItem(NewPoint(2, 2), "b"),
		NewPointItem(NewPoint(3, 3), "c"),
		NewPointItem(NewPoint(4, 4), "d"),
		NewPointItem(NewPoint(5, 5), "e"),
		NewPointItem(NewPoint(6, 6), "f"),
	}
	inserted, err := session.InsertPoints(ctx, session.RootID(), items, 0, false)
	if err != nil {
		t.Fatalf("error inserting: %v", err)
	}
	if inserted != 4 {
		t.Fatalf("inserted %d, expected the capacity prefix of 4", inserted)
	}

	// A full leaf accepts nothing more without force.
	inserted, err = session.InsertPoints(ctx, session.RootID(), items, 4, false)
	if err != nil {
		t.Fatalf("error inserting: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("inserted %d into a full leaf, expected 0", inserted)
	}

	// Force appends the whole remainder.
	inserted, err = session.InsertPoints(ctx, session.RootID(), items, 4, true)
	if err != nil {
		t.Fatalf("error inserting: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("force-inserted %d, expected 2", inserted)
	}
	count, err := session.GetPointCount(ctx, session.RootID())
	if err != nil {
		t.Fatalf("error counting: %v", err)
	}
	if count != 6 {
		t.Fatalf("leaf holds %d points, expected 6", count)
	}
}

func TestMemoryDistributePartitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	entire := NewBound(NewAxis(0, 100), NewAxis(0, 100))
	provider := NewInMemoryDataProvider[string](entire, 8)
	session := beginMemorySession(t, provider, true)
	defer session.Finish(ctx)

	items := []PointItem[string]{
		NewPointItem(NewPoint(10, 10), "ll"),
		NewPointItem(NewPoint(60, 10), "lr"),
		NewPointItem(NewPoint(10, 60), "ul"),
		NewPointItem(NewPoint(60, 60), "ur"),
	}
	if _, err := session.InsertPoints(ctx, session.RootID(), items, 0, false); err != nil {
		t.Fatalf("error inserting: %v", err)
	}

	node, err := session.Distribute(ctx, session.RootID(), entire.ChildBounds())
	if err != nil {
		t.Fatalf("error distributing: %v", err)
	}
	if len(node.ChildIDs) != 4 {
		t.Fatalf("distribute produced %d children, expected 4", len(node.ChildIDs))
	}

	// The source leaf became an internal node.
	got, err := session.GetNode(ctx, session.RootID())
	if err != nil {
		t.Fatalf("error reading node: %v", err)
	}
	if got == nil {
		t.Fatal("the root must be an internal node after distribute")
	}

	// Each point went to the single child containing it.
	for i, expected := range []string{"ll", "lr", "ul", "ur"} {
		points, err := session.LookupBound(ctx, node.ChildIDs[i], entire)
		if err != nil {
			t.Fatalf("error looking up child %d: %v", i, err)
		}
		if len(points) != 1 || points[0].Value != expected {
			t.Fatalf("child %d holds %v, expected single %q", i, points, expected)
		}
	}
}

func TestMemoryDistributeAllocatesFreshIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	entire := NewBound(NewAxis(0, 100), NewAxis(0, 100))
	provider := NewInMemoryDataProvider[string](entire, 8)
	session := beginMemorySession(t, provider, true)
	defer session.Finish(ctx)

	node, err := session.Distribute(ctx, session.RootID(), entire.ChildBounds())
	if err != nil {
		t.Fatalf("error distributing: %v", err)
	}
	seen := map[int]bool{session.RootID(): true}
	for _, id := range node.ChildIDs {
		if seen[id] {
			t.Fatalf("child id %d is not fresh", id)
		}
		seen[id] = true
	}
}

func TestMemoryAggregate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	entire := NewBound(NewAxis(0, 100), NewAxis(0, 100))
	provider := NewInMemoryDataProvider[string](entire, 8)
	session := beginMemorySession(t, provider, true)
	defer session.Finish(ctx)

	items := []PointItem[string]{
		NewPointItem(NewPoint(10, 10), "a"),
		NewPointItem(NewPoint(60, 60), "b"),
	}
	if _, err := session.InsertPoints(ctx, session.RootID(), items, 0, false); err != nil {
		t.Fatalf("error inserting: %v", err)
	}
	node, err := session.Distribute(ctx, session.RootID(), entire.ChildBounds())
	if err != nil {
		t.Fatalf("error distributing: %v", err)
	}

	if err := session.Aggregate(ctx, node.ChildIDs, entire, session.RootID()); err != nil {
		t.Fatalf("error aggregating: %v", err)
	}
	got, err := session.GetNode(ctx, session.RootID())
	if err != nil {
		t.Fatalf("error reading node: %v", err)
	}
	if got != nil {
		t.Fatal("the root must be a leaf again after aggregate")
	}
	count, err := session.GetPointCount(ctx, session.RootID())
	if err != nil {
		t.Fatalf("error counting: %v", err)
	}
	if count != 2 {
		t.Fatalf("aggregated leaf holds %d points, expected 2", count)
	}

	// The child leaves are gone.
	for _, id := range node.ChildIDs {
		if _, err := session.GetPointCount(ctx, id); err == nil {
			t.Fatalf("child %d still exists after aggregation", id)
		}
	}
}

func TestMemoryAggregateRejectsInternalChild(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	entire := NewBound(NewAxis(0, 100), NewAxis(0, 100))
	provider := NewInMemoryDataProvider[string](entire, 8)
	session := beginMemorySession(t, provider, true)
	defer session.Finish(ctx)

	node, err := session.Distribute(ctx, session.RootID(), entire.ChildBounds())
	if err != nil {
		t.Fatalf("error distributing: %v", err)
	}
	// Turn one child into an internal node; aggregating across it
	// must fail.
	childBounds := entire.ChildBounds()
	if _, err := session.Distribute(ctx, node.ChildIDs[0], childBounds[0].ChildBounds()); err != nil {
		t.Fatalf("error distributing child: %v", err)
	}
	if err := session.Aggregate(ctx, node.ChildIDs, entire, session.RootID()); err == nil {
		t.Fatal("aggregation across an internal child must fail")
	}
}

func TestMemoryRemoveRemains(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := NewInMemoryDataProvider[string](NewUniformBound(2, 0, 100), 8)
	session := beginMemorySession(t, provider, true)
	defer session.Finish(ctx)

	items := []PointItem[string]{
		NewPointItem(NewPoint(10, 10), "a"),
		NewPointItem(NewPoint(10, 10), "b"),
		NewPointItem(NewPoint(20, 20), "c"),
	}
	if _, err := session.InsertPoints(ctx, session.RootID(), items, 0, false); err != nil {
		t.Fatalf("error inserting: %v", err)
	}

	results, err := session.RemovePoint(ctx, session.RootID(), NewPoint(10, 10), true)
	if err != nil {
		t.Fatalf("error removing: %v", err)
	}
	if results.Removed != 2 || results.Remains != 1 {
		t.Fatalf("remove results are %+v, expected removed 2, remains 1", results)
	}

	results, err = session.RemoveBound(ctx, session.RootID(), NewUniformBound(2, 0, 100), false)
	if err != nil {
		t.Fatalf("error removing: %v", err)
	}
	if results.Removed != 1 || results.Remains != RemainsUnknown {
		t.Fatalf("remove results are %+v, expected removed 1, remains unknown", results)
	}
}

func TestMemoryReadOnlySessionRejectsWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := NewInMemoryDataProvider[string](NewUniformBound(2, 0, 100), 8)
	session := beginMemorySession(t, provider, false)
	defer session.Finish(ctx)

	_, err := session.InsertPoints(ctx, session.RootID(), []PointItem[string]{NewPointItem(NewPoint(1, 1), "a")}, 0, false)
	if !errors.Is(err, ErrReadOnlySession) {
		t.Fatalf("got %v, expected ErrReadOnlySession", err)
	}
}

func TestMemorySessionFinishTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := NewInMemoryDataProvider[string](NewUniformBound(2, 0, 100), 8)
	session := beginMemorySession(t, provider, true)
	if err := session.Finish(ctx); err != nil {
		t.Fatalf("error finishing: %v", err)
	}
	if err := session.Finish(ctx); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("got %v, expected ErrSessionFinished", err)
	}
}

func TestMemoryCancellation(t *testing.T) {
	t.Parallel()

	provider := NewInMemoryDataProvider[string](NewUniformBound(2, 0, 100), 8)
	session := beginMemorySession(t, provider, true)
	defer session.Finish(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := session.GetNode(ctx, session.RootID()); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, expected context.Canceled", err)
	}
}
