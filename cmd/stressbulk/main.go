// Command stressbulk endlessly checks that bulk insertion and
// one-by-one insertion build equivalent trees for random point sets.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/kekyo/massivepoints"
)

func main() {
	ctx := context.Background()

	for attempt := 0; ; attempt++ {
		fmt.Println("attempt #", attempt)

		entire := massivepoints.NewUniformBound(2, 0, 1000)
		items := make([]massivepoints.PointItem[int], 10000)
		for i := range items {
			p := massivepoints.NewPoint(
				entire[0].Origin+rand.Float64()*entire[0].Size(),
				entire[1].Origin+rand.Float64()*entire[1].Size())
			items[i] = massivepoints.NewPointItem(p, i)
		}

		single := massivepoints.NewQuadTree[int, int](
			massivepoints.NewInMemoryDataProvider[int](entire, 16))
		bulk := massivepoints.NewQuadTree[int, int](
			massivepoints.NewInMemoryDataProvider[int](entire, 16))

		insertOneByOne(ctx, single, items)
		insertBulk(ctx, bulk, items)

		a := collect(ctx, single, entire)
		b := collect(ctx, bulk, entire)
		if len(a) != len(b) {
			panic(fmt.Sprintf("differing sizes: %d != %d", len(a), len(b)))
		}
		for i := range a {
			if a[i] != b[i] {
				panic(fmt.Sprintf("differing item at %d: %v != %v", i, a[i], b[i]))
			}
		}
	}
}

func insertOneByOne(ctx context.Context, tree *massivepoints.QuadTree[int, int], items []massivepoints.PointItem[int]) {
	session, err := tree.BeginUpdateSession(ctx)
	if err != nil {
		panic(err)
	}
	for _, item := range items {
		if _, err := session.InsertPoint(ctx, item.Point, item.Value); err != nil {
			panic(err)
		}
	}
	if err := session.Finish(ctx); err != nil {
		panic(err)
	}
}

func insertBulk(ctx context.Context, tree *massivepoints.QuadTree[int, int], items []massivepoints.PointItem[int]) {
	session, err := tree.BeginUpdateSession(ctx)
	if err != nil {
		panic(err)
	}
	if _, err := session.InsertPointSlice(ctx, items, massivepoints.BulkInsertConfig{BlockSize: 1024}); err != nil {
		panic(err)
	}
	if err := session.Finish(ctx); err != nil {
		panic(err)
	}
}

func collect(ctx context.Context, tree *massivepoints.QuadTree[int, int], entire massivepoints.Bound) []int {
	session, err := tree.BeginSession(ctx)
	if err != nil {
		panic(err)
	}
	items, err := session.LookupBound(ctx, entire)
	if err != nil {
		panic(err)
	}
	if err := session.Finish(ctx); err != nil {
		panic(err)
	}
	values := make([]int, len(items))
	for i, item := range items {
		values[i] = item.Value
	}
	sort.Ints(values)
	return values
}
