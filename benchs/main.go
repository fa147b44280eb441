package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"time"

	"github.com/kekyo/massivepoints"
)

func main() {
	benchmarkBulkInsert()
}

func benchmarkBulkInsert() {
	f, _ := os.Create("cpu.prof")
	g, _ := os.Create("mem.prof")
	_ = pprof.StartCPUProfile(f)
	defer pprof.StopCPUProfile()
	defer func() { _ = pprof.WriteHeapProfile(g) }()

	ctx := context.Background()
	// Number of existing points in the tree
	n := 1000000
	// Points to be inserted afterwards
	toInsert := 10000

	entire := massivepoints.NewUniformBound(2, 0, 1000000)
	randomItems := func(count int) []massivepoints.PointItem[int] {
		items := make([]massivepoints.PointItem[int], count)
		for i := range items {
			items[i] = massivepoints.NewPointItem(massivepoints.NewPoint(
				rand.Float64()*1000000, rand.Float64()*1000000), i)
		}
		return items
	}

	for i := 0; i < 4; i++ {
		existing := randomItems(n)
		later := randomItems(toInsert)
		fmt.Printf("Generated point set %d\n", i)

		for j := 0; j < 5; j++ {
			provider := massivepoints.NewInMemoryDataProvider[int](entire, 1024)
			tree := massivepoints.NewQuadTree[int, int](provider)
			session, err := tree.BeginUpdateSession(ctx)
			if err != nil {
				panic(err)
			}
			if _, err := session.InsertPointSlice(ctx, existing, massivepoints.DefaultBulkInsertConfig()); err != nil {
				panic(err)
			}

			// Now insert the 10k points and measure time
			start := time.Now()
			for _, item := range later {
				if _, err := session.InsertPoint(ctx, item.Point, item.Value); err != nil {
					panic(err)
				}
			}
			elapsed := time.Since(start)
			if err := session.Finish(ctx); err != nil {
				panic(err)
			}
			fmt.Printf("Took %v to insert %d points\n", elapsed, toInsert)
		}
	}
}
