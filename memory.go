// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package massivepoints

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"golang.org/x/sync/errgroup"
)

// memoryRootID is fixed for the life of the provider; fresh child
// identifiers are allocated monotonically and never reused.
const memoryRootID = 0

// InMemoryDataProvider is the reference backend: two maps keyed by
// node id, one holding internal-node children and one holding leaf
// point lists. A given id is present in at most one of the two.
//
// Session exclusion is a reader/writer lock held for the entire
// session: read sessions share, update sessions are exclusive.
type InMemoryDataProvider[V any] struct {
	mu            sync.RWMutex
	entire        Bound
	maxNodePoints int
	nodes         map[int]*QuadNode[int]
	points        map[int][]PointItem[V]
	maxNodeID     int
}

var _ DataProvider[string, int] = (*InMemoryDataProvider[string])(nil)

// NewInMemoryDataProvider creates an empty in-memory store covering
// entire. maxNodePoints below 1 selects DefaultMaxNodePoints. The
// root starts out as a leaf with no points.
func NewInMemoryDataProvider[V any](entire Bound, maxNodePoints int) *InMemoryDataProvider[V] {
	if maxNodePoints < 1 {
		maxNodePoints = DefaultMaxNodePoints
	}
	return &InMemoryDataProvider[V]{
		entire:        entire,
		maxNodePoints: maxNodePoints,
		nodes:         map[int]*QuadNode[int]{},
		points:        map[int][]PointItem[V]{memoryRootID: nil},
		maxNodeID:     memoryRootID,
	}
}

// BeginSession acquires the store lock and returns a session bound to
// it. The lock is held until Finish.
func (p *InMemoryDataProvider[V]) BeginSession(ctx context.Context, willUpdate bool) (ProviderSession[V, int], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if willUpdate {
		p.mu.Lock()
	} else {
		p.mu.RLock()
	}
	return &memorySession[V]{provider: p, willUpdate: willUpdate}, nil
}

type memorySession[V any] struct {
	provider   *InMemoryDataProvider[V]
	willUpdate bool
	finished   bool
}

func (s *memorySession[V]) check(ctx context.Context, mutating bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.finished {
		return ErrSessionFinished
	}
	if mutating && !s.willUpdate {
		return ErrReadOnlySession
	}
	return nil
}

func (s *memorySession[V]) Entire() Bound {
	return s.provider.entire
}

func (s *memorySession[V]) MaxNodePoints() int {
	return s.provider.maxNodePoints
}

func (s *memorySession[V]) RootID() int {
	return memoryRootID
}

func (s *memorySession[V]) GetNode(ctx context.Context, id int) (*QuadNode[int], error) {
	if err := s.check(ctx, false); err != nil {
		return nil, err
	}
	return s.provider.nodes[id], nil
}

func (s *memorySession[V]) GetPointCount(ctx context.Context, id int) (int, error) {
	if err := s.check(ctx, false); err != nil {
		return 0, err
	}
	points, ok := s.provider.points[id]
	if !ok {
		return 0, fmt.Errorf("node %d is not a leaf", id)
	}
	return len(points), nil
}

func (s *memorySession[V]) InsertPoints(ctx context.Context, id int, items []PointItem[V], offset int, force bool) (int, error) {
	if err := s.check(ctx, true); err != nil {
		return 0, err
	}
	points, ok := s.provider.points[id]
	if !ok {
		return 0, fmt.Errorf("node %d is not a leaf", id)
	}
	n := len(items) - offset
	if !force {
		if room := s.provider.maxNodePoints - len(points); room < n {
			n = room
		}
		if n <= 0 {
			return 0, nil
		}
	}
	s.provider.points[id] = append(points, items[offset:offset+n]...)
	return n, nil
}

func (s *memorySession[V]) Distribute(ctx context.Context, id int, childBounds []Bound) (*QuadNode[int], error) {
	if err := s.check(ctx, true); err != nil {
		return nil, err
	}
	points, ok := s.provider.points[id]
	if !ok {
		return nil, fmt.Errorf("node %d is not a leaf", id)
	}

	// Partition into per-child buckets in parallel. Each bucket is
	// goroutine-local, so the buckets are assembled without
	// cross-goroutine contention.
	buckets := make([]*ExpandableArray[PointItem[V]], len(childBounds))
	var g errgroup.Group
	for i, bound := range childBounds {
		g.Go(func() error {
			bucket := NewExpandableArray[PointItem[V]]()
			for _, item := range points {
				if bound.IsWithin(item.Point) {
					bucket.Append(item)
				}
			}
			buckets[i] = bucket
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, b := range buckets {
		total += b.Len()
	}
	if total != len(points) {
		return nil, fmt.Errorf("distribution lost points at node %d: had %d, partitioned %d", id, len(points), total)
	}

	node := &QuadNode[int]{ChildIDs: make([]int, len(childBounds))}
	for i, b := range buckets {
		s.provider.maxNodeID++
		childID := s.provider.maxNodeID
		node.ChildIDs[i] = childID
		s.provider.points[childID] = b.ToSlice()
	}
	delete(s.provider.points, id)
	s.provider.nodes[id] = node
	return node, nil
}

func (s *memorySession[V]) Aggregate(ctx context.Context, childIDs []int, toBound Bound, toID int) error {
	if err := s.check(ctx, true); err != nil {
		return err
	}
	if s.provider.nodes[toID] == nil {
		return fmt.Errorf("node %d is not an internal node", toID)
	}
	total := 0
	for _, childID := range childIDs {
		points, ok := s.provider.points[childID]
		if !ok {
			return fmt.Errorf("aggregation child %d is not a leaf", childID)
		}
		total += len(points)
	}
	merged := make([]PointItem[V], 0, total)
	for _, childID := range childIDs {
		for _, item := range s.provider.points[childID] {
			if !toBound.IsWithin(item.Point) {
				return fmt.Errorf("aggregation child %d holds %v outside %v", childID, item.Point, toBound)
			}
			merged = append(merged, item)
		}
		delete(s.provider.points, childID)
	}
	delete(s.provider.nodes, toID)
	s.provider.points[toID] = merged
	return nil
}

func (s *memorySession[V]) LookupPoint(ctx context.Context, id int, p Point) ([]PointItem[V], error) {
	if err := s.check(ctx, false); err != nil {
		return nil, err
	}
	points, ok := s.provider.points[id]
	if !ok {
		return nil, fmt.Errorf("node %d is not a leaf", id)
	}
	var results []PointItem[V]
	for _, item := range points {
		if item.Point.Equal(p) {
			results = append(results, item)
		}
	}
	return results, nil
}

func (s *memorySession[V]) LookupBound(ctx context.Context, id int, b Bound) ([]PointItem[V], error) {
	if err := s.check(ctx, false); err != nil {
		return nil, err
	}
	points, ok := s.provider.points[id]
	if !ok {
		return nil, fmt.Errorf("node %d is not a leaf", id)
	}
	var results []PointItem[V]
	for _, item := range points {
		if b.IsWithin(item.Point) {
			results = append(results, item)
		}
	}
	return results, nil
}

func (s *memorySession[V]) EnumerateBound(ctx context.Context, id int, b Bound) iter.Seq2[PointItem[V], error] {
	return func(yield func(PointItem[V], error) bool) {
		if err := s.check(ctx, false); err != nil {
			yield(PointItem[V]{}, err)
			return
		}
		points, ok := s.provider.points[id]
		if !ok {
			yield(PointItem[V]{}, fmt.Errorf("node %d is not a leaf", id))
			return
		}
		for _, item := range points {
			if err := ctx.Err(); err != nil {
				yield(PointItem[V]{}, err)
				return
			}
			if b.IsWithin(item.Point) {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

func (s *memorySession[V]) RemovePoint(ctx context.Context, id int, p Point, includeRemains bool) (RemoveResults, error) {
	return s.removeWith(ctx, id, includeRemains, func(item PointItem[V]) bool {
		return item.Point.Equal(p)
	})
}

func (s *memorySession[V]) RemoveBound(ctx context.Context, id int, b Bound, includeRemains bool) (RemoveResults, error) {
	return s.removeWith(ctx, id, includeRemains, func(item PointItem[V]) bool {
		return b.IsWithin(item.Point)
	})
}

func (s *memorySession[V]) removeWith(ctx context.Context, id int, includeRemains bool, match func(PointItem[V]) bool) (RemoveResults, error) {
	if err := s.check(ctx, true); err != nil {
		return RemoveResults{}, err
	}
	points, ok := s.provider.points[id]
	if !ok {
		return RemoveResults{}, fmt.Errorf("node %d is not a leaf", id)
	}
	kept := points[:0]
	removed := int64(0)
	for _, item := range points {
		if match(item) {
			removed++
		} else {
			kept = append(kept, item)
		}
	}
	s.provider.points[id] = kept
	results := RemoveResults{Removed: removed, Remains: RemainsUnknown}
	if includeRemains {
		results.Remains = len(kept)
	}
	return results, nil
}

func (s *memorySession[V]) Flush(ctx context.Context) error {
	// Nothing to checkpoint, the store is volatile.
	return s.check(ctx, false)
}

func (s *memorySession[V]) Finish(ctx context.Context) error {
	if s.finished {
		return ErrSessionFinished
	}
	s.finished = true
	if s.willUpdate {
		s.provider.mu.Unlock()
	} else {
		s.provider.mu.RUnlock()
	}
	return nil
}
