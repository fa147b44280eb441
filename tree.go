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
	"errors"
	"fmt"
	"iter"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TreeSession runs tree operations against one provider session.
// Every operation starts at the root node and recurses into children
// whose bounds match the predicate, delegating leaf-level work to the
// backend.
//
// A session is safe for use by the goroutines an operation fans out
// internally, but callers must not invoke operations concurrently; a
// mutation committed by one call is visible to the next call of the
// same session.
type TreeSession[V any, ID comparable] struct {
	provider   ProviderSession[V, ID]
	willUpdate bool
	poisoned   bool
	finished   bool
}

// NewTreeSession wraps an already-begun provider session. willUpdate
// must match the access the provider session was begun with.
func NewTreeSession[V any, ID comparable](provider ProviderSession[V, ID], willUpdate bool) *TreeSession[V, ID] {
	return &TreeSession[V, ID]{provider: provider, willUpdate: willUpdate}
}

// Entire returns the root bound all stored points lie within.
func (s *TreeSession[V, ID]) Entire() Bound {
	return s.provider.Entire()
}

// MaxNodePoints returns the backend's leaf capacity.
func (s *TreeSession[V, ID]) MaxNodePoints() int {
	return s.provider.MaxNodePoints()
}

func (s *TreeSession[V, ID]) ready(mutating bool) error {
	if s.finished {
		return ErrSessionFinished
	}
	if s.poisoned {
		return ErrSessionPoisoned
	}
	if mutating && !s.willUpdate {
		return ErrReadOnlySession
	}
	return nil
}

// poison marks the session unusable after a failed update. Validation
// and cancellation failures do not poison: the former happen before
// any mutation, and cancellation leaves already-committed work in a
// consistent state the caller may keep using.
func (s *TreeSession[V, ID]) poison(err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	s.poisoned = true
}

func (s *TreeSession[V, ID]) validatePoint(p Point) error {
	entire := s.provider.Entire()
	if p.Dimension() != entire.Dimension() {
		return fmt.Errorf("%w: point %v has %d axes, entire bound has %d",
			ErrDimensionMismatch, p, p.Dimension(), entire.Dimension())
	}
	return nil
}

func (s *TreeSession[V, ID]) validateBound(b Bound) error {
	entire := s.provider.Entire()
	if b.Dimension() != entire.Dimension() {
		return fmt.Errorf("%w: bound %v has %d axes, entire bound has %d",
			ErrDimensionMismatch, b, b.Dimension(), entire.Dimension())
	}
	return nil
}

///////////////////////////////////////////////////////////////////////
// Insertion

// InsertPoint stores one point/value pair and returns the depth of
// the leaf it landed on, counted from 1 at the root. The depth is a
// performance hint only.
func (s *TreeSession[V, ID]) InsertPoint(ctx context.Context, p Point, value V) (int, error) {
	if err := s.ready(true); err != nil {
		return 0, err
	}
	if err := s.validatePoint(p); err != nil {
		return 0, err
	}
	entire := s.provider.Entire()
	if !entire.IsWithin(p) {
		return 0, fmt.Errorf("%w: %v is not within %v", ErrOutOfBounds, p, entire)
	}
	depth, err := s.insertPoint(ctx, s.provider.RootID(), entire, NewPointItem(p, value), 1)
	s.poison(err)
	return depth, err
}

func (s *TreeSession[V, ID]) insertPoint(ctx context.Context, id ID, bound Bound, item PointItem[V], depth int) (int, error) {
	node, err := s.provider.GetNode(ctx, id)
	if err != nil {
		return 0, err
	}
	if node == nil {
		// An empty bound can not be subdivided: its children would
		// repeat the bound and insertion would never make progress,
		// so the leaf absorbs colliding points past capacity.
		inserted, err := s.provider.InsertPoints(ctx, id, []PointItem[V]{item}, 0, bound.IsEmpty())
		if err != nil {
			return 0, err
		}
		if inserted >= 1 {
			return depth, nil
		}
		// The leaf is full and subdividable.
		node, err = s.provider.Distribute(ctx, id, bound.ChildBounds())
		if err != nil {
			return 0, err
		}
	}
	for i, childBound := range bound.ChildBounds() {
		if childBound.IsWithin(item.Point) {
			return s.insertPoint(ctx, node.ChildIDs[i], childBound, item, depth+1)
		}
	}
	return 0, fmt.Errorf("%w: %v is not within %v", ErrOutOfBounds, item.Point, bound)
}

// InsertPoints bulk-inserts a lazy, possibly huge sequence of items,
// staging them into blocks of cfg.BlockSize, and returns the maximum
// depth any point landed at. Subdivision cost is amortized by pushing
// whole prefixes of each block into leaves at once.
func (s *TreeSession[V, ID]) InsertPoints(ctx context.Context, items iter.Seq[PointItem[V]], cfg BulkInsertConfig) (int, error) {
	if err := s.ready(true); err != nil {
		return 0, err
	}
	blockSize := cfg.BlockSize
	if blockSize < 1 {
		blockSize = DefaultBlockSize
	}
	entire := s.provider.Entire()
	rootID := s.provider.RootID()

	maxDepth := 0
	block := make([]PointItem[V], 0, blockSize)
	flush := func() error {
		depth, err := s.bulkInsert(ctx, rootID, entire, block, 0, 1)
		if err != nil {
			return err
		}
		if depth > maxDepth {
			maxDepth = depth
		}
		block = block[:0]
		return nil
	}
	for item := range items {
		if err := s.validatePoint(item.Point); err != nil {
			return maxDepth, err
		}
		if !entire.IsWithin(item.Point) {
			err := fmt.Errorf("%w: %v is not within %v", ErrOutOfBounds, item.Point, entire)
			return maxDepth, err
		}
		block = append(block, item)
		if len(block) == blockSize {
			if err := flush(); err != nil {
				s.poison(err)
				return maxDepth, err
			}
		}
	}
	if len(block) > 0 {
		if err := flush(); err != nil {
			s.poison(err)
			return maxDepth, err
		}
	}
	return maxDepth, nil
}

// InsertPointSlice bulk-inserts an in-memory slice of items.
func (s *TreeSession[V, ID]) InsertPointSlice(ctx context.Context, items []PointItem[V], cfg BulkInsertConfig) (int, error) {
	return s.InsertPoints(ctx, func(yield func(PointItem[V]) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}, cfg)
}

func (s *TreeSession[V, ID]) bulkInsert(ctx context.Context, id ID, bound Bound, points []PointItem[V], offset, depth int) (int, error) {
	node, err := s.provider.GetNode(ctx, id)
	if err != nil {
		return 0, err
	}
	if node == nil {
		inserted, err := s.provider.InsertPoints(ctx, id, points, offset, bound.IsEmpty())
		if err != nil {
			return 0, err
		}
		offset += inserted
		if offset >= len(points) {
			return depth, nil
		}
		node, err = s.provider.Distribute(ctx, id, bound.ChildBounds())
		if err != nil {
			return 0, err
		}
	}

	// Partition the remaining points across the child bounds, one
	// goroutine per bucket so the buckets are built without
	// cross-goroutine contention.
	childBounds := bound.ChildBounds()
	buckets := make([]*ExpandableArray[PointItem[V]], len(childBounds))
	var g errgroup.Group
	for i, childBound := range childBounds {
		g.Go(func() error {
			bucket := NewExpandableArray[PointItem[V]]()
			for _, item := range points[offset:] {
				if childBound.IsWithin(item.Point) {
					bucket.Append(item)
				}
			}
			buckets[i] = bucket
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	maxDepth := depth
	for i, bucket := range buckets {
		if bucket.Len() == 0 {
			continue
		}
		childDepth, err := s.bulkInsert(ctx, node.ChildIDs[i], childBounds[i], bucket.ToSlice(), 0, depth+1)
		if err != nil {
			return 0, err
		}
		if childDepth > maxDepth {
			maxDepth = childDepth
		}
		// Drop the bucket before descending into the next one to
		// bound peak memory.
		buckets[i] = nil
	}
	return maxDepth, nil
}

///////////////////////////////////////////////////////////////////////
// Lookup

// LookupPoint returns all items stored exactly at p.
func (s *TreeSession[V, ID]) LookupPoint(ctx context.Context, p Point) ([]PointItem[V], error) {
	if err := s.ready(false); err != nil {
		return nil, err
	}
	if err := s.validatePoint(p); err != nil {
		return nil, err
	}
	entire := s.provider.Entire()
	if !entire.IsWithin(p) {
		return nil, nil
	}
	return s.lookupPoint(ctx, s.provider.RootID(), entire, p)
}

func (s *TreeSession[V, ID]) lookupPoint(ctx context.Context, id ID, bound Bound, p Point) ([]PointItem[V], error) {
	node, err := s.provider.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return s.provider.LookupPoint(ctx, id, p)
	}
	for i, childBound := range bound.ChildBounds() {
		if childBound.IsWithin(p) {
			return s.lookupPoint(ctx, node.ChildIDs[i], childBound, p)
		}
	}
	return nil, nil
}

// LookupBound returns all items whose point lies within b. Leaf
// results are collected concurrently; the order of the result is
// unspecified.
func (s *TreeSession[V, ID]) LookupBound(ctx context.Context, b Bound) ([]PointItem[V], error) {
	if err := s.ready(false); err != nil {
		return nil, err
	}
	if err := s.validateBound(b); err != nil {
		return nil, err
	}
	var (
		mu      sync.Mutex
		results []PointItem[V]
	)
	err := s.lookupBound(ctx, s.provider.RootID(), s.provider.Entire(), b, &mu, &results)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *TreeSession[V, ID]) lookupBound(ctx context.Context, id ID, bound, target Bound, mu *sync.Mutex, results *[]PointItem[V]) error {
	node, err := s.provider.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if node == nil {
		items, err := s.provider.LookupBound(ctx, id, target)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			mu.Lock()
			*results = append(*results, items...)
			mu.Unlock()
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, childBound := range bound.ChildBounds() {
		if !childBound.Intersects(target) {
			continue
		}
		childID := node.ChildIDs[i]
		g.Go(func() error {
			return s.lookupBound(gctx, childID, childBound, target, mu, results)
		})
	}
	return g.Wait()
}

// EnumerateBound lazily yields all items whose point lies within b,
// without materializing the result. The sequence mirrors the
// recursion: each matching leaf is visited exactly once, in an
// unspecified order, when the consumer pulls it. Iteration stops
// after a non-nil error is yielded.
func (s *TreeSession[V, ID]) EnumerateBound(ctx context.Context, b Bound) iter.Seq2[PointItem[V], error] {
	return func(yield func(PointItem[V], error) bool) {
		if err := s.ready(false); err != nil {
			yield(PointItem[V]{}, err)
			return
		}
		if err := s.validateBound(b); err != nil {
			yield(PointItem[V]{}, err)
			return
		}
		s.enumerateBound(ctx, s.provider.RootID(), s.provider.Entire(), b, yield)
	}
}

// enumerateBound returns false once the consumer stopped or an error
// was yielded.
func (s *TreeSession[V, ID]) enumerateBound(ctx context.Context, id ID, bound, target Bound, yield func(PointItem[V], error) bool) bool {
	node, err := s.provider.GetNode(ctx, id)
	if err != nil {
		yield(PointItem[V]{}, err)
		return false
	}
	if node == nil {
		for item, err := range s.provider.EnumerateBound(ctx, id, target) {
			if err != nil {
				yield(PointItem[V]{}, err)
				return false
			}
			if !yield(item, nil) {
				return false
			}
		}
		return true
	}
	for i, childBound := range bound.ChildBounds() {
		if !childBound.Intersects(target) {
			continue
		}
		if !s.enumerateBound(ctx, node.ChildIDs[i], childBound, target, yield) {
			return false
		}
	}
	return true
}

///////////////////////////////////////////////////////////////////////
// Removal

// RemovePoint removes all items stored exactly at p and returns the
// removed count. With cfg.Shrink, internal nodes whose descendant
// count dropped below the leaf capacity are collapsed bottom-up into
// single leaves.
func (s *TreeSession[V, ID]) RemovePoint(ctx context.Context, p Point, cfg RemoveConfig) (int64, error) {
	if err := s.ready(true); err != nil {
		return 0, err
	}
	if err := s.validatePoint(p); err != nil {
		return 0, err
	}
	entire := s.provider.Entire()
	if !entire.IsWithin(p) {
		return 0, nil
	}
	results, err := s.removeStep(ctx, s.provider.RootID(), entire, cfg.Shrink, func(ctx context.Context, id ID) (RemoveResults, error) {
		return s.provider.RemovePoint(ctx, id, p, cfg.Shrink)
	}, func(b Bound) bool {
		return b.IsWithin(p)
	})
	s.poison(err)
	return results.Removed, err
}

// RemoveBound removes all items whose point lies within b and returns
// the removed count.
func (s *TreeSession[V, ID]) RemoveBound(ctx context.Context, b Bound, cfg RemoveConfig) (int64, error) {
	if err := s.ready(true); err != nil {
		return 0, err
	}
	if err := s.validateBound(b); err != nil {
		return 0, err
	}
	results, err := s.removeStep(ctx, s.provider.RootID(), s.provider.Entire(), cfg.Shrink, func(ctx context.Context, id ID) (RemoveResults, error) {
		return s.provider.RemoveBound(ctx, id, b, cfg.Shrink)
	}, func(childBound Bound) bool {
		return childBound.Intersects(b)
	})
	s.poison(err)
	return results.Removed, err
}

// removeStep is one level of the removal walk. removeLeaf performs
// the leaf-level removal and visit decides which children the
// predicate reaches. With shrink, Remains carries the number of
// points left under the node, saturated at MaxNodePoints: counting
// past the aggregation threshold is pointless, the node can no longer
// shrink. Aggregation is strictly bottom-up, so by the time a node
// aggregates every shrunk child is already a leaf.
func (s *TreeSession[V, ID]) removeStep(ctx context.Context, id ID, bound Bound, shrink bool, removeLeaf func(context.Context, ID) (RemoveResults, error), visit func(Bound) bool) (RemoveResults, error) {
	node, err := s.provider.GetNode(ctx, id)
	if err != nil {
		return RemoveResults{}, err
	}
	if node == nil {
		return removeLeaf(ctx, id)
	}

	maxNodePoints := s.provider.MaxNodePoints()
	removed := int64(0)
	remains := 0
	for i, childBound := range bound.ChildBounds() {
		childID := node.ChildIDs[i]
		if visit(childBound) {
			childResults, err := s.removeStep(ctx, childID, childBound, shrink, removeLeaf, visit)
			if err != nil {
				return RemoveResults{}, err
			}
			removed += childResults.Removed
			if shrink && remains < maxNodePoints {
				remains += childResults.Remains
			}
			continue
		}
		if !shrink || remains >= maxNodePoints {
			// Not computing remains, or already past the
			// aggregation threshold; skip the counting round trip.
			continue
		}
		childNode, err := s.provider.GetNode(ctx, childID)
		if err != nil {
			return RemoveResults{}, err
		}
		if childNode != nil {
			// Aggregation needs every child to be a leaf, and an
			// unvisited child stays whatever it is. Saturate so this
			// node keeps its internal child untouched.
			remains = maxNodePoints
			continue
		}
		count, err := s.provider.GetPointCount(ctx, childID)
		if err != nil {
			return RemoveResults{}, err
		}
		remains += count
	}

	if !shrink {
		return RemoveResults{Removed: removed, Remains: RemainsUnknown}, nil
	}
	if remains < maxNodePoints {
		if err := s.provider.Aggregate(ctx, node.ChildIDs, bound, id); err != nil {
			return RemoveResults{}, err
		}
	} else if remains > maxNodePoints {
		remains = maxNodePoints
	}
	return RemoveResults{Removed: removed, Remains: remains}, nil
}

///////////////////////////////////////////////////////////////////////
// Lifecycle

// Flush asks the backend for a partial durability checkpoint.
func (s *TreeSession[V, ID]) Flush(ctx context.Context) error {
	if err := s.ready(false); err != nil {
		return err
	}
	err := s.provider.Flush(ctx)
	if s.willUpdate {
		s.poison(err)
	}
	return err
}

// Finish commits the session and releases the backend. The session
// must not be used afterwards.
func (s *TreeSession[V, ID]) Finish(ctx context.Context) error {
	if s.finished {
		return ErrSessionFinished
	}
	s.finished = true
	return s.provider.Finish(ctx)
}
