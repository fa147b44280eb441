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
	"iter"
)

// QuadNode is an internal (non-leaf) node: an ordered array of 2^D
// child node identifiers, index order matching Bound.ChildBounds.
// Leaf nodes are never materialized as QuadNode; a leaf is any
// identifier for which GetNode returns nil and the backend stores a
// bounded point list instead.
type QuadNode[ID comparable] struct {
	ChildIDs []ID
}

// RemainsUnknown is the Remains sentinel when the remaining count was
// not requested.
const RemainsUnknown = -1

// RemoveResults carries the outcome of a leaf-level removal. Remains
// is RemainsUnknown when includeRemains was false.
type RemoveResults struct {
	Removed int64
	Remains int
}

// DataProvider is a factory of provider sessions over one backing
// store. A provider grants a session either shared read access or
// exclusive write access; no read session observes partial updates
// from an in-flight update session.
type DataProvider[V any, ID comparable] interface {
	// BeginSession acquires the store. A session begun with
	// willUpdate holds the store exclusively until Finish; read
	// sessions share.
	BeginSession(ctx context.Context, willUpdate bool) (ProviderSession[V, ID], error)
}

// ProviderSession is a scoped acquisition of a backing store: a
// per-session view of the node map and the per-node point lists the
// tree engine operates on. Every method taking a context is a
// suspension point and may fail with a backend storage error or with
// the context's error; the engine propagates both unchanged.
//
// Identifier discipline: the root identifier is fixed for the life of
// the store, child identifiers are allocated monotonically by
// Distribute and never reused after Aggregate. A given identifier is
// either an internal node or a leaf, never both.
type ProviderSession[V any, ID comparable] interface {
	// Entire returns the root bound. Constant for the session's
	// lifetime.
	Entire() Bound

	// MaxNodePoints returns the leaf capacity, at least 1.
	MaxNodePoints() int

	// RootID returns the identifier of the root node.
	RootID() ID

	// GetNode returns the internal node stored at id, or nil when id
	// is a leaf.
	GetNode(ctx context.Context, id ID) (*QuadNode[ID], error)

	// GetPointCount returns the number of points held by leaf id.
	GetPointCount(ctx context.Context, id ID) (int, error)

	// InsertPoints appends a prefix of items[offset:] to leaf id and
	// returns the appended count. When force is set all remaining
	// items are appended regardless of capacity; otherwise at most
	// MaxNodePoints minus the current count are taken.
	InsertPoints(ctx context.Context, id ID, items []PointItem[V], offset int, force bool) (int, error)

	// Distribute converts leaf id into an internal node: allocates
	// one fresh identifier per child bound, partitions the leaf's
	// points into the new child leaves by containment, and installs
	// the node entry in place of the point list.
	Distribute(ctx context.Context, id ID, childBounds []Bound) (*QuadNode[ID], error)

	// Aggregate converts internal node toID back into a leaf holding
	// the concatenated point lists of childIDs. All children must be
	// leaves and their points must lie within toBound; providers fail
	// with a storage error otherwise.
	Aggregate(ctx context.Context, childIDs []ID, toBound Bound, toID ID) error

	// LookupPoint returns all items at leaf id whose point equals p.
	LookupPoint(ctx context.Context, id ID, p Point) ([]PointItem[V], error)

	// LookupBound returns all items at leaf id whose point lies
	// within b.
	LookupBound(ctx context.Context, id ID, b Bound) ([]PointItem[V], error)

	// EnumerateBound lazily yields the items at leaf id whose point
	// lies within b. Iteration stops after a non-nil error is
	// yielded.
	EnumerateBound(ctx context.Context, id ID, b Bound) iter.Seq2[PointItem[V], error]

	// RemovePoint removes all items at leaf id whose point equals p.
	RemovePoint(ctx context.Context, id ID, p Point, includeRemains bool) (RemoveResults, error)

	// RemoveBound removes all items at leaf id whose point lies
	// within b.
	RemoveBound(ctx context.Context, id ID, b Bound, includeRemains bool) (RemoveResults, error)

	// Flush writes a partial durability checkpoint. May be a no-op.
	Flush(ctx context.Context) error

	// Finish commits the session and releases the store. Any use of
	// the session after Finish is undefined.
	Finish(ctx context.Context) error
}
