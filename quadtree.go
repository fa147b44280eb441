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

// Package massivepoints is a spatial index for N-dimensional
// coordinate points paired with arbitrary values, able to hold very
// large data sets while keeping each node's point count bounded.
//
// The index is a recursive spatial partitioning of an axis-aligned
// hyper-rectangle: each internal node splits its bound into 2^D equal
// half-open children, and each leaf stores at most MaxNodePoints
// items. Leaves overflow into fresh subdivisions on insertion and,
// optionally, sparse subtrees collapse back into leaves on removal.
//
// Storage lives behind the DataProvider/ProviderSession contract. The
// package ships a volatile in-memory provider; the sqlite subpackage
// persists the tree in a SQLite database. The engine is generic both
// in the stored value type and in the node identifier type the
// backend allocates.
//
// All interaction happens through sessions: a read session shares the
// store with other readers, an update session holds it exclusively.
//
//	tree := massivepoints.NewQuadTree[string, int](
//		massivepoints.NewInMemoryDataProvider[string](
//			massivepoints.NewUniformBound(2, 0, 100), 1024))
//	session, _ := tree.BeginUpdateSession(ctx)
//	defer session.Finish(ctx)
//	session.InsertPoint(ctx, massivepoints.NewPoint(10, 10), "a")
package massivepoints

import "context"

// QuadTree owns a data provider and hands out tree sessions over it.
type QuadTree[V any, ID comparable] struct {
	provider DataProvider[V, ID]
}

// NewQuadTree creates a tree over the given provider.
func NewQuadTree[V any, ID comparable](provider DataProvider[V, ID]) *QuadTree[V, ID] {
	return &QuadTree[V, ID]{provider: provider}
}

// BeginSession begins a read-only session. Readers share the store
// and never observe partial updates from an in-flight update session.
// The session must be released with Finish.
func (t *QuadTree[V, ID]) BeginSession(ctx context.Context) (*TreeSession[V, ID], error) {
	return t.begin(ctx, false)
}

// BeginUpdateSession begins an exclusive update session. The session
// must be released with Finish.
func (t *QuadTree[V, ID]) BeginUpdateSession(ctx context.Context) (*TreeSession[V, ID], error) {
	return t.begin(ctx, true)
}

func (t *QuadTree[V, ID]) begin(ctx context.Context, willUpdate bool) (*TreeSession[V, ID], error) {
	provider, err := t.provider.BeginSession(ctx, willUpdate)
	if err != nil {
		return nil, err
	}
	return NewTreeSession(provider, willUpdate), nil
}
