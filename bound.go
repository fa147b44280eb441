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

import "strings"

// Bound is an axis-aligned hyper-rectangle: an ordered sequence of
// half-open axes, one per dimension. All interval arithmetic is
// half-open so that a point on a shared child border belongs to exactly
// one child of any internal node.
type Bound []Axis

// NewBound creates a bound from the given axes.
func NewBound(axes ...Axis) Bound {
	return Bound(axes)
}

// NewUniformBound creates a dim-dimensional bound whose every axis
// covers [origin, to).
func NewUniformBound(dim int, origin, to float64) Bound {
	axes := make([]Axis, dim)
	for i := range axes {
		axes[i] = NewAxis(origin, to)
	}
	return Bound(axes)
}

// Dimension returns the number of axes.
func (b Bound) Dimension() int {
	return len(b)
}

// ChildCount returns the number of children a node with this bound
// subdivides into, 2^D.
func (b Bound) ChildCount() int {
	return 1 << len(b)
}

// IsEmpty reports whether any axis is degenerate. An empty bound can
// not be subdivided, so a leaf covering it absorbs colliding points
// past the node capacity.
func (b Bound) IsEmpty() bool {
	for _, a := range b {
		if a.IsEmpty() {
			return true
		}
	}
	return false
}

// IsWithin reports whether p lies within the bound. A point of a
// different dimension is never within.
func (b Bound) IsWithin(p Point) bool {
	if len(p) != len(b) {
		return false
	}
	for i, a := range b {
		if !a.Contains(p[i]) {
			return false
		}
	}
	return true
}

// Intersects reports whether the two bounds overlap, half-open on
// every axis. Bounds of different dimensions never intersect.
func (b Bound) Intersects(o Bound) bool {
	if len(b) != len(o) {
		return false
	}
	for i, a := range b {
		if a.Origin > o[i].To || o[i].Origin >= a.To {
			return false
		}
	}
	return true
}

// ChildBounds returns the 2^D children obtained by splitting every
// axis at its midpoint. Child k takes the upper half of axis i iff bit
// i of k is set; the resulting children exactly partition the bound.
func (b Bound) ChildBounds() []Bound {
	children := make([]Bound, b.ChildCount())
	for k := range children {
		child := make(Bound, len(b))
		for i, a := range b {
			m := a.Midpoint()
			if k&(1<<i) != 0 {
				child[i] = Axis{Origin: m, To: a.To}
			} else {
				child[i] = Axis{Origin: a.Origin, To: m}
			}
		}
		children[k] = child
	}
	return children
}

// Equal reports componentwise equality of the two bounds.
func (b Bound) Equal(o Bound) bool {
	if len(b) != len(o) {
		return false
	}
	for i, a := range b {
		if a != o[i] {
			return false
		}
	}
	return true
}

func (b Bound) String() string {
	var sb strings.Builder
	for i, a := range b {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(a.String())
	}
	return sb.String()
}
