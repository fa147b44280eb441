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
	"fmt"
	"strings"
)

// Point is an ordered sequence of real-valued coordinates.
type Point []float64

// NewPoint creates a point from the given coordinates.
func NewPoint(coords ...float64) Point {
	return Point(coords)
}

// Dimension returns the number of coordinates.
func (p Point) Dimension() int {
	return len(p)
}

// Equal reports whether two points have the same dimension and equal
// coordinates componentwise.
func (p Point) Equal(o Point) bool {
	if len(p) != len(o) {
		return false
	}
	for i, c := range p {
		if c != o[i] {
			return false
		}
	}
	return true
}

func (p Point) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, c := range p {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%v", c)
	}
	sb.WriteByte(')')
	return sb.String()
}

// PointItem is an immutable pair of a point and its associated value.
type PointItem[V any] struct {
	Point Point
	Value V
}

// NewPointItem pairs a point with a value.
func NewPointItem[V any](p Point, value V) PointItem[V] {
	return PointItem[V]{Point: p, Value: value}
}
