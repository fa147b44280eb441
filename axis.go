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

import "fmt"

// Axis is a half-open interval [Origin, To) on a single dimension.
type Axis struct {
	Origin float64
	To     float64
}

// NewAxis creates an axis covering [origin, to).
func NewAxis(origin, to float64) Axis {
	return Axis{Origin: origin, To: to}
}

// Size returns the extent of the axis.
func (a Axis) Size() float64 {
	return a.To - a.Origin
}

// HalfSize returns half the extent, the split pitch used when
// subdividing a bound into its children.
func (a Axis) HalfSize() float64 {
	return (a.To - a.Origin) / 2
}

// Midpoint returns the coordinate at which the axis is split in two.
func (a Axis) Midpoint() float64 {
	return a.Origin + a.HalfSize()
}

// IsEmpty reports whether the axis is degenerate, i.e. it can not be
// subdivided any further. A zero-size axis is always degenerate; so is
// an axis so narrow that its midpoint is no longer strictly between
// Origin and To in float64. Splitting such an axis would reproduce the
// axis itself and insertion could never make progress.
func (a Axis) IsEmpty() bool {
	m := a.Midpoint()
	return m <= a.Origin || m >= a.To
}

// Contains reports whether v lies within [Origin, To).
func (a Axis) Contains(v float64) bool {
	return a.Origin <= v && v < a.To
}

func (a Axis) String() string {
	return fmt.Sprintf("[%v,%v)", a.Origin, a.To)
}
