// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package grid describes the external buffer a stencil reads from and
// writes to: an immutable {ndim, shape, dtype, strides} view over a
// contiguous numeric buffer. New allocates fresh storage; NewFromBuffer
// wraps the caller's slice without copying it.
package grid

import "fmt"

// DType identifies the element type backing a Grid.
type DType int

const (
	Float32 DType = iota
	Float64
)

// Size returns the size in bytes of one element of d.
func (d DType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// CType returns the C type name used by generated CPU/OpenCL kernels.
func (d DType) CType() string {
	switch d {
	case Float32:
		return "float"
	case Float64:
		return "double"
	default:
		return "float"
	}
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// Grid is an immutable descriptor plus the contiguous float64 storage the
// host-language array library would otherwise own. Reads/writes always
// operate in float64; Dtype only affects codegen and the reported element
// width.
type Grid struct {
	NDim    int
	Shape   []int
	Strides []int
	Dtype   DType
	Data    []float64
}

// RowMajorStrides computes strides for a row-major (C-order) layout.
func RowMajorStrides(shape []int) []int {
	ndim := len(shape)
	strides := make([]int, ndim)
	acc := 1
	for d := ndim - 1; d >= 0; d-- {
		strides[d] = acc
		acc *= shape[d]
	}
	return strides
}

// ElementCount returns the product of shape, i.e. ∏ shape[d].
func ElementCount(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// New allocates a fresh, zeroed Grid of the given shape and dtype with
// default row-major strides.
func New(shape []int, dtype DType) *Grid {
	shape = append([]int(nil), shape...)
	return &Grid{
		NDim:    len(shape),
		Shape:   shape,
		Strides: RowMajorStrides(shape),
		Dtype:   dtype,
		Data:    make([]float64, ElementCount(shape)),
	}
}

// NewFromBuffer wraps an existing buffer as a Grid, validating that its
// invariant element_count = ∏ shape[d] holds. strides may be nil, in which
// case row-major strides are assumed.
func NewFromBuffer(data []float64, shape []int, dtype DType, strides []int) (*Grid, error) {
	n := ElementCount(shape)
	if len(data) != n {
		return nil, fmt.Errorf("grid: buffer has %d elements, shape %v requires %d", len(data), shape, n)
	}
	if strides == nil {
		strides = RowMajorStrides(shape)
	} else if len(strides) != len(shape) {
		return nil, fmt.Errorf("grid: %d strides given for %d-dim shape", len(strides), len(shape))
	}
	return &Grid{
		NDim:    len(shape),
		Shape:   append([]int(nil), shape...),
		Strides: append([]int(nil), strides...),
		Dtype:   dtype,
		Data:    data,
	}, nil
}

// Offset returns the flat element offset for a multi-dimensional index.
func (g *Grid) Offset(index []int) int {
	off := 0
	for d, i := range index {
		off += i * g.Strides[d]
	}
	return off
}

// At reads the element at index.
func (g *Grid) At(index []int) float64 {
	return g.Data[g.Offset(index)]
}

// Set writes v at index.
func (g *Grid) Set(index []int, v float64) {
	g.Data[g.Offset(index)] = v
}

// InBounds reports whether index is within [0, shape[d]) for every dimension.
func (g *Grid) InBounds(index []int) bool {
	for d, i := range index {
		if i < 0 || i >= g.Shape[d] {
			return false
		}
	}
	return true
}

// EachPoint calls fn for every point whose coordinates lie in
// [lo[d], hi[d]) per dimension, in row-major order. The index slice is
// reused across calls; fn must copy it to retain it.
func (g *Grid) EachPoint(lo, hi []int, fn func(index []int)) {
	point := make([]int, g.NDim)
	var walk func(d int)
	walk = func(d int) {
		if d == g.NDim {
			fn(point)
			return
		}
		for i := lo[d]; i < hi[d]; i++ {
			point[d] = i
			walk(d + 1)
		}
	}
	walk(0)
}

// EachInterior enumerates the points at distance >= ghost[d] from every
// boundary, in row-major order.
func (g *Grid) EachInterior(ghost []int, fn func(index []int)) {
	lo := make([]int, g.NDim)
	hi := make([]int, g.NDim)
	for d := 0; d < g.NDim; d++ {
		lo[d], hi[d] = ghost[d], g.Shape[d]-ghost[d]
	}
	g.EachPoint(lo, hi, fn)
}

// SameShape reports whether two grids share ndim and shape (not dtype).
func SameShape(a, b *Grid) bool {
	if a.NDim != b.NDim {
		return false
	}
	for d := range a.Shape {
		if a.Shape[d] != b.Shape[d] {
			return false
		}
	}
	return true
}
