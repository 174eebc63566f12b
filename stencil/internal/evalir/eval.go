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

// Package evalir evaluates a LoweredProgram directly against Go Grids,
// point by point. It is the one place boundary handling and unrolled term
// accumulation are written down for in-process execution; both the
// `reference` backend (sequential, the correctness oracle) and the `c`
// backend (parallelized over a worker pool) call it instead of each
// re-implementing the same arithmetic.
package evalir

import (
	"math"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// InteriorBounds returns, per dimension, the [lo, hi) range Point should
// iterate: the full shape under `clamp`/`warp` (boundary outputs are
// computed too, just with adjusted neighbor indices), or the interior band
// under `zero`/`copy` (boundary outputs are left at zero, or filled
// separately by CopyBoundary).
func InteriorBounds(cfg backend.LowerConfig) (lo, hi []int) {
	ndim := cfg.NDim
	lo, hi = make([]int, ndim), make([]int, ndim)
	restrict := cfg.Boundary == topology.BoundaryZero || cfg.Boundary == topology.BoundaryCopy
	for d := 0; d < ndim; d++ {
		if restrict {
			lo[d], hi[d] = cfg.GhostDepth[d], cfg.Shape[d]-cfg.GhostDepth[d]
		} else {
			lo[d], hi[d] = 0, cfg.Shape[d]
		}
	}
	return lo, hi
}

// Point evaluates every convolution of prog at point, accumulating into
// buf.Output in place.
func Point(prog *ir.LoweredProgram, cfg backend.LowerConfig, buf backend.Buffers, point []int) {
	for _, conv := range prog.Convolutions {
		sum := 0.0
		for _, term := range conv.Terms {
			idx := NeighborIndex(point, term.Offset, cfg.Shape, cfg.Boundary)
			if idx == nil {
				continue // out of range under `zero`/`copy`: contributes nothing
			}
			g := buf.Inputs[term.InputGrid]
			v := ApplyMath(term.MathFunc, g.At(idx))
			sum += term.Coefficient * v
		}
		buf.Output.Set(point, buf.Output.At(point)+sum)
	}
}

// NeighborIndex resolves point+offset under the active boundary mode,
// returning nil when the access should be skipped. That is only possible
// under `zero`/`copy`, and only when the caller iterates over boundary
// points at all: an interior point never produces an out-of-range
// neighbor.
func NeighborIndex(point, offset []int, shape []int, mode topology.BoundaryMode) []int {
	idx := make([]int, len(point))
	for d, p := range point {
		off := 0
		if offset != nil {
			off = offset[d]
		}
		v := p + off
		switch mode {
		case topology.BoundaryClamp:
			v = topology.ClampIndex(v, shape[d])
		case topology.BoundaryWarp:
			v = topology.WarpIndex(v, shape[d])
		case topology.BoundaryZero, topology.BoundaryCopy:
			if v < 0 || v >= shape[d] {
				return nil
			}
		}
		idx[d] = v
	}
	return idx
}

// ApplyMath applies the named device math function to v; "" passes v
// through unchanged.
func ApplyMath(name string, v float64) float64 {
	switch name {
	case "":
		return v
	case "sqrt":
		return math.Sqrt(v)
	case "abs":
		return math.Abs(v)
	case "square":
		return v * v
	case "exp":
		return math.Exp(v)
	default:
		return v
	}
}

// CopyBoundary fills every non-interior output point with the matching
// value from the primary (first) input grid: the `copy` mode boundary
// subkernel in plain Go.
func CopyBoundary(shape, ghost []int, primaryInput string, buf backend.Buffers) {
	g := buf.Inputs[primaryInput]
	ndim := len(shape)
	point := make([]int, ndim)
	var walk func(d int)
	walk = func(d int) {
		if d == ndim {
			if IsBoundary(point, shape, ghost) {
				buf.Output.Set(point, g.At(point))
			}
			return
		}
		for i := 0; i < shape[d]; i++ {
			point[d] = i
			walk(d + 1)
		}
	}
	walk(0)
}

// IsBoundary reports whether point lies outside the interior band.
func IsBoundary(point, shape, ghost []int) bool {
	for d, p := range point {
		if p < ghost[d] || p >= shape[d]-ghost[d] {
			return true
		}
	}
	return false
}
