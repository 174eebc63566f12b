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

// Package topology builds and manipulates neighbor-offset sets (von
// Neumann, Moore, custom) and derives the ghost-depth band they imply.
package topology

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Offset is a single neighbor displacement, relative to a center point.
// len(Offset) == the neighborhood's NDim.
type Offset []int

// Clone returns a copy of o.
func (o Offset) Clone() Offset {
	return append(Offset(nil), o...)
}

// Neighborhood is an ordered sequence of offsets sharing one dimensionality.
// Order is significant: it is the order user kernel code observes when
// iterating a NeighborPointsLoop.
type Neighborhood struct {
	NDim    int
	Offsets []Offset
}

// Custom builds a Neighborhood from an explicit, insertion-ordered offset
// list. Offsets need not be unique.
func Custom(offsets []Offset) (Neighborhood, error) {
	if len(offsets) == 0 {
		return Neighborhood{}, fmt.Errorf("topology: custom neighborhood needs at least one offset")
	}
	ndim := len(offsets[0])
	for _, o := range offsets {
		if len(o) != ndim {
			return Neighborhood{}, fmt.Errorf("topology: offset %v does not match dimensionality %d", o, ndim)
		}
	}
	return Neighborhood{NDim: ndim, Offsets: lo.Map(offsets, func(o Offset, _ int) Offset { return o.Clone() })}, nil
}

// VonNeumann returns all points at Manhattan distance <= radius from the
// origin, in ndim dimensions, ordered lexicographically. The origin itself
// is included only if includeOrigin is true.
func VonNeumann(radius, ndim int, includeOrigin bool) (Neighborhood, error) {
	if radius < 0 || ndim <= 0 {
		return Neighborhood{}, fmt.Errorf("topology: von Neumann requires radius>=0 and ndim>0, got radius=%d ndim=%d", radius, ndim)
	}
	all := cartesianRange(radius, ndim)
	offsets := lo.Filter(all, func(o Offset, _ int) bool {
		if !includeOrigin && isOrigin(o) {
			return false
		}
		return manhattan(o) <= radius
	})
	sortLexicographic(offsets)
	return Neighborhood{NDim: ndim, Offsets: offsets}, nil
}

// Moore returns all points at Chebyshev distance <= radius from the origin,
// in ndim dimensions, ordered lexicographically.
func Moore(radius, ndim int, includeOrigin bool) (Neighborhood, error) {
	if radius < 0 || ndim <= 0 {
		return Neighborhood{}, fmt.Errorf("topology: Moore requires radius>=0 and ndim>0, got radius=%d ndim=%d", radius, ndim)
	}
	all := cartesianRange(radius, ndim)
	offsets := lo.Filter(all, func(o Offset, _ int) bool {
		return includeOrigin || !isOrigin(o)
	})
	sortLexicographic(offsets)
	return Neighborhood{NDim: ndim, Offsets: offsets}, nil
}

// cartesianRange enumerates every point in [-radius, radius]^ndim.
func cartesianRange(radius, ndim int) []Offset {
	var out []Offset
	cur := make(Offset, ndim)
	var rec func(d int)
	rec = func(d int) {
		if d == ndim {
			out = append(out, cur.Clone())
			return
		}
		for v := -radius; v <= radius; v++ {
			cur[d] = v
			rec(d + 1)
		}
	}
	rec(0)
	return out
}

func isOrigin(o Offset) bool {
	for _, v := range o {
		if v != 0 {
			return false
		}
	}
	return true
}

func manhattan(o Offset) int {
	return lo.Reduce(o, func(acc int, v int, _ int) int {
		if v < 0 {
			v = -v
		}
		return acc + v
	}, 0)
}

func sortLexicographic(offsets []Offset) {
	sort.Slice(offsets, func(i, j int) bool {
		a, b := offsets[i], offsets[j]
		for d := range a {
			if a[d] != b[d] {
				return a[d] < b[d]
			}
		}
		return false
	})
}

// NeighborsOf returns the points of n around center under the given
// boundary mode, in neighborhood order. Under BoundaryClamp and
// BoundaryWarp every offset yields a point (with the index adjusted);
// under BoundaryZero and BoundaryCopy, out-of-range neighbors are
// skipped.
func (n Neighborhood) NeighborsOf(center, shape []int, mode BoundaryMode) [][]int {
	out := make([][]int, 0, len(n.Offsets))
	for _, off := range n.Offsets {
		p := make([]int, n.NDim)
		skip := false
		for d := 0; d < n.NDim; d++ {
			v := center[d] + off[d]
			switch mode {
			case BoundaryClamp:
				v = ClampIndex(v, shape[d])
			case BoundaryWarp:
				v = WarpIndex(v, shape[d])
			default:
				if v < 0 || v >= shape[d] {
					skip = true
				}
			}
			p[d] = v
		}
		if !skip {
			out = append(out, p)
		}
	}
	return out
}

// GhostDepth computes the per-dimension ghost-depth band: for each
// dimension d, the maximum absolute offset across every neighborhood.
// All neighborhoods must share the same NDim.
func GhostDepth(neighborhoods []Neighborhood) ([]int, error) {
	if len(neighborhoods) == 0 {
		return nil, fmt.Errorf("topology: ghost depth requires at least one neighborhood")
	}
	ndim := neighborhoods[0].NDim
	depth := make([]int, ndim)
	for _, n := range neighborhoods {
		if n.NDim != ndim {
			return nil, fmt.Errorf("topology: neighborhood dimensionality mismatch: %d vs %d", n.NDim, ndim)
		}
		for _, off := range n.Offsets {
			for d, v := range off {
				if v < 0 {
					v = -v
				}
				if v > depth[d] {
					depth[d] = v
				}
			}
		}
	}
	return depth, nil
}
