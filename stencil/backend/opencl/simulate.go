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

package opencl

import (
	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/grid"
	"github.com/sinayoko/stencil-code/stencil/internal/evalir"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// simulate executes the lowered program with the exact control structure
// the generated kernel has — per-group halo load into a local tile, then a
// guarded per-thread stencil op reading through the tile — in plain Go. It
// backs the trivial testing device, so tests exercise the tiling, masking,
// and halo-load paths without a physical OpenCL device; any divergence
// between this walk and the generated source is a codegen bug.
func simulate(a *artifact, buf backend.Buffers) error {
	cfg, wp := a.cfg, a.wp
	ndim := cfg.NDim

	if cfg.Boundary == topology.BoundaryCopy {
		primary := buf.Inputs[a.prog.InputNames[0]]
		for _, plate := range a.plates {
			simulatePlate(plate, primary, buf.Output)
		}
	}

	tileExtents := make([]int, ndim)
	tileSize := 1
	numGroups := make([]int, ndim)
	for d := 0; d < ndim; d++ {
		tileExtents[d] = wp.LocalSize[d] + 2*cfg.GhostDepth[d]
		tileSize *= tileExtents[d]
		numGroups[d] = wp.VirtualGlobalSize[d] / wp.LocalSize[d]
	}
	tileStrides := rowMajorStrides(tileExtents)

	primary := buf.Inputs[a.prog.InputNames[0]]
	tile := make([]float64, tileSize)

	group := make([]int, ndim)
	var walkGroups func(d int)
	walkGroups = func(d int) {
		if d == ndim {
			loadTile(tile, tileExtents, tileStrides, group, a, primary)
			runGroup(tile, tileStrides, group, a, buf)
			return
		}
		for g := 0; g < numGroups[d]; g++ {
			group[d] = g
			walkGroups(d + 1)
		}
	}
	walkGroups(0)
	return nil
}

// loadTile replays the cooperative block loader: every flat tile position
// is unflattened by division/modulo in reverse dimension order, mapped to
// the global coordinate t_d + group_d*local_d - ghost_d, and loaded under
// the active boundary mode.
func loadTile(tile []float64, tileExtents, tileStrides, group []int, a *artifact, primary *grid.Grid) {
	cfg, wp := a.cfg, a.wp
	ndim := cfg.NDim
	t := make([]int, ndim)
	g := make([]int, ndim)
	for tid := range tile {
		rem := tid
		for d := ndim - 1; d >= 0; d-- {
			t[d] = rem % tileExtents[d]
			rem /= tileExtents[d]
		}
		flat := 0
		for d := 0; d < ndim; d++ {
			g[d] = t[d] + group[d]*wp.LocalSize[d] - cfg.GhostDepth[d]
			flat += t[d] * tileStrides[d]
		}

		switch cfg.Boundary {
		case topology.BoundaryClamp, topology.BoundaryCopy:
			for d := 0; d < ndim; d++ {
				g[d] = topology.ClampIndex(g[d], cfg.Shape[d])
			}
			tile[flat] = primary.At(g)
		case topology.BoundaryWarp:
			for d := 0; d < ndim; d++ {
				g[d] = topology.WarpIndex(g[d], cfg.Shape[d])
			}
			tile[flat] = primary.At(g)
		case topology.BoundaryZero:
			if primary.InBounds(g) {
				tile[flat] = primary.At(g)
			} else {
				tile[flat] = 0
			}
		}
	}
}

// runGroup replays each work-item of one group: recompute the global id,
// apply the interior-plus-mask guard, and accumulate the unrolled terms,
// primary-input reads going through the tile.
func runGroup(tile []float64, tileStrides, group []int, a *artifact, buf backend.Buffers) {
	cfg, wp := a.cfg, a.wp
	ndim := cfg.NDim

	lid := make([]int, ndim)
	var walkThreads func(d int)
	walkThreads = func(d int) {
		if d == ndim {
			runThread(tile, tileStrides, group, lid, a, buf)
			return
		}
		for l := 0; l < wp.LocalSize[d]; l++ {
			lid[d] = l
			walkThreads(d + 1)
		}
	}
	walkThreads(0)
}

func runThread(tile []float64, tileStrides, group, lid []int, a *artifact, buf backend.Buffers) {
	cfg, wp := a.cfg, a.wp
	ndim := cfg.NDim

	interiorOnly := cfg.Boundary == topology.BoundaryZero || cfg.Boundary == topology.BoundaryCopy
	gid := make([]int, ndim)
	for d := 0; d < ndim; d++ {
		gid[d] = group[d]*wp.LocalSize[d] + lid[d]
		if interiorOnly && (gid[d] < cfg.GhostDepth[d] || gid[d] >= cfg.Shape[d]-cfg.GhostDepth[d]) {
			return
		}
		if gid[d] >= wp.GlobalSize[d] {
			return
		}
	}

	primaryName := a.prog.InputNames[0]
	idx := make([]int, ndim)
	for _, conv := range a.prog.Convolutions {
		acc := 0.0
		for _, term := range conv.Terms {
			var v float64
			if term.InputGrid == primaryName {
				flat := 0
				for d := 0; d < ndim; d++ {
					off := 0
					if term.Offset != nil {
						off = term.Offset[d]
					}
					flat += (lid[d] + cfg.GhostDepth[d] + off) * tileStrides[d]
				}
				v = tile[flat]
			} else {
				for d := 0; d < ndim; d++ {
					off := 0
					if term.Offset != nil {
						off = term.Offset[d]
					}
					idx[d] = gid[d] + off
					switch cfg.Boundary {
					case topology.BoundaryClamp:
						idx[d] = topology.ClampIndex(idx[d], cfg.Shape[d])
					case topology.BoundaryWarp:
						idx[d] = topology.WarpIndex(idx[d], cfg.Shape[d])
					}
				}
				v = buf.Inputs[term.InputGrid].At(idx)
			}
			acc += term.Coefficient * evalir.ApplyMath(term.MathFunc, v)
		}
		buf.Output.Set(gid, buf.Output.At(gid)+acc)
	}
}

// simulatePlate replays one boundary-copy plate kernel.
func simulatePlate(plate PlatePlan, in, out *grid.Grid) {
	ndim := len(plate.GlobalSize)
	coord := make([]int, ndim)
	p := make([]int, ndim)
	var walk func(d int)
	walk = func(d int) {
		if d == ndim {
			for dd := 0; dd < ndim; dd++ {
				p[dd] = coord[dd] + plate.Origin[dd]
			}
			out.Set(p, in.At(p))
			return
		}
		for i := 0; i < plate.GlobalSize[d]; i++ {
			coord[d] = i
			walk(d + 1)
		}
	}
	walk(0)
}
