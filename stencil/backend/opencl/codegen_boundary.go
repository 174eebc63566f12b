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
	"fmt"
	"strings"

	"github.com/sinayoko/stencil-code/stencil/backend"
)

// PlatePlan is the host-side launch plan for one boundary-copy subkernel:
// its kernel name and the NDRange extents it iterates. The plate's origin
// within the grid is baked into the kernel as constants, so the host only
// needs name and size.
type PlatePlan struct {
	KernelName string
	GlobalSize []int
	Origin     []int
}

// platePlans partitions the non-interior band into 2*ndim disjoint plates,
// one low and one high per dimension. A boundary point belongs to the
// plate of the first dimension at which it falls outside the interior
// band, so dimensions before d are restricted to their interior extent,
// dimension d covers one ghost-thick slab, and dimensions after d run the
// full shape. Plates whose slab has zero thickness (ghost_depth[d] == 0)
// are omitted.
func platePlans(cfg backend.LowerConfig) []PlatePlan {
	var plans []PlatePlan
	for d := 0; d < cfg.NDim; d++ {
		if cfg.GhostDepth[d] == 0 {
			continue
		}
		for _, side := range []string{"lo", "hi"} {
			extents := make([]int, cfg.NDim)
			origin := make([]int, cfg.NDim)
			for dd := 0; dd < cfg.NDim; dd++ {
				switch {
				case dd < d:
					extents[dd] = cfg.Shape[dd] - 2*cfg.GhostDepth[dd]
					origin[dd] = cfg.GhostDepth[dd]
				case dd == d:
					extents[dd] = cfg.GhostDepth[dd]
					if side == "hi" {
						origin[dd] = cfg.Shape[dd] - cfg.GhostDepth[dd]
					}
				default:
					extents[dd] = cfg.Shape[dd]
				}
			}
			degenerate := false
			for _, e := range extents {
				if e <= 0 {
					degenerate = true
				}
			}
			if degenerate {
				continue
			}
			plans = append(plans, PlatePlan{
				KernelName: fmt.Sprintf("boundary_d%d_%s", d, side),
				GlobalSize: extents,
				Origin:     origin,
			})
		}
	}
	return plans
}

// emitBoundaryPlateKernels emits one __kernel per plate. Each work-item
// maps its NDRange coordinates back into grid coordinates by adding the
// plate's origin, then copies the primary input element to the output.
func emitBoundaryPlateKernels(b *strings.Builder, cfg backend.LowerConfig, primaryInput, ctype string) {
	strides := rowMajorStrides(cfg.Shape)
	for d := 0; d < cfg.NDim; d++ {
		if cfg.GhostDepth[d] == 0 {
			continue
		}
		for _, side := range []string{"lo", "hi"} {
			fmt.Fprintf(b, "__kernel void boundary_d%d_%s(__global const %s *in_%s, __global %s *out)\n{\n",
				d, side, ctype, primaryInput, ctype)
			var parts []string
			for dd := 0; dd < cfg.NDim; dd++ {
				origin := 0
				if dd < d {
					origin = cfg.GhostDepth[dd]
				} else if dd == d && side == "hi" {
					origin = cfg.Shape[dd] - cfg.GhostDepth[dd]
				}
				fmt.Fprintf(b, "  int p%d = get_global_id(%d) + %d;\n", dd, dd, origin)
				parts = append(parts, fmt.Sprintf("p%d*%d", dd, strides[dd]))
			}
			idx := strings.Join(parts, " + ")
			fmt.Fprintf(b, "  out[%s] = in_%s[%s];\n}\n\n", idx, primaryInput, idx)
		}
	}
}
