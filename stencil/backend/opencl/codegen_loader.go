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
	"github.com/sinayoko/stencil-code/stencil/plan"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// emitBlockLoader emits the shared-memory block loader: every work-item
// walks flat tile positions thread_id, thread_id+num_threads, ... up to
// tile_size, unflattens each into per-dimension tile coordinates, derives
// the matching global coordinate, applies the active boundary mode, and
// stores into block.
func emitBlockLoader(b *strings.Builder, cfg backend.LowerConfig, wp *plan.WorkPlan, primaryInput string) {
	ndim := cfg.NDim
	ghost := cfg.GhostDepth
	tileExtents := make([]int, ndim)
	tileSize := 1
	numThreads := 1
	for d := 0; d < ndim; d++ {
		tileExtents[d] = wp.LocalSize[d] + 2*ghost[d]
		tileSize *= tileExtents[d]
		numThreads *= wp.LocalSize[d]
	}
	tileStrides := rowMajorStrides(tileExtents)
	localStrides := rowMajorStrides(wp.LocalSize)

	b.WriteString("  int thread_id = ")
	var flat []string
	for d := 0; d < ndim; d++ {
		flat = append(flat, fmt.Sprintf("get_local_id(%d)*%d", d, localStrides[d]))
	}
	b.WriteString(strings.Join(flat, " + "))
	b.WriteString(";\n")

	fmt.Fprintf(b, "  for (int tid = thread_id; tid < %d; tid += %d) {\n", tileSize, numThreads)
	b.WriteString("    int rem = tid;\n")

	for d := ndim - 1; d >= 0; d-- {
		fmt.Fprintf(b, "    int t%d = rem %% %d; rem /= %d;\n", d, tileExtents[d], tileExtents[d])
	}
	for d := 0; d < ndim; d++ {
		fmt.Fprintf(b, "    int g%d = t%d + get_group_id(%d)*%d - %d;\n", d, d, d, wp.LocalSize[d], ghost[d])
	}

	tileIdx := indexExprNamed(tileStrides, "t")
	switch cfg.Boundary {
	case topology.BoundaryClamp:
		for d := 0; d < ndim; d++ {
			fmt.Fprintf(b, "    int cg%d = stencil_clamp(g%d, %d);\n", d, d, cfg.Shape[d])
		}
		globalIdx := indexExprNamed(rowMajorStrides(wp.GlobalSize), "cg")
		fmt.Fprintf(b, "    block[%s] = in_%s[%s];\n", tileIdx, primaryInput, globalIdx)

	case topology.BoundaryWarp:
		for d := 0; d < ndim; d++ {
			fmt.Fprintf(b, "    int wg%d = stencil_wrap(g%d, %d);\n", d, d, cfg.Shape[d])
		}
		globalIdx := indexExprNamed(rowMajorStrides(wp.GlobalSize), "wg")
		fmt.Fprintf(b, "    block[%s] = in_%s[%s];\n", tileIdx, primaryInput, globalIdx)

	case topology.BoundaryZero:
		var cond []string
		for d := 0; d < ndim; d++ {
			cond = append(cond, fmt.Sprintf("g%d >= 0 && g%d < %d", d, d, cfg.Shape[d]))
		}
		globalIdx := indexExprNamed(rowMajorStrides(wp.GlobalSize), "g")
		fmt.Fprintf(b, "    if (%s) {\n", strings.Join(cond, " && "))
		fmt.Fprintf(b, "      block[%s] = in_%s[%s];\n", tileIdx, primaryInput, globalIdx)
		b.WriteString("    } else {\n")
		fmt.Fprintf(b, "      block[%s] = 0;\n", tileIdx)
		b.WriteString("    }\n")

	case topology.BoundaryCopy:
		// Interior points never read a neighbor outside [0, shape[d]), so
		// the loaded value only matters in range; clamping keeps edge
		// groups' halo loads in bounds without a branch. Boundary output is
		// filled separately by the plate kernels.
		for d := 0; d < ndim; d++ {
			fmt.Fprintf(b, "    int cg%d = stencil_clamp(g%d, %d);\n", d, d, cfg.Shape[d])
		}
		globalIdx := indexExprNamed(rowMajorStrides(wp.GlobalSize), "cg")
		fmt.Fprintf(b, "    block[%s] = in_%s[%s];\n", tileIdx, primaryInput, globalIdx)
	}

	b.WriteString("  }\n")
}

func indexExprNamed(strides []int, prefix string) string {
	parts := make([]string, len(strides))
	for d, s := range strides {
		parts[d] = fmt.Sprintf("(%s%d)*%d", prefix, d, s)
	}
	return strings.Join(parts, " + ")
}
