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

// Package opencl implements the `ocl` backend: a work-group-tiled kernel
// with cooperative halo prefetch into local memory, one kernel per
// convolution (kernel_c0, kernel_c1, ...), plus per-plate boundary-copy
// kernels when Boundary is `copy`. The host side drives the driver in the
// usual order: platform, device, context, queue, program, kernel, buffer,
// enqueue, finish.
package opencl

import (
	"fmt"
	"strings"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/plan"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

var supportedModes = []topology.BoundaryMode{
	topology.BoundaryZero, topology.BoundaryClamp, topology.BoundaryCopy, topology.BoundaryWarp,
}

// generateSource emits the OpenCL C program lowering prog under cfg and
// planned tiling wp.
func generateSource(prog *ir.LoweredProgram, cfg backend.LowerConfig, wp *plan.WorkPlan) (string, error) {
	if !backend.Supports(supportedModes, cfg.Boundary) {
		return "", &backend.UnsupportedBoundaryError{BackendID: "ocl", Mode: cfg.Boundary}
	}

	var b strings.Builder
	ctype := cfg.Dtype.CType()
	ndim := cfg.NDim

	emitIndexMacros(&b, ndim, wp, cfg.GhostDepth)
	b.WriteString("\n")
	fmt.Fprintf(&b, "inline int stencil_clamp(int i, int extent) { return i < 0 ? 0 : (i >= extent ? extent - 1 : i); }\n")
	fmt.Fprintf(&b, "inline int stencil_wrap(int i, int extent) { int r = i %% extent; return r < 0 ? r + extent : r; }\n\n")

	for _, conv := range prog.Convolutions {
		emitKernel(&b, prog, conv, cfg, wp, ctype)
	}

	if cfg.Boundary == topology.BoundaryCopy {
		emitBoundaryPlateKernels(&b, cfg, prog.InputNames[0], ctype)
	}

	return b.String(), nil
}

// emitIndexMacros emits GLOBAL_IDX/LOCAL_IDX row-major index macros over
// the global (shape) and local (tile+halo) extents respectively.
func emitIndexMacros(b *strings.Builder, ndim int, wp *plan.WorkPlan, ghostDepth []int) {
	globalStrides := rowMajorStrides(wp.GlobalSize)
	tileExtents := make([]int, ndim)
	for d := 0; d < ndim; d++ {
		tileExtents[d] = wp.LocalSize[d] + 2*ghostDepth[d]
	}
	tileStrides := rowMajorStrides(tileExtents)

	args := idxArgs(ndim)
	globalExpr := indexExpr(globalStrides)
	localExpr := indexExpr(tileStrides)

	fmt.Fprintf(b, "#define GLOBAL_IDX(%s) (%s)\n", args, globalExpr)
	fmt.Fprintf(b, "#define LOCAL_IDX(%s) (%s)\n", args, localExpr)
}

func idxArgs(ndim int) string {
	parts := make([]string, ndim)
	for d := 0; d < ndim; d++ {
		parts[d] = fmt.Sprintf("i%d", d)
	}
	return strings.Join(parts, ", ")
}

func indexExpr(strides []int) string {
	parts := make([]string, len(strides))
	for d, s := range strides {
		parts[d] = fmt.Sprintf("(i%d)*%d", d, s)
	}
	return strings.Join(parts, " + ")
}

func rowMajorStrides(shape []int) []int {
	ndim := len(shape)
	strides := make([]int, ndim)
	acc := 1
	for d := ndim - 1; d >= 0; d-- {
		strides[d] = acc
		acc *= shape[d]
	}
	return strides
}

// emitKernel emits one __kernel per convolution: the shared-memory block
// loader, a barrier, the interior-point guard, and the unrolled stencil
// op reading through the local tile.
func emitKernel(b *strings.Builder, prog *ir.LoweredProgram, conv ir.LoweredConvolution, cfg backend.LowerConfig, wp *plan.WorkPlan, ctype string) {
	ndim := cfg.NDim
	ghost := cfg.GhostDepth

	fmt.Fprintf(b, "__kernel void kernel_c%d(\n", conv.ID)
	for _, name := range prog.InputNames {
		fmt.Fprintf(b, "    __global const %s *in_%s,\n", ctype, name)
	}
	fmt.Fprintf(b, "    __global %s *out,\n", ctype)
	fmt.Fprintf(b, "    __local %s *block)\n{\n", ctype)

	for d := 0; d < ndim; d++ {
		fmt.Fprintf(b, "  int gid%d = get_global_id(%d);\n", d, d)
	}
	fmt.Fprintf(b, "  int global_index = GLOBAL_IDX(%s);\n\n", callArgs("gid", ndim))

	emitBlockLoader(b, cfg, wp, prog.InputNames[0])
	b.WriteString("\n  barrier(CLK_LOCAL_MEM_FENCE);\n\n")

	// Tile coordinates are shifted by the halo thickness.
	for d := 0; d < ndim; d++ {
		fmt.Fprintf(b, "  int lid%d = get_local_id(%d) + %d;\n", d, d, ghost[d])
	}
	b.WriteString("\n")

	// Guard: under `zero`/`copy` only interior points compute; `clamp` and
	// `warp` compute every point, boundary included, with the halo load
	// having already adjusted out-of-range reads. Padded dimensions also
	// mask threads beyond the true global size.
	interiorOnly := cfg.Boundary == topology.BoundaryZero || cfg.Boundary == topology.BoundaryCopy
	var cond []string
	for d := 0; d < ndim; d++ {
		if interiorOnly {
			cond = append(cond, fmt.Sprintf("gid%d >= %d && gid%d < %d", d, ghost[d], d, cfg.Shape[d]-ghost[d]))
		}
		if !interiorOnly || wp.VirtualGlobalSize[d] > wp.GlobalSize[d] {
			cond = append(cond, fmt.Sprintf("gid%d < %d", d, wp.GlobalSize[d]))
		}
	}
	fmt.Fprintf(b, "  if (%s) {\n", strings.Join(cond, " && "))

	fmt.Fprintf(b, "    %s acc = 0;\n", ctype)
	for _, t := range conv.Terms {
		readExpr := neighborReadExpr(t, cfg, prog.InputNames[0], ghost)
		switch t.MathFunc {
		case "":
		case "square":
			readExpr = fmt.Sprintf("(%s)*(%s)", readExpr, readExpr)
		default:
			readExpr = fmt.Sprintf("%s(%s)", oclMathName(t.MathFunc), readExpr)
		}
		fmt.Fprintf(b, "    acc += (%s)(%g) * %s;\n", ctype, t.Coefficient, readExpr)
	}
	b.WriteString("    out[global_index] += acc;\n")
	b.WriteString("  }\n}\n\n")
}

// neighborReadExpr builds the read expression for one term. Reads of the
// first (primary) input go through block[LOCAL_IDX(local_id + offset)];
// terms reading any other input grid fall back to a direct global read,
// since only the primary input is prefetched into local memory.
func neighborReadExpr(t ir.LoweredTerm, cfg backend.LowerConfig, primaryInput string, ghost []int) string {
	ndim := cfg.NDim
	if t.InputGrid != primaryInput {
		parts := make([]string, ndim)
		for d := 0; d < ndim; d++ {
			off := 0
			if t.Offset != nil {
				off = t.Offset[d]
			}
			coord := fmt.Sprintf("gid%d%+d", d, off)
			switch cfg.Boundary {
			case topology.BoundaryClamp:
				coord = fmt.Sprintf("stencil_clamp(%s, %d)", coord, cfg.Shape[d])
			case topology.BoundaryWarp:
				coord = fmt.Sprintf("stencil_wrap(%s, %d)", coord, cfg.Shape[d])
			}
			parts[d] = coord
		}
		return fmt.Sprintf("in_%s[GLOBAL_IDX(%s)]", t.InputGrid, strings.Join(parts, ", "))
	}

	parts := make([]string, ndim)
	for d := 0; d < ndim; d++ {
		off := 0
		if t.Offset != nil {
			off = t.Offset[d]
		}
		parts[d] = fmt.Sprintf("lid%d%+d", d, off)
	}
	return fmt.Sprintf("block[LOCAL_IDX(%s)]", strings.Join(parts, ", "))
}

func callArgs(prefix string, ndim int) string {
	parts := make([]string, ndim)
	for d := 0; d < ndim; d++ {
		parts[d] = fmt.Sprintf("%s%d", prefix, d)
	}
	return strings.Join(parts, ", ")
}

func oclMathName(name string) string {
	switch name {
	case "sqrt":
		return "sqrt"
	case "abs":
		return "fabs"
	case "exp":
		return "exp"
	default:
		return name
	}
}
