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

// Package cpu implements the `c` backend: it lowers a LoweredProgram to a
// single C translation unit with a perfect loop nest over the computed
// points (the interior band under `zero`/`copy`, the full grid under
// `clamp`/`warp`) and fully unrolled neighbor sums (neighborhoods are small and known at
// lowering time, so unrolling beats per-neighbor control and lets the C
// compiler vectorize), validates that translation unit with a real C
// front end, and separately executes the same lowered program in-process
// over a worker pool so Launch has a concrete result without an external
// C toolchain in the loop.
package cpu

import (
	"fmt"
	"strings"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// entryPoint is the name of the generated translation unit's single
// control function.
const entryPoint = "stencil_control"

// generateSource emits the C translation unit lowering prog under cfg.
// One function is emitted per convolution (kernel_c0, kernel_c1, ...,
// named the same way the OpenCL backend names its per-channel kernels),
// plus a boundary-copy routine when cfg.Boundary is `copy`, plus the
// stencil_control entry point that calls them in sequence.
func generateSource(prog *ir.LoweredProgram, cfg backend.LowerConfig) (string, error) {
	if !backend.Supports(supportedModes, cfg.Boundary) {
		return "", &backend.UnsupportedBoundaryError{BackendID: "c", Mode: cfg.Boundary}
	}

	var b strings.Builder
	ctype := cfg.Dtype.CType()

	b.WriteString("#include <math.h>\n\n")
	b.WriteString("static inline int stencil_clamp(int i, int extent) { return i < 0 ? 0 : (i >= extent ? extent - 1 : i); }\n")
	b.WriteString("static inline int stencil_wrap(int i, int extent) { int r = i % extent; return r < 0 ? r + extent : r; }\n\n")

	strides := rowMajorStrides(cfg.Shape)
	args := inputArgs(prog.InputNames, ctype)

	for _, conv := range prog.Convolutions {
		fmt.Fprintf(&b, "static void kernel_c%d(%s, %s *out) {\n", conv.ID, args, ctype)
		emitLoopNest(&b, cfg, strides, func(indent string, centerExpr string) {
			fmt.Fprintf(&b, "%sdouble acc = 0.0;\n", indent)
			for _, t := range conv.Terms {
				idxExpr := neighborIndexExpr(cfg, strides, t.Offset)
				read := fmt.Sprintf("in_%s[%s]", t.InputGrid, idxExpr)
				switch t.MathFunc {
				case "":
					// raw read, nothing to wrap
				case "square":
					read = fmt.Sprintf("(%s)*(%s)", read, read)
				default:
					read = fmt.Sprintf("%s(%s)", cMathName(t.MathFunc), read)
				}
				fmt.Fprintf(&b, "%sacc += (%g) * %s;\n", indent, t.Coefficient, read)
			}
			fmt.Fprintf(&b, "%sout[%s] += acc;\n", indent, centerExpr)
		})
		b.WriteString("}\n\n")
	}

	if cfg.Boundary == topology.BoundaryCopy {
		emitBoundaryCopy(&b, cfg, strides, prog.InputNames[0], ctype)
	}

	fmt.Fprintf(&b, "void %s(%s, %s *out) {\n", entryPoint, args, ctype)
	if cfg.Boundary == topology.BoundaryCopy {
		fmt.Fprintf(&b, "  stencil_boundary_copy(in_%s, out);\n", prog.InputNames[0])
	}
	for _, conv := range prog.Convolutions {
		fmt.Fprintf(&b, "  kernel_c%d(%s, out);\n", conv.ID, inputArgNames(prog.InputNames))
	}
	b.WriteString("}\n")

	return b.String(), nil
}

func inputArgs(names []string, ctype string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("const %s *in_%s", ctype, n)
	}
	return strings.Join(parts, ", ")
}

func inputArgNames(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = "in_" + n
	}
	return strings.Join(parts, ", ")
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

// emitLoopNest emits a perfect loop nest over cfg.NDim dimensions, binding
// loop variables p0..p{ndim-1}, and calls body with the flat center-index
// expression once fully nested. Under `zero` and `copy` the nest is
// restricted to interior points ([ghost_depth[d], shape[d]-ghost_depth[d])
// per dimension); under `clamp` and `warp` it covers the full grid, since
// those modes compute boundary outputs too (only the neighbor reads are
// adjusted).
func emitLoopNest(b *strings.Builder, cfg backend.LowerConfig, strides []int, body func(indent, centerExpr string)) {
	ndim := cfg.NDim
	interiorOnly := cfg.Boundary == topology.BoundaryZero || cfg.Boundary == topology.BoundaryCopy

	for d := 0; d < ndim; d++ {
		indent := strings.Repeat("  ", d+1)
		lo, hi := 0, cfg.Shape[d]
		if interiorOnly {
			lo, hi = cfg.GhostDepth[d], cfg.Shape[d]-cfg.GhostDepth[d]
		}
		fmt.Fprintf(b, "%sfor (int p%d = %d; p%d < %d; p%d++) {\n", indent, d, lo, d, hi, d)
	}

	centerExpr := centerIndexExpr(ndim, strides)
	body(strings.Repeat("  ", ndim+1), centerExpr)

	for d := ndim - 1; d >= 0; d-- {
		fmt.Fprintf(b, "%s}\n", strings.Repeat("  ", d+1))
	}
}

func centerIndexExpr(ndim int, strides []int) string {
	parts := make([]string, ndim)
	for d := 0; d < ndim; d++ {
		parts[d] = fmt.Sprintf("p%d*%d", d, strides[d])
	}
	return strings.Join(parts, " + ")
}

// neighborIndexExpr builds the flat index expression reading the neighbor
// at the given per-dimension offset from the bound center point p0..pN,
// applying the active boundary mode's adjustment to each coordinate before
// multiplying by its stride.
func neighborIndexExpr(cfg backend.LowerConfig, strides []int, offset []int) string {
	parts := make([]string, cfg.NDim)
	for d := 0; d < cfg.NDim; d++ {
		off := 0
		if offset != nil {
			off = offset[d]
		}
		coord := fmt.Sprintf("p%d", d)
		if off != 0 {
			coord = fmt.Sprintf("(p%d %+d)", d, off)
		}
		switch cfg.Boundary {
		case topology.BoundaryClamp:
			coord = fmt.Sprintf("stencil_clamp(%s, %d)", coord, cfg.Shape[d])
		case topology.BoundaryWarp:
			coord = fmt.Sprintf("stencil_wrap(%s, %d)", coord, cfg.Shape[d])
		}
		parts[d] = fmt.Sprintf("(%s)*%d", coord, strides[d])
	}
	return strings.Join(parts, " + ")
}

// emitBoundaryCopy emits the `copy` boundary subkernel: for every point
// outside the interior band, copy the primary input straight to the
// output.
func emitBoundaryCopy(b *strings.Builder, cfg backend.LowerConfig, strides []int, primaryInput, ctype string) {
	fmt.Fprintf(b, "static void stencil_boundary_copy(const %s *in_%s, %s *out) {\n", ctype, primaryInput, ctype)
	ndim := cfg.NDim
	for d := 0; d < ndim; d++ {
		indent := strings.Repeat("  ", d+1)
		fmt.Fprintf(b, "%sfor (int p%d = 0; p%d < %d; p%d++) {\n", indent, d, d, cfg.Shape[d], d)
	}
	indent := strings.Repeat("  ", ndim+1)
	var cond []string
	for d := 0; d < ndim; d++ {
		cond = append(cond, fmt.Sprintf("(p%d < %d || p%d >= %d)", d, cfg.GhostDepth[d], d, cfg.Shape[d]-cfg.GhostDepth[d]))
	}
	centerExpr := centerIndexExpr(ndim, strides)
	fmt.Fprintf(b, "%sif (%s) {\n", indent, strings.Join(cond, " || "))
	fmt.Fprintf(b, "%s  out[%s] = in_%s[%s];\n", indent, centerExpr, primaryInput, centerExpr)
	fmt.Fprintf(b, "%s}\n", indent)
	for d := ndim - 1; d >= 0; d-- {
		fmt.Fprintf(b, "%s}\n", strings.Repeat("  ", d+1))
	}
	b.WriteString("}\n\n")
}

func cMathName(name string) string {
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

var supportedModes = []topology.BoundaryMode{
	topology.BoundaryZero, topology.BoundaryClamp, topology.BoundaryCopy, topology.BoundaryWarp,
}
