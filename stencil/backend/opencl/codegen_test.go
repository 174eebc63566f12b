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
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/backend/reference"
	"github.com/sinayoko/stencil-code/stencil/grid"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/plan"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

func laplacianProgram() *ir.LoweredProgram {
	return &ir.LoweredProgram{
		NDim:       2,
		InputNames: []string{"in"},
		OutputName: "out",
		Convolutions: []ir.LoweredConvolution{{
			ID: 0,
			Terms: []ir.LoweredTerm{
				{InputGrid: "in", Offset: []int{0, 0}, Coefficient: -4},
				{InputGrid: "in", Offset: []int{-1, 0}, Coefficient: 1},
				{InputGrid: "in", Offset: []int{1, 0}, Coefficient: 1},
				{InputGrid: "in", Offset: []int{0, -1}, Coefficient: 1},
				{InputGrid: "in", Offset: []int{0, 1}, Coefficient: 1},
			},
		}},
	}
}

func lowerConfig(shape []int, boundary topology.BoundaryMode) backend.LowerConfig {
	ghost := make([]int, len(shape))
	for d := range ghost {
		ghost[d] = 1
	}
	return backend.LowerConfig{
		NDim:            len(shape),
		Shape:           shape,
		GhostDepth:      ghost,
		Boundary:        boundary,
		Dtype:           grid.Float64,
		NumConvolutions: 1,
		Testing:         true,
	}
}

// TestGeneratedKernelStructure pins the tiled-kernel skeleton: index
// macros, the cooperative loader loop, the barrier, and the guarded
// unrolled stencil op reading through the local tile.
func TestGeneratedKernelStructure(t *testing.T) {
	b := NewTesting()
	art, err := b.Lower(laplacianProgram(), lowerConfig([]int{8, 8}, topology.BoundaryZero))
	require.NoError(t, err)
	src := art.Source()

	require.Contains(t, src, "#define GLOBAL_IDX(")
	require.Contains(t, src, "#define LOCAL_IDX(")
	require.Contains(t, src, "__kernel void kernel_c0(")
	require.Contains(t, src, "__local double *block")
	require.Contains(t, src, "barrier(CLK_LOCAL_MEM_FENCE);")
	require.Contains(t, src, "for (int tid = thread_id;")
	require.Equal(t, 5, strings.Count(src, "acc +="), "one accumulate per unrolled neighbor")
	require.Contains(t, src, "out[global_index] += acc;")
}

// TestGeneratedLoaderBoundaryVariants verifies the per-mode halo-load
// adjustments.
func TestGeneratedLoaderBoundaryVariants(t *testing.T) {
	b := NewTesting()

	clampArt, err := b.Lower(laplacianProgram(), lowerConfig([]int{8, 8}, topology.BoundaryClamp))
	require.NoError(t, err)
	require.Contains(t, clampArt.Source(), "stencil_clamp(")

	warpArt, err := b.Lower(laplacianProgram(), lowerConfig([]int{8, 8}, topology.BoundaryWarp))
	require.NoError(t, err)
	require.Contains(t, warpArt.Source(), "stencil_wrap(")

	zeroArt, err := b.Lower(laplacianProgram(), lowerConfig([]int{8, 8}, topology.BoundaryZero))
	require.NoError(t, err)
	require.Contains(t, zeroArt.Source(), "block[")
	require.Contains(t, zeroArt.Source(), "] = 0;")
}

// TestGeneratedBoundaryPlates verifies one kernel per plate under copy
// handling and none otherwise.
func TestGeneratedBoundaryPlates(t *testing.T) {
	b := NewTesting()
	art, err := b.Lower(laplacianProgram(), lowerConfig([]int{8, 8}, topology.BoundaryCopy))
	require.NoError(t, err)
	src := art.Source()
	for _, name := range []string{"boundary_d0_lo", "boundary_d0_hi", "boundary_d1_lo", "boundary_d1_hi"} {
		require.Contains(t, src, "__kernel void "+name+"(")
	}

	zeroArt, err := b.Lower(laplacianProgram(), lowerConfig([]int{8, 8}, topology.BoundaryZero))
	require.NoError(t, err)
	require.NotContains(t, zeroArt.Source(), "boundary_d")
}

// TestPlatePlansPartitionBoundary verifies the plates cover every
// non-interior point exactly once.
func TestPlatePlansPartitionBoundary(t *testing.T) {
	cfg := lowerConfig([]int{6, 7}, topology.BoundaryCopy)
	plans := platePlans(cfg)

	covered := map[[2]int]int{}
	for _, p := range plans {
		for i := 0; i < p.GlobalSize[0]; i++ {
			for j := 0; j < p.GlobalSize[1]; j++ {
				covered[[2]int{i + p.Origin[0], j + p.Origin[1]}]++
			}
		}
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < 7; j++ {
			boundary := i == 0 || i == 5 || j == 0 || j == 6
			n := covered[[2]int{i, j}]
			if boundary && n != 1 {
				t.Errorf("boundary point (%d,%d) covered %d times, want 1", i, j, n)
			}
			if !boundary && n != 0 {
				t.Errorf("interior point (%d,%d) covered %d times, want 0", i, j, n)
			}
		}
	}
}

// fillPattern writes a deterministic non-uniform pattern.
func fillPattern(g *grid.Grid) {
	for i := range g.Data {
		g.Data[i] = float64((i*2654435761)%97) / 13.0
	}
}

// TestSimulatorMatchesReference runs the simulated tiled kernel against
// the sequential interpreter over every boundary mode and several
// tilings, expecting identical results.
func TestSimulatorMatchesReference(t *testing.T) {
	modes := []topology.BoundaryMode{
		topology.BoundaryZero, topology.BoundaryClamp, topology.BoundaryCopy, topology.BoundaryWarp,
	}
	devices := []plan.DeviceCaps{
		{}, // trivial testing device, local size all ones
		{MaxWorkGroup: 16, MaxPerDim: []int{16, 16}, LocalMemBytes: 1 << 16},
		{MaxWorkGroup: 64, MaxPerDim: []int{64, 64}, LocalMemBytes: 1 << 16},
	}

	for _, mode := range modes {
		for di, caps := range devices {
			cfg := lowerConfig([]int{10, 12}, mode)
			cfg.Testing = caps.MaxWorkGroup == 0
			cfg.Device = caps

			in := grid.New([]int{10, 12}, grid.Float64)
			fillPattern(in)

			oclOut := grid.New([]int{10, 12}, grid.Float64)
			b := NewTesting()
			art, err := b.Lower(laplacianProgram(), cfg)
			require.NoError(t, err)
			err = b.Launch(context.Background(), art, backend.Buffers{
				Inputs:     map[string]*grid.Grid{"in": in},
				Output:     oclOut,
				GhostDepth: cfg.GhostDepth,
			})
			require.NoError(t, err)

			refOut := grid.New([]int{10, 12}, grid.Float64)
			rb := reference.New()
			refArt, err := rb.Lower(laplacianProgram(), cfg)
			require.NoError(t, err)
			err = rb.Launch(context.Background(), refArt, backend.Buffers{
				Inputs:     map[string]*grid.Grid{"in": in},
				Output:     refOut,
				GhostDepth: cfg.GhostDepth,
			})
			require.NoError(t, err)

			for i := range refOut.Data {
				if diff := oclOut.Data[i] - refOut.Data[i]; diff > 1e-9 || diff < -1e-9 {
					t.Fatalf("mode %s device %d: element %d differs: %v vs %v",
						mode, di, i, oclOut.Data[i], refOut.Data[i])
				}
			}
		}
	}
}

// TestMultiConvolutionEmitsOneKernelEach verifies kernel_c0..kernel_c2
// share the program and tile but carry their own coefficients.
func TestMultiConvolutionEmitsOneKernelEach(t *testing.T) {
	prog := &ir.LoweredProgram{
		NDim:       2,
		InputNames: []string{"in"},
		OutputName: "out",
		Convolutions: []ir.LoweredConvolution{
			{ID: 0, Terms: []ir.LoweredTerm{{InputGrid: "in", Offset: []int{0, 1}, Coefficient: 2}}},
			{ID: 1, Terms: []ir.LoweredTerm{{InputGrid: "in", Offset: []int{0, 1}, Coefficient: 4}}},
			{ID: 2, Terms: []ir.LoweredTerm{{InputGrid: "in", Offset: []int{0, 1}, Coefficient: 8}}},
		},
	}
	b := NewTesting()
	art, err := b.Lower(prog, lowerConfig([]int{8, 8}, topology.BoundaryZero))
	require.NoError(t, err)
	src := art.Source()
	for _, name := range []string{"kernel_c0", "kernel_c1", "kernel_c2"} {
		require.Contains(t, src, "__kernel void "+name+"(")
	}
}
