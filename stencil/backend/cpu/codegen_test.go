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

package cpu

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/grid"
	"github.com/sinayoko/stencil-code/stencil/ir"
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

func lowerConfig(boundary topology.BoundaryMode) backend.LowerConfig {
	return backend.LowerConfig{
		NDim:            2,
		Shape:           []int{8, 8},
		GhostDepth:      []int{1, 1},
		Boundary:        boundary,
		Dtype:           grid.Float64,
		NumConvolutions: 1,
	}
}

// TestGenerateSourceStructure pins the shape of the emitted translation
// unit: one control entry point calling one fully unrolled kernel per
// convolution.
func TestGenerateSourceStructure(t *testing.T) {
	src, err := generateSource(laplacianProgram(), lowerConfig(topology.BoundaryZero))
	require.NoError(t, err)

	require.Contains(t, src, "void stencil_control(")
	require.Contains(t, src, "static void kernel_c0(")
	require.Equal(t, 5, strings.Count(src, "acc +="), "one accumulate per unrolled neighbor")
	require.NotContains(t, src, "for (int n", "neighbor loops must be unrolled away")
}

// TestGenerateSourceBoundaryVariants verifies the per-mode index
// adjustments and the copy subkernel.
func TestGenerateSourceBoundaryVariants(t *testing.T) {
	clamp, err := generateSource(laplacianProgram(), lowerConfig(topology.BoundaryClamp))
	require.NoError(t, err)
	require.Contains(t, clamp, "stencil_clamp(")

	warp, err := generateSource(laplacianProgram(), lowerConfig(topology.BoundaryWarp))
	require.NoError(t, err)
	require.Contains(t, warp, "stencil_wrap(")

	cp, err := generateSource(laplacianProgram(), lowerConfig(topology.BoundaryCopy))
	require.NoError(t, err)
	require.Contains(t, cp, "stencil_boundary_copy(")

	zero, err := generateSource(laplacianProgram(), lowerConfig(topology.BoundaryZero))
	require.NoError(t, err)
	require.NotContains(t, zero, "stencil_boundary_copy(")
	// Interior-only loop bounds under zero handling.
	require.Contains(t, zero, "for (int p0 = 1; p0 < 7; p0++)")
}

// TestLaunchLaplacianZero runs the backend end to end: ones in, zero
// interior out, untouched zero boundary.
func TestLaunchLaplacianZero(t *testing.T) {
	b := New(2)
	defer b.Close()

	art, err := b.Lower(laplacianProgram(), lowerConfig(topology.BoundaryZero))
	require.NoError(t, err)

	in := grid.New([]int{8, 8}, grid.Float64)
	for i := range in.Data {
		in.Data[i] = 1
	}
	out := grid.New([]int{8, 8}, grid.Float64)

	err = b.Launch(context.Background(), art, backend.Buffers{
		Inputs:     map[string]*grid.Grid{"in": in},
		Output:     out,
		GhostDepth: []int{1, 1},
	})
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			if got := out.At([]int{i, j}); got != 0 {
				t.Fatalf("out[%d,%d] = %v, want 0 everywhere", i, j, got)
			}
		}
	}
}

// TestLaunchCopyBoundary verifies boundary outputs equal boundary inputs
// bit-exactly under copy handling.
func TestLaunchCopyBoundary(t *testing.T) {
	b := New(1)
	defer b.Close()

	art, err := b.Lower(laplacianProgram(), lowerConfig(topology.BoundaryCopy))
	require.NoError(t, err)

	in := grid.New([]int{8, 8}, grid.Float64)
	for i := range in.Data {
		in.Data[i] = float64(i) * 0.5
	}
	out := grid.New([]int{8, 8}, grid.Float64)

	err = b.Launch(context.Background(), art, backend.Buffers{
		Inputs:     map[string]*grid.Grid{"in": in},
		Output:     out,
		GhostDepth: []int{1, 1},
	})
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			onBoundary := i == 0 || i == 7 || j == 0 || j == 7
			if onBoundary && out.At([]int{i, j}) != in.At([]int{i, j}) {
				t.Fatalf("boundary out[%d,%d] = %v, want input value %v",
					i, j, out.At([]int{i, j}), in.At([]int{i, j}))
			}
		}
	}
}

// TestUnsupportedModeSurfacesTypedError verifies the typed error for a
// mode outside the backend's declared support.
func TestUnsupportedModeSurfacesTypedError(t *testing.T) {
	cfg := lowerConfig(topology.BoundaryMode(42))
	b := New(1)
	defer b.Close()
	_, err := b.Lower(laplacianProgram(), cfg)
	require.Error(t, err)
	var ub *backend.UnsupportedBoundaryError
	require.ErrorAs(t, err, &ub)
}
