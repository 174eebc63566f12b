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

// stencilc runs example stencil kernels from the command line, mostly as
// a way to inspect the source each backend generates and to sanity-check
// a device setup.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sinayoko/stencil-code/stencil"
	"github.com/sinayoko/stencil-code/stencil/grid"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

var (
	flagBackend  string
	flagBoundary string
	flagSize     int
	flagTesting  bool
	flagShowSrc  bool
)

func main() {
	root := &cobra.Command{
		Use:           "stencilc",
		Short:         "Run example stencil kernels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagBackend, "backend", "reference", "lowering backend: reference, c, ocl")
	root.PersistentFlags().StringVar(&flagBoundary, "boundary", "zero", "boundary handling: zero, clamp, copy, warp")
	root.PersistentFlags().IntVar(&flagSize, "size", 8, "grid edge length")
	root.PersistentFlags().BoolVar(&flagTesting, "testing", false, "force local_size=(1,...,1) and skip device inspection")
	root.PersistentFlags().BoolVar(&flagShowSrc, "source", false, "print the generated kernel source instead of the result")

	root.AddCommand(laplacianCmd(), jacobiCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stencilc: %v\n", err)
		os.Exit(1)
	}
}

// laplacianCmd applies the 5-point Laplacian to a grid of ones.
func laplacianCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "laplacian",
		Short: "2-D 5-point Laplacian over a grid of ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			nbr, err := topology.Custom([]topology.Offset{{0, 0}, {-1, 0}, {1, 0}, {0, -1}, {0, 1}})
			if err != nil {
				return err
			}
			coeffs := stencil.NewCoefficients([][][]float64{{{-4, 1, 1, 1, 1}}})
			kernel := ir.KernelSpec{Convolutions: []ir.Convolution{{
				Terms: []ir.Term{{NeighborhoodID: 0, InputGrid: "in", UsesTable: true}},
			}}}
			return runKernel(kernel, []topology.Neighborhood{nbr}, coeffs)
		},
	}
}

// jacobiCmd applies one weighted Jacobi sweep with split horizontal and
// vertical neighborhoods.
func jacobiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jacobi",
		Short: "2-D Jacobi sweep with directional weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			horiz, err := topology.Custom([]topology.Offset{{0, -1}, {0, 1}})
			if err != nil {
				return err
			}
			vert, err := topology.Custom([]topology.Offset{{-1, 0}, {1, 0}})
			if err != nil {
				return err
			}
			kernel := ir.KernelSpec{Convolutions: []ir.Convolution{{
				Terms: []ir.Term{
					{NeighborhoodID: 0, InputGrid: "in", Literal: 0.1},
					{NeighborhoodID: 1, InputGrid: "in", Literal: 0.3},
				},
			}}}
			return runKernel(kernel, []topology.Neighborhood{horiz, vert}, nil)
		},
	}
}

func runKernel(kernel ir.KernelSpec, neighborhoods []topology.Neighborhood, coeffs *stencil.Coefficients) error {
	opts := []stencil.Option{
		stencil.WithNeighborhoods(neighborhoods...),
		stencil.WithBackend(flagBackend),
		stencil.WithBoundaryHandling(flagBoundary),
	}
	if coeffs != nil {
		opts = append(opts, stencil.WithCoefficients(coeffs))
	}
	if flagTesting {
		opts = append(opts, stencil.WithTesting())
	}

	st, err := stencil.Define(kernel, opts...)
	if err != nil {
		return err
	}
	defer st.Close()

	in := grid.New([]int{flagSize, flagSize}, grid.Float64)
	for i := range in.Data {
		in.Data[i] = 1
	}

	if flagShowSrc {
		src, err := st.Source(in)
		if err != nil {
			return err
		}
		fmt.Println(src)
		return nil
	}

	out, err := st.Apply(context.Background(), in)
	if err != nil {
		return err
	}
	printGrid(out)
	return nil
}

func printGrid(g *grid.Grid) {
	for i := 0; i < g.Shape[0]; i++ {
		for j := 0; j < g.Shape[1]; j++ {
			fmt.Printf("%7.3f ", g.At([]int{i, j}))
		}
		fmt.Println()
	}
}
