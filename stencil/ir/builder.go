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

package ir

import "fmt"

// ConstructionError is raised by the frontend capture (Build) when the
// user's kernel definition cannot be turned into valid IR: an unrecognized
// neighborhood id, a read from an unrecognized input grid, a
// dimensionality mismatch between neighborhood offsets and the grids, or a
// spec with no convolutions. Every term accumulates into the declared
// output, so a KernelSpec has no way to name another output grid.
//
// The root stencil package wraps this into a stencil.Error with
// Kind == IRConstructionError at the public API boundary.
type ConstructionError struct {
	Reason string
}

func (e *ConstructionError) Error() string { return fmt.Sprintf("ir: %s", e.Reason) }

// Term describes one contribution accumulated into the output at each
// interior point: coefficient * f(input[neighbor in neighborhood k]),
// summed across every term of a convolution.
type Term struct {
	// NeighborhoodID selects neighborhoods[NeighborhoodID].
	NeighborhoodID int

	// InputGrid is the input grid this term reads from.
	InputGrid string

	// MathFunc optionally wraps the read in a MathFunction call (e.g.
	// "sqrt"); empty means the raw value is used.
	MathFunc string

	// Literal is used as the term's coefficient when UsesTable is false.
	Literal float64

	// UsesTable selects a dense coefficient table lookup instead of
	// Literal; TableChannel is the table's channel axis. The remaining two
	// axes, convolution id and neighbor position, are filled in during
	// lowering (ir.Lower), since only the lowering pass knows which
	// neighbor-offset position within the neighborhood a given unrolled
	// term corresponds to.
	UsesTable    bool
	TableChannel int
}

// Convolution is one pass of term accumulation into the output, identified
// by its 0-based position in KernelSpec.Convolutions. A KernelSpec with len(Convolutions) > 1
// becomes a MultiPointsLoop; exactly one becomes a plain accumulation
// directly inside the InteriorPointsLoop.
type Convolution struct {
	Terms []Term
}

// KernelSpec is the structured form of the user's kernel definition the
// frontend accepts in place of a raw host-language syntax tree: an
// explicit list of per-convolution term lists.
type KernelSpec struct {
	Convolutions []Convolution
}

// Builder walks a KernelSpec and produces Stencil IR, validating
// neighborhood references, grid names, and dimensionality as it goes.
type Builder struct {
	neighborhoodOffsets [][]Offset
	ndim                int
	inputNames          []string
	outputName          string
}

// Offset mirrors topology.Offset without importing the topology package,
// keeping ir dependency-free of the rest of the module.
type Offset = []int

// NewBuilder creates a Builder bound to the given neighborhoods (as raw
// offset lists, one per neighborhood id), grid dimensionality, and the
// recognized input/output grid names.
func NewBuilder(neighborhoodOffsets [][]Offset, ndim int, inputNames []string, outputName string) *Builder {
	return &Builder{
		neighborhoodOffsets: neighborhoodOffsets,
		ndim:                ndim,
		inputNames:          inputNames,
		outputName:          outputName,
	}
}

func (b *Builder) isKnownInput(name string) bool {
	for _, n := range b.inputNames {
		if n == name {
			return true
		}
	}
	return false
}

// Build lowers spec into a Function. name is the emitted function's name.
func (b *Builder) Build(name string, spec KernelSpec) (*Function, error) {
	if len(spec.Convolutions) == 0 {
		return nil, &ConstructionError{Reason: "kernel spec declares zero convolutions"}
	}
	for _, conv := range spec.Convolutions {
		for _, t := range conv.Terms {
			if t.NeighborhoodID < 0 || t.NeighborhoodID >= len(b.neighborhoodOffsets) {
				return nil, &ConstructionError{Reason: fmt.Sprintf("term references unknown neighborhood id %d (have %d)", t.NeighborhoodID, len(b.neighborhoodOffsets))}
			}
			if !b.isKnownInput(t.InputGrid) {
				return nil, &ConstructionError{Reason: fmt.Sprintf("term reads from unrecognized input grid %q", t.InputGrid)}
			}
			for _, off := range b.neighborhoodOffsets[t.NeighborhoodID] {
				if len(off) != b.ndim {
					return nil, &ConstructionError{Reason: fmt.Sprintf("neighborhood %d offset %v has dimensionality %d, grids have %d", t.NeighborhoodID, off, len(off), b.ndim)}
				}
			}
		}
	}

	fn := &Function{
		Name:       name,
		NDim:       b.ndim,
		InputNames: append([]string(nil), b.inputNames...),
		OutputName: b.outputName,
	}

	center := "p"
	interior := &Node{Kind: KindInteriorPointsLoop, Target: center}

	if len(spec.Convolutions) == 1 {
		interior.Body = b.buildConvolutionBody(center, spec.Convolutions[0])
	} else {
		for c, conv := range spec.Convolutions {
			mp := &Node{
				Kind:          KindMultiPointsLoop,
				Target:        center,
				ConvolutionID: c,
				InputTarget:   conv.Terms[0].InputGrid,
				OutputTarget:  b.outputName,
			}
			mp.Body = b.buildConvolutionBody(center, conv)
			interior.Body = append(interior.Body, mp)
		}
	}

	fn.Operations = []*Node{interior}
	return fn, nil
}

// buildConvolutionBody emits, for one convolution, one NeighborPointsLoop
// per term (two terms on the same neighborhood get two loops), each accumulating
// coefficient * f(input[neighbor]) into the output.
func (b *Builder) buildConvolutionBody(center string, conv Convolution) []*Node {
	var body []*Node
	for _, t := range conv.Terms {
		neighborTarget := fmt.Sprintf("n%d", t.NeighborhoodID)
		loop := &Node{Kind: KindNeighborPointsLoop, Target: neighborTarget, NeighborID: t.NeighborhoodID}

		read := &Node{Kind: KindGridElement, GridName: t.InputGrid, Index: &Index{Target: neighborTarget}}

		var value *Node = read
		if t.MathFunc != "" {
			value = &Node{Kind: KindMathFunction, FuncName: t.MathFunc, Args: []*Node{read}}
		}

		var coeff *Node
		if t.UsesTable {
			coeff = &Node{Kind: KindCoefficientRef, CoeffIndex: []int{t.TableChannel}}
		} else {
			coeff = &Node{Kind: KindConst, Value: t.Literal}
		}

		mul := &Node{Kind: KindMathFunction, FuncName: "mul", Args: []*Node{coeff, value}}
		out := &Node{Kind: KindGridElement, GridName: b.outputName, Index: &Index{Target: center}}
		acc := &Node{Kind: KindAccumulate, Args: []*Node{out, mul}}

		loop.Body = []*Node{acc}
		body = append(body, loop)
	}
	return body
}
