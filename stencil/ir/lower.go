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

// CoefficientTable resolves a dense coefficient-table lookup at
// (convolutionID, channel, neighborPosition).
type CoefficientTable interface {
	Lookup(convolutionID, channel, neighborPosition int) (float64, error)
}

// LoweredTerm is one fully-resolved contribution to an output point:
// coefficient * [f](input[center + offset]). Lower copies Offset from the
// neighborhood, so a center access carries an all-zero offset; the
// backends also treat a nil Offset as zero.
type LoweredTerm struct {
	InputGrid   string
	Offset      []int
	Coefficient float64
	MathFunc    string
}

// LoweredConvolution is the flat list of terms accumulated into the output
// for one convolution id.
type LoweredConvolution struct {
	ID    int
	Terms []LoweredTerm
}

// LoweredProgram is the backend-agnostic, fully-unrolled low-level
// array-indexing IR both the CPU and OpenCL lowerings consume: it names,
// per convolution, the terms to sum at every interior point. It is
// produced by explicit IR cloning with a substitution map
// {neighbor_target -> center + offset}.
type LoweredProgram struct {
	NDim       int
	InputNames []string
	OutputName string

	Convolutions []LoweredConvolution
}

// Lower rewrites fn's NeighborPointsLoops into fully-unrolled terms, one
// per offset in the referenced neighborhood, substituting every neighbor
// access for an explicit center+offset access and resolving coefficients
// (literal or table-backed) to concrete floats.
func Lower(fn *Function, neighborhoodOffsets [][]Offset, coeffs CoefficientTable) (*LoweredProgram, error) {
	if len(fn.Operations) != 1 || fn.Operations[0].Kind != KindInteriorPointsLoop {
		return nil, fmt.Errorf("ir: lowering expects a single top-level InteriorPointsLoop, got %d ops", len(fn.Operations))
	}
	interior := fn.Operations[0]

	prog := &LoweredProgram{NDim: fn.NDim, InputNames: fn.InputNames, OutputName: fn.OutputName}

	multi := false
	for _, c := range interior.Body {
		if c.Kind == KindMultiPointsLoop {
			multi = true
		}
	}

	if !multi {
		terms, err := lowerConvolutionBody(interior.Body, neighborhoodOffsets, coeffs, 0)
		if err != nil {
			return nil, err
		}
		prog.Convolutions = []LoweredConvolution{{ID: 0, Terms: terms}}
		return prog, nil
	}

	for _, c := range interior.Body {
		if c.Kind != KindMultiPointsLoop {
			return nil, fmt.Errorf("ir: cannot mix MultiPointsLoop and bare NeighborPointsLoop under one InteriorPointsLoop")
		}
		terms, err := lowerConvolutionBody(c.Body, neighborhoodOffsets, coeffs, c.ConvolutionID)
		if err != nil {
			return nil, err
		}
		prog.Convolutions = append(prog.Convolutions, LoweredConvolution{ID: c.ConvolutionID, Terms: terms})
	}
	return prog, nil
}

func lowerConvolutionBody(body []*Node, neighborhoodOffsets [][]Offset, coeffs CoefficientTable, convID int) ([]LoweredTerm, error) {
	var terms []LoweredTerm
	for _, n := range body {
		if n.Kind != KindNeighborPointsLoop {
			return nil, fmt.Errorf("ir: expected NeighborPointsLoop in convolution body, got %s", n.Kind)
		}
		if n.NeighborID < 0 || n.NeighborID >= len(neighborhoodOffsets) {
			return nil, fmt.Errorf("ir: NeighborPointsLoop references unknown neighborhood id %d", n.NeighborID)
		}
		offsets := neighborhoodOffsets[n.NeighborID]
		for pos, off := range offsets {
			for _, stmt := range n.Body {
				term, err := unrollAccumulate(stmt, n.Target, off, coeffs, convID, pos)
				if err != nil {
					return nil, err
				}
				terms = append(terms, term)
			}
		}
	}
	return terms, nil
}

// substitute clones node, replacing every GridElement bound to `from`
// with a center access offset by `off`.
func substitute(node *Node, from string, off []int) *Node {
	clone := node.Clone()
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.Kind == KindGridElement && n.Index != nil && n.Index.Target == from {
			n.Index = &Index{Target: "center", Offset: append([]int(nil), off...)}
		}
		for _, a := range n.Args {
			walk(a)
		}
		for _, c := range n.Body {
			walk(c)
		}
	}
	walk(clone)
	return clone
}

// unrollAccumulate expects stmt to be an Accumulate(out, Mul(coeff,
// value)) node, as produced by Builder, and resolves it into one
// LoweredTerm for the given neighbor offset.
func unrollAccumulate(stmt *Node, neighborTarget string, off []int, coeffs CoefficientTable, convID, neighborPosition int) (LoweredTerm, error) {
	if stmt.Kind != KindAccumulate || len(stmt.Args) != 2 {
		return LoweredTerm{}, fmt.Errorf("ir: expected Accumulate(out, mul) node, got %s", stmt.Kind)
	}
	mul := substitute(stmt.Args[1], neighborTarget, off)
	if mul.Kind != KindMathFunction || mul.FuncName != "mul" || len(mul.Args) != 2 {
		return LoweredTerm{}, fmt.Errorf("ir: expected a mul(coeff, value) node")
	}
	coeffNode, valueNode := mul.Args[0], mul.Args[1]

	var coefficient float64
	switch coeffNode.Kind {
	case KindConst:
		coefficient = coeffNode.Value
	case KindCoefficientRef:
		if coeffs == nil {
			return LoweredTerm{}, fmt.Errorf("ir: term uses coefficient table but none was supplied")
		}
		channel := 0
		if len(coeffNode.CoeffIndex) > 0 {
			channel = coeffNode.CoeffIndex[0]
		}
		v, err := coeffs.Lookup(convID, channel, neighborPosition)
		if err != nil {
			return LoweredTerm{}, fmt.Errorf("ir: coefficient lookup: %w", err)
		}
		coefficient = v
	default:
		return LoweredTerm{}, fmt.Errorf("ir: unexpected coefficient node kind %s", coeffNode.Kind)
	}

	var mathFunc, inputGrid string
	var offset []int
	switch valueNode.Kind {
	case KindGridElement:
		inputGrid = valueNode.GridName
		offset = valueNode.Index.Offset
	case KindMathFunction:
		if len(valueNode.Args) != 1 || valueNode.Args[0].Kind != KindGridElement {
			return LoweredTerm{}, fmt.Errorf("ir: expected MathFunction wrapping a single GridElement")
		}
		mathFunc = valueNode.FuncName
		inputGrid = valueNode.Args[0].GridName
		offset = valueNode.Args[0].Index.Offset
	default:
		return LoweredTerm{}, fmt.Errorf("ir: unexpected value node kind %s", valueNode.Kind)
	}

	return LoweredTerm{
		InputGrid:   inputGrid,
		Offset:      offset,
		Coefficient: coefficient,
		MathFunc:    mathFunc,
	}, nil
}
