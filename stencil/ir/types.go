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

// Package ir provides the stencil intermediate representation: a typed
// tree of nodes (InteriorPointsLoop, NeighborPointsLoop, MultiPointsLoop,
// GridElement, MathFunction) built by the frontend capture from a user
// kernel definition, and a lowering transformer that rewrites it into a
// flat, fully-unrolled array-indexing form consumed by the CPU and OpenCL
// backends.
package ir

import "fmt"

// Kind categorizes an IR node.
type Kind int

const (
	// KindInteriorPointsLoop iterates over all points whose distance from
	// every boundary is >= ghost_depth in that dimension.
	KindInteriorPointsLoop Kind = iota

	// KindNeighborPointsLoop iterates over neighborhood NeighborID around
	// the enclosing interior point. Must be nested inside an
	// InteriorPointsLoop (directly or via a MultiPointsLoop).
	KindNeighborPointsLoop

	// KindMultiPointsLoop emits multiple convolutions per center point,
	// with coefficients looked up per convolution id.
	KindMultiPointsLoop

	// KindGridElement is an array read (of an input grid) or write (of the
	// output grid).
	KindGridElement

	// KindMathFunction calls into device math (e.g. sqrt, a polynomial
	// approximation) over its arguments: one for a device math call, two
	// for the builder's mul(coefficient, value) node.
	KindMathFunction

	// KindCoefficientRef looks up a constant from the coefficient table.
	KindCoefficientRef

	// KindConst is a literal floating point constant.
	KindConst

	// KindAccumulate adds its single input's value into the output
	// GridElement at the current point ("out[p] += value").
	KindAccumulate
)

func (k Kind) String() string {
	switch k {
	case KindInteriorPointsLoop:
		return "InteriorPointsLoop"
	case KindNeighborPointsLoop:
		return "NeighborPointsLoop"
	case KindMultiPointsLoop:
		return "MultiPointsLoop"
	case KindGridElement:
		return "GridElement"
	case KindMathFunction:
		return "MathFunction"
	case KindCoefficientRef:
		return "CoefficientRef"
	case KindConst:
		return "Const"
	case KindAccumulate:
		return "Accumulate"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Index describes which grid point a GridElement reads or writes:
// either the enclosing interior point ("center", Offset==nil) or a point
// relative to a bound neighbor target ("center + offset").
type Index struct {
	// Target names the enclosing loop binding this index is relative to:
	// the InteriorPointsLoop's target for a center access, or a
	// NeighborPointsLoop's Target for a neighbor access.
	Target string

	// Offset is nil for a center access, or the neighbor displacement
	// otherwise (copied from the bound NeighborPointsLoop's neighborhood
	// once unrolled).
	Offset []int
}

// Node is one element of the stencil IR tree.
type Node struct {
	Kind Kind

	// ---- InteriorPointsLoop / NeighborPointsLoop / MultiPointsLoop ----

	// Target is the point-binding variable introduced by this loop
	// (InteriorPointsLoop's center, or NeighborPointsLoop's neighbor
	// target).
	Target string

	// NeighborID identifies which neighborhoods[k] a NeighborPointsLoop
	// iterates.
	NeighborID int

	// ConvolutionID identifies which convolution a MultiPointsLoop's
	// iteration corresponds to (0-based).
	ConvolutionID int

	// InputTarget/OutputTarget name the grids a MultiPointsLoop reads from
	// and writes to.
	InputTarget  string
	OutputTarget string

	Body []*Node

	// ---- GridElement ----

	GridName string
	Index    *Index

	// ---- MathFunction ----

	FuncName string
	Args     []*Node

	// ---- CoefficientRef ----

	CoeffIndex []int // (channel); convolution id and neighbor position are supplied by Lower

	// ---- Const ----

	Value float64
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Index != nil {
		idx := *n.Index
		idx.Offset = append([]int(nil), n.Index.Offset...)
		c.Index = &idx
	}
	c.CoeffIndex = append([]int(nil), n.CoeffIndex...)
	c.Body = cloneSlice(n.Body)
	c.Args = cloneSlice(n.Args)
	return &c
}

func cloneSlice(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Function is a single lowered stencil kernel body: a list of top-level
// statements (normally a single InteriorPointsLoop).
type Function struct {
	Name       string
	NDim       int
	InputNames []string
	OutputName string
	Operations []*Node
}
