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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var crossOffsets = [][]Offset{
	{{0, 0}, {-1, 0}, {1, 0}, {0, -1}, {0, 1}},
}

// TestBuildSingleConvolution verifies the IR shape for a plain kernel:
// one InteriorPointsLoop holding one NeighborPointsLoop per term.
func TestBuildSingleConvolution(t *testing.T) {
	b := NewBuilder(crossOffsets, 2, []string{"in"}, "out")
	fn, err := b.Build("k", KernelSpec{Convolutions: []Convolution{{
		Terms: []Term{{NeighborhoodID: 0, InputGrid: "in", Literal: 1}},
	}}})
	require.NoError(t, err)

	require.Len(t, fn.Operations, 1)
	interior := fn.Operations[0]
	require.Equal(t, KindInteriorPointsLoop, interior.Kind)
	require.Len(t, interior.Body, 1)
	require.Equal(t, KindNeighborPointsLoop, interior.Body[0].Kind)
	require.NoError(t, Validate(fn))
}

// TestBuildMultiConvolution verifies that several convolutions become
// MultiPointsLoops under one interior loop.
func TestBuildMultiConvolution(t *testing.T) {
	b := NewBuilder(crossOffsets, 2, []string{"in"}, "out")
	spec := KernelSpec{Convolutions: []Convolution{
		{Terms: []Term{{NeighborhoodID: 0, InputGrid: "in", Literal: 1}}},
		{Terms: []Term{{NeighborhoodID: 0, InputGrid: "in", Literal: 2}}},
		{Terms: []Term{{NeighborhoodID: 0, InputGrid: "in", Literal: 3}}},
	}}
	fn, err := b.Build("k", spec)
	require.NoError(t, err)

	interior := fn.Operations[0]
	require.Len(t, interior.Body, 3)
	for i, mp := range interior.Body {
		require.Equal(t, KindMultiPointsLoop, mp.Kind)
		require.Equal(t, i, mp.ConvolutionID)
	}
	require.NoError(t, Validate(fn))
}

// TestBuildErrors covers the construction failure cases: unknown
// neighborhood id, unrecognized input grid, dimensionality mismatch, and
// an empty kernel.
func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		offsets [][]Offset
		ndim    int
		spec    KernelSpec
	}{
		{
			name:    "unknown neighborhood",
			offsets: crossOffsets,
			ndim:    2,
			spec:    KernelSpec{Convolutions: []Convolution{{Terms: []Term{{NeighborhoodID: 3, InputGrid: "in"}}}}},
		},
		{
			name:    "unrecognized input grid",
			offsets: crossOffsets,
			ndim:    2,
			spec:    KernelSpec{Convolutions: []Convolution{{Terms: []Term{{NeighborhoodID: 0, InputGrid: "mystery"}}}}},
		},
		{
			name:    "dimensionality mismatch",
			offsets: [][]Offset{{{0, 0, 1}}},
			ndim:    2,
			spec:    KernelSpec{Convolutions: []Convolution{{Terms: []Term{{NeighborhoodID: 0, InputGrid: "in"}}}}},
		},
		{
			name:    "zero convolutions",
			offsets: crossOffsets,
			ndim:    2,
			spec:    KernelSpec{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(tt.offsets, tt.ndim, []string{"in"}, "out")
			_, err := b.Build("k", tt.spec)
			if err == nil {
				t.Fatal("expected construction error")
			}
			var ce *ConstructionError
			if !errors.As(err, &ce) {
				t.Fatalf("error %v is not a ConstructionError", err)
			}
		})
	}
}

// TestValidateRejectsOrphanNeighborLoop checks the nesting invariant on
// hand-built IR: a NeighborPointsLoop outside an InteriorPointsLoop.
func TestValidateRejectsOrphanNeighborLoop(t *testing.T) {
	fn := &Function{
		Name: "k",
		NDim: 2,
		Operations: []*Node{
			{Kind: KindNeighborPointsLoop, Target: "n0", NeighborID: 0},
		},
	}
	if err := Validate(fn); err == nil {
		t.Fatal("expected nesting violation")
	}
}

// TestValidateRejectsUnboundTarget checks that a GridElement indexed by a
// target no enclosing loop binds is rejected.
func TestValidateRejectsUnboundTarget(t *testing.T) {
	fn := &Function{
		Name: "k",
		NDim: 2,
		Operations: []*Node{{
			Kind:   KindInteriorPointsLoop,
			Target: "p",
			Body: []*Node{{
				Kind:     KindGridElement,
				GridName: "in",
				Index:    &Index{Target: "phantom"},
			}},
		}},
	}
	if err := Validate(fn); err == nil {
		t.Fatal("expected unbound-target violation")
	}
}

// TestLowerUnrollsNeighborhood verifies full unrolling: one term per
// offset, each carrying the substituted center+offset index.
func TestLowerUnrollsNeighborhood(t *testing.T) {
	b := NewBuilder(crossOffsets, 2, []string{"in"}, "out")
	fn, err := b.Build("k", KernelSpec{Convolutions: []Convolution{{
		Terms: []Term{{NeighborhoodID: 0, InputGrid: "in", Literal: 0.25}},
	}}})
	require.NoError(t, err)

	prog, err := Lower(fn, crossOffsets, nil)
	require.NoError(t, err)
	require.Len(t, prog.Convolutions, 1)
	terms := prog.Convolutions[0].Terms
	require.Len(t, terms, 5)
	for i, term := range terms {
		require.Equal(t, "in", term.InputGrid)
		require.Equal(t, 0.25, term.Coefficient)
		require.Equal(t, []int(crossOffsets[0][i]), term.Offset)
	}
}

// tableOf adapts a flat coefficient slice to the CoefficientTable
// interface for lowering tests.
type tableOf struct{ values []float64 }

func (c tableOf) Lookup(conv, channel, pos int) (float64, error) {
	_ = conv
	_ = channel
	return c.values[pos], nil
}

// TestLowerResolvesTableCoefficients verifies that table-backed terms
// become per-position literal coefficients.
func TestLowerResolvesTableCoefficients(t *testing.T) {
	b := NewBuilder(crossOffsets, 2, []string{"in"}, "out")
	fn, err := b.Build("k", KernelSpec{Convolutions: []Convolution{{
		Terms: []Term{{NeighborhoodID: 0, InputGrid: "in", UsesTable: true}},
	}}})
	require.NoError(t, err)

	prog, err := Lower(fn, crossOffsets, tableOf{values: []float64{-4, 1, 1, 1, 1}})
	require.NoError(t, err)
	terms := prog.Convolutions[0].Terms
	require.Equal(t, -4.0, terms[0].Coefficient)
	for _, term := range terms[1:] {
		require.Equal(t, 1.0, term.Coefficient)
	}
}

// TestLowerWithoutTableFails verifies that a table-backed term with no
// supplied table is an error, not a silent zero.
func TestLowerWithoutTableFails(t *testing.T) {
	b := NewBuilder(crossOffsets, 2, []string{"in"}, "out")
	fn, err := b.Build("k", KernelSpec{Convolutions: []Convolution{{
		Terms: []Term{{NeighborhoodID: 0, InputGrid: "in", UsesTable: true}},
	}}})
	require.NoError(t, err)

	if _, err := Lower(fn, crossOffsets, nil); err == nil {
		t.Fatal("expected missing-table error")
	}
}

// TestLowerMultiConvolution verifies per-convolution term lists with
// distinct coefficients.
func TestLowerMultiConvolution(t *testing.T) {
	b := NewBuilder(crossOffsets, 2, []string{"in"}, "out")
	spec := KernelSpec{Convolutions: []Convolution{
		{Terms: []Term{{NeighborhoodID: 0, InputGrid: "in", Literal: 1}}},
		{Terms: []Term{{NeighborhoodID: 0, InputGrid: "in", Literal: 2}}},
	}}
	fn, err := b.Build("k", spec)
	require.NoError(t, err)

	prog, err := Lower(fn, crossOffsets, nil)
	require.NoError(t, err)
	require.Len(t, prog.Convolutions, 2)
	require.Equal(t, 1.0, prog.Convolutions[0].Terms[0].Coefficient)
	require.Equal(t, 2.0, prog.Convolutions[1].Terms[0].Coefficient)
}

// TestCloneIsDeep verifies that mutating a clone leaves the original
// untouched.
func TestCloneIsDeep(t *testing.T) {
	n := &Node{
		Kind:  KindGridElement,
		Index: &Index{Target: "p", Offset: []int{1, 0}},
		Body:  []*Node{{Kind: KindConst, Value: 3}},
	}
	c := n.Clone()
	c.Index.Offset[0] = 99
	c.Body[0].Value = 42
	if n.Index.Offset[0] != 1 || n.Body[0].Value != 3 {
		t.Error("Clone shares state with original")
	}
}
