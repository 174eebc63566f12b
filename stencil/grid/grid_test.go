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

package grid

import (
	"reflect"
	"testing"
)

// TestRowMajorStrides verifies C-order stride computation.
func TestRowMajorStrides(t *testing.T) {
	tests := []struct {
		shape []int
		want  []int
	}{
		{[]int{8}, []int{1}},
		{[]int{4, 5}, []int{5, 1}},
		{[]int{2, 3, 4}, []int{12, 4, 1}},
	}
	for _, tt := range tests {
		if got := RowMajorStrides(tt.shape); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("RowMajorStrides(%v) = %v, want %v", tt.shape, got, tt.want)
		}
	}
}

// TestNewAllocatesZeroed verifies element count and zero initialization.
func TestNewAllocatesZeroed(t *testing.T) {
	g := New([]int{3, 4}, Float64)
	if len(g.Data) != 12 {
		t.Fatalf("len(Data) = %d, want 12", len(g.Data))
	}
	for i, v := range g.Data {
		if v != 0 {
			t.Fatalf("Data[%d] = %v, want 0", i, v)
		}
	}
}

// TestNewFromBufferValidatesElementCount checks the
// element_count == product-of-shape invariant.
func TestNewFromBufferValidatesElementCount(t *testing.T) {
	if _, err := NewFromBuffer(make([]float64, 10), []int{3, 4}, Float64, nil); err == nil {
		t.Fatal("expected element-count mismatch error")
	}
	if _, err := NewFromBuffer(make([]float64, 12), []int{3, 4}, Float64, []int{1}); err == nil {
		t.Fatal("expected stride-arity mismatch error")
	}
	g, err := NewFromBuffer(make([]float64, 12), []int{3, 4}, Float64, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(g.Strides, []int{4, 1}) {
		t.Errorf("default strides = %v, want [4 1]", g.Strides)
	}
}

// TestAtSetRoundTrip exercises multi-dimensional indexing.
func TestAtSetRoundTrip(t *testing.T) {
	g := New([]int{3, 4}, Float64)
	g.Set([]int{2, 1}, 7.5)
	if got := g.At([]int{2, 1}); got != 7.5 {
		t.Errorf("At = %v, want 7.5", got)
	}
	if got := g.Data[2*4+1]; got != 7.5 {
		t.Errorf("flat storage = %v, want 7.5 at row-major position", got)
	}
}

// TestInBounds covers the range check at its edges.
func TestInBounds(t *testing.T) {
	g := New([]int{3, 4}, Float32)
	tests := []struct {
		index []int
		want  bool
	}{
		{[]int{0, 0}, true},
		{[]int{2, 3}, true},
		{[]int{3, 0}, false},
		{[]int{0, 4}, false},
		{[]int{-1, 0}, false},
	}
	for _, tt := range tests {
		if got := g.InBounds(tt.index); got != tt.want {
			t.Errorf("InBounds(%v) = %v, want %v", tt.index, got, tt.want)
		}
	}
}

// TestEachInterior verifies the interior enumerator honors the ghost
// band and visits in row-major order.
func TestEachInterior(t *testing.T) {
	g := New([]int{4, 5}, Float64)
	var visited [][]int
	g.EachInterior([]int{1, 1}, func(index []int) {
		visited = append(visited, append([]int(nil), index...))
	})
	want := [][]int{
		{1, 1}, {1, 2}, {1, 3},
		{2, 1}, {2, 2}, {2, 3},
	}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("EachInterior visited %v, want %v", visited, want)
	}
}

// TestDTypeSizes pins element widths used for buffer sizing.
func TestDTypeSizes(t *testing.T) {
	if Float32.Size() != 4 || Float64.Size() != 8 {
		t.Errorf("unexpected dtype sizes: %d, %d", Float32.Size(), Float64.Size())
	}
	if Float32.CType() != "float" || Float64.CType() != "double" {
		t.Errorf("unexpected C type names: %q, %q", Float32.CType(), Float64.CType())
	}
}
