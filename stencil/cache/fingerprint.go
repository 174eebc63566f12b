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

// Package cache implements the specialization cache: a map from
// argument-configuration fingerprint to compiled artifact, guaranteeing at
// most one concurrent build per fingerprint and caching both successes and
// failures.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"fmt"

	"github.com/sinayoko/stencil-code/stencil/grid"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// Fingerprint is the tuple of invocation attributes that identifies a
// compiled specialization: (ndim, shape, dtype, boundary handling,
// neighborhoods, ghost depth, coefficients, backend id). Two invocations
// with equal fingerprints reuse the same compiled artifact.
type Fingerprint struct {
	NDim          int
	Shape         []int
	Dtype         grid.DType
	Boundary      topology.BoundaryMode
	Neighborhoods [][]topology.Offset
	GhostDepth    []int
	Coefficients  []float64
	BackendID     string
}

// gobFingerprint mirrors Fingerprint for deterministic gob encoding;
// Fingerprint itself is kept free of gob struct tags to stay a plain value
// type used throughout the rest of the package.
type gobFingerprint struct {
	NDim          int
	Shape         []int
	Dtype         int
	Boundary      int
	Neighborhoods [][][]int
	GhostDepth    []int
	Coefficients  []float64
	BackendID     string
}

// Key returns a stable hash of the fingerprint, used both as the in-memory
// cache map key and as the on-disk record key.
func (f Fingerprint) Key() string {
	g := gobFingerprint{
		NDim:         f.NDim,
		Shape:        f.Shape,
		Dtype:        int(f.Dtype),
		Boundary:     int(f.Boundary),
		GhostDepth:   f.GhostDepth,
		Coefficients: f.Coefficients,
		BackendID:    f.BackendID,
	}
	for _, n := range f.Neighborhoods {
		offs := make([][]int, len(n))
		for i, o := range n {
			offs[i] = append([]int(nil), o...)
		}
		g.Neighborhoods = append(g.Neighborhoods, offs)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		// Encoding a plain value struct of ints/slices/strings never fails;
		// a panic here would indicate a field type gob cannot handle.
		panic(fmt.Sprintf("cache: fingerprint is not gob-encodable: %v", err))
	}
	sum := sha256.Sum256(buf.Bytes())
	return fmt.Sprintf("%x", sum)
}

// Bytes returns the fingerprint encoded for the persisted record's
// fingerprint_bytes field.
func (f Fingerprint) Bytes() []byte {
	g := gobFingerprint{
		NDim:         f.NDim,
		Shape:        f.Shape,
		Dtype:        int(f.Dtype),
		Boundary:     int(f.Boundary),
		GhostDepth:   f.GhostDepth,
		Coefficients: f.Coefficients,
		BackendID:    f.BackendID,
	}
	for _, n := range f.Neighborhoods {
		offs := make([][]int, len(n))
		for i, o := range n {
			offs[i] = append([]int(nil), o...)
		}
		g.Neighborhoods = append(g.Neighborhoods, offs)
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(g)
	return buf.Bytes()
}
