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

// Package reference implements the `reference` backend (accepted under
// its historical alias "python" too): a direct, unoptimized Go
// interpretation of a LoweredProgram, with no unrolling beyond what
// ir.Lower already did and no tiling. Every fast path has this plain
// sibling as both fallback and correctness oracle; the CPU and OpenCL
// backends are tested against it.
package reference

import (
	"context"
	"fmt"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/internal/evalir"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// Backend is the reference interpreter.
type Backend struct{}

// New creates a reference Backend.
func New() *Backend { return &Backend{} }

func (b *Backend) ID() string { return "reference" }

func (b *Backend) SupportedBoundaryModes() []topology.BoundaryMode {
	return []topology.BoundaryMode{
		topology.BoundaryZero, topology.BoundaryClamp, topology.BoundaryCopy, topology.BoundaryWarp,
	}
}

// artifact carries the lowered program and geometry; it has no generated
// source text.
type artifact struct {
	prog *ir.LoweredProgram
	cfg  backend.LowerConfig
}

func (a *artifact) Source() string { return "" }

func (b *Backend) Lower(prog *ir.LoweredProgram, cfg backend.LowerConfig) (backend.Artifact, error) {
	if !backend.Supports(b.SupportedBoundaryModes(), cfg.Boundary) {
		return nil, &backend.UnsupportedBoundaryError{BackendID: b.ID(), Mode: cfg.Boundary}
	}
	return &artifact{prog: prog, cfg: cfg}, nil
}

func (b *Backend) Launch(ctx context.Context, art backend.Artifact, buf backend.Buffers) error {
	a, ok := art.(*artifact)
	if !ok {
		return fmt.Errorf("reference: artifact was not produced by this backend")
	}
	return run(a.prog, a.cfg, buf)
}

func run(prog *ir.LoweredProgram, cfg backend.LowerConfig, buf backend.Buffers) error {
	if cfg.Boundary == topology.BoundaryCopy {
		evalir.CopyBoundary(cfg.Shape, cfg.GhostDepth, prog.InputNames[0], buf)
	}

	lo, hi := evalir.InteriorBounds(cfg)
	buf.Output.EachPoint(lo, hi, func(point []int) {
		evalir.Point(prog, cfg, buf, point)
	})
	return nil
}
