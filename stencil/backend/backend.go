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

// Package backend defines the interface every lowering target (reference,
// CPU, OpenCL) implements: one small interface, one concrete
// implementation per target, no shared mutable base state.
package backend

import (
	"context"

	"github.com/sinayoko/stencil-code/stencil/grid"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/plan"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// Artifact is an opaque compiled specialization: generated source
// (possibly empty, for backends with nothing to show), plus whatever state
// Launch needs to execute it.
type Artifact interface {
	// Source returns the generated kernel source for inspection/caching,
	// or "" if the backend has none (the reference backend).
	Source() string
}

// LowerConfig bundles everything a backend's Lower needs beyond the
// lowered program itself.
type LowerConfig struct {
	NDim            int
	Shape           []int
	GhostDepth      []int
	Boundary        topology.BoundaryMode
	Dtype           grid.DType
	NumConvolutions int
	Testing         bool
	Device          plan.DeviceCaps
}

// Buffers is the launch-time binding of grids to a compiled artifact:
// inputs keyed by grid name, the output, and the geometry needed to
// re-derive interior/boundary ranges without re-planning.
type Buffers struct {
	Inputs     map[string]*grid.Grid
	Output     *grid.Grid
	GhostDepth []int
}

// Backend lowers a Stencil IR program into a target-specific artifact and
// executes it. One concrete type implements this per target; there is no
// shared mutable base state between them.
type Backend interface {
	// ID names the backend, matching the `backend` configuration option:
	// "reference", "c", or "ocl".
	ID() string

	// SupportedBoundaryModes lists the boundary handling modes this
	// backend implements; Lower fails with an UnsupportedBoundaryError
	// for any other mode.
	SupportedBoundaryModes() []topology.BoundaryMode

	// Lower compiles prog into an Artifact for cfg's geometry and
	// boundary mode.
	Lower(prog *ir.LoweredProgram, cfg LowerConfig) (Artifact, error)

	// Launch executes a previously-lowered Artifact against buf,
	// producing buf.Output in place.
	Launch(ctx context.Context, artifact Artifact, buf Buffers) error
}

// Supports reports whether mode is in modes.
func Supports(modes []topology.BoundaryMode, mode topology.BoundaryMode) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}

// UnsupportedBoundaryError reports that a backend has no implementation
// for the selected boundary handling mode.
type UnsupportedBoundaryError struct {
	BackendID string
	Mode      topology.BoundaryMode
}

func (e *UnsupportedBoundaryError) Error() string {
	return e.BackendID + ": unsupported boundary handling " + e.Mode.String()
}
