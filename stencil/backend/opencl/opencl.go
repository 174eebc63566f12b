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

package opencl

import (
	"context"
	"fmt"

	"github.com/jgillich/go-opencl/cl"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/cache"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/plan"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// CompilationError reports that the device compiler rejected the generated
// program. Source and Diagnostic carry the full program text and the build
// log.
type CompilationError struct {
	Source     string
	Diagnostic string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("opencl: program build failed: %s", e.Diagnostic)
}

// Backend is the `ocl` backend. With a bound Device it compiles and runs
// generated kernels through the driver; without one (NewTesting) it plans
// with the trivial testing device unless LowerConfig.Device carries
// explicit caps, and executes via the in-process simulator, which mirrors
// the generated kernel's control structure exactly.
type Backend struct {
	device *Device
}

// New binds the OpenCL device at deviceIndex (-1 selects the last device).
func New(deviceIndex int) (*Backend, error) {
	dev, err := OpenDevice(deviceIndex)
	if err != nil {
		return nil, err
	}
	return &Backend{device: dev}, nil
}

// NewTesting creates a Backend with no bound device. Lowering uses
// local_size = (1, ..., 1) when LowerConfig.Testing is set or no explicit
// LowerConfig.Device caps are given, and plans against those caps
// otherwise; Launch runs the simulator.
func NewTesting() *Backend { return &Backend{} }

// Close releases the bound device, if any.
func (b *Backend) Close() {
	if b.device != nil {
		b.device.Close()
	}
}

func (b *Backend) ID() string { return "ocl" }

func (b *Backend) SupportedBoundaryModes() []topology.BoundaryMode {
	return append([]topology.BoundaryMode(nil), supportedModes...)
}

type artifact struct {
	prog   *ir.LoweredProgram
	cfg    backend.LowerConfig
	wp     *plan.WorkPlan
	plates []PlatePlan
	source string

	// program/kernels are nil on the testing path.
	program *cl.Program
	kernels map[string]*cl.Kernel
}

func (a *artifact) Source() string { return a.source }

// Persist implements cache.Persistable: the on-disk record keeps the
// generated program text for inspection across restarts. Device program
// handles are not serializable, so Restore always reports a miss and a
// cold read rebuilds normally.
func (a *artifact) Persist() cache.Record {
	return cache.Record{SourceText: a.source}
}

// Restore implements cache.Restorable; see Persist.
func (b *Backend) Restore(rec cache.Record) (backend.Artifact, error) {
	return nil, fmt.Errorf("opencl: persisted records are audit-only and cannot be restored without recompiling")
}

func (b *Backend) Lower(prog *ir.LoweredProgram, cfg backend.LowerConfig) (backend.Artifact, error) {
	if !backend.Supports(supportedModes, cfg.Boundary) {
		return nil, &backend.UnsupportedBoundaryError{BackendID: b.ID(), Mode: cfg.Boundary}
	}

	// Plan against explicit caps when given (tests inject synthetic
	// devices this way), the bound device's caps otherwise. With neither,
	// fall back to the trivial testing device.
	caps := cfg.Device
	testing := cfg.Testing
	if caps.MaxWorkGroup == 0 {
		if b.device != nil {
			caps = b.device.Caps()
		} else {
			testing = true
		}
	}

	wp, err := plan.Plan(cfg.Shape, caps, cfg.GhostDepth, cfg.Dtype.Size(), testing)
	if err != nil {
		return nil, err
	}

	src, err := generateSource(prog, cfg, wp)
	if err != nil {
		return nil, err
	}

	a := &artifact{prog: prog, cfg: cfg, wp: wp, source: src}
	if cfg.Boundary == topology.BoundaryCopy {
		a.plates = platePlans(cfg)
	}

	if b.device != nil {
		if err := b.compile(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// compile builds the generated program on the bound device and resolves
// every entry point: one kernel per convolution plus the boundary plates.
func (b *Backend) compile(a *artifact) error {
	program, err := b.device.context.CreateProgramWithSource([]string{a.source})
	if err != nil {
		return deviceErr("create program", err)
	}
	if err := program.BuildProgram(nil, ""); err != nil {
		return &CompilationError{Source: a.source, Diagnostic: err.Error()}
	}

	kernels := make(map[string]*cl.Kernel)
	for _, conv := range a.prog.Convolutions {
		name := fmt.Sprintf("kernel_c%d", conv.ID)
		k, err := program.CreateKernel(name)
		if err != nil {
			return deviceErr("create kernel "+name, err)
		}
		kernels[name] = k
	}
	for _, plate := range a.plates {
		k, err := program.CreateKernel(plate.KernelName)
		if err != nil {
			return deviceErr("create kernel "+plate.KernelName, err)
		}
		kernels[plate.KernelName] = k
	}

	a.program = program
	a.kernels = kernels
	return nil
}

func (b *Backend) Launch(ctx context.Context, art backend.Artifact, buf backend.Buffers) error {
	a, ok := art.(*artifact)
	if !ok {
		return fmt.Errorf("opencl: artifact was not produced by this backend")
	}
	if b.device == nil || a.kernels == nil {
		return simulate(a, buf)
	}
	return b.device.launch(a, buf)
}
