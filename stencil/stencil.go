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

// Package stencil is the embedded API over the whole pipeline: define a
// stencil kernel against a set of neighborhoods once, then Apply it to
// grids. Each distinct argument configuration (shape, dtype, boundary
// handling, neighborhoods, coefficients, backend) is lowered and compiled
// once and memoized in a specialization cache; later applications with an
// equal configuration reuse the compiled artifact.
package stencil

import (
	"context"
	"fmt"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/backend/cpu"
	"github.com/sinayoko/stencil-code/stencil/backend/opencl"
	"github.com/sinayoko/stencil-code/stencil/backend/reference"
	"github.com/sinayoko/stencil-code/stencil/cache"
	"github.com/sinayoko/stencil-code/stencil/grid"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/plan"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// buildCache is what Apply needs from a specialization cache; both
// cache.Cache and cache.LRU satisfy it.
type buildCache interface {
	GetOrBuild(fp cache.Fingerprint, build cache.BuildFunc) (backend.Artifact, error)
}

type config struct {
	neighborhoods []topology.Neighborhood
	boundary      topology.BoundaryMode
	backendID     string
	coeffs        *Coefficients
	testing       bool
	numWorkers    int
	deviceIndex   int
	deviceCaps    plan.DeviceCaps
	cache         buildCache
	backend       backend.Backend
}

// Option configures Define.
type Option func(*config) error

// WithNeighborhoods binds the ordered neighborhood list the kernel's
// terms refer to by index.
func WithNeighborhoods(neighborhoods ...topology.Neighborhood) Option {
	return func(c *config) error {
		c.neighborhoods = neighborhoods
		return nil
	}
}

// WithBoundary selects the boundary handling mode.
func WithBoundary(mode topology.BoundaryMode) Option {
	return func(c *config) error {
		c.boundary = mode
		return nil
	}
}

// WithBoundaryHandling selects the boundary handling mode by its
// configuration name ("zero", "clamp", "copy", "warp").
func WithBoundaryHandling(name string) Option {
	return func(c *config) error {
		mode, err := topology.ParseBoundaryMode(name)
		if err != nil {
			return err
		}
		c.boundary = mode
		return nil
	}
}

// WithBackend selects the lowering pipeline: "reference" (alias
// "python"), "c", or "ocl".
func WithBackend(id string) Option {
	return func(c *config) error {
		if id == "python" {
			id = "reference"
		}
		switch id {
		case "reference", "c", "ocl":
			c.backendID = id
			return nil
		default:
			return fmt.Errorf("unknown backend %q", id)
		}
	}
}

// WithBackendInstance injects an already-constructed backend, overriding
// WithBackend. Useful for sharing one OpenCL context across stencils.
func WithBackendInstance(b backend.Backend) Option {
	return func(c *config) error {
		c.backend = b
		c.backendID = b.ID()
		return nil
	}
}

// WithCoefficients binds the dense coefficient table terms with UsesTable
// resolve against.
func WithCoefficients(coeffs *Coefficients) Option {
	return func(c *config) error {
		c.coeffs = coeffs
		return nil
	}
}

// WithTesting forces local_size = (1, ..., 1) and disables device
// inspection; the "ocl" backend runs its in-process simulator.
func WithTesting() Option {
	return func(c *config) error {
		c.testing = true
		return nil
	}
}

// WithWorkers sets the "c" backend's worker-pool size. n <= 0 uses
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) error {
		c.numWorkers = n
		return nil
	}
}

// WithDeviceIndex selects which OpenCL device the "ocl" backend binds;
// -1 (the default) selects the last device.
func WithDeviceIndex(index int) Option {
	return func(c *config) error {
		c.deviceIndex = index
		return nil
	}
}

// WithDeviceCaps overrides the device limits the work-size planner sees,
// instead of querying the bound device.
func WithDeviceCaps(caps plan.DeviceCaps) Option {
	return func(c *config) error {
		c.deviceCaps = caps
		return nil
	}
}

// WithCache injects a specialization cache, letting several stencils (or
// several processes' worth of fingerprints, via a persistent store) share
// one. Defaults to a fresh unbounded cache per stencil.
func WithCache(c buildCache) Option {
	return func(cfg *config) error {
		cfg.cache = c
		return nil
	}
}

// Stencil is a defined kernel bound to neighborhoods, coefficients, a
// boundary mode, and a backend. It is safe for concurrent Apply calls;
// concurrent invocations share only the specialization cache.
type Stencil struct {
	cfg        config
	prog       *ir.LoweredProgram
	inputNames []string
	ghost      []int
	offsets    [][]ir.Offset
	cache      buildCache
	backend    backend.Backend
}

// Define captures kernel into stencil IR against the configured
// neighborhoods, validates it, and lowers it to the backend-agnostic
// unrolled form. The per-shape backend compile is deferred to the first
// Apply with that shape.
func Define(kernel ir.KernelSpec, opts ...Option) (*Stencil, error) {
	cfg := config{
		boundary:    topology.BoundaryZero,
		backendID:   "reference",
		deviceIndex: -1,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, wrapError("configure", err, IRConstructionError)
		}
	}
	if len(cfg.neighborhoods) == 0 {
		return nil, &Error{Kind: IRConstructionError, Stage: "configure", Detail: "no neighborhoods declared"}
	}

	ghost, err := topology.GhostDepth(cfg.neighborhoods)
	if err != nil {
		return nil, wrapError("configure", err, IRConstructionError)
	}

	offsets := make([][]ir.Offset, len(cfg.neighborhoods))
	for i, n := range cfg.neighborhoods {
		offs := make([]ir.Offset, len(n.Offsets))
		for j, o := range n.Offsets {
			offs[j] = []int(o)
		}
		offsets[i] = offs
	}

	inputNames := collectInputNames(kernel)
	if len(inputNames) == 0 {
		return nil, &Error{Kind: IRConstructionError, Stage: "capture", Detail: "kernel reads no input grids"}
	}

	builder := ir.NewBuilder(offsets, cfg.neighborhoods[0].NDim, inputNames, "out")
	fn, err := builder.Build("stencil_kernel", kernel)
	if err != nil {
		return nil, wrapError("capture", err, IRConstructionError)
	}
	if err := ir.Validate(fn); err != nil {
		return nil, wrapError("capture", err, IRConstructionError)
	}

	var table ir.CoefficientTable
	if cfg.coeffs != nil {
		table = cfg.coeffs
	}
	prog, err := ir.Lower(fn, offsets, table)
	if err != nil {
		return nil, wrapError("lower", err, IRConstructionError)
	}

	s := &Stencil{
		cfg:        cfg,
		prog:       prog,
		inputNames: inputNames,
		ghost:      ghost,
		offsets:    offsets,
	}

	s.cache = cfg.cache
	if s.cache == nil {
		s.cache = cache.New()
	}

	s.backend = cfg.backend
	if s.backend == nil {
		switch cfg.backendID {
		case "reference":
			s.backend = reference.New()
		case "c":
			s.backend = cpu.New(cfg.numWorkers)
		case "ocl":
			if cfg.testing {
				s.backend = opencl.NewTesting()
			} else {
				bk, err := opencl.New(cfg.deviceIndex)
				if err != nil {
					return nil, wrapError("device", err, DeviceError)
				}
				s.backend = bk
			}
		}
	}
	return s, nil
}

// collectInputNames returns the distinct input grid names the kernel's
// terms read, in first-appearance order. The first name is the primary
// input: the grid prefetched into local memory on the GPU path and the
// shape/dtype template for a freshly allocated output.
func collectInputNames(kernel ir.KernelSpec) []string {
	var names []string
	seen := map[string]bool{}
	for _, conv := range kernel.Convolutions {
		for _, t := range conv.Terms {
			if t.InputGrid != "" && !seen[t.InputGrid] {
				seen[t.InputGrid] = true
				names = append(names, t.InputGrid)
			}
		}
	}
	return names
}

// Apply runs the stencil over inputs (one grid per distinct input name
// the kernel reads, in first-appearance order) and returns a freshly
// allocated output of the first input's shape and dtype.
func (s *Stencil) Apply(ctx context.Context, inputs ...*grid.Grid) (*grid.Grid, error) {
	if len(inputs) == 0 {
		return nil, &Error{Kind: ShapeMismatchError, Stage: "marshal", Detail: "no input grids supplied"}
	}
	out := grid.New(inputs[0].Shape, inputs[0].Dtype)
	if _, err := s.ApplyTo(ctx, out, inputs...); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyTo runs the stencil over inputs, accumulating into out. On error
// no partial output is visible: the returned grid is nil and out must be
// considered invalid.
func (s *Stencil) ApplyTo(ctx context.Context, out *grid.Grid, inputs ...*grid.Grid) (*grid.Grid, error) {
	if len(inputs) != len(s.inputNames) {
		return nil, &Error{
			Kind:  IRConstructionError,
			Stage: "marshal",
			Detail: fmt.Sprintf("kernel reads %d input grids %v, got %d",
				len(s.inputNames), s.inputNames, len(inputs)),
		}
	}
	first := inputs[0]
	if first.NDim != s.cfg.neighborhoods[0].NDim {
		return nil, shapeError("marshal", fmt.Sprintf("inputs are %d-dimensional, neighborhoods are %d-dimensional", first.NDim, s.cfg.neighborhoods[0].NDim))
	}
	for i, in := range inputs[1:] {
		if !grid.SameShape(first, in) {
			return nil, shapeError("marshal", fmt.Sprintf("input %q shape %v differs from %q shape %v",
				s.inputNames[i+1], in.Shape, s.inputNames[0], first.Shape))
		}
	}
	if !grid.SameShape(first, out) {
		return nil, shapeError("marshal", fmt.Sprintf("output shape %v differs from input shape %v", out.Shape, first.Shape))
	}

	fp := s.fingerprint(first)
	lowerCfg := backend.LowerConfig{
		NDim:            first.NDim,
		Shape:           first.Shape,
		GhostDepth:      s.ghost,
		Boundary:        s.cfg.boundary,
		Dtype:           first.Dtype,
		NumConvolutions: len(s.prog.Convolutions),
		Testing:         s.cfg.testing,
		Device:          s.cfg.deviceCaps,
	}

	art, err := s.cache.GetOrBuild(fp, func() (backend.Artifact, error) {
		return s.backend.Lower(s.prog, lowerCfg)
	})
	if err != nil {
		return nil, wrapError("lower", err, CompilationError)
	}

	bufs := backend.Buffers{
		Inputs:     make(map[string]*grid.Grid, len(inputs)),
		Output:     out,
		GhostDepth: s.ghost,
	}
	for i, name := range s.inputNames {
		bufs.Inputs[name] = inputs[i]
	}

	if err := s.backend.Launch(ctx, art, bufs); err != nil {
		return nil, wrapError("launch", err, DeviceError)
	}
	return out, nil
}

// Source returns the generated backend source for the given input
// configuration, compiling (and caching) it if needed. Useful for
// inspecting what Apply would run.
func (s *Stencil) Source(in *grid.Grid) (string, error) {
	fp := s.fingerprint(in)
	art, err := s.cache.GetOrBuild(fp, func() (backend.Artifact, error) {
		return s.backend.Lower(s.prog, backend.LowerConfig{
			NDim:            in.NDim,
			Shape:           in.Shape,
			GhostDepth:      s.ghost,
			Boundary:        s.cfg.boundary,
			Dtype:           in.Dtype,
			NumConvolutions: len(s.prog.Convolutions),
			Testing:         s.cfg.testing,
			Device:          s.cfg.deviceCaps,
		})
	})
	if err != nil {
		return "", wrapError("lower", err, CompilationError)
	}
	return art.Source(), nil
}

func (s *Stencil) fingerprint(in *grid.Grid) cache.Fingerprint {
	neighborhoods := make([][]topology.Offset, len(s.cfg.neighborhoods))
	for i, n := range s.cfg.neighborhoods {
		neighborhoods[i] = n.Offsets
	}
	return cache.Fingerprint{
		NDim:          in.NDim,
		Shape:         in.Shape,
		Dtype:         in.Dtype,
		Boundary:      s.cfg.boundary,
		Neighborhoods: neighborhoods,
		GhostDepth:    s.ghost,
		Coefficients:  s.cfg.coeffs.flatten(),
		BackendID:     s.backend.ID(),
	}
}

// Close releases backend-held resources (worker pools, device contexts).
func (s *Stencil) Close() {
	if c, ok := s.backend.(interface{ Close() }); ok {
		c.Close()
	}
}
