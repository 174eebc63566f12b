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

package cpu

import (
	"context"
	"fmt"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/cache"
	"github.com/sinayoko/stencil-code/stencil/internal/workerpool"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// Backend is the `c` backend: lowers to a validated C translation unit
// (for inspection, fingerprinting, and CompilationError reporting) and
// executes the same lowered program in Go over a persistent worker pool.
type Backend struct {
	pool *workerpool.Pool
}

// New creates a CPU Backend with a worker pool of numWorkers goroutines.
// numWorkers <= 0 uses GOMAXPROCS.
func New(numWorkers int) *Backend {
	return &Backend{pool: workerpool.New(numWorkers)}
}

// Close releases the backend's worker pool.
func (b *Backend) Close() { b.pool.Close() }

func (b *Backend) ID() string { return "c" }

func (b *Backend) SupportedBoundaryModes() []topology.BoundaryMode {
	return append([]topology.BoundaryMode(nil), supportedModes...)
}

type artifact struct {
	prog   *ir.LoweredProgram
	cfg    backend.LowerConfig
	source string
}

func (a *artifact) Source() string { return a.source }

// Persist implements cache.Persistable. The on-disk record keeps the
// generated C source for inspection across process restarts; it omits the
// lowered program and launch geometry, so Restore always reports a miss
// and a cold read after a restart rebuilds normally.
func (a *artifact) Persist() cache.Record {
	return cache.Record{SourceText: a.source}
}

// Restore implements cache.Restorable; see Persist.
func (b *Backend) Restore(rec cache.Record) (backend.Artifact, error) {
	return nil, fmt.Errorf("cpu: persisted records are audit-only and cannot be restored without recompiling")
}

func (b *Backend) Lower(prog *ir.LoweredProgram, cfg backend.LowerConfig) (backend.Artifact, error) {
	if !backend.Supports(b.SupportedBoundaryModes(), cfg.Boundary) {
		return nil, &backend.UnsupportedBoundaryError{BackendID: b.ID(), Mode: cfg.Boundary}
	}
	src, err := generateSource(prog, cfg)
	if err != nil {
		return nil, err
	}
	if err := validate(src); err != nil {
		return nil, err
	}
	return &artifact{prog: prog, cfg: cfg, source: src}, nil
}

func (b *Backend) Launch(ctx context.Context, art backend.Artifact, buf backend.Buffers) error {
	a, ok := art.(*artifact)
	if !ok {
		return fmt.Errorf("cpu: artifact was not produced by this backend")
	}
	return run(b.pool, a.prog, a.cfg, buf)
}
