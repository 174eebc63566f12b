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
	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/internal/evalir"
	"github.com/sinayoko/stencil-code/stencil/internal/workerpool"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// run executes prog over buf, splitting the outermost interior dimension
// across pool's workers. Each worker owns disjoint rows of the outer
// dimension, so no synchronization beyond the pool's own WaitGroup is
// needed: stencils never write outside the point they're centered on.
func run(pool *workerpool.Pool, prog *ir.LoweredProgram, cfg backend.LowerConfig, buf backend.Buffers) error {
	if cfg.Boundary == topology.BoundaryCopy {
		evalir.CopyBoundary(cfg.Shape, cfg.GhostDepth, prog.InputNames[0], buf)
	}

	lo, hi := evalir.InteriorBounds(cfg)
	outerLo, outerHi := lo[0], hi[0]

	pool.ParallelFor(outerHi-outerLo, func(start, end int) {
		point := make([]int, cfg.NDim)
		var walk func(d int)
		walk = func(d int) {
			if d == cfg.NDim {
				evalir.Point(prog, cfg, buf, point)
				return
			}
			l, h := lo[d], hi[d]
			if d == 0 {
				l, h = outerLo+start, outerLo+end
			}
			for i := l; i < h; i++ {
				point[d] = i
				walk(d + 1)
			}
		}
		walk(0)
	})
	return nil
}
