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

// Package plan computes a work-group tiling (local/global NDRange sizes)
// compatible with a device's limits, given a global shape and a ghost
// depth. The planner is greedy and deterministic: equal inputs always
// produce the same plan.
package plan

import (
	"fmt"

	"github.com/samber/lo"
)

// DeviceCaps describes the device limits the planner must respect.
type DeviceCaps struct {
	MaxWorkGroup    int
	MaxPerDim       []int
	MaxComputeUnits int
	LocalMemBytes   int
}

// WorkPlan is the planner's output: the chosen local size, the padded
// ("virtual") global size, and the resulting local-memory tile footprint.
type WorkPlan struct {
	GlobalSize        []int
	LocalSize         []int
	VirtualGlobalSize []int
	TileBytes         int
}

// Error reports that no local-group size could satisfy the device limits.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("plan: %s", e.Reason) }

// Plan computes a WorkPlan for globalShape given device capabilities and
// ghostDepth (the per-dimension halo thickness), using elemSize (bytes per
// scalar) to evaluate the local-memory tile budget.
//
// Algorithm: starting from local_size = (1,...,1), grow one dimension at a
// time by doubling, in cyclic (round-robin) order over dimensions whose
// shape is even, while the product of local sizes stays within
// MaxWorkGroup, each dimension stays within MaxPerDim, and the local-memory
// tile stays within LocalMemBytes. Dimensions with odd shape are pinned at
// 1. Ties favor growing the innermost (fastest-varying, last-index)
// dimension first. The loop stops once a full pass over all dimensions
// makes no further progress.
//
// If testing is true, local_size is forced to (1,...,1) and device
// inspection is skipped, matching the `testing` configuration option.
func Plan(globalShape []int, caps DeviceCaps, ghostDepth []int, elemSize int, testing bool) (*WorkPlan, error) {
	ndim := len(globalShape)
	if len(ghostDepth) != ndim {
		return nil, &Error{Reason: fmt.Sprintf("ghost depth has %d dims, shape has %d", len(ghostDepth), ndim)}
	}

	local := make([]int, ndim)
	for d := range local {
		local[d] = 1
	}

	if testing {
		return finishPlan(globalShape, local, ghostDepth, elemSize)
	}

	if len(caps.MaxPerDim) != ndim {
		return nil, &Error{Reason: fmt.Sprintf("device exposes %d per-dim limits, shape has %d", len(caps.MaxPerDim), ndim)}
	}
	for d := 0; d < ndim; d++ {
		if caps.MaxPerDim[d] <= 0 {
			return nil, &Error{Reason: fmt.Sprintf("dimension %d requires local_size=0 to satisfy device limit %d", d, caps.MaxPerDim[d])}
		}
	}

	pinned := lo.Map(globalShape, func(s int, _ int) bool { return s%2 == 1 })

	tileBytes := func(ls []int) int {
		tile := 1
		for d, l := range ls {
			tile *= l + 2*ghostDepth[d]
		}
		return tile * elemSize
	}

	if caps.LocalMemBytes > 0 && tileBytes(local) > caps.LocalMemBytes {
		return nil, &Error{Reason: fmt.Sprintf("minimal tile (ghost depth %v) already exceeds local memory budget of %d bytes", ghostDepth, caps.LocalMemBytes)}
	}

	for {
		progressed := false
		for d := ndim - 1; d >= 0; d-- {
			if pinned[d] {
				continue
			}
			candidate := append([]int(nil), local...)
			candidate[d] *= 2

			product := 1
			for _, l := range candidate {
				product *= l
			}
			if product > caps.MaxWorkGroup {
				continue
			}
			if candidate[d] > caps.MaxPerDim[d] {
				continue
			}
			if caps.LocalMemBytes > 0 && tileBytes(candidate) > caps.LocalMemBytes {
				continue
			}

			local = candidate
			progressed = true
		}
		if !progressed {
			break
		}
	}

	return finishPlan(globalShape, local, ghostDepth, elemSize)
}

func finishPlan(globalShape, local, ghostDepth []int, elemSize int) (*WorkPlan, error) {
	ndim := len(globalShape)
	virtual := make([]int, ndim)
	for d := 0; d < ndim; d++ {
		if local[d] <= 0 {
			return nil, &Error{Reason: fmt.Sprintf("dimension %d requires local_size=0", d)}
		}
		groups := (globalShape[d] + local[d] - 1) / local[d]
		virtual[d] = groups * local[d]
	}
	tile := 1
	for d, l := range local {
		tile *= l + 2*ghostDepth[d]
	}
	return &WorkPlan{
		GlobalSize:        append([]int(nil), globalShape...),
		LocalSize:         local,
		VirtualGlobalSize: virtual,
		TileBytes:         tile * elemSize,
	}, nil
}
