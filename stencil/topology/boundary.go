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

package topology

import "fmt"

// BoundaryMode selects how out-of-interior output points are handled.
type BoundaryMode int

const (
	// BoundaryZero leaves boundary outputs at zero; only interior points
	// are computed.
	BoundaryZero BoundaryMode = iota

	// BoundaryClamp clamps out-of-range neighbor indices to [0, shape[d]-1].
	BoundaryClamp

	// BoundaryCopy copies boundary input values straight to the matching
	// boundary output, via a dedicated boundary subkernel.
	BoundaryCopy

	// BoundaryWarp wraps out-of-range neighbor indices modulo shape[d].
	BoundaryWarp
)

func (m BoundaryMode) String() string {
	switch m {
	case BoundaryZero:
		return "zero"
	case BoundaryClamp:
		return "clamp"
	case BoundaryCopy:
		return "copy"
	case BoundaryWarp:
		return "warp"
	default:
		return fmt.Sprintf("BoundaryMode(%d)", int(m))
	}
}

// ParseBoundaryMode maps a configuration string to a BoundaryMode.
func ParseBoundaryMode(s string) (BoundaryMode, error) {
	switch s {
	case "zero":
		return BoundaryZero, nil
	case "clamp":
		return BoundaryClamp, nil
	case "copy":
		return BoundaryCopy, nil
	case "warp":
		return BoundaryWarp, nil
	default:
		return 0, fmt.Errorf("topology: unknown boundary handling %q", s)
	}
}

// ClampIndex clamps a single coordinate to [0, extent-1].
func ClampIndex(i, extent int) int {
	if i < 0 {
		return 0
	}
	if i >= extent {
		return extent - 1
	}
	return i
}

// WarpIndex wraps a single coordinate modulo extent, always returning a
// non-negative result.
func WarpIndex(i, extent int) int {
	i %= extent
	if i < 0 {
		i += extent
	}
	return i
}
