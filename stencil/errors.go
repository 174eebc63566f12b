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

package stencil

import (
	"errors"
	"fmt"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/backend/cpu"
	"github.com/sinayoko/stencil-code/stencil/backend/opencl"
	"github.com/sinayoko/stencil-code/stencil/ir"
	"github.com/sinayoko/stencil-code/stencil/plan"
)

// ErrorKind distinguishes the failure classes Apply can surface.
type ErrorKind int

const (
	// IRConstructionError: malformed kernel input or mismatched
	// dimensions.
	IRConstructionError ErrorKind = iota

	// UnsupportedBoundaryHandling: the selected backend lacks the chosen
	// boundary mode.
	UnsupportedBoundaryHandling

	// PlanningError: no work-group tiling satisfies the device limits for
	// the given shape and ghost depth.
	PlanningError

	// CompilationError: the backend compiler rejected generated source.
	CompilationError

	// DeviceError: an OpenCL driver call returned non-CL_SUCCESS.
	DeviceError

	// ShapeMismatchError: a runtime input's shape differs from the
	// configuration the stencil was specialized to.
	ShapeMismatchError
)

func (k ErrorKind) String() string {
	switch k {
	case IRConstructionError:
		return "IRConstructionError"
	case UnsupportedBoundaryHandling:
		return "UnsupportedBoundaryHandling"
	case PlanningError:
		return "PlanningError"
	case CompilationError:
		return "CompilationError"
	case DeviceError:
		return "DeviceError"
	case ShapeMismatchError:
		return "ShapeMismatchError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the single error type Apply raises: a kind, the pipeline stage
// that failed, and a detail string. Code carries the raw OpenCL error
// code for DeviceError, 0 otherwise.
type Error struct {
	Kind   ErrorKind
	Stage  string
	Detail string
	Code   int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stencil: %s at %s: %s", e.Kind, e.Stage, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapError classifies err into an Error with the matching kind, falling
// back to the stage's characteristic kind for errors no taxonomy entry
// claims. Already classified errors pass through unchanged.
func wrapError(stage string, err error, fallback ErrorKind) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	var (
		construction *ir.ConstructionError
		unsupported  *backend.UnsupportedBoundaryError
		planning     *plan.Error
		cCompile     *cpu.CompilationError
		oclCompile   *opencl.CompilationError
		device       *opencl.DeviceError
	)
	switch {
	case errors.As(err, &construction):
		return &Error{Kind: IRConstructionError, Stage: stage, Detail: construction.Reason, Err: err}
	case errors.As(err, &unsupported):
		return &Error{Kind: UnsupportedBoundaryHandling, Stage: stage, Detail: unsupported.Error(), Err: err}
	case errors.As(err, &planning):
		return &Error{Kind: PlanningError, Stage: stage, Detail: planning.Reason, Err: err}
	case errors.As(err, &cCompile):
		return &Error{Kind: CompilationError, Stage: stage, Detail: cCompile.Diagnostic, Err: err}
	case errors.As(err, &oclCompile):
		return &Error{Kind: CompilationError, Stage: stage, Detail: oclCompile.Diagnostic, Err: err}
	case errors.As(err, &device):
		return &Error{Kind: DeviceError, Stage: stage, Detail: device.Error(), Code: device.Code, Err: err}
	default:
		return &Error{Kind: fallback, Stage: stage, Detail: err.Error(), Err: err}
	}
}

func shapeError(stage, detail string) *Error {
	return &Error{Kind: ShapeMismatchError, Stage: stage, Detail: detail}
}
