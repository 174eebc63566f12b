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
	"errors"
	"fmt"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/grid"
)

// DeviceError reports a driver call that returned non-CL_SUCCESS. Code is
// the raw OpenCL error code when the binding exposes one, 0 otherwise.
type DeviceError struct {
	Stage string
	Code  int
	Err   error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("opencl: %s failed: %v", e.Stage, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func deviceErr(stage string, err error) *DeviceError {
	code := 0
	var other cl.ErrOther
	if errors.As(err, &other) {
		code = int(other)
	}
	return &DeviceError{Stage: stage, Code: code, Err: err}
}

// launchState tracks the per-invocation host-side launch progression.
// Transitions are strictly ordered; any driver failure leaves the launch
// in an invalid state and the caller must discard the artifact.
type launchState int

const (
	stateCompiled launchState = iota
	stateEnqueuedArgs
	stateEnqueuedRange
	stateFinished
)

func (s launchState) String() string {
	switch s {
	case stateCompiled:
		return "COMPILED"
	case stateEnqueuedArgs:
		return "ENQUEUED_ARGS"
	case stateEnqueuedRange:
		return "ENQUEUED_RANGE"
	case stateFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("launchState(%d)", int(s))
	}
}

// launch marshals buffers, sets kernel arguments, enqueues every boundary
// plate and every per-convolution kernel, and issues one Finish at the
// end. Host-to-device copies are blocking, so they complete before the
// first EnqueueNDRangeKernel; the single Finish synchronizes everything
// before the device-to-host copy of the output.
func (d *Device) launch(a *artifact, buf backend.Buffers) error {
	state := stateCompiled

	bufs := make(map[string]*cl.MemObject, len(buf.Inputs)+1)
	release := func() {
		for _, m := range bufs {
			m.Release()
		}
	}
	defer release()

	for name, g := range buf.Inputs {
		mem, err := d.context.CreateEmptyBuffer(cl.MemReadOnly, byteSize(g))
		if err != nil {
			return deviceErr("create input buffer", err)
		}
		bufs[name] = mem
		ptr, n, _ := hostPointer(g)
		if _, err := d.queue.EnqueueWriteBuffer(mem, true, 0, n, ptr, nil); err != nil {
			return deviceErr("write input buffer", err)
		}
	}
	outMem, err := d.context.CreateEmptyBuffer(cl.MemReadWrite, byteSize(buf.Output))
	if err != nil {
		return deviceErr("create output buffer", err)
	}
	bufs["__out"] = outMem
	outPtr, outN, outStage := hostPointer(buf.Output)
	if _, err := d.queue.EnqueueWriteBuffer(outMem, true, 0, outN, outPtr, nil); err != nil {
		return deviceErr("write output buffer", err)
	}

	primary := bufs[a.prog.InputNames[0]]
	for _, plate := range a.plates {
		k := a.kernels[plate.KernelName]
		if err := k.SetArgs(primary, outMem); err != nil {
			return deviceErr(fmt.Sprintf("set args (%s, state %s)", plate.KernelName, state), err)
		}
		state = stateEnqueuedArgs
		if _, err := d.queue.EnqueueNDRangeKernel(k, nil, plate.GlobalSize, nil, nil); err != nil {
			return deviceErr(fmt.Sprintf("enqueue %s (state %s)", plate.KernelName, state), err)
		}
		state = stateEnqueuedRange
	}

	for _, conv := range a.prog.Convolutions {
		name := fmt.Sprintf("kernel_c%d", conv.ID)
		k := a.kernels[name]
		args := make([]interface{}, 0, len(a.prog.InputNames)+2)
		for _, in := range a.prog.InputNames {
			args = append(args, bufs[in])
		}
		args = append(args, outMem, cl.LocalBuffer(a.wp.TileBytes))
		if err := k.SetArgs(args...); err != nil {
			return deviceErr(fmt.Sprintf("set args (%s, state %s)", name, state), err)
		}
		state = stateEnqueuedArgs
		if _, err := d.queue.EnqueueNDRangeKernel(k, nil, a.wp.VirtualGlobalSize, a.wp.LocalSize, nil); err != nil {
			return deviceErr(fmt.Sprintf("enqueue %s (state %s)", name, state), err)
		}
		state = stateEnqueuedRange
	}

	if err := d.queue.Finish(); err != nil {
		return deviceErr(fmt.Sprintf("finish (state %s)", state), err)
	}

	if _, err := d.queue.EnqueueReadBuffer(outMem, true, 0, outN, outPtr, nil); err != nil {
		return deviceErr(fmt.Sprintf("read output buffer (state %s)", stateFinished), err)
	}
	if outStage != nil {
		for i, v := range outStage {
			buf.Output.Data[i] = float64(v)
		}
	}
	return nil
}

func byteSize(g *grid.Grid) int {
	return len(g.Data) * g.Dtype.Size()
}

// hostPointer returns the host-side pointer and byte length for g's data.
// Float32 grids are staged into a float32 copy of the float64 storage; the
// staging slice is returned so a readback can be folded back in.
func hostPointer(g *grid.Grid) (unsafe.Pointer, int, []float32) {
	if g.Dtype == grid.Float32 {
		s := make([]float32, len(g.Data))
		for i, v := range g.Data {
			s[i] = float32(v)
		}
		return unsafe.Pointer(&s[0]), len(s) * 4, s
	}
	return unsafe.Pointer(&g.Data[0]), len(g.Data) * 8, nil
}
