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
	"fmt"

	"github.com/jgillich/go-opencl/cl"

	"github.com/sinayoko/stencil-code/stencil/plan"
)

// Device bundles the bound OpenCL device with its context and command
// queue. The context and queue are owned by the caller once created; the
// backend never shares them across goroutines.
type Device struct {
	dev     *cl.Device
	context *cl.Context
	queue   *cl.CommandQueue
}

// OpenDevice binds the device at index within the first platform's device
// list. index == -1 selects the last device, which on typical desktop
// platforms is the discrete GPU.
func OpenDevice(index int) (*Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, &DeviceError{Stage: "platform", Err: err}
	}
	if len(platforms) == 0 {
		return nil, &DeviceError{Stage: "platform", Err: fmt.Errorf("no OpenCL platforms available")}
	}
	devices, err := platforms[0].GetDevices(cl.DeviceTypeAll)
	if err != nil {
		return nil, &DeviceError{Stage: "device", Err: err}
	}
	if len(devices) == 0 {
		return nil, &DeviceError{Stage: "device", Err: fmt.Errorf("platform exposes no devices")}
	}
	if index < 0 {
		index = len(devices) + index
	}
	if index < 0 || index >= len(devices) {
		return nil, &DeviceError{Stage: "device", Err: fmt.Errorf("device index %d out of range (have %d)", index, len(devices))}
	}
	dev := devices[index]

	context, err := cl.CreateContext([]*cl.Device{dev})
	if err != nil {
		return nil, &DeviceError{Stage: "context", Err: err}
	}
	queue, err := context.CreateCommandQueue(dev, 0)
	if err != nil {
		context.Release()
		return nil, &DeviceError{Stage: "queue", Err: err}
	}
	return &Device{dev: dev, context: context, queue: queue}, nil
}

// Caps reads the planner-relevant limits off the bound device.
func (d *Device) Caps() plan.DeviceCaps {
	return plan.DeviceCaps{
		MaxWorkGroup:    d.dev.MaxWorkGroupSize(),
		MaxPerDim:       d.dev.MaxWorkItemSizes(),
		MaxComputeUnits: d.dev.MaxComputeUnits(),
		LocalMemBytes:   int(d.dev.LocalMemSize()),
	}
}

// Name returns the device's human-readable name.
func (d *Device) Name() string { return d.dev.Name() }

// Close releases the queue and context. The device handle itself is owned
// by the driver.
func (d *Device) Close() {
	if d.queue != nil {
		d.queue.Release()
	}
	if d.context != nil {
		d.context.Release()
	}
}
