//go:build windows

package webgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/radioml/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// Backend runs the classifier kernels on a WebGPU device.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     wgpu.AdapterInfo

	mu        sync.RWMutex
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	released  bool
}

var errNoQueue = errors.New("webgpu: device has no queue")

// New acquires a high-performance adapter and opens a device on it.
// A missing wgpu_native library is reported as an error, not a panic.
func New() (b *Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	b = &Backend{
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}
	if err = b.open(); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func (b *Backend) open() error {
	b.instance = wgpu.CreateInstance(nil)

	adapter, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("webgpu: request adapter: %w", err)
	}
	b.adapter = adapter
	b.info = adapter.GetInfo()

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("webgpu: request device: %w", err)
	}
	b.device = device

	if b.queue = device.GetQueue(); b.queue == nil {
		return errNoQueue
	}
	return nil
}

// Release frees pipelines, shaders, and the device. Safe to call twice.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true

	for name, p := range b.pipelines {
		p.Release()
		delete(b.pipelines, name)
	}
	for name, s := range b.shaders {
		s.Release()
		delete(b.shaders, name)
	}
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}

// Name includes the adapter's device name when the driver reports one.
func (b *Backend) Name() string {
	if b.info.Device != "" {
		return "WebGPU (" + b.info.Device + ")"
	}
	return "WebGPU"
}

// Device returns tensor.WebGPU.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// IsAvailable reports whether any adapter can be acquired.
func IsAvailable() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}
