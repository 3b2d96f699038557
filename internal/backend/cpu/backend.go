// Package cpu implements the pure Go CPU backend.
package cpu

import (
	"github.com/born-ml/radioml/internal/parallel"
	"github.com/born-ml/radioml/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
// Batch and channel loops fan out over goroutines according to cfg.
type CPUBackend struct {
	device tensor.Device
	cfg    parallel.Config
}

// New creates a CPU backend using one worker per CPU.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit parallelism config.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		cfg:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Workers returns the configured worker count.
func (cpu *CPUBackend) Workers() int {
	return cpu.cfg.Workers
}
