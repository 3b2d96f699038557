//go:build windows

package device

import (
	"github.com/born-ml/radioml/internal/backend/webgpu"
	"github.com/born-ml/radioml/internal/tensor"
)

// WebGPUAvailable reports whether a WebGPU adapter can be acquired.
func WebGPUAvailable() bool {
	return webgpu.IsAvailable()
}

func openWebGPU() (tensor.Backend, func(), error) {
	b, err := webgpu.New()
	if err != nil {
		return nil, nil, err
	}
	return b, b.Release, nil
}
