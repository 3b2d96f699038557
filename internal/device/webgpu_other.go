//go:build !windows

package device

import (
	"errors"

	"github.com/born-ml/radioml/internal/tensor"
)

// WebGPUAvailable reports whether a WebGPU adapter can be acquired.
// The WebGPU backend is only built on Windows.
func WebGPUAvailable() bool {
	return false
}

func openWebGPU() (tensor.Backend, func(), error) {
	return nil, nil, errors.New("webgpu backend is only built on windows")
}
