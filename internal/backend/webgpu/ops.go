//go:build windows

package webgpu

import "github.com/born-ml/radioml/internal/tensor"

// MatMul performs matrix multiplication on GPU.
func (b *Backend) MatMul(a, other *tensor.RawTensor) *tensor.RawTensor {
	result, err := b.runMatMul(a, other)
	if err != nil {
		panic("webgpu: MatMul: " + err.Error())
	}
	return result
}

// Conv1D performs 1D convolution on GPU.
func (b *Backend) Conv1D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result, err := b.runConv1D(input, kernel, stride, padding)
	if err != nil {
		panic("webgpu: Conv1D: " + err.Error())
	}
	return result
}

// MaxPool1D performs 1D max pooling on GPU.
func (b *Backend) MaxPool1D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	result, err := b.runMaxPool1D(input, kernelSize, stride)
	if err != nil {
		panic("webgpu: MaxPool1D: " + err.Error())
	}
	return result
}

var _ tensor.Backend = (*Backend)(nil)
