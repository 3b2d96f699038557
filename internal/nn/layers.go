package nn

import (
	"fmt"

	"github.com/born-ml/radioml/internal/tensor"
)

// MaxPool1D is a parameter-free 1D max pooling layer.
type MaxPool1D[B tensor.Backend] struct {
	kernelSize int
	stride     int
	backend    B
}

// NewMaxPool1D creates a max pooling layer.
func NewMaxPool1D[B tensor.Backend](kernelSize, stride int, backend B) *MaxPool1D[B] {
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool1d: invalid kernel %d / stride %d", kernelSize, stride))
	}
	return &MaxPool1D[B]{kernelSize: kernelSize, stride: stride, backend: backend}
}

// Forward pools over the last axis of a [N, C, L] input.
func (m *MaxPool1D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if len(input.Shape()) != 3 {
		panic(fmt.Sprintf("maxpool1d: expected 3D input [N,C,L], got %dD", len(input.Shape())))
	}
	return tensor.New[float32, B](m.backend.MaxPool1D(input.Raw(), m.kernelSize, m.stride), m.backend)
}

// KernelSize returns the pooling window.
func (m *MaxPool1D[B]) KernelSize() int { return m.kernelSize }

// Stride returns the pooling stride.
func (m *MaxPool1D[B]) Stride() int { return m.stride }

// Parameters returns nil.
func (m *MaxPool1D[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (m *MaxPool1D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty state dict.
func (m *MaxPool1D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParams[B](stateDict, nil)
}

// Flatten collapses all but the batch dimension.
type Flatten[B tensor.Backend] struct{}

// NewFlatten creates a Flatten layer.
func NewFlatten[B tensor.Backend]() *Flatten[B] {
	return &Flatten[B]{}
}

// Forward returns a [N, rest] view of the input.
func (f *Flatten[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("flatten: expected at least 2D input, got %dD", len(shape)))
	}
	return input.Reshape(shape[0], shape[1:].NumElements())
}

// Parameters returns nil.
func (f *Flatten[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (f *Flatten[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty state dict.
func (f *Flatten[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParams[B](stateDict, nil)
}
