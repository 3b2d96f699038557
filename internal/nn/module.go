// Package nn implements the inference-only quantized layers of the
// modulation classifier.
//
// This package provides:
//   - Module interface: Forward plus state-dict access for every layer
//   - Quantized layers: QuantHardTanh, QuantConv1D, QuantReLU, QuantLinear
//   - Float layers: BatchNorm1D, MaxPool1D, Flatten
//   - Sequential: index-prefixed container matching PyTorch state-dict names
//
// Forward panics on shape mismatch. State-dict problems are returned as errors.
package nn

import (
	"errors"

	"github.com/born-ml/radioml/internal/quant"
	"github.com/born-ml/radioml/internal/tensor"
)

// Module is the base interface for all layers.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns the module's parameters, nested ones included.
	Parameters() []*Parameter[B]

	// StateDict returns parameter and buffer tensors keyed by local name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict replaces parameters and buffers from a state dict.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// QuantInfo describes one quantizer: its integer grid and scale.
type QuantInfo struct {
	Quant quant.IntQuant
	Scale float32
}

// ActQuantizer is implemented by layers that quantize activations.
type ActQuantizer interface {
	ActQuant() QuantInfo
}

// WeightQuantizer is implemented by layers that quantize their weights.
type WeightQuantizer interface {
	WeightQuant() QuantInfo
	// QuantWeight returns the fake-quantized weight used by Forward.
	QuantWeight() *tensor.RawTensor
}

// State-dict errors.
var (
	ErrMissingParameter    = errors.New("missing parameter")
	ErrUnexpectedParameter = errors.New("unexpected parameter")
	ErrShapeMismatch       = errors.New("shape mismatch")
)

// bufferNumBatchesTracked is written by PyTorch batch norm layers and
// carries no inference state.
const bufferNumBatchesTracked = "num_batches_tracked"
