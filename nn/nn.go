// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/radioml/internal/model"
	"github.com/born-ml/radioml/internal/nn"
	"github.com/born-ml/radioml/internal/tensor"
)

// Module interface defines the common interface for all layers.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a named learned parameter.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// QuantInfo describes the integer grid a layer quantizes onto.
type QuantInfo = nn.QuantInfo

// Layers

// QuantConv1D is a 1D convolution with quantized weights and no bias.
type QuantConv1D[B tensor.Backend] = nn.QuantConv1D[B]

// NewQuantConv1D creates a stride-1 quantized convolution.
//
// Example:
//
//	conv := nn.NewQuantConv1D(2, 64, 3, 1, 8, backend) // 2->64 channels, kernel 3, padding 1, int8 weights
func NewQuantConv1D[B tensor.Backend](inChannels, outChannels, kernelSize, padding, weightBits int, backend B) *QuantConv1D[B] {
	return nn.NewQuantConv1D(inChannels, outChannels, kernelSize, padding, weightBits, backend)
}

// QuantLinear is a fully connected layer with quantized weights and an
// optional int32-quantized bias.
type QuantLinear[B tensor.Backend] = nn.QuantLinear[B]

// NewQuantLinear creates a quantized linear layer.
func NewQuantLinear[B tensor.Backend](inFeatures, outFeatures, weightBits int, useBias bool, backend B) *QuantLinear[B] {
	return nn.NewQuantLinear(inFeatures, outFeatures, weightBits, useBias, backend)
}

// BatchNorm1D normalizes channels with running statistics (inference only).
type BatchNorm1D[B tensor.Backend] = nn.BatchNorm1D[B]

// NewBatchNorm1D creates a batch normalization layer over numFeatures channels.
func NewBatchNorm1D[B tensor.Backend](numFeatures int, backend B) *BatchNorm1D[B] {
	return nn.NewBatchNorm1D(numFeatures, backend)
}

// MaxPool1D represents a 1D max pooling layer.
type MaxPool1D[B tensor.Backend] = nn.MaxPool1D[B]

// NewMaxPool1D creates a max pooling layer.
func NewMaxPool1D[B tensor.Backend](kernelSize, stride int, backend B) *MaxPool1D[B] {
	return nn.NewMaxPool1D(kernelSize, stride, backend)
}

// Flatten collapses all dimensions but the first.
type Flatten[B tensor.Backend] = nn.Flatten[B]

// NewFlatten creates a flatten layer.
func NewFlatten[B tensor.Backend]() *Flatten[B] {
	return nn.NewFlatten[B]()
}

// Activations

// QuantHardTanh clamps and quantizes the network input.
type QuantHardTanh[B tensor.Backend] = nn.QuantHardTanh[B]

// NewQuantHardTanh creates an input quantizer over [minVal, maxVal].
func NewQuantHardTanh[B tensor.Backend](minVal, maxVal float32, bits int, backend B) *QuantHardTanh[B] {
	return nn.NewQuantHardTanh(minVal, maxVal, bits, backend)
}

// QuantReLU is a ReLU with a learned unsigned quantization threshold.
type QuantReLU[B tensor.Backend] = nn.QuantReLU[B]

// NewQuantReLU creates a quantized ReLU.
func NewQuantReLU[B tensor.Backend](bits int, backend B) *QuantReLU[B] {
	return nn.NewQuantReLU(bits, backend)
}

// Containers

// Sequential chains modules in order.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// Model

// VGG10Config controls the VGG10 architecture.
type VGG10Config = model.VGG10Config

// DefaultVGG10Config returns the configuration of the trained checkpoints.
func DefaultVGG10Config() VGG10Config {
	return model.DefaultVGG10Config()
}

// NewVGG10 builds an untrained VGG10 classifier.
func NewVGG10[B tensor.Backend](cfg VGG10Config, backend B) (*Sequential[B], error) {
	return model.NewVGG10(cfg, backend)
}

// LoadVGG10 builds a VGG10 classifier and loads a SafeTensors or torch.save
// (.pth) checkpoint.
func LoadVGG10[B tensor.Backend](path string, cfg VGG10Config, backend B) (*Sequential[B], error) {
	return model.Load(path, cfg, backend)
}

// SaveCheckpoint writes the model's state dict as SafeTensors.
func SaveCheckpoint[B tensor.Backend](path string, seq *Sequential[B], metadata map[string]string) error {
	return model.Save(path, seq, metadata)
}
