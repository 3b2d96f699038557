// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the quantized layers of the RadioML classifier.
//
// # Overview
//
// This package contains:
//   - Quantized layers: QuantConv1D, QuantLinear
//   - Quantized activations: QuantHardTanh, QuantReLU
//   - Utilities: BatchNorm1D, MaxPool1D, Flatten, Sequential
//   - Model: VGG10 construction and checkpoint loading
//
// # Basic Usage
//
//	backend := cpu.New()
//	model, err := nn.LoadVGG10("model_trained.safetensors", nn.DefaultVGG10Config(), backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logits := model.Forward(frames) // [N, 2, 1024] -> [N, 24]
//
// # Quantization
//
// Weights are quantized to narrow-range signed integers with a per-tensor
// abs-max scale. Activations use learned uint8 ReLU thresholds. Forward
// passes operate on fake-quantized float32 values, so results match the
// exported QONNX graph bit for bit.
//
// # State Dicts
//
// Parameters are addressed with dotted keys such as "1.weight" or
// "31.running_var", matching the layout of the trained checkpoints.
package nn
