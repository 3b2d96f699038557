// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package onnx exports quantized classifiers to QONNX and runs the exported
// graphs.
//
// # Example Usage
//
//	backend := cpu.New()
//	model, _ := nn.LoadVGG10("model_trained.safetensors", nn.DefaultVGG10Config(), backend)
//
//	proto, err := onnx.Export(model, tensor.Shape{1, 2, 1024})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = onnx.Save("model_export.onnx", proto)
//
//	report, err := onnx.InferenceCost(proto, true)
//	fmt.Printf("score: %.4f\n", report.Score())
//
// # Supported Operators
//
//   - Quantization: Quant (qonnx.custom_op.general)
//   - Compute: Conv, Gemm, MatMul, BatchNormalization
//   - Elementwise: Add, Mul, Relu
//   - Shape: MaxPool, Flatten, Reshape, Identity
//
// Use [ListSupportedOps] to get the complete list of supported operators.
package onnx

import (
	"github.com/born-ml/radioml/internal/cost"
	internalonnx "github.com/born-ml/radioml/internal/onnx"
	"github.com/born-ml/radioml/internal/onnx/operators"
	"github.com/born-ml/radioml/nn"
	"github.com/born-ml/radioml/tensor"
)

// ModelProto is the in-memory form of an ONNX model file.
type ModelProto = internalonnx.ModelProto

// ExportOptions configures producer metadata of exported graphs.
type ExportOptions = internalonnx.ExportOptions

// CostReport holds the per-node and total inference cost of a graph.
type CostReport = cost.Report

// Graph endpoint names of exported models.
const (
	InputName  = internalonnx.InputName
	OutputName = internalonnx.OutputName
)

// ErrUnsupported is returned for layers or operators with no ONNX mapping.
var ErrUnsupported = internalonnx.ErrUnsupported

// DefaultExportOptions returns the options used by the command line tool.
func DefaultExportOptions() ExportOptions {
	return internalonnx.DefaultExportOptions()
}

// Export converts a quantized model to a QONNX graph.
//
// inputShape includes the batch dimension, e.g. tensor.Shape{1, 2, 1024}.
// Pass ExportOptions to override producer metadata.
func Export[B tensor.Backend](seq *nn.Sequential[B], inputShape tensor.Shape, opts ...ExportOptions) (*ModelProto, error) {
	o := DefaultExportOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	return internalonnx.Export(seq, inputShape, o)
}

// Save writes an ONNX model to path.
func Save(path string, m *ModelProto) error {
	return internalonnx.WriteFile(path, m)
}

// Marshal serializes an ONNX model to protobuf bytes.
func Marshal(m *ModelProto) []byte {
	return internalonnx.Marshal(m)
}

// Parse reads an ONNX model file without compiling it.
func Parse(path string) (*ModelProto, error) {
	return internalonnx.ParseFile(path)
}

// Load parses an ONNX file and compiles it for inference on backend.
//
// Example:
//
//	model, err := onnx.Load("model_export.onnx", cpu.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Inputs:", model.InputNames())
func Load(path string, backend tensor.Backend) (Model, error) {
	m, err := internalonnx.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return newModel(m, backend)
}

// LoadFromBytes compiles a serialized ONNX model for inference.
func LoadFromBytes(data []byte, backend tensor.Backend) (Model, error) {
	m, err := internalonnx.Parse(data)
	if err != nil {
		return nil, err
	}
	return newModel(m, backend)
}

func newModel(m *ModelProto, backend tensor.Backend) (Model, error) {
	s, err := internalonnx.NewSession(m, backend)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// InferenceCost computes MACs, bit operations, and memory footprint of a
// graph. With discountSparsity, zero weights are excluded from the counts.
// The input model is not modified.
func InferenceCost(m *ModelProto, discountSparsity bool) (*CostReport, error) {
	report, _, err := cost.InferenceCost(m, cost.Options{DiscountSparsity: discountSparsity})
	return report, err
}

// Score normalizes bit operations and weight bits against the VGG10
// baseline. The baseline model scores 1.0.
func Score(bops, weightBits float64) float64 {
	return cost.Score(bops, weightBits)
}

// ListSupportedOps returns all ONNX operator types the runtime executes.
func ListSupportedOps() []string {
	return operators.NewRegistry().SupportedOps()
}
