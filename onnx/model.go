// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package onnx

import "github.com/born-ml/radioml/tensor"

// Model represents a loaded ONNX graph ready for inference.
//
// The interface keeps the internal session type out of the public API and
// lets callers substitute their own implementation in tests.
type Model interface {
	// Forward runs inference with a single input tensor.
	// Returns an error if the graph does not have exactly one input and
	// one output.
	Forward(input *tensor.RawTensor) (*tensor.RawTensor, error)

	// Run executes the graph with named inputs and returns the graph
	// outputs by name.
	Run(inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error)

	// InputNames returns the names of graph inputs.
	InputNames() []string

	// OutputNames returns the names of graph outputs.
	OutputNames() []string

	// OpsetVersion returns the ai.onnx opset the graph was exported with.
	OpsetVersion() int64

	// Metadata returns model metadata as key-value pairs, including
	// "producer_name" and "producer_version".
	Metadata() map[string]string
}
