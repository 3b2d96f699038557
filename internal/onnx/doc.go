// Package onnx reads, writes and executes ONNX models, including the QONNX
// dialect that carries quantization as Quant nodes from the
// qonnx.custom_op.general domain.
//
// Models are plain Go structs (ModelProto, GraphProto, NodeProto...)
// encoded and decoded with the protobuf wire helpers, so no generated code
// is needed.
//
// Key components:
//   - Parse / Marshal: protobuf wire format <-> ModelProto
//   - Export: quantized nn.Sequential -> QONNX graph
//   - Session: executes a graph on a tensor.Backend
//   - FoldConstants, InferShapes, InferDataTypes: graph transformations
//     used by the inference cost analysis
//
// Example usage:
//
//	m, err := onnx.Export(net, model.DefaultVGG10Config().InputShape(1))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := onnx.WriteFile("model_export.onnx", m); err != nil {
//	    log.Fatal(err)
//	}
package onnx

import "errors"

// ErrUnsupported is returned for layers, operators or data types the
// package cannot represent.
var ErrUnsupported = errors.New("onnx: unsupported")
