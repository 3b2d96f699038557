// Package operators implements the ONNX and QONNX operators needed to run
// exported quantized classifiers: Quant, Conv, BatchNormalization, Relu,
// MaxPool, Flatten, Gemm and a few elementwise helpers.
//
// All operators run in float32 on the CPU. Conv, MaxPool and matrix
// products go through the tensor.Backend so they share kernels with the
// native layers.
package operators
