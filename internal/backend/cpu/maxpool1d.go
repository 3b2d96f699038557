package cpu

import (
	"fmt"

	"github.com/born-ml/radioml/internal/parallel"
	"github.com/born-ml/radioml/internal/tensor"
)

// MaxPool1D performs 1D max pooling over the last axis.
//
// Input shape:  [batch, channels, length]
// Output shape: [batch, channels, (length - kernelSize) / stride + 1]
//
// Example (kernel 2, stride 2):
//
//	Input:  [1, 5, 2, 8, 3, 3]
//	Output: [5, 8, 3]
func (cpu *CPUBackend) MaxPool1D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 3 {
		panic(fmt.Sprintf("maxpool1d: expected 3D input [N,C,L], got %dD", len(inputShape)))
	}
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool1d: invalid kernel size %d / stride %d", kernelSize, stride))
	}

	N, C, L := inputShape[0], inputShape[1], inputShape[2]
	if kernelSize > L {
		panic(fmt.Sprintf("maxpool1d: kernel size %d too large for length %d", kernelSize, L))
	}
	LOut := (L-kernelSize)/stride + 1

	output, err := tensor.NewRaw(tensor.Shape{N, C, LOut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("maxpool1d: failed to create output: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		in := input.AsFloat32()
		out := output.AsFloat32()
		parallel.ForBatch(N, C, func(n, c int) {
			plane := in[(n*C+c)*L : (n*C+c+1)*L]
			dst := out[(n*C+c)*LOut : (n*C+c+1)*LOut]
			for o := range dst {
				start := o * stride
				m := plane[start]
				for _, v := range plane[start+1 : start+kernelSize] {
					if v > m {
						m = v
					}
				}
				dst[o] = m
			}
		}, cpu.cfg)
	default:
		panic(fmt.Sprintf("maxpool1d: unsupported dtype %v", input.DType()))
	}

	return output
}
