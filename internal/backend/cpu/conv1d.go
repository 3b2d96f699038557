package cpu

import (
	"fmt"

	"github.com/born-ml/radioml/internal/parallel"
	"github.com/born-ml/radioml/internal/tensor"
)

// Conv1D performs 1D convolution using the im2col algorithm.
//
// Input shape:  [batch, in_channels, length]
// Kernel shape: [out_channels, in_channels, kernel]
// Output shape: [batch, out_channels, out_length]
//
// Where out_length = (length + 2*padding - kernel) / stride + 1.
//
// Each batch item is lowered to a column matrix [out_length, C_in*K] and
// multiplied against the kernel viewed as [C_out, C_in*K]. Batch items are
// processed in parallel.
func (cpu *CPUBackend) Conv1D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 3 {
		panic(fmt.Sprintf("conv1d: input must be 3D [N,C,L], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 3 {
		panic(fmt.Sprintf("conv1d: kernel must be 3D [C_out,C_in,K], got %dD", len(kernelShape)))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv1d: invalid stride=%d padding=%d", stride, padding))
	}

	N, CIn, L := inputShape[0], inputShape[1], inputShape[2]
	COut, CInK, K := kernelShape[0], kernelShape[1], kernelShape[2]

	if CIn != CInK {
		panic(fmt.Sprintf("conv1d: input channels %d != kernel channels %d", CIn, CInK))
	}
	if input.DType() != tensor.Float32 || kernel.DType() != tensor.Float32 {
		panic(fmt.Sprintf("conv1d: unsupported dtype %s/%s", input.DType(), kernel.DType()))
	}

	LOut := ConvOutputLength(L, K, stride, padding)
	if LOut <= 0 {
		panic(fmt.Sprintf("conv1d: invalid output length %d (check stride/padding)", LOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{N, COut, LOut}, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv1d: failed to create output tensor: %v", err))
	}

	in := input.AsFloat32()
	w := kernel.AsFloat32()
	out := output.AsFloat32()
	colWidth := CIn * K

	parallel.For(N, func(n int) {
		col := make([]float32, LOut*colWidth)
		im2col1D(col, in[n*CIn*L:(n+1)*CIn*L], CIn, L, K, LOut, stride, padding)

		dst := out[n*COut*LOut : (n+1)*COut*LOut]
		for co := 0; co < COut; co++ {
			wRow := w[co*colWidth : (co+1)*colWidth]
			outRow := dst[co*LOut : (co+1)*LOut]
			for l := 0; l < LOut; l++ {
				patch := col[l*colWidth : (l+1)*colWidth]
				var sum float32
				for j, wv := range wRow {
					sum += wv * patch[j]
				}
				outRow[l] = sum
			}
		}
	}, cpu.cfg)

	return output
}

// ConvOutputLength returns the output length of a 1D convolution.
func ConvOutputLength(length, kernel, stride, padding int) int {
	return (length+2*padding-kernel)/stride + 1
}

// im2col1D lowers one batch item [C, L] into rows of patches [L_out, C*K].
// Positions outside the input read as zero (padding).
func im2col1D(col, in []float32, C, L, K, LOut, stride, padding int) {
	colWidth := C * K
	for l := 0; l < LOut; l++ {
		start := l*stride - padding
		row := col[l*colWidth : (l+1)*colWidth]
		idx := 0
		for c := 0; c < C; c++ {
			channel := in[c*L : (c+1)*L]
			for k := 0; k < K; k++ {
				pos := start + k
				if pos >= 0 && pos < L {
					row[idx] = channel[pos]
				} else {
					row[idx] = 0
				}
				idx++
			}
		}
	}
}

// Im2Col1D exposes the lowering for backends that run the multiplication
// elsewhere. Input [N, C, L] becomes [N*L_out, C*K].
func Im2Col1D(input *tensor.RawTensor, K, stride, padding int) *tensor.RawTensor {
	shape := input.Shape()
	N, C, L := shape[0], shape[1], shape[2]
	LOut := ConvOutputLength(L, K, stride, padding)

	cols, err := tensor.NewRaw(tensor.Shape{N * LOut, C * K}, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("im2col: %v", err))
	}
	in := input.AsFloat32()
	dst := cols.AsFloat32()
	per := LOut * C * K
	for n := 0; n < N; n++ {
		im2col1D(dst[n*per:(n+1)*per], in[n*C*L:(n+1)*C*L], C, L, K, LOut, stride, padding)
	}
	return cols
}
