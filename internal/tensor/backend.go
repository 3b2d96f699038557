package tensor

// Backend defines the compute operations the inference stack needs.
// Backends handle the actual computation; layers stay device agnostic.
//
// Implementations:
//   - CPU: pure Go, parallel over batch and channels
//   - WebGPU: GPU matrix multiplication via go-webgpu (windows builds)
type Backend interface {
	// MatMul computes [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// Conv1D performs 1D convolution.
	// Input [N, C_in, L], kernel [C_out, C_in, K] -> [N, C_out, L_out].
	Conv1D(input, kernel *RawTensor, stride, padding int) *RawTensor

	// MaxPool1D performs 1D max pooling over the last axis.
	// Input [N, C, L] -> [N, C, (L-kernelSize)/stride+1].
	MaxPool1D(input *RawTensor, kernelSize, stride int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
