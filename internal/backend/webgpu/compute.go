//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/born-ml/radioml/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()

	return pipeline
}

// createBuffer creates a GPU buffer initialized with data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()

	return buffer
}

// uniformParams packs u32 parameters into a 16-byte aligned uniform buffer.
func (b *Backend) uniformParams(values ...uint32) (*wgpu.Buffer, uint64) {
	size := uint64(len(values) * 4)
	aligned := (size + 15) &^ 15
	data := make([]byte, aligned)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], v)
	}
	return b.createBuffer(data, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst), aligned
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingBuffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := stagingBuffer.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	result := make([]byte, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(result, unsafe.Slice((*byte)(mappedPtr), size))
	stagingBuffer.Unmap()

	return result, nil
}

// kernelRun describes one compute dispatch: read-only inputs, one output
// buffer and a uniform parameter block bound after the output.
type kernelRun struct {
	name       string
	code       string
	inputs     []*tensor.RawTensor
	outShape   tensor.Shape
	params     []uint32
	workgroups [3]uint32
}

// run executes a kernel and returns its output as a CPU tensor.
func (b *Backend) run(k kernelRun) (*tensor.RawTensor, error) {
	for _, in := range k.inputs {
		if in.DType() != tensor.Float32 {
			return nil, fmt.Errorf("webgpu: only float32 is supported, got %s", in.DType())
		}
	}

	shader := b.compileShader(k.name, k.code)
	pipeline := b.getOrCreatePipeline(k.name, shader)

	entries := make([]wgpu.BindGroupEntry, 0, len(k.inputs)+2)
	for i, in := range k.inputs {
		buf := b.createBuffer(in.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		defer buf.Release()
		//nolint:gosec // G115: ByteSize() is non-negative
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, uint64(in.ByteSize())))
	}

	//nolint:gosec // G115: element counts are non-negative
	resultSize := uint64(k.outShape.NumElements() * 4)
	bufferResult := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufferResult.Release()
	//nolint:gosec // G115: binding index is small
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(k.inputs)), bufferResult, 0, resultSize))

	bufferParams, paramsSize := b.uniformParams(k.params...)
	defer bufferParams.Release()
	//nolint:gosec // G115: binding index is small
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(k.inputs)+1), bufferParams, 0, paramsSize))

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(k.workgroups[0], k.workgroups[1], k.workgroups[2])
	computePass.End()
	b.queue.Submit(encoder.Finish(nil))

	data, err := b.readBuffer(bufferResult, resultSize)
	if err != nil {
		return nil, err
	}
	return tensor.FromBytes(k.outShape, tensor.Float32, data)
}

func ceilDiv(n, d int) uint32 {
	//nolint:gosec // G115: workgroup counts are non-negative
	return uint32((n + d - 1) / d)
}

func (b *Backend) runMatMul(a, other *tensor.RawTensor) (*tensor.RawTensor, error) {
	if len(a.Shape()) != 2 || len(other.Shape()) != 2 {
		return nil, fmt.Errorf("webgpu: matmul requires 2D tensors, got %v and %v", a.Shape(), other.Shape())
	}
	M, K := a.Shape()[0], a.Shape()[1]
	N := other.Shape()[1]
	if other.Shape()[0] != K {
		return nil, fmt.Errorf("webgpu: matmul shape mismatch: [%d,%d] @ %v", M, K, other.Shape())
	}

	//nolint:gosec // G115: shape dimensions are non-negative
	return b.run(kernelRun{
		name:       "matmul",
		code:       matmulShader,
		inputs:     []*tensor.RawTensor{a, other},
		outShape:   tensor.Shape{M, N},
		params:     []uint32{uint32(M), uint32(K), uint32(N)},
		workgroups: [3]uint32{ceilDiv(N, 16), ceilDiv(M, 16), 1},
	})
}

func (b *Backend) runConv1D(input, kernel *tensor.RawTensor, stride, padding int) (*tensor.RawTensor, error) {
	if len(input.Shape()) != 3 || len(kernel.Shape()) != 3 {
		return nil, fmt.Errorf("webgpu: conv1d requires 3D input and kernel, got %v and %v", input.Shape(), kernel.Shape())
	}
	N, CIn, L := input.Shape()[0], input.Shape()[1], input.Shape()[2]
	COut, CInK, K := kernel.Shape()[0], kernel.Shape()[1], kernel.Shape()[2]
	if CIn != CInK {
		return nil, fmt.Errorf("webgpu: conv1d input channels %d != kernel channels %d", CIn, CInK)
	}
	if stride <= 0 || padding < 0 {
		return nil, fmt.Errorf("webgpu: conv1d invalid stride=%d padding=%d", stride, padding)
	}
	LOut := (L+2*padding-K)/stride + 1
	if LOut <= 0 {
		return nil, fmt.Errorf("webgpu: conv1d invalid output length %d", LOut)
	}
	total := N * COut * LOut

	//nolint:gosec // G115: shape dimensions are non-negative
	return b.run(kernelRun{
		name:     "conv1d",
		code:     conv1dShader,
		inputs:   []*tensor.RawTensor{input, kernel},
		outShape: tensor.Shape{N, COut, LOut},
		params: []uint32{
			uint32(total), uint32(CIn), uint32(L), uint32(COut),
			uint32(K), uint32(LOut), uint32(stride), uint32(padding),
		},
		workgroups: [3]uint32{ceilDiv(total, workgroupSize), 1, 1},
	})
}

func (b *Backend) runMaxPool1D(input *tensor.RawTensor, kernelSize, stride int) (*tensor.RawTensor, error) {
	if len(input.Shape()) != 3 {
		return nil, fmt.Errorf("webgpu: maxpool1d requires 3D input, got %v", input.Shape())
	}
	N, C, L := input.Shape()[0], input.Shape()[1], input.Shape()[2]
	if kernelSize <= 0 || stride <= 0 || kernelSize > L {
		return nil, fmt.Errorf("webgpu: maxpool1d invalid kernel %d stride %d for length %d", kernelSize, stride, L)
	}
	LOut := (L-kernelSize)/stride + 1
	total := N * C * LOut

	//nolint:gosec // G115: shape dimensions are non-negative
	return b.run(kernelRun{
		name:       "maxpool1d",
		code:       maxpool1dShader,
		inputs:     []*tensor.RawTensor{input},
		outShape:   tensor.Shape{N, C, LOut},
		params:     []uint32{uint32(total), uint32(L), uint32(LOut), uint32(kernelSize), uint32(stride)},
		workgroups: [3]uint32{ceilDiv(total, workgroupSize), 1, 1},
	})
}
