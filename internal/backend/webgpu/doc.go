// Package webgpu implements the WebGPU backend for GPU-accelerated inference.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// The backend is only built on Windows, where wgpu_native is loaded
// dynamically. Other platforms run on the CPU backend.
package webgpu
