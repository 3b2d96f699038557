//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for GPU-accelerated inference.
//
// Example:
//
//	gpu, err := webgpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gpu.Release()
//
//	seq, err := nn.LoadVGG10(path, nn.DefaultVGG10Config(), gpu)
package webgpu

import (
	internalwebgpu "github.com/born-ml/radioml/internal/backend/webgpu"
	"github.com/born-ml/radioml/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new WebGPU backend.
// Call Release() when done to free GPU resources.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether a compatible GPU adapter can be acquired.
// Useful for falling back to the CPU backend.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
