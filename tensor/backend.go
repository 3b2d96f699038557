// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/radioml/internal/tensor"

// Backend defines the operations a compute device provides to the layers.
//
// Implementations:
//   - backend/cpu: pure Go, parallel over batch and channels
//   - backend/webgpu: GPU compute via WebGPU
type Backend = tensor.Backend
