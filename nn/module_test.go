// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"path/filepath"
	"testing"

	"github.com/born-ml/radioml/backend/cpu"
	"github.com/born-ml/radioml/nn"
	"github.com/born-ml/radioml/tensor"
)

func smallConfig() nn.VGG10Config {
	cfg := nn.DefaultVGG10Config()
	cfg.FiltersConv = 4
	cfg.FiltersDense = 8
	cfg.ConvBlocks = 2
	cfg.Classes = 5
	cfg.FrameLength = 16
	return cfg
}

// TestModuleInterface verifies that concrete types implement Module interface.
func TestModuleInterface(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		name   string
		module nn.Module[*cpu.Backend]
		input  tensor.Shape
	}{
		{
			name:   "QuantConv1D",
			module: nn.NewQuantConv1D(2, 4, 3, 1, 8, backend),
			input:  tensor.Shape{1, 2, 8},
		},
		{
			name:   "QuantLinear",
			module: nn.NewQuantLinear(6, 3, 8, false, backend),
			input:  tensor.Shape{2, 6},
		},
		{
			name: "Sequential",
			module: nn.NewSequential[*cpu.Backend](
				nn.NewQuantHardTanh(-1, 1, 8, backend),
				nn.NewQuantConv1D(2, 4, 3, 1, 8, backend),
				nn.NewBatchNorm1D(4, backend),
				nn.NewQuantReLU(8, backend),
				nn.NewMaxPool1D(2, 2, backend),
				nn.NewFlatten[*cpu.Backend](),
			),
			input: tensor.Shape{1, 2, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tensor.Zeros[float32](tt.input, backend)
			out := tt.module.Forward(input)
			if out.Shape()[0] != tt.input[0] {
				t.Errorf("batch dimension = %d, want %d", out.Shape()[0], tt.input[0])
			}

			if tt.module.StateDict() == nil {
				t.Error("StateDict() returned nil")
			}
		})
	}
}

func TestVGG10_Forward(t *testing.T) {
	backend := cpu.New()
	cfg := smallConfig()

	model, err := nn.NewVGG10(cfg, backend)
	if err != nil {
		t.Fatalf("NewVGG10 failed: %v", err)
	}

	input := tensor.Zeros[float32](tensor.Shape{3, 2, cfg.FrameLength}, backend)
	out := model.Forward(input)
	if !out.Shape().Equal(tensor.Shape{3, cfg.Classes}) {
		t.Errorf("output shape = %v, want [3 %d]", out.Shape(), cfg.Classes)
	}
}

func TestVGG10_CheckpointRoundTrip(t *testing.T) {
	backend := cpu.New()
	cfg := smallConfig()

	model, err := nn.NewVGG10(cfg, backend)
	if err != nil {
		t.Fatalf("NewVGG10 failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := nn.SaveCheckpoint(path, model, nil); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	loaded, err := nn.LoadVGG10(path, cfg, backend)
	if err != nil {
		t.Fatalf("LoadVGG10 failed: %v", err)
	}
	if loaded.Len() != model.Len() {
		t.Errorf("loaded %d modules, want %d", loaded.Len(), model.Len())
	}
}
