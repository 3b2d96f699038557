// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package onnx_test

import (
	"path/filepath"
	"testing"

	"github.com/born-ml/radioml/backend/cpu"
	"github.com/born-ml/radioml/nn"
	"github.com/born-ml/radioml/onnx"
	"github.com/born-ml/radioml/tensor"
)

// mockModel implements the onnx.Model interface for testing.
type mockModel struct {
	inputNames   []string
	outputNames  []string
	opsetVersion int64
	metadata     map[string]string
	forwardFunc  func(*tensor.RawTensor) (*tensor.RawTensor, error)
}

func (m *mockModel) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	if m.forwardFunc != nil {
		return m.forwardFunc(input)
	}
	return input, nil
}

func (m *mockModel) Run(inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	outputs := make(map[string]*tensor.RawTensor)
	for name, t := range inputs {
		outputs[name+"_out"] = t
		break
	}
	return outputs, nil
}

func (m *mockModel) InputNames() []string  { return m.inputNames }
func (m *mockModel) OutputNames() []string { return m.outputNames }
func (m *mockModel) OpsetVersion() int64   { return m.opsetVersion }

func (m *mockModel) Metadata() map[string]string { return m.metadata }

// TestModelInterface verifies that mockModel implements onnx.Model.
func TestModelInterface(_ *testing.T) {
	var _ onnx.Model = &mockModel{}
}

// TestModelInterfaceUsage demonstrates typical Model usage patterns.
func TestModelInterfaceUsage(t *testing.T) {
	runInference := func(model onnx.Model, input *tensor.RawTensor) (*tensor.RawTensor, error) {
		if len(model.InputNames()) == 0 {
			t.Error("Model has no inputs")
		}
		return model.Forward(input)
	}

	customTensor, _ := tensor.NewRaw(tensor.Shape{1, 24}, tensor.Float32, tensor.CPU)
	mock := &mockModel{
		inputNames: []string{onnx.InputName},
		forwardFunc: func(_ *tensor.RawTensor) (*tensor.RawTensor, error) {
			return customTensor, nil
		},
	}

	dummyInput, _ := tensor.NewRaw(tensor.Shape{1, 2, 16}, tensor.Float32, tensor.CPU)
	result, err := runInference(mock, dummyInput)
	if err != nil {
		t.Fatalf("runInference() error = %v", err)
	}
	if result != customTensor {
		t.Error("Forward() should return customTensor")
	}
}

func smallModel(t *testing.T, backend *cpu.Backend) (*nn.Sequential[*cpu.Backend], nn.VGG10Config) {
	t.Helper()
	cfg := nn.DefaultVGG10Config()
	cfg.FiltersConv = 4
	cfg.FiltersDense = 8
	cfg.ConvBlocks = 2
	cfg.Classes = 5
	cfg.FrameLength = 16

	model, err := nn.NewVGG10(cfg, backend)
	if err != nil {
		t.Fatalf("NewVGG10 failed: %v", err)
	}
	return model, cfg
}

// TestExportLoadRun exports a model, loads the file back, and runs it.
func TestExportLoadRun(t *testing.T) {
	backend := cpu.New()
	model, cfg := smallModel(t, backend)

	proto, err := onnx.Export(model, tensor.Shape{1, 2, cfg.FrameLength})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := onnx.Save(path, proto); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := onnx.Load(path, backend)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := loaded.InputNames(); len(got) != 1 || got[0] != onnx.InputName {
		t.Errorf("InputNames() = %v, want [%s]", got, onnx.InputName)
	}
	if got := loaded.OutputNames(); len(got) != 1 || got[0] != onnx.OutputName {
		t.Errorf("OutputNames() = %v, want [%s]", got, onnx.OutputName)
	}
	if loaded.Metadata()["producer_name"] != "radioml" {
		t.Errorf("producer_name = %q, want radioml", loaded.Metadata()["producer_name"])
	}

	input, _ := tensor.NewRaw(tensor.Shape{1, 2, cfg.FrameLength}, tensor.Float32, tensor.CPU)
	out, err := loaded.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !out.Shape().Equal(tensor.Shape{1, cfg.Classes}) {
		t.Errorf("output shape = %v, want [1 %d]", out.Shape(), cfg.Classes)
	}
}

func TestInferenceCost(t *testing.T) {
	backend := cpu.New()
	model, cfg := smallModel(t, backend)

	proto, err := onnx.Export(model, tensor.Shape{1, 2, cfg.FrameLength})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	report, err := onnx.InferenceCost(proto, false)
	if err != nil {
		t.Fatalf("InferenceCost failed: %v", err)
	}
	if report.TotalMACs <= 0 {
		t.Errorf("TotalMACs = %v, want > 0", report.TotalMACs)
	}
	for _, op := range report.Unsupported {
		if op == "Conv" || op == "Gemm" {
			t.Errorf("%s reported as unsupported", op)
		}
	}
}

func TestScore_Baseline(t *testing.T) {
	if got := onnx.Score(807699904, 1244936); got != 1 {
		t.Errorf("Score(baseline) = %v, want 1", got)
	}
}

func TestListSupportedOps(t *testing.T) {
	ops := onnx.ListSupportedOps()
	for _, want := range []string{"Quant", "Conv", "Gemm"} {
		found := false
		for _, op := range ops {
			if op == want {
				found = true
			}
		}
		if !found {
			t.Errorf("ListSupportedOps() missing %s", want)
		}
	}
}
