package operators

import (
	"errors"
	"math"
	"testing"

	"github.com/born-ml/radioml/internal/backend/cpu"
	"github.com/born-ml/radioml/internal/tensor"
)

func raw(t *testing.T, shape tensor.Shape, vals ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	copy(r.AsFloat32(), vals)
	return r
}

func scalar(t *testing.T, v float32) *tensor.RawTensor {
	return raw(t, tensor.Shape{}, v)
}

func approx(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > 1e-5 {
			t.Fatalf("index %d: got %v, want %v (all: %v)", i, got[i], want[i], got)
		}
	}
}

func run(t *testing.T, node *Node, inputs ...*tensor.RawTensor) *tensor.RawTensor {
	t.Helper()
	out, err := NewRegistry().Execute(&Context{Backend: cpu.New()}, node, inputs)
	if err != nil {
		t.Fatalf("%s: %v", node.OpType, err)
	}
	return out[0]
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	for _, op := range []string{"Quant", "Conv", "MaxPool", "BatchNormalization", "Relu", "Flatten", "Gemm", "MatMul"} {
		if _, ok := r.Get(op); !ok {
			t.Errorf("expected operator %s to be registered", op)
		}
	}
	if _, ok := r.Get("Softmax"); ok {
		t.Error("unexpected Softmax handler")
	}

	ops := r.SupportedOps()
	for i := 1; i < len(ops); i++ {
		if ops[i-1] > ops[i] {
			t.Fatalf("SupportedOps not sorted: %v", ops)
		}
	}
}

func TestExecuteUnsupported(t *testing.T) {
	_, err := NewRegistry().Execute(&Context{}, &Node{OpType: "LSTM"}, nil)
	if !errors.Is(err, ErrUnsupportedOp) {
		t.Fatalf("expected ErrUnsupportedOp, got %v", err)
	}
}

func TestQuantSignedNarrow(t *testing.T) {
	node := &Node{OpType: "Quant", Attributes: []Attribute{
		{Name: "signed", I: 1}, {Name: "narrow", I: 1},
	}}
	x := raw(t, tensor.Shape{5}, -2, -0.25, 0.125, 0.3, 5)
	// 4-bit narrow: grid [-7, 7], scale 0.25.
	out := run(t, node, x, scalar(t, 0.25), scalar(t, 0), scalar(t, 4))
	approx(t, out.AsFloat32(), []float32{-1.75, -0.25, 0, 0.25, 1.75})
}

func TestQuantUnsignedHalfEven(t *testing.T) {
	node := &Node{OpType: "Quant", Attributes: []Attribute{{Name: "signed", I: 0}}}
	x := raw(t, tensor.Shape{4}, -1, 0.5, 1.5, 300)
	out := run(t, node, x, scalar(t, 1), scalar(t, 0), scalar(t, 8))
	approx(t, out.AsFloat32(), []float32{0, 0, 2, 255})
}

func TestQuantPerChannelScale(t *testing.T) {
	node := &Node{OpType: "Quant"}
	x := raw(t, tensor.Shape{1, 2, 2}, 1, 1, 1, 1)
	scale := raw(t, tensor.Shape{2}, 0.5, 0.3)
	out := run(t, node, x, scale, scalar(t, 0), scalar(t, 8))
	approx(t, out.AsFloat32(), []float32{1, 1, 0.9, 0.9})
}

func TestQuantRejectsBadBitWidth(t *testing.T) {
	_, err := NewRegistry().Execute(&Context{}, &Node{OpType: "Quant"},
		[]*tensor.RawTensor{scalar(t, 1), scalar(t, 1), scalar(t, 0), scalar(t, 2.5)})
	if err == nil {
		t.Fatal("expected error for fractional bit width")
	}
}

func TestConvWithBias(t *testing.T) {
	node := &Node{OpType: "Conv", Attributes: []Attribute{
		{Name: "kernel_shape", Ints: []int64{3}},
		{Name: "pads", Ints: []int64{1, 1}},
	}}
	x := raw(t, tensor.Shape{1, 1, 4}, 1, 2, 3, 4)
	w := raw(t, tensor.Shape{1, 1, 3}, 1, 1, 1)
	b := raw(t, tensor.Shape{1}, 10)
	out := run(t, node, x, w, b)
	approx(t, out.AsFloat32(), []float32{13, 16, 19, 17})
}

func TestConvRejectsAsymmetricPads(t *testing.T) {
	node := &Node{OpType: "Conv", Attributes: []Attribute{{Name: "pads", Ints: []int64{0, 1}}}}
	_, err := NewRegistry().Execute(&Context{Backend: cpu.New()}, node,
		[]*tensor.RawTensor{raw(t, tensor.Shape{1, 1, 4}), raw(t, tensor.Shape{1, 1, 2})})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestMaxPool(t *testing.T) {
	node := &Node{OpType: "MaxPool", Attributes: []Attribute{
		{Name: "kernel_shape", Ints: []int64{2}},
		{Name: "strides", Ints: []int64{2}},
	}}
	out := run(t, node, raw(t, tensor.Shape{1, 1, 4}, 1, 5, -3, -2))
	approx(t, out.AsFloat32(), []float32{5, -2})
}

func TestBatchNormalization(t *testing.T) {
	node := &Node{OpType: "BatchNormalization", Attributes: []Attribute{{Name: "epsilon", F: 0}}}
	x := raw(t, tensor.Shape{1, 2, 2}, 1, 2, 3, 4)
	out := run(t, node, x,
		raw(t, tensor.Shape{2}, 2, 1), // scale
		raw(t, tensor.Shape{2}, 0, 1), // bias
		raw(t, tensor.Shape{2}, 1, 0), // mean
		raw(t, tensor.Shape{2}, 4, 1)) // var
	approx(t, out.AsFloat32(), []float32{0, 1, 4, 5})
}

func TestGemmTransB(t *testing.T) {
	node := &Node{OpType: "Gemm", Attributes: []Attribute{{Name: "transB", I: 1}, {Name: "alpha", F: 1}, {Name: "beta", F: 1}}}
	a := raw(t, tensor.Shape{1, 2}, 1, 2)
	b := raw(t, tensor.Shape{3, 2}, 1, 0, 0, 1, 1, 1)
	c := raw(t, tensor.Shape{3}, 0.5, 0.5, 0.5)
	out := run(t, node, a, b, c)
	approx(t, out.AsFloat32(), []float32{1.5, 2.5, 3.5})
}

func TestReluAndFlatten(t *testing.T) {
	x := raw(t, tensor.Shape{2, 2, 1}, -1, 2, 3, -4)
	relu := run(t, &Node{OpType: "Relu"}, x)
	approx(t, relu.AsFloat32(), []float32{0, 2, 3, 0})

	flat := run(t, &Node{OpType: "Flatten"}, relu)
	if !flat.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("flatten shape %v", flat.Shape())
	}
}

func TestReshapeInfer(t *testing.T) {
	shape, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int64, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	copy(shape.AsInt64(), []int64{0, -1})
	out := run(t, &Node{OpType: "Reshape"}, raw(t, tensor.Shape{2, 3, 2}), shape)
	if !out.Shape().Equal(tensor.Shape{2, 6}) {
		t.Fatalf("reshape shape %v", out.Shape())
	}
}
