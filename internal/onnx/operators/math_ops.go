package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/radioml/internal/tensor"
)

// registerMathOps adds math operators to the registry.
func (r *Registry) registerMathOps() {
	r.Register("MatMul", handleMatMul)
	r.Register("Gemm", handleGemm)
	r.Register("Add", handleAdd)
	r.Register("Mul", handleMul)
	r.Register("Relu", handleRelu)
	r.Register("BatchNormalization", handleBatchNorm)
}

func handleMatMul(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 2, len(inputs)); err != nil {
		return nil, err
	}
	a, err := float32Input(inputs, 0)
	if err != nil {
		return nil, err
	}
	b, err := float32Input(inputs, 1)
	if err != nil {
		return nil, err
	}
	return []*tensor.RawTensor{ctx.Backend.MatMul(a, b)}, nil
}

// handleGemm implements General Matrix Multiplication: Y = alpha*A*B + beta*C.
func handleGemm(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 2, len(inputs)); err != nil {
		return nil, err
	}
	a, err := float32Input(inputs, 0)
	if err != nil {
		return nil, err
	}
	b, err := float32Input(inputs, 1)
	if err != nil {
		return nil, err
	}

	alpha := GetAttrFloat(node, "alpha", 1.0)
	beta := GetAttrFloat(node, "beta", 1.0)
	if GetAttrInt(node, "transA", 0) != 0 {
		a = transpose2D(a)
	}
	if GetAttrInt(node, "transB", 0) != 0 {
		b = transpose2D(b)
	}

	result := ctx.Backend.MatMul(a, b)
	ys := result.AsFloat32()
	if alpha != 1.0 {
		for i := range ys {
			ys[i] *= alpha
		}
	}

	if len(inputs) >= 3 && inputs[2] != nil && beta != 0 {
		c, err := float32Input(inputs, 2)
		if err != nil {
			return nil, err
		}
		cs := c.AsFloat32()
		n := result.Shape()[1]
		switch len(cs) {
		case 1:
			for i := range ys {
				ys[i] += beta * cs[0]
			}
		case n:
			for i := range ys {
				ys[i] += beta * cs[i%n]
			}
		case len(ys):
			for i := range ys {
				ys[i] += beta * cs[i]
			}
		default:
			return nil, fmt.Errorf("gemm: C shape %v does not broadcast to %v", c.Shape(), result.Shape())
		}
	}

	return []*tensor.RawTensor{result}, nil
}

func transpose2D(t *tensor.RawTensor) *tensor.RawTensor {
	shape := t.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("transpose: expected 2D tensor, got %v", shape))
	}
	rows, cols := shape[0], shape[1]
	out := newFloat32(tensor.Shape{cols, rows})
	src, dst := t.AsFloat32(), out.AsFloat32()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return out
}

func handleAdd(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return binary(node, inputs, func(a, b float32) float32 { return a + b })
}

func handleMul(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return binary(node, inputs, func(a, b float32) float32 { return a * b })
}

// binary applies f elementwise. The second operand may be a scalar, equal
// in shape, or broadcast along axis 1.
func binary(node *Node, inputs []*tensor.RawTensor, f func(a, b float32) float32) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 2, len(inputs)); err != nil {
		return nil, err
	}
	a, err := float32Input(inputs, 0)
	if err != nil {
		return nil, err
	}
	b, err := float32Input(inputs, 1)
	if err != nil {
		return nil, err
	}
	var at func(int) float32
	if b.NumElements() == a.NumElements() {
		bs := b.AsFloat32()
		at = func(i int) float32 { return bs[i] }
	} else if at, err = broadcastAxis1(b, a.Shape()); err != nil {
		return nil, fmt.Errorf("%s: %w", node.OpType, err)
	}

	out := newFloat32(a.Shape())
	ys := out.AsFloat32()
	for i, v := range a.AsFloat32() {
		ys[i] = f(v, at(i))
	}
	return []*tensor.RawTensor{out}, nil
}

func handleRelu(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 1, len(inputs)); err != nil {
		return nil, err
	}
	x, err := float32Input(inputs, 0)
	if err != nil {
		return nil, err
	}
	out := newFloat32(x.Shape())
	ys := out.AsFloat32()
	for i, v := range x.AsFloat32() {
		if v > 0 {
			ys[i] = v
		}
	}
	return []*tensor.RawTensor{out}, nil
}

// handleBatchNorm runs inference-mode batch normalization over axis 1:
// y = (x - mean) / sqrt(var + eps) * scale + bias.
func handleBatchNorm(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 5, len(inputs)); err != nil {
		return nil, err
	}
	x, err := float32Input(inputs, 0)
	if err != nil {
		return nil, err
	}
	shape := x.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("batchnorm: input must have a channel axis, got %v", shape)
	}
	c := shape[1]
	params := make([][]float32, 4)
	for i := range params {
		p, err := float32Input(inputs, i+1)
		if err != nil {
			return nil, err
		}
		if p.NumElements() != c {
			return nil, fmt.Errorf("batchnorm: parameter %d has %d values for %d channels", i+1, p.NumElements(), c)
		}
		params[i] = p.AsFloat32()
	}
	gamma, beta, mean, variance := params[0], params[1], params[2], params[3]
	eps := GetAttrFloat(node, "epsilon", 1e-5)

	mul := make([]float32, c)
	add := make([]float32, c)
	for i := range mul {
		inv := float32(1 / math.Sqrt(float64(variance[i]+eps)))
		mul[i] = gamma[i] * inv
		add[i] = beta[i] - mean[i]*mul[i]
	}

	inner := shape.NumElements() / (shape[0] * c)
	out := newFloat32(shape)
	ys := out.AsFloat32()
	for i, v := range x.AsFloat32() {
		ch := (i / inner) % c
		ys[i] = v*mul[ch] + add[ch]
	}
	return []*tensor.RawTensor{out}, nil
}
