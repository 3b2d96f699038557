package operators

import (
	"fmt"

	"github.com/born-ml/radioml/internal/tensor"
)

func (r *Registry) registerConvOps() {
	r.Register("Conv", handleConv)
	r.Register("MaxPool", handleMaxPool)
}

// handleConv runs a 1D convolution [N, C, L] x [O, C, K] (+ bias [O]).
func handleConv(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 2, len(inputs)); err != nil {
		return nil, err
	}
	x, err := float32Input(inputs, 0)
	if err != nil {
		return nil, err
	}
	w, err := float32Input(inputs, 1)
	if err != nil {
		return nil, err
	}
	if len(x.Shape()) != 3 || len(w.Shape()) != 3 {
		return nil, fmt.Errorf("conv: only 1D convolution supported, got input %v weight %v", x.Shape(), w.Shape())
	}
	if g := GetAttrInt(node, "group", 1); g != 1 {
		return nil, fmt.Errorf("conv: group %d not supported", g)
	}
	if d, err := symmetric1D(node, "dilations", 1); err != nil || d != 1 {
		return nil, fmt.Errorf("conv: dilation must be 1: %v", err)
	}
	if pad := GetAttrString(node, "auto_pad", "NOTSET"); pad != "NOTSET" {
		return nil, fmt.Errorf("conv: auto_pad %s not supported", pad)
	}
	stride, err := symmetric1D(node, "strides", 1)
	if err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}
	padding, err := symmetric1D(node, "pads", 0)
	if err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}

	out := ctx.Backend.Conv1D(x, w, stride, padding)

	if len(inputs) > 2 && inputs[2] != nil {
		b, err := float32Input(inputs, 2)
		if err != nil {
			return nil, err
		}
		bias := b.AsFloat32()
		shape := out.Shape()
		if len(bias) != shape[1] {
			return nil, fmt.Errorf("conv: bias has %d values for %d channels", len(bias), shape[1])
		}
		ys := out.AsFloat32()
		l := shape[2]
		for i := range ys {
			ys[i] += bias[(i/l)%shape[1]]
		}
	}
	return []*tensor.RawTensor{out}, nil
}

func handleMaxPool(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 1, len(inputs)); err != nil {
		return nil, err
	}
	x, err := float32Input(inputs, 0)
	if err != nil {
		return nil, err
	}
	if len(x.Shape()) != 3 {
		return nil, fmt.Errorf("maxpool: only 1D pooling supported, got input %v", x.Shape())
	}
	kernel, err := symmetric1D(node, "kernel_shape", 0)
	if err != nil || kernel <= 0 {
		return nil, fmt.Errorf("maxpool: invalid kernel_shape: %v", err)
	}
	stride, err := symmetric1D(node, "strides", 1)
	if err != nil {
		return nil, fmt.Errorf("maxpool: %w", err)
	}
	if pads, _ := symmetric1D(node, "pads", 0); pads != 0 {
		return nil, fmt.Errorf("maxpool: padding not supported")
	}
	return []*tensor.RawTensor{ctx.Backend.MaxPool1D(x, kernel, stride)}, nil
}
