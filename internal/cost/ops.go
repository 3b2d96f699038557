package cost

import (
	"fmt"

	"github.com/born-ml/radioml/internal/onnx"
)

func shapeOf(g *onnx.GraphProto, name string) ([]int64, error) {
	s, ok := g.ValueShape(name)
	if !ok {
		return nil, fmt.Errorf("no static shape for %s", name)
	}
	return s, nil
}

func prod(dims []int64) float64 {
	p := 1.0
	for _, d := range dims {
		p *= float64(d)
	}
	return p
}

// density returns the fraction of non-zero elements of a weight
// initializer, or 1 for dynamic weights.
func density(g *onnx.GraphProto, name string) (float64, error) {
	init := g.Initializer(name)
	if init == nil {
		return 1, nil
	}
	t, err := onnx.TensorFromProto(init)
	if err != nil {
		return 0, err
	}
	if t.NumElements() == 0 {
		return 1, nil
	}
	t, err = t.ToFloat32()
	if err != nil {
		return 0, err
	}
	nonzero := 0
	for _, v := range t.AsFloat32() {
		if v != 0 {
			nonzero++
		}
	}
	return float64(nonzero) / float64(t.NumElements()), nil
}

func costEntry(g *onnx.GraphProto, node *onnx.NodeProto, macs, wElems float64, sparse bool) (map[string]float64, error) {
	idt := g.TensorDataType(node.Inputs[0])
	wdt := g.TensorDataType(node.Inputs[1])
	odt := g.TensorDataType(node.Outputs[0])

	oshape, err := shapeOf(g, node.Outputs[0])
	if err != nil {
		return nil, err
	}
	if g.Initializer(node.Inputs[1]) == nil {
		wElems = 0
	}
	if sparse {
		d, err := density(g, node.Inputs[1])
		if err != nil {
			return nil, err
		}
		macs *= d
		wElems *= d
	}

	c := map[string]float64{
		fmt.Sprintf("op_mac_%s_%s", idt, wdt): macs,
		"mem_o_" + odt:                        prod(oshape),
	}
	if wElems > 0 {
		c["mem_w_"+wdt] = wElems
	}
	return c, nil
}

// convCost counts k * Cin/group * Cout MACs per output pixel.
func convCost(g *onnx.GraphProto, node *onnx.NodeProto, sparse bool) (map[string]float64, error) {
	if len(node.Inputs) < 2 {
		return nil, fmt.Errorf("conv needs a weight input")
	}
	ishape, err := shapeOf(g, node.Inputs[0])
	if err != nil {
		return nil, err
	}
	wshape, err := shapeOf(g, node.Inputs[1])
	if err != nil {
		return nil, err
	}
	oshape, err := shapeOf(g, node.Outputs[0])
	if err != nil {
		return nil, err
	}
	if len(ishape) < 3 || len(wshape) < 3 || len(oshape) < 3 {
		return nil, fmt.Errorf("conv shapes %v %v %v are not [N, C, spatial...]", ishape, wshape, oshape)
	}
	group := float64(node.AttrInt("group", 1))
	k := prod(wshape[2:])
	macs := k * float64(ishape[1]) / group * float64(wshape[0]) * prod(oshape[2:])
	return costEntry(g, node, macs, prod(wshape), sparse)
}

// matmulCost counts prod(input[:-1]) * K * N MACs.
func matmulCost(g *onnx.GraphProto, node *onnx.NodeProto, sparse bool) (map[string]float64, error) {
	if len(node.Inputs) < 2 {
		return nil, fmt.Errorf("%s needs two inputs", node.OpType)
	}
	ishape, err := shapeOf(g, node.Inputs[0])
	if err != nil {
		return nil, err
	}
	wshape, err := shapeOf(g, node.Inputs[1])
	if err != nil {
		return nil, err
	}
	if len(ishape) < 1 || len(wshape) != 2 {
		return nil, fmt.Errorf("unsupported operand shapes %v x %v", ishape, wshape)
	}
	if node.OpType == "Gemm" && node.AttrInt("transA", 0) != 0 {
		ishape = []int64{ishape[1], ishape[0]}
	}
	macs := prod(ishape[:len(ishape)-1]) * float64(wshape[0]*wshape[1])
	return costEntry(g, node, macs, prod(wshape), sparse)
}
