package operators

import (
	"fmt"

	"github.com/born-ml/radioml/internal/tensor"
)

func (r *Registry) registerShapeOps() {
	r.Register("Flatten", handleFlatten)
	r.Register("Reshape", handleReshape)
	r.Register("Identity", handleIdentity)
}

func handleFlatten(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 1, len(inputs)); err != nil {
		return nil, err
	}
	x := inputs[0]
	shape := x.Shape()
	axis := int(GetAttrInt(node, "axis", 1))
	if axis < 0 {
		axis += len(shape)
	}
	if axis < 0 || axis > len(shape) {
		return nil, fmt.Errorf("flatten: axis %d out of range for %v", axis, shape)
	}
	outer := tensor.Shape(shape[:axis]).NumElements()
	result, err := x.Reshape(tensor.Shape{outer, x.NumElements() / outer})
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}
	return []*tensor.RawTensor{result}, nil
}

// handleReshape supports 0 (copy dimension) and a single -1 (infer).
func handleReshape(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 2, len(inputs)); err != nil {
		return nil, err
	}
	x := inputs[0]
	if inputs[1].DType() != tensor.Int64 {
		return nil, fmt.Errorf("reshape: shape must be int64, got %s", inputs[1].DType())
	}
	target := inputs[1].AsInt64()
	shape := make(tensor.Shape, len(target))
	infer, known := -1, 1
	for i, d := range target {
		switch {
		case d == -1 && infer < 0:
			infer = i
			continue
		case d == 0 && i < len(x.Shape()):
			shape[i] = x.Shape()[i]
		case d > 0:
			shape[i] = int(d)
		default:
			return nil, fmt.Errorf("reshape: invalid target %v", target)
		}
		known *= shape[i]
	}
	if infer >= 0 {
		shape[infer] = x.NumElements() / known
	}
	result, err := x.Reshape(shape)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	return []*tensor.RawTensor{result}, nil
}

func handleIdentity(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 1, len(inputs)); err != nil {
		return nil, err
	}
	return []*tensor.RawTensor{inputs[0]}, nil
}
