package onnx

import (
	"fmt"
	"math"
	"slices"

	"github.com/born-ml/radioml/internal/onnx/operators"
	"github.com/born-ml/radioml/internal/quant"
	"github.com/born-ml/radioml/internal/tensor"
)

// Clone returns a deep copy of m.
func Clone(m *ModelProto) (*ModelProto, error) {
	return Parse(Marshal(m))
}

// SortGraph reorders the graph nodes topologically.
func SortGraph(m *ModelProto) {
	m.Graph.Nodes = topologicalSort(m.Graph.Nodes)
}

// FoldConstants executes every node whose inputs are all initializers and
// replaces its outputs with initializers of the same name, so quantized
// weights become plain tensors on the integer grid times their scale.
// It returns the number of folded nodes.
func FoldConstants(m *ModelProto, backend tensor.Backend) (int, error) {
	g := m.Graph
	registry := operators.NewRegistry()
	ctx := &operators.Context{Backend: backend}

	folded := 0
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(g.Nodes); i++ {
			node := &g.Nodes[i]
			inputs, ok, err := constantInputs(g, node)
			if err != nil {
				return folded, err
			}
			if !ok {
				continue
			}
			if _, known := registry.Get(node.OpType); !known {
				continue
			}
			outputs, err := registry.Execute(ctx, operatorNode(node), inputs)
			if err != nil {
				return folded, fmt.Errorf("fold %s (%s): %w", node.Name, node.OpType, err)
			}
			for j, name := range node.Outputs {
				p, err := TensorToProto(name, outputs[j])
				if err != nil {
					return folded, err
				}
				g.Initializers = append(g.Initializers, p)
			}
			g.Nodes = slices.Delete(g.Nodes, i, i+1)
			i--
			folded++
			changed = true
		}
	}
	RemoveUnusedInitializers(m)
	return folded, nil
}

func constantInputs(g *GraphProto, node *NodeProto) ([]*tensor.RawTensor, bool, error) {
	if len(node.Inputs) == 0 {
		return nil, false, nil
	}
	inputs := make([]*tensor.RawTensor, len(node.Inputs))
	for i, name := range node.Inputs {
		if name == "" {
			continue
		}
		init := g.Initializer(name)
		if init == nil {
			return nil, false, nil
		}
		t, err := TensorFromProto(init)
		if err != nil {
			return nil, false, err
		}
		inputs[i] = t
	}
	return inputs, true, nil
}

// RemoveUnusedInitializers drops initializers no node or graph output reads.
// It returns the number removed.
func RemoveUnusedInitializers(m *ModelProto) int {
	g := m.Graph
	used := make(map[string]bool)
	for i := range g.Nodes {
		for _, in := range g.Nodes[i].Inputs {
			used[in] = true
		}
	}
	for i := range g.Outputs {
		used[g.Outputs[i].Name] = true
	}

	kept := g.Initializers[:0]
	removed := 0
	for _, init := range g.Initializers {
		if used[init.Name] {
			kept = append(kept, init)
		} else {
			removed++
		}
	}
	g.Initializers = kept
	return removed
}

// InferShapes runs the graph once on zeros with batch size batch and
// records the shape of every computed value in value_info and outputs.
// The first dimension of each graph input is replaced by batch.
func InferShapes(m *ModelProto, backend tensor.Backend, batch int) error {
	g := m.Graph
	s, err := NewSession(m, backend)
	if err != nil {
		return err
	}

	inputs := make(map[string]*tensor.RawTensor)
	for i := range g.Inputs {
		in := &g.Inputs[i]
		if g.Initializer(in.Name) != nil {
			continue
		}
		shape, err := inputShape(in, batch)
		if err != nil {
			return err
		}
		t, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
		if err != nil {
			return fmt.Errorf("input %s: %w", in.Name, err)
		}
		inputs[in.Name] = t
	}

	values, err := s.RunAll(inputs)
	if err != nil {
		return fmt.Errorf("shape inference: %w", err)
	}

	isOutput := make(map[string]int)
	for i := range g.Outputs {
		isOutput[g.Outputs[i].Name] = i
	}
	g.ValueInfo = g.ValueInfo[:0]
	for i := range g.Nodes {
		for _, name := range g.Nodes[i].Outputs {
			t, ok := values[name]
			if !ok {
				continue
			}
			vi := NewValueInfo(name, TensorProtoFloat, t.Shape().Int64s())
			if j, out := isOutput[name]; out {
				g.Outputs[j] = vi
				continue
			}
			g.ValueInfo = append(g.ValueInfo, vi)
		}
	}
	return nil
}

func inputShape(v *ValueInfoProto, batch int) (tensor.Shape, error) {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return nil, fmt.Errorf("input %s has no shape", v.Name)
	}
	dims := v.Type.TensorType.Shape.Dims
	shape := make(tensor.Shape, len(dims))
	for i, d := range dims {
		switch {
		case i == 0:
			shape[i] = batch
		case d.DimParam != "" || d.DimValue <= 0:
			return nil, fmt.Errorf("input %s: dimension %d is not static", v.Name, i)
		default:
			shape[i] = int(d.DimValue)
		}
	}
	return shape, nil
}

// datatypePreserving lists ops whose output has the datatype of their
// first input.
var datatypePreserving = map[string]bool{
	"MaxPool":   true,
	"Flatten":   true,
	"Reshape":   true,
	"Identity":  true,
	"Transpose": true,
	"Squeeze":   true,
	"Unsqueeze": true,
}

// InferDataTypes annotates every node output with its QONNX datatype.
// Quant outputs are INTn or UINTn when the scale is 1 and the zero point 0,
// and SCALEDINT<n> otherwise. Shape ops keep the datatype of their input.
// Everything else is FLOAT32. Graph inputs and initializers keep their
// existing annotation.
func InferDataTypes(m *ModelProto) error {
	g := m.Graph
	for _, node := range topologicalSort(g.Nodes) {
		var dt string
		switch {
		case node.OpType == "Quant":
			q, unit, err := quantNodeSpec(g, &node)
			if err != nil {
				return fmt.Errorf("node %s: %w", node.Name, err)
			}
			if unit {
				dt = q.DataType()
			} else {
				dt = q.ScaledDataType()
			}
		case datatypePreserving[node.OpType] && len(node.Inputs) > 0:
			dt = g.TensorDataType(node.Inputs[0])
		default:
			dt = "FLOAT32"
		}
		for _, out := range node.Outputs {
			g.SetTensorDataType(out, dt)
		}
	}
	return nil
}

// quantNodeSpec reads the grid of a Quant node and reports whether its
// scale is 1 and zero point 0 everywhere.
func quantNodeSpec(g *GraphProto, node *NodeProto) (quant.IntQuant, bool, error) {
	if len(node.Inputs) != 4 {
		return quant.IntQuant{}, false, fmt.Errorf("quant node has %d inputs", len(node.Inputs))
	}
	param := func(i int) ([]float32, error) {
		init := g.Initializer(node.Inputs[i])
		if init == nil {
			return nil, fmt.Errorf("%w: non-constant quant parameter %s", ErrUnsupported, node.Inputs[i])
		}
		t, err := TensorFromProto(init)
		if err != nil {
			return nil, err
		}
		if t.DType() != tensor.Float32 {
			return nil, fmt.Errorf("%w: quant parameter %s has dtype %s", ErrUnsupported, init.Name, t.DType())
		}
		return t.AsFloat32(), nil
	}

	bw, err := param(3)
	if err != nil {
		return quant.IntQuant{}, false, err
	}
	if len(bw) != 1 {
		return quant.IntQuant{}, false, fmt.Errorf("bit width must be a scalar")
	}
	q, err := operators.QuantSpec(operatorNode(node), bw[0])
	if err != nil {
		return quant.IntQuant{}, false, err
	}

	scale, err := param(1)
	if err != nil {
		return q, false, err
	}
	zp, err := param(2)
	if err != nil {
		return q, false, err
	}
	unit := true
	for _, s := range scale {
		unit = unit && s == 1
	}
	for _, z := range zp {
		unit = unit && z == 0
	}
	return q, unit, nil
}

// linearOps consume a weight tensor as their second input.
var linearOps = map[string]bool{"Conv": true, "MatMul": true, "Gemm": true}

// FoldQuantWeights replaces constant Quant nodes feeding the weight input of
// Conv, MatMul or Gemm with an integer-valued initializer annotated with the
// integer datatype. A non-unit per-tensor scale moves into a Mul after the
// consuming node, and a Gemm bias moves into an Add after that Mul.
// It returns the number of folded nodes.
func FoldQuantWeights(m *ModelProto, backend tensor.Backend) (int, error) {
	g := m.Graph
	registry := operators.NewRegistry()
	ctx := &operators.Context{Backend: backend}

	folded := 0
	for i := 0; i < len(g.Nodes); i++ {
		node := g.Nodes[i]
		if node.OpType != "Quant" || len(node.Outputs) != 1 {
			continue
		}
		consumers := g.Consumers(node.Outputs[0])
		if len(consumers) != 1 {
			continue
		}
		consumer := g.Nodes[consumers[0]]
		if !linearOps[consumer.OpType] || len(consumer.Inputs) < 2 || consumer.Inputs[1] != node.Outputs[0] {
			continue
		}
		inputs, ok, err := constantInputs(g, &node)
		if err != nil {
			return folded, err
		}
		if !ok {
			continue
		}
		q, unit, err := quantNodeSpec(g, &node)
		if err != nil {
			return folded, fmt.Errorf("node %s: %w", node.Name, err)
		}
		scale, zp := inputs[1].AsFloat32(), inputs[2].AsFloat32()
		if !unit && (len(scale) != 1 || len(zp) != 1 || zp[0] != 0) {
			continue
		}

		outputs, err := registry.Execute(ctx, operatorNode(&node), inputs)
		if err != nil {
			return folded, fmt.Errorf("fold %s: %w", node.Name, err)
		}
		w := outputs[0]
		if !unit {
			ws := w.AsFloat32()
			for j := range ws {
				ws[j] = float32(math.RoundToEven(float64(ws[j] / scale[0])))
			}
		}
		p, err := TensorToProto(node.Outputs[0], w)
		if err != nil {
			return folded, err
		}
		g.Initializers = append(g.Initializers, p)
		g.SetTensorDataType(node.Outputs[0], q.DataType())

		if !unit {
			rescaleOutput(g, consumers[0], node.Name, scale[0])
		}
		idx := slices.IndexFunc(g.Nodes, func(n NodeProto) bool { return n.Name == node.Name })
		g.Nodes = slices.Delete(g.Nodes, idx, idx+1)
		i = -1
		folded++
	}
	RemoveUnusedInitializers(m)
	return folded, nil
}

// rescaleOutput inserts Mul(scale) after node ci. A Gemm bias is detached
// and re-added after the Mul so it is not scaled.
func rescaleOutput(g *GraphProto, ci int, prefix string, scale float32) {
	consumer := &g.Nodes[ci]
	out := consumer.Outputs[0]
	raw := consumer.Name + "_out_unscaled"
	consumer.Outputs[0] = raw

	var bias string
	if consumer.OpType == "Gemm" && len(consumer.Inputs) > 2 && consumer.Inputs[2] != "" {
		bias = consumer.Inputs[2]
		consumer.Inputs = consumer.Inputs[:2]
	}

	scaleName := prefix + "_scale"
	g.Initializers = append(g.Initializers, ScalarTensor(scaleName, scale))
	mul := NodeProto{
		Name:    prefix + "_Mul",
		OpType:  "Mul",
		Inputs:  []string{raw, scaleName},
		Outputs: []string{out},
	}
	nodes := []NodeProto{mul}
	if bias != "" {
		scaled := prefix + "_Mul_out0"
		nodes[0].Outputs = []string{scaled}
		nodes = append(nodes, NodeProto{
			Name:    prefix + "_Add",
			OpType:  "Add",
			Inputs:  []string{scaled, bias},
			Outputs: []string{out},
		})
	}
	g.Nodes = slices.Insert(g.Nodes, ci+1, nodes...)
}
