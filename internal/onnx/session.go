package onnx

import (
	"fmt"

	"github.com/born-ml/radioml/internal/onnx/operators"
	"github.com/born-ml/radioml/internal/tensor"
)

// Session executes an ONNX graph with the provided backend.
type Session struct {
	proto        *ModelProto
	registry     *operators.Registry
	backend      tensor.Backend
	constants    map[string]*tensor.RawTensor
	inputNames   []string
	outputNames  []string
	sortedNodes  []NodeProto
	opsetVersion int64
}

// NewSession prepares m for execution.
//
// Example:
//
//	s, err := onnx.NewSession(m, cpu.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logits, err := s.Forward(batch)
func NewSession(m *ModelProto, backend tensor.Backend) (*Session, error) {
	s := &Session{
		proto:    m,
		registry: operators.NewRegistry(),
		backend:  backend,
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	return s, nil
}

// InputNames returns the names of graph inputs that are not initializers.
func (s *Session) InputNames() []string {
	return s.inputNames
}

// OutputNames returns the names of graph outputs.
func (s *Session) OutputNames() []string {
	return s.outputNames
}

// OpsetVersion returns the default-domain opset version.
func (s *Session) OpsetVersion() int64 {
	return s.opsetVersion
}

// Metadata returns model metadata as key-value pairs.
func (s *Session) Metadata() map[string]string {
	meta := make(map[string]string)
	for _, prop := range s.proto.MetadataProps {
		meta[prop.Key] = prop.Value
	}
	meta["producer_name"] = s.proto.ProducerName
	meta["producer_version"] = s.proto.ProducerVersion
	meta["domain"] = s.proto.Domain
	return meta
}

// Forward runs a single-input, single-output graph.
func (s *Session) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	if len(s.inputNames) != 1 || len(s.outputNames) != 1 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs, use Run", len(s.inputNames), len(s.outputNames))
	}
	outputs, err := s.Run(map[string]*tensor.RawTensor{s.inputNames[0]: input})
	if err != nil {
		return nil, err
	}
	return outputs[s.outputNames[0]], nil
}

// Run executes the graph and returns its outputs by name.
func (s *Session) Run(inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	values, err := s.RunAll(inputs)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*tensor.RawTensor, len(s.outputNames))
	for _, name := range s.outputNames {
		t, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("missing output: %s", name)
		}
		result[name] = t
	}
	return result, nil
}

// RunAll executes the graph and returns every value it computed, including
// intermediates and initializers.
func (s *Session) RunAll(inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	values := make(map[string]*tensor.RawTensor, len(s.constants)+len(s.sortedNodes))
	for name, t := range s.constants {
		values[name] = t
	}
	for name, t := range inputs {
		values[name] = t
	}
	for _, name := range s.inputNames {
		if _, ok := values[name]; !ok {
			return nil, fmt.Errorf("missing input: %s", name)
		}
	}

	ctx := &operators.Context{Backend: s.backend}
	for i := range s.sortedNodes {
		node := &s.sortedNodes[i]
		nodeInputs := make([]*tensor.RawTensor, len(node.Inputs))
		for j, name := range node.Inputs {
			if name == "" {
				continue // omitted optional input
			}
			t, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("node %s: missing input %s", node.Name, name)
			}
			nodeInputs[j] = t
		}

		outputs, err := s.registry.Execute(ctx, operatorNode(node), nodeInputs)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		for j, name := range node.Outputs {
			if j < len(outputs) {
				values[name] = outputs[j]
			}
		}
	}
	return values, nil
}

func (s *Session) compile() error {
	graph := s.proto.Graph
	if graph == nil {
		return fmt.Errorf("model has no graph")
	}

	s.constants = make(map[string]*tensor.RawTensor, len(graph.Initializers))
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		t, err := TensorFromProto(init)
		if err != nil {
			return fmt.Errorf("failed to load initializer %s: %w", init.Name, err)
		}
		s.constants[init.Name] = t
	}

	for i := range graph.Inputs {
		if _, ok := s.constants[graph.Inputs[i].Name]; !ok {
			s.inputNames = append(s.inputNames, graph.Inputs[i].Name)
		}
	}
	for i := range graph.Outputs {
		s.outputNames = append(s.outputNames, graph.Outputs[i].Name)
	}

	for i := range graph.Nodes {
		if _, ok := s.registry.Get(graph.Nodes[i].OpType); !ok {
			return fmt.Errorf("%w: operator %s (node %s)", ErrUnsupported, graph.Nodes[i].OpType, graph.Nodes[i].Name)
		}
	}
	s.sortedNodes = topologicalSort(graph.Nodes)

	for _, opset := range s.proto.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			s.opsetVersion = opset.Version
			break
		}
	}
	return nil
}

// operatorNode converts NodeProto to operators.Node.
func operatorNode(proto *NodeProto) *operators.Node {
	attrs := make([]operators.Attribute, len(proto.Attributes))
	for i := range proto.Attributes {
		attr := &proto.Attributes[i]
		attrs[i] = operators.Attribute{
			Name:   attr.Name,
			Type:   attr.Type,
			F:      attr.F,
			I:      attr.I,
			S:      attr.S,
			Floats: attr.Floats,
			Ints:   attr.Ints,
		}
	}
	return &operators.Node{
		Name:       proto.Name,
		OpType:     proto.OpType,
		Inputs:     proto.Inputs,
		Outputs:    proto.Outputs,
		Attributes: attrs,
		Domain:     proto.Domain,
	}
}

// topologicalSort orders nodes so producers run before consumers.
func topologicalSort(nodes []NodeProto) []NodeProto {
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			outputToNode[output] = i
		}
	}

	visited := make([]bool, len(nodes))
	result := make([]NodeProto, 0, len(nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, input := range nodes[i].Inputs {
			if dep, ok := outputToNode[input]; ok {
				visit(dep)
			}
		}
		result = append(result, nodes[i])
	}

	for i := range nodes {
		visit(i)
	}
	return result
}
