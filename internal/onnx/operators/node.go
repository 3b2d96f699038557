package operators

import "fmt"

// Node represents an ONNX operation node.
// This is a local copy of the relevant fields from onnx.NodeProto
// to avoid import cycles between onnx and operators packages.
type Node struct {
	Name       string
	OpType     string
	Inputs     []string
	Outputs    []string
	Attributes []Attribute
	Domain     string
}

// Attribute represents a node attribute.
type Attribute struct {
	Name   string
	Type   int32
	F      float32
	I      int64
	S      []byte
	Floats []float32
	Ints   []int64
}

func (n *Node) attr(name string) (*Attribute, bool) {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i], true
		}
	}
	return nil, false
}

// GetAttrInt returns an integer attribute or default value.
func GetAttrInt(node *Node, name string, defaultVal int64) int64 {
	if a, ok := node.attr(name); ok {
		return a.I
	}
	return defaultVal
}

// GetAttrInts returns an integer array attribute.
func GetAttrInts(node *Node, name string) []int64 {
	if a, ok := node.attr(name); ok {
		return a.Ints
	}
	return nil
}

// GetAttrFloat returns a float attribute or default value.
func GetAttrFloat(node *Node, name string, defaultVal float32) float32 {
	if a, ok := node.attr(name); ok {
		return a.F
	}
	return defaultVal
}

// GetAttrString returns a string attribute or default value.
func GetAttrString(node *Node, name, defaultVal string) string {
	if a, ok := node.attr(name); ok {
		return string(a.S)
	}
	return defaultVal
}

// symmetric1D reads a 1D spatial attribute list (kernel_shape, strides,
// pads, dilations) and returns its single value.
func symmetric1D(node *Node, name string, def int) (int, error) {
	vs := GetAttrInts(node, name)
	switch {
	case len(vs) == 0:
		return def, nil
	case len(vs) == 1:
		return int(vs[0]), nil
	case len(vs) == 2 && name == "pads" && vs[0] == vs[1]:
		return int(vs[0]), nil
	default:
		return 0, fmt.Errorf("%s %v: only 1D symmetric values supported", name, vs)
	}
}

func expectInputs(node *Node, inputs int, got int) error {
	if got < inputs {
		return fmt.Errorf("%s requires %d inputs, got %d", node.OpType, inputs, got)
	}
	return nil
}
