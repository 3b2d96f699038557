package onnx

// ONNX protobuf data structures (hand-written).

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64               // IR version (e.g., 7, 8, 9)
	OpsetImport     []OperatorSetID     // Opset version(s)
	ProducerName    string              // Exporting framework name
	ProducerVersion string              // Exporting framework version
	Domain          string              // Model domain
	ModelVersion    int64               // Model version number
	DocString       string              // Model description
	Graph           *GraphProto         // Computation graph
	MetadataProps   []StringStringEntry // Key-value metadata
}

// GraphProto represents the computation graph.
type GraphProto struct {
	Name                   string             // Graph name
	Nodes                  []NodeProto        // Operation nodes
	Initializers           []TensorProto      // Weight tensors
	DocString              string             // Graph description
	Inputs                 []ValueInfoProto   // Graph inputs
	Outputs                []ValueInfoProto   // Graph outputs
	ValueInfo              []ValueInfoProto   // Intermediate tensor info
	QuantizationAnnotation []TensorAnnotation // Per-tensor datatype annotations
}

// NodeProto represents a single operation.
type NodeProto struct {
	Name       string           // Node name (optional)
	OpType     string           // Operation type (e.g., "Conv", "Quant", "Gemm")
	Inputs     []string         // Input tensor names
	Outputs    []string         // Output tensor names
	Attributes []AttributeProto // Operation attributes
	Domain     string           // Custom domain (empty for default)
	DocString  string           // Node description
}

// TensorProto represents a tensor (weights/initializers).
type TensorProto struct {
	Name      string    // Tensor name
	DataType  int32     // Element data type
	Dims      []int64   // Tensor shape
	RawData   []byte    // Raw little-endian data (most common)
	FloatData []float32 // Float32 data (legacy)
	Int32Data []int32   // Int32 data (legacy)
	Int64Data []int64   // Int64 data (legacy)
	DocString string    // Tensor description
}

// ValueInfoProto describes input/output tensor specifications.
type ValueInfoProto struct {
	Name      string     // Tensor name
	Type      *TypeProto // Tensor type information
	DocString string     // Description
}

// TypeProto describes tensor type.
type TypeProto struct {
	TensorType *TensorTypeProto
}

// TensorTypeProto describes tensor shape and element type.
type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto
}

// TensorShapeProto describes tensor dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto describes a single dimension.
type DimensionProto struct {
	DimValue int64  // Static dimension value
	DimParam string // Symbolic dimension name (e.g., "batch_size")
}

// AttributeProto represents node attributes.
type AttributeProto struct {
	Name      string        // Attribute name
	Type      int32         // Attribute type
	F         float32       // FLOAT value
	I         int64         // INT value
	S         []byte        // STRING value
	T         *TensorProto  // TENSOR value
	Floats    []float32     // FLOATS array
	Ints      []int64       // INTS array
	Strings   [][]byte      // STRINGS array
	Tensors   []TensorProto // TENSORS array
	DocString string        // Description
}

// OperatorSetID identifies opset version.
type OperatorSetID struct {
	Domain  string // Operator domain (empty for default)
	Version int64  // Opset version number
}

// StringStringEntry represents a key-value pair.
type StringStringEntry struct {
	Key   string
	Value string
}

// TensorAnnotation attaches key-value annotations to a tensor. QONNX stores
// the tensor datatype under the "finn_datatype" key.
type TensorAnnotation struct {
	TensorName                string
	QuantParameterTensorNames []StringStringEntry
}

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined = 0
	TensorProtoFloat     = 1  // float32
	TensorProtoUint8     = 2  // uint8
	TensorProtoInt8      = 3  // int8
	TensorProtoUint16    = 4  // uint16
	TensorProtoInt16     = 5  // int16
	TensorProtoInt32     = 6  // int32
	TensorProtoInt64     = 7  // int64
	TensorProtoString    = 8  // string
	TensorProtoBool      = 9  // bool
	TensorProtoFloat16   = 10 // float16
	TensorProtoDouble    = 11 // float64
	TensorProtoUint32    = 12 // uint32
	TensorProtoUint64    = 13 // uint64
)

// ONNX attribute types (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1 // FLOAT
	AttributeProtoInt       = 2 // INT
	AttributeProtoString    = 3 // STRING
	AttributeProtoTensor    = 4 // TENSOR
	AttributeProtoFloats    = 6 // FLOATS
	AttributeProtoInts      = 7 // INTS
	AttributeProtoStrings   = 8 // STRINGS
	AttributeProtoTensors   = 9 // TENSORS
)

// Well-known domains.
const (
	DomainDefault = ""
	DomainQONNX   = "qonnx.custom_op.general"
)

// DataTypeKey is the annotation key holding a tensor's QONNX datatype.
const DataTypeKey = "finn_datatype"

// Initializer returns the initializer called name, or nil.
func (g *GraphProto) Initializer(name string) *TensorProto {
	for i := range g.Initializers {
		if g.Initializers[i].Name == name {
			return &g.Initializers[i]
		}
	}
	return nil
}

// Producer returns the index of the node producing name, or -1.
func (g *GraphProto) Producer(name string) int {
	for i := range g.Nodes {
		for _, out := range g.Nodes[i].Outputs {
			if out == name {
				return i
			}
		}
	}
	return -1
}

// Consumers returns the indices of nodes that read name.
func (g *GraphProto) Consumers(name string) []int {
	var out []int
	for i := range g.Nodes {
		for _, in := range g.Nodes[i].Inputs {
			if in == name {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// TensorDataType returns the annotated QONNX datatype of name. Unannotated
// tensors are FLOAT32.
func (g *GraphProto) TensorDataType(name string) string {
	for _, a := range g.QuantizationAnnotation {
		if a.TensorName != name {
			continue
		}
		for _, kv := range a.QuantParameterTensorNames {
			if kv.Key == DataTypeKey {
				return kv.Value
			}
		}
	}
	return "FLOAT32"
}

// SetTensorDataType annotates name with a QONNX datatype.
func (g *GraphProto) SetTensorDataType(name, dt string) {
	for i := range g.QuantizationAnnotation {
		a := &g.QuantizationAnnotation[i]
		if a.TensorName != name {
			continue
		}
		for j := range a.QuantParameterTensorNames {
			if a.QuantParameterTensorNames[j].Key == DataTypeKey {
				a.QuantParameterTensorNames[j].Value = dt
				return
			}
		}
		a.QuantParameterTensorNames = append(a.QuantParameterTensorNames, StringStringEntry{Key: DataTypeKey, Value: dt})
		return
	}
	g.QuantizationAnnotation = append(g.QuantizationAnnotation, TensorAnnotation{
		TensorName:                name,
		QuantParameterTensorNames: []StringStringEntry{{Key: DataTypeKey, Value: dt}},
	})
}

// ValueShape returns the static shape recorded for name in inputs, outputs
// or value_info.
func (g *GraphProto) ValueShape(name string) ([]int64, bool) {
	for _, list := range [][]ValueInfoProto{g.Inputs, g.Outputs, g.ValueInfo} {
		for i := range list {
			if list[i].Name == name {
				return list[i].Shape()
			}
		}
	}
	if init := g.Initializer(name); init != nil {
		return init.Dims, true
	}
	return nil, false
}

// Shape returns the static dims of a tensor-typed value.
func (v *ValueInfoProto) Shape() ([]int64, bool) {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return nil, false
	}
	dims := v.Type.TensorType.Shape.Dims
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d.DimParam != "" {
			return nil, false
		}
		out[i] = d.DimValue
	}
	return out, true
}

// NewValueInfo builds a ValueInfoProto for a tensor with static dims.
func NewValueInfo(name string, elemType int32, dims []int64) ValueInfoProto {
	shape := &TensorShapeProto{Dims: make([]DimensionProto, len(dims))}
	for i, d := range dims {
		shape.Dims[i] = DimensionProto{DimValue: d}
	}
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: elemType, Shape: shape}},
	}
}
