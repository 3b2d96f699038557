package onnx

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes m in protobuf wire format.
func Marshal(m *ModelProto) []byte {
	var e encoder
	encodeModel(&e, m)
	return e.b
}

// WriteFile encodes m and writes it to path.
func WriteFile(path string, m *ModelProto) error {
	//nolint:gosec // G306: model files are not secret
	if err := os.WriteFile(path, Marshal(m), 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

// encoder appends fields. Zero scalars and empty strings are omitted, which
// decodes back to the same defaults.
type encoder struct {
	b []byte
}

func (e *encoder) varint(num protowire.Number, v int64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, uint64(v)) //nolint:gosec // G115: two's complement
}

func (e *encoder) str(num protowire.Number, s string) {
	if s == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, s)
}

func (e *encoder) rawBytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

// repeatedStr writes every element, including empty names of omitted
// optional inputs.
func (e *encoder) repeatedStr(num protowire.Number, ss []string) {
	for _, s := range ss {
		e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
		e.b = protowire.AppendString(e.b, s)
	}
}

func (e *encoder) float32(num protowire.Number, v float32) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed32Type)
	e.b = protowire.AppendFixed32(e.b, math.Float32bits(v))
}

func (e *encoder) packedInt64s(num protowire.Number, vs []int64) {
	if len(vs) == 0 {
		return
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // G115: two's complement
	}
	e.rawBytes(num, packed)
}

func (e *encoder) packedInt32s(num protowire.Number, vs []int32) {
	wide := make([]int64, len(vs))
	for i, v := range vs {
		wide[i] = int64(v)
	}
	e.packedInt64s(num, wide)
}

func (e *encoder) packedFloat32s(num protowire.Number, vs []float32) {
	if len(vs) == 0 {
		return
	}
	packed := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	e.rawBytes(num, packed)
}

// message writes an embedded message produced by fn. Empty messages are
// still written so that repeated entries keep their position.
func (e *encoder) message(num protowire.Number, fn func(*encoder)) {
	var sub encoder
	fn(&sub)
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, sub.b)
}

func encodeModel(e *encoder, m *ModelProto) {
	e.varint(1, m.IRVersion)
	e.str(2, m.ProducerName)
	e.str(3, m.ProducerVersion)
	e.str(4, m.Domain)
	e.varint(5, m.ModelVersion)
	e.str(6, m.DocString)
	if m.Graph != nil {
		e.message(7, func(e *encoder) { encodeGraph(e, m.Graph) })
	}
	for _, op := range m.OpsetImport {
		e.message(8, func(e *encoder) {
			e.str(1, op.Domain)
			e.varint(2, op.Version)
		})
	}
	for _, kv := range m.MetadataProps {
		e.message(14, func(e *encoder) { encodeEntry(e, kv) })
	}
}

func encodeGraph(e *encoder, g *GraphProto) {
	for i := range g.Nodes {
		e.message(1, func(e *encoder) { encodeNode(e, &g.Nodes[i]) })
	}
	e.str(2, g.Name)
	for i := range g.Initializers {
		e.message(5, func(e *encoder) { encodeTensor(e, &g.Initializers[i]) })
	}
	e.str(10, g.DocString)
	for i := range g.Inputs {
		e.message(11, func(e *encoder) { encodeValueInfo(e, &g.Inputs[i]) })
	}
	for i := range g.Outputs {
		e.message(12, func(e *encoder) { encodeValueInfo(e, &g.Outputs[i]) })
	}
	for i := range g.ValueInfo {
		e.message(13, func(e *encoder) { encodeValueInfo(e, &g.ValueInfo[i]) })
	}
	for _, a := range g.QuantizationAnnotation {
		e.message(14, func(e *encoder) {
			e.str(1, a.TensorName)
			for _, kv := range a.QuantParameterTensorNames {
				e.message(2, func(e *encoder) { encodeEntry(e, kv) })
			}
		})
	}
}

func encodeNode(e *encoder, n *NodeProto) {
	e.repeatedStr(1, n.Inputs)
	e.repeatedStr(2, n.Outputs)
	e.str(3, n.Name)
	e.str(4, n.OpType)
	for i := range n.Attributes {
		e.message(5, func(e *encoder) { encodeAttribute(e, &n.Attributes[i]) })
	}
	e.str(6, n.DocString)
	e.str(7, n.Domain)
}

func encodeAttribute(e *encoder, a *AttributeProto) {
	e.str(1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		// A zero float is meaningful; write it explicitly.
		e.b = protowire.AppendTag(e.b, 2, protowire.Fixed32Type)
		e.b = protowire.AppendFixed32(e.b, math.Float32bits(a.F))
	case AttributeProtoInt:
		e.b = protowire.AppendTag(e.b, 3, protowire.VarintType)
		e.b = protowire.AppendVarint(e.b, uint64(a.I)) //nolint:gosec // G115: two's complement
	case AttributeProtoString:
		e.b = protowire.AppendTag(e.b, 4, protowire.BytesType)
		e.b = protowire.AppendBytes(e.b, a.S)
	}
	if a.T != nil {
		e.message(5, func(e *encoder) { encodeTensor(e, a.T) })
	}
	e.packedFloat32s(7, a.Floats)
	e.packedInt64s(8, a.Ints)
	for _, s := range a.Strings {
		e.b = protowire.AppendTag(e.b, 9, protowire.BytesType)
		e.b = protowire.AppendBytes(e.b, s)
	}
	for i := range a.Tensors {
		e.message(10, func(e *encoder) { encodeTensor(e, &a.Tensors[i]) })
	}
	e.str(13, a.DocString)
	e.varint(20, int64(a.Type))
}

func encodeTensor(e *encoder, t *TensorProto) {
	e.packedInt64s(1, t.Dims)
	e.varint(2, int64(t.DataType))
	e.packedFloat32s(4, t.FloatData)
	if len(t.Int32Data) > 0 {
		e.packedInt32s(5, t.Int32Data)
	}
	e.packedInt64s(7, t.Int64Data)
	e.str(8, t.Name)
	e.rawBytes(9, t.RawData)
	e.str(12, t.DocString)
}

func encodeValueInfo(e *encoder, v *ValueInfoProto) {
	e.str(1, v.Name)
	if v.Type != nil && v.Type.TensorType != nil {
		tt := v.Type.TensorType
		e.message(2, func(e *encoder) {
			e.message(1, func(e *encoder) {
				e.varint(1, int64(tt.ElemType))
				if tt.Shape != nil {
					e.message(2, func(e *encoder) {
						for _, d := range tt.Shape.Dims {
							e.message(1, func(e *encoder) {
								if d.DimParam != "" {
									e.str(2, d.DimParam)
									return
								}
								// Dimension values of zero are still written.
								e.b = protowire.AppendTag(e.b, 1, protowire.VarintType)
								e.b = protowire.AppendVarint(e.b, uint64(d.DimValue)) //nolint:gosec // G115: dims are non-negative
							})
						}
					})
				}
			})
		})
	}
	e.str(3, v.DocString)
}

func encodeEntry(e *encoder, kv StringStringEntry) {
	e.str(1, kv.Key)
	e.str(2, kv.Value)
}
