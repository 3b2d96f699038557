package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for bytes that are not a valid ONNX model.
var ErrMalformed = errors.New("malformed onnx protobuf")

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	if err := decodeModel(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return m, nil
}

// fields walks the top-level fields of a message. Fields fn does not
// consume are skipped.
type fields struct {
	b   []byte
	num protowire.Number
	typ protowire.Type
	err error
}

func (f *fields) next() bool {
	if f.err != nil || len(f.b) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(f.b)
	if n < 0 {
		f.fail(n)
		return false
	}
	f.b = f.b[n:]
	f.num, f.typ = num, typ
	return true
}

func (f *fields) fail(n int) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: field %d: %w", ErrMalformed, f.num, protowire.ParseError(n))
	}
}

func (f *fields) varint() int64 {
	if f.typ != protowire.VarintType {
		f.err = fmt.Errorf("%w: field %d has wire type %d, want varint", ErrMalformed, f.num, f.typ)
		return 0
	}
	v, n := protowire.ConsumeVarint(f.b)
	if n < 0 {
		f.fail(n)
		return 0
	}
	f.b = f.b[n:]
	return int64(v) //nolint:gosec // G115: protobuf int64 is two's complement
}

func (f *fields) bytes() []byte {
	if f.typ != protowire.BytesType {
		f.err = fmt.Errorf("%w: field %d has wire type %d, want bytes", ErrMalformed, f.num, f.typ)
		return nil
	}
	v, n := protowire.ConsumeBytes(f.b)
	if n < 0 {
		f.fail(n)
		return nil
	}
	f.b = f.b[n:]
	return v
}

func (f *fields) str() string { return string(f.bytes()) }

func (f *fields) float32() float32 {
	if f.typ != protowire.Fixed32Type {
		f.err = fmt.Errorf("%w: field %d has wire type %d, want fixed32", ErrMalformed, f.num, f.typ)
		return 0
	}
	v, n := protowire.ConsumeFixed32(f.b)
	if n < 0 {
		f.fail(n)
		return 0
	}
	f.b = f.b[n:]
	return math.Float32frombits(v)
}

// int64s appends a repeated int64 field in packed or unpacked encoding.
func (f *fields) int64s(dst []int64) []int64 {
	if f.typ == protowire.VarintType {
		return append(dst, f.varint())
	}
	packed := f.bytes()
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			f.fail(n)
			return dst
		}
		dst = append(dst, int64(v)) //nolint:gosec // G115: two's complement
		packed = packed[n:]
	}
	return dst
}

func (f *fields) int32s(dst []int32) []int32 {
	for _, v := range f.int64s(nil) {
		dst = append(dst, int32(v)) //nolint:gosec // G115: int32 field
	}
	return dst
}

// float32s appends a repeated float field in packed or unpacked encoding.
func (f *fields) float32s(dst []float32) []float32 {
	if f.typ == protowire.Fixed32Type {
		return append(dst, f.float32())
	}
	packed := f.bytes()
	for len(packed) > 0 {
		v, n := protowire.ConsumeFixed32(packed)
		if n < 0 {
			f.fail(n)
			return dst
		}
		dst = append(dst, math.Float32frombits(v))
		packed = packed[n:]
	}
	return dst
}

func (f *fields) skip() {
	n := protowire.ConsumeFieldValue(f.num, f.typ, f.b)
	if n < 0 {
		f.fail(n)
		return
	}
	f.b = f.b[n:]
}

// message decodes an embedded message with fn.
func (f *fields) message(fn func([]byte) error) {
	b := f.bytes()
	if f.err != nil {
		return
	}
	if err := fn(b); err != nil {
		f.err = err
	}
}

func decodeModel(b []byte, m *ModelProto) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			m.IRVersion = f.varint()
		case 2:
			m.ProducerName = f.str()
		case 3:
			m.ProducerVersion = f.str()
		case 4:
			m.Domain = f.str()
		case 5:
			m.ModelVersion = f.varint()
		case 6:
			m.DocString = f.str()
		case 7:
			m.Graph = &GraphProto{}
			f.message(func(b []byte) error { return decodeGraph(b, m.Graph) })
		case 8:
			var op OperatorSetID
			f.message(func(b []byte) error { return decodeOpset(b, &op) })
			m.OpsetImport = append(m.OpsetImport, op)
		case 14:
			var kv StringStringEntry
			f.message(func(b []byte) error { return decodeEntry(b, &kv) })
			m.MetadataProps = append(m.MetadataProps, kv)
		default:
			f.skip()
		}
	}
	return f.err
}

func decodeGraph(b []byte, g *GraphProto) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			var n NodeProto
			f.message(func(b []byte) error { return decodeNode(b, &n) })
			g.Nodes = append(g.Nodes, n)
		case 2:
			g.Name = f.str()
		case 5:
			var t TensorProto
			f.message(func(b []byte) error { return decodeTensor(b, &t) })
			g.Initializers = append(g.Initializers, t)
		case 10:
			g.DocString = f.str()
		case 11, 12, 13:
			var v ValueInfoProto
			f.message(func(b []byte) error { return decodeValueInfo(b, &v) })
			switch f.num {
			case 11:
				g.Inputs = append(g.Inputs, v)
			case 12:
				g.Outputs = append(g.Outputs, v)
			default:
				g.ValueInfo = append(g.ValueInfo, v)
			}
		case 14:
			var a TensorAnnotation
			f.message(func(b []byte) error { return decodeAnnotation(b, &a) })
			g.QuantizationAnnotation = append(g.QuantizationAnnotation, a)
		default:
			f.skip()
		}
	}
	return f.err
}

func decodeNode(b []byte, n *NodeProto) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			n.Inputs = append(n.Inputs, f.str())
		case 2:
			n.Outputs = append(n.Outputs, f.str())
		case 3:
			n.Name = f.str()
		case 4:
			n.OpType = f.str()
		case 5:
			var a AttributeProto
			f.message(func(b []byte) error { return decodeAttribute(b, &a) })
			n.Attributes = append(n.Attributes, a)
		case 6:
			n.DocString = f.str()
		case 7:
			n.Domain = f.str()
		default:
			f.skip()
		}
	}
	return f.err
}

func decodeAttribute(b []byte, a *AttributeProto) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			a.Name = f.str()
		case 2:
			a.F = f.float32()
		case 3:
			a.I = f.varint()
		case 4:
			a.S = append([]byte(nil), f.bytes()...)
		case 5:
			a.T = &TensorProto{}
			f.message(func(b []byte) error { return decodeTensor(b, a.T) })
		case 7:
			a.Floats = f.float32s(a.Floats)
		case 8:
			a.Ints = f.int64s(a.Ints)
		case 9:
			a.Strings = append(a.Strings, append([]byte(nil), f.bytes()...))
		case 10:
			var t TensorProto
			f.message(func(b []byte) error { return decodeTensor(b, &t) })
			a.Tensors = append(a.Tensors, t)
		case 13:
			a.DocString = f.str()
		case 20:
			a.Type = int32(f.varint()) //nolint:gosec // G115: enum
		default:
			f.skip()
		}
	}
	return f.err
}

func decodeTensor(b []byte, t *TensorProto) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			t.Dims = f.int64s(t.Dims)
		case 2:
			t.DataType = int32(f.varint()) //nolint:gosec // G115: enum
		case 4:
			t.FloatData = f.float32s(t.FloatData)
		case 5:
			t.Int32Data = f.int32s(t.Int32Data)
		case 7:
			t.Int64Data = f.int64s(t.Int64Data)
		case 8:
			t.Name = f.str()
		case 9:
			t.RawData = append([]byte(nil), f.bytes()...)
		case 12:
			t.DocString = f.str()
		default:
			f.skip()
		}
	}
	return f.err
}

func decodeValueInfo(b []byte, v *ValueInfoProto) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			v.Name = f.str()
		case 2:
			v.Type = &TypeProto{}
			f.message(func(b []byte) error { return decodeType(b, v.Type) })
		case 3:
			v.DocString = f.str()
		default:
			f.skip()
		}
	}
	return f.err
}

func decodeType(b []byte, t *TypeProto) error {
	f := &fields{b: b}
	for f.next() {
		if f.num != 1 {
			f.skip()
			continue
		}
		t.TensorType = &TensorTypeProto{}
		f.message(func(b []byte) error { return decodeTensorType(b, t.TensorType) })
	}
	return f.err
}

func decodeTensorType(b []byte, t *TensorTypeProto) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			t.ElemType = int32(f.varint()) //nolint:gosec // G115: enum
		case 2:
			t.Shape = &TensorShapeProto{}
			f.message(func(b []byte) error { return decodeShape(b, t.Shape) })
		default:
			f.skip()
		}
	}
	return f.err
}

func decodeShape(b []byte, s *TensorShapeProto) error {
	f := &fields{b: b}
	for f.next() {
		if f.num != 1 {
			f.skip()
			continue
		}
		var d DimensionProto
		f.message(func(b []byte) error {
			df := &fields{b: b}
			for df.next() {
				switch df.num {
				case 1:
					d.DimValue = df.varint()
				case 2:
					d.DimParam = df.str()
				default:
					df.skip()
				}
			}
			return df.err
		})
		s.Dims = append(s.Dims, d)
	}
	return f.err
}

func decodeOpset(b []byte, op *OperatorSetID) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			op.Domain = f.str()
		case 2:
			op.Version = f.varint()
		default:
			f.skip()
		}
	}
	return f.err
}

func decodeEntry(b []byte, kv *StringStringEntry) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			kv.Key = f.str()
		case 2:
			kv.Value = f.str()
		default:
			f.skip()
		}
	}
	return f.err
}

func decodeAnnotation(b []byte, a *TensorAnnotation) error {
	f := &fields{b: b}
	for f.next() {
		switch f.num {
		case 1:
			a.TensorName = f.str()
		case 2:
			var kv StringStringEntry
			f.message(func(b []byte) error { return decodeEntry(b, &kv) })
			a.QuantParameterTensorNames = append(a.QuantParameterTensorNames, kv)
		default:
			f.skip()
		}
	}
	return f.err
}
