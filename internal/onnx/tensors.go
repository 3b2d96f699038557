package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/radioml/internal/tensor"
)

// TensorFromProto converts a TensorProto to a RawTensor on the CPU.
func TensorFromProto(p *TensorProto) (*tensor.RawTensor, error) {
	shape := make(tensor.Shape, len(p.Dims))
	for i, d := range p.Dims {
		shape[i] = int(d)
	}
	dtype, err := protoTypeToTensorType(p.DataType)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", p.Name, err)
	}
	t, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", p.Name, err)
	}

	n := t.NumElements()
	switch {
	case len(p.RawData) > 0:
		if len(p.RawData) != t.ByteSize() {
			return nil, fmt.Errorf("tensor %q: raw data has %d bytes, shape %v needs %d", p.Name, len(p.RawData), shape, t.ByteSize())
		}
		copy(t.Data(), p.RawData)
	case len(p.FloatData) > 0 && dtype == tensor.Float32:
		if len(p.FloatData) != n {
			return nil, fmt.Errorf("tensor %q: %d floats for %d elements", p.Name, len(p.FloatData), n)
		}
		copy(t.AsFloat32(), p.FloatData)
	case len(p.Int32Data) > 0 && dtype == tensor.Int32:
		if len(p.Int32Data) != n {
			return nil, fmt.Errorf("tensor %q: %d int32s for %d elements", p.Name, len(p.Int32Data), n)
		}
		copy(t.AsInt32(), p.Int32Data)
	case len(p.Int64Data) > 0 && dtype == tensor.Int64:
		if len(p.Int64Data) != n {
			return nil, fmt.Errorf("tensor %q: %d int64s for %d elements", p.Name, len(p.Int64Data), n)
		}
		copy(t.AsInt64(), p.Int64Data)
	}
	return t, nil
}

// TensorToProto converts a RawTensor to a TensorProto with raw data.
func TensorToProto(name string, t *tensor.RawTensor) (TensorProto, error) {
	dt, err := tensorTypeToProtoType(t.DType())
	if err != nil {
		return TensorProto{}, fmt.Errorf("tensor %q: %w", name, err)
	}
	return TensorProto{
		Name:     name,
		DataType: dt,
		Dims:     t.Shape().Int64s(),
		RawData:  append([]byte(nil), t.Data()...),
	}, nil
}

// FloatTensor builds a float32 TensorProto.
func FloatTensor(name string, dims []int64, values []float32) TensorProto {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return TensorProto{Name: name, DataType: TensorProtoFloat, Dims: dims, RawData: raw}
}

// ScalarTensor builds a 0-dimensional float32 TensorProto.
func ScalarTensor(name string, v float32) TensorProto {
	return FloatTensor(name, nil, []float32{v})
}

func protoTypeToTensorType(onnxType int32) (tensor.DataType, error) {
	switch onnxType {
	case TensorProtoFloat:
		return tensor.Float32, nil
	case TensorProtoDouble:
		return tensor.Float64, nil
	case TensorProtoInt32:
		return tensor.Int32, nil
	case TensorProtoInt64:
		return tensor.Int64, nil
	case TensorProtoUint8:
		return tensor.Uint8, nil
	case TensorProtoInt8:
		return tensor.Int8, nil
	case TensorProtoBool:
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("%w: onnx data type %d", ErrUnsupported, onnxType)
	}
}

func tensorTypeToProtoType(dt tensor.DataType) (int32, error) {
	switch dt {
	case tensor.Float32:
		return TensorProtoFloat, nil
	case tensor.Float64:
		return TensorProtoDouble, nil
	case tensor.Int32:
		return TensorProtoInt32, nil
	case tensor.Int64:
		return TensorProtoInt64, nil
	case tensor.Uint8:
		return TensorProtoUint8, nil
	case tensor.Int8:
		return TensorProtoInt8, nil
	case tensor.Bool:
		return TensorProtoBool, nil
	default:
		return 0, fmt.Errorf("%w: tensor dtype %s", ErrUnsupported, dt)
	}
}

// IntAttr builds an INT attribute.
func IntAttr(name string, v int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInt, I: v}
}

// IntsAttr builds an INTS attribute.
func IntsAttr(name string, v ...int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInts, Ints: v}
}

// FloatAttr builds a FLOAT attribute.
func FloatAttr(name string, v float32) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoFloat, F: v}
}

// StringAttr builds a STRING attribute.
func StringAttr(name, v string) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoString, S: []byte(v)}
}

// Attr returns the attribute called name.
func (n *NodeProto) Attr(name string) (*AttributeProto, bool) {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i], true
		}
	}
	return nil, false
}

// AttrInt returns an INT attribute or def.
func (n *NodeProto) AttrInt(name string, def int64) int64 {
	if a, ok := n.Attr(name); ok {
		return a.I
	}
	return def
}

// AttrInts returns an INTS attribute or nil.
func (n *NodeProto) AttrInts(name string) []int64 {
	if a, ok := n.Attr(name); ok {
		return a.Ints
	}
	return nil
}
