package serialization

import "github.com/born-ml/radioml/internal/tensor"

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// TensorMeta is a validated header entry.
type TensorMeta struct {
	Name   string
	DType  string // SafeTensors dtype code, e.g. "F32"
	Shape  tensor.Shape
	Offset int64 // relative to the data section
	Size   int64
}

// metadataKey is the reserved header entry for free-form string metadata.
const metadataKey = "__metadata__"

// dtypeSize returns the element size of a SafeTensors dtype code.
func dtypeSize(code string) (int, bool) {
	switch code {
	case "F64", "I64", "U64":
		return 8, true
	case "F32", "I32", "U32":
		return 4, true
	case "F16", "BF16", "I16", "U16":
		return 2, true
	case "I8", "U8", "BOOL":
		return 1, true
	default:
		return 0, false
	}
}

// dtypeToSafeTensors converts tensor.DataType to SafeTensors dtype string.
func dtypeToSafeTensors(dt tensor.DataType) (string, bool) {
	switch dt {
	case tensor.Float32:
		return "F32", true
	case tensor.Float64:
		return "F64", true
	case tensor.Int32:
		return "I32", true
	case tensor.Int64:
		return "I64", true
	case tensor.Uint8:
		return "U8", true
	case tensor.Int8:
		return "I8", true
	case tensor.Bool:
		return "BOOL", true
	default:
		return "", false
	}
}

// safeTensorsToDtype maps a SafeTensors code onto a native dtype. Codes
// without a native counterpart (F16, BF16, ...) are widened by the reader.
func safeTensorsToDtype(code string) (tensor.DataType, bool) {
	switch code {
	case "F32":
		return tensor.Float32, true
	case "F64":
		return tensor.Float64, true
	case "I32":
		return tensor.Int32, true
	case "I64":
		return tensor.Int64, true
	case "U8":
		return tensor.Uint8, true
	case "I8":
		return tensor.Int8, true
	case "BOOL":
		return tensor.Bool, true
	default:
		return 0, false
	}
}
