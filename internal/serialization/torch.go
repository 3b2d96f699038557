package serialization

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/born-ml/radioml/internal/tensor"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// TorchExtensions are the file extensions read as torch.save archives.
var TorchExtensions = []string{".pth", ".pt", ".ckpt"}

// nestedStateKeys hold the state dict when a checkpoint wraps it together
// with optimizer state or metadata.
var nestedStateKeys = []string{"state_dict", "model_state_dict", "model"}

// IsTorchCheckpoint reports whether path names a torch.save archive.
func IsTorchCheckpoint(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range TorchExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadTorch reads a state dict written by torch.save, in the zip format or
// the legacy pickle format. Views are materialized with their strides.
func LoadTorch(path string) (map[string]*tensor.RawTensor, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unpickle %s: %w", path, err)
	}
	od, err := torchStateDict(obj)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	sd := make(map[string]*tensor.RawTensor, od.List.Len())
	for e := od.List.Front(); e != nil; e = e.Next() {
		entry, ok := e.Value.(*types.OrderedDictEntry)
		if !ok {
			continue
		}
		name, ok := entry.Key.(string)
		if !ok {
			return nil, &ValidationError{Type: "invalid_name", Details: fmt.Sprintf("key %v is not a string", entry.Key)}
		}
		t, ok := entry.Value.(*pytorch.Tensor)
		if !ok {
			return nil, &ValidationError{Type: "not_a_tensor", Tensor: name, Details: fmt.Sprintf("%T", entry.Value)}
		}
		raw, err := torchTensor(name, t)
		if err != nil {
			return nil, err
		}
		sd[name] = raw
	}
	return sd, nil
}

func torchStateDict(obj any) (*types.OrderedDict, error) {
	od, ok := obj.(*types.OrderedDict)
	if !ok {
		return nil, fmt.Errorf("%w: top-level object is %T, want a state dict", ErrInvalidHeader, obj)
	}
	for _, key := range nestedStateKeys {
		if v, found := od.Get(key); found {
			if nested, ok := v.(*types.OrderedDict); ok {
				return nested, nil
			}
		}
	}
	return od, nil
}

func torchTensor(name string, t *pytorch.Tensor) (*tensor.RawTensor, error) {
	shape := tensor.Shape(append([]int(nil), t.Size...))
	if len(t.Stride) != len(shape) {
		return nil, &ValidationError{Type: "invalid_shape", Tensor: name, Details: fmt.Sprintf("size %v with stride %v", t.Size, t.Stride)}
	}

	var (
		dt     tensor.DataType
		gather func(raw *tensor.RawTensor) error
	)
	view := strided{offset: t.StorageOffset, shape: shape, stride: t.Stride}
	switch src := t.Source.(type) {
	case *pytorch.FloatStorage:
		dt, gather = tensor.Float32, func(r *tensor.RawTensor) error { return gatherInto(r.AsFloat32(), src.Data, view) }
	case *pytorch.HalfStorage:
		dt, gather = tensor.Float32, func(r *tensor.RawTensor) error { return gatherInto(r.AsFloat32(), src.Data, view) }
	case *pytorch.BFloat16Storage:
		dt, gather = tensor.Float32, func(r *tensor.RawTensor) error { return gatherInto(r.AsFloat32(), src.Data, view) }
	case *pytorch.DoubleStorage:
		dt, gather = tensor.Float64, func(r *tensor.RawTensor) error { return gatherInto(r.AsFloat64(), src.Data, view) }
	case *pytorch.LongStorage:
		dt, gather = tensor.Int64, func(r *tensor.RawTensor) error { return gatherInto(r.AsInt64(), src.Data, view) }
	case *pytorch.IntStorage:
		dt, gather = tensor.Int32, func(r *tensor.RawTensor) error { return gatherInto(r.AsInt32(), src.Data, view) }
	case *pytorch.ByteStorage:
		dt, gather = tensor.Uint8, func(r *tensor.RawTensor) error { return gatherInto(r.AsUint8(), src.Data, view) }
	case *pytorch.CharStorage:
		dt, gather = tensor.Int8, func(r *tensor.RawTensor) error { return gatherInto(r.AsInt8(), src.Data, view) }
	case *pytorch.BoolStorage:
		dt, gather = tensor.Bool, func(r *tensor.RawTensor) error { return gatherInto(r.AsBool(), src.Data, view) }
	default:
		return nil, fmt.Errorf("%w: tensor %q has storage %T", ErrUnsupportedDType, name, t.Source)
	}

	raw, err := tensor.NewRaw(shape, dt, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	if err := gather(raw); err != nil {
		return nil, &ValidationError{Type: "out_of_bounds", Tensor: name, Details: err.Error()}
	}
	return raw, nil
}

// strided describes a view into a flat storage.
type strided struct {
	offset int
	shape  []int
	stride []int
}

// gatherInto copies the view of src into the row-major dst.
func gatherInto[T any](dst, src []T, v strided) error {
	idx := make([]int, len(v.shape))
	for i := range dst {
		pos := v.offset
		for d, k := range idx {
			pos += k * v.stride[d]
		}
		if pos < 0 || pos >= len(src) {
			return fmt.Errorf("element %d maps to storage index %d of %d", i, pos, len(src))
		}
		dst[i] = src[pos]

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < v.shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return nil
}
