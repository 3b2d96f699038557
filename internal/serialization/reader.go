package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/born-ml/radioml/internal/tensor"
)

// SafeTensorsReader provides memory-mapped access to a SafeTensors file.
// Only the header is parsed up front; tensor bytes are read on demand.
type SafeTensorsReader struct {
	mf         *MappedFile
	tensors    map[string]TensorMeta
	metadata   map[string]string
	dataOffset int64
}

// OpenSafeTensors maps and validates a SafeTensors file.
//
// Important: Always call Close() when done to unmap the file (use defer).
func OpenSafeTensors(path string) (*SafeTensorsReader, error) {
	mf, err := MapFile(path)
	if err != nil {
		return nil, err
	}
	r := &SafeTensorsReader{mf: mf}
	if err := r.parseHeader(); err != nil {
		_ = mf.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *SafeTensorsReader) parseHeader() error {
	data := r.mf.Bytes()
	if len(data) < 8 {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrInvalidHeader, len(data))
	}

	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	headerEnd := 8 + int64(headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	if headerEnd > int64(len(data)) {
		return fmt.Errorf("%w: header extends beyond file: header_end=%d, file_size=%d", ErrInvalidHeader, headerEnd, len(data))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if len(raw) > MaxTensorCount+1 {
		return &ValidationError{Type: "too_many_tensors", Details: fmt.Sprintf("got %d, max %d", len(raw), MaxTensorCount)}
	}

	r.dataOffset = headerEnd
	r.tensors = make(map[string]TensorMeta, len(raw))
	metas := make([]TensorMeta, 0, len(raw))

	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &r.metadata); err != nil {
				return fmt.Errorf("%w: metadata: %v", ErrInvalidHeader, err)
			}
			continue
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return fmt.Errorf("%w: tensor %q: %v", ErrInvalidHeader, name, err)
		}
		meta, err := validateEntry(name, h)
		if err != nil {
			return err
		}
		r.tensors[name] = meta
		metas = append(metas, meta)
	}

	return ValidateTensorOffsets(metas, int64(len(data))-r.dataOffset)
}

// TensorNames returns all tensor names, sorted.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.tensors))
	for name := range r.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata returns the "__metadata__" map, possibly nil.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.metadata
}

// TensorInfo returns the header entry for name.
func (r *SafeTensorsReader) TensorInfo(name string) (TensorMeta, error) {
	meta, ok := r.tensors[name]
	if !ok {
		return TensorMeta{}, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}
	return meta, nil
}

// TensorData returns a zero-copy view of the tensor's bytes.
// The slice is only valid until Close.
func (r *SafeTensorsReader) TensorData(name string) ([]byte, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	start := r.dataOffset + meta.Offset
	return r.mf.Bytes()[start : start+meta.Size], nil
}

// LoadTensor copies a tensor out of the mapping. F16 and BF16 tensors
// are widened to float32; other codes without a native dtype are rejected.
func (r *SafeTensorsReader) LoadTensor(name string) (*tensor.RawTensor, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data, err := r.TensorData(name)
	if err != nil {
		return nil, err
	}

	if dt, ok := safeTensorsToDtype(meta.DType); ok {
		return tensor.FromBytes(meta.Shape, dt, data)
	}

	var widen func(uint16) float32
	switch meta.DType {
	case "F16":
		widen = float16ToFloat32
	case "BF16":
		widen = bfloat16ToFloat32
	default:
		return nil, fmt.Errorf("tensor %q: %w: %s", name, ErrUnsupportedDType, meta.DType)
	}

	out, err := tensor.NewRaw(meta.Shape, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	dst := out.AsFloat32()
	for i := range dst {
		dst[i] = widen(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out, nil
}

// ReadStateDict loads every tensor in the file.
func (r *SafeTensorsReader) ReadStateDict() (map[string]*tensor.RawTensor, error) {
	stateDict := make(map[string]*tensor.RawTensor, len(r.tensors))
	for name := range r.tensors {
		raw, err := r.LoadTensor(name)
		if err != nil {
			return nil, err
		}
		stateDict[name] = raw
	}
	return stateDict, nil
}

// Close unmaps and closes the file.
func (r *SafeTensorsReader) Close() error {
	return r.mf.Close()
}
