package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// ValidateTensorOffsets checks for overlapping tensor offsets and out-of-bounds access.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
			}
		}

		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}

		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}

	return nil
}

// ValidateTensorName rejects empty, oversized and control-character names.
// Dotted names ("12.running_var") are the norm and allowed.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty tensor name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.ContainsAny(name, "\x00\n\r") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains control character",
		}
	}
	return nil
}

// validateEntry checks one header entry against its declared dtype and shape.
func validateEntry(name string, h SafeTensorHeader) (TensorMeta, error) {
	meta := TensorMeta{Name: name, DType: h.DType}

	if err := ValidateTensorName(name); err != nil {
		return meta, err
	}
	elemSize, ok := dtypeSize(h.DType)
	if !ok {
		return meta, &ValidationError{Type: "unsupported_dtype", Tensor: name, Details: h.DType}
	}

	elems := int64(1)
	meta.Shape = make([]int, len(h.Shape))
	for i, d := range h.Shape {
		if d < 0 {
			return meta, &ValidationError{Type: "invalid_shape", Tensor: name, Details: fmt.Sprintf("dimension %d is %d", i, d)}
		}
		meta.Shape[i] = int(d)
		elems *= d
	}

	start, end := h.DataOffsets[0], h.DataOffsets[1]
	if start < 0 || end < start {
		return meta, &ValidationError{Type: "negative_offset", Tensor: name, Details: fmt.Sprintf("data_offsets [%d, %d]", start, end)}
	}
	meta.Offset = start
	meta.Size = end - start
	if want := elems * int64(elemSize); meta.Size != want {
		return meta, &ValidationError{
			Type:    "size_mismatch",
			Tensor:  name,
			Details: fmt.Sprintf("%s%v needs %d bytes, offsets span %d", h.DType, h.Shape, want, meta.Size),
		}
	}
	return meta, nil
}
