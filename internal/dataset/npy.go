package dataset

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"
	"unsafe"

	"github.com/born-ml/radioml/internal/serialization"
	"github.com/sbinet/npyio/npy"
)

// ErrUnsupportedLayout is returned for NPY arrays the reader cannot map.
var ErrUnsupportedLayout = errors.New("unsupported npy layout")

const npyMagic = "\x93NUMPY"

// npyArray is a memory-mapped NPY file. Data is a view into the mapping.
type npyArray struct {
	mf       *serialization.MappedFile
	descr    string
	shape    []int
	data     []byte
	itemSize int
}

// openNPY maps path and validates its header. The header itself is parsed
// by npyio; the data section is used in place.
func openNPY(path string) (*npyArray, error) {
	mf, err := serialization.MapFile(path)
	if err != nil {
		return nil, err
	}
	a, err := parseNPY(mf)
	if err != nil {
		_ = mf.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func parseNPY(mf *serialization.MappedFile) (*npyArray, error) {
	raw := mf.Bytes()
	if len(raw) < 10 || string(raw[:6]) != npyMagic {
		return nil, fmt.Errorf("%w: missing NPY magic", ErrUnsupportedLayout)
	}

	r, err := npy.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("npy header: %w", err)
	}
	descr := r.Header.Descr
	if descr.Fortran {
		return nil, fmt.Errorf("%w: fortran order", ErrUnsupportedLayout)
	}

	var offset int
	switch raw[6] {
	case 1:
		offset = 10 + int(binary.LittleEndian.Uint16(raw[8:10]))
	default:
		if len(raw) < 12 {
			return nil, fmt.Errorf("%w: truncated header", ErrUnsupportedLayout)
		}
		offset = 12 + int(binary.LittleEndian.Uint32(raw[8:12]))
	}

	itemSize, ok := npyItemSize(descr.Type)
	if !ok {
		return nil, fmt.Errorf("%w: dtype %q", ErrUnsupportedLayout, descr.Type)
	}

	n := 1
	for _, d := range descr.Shape {
		n *= d
	}
	end := offset + n*itemSize
	if offset > len(raw) || end > len(raw) {
		return nil, fmt.Errorf("%w: data section needs %d bytes, file has %d", ErrUnsupportedLayout, end, len(raw))
	}

	return &npyArray{
		mf:       mf,
		descr:    descr.Type,
		shape:    descr.Shape,
		data:     raw[offset:end],
		itemSize: itemSize,
	}, nil
}

func npyItemSize(descr string) (int, bool) {
	switch descr {
	case "<f8", "<i8", "<u8":
		return 8, true
	case "<f4", "<i4", "<u4":
		return 4, true
	case "<i2", "<u2":
		return 2, true
	case "|u1", "|i1", "|b1", "<u1", "<i1":
		return 1, true
	default:
		return 0, false
	}
}

// len returns the number of elements.
func (a *npyArray) len() int {
	return len(a.data) / a.itemSize
}

// at returns element i as float64.
func (a *npyArray) at(i int) float64 {
	b := a.data[i*a.itemSize:]
	switch strings.TrimLeft(a.descr, "<|") {
	case "f8":
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case "f4":
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case "i8":
		return float64(int64(binary.LittleEndian.Uint64(b))) //nolint:gosec // G115: reinterpretation
	case "u8":
		return float64(binary.LittleEndian.Uint64(b))
	case "i4":
		return float64(int32(binary.LittleEndian.Uint32(b))) //nolint:gosec // G115: reinterpretation
	case "u4":
		return float64(binary.LittleEndian.Uint32(b))
	case "i2":
		return float64(int16(binary.LittleEndian.Uint16(b))) //nolint:gosec // G115: reinterpretation
	case "u2":
		return float64(binary.LittleEndian.Uint16(b))
	case "i1":
		return float64(int8(b[0]))
	default: // u1, b1
		return float64(b[0])
	}
}

func (a *npyArray) close() error {
	return a.mf.Close()
}

// npyScalar lists the element types WriteNPY stores.
type npyScalar interface {
	~float32 | ~float64 | ~int64 | ~int32 | ~uint8
}

// WriteNPY writes values as a C-order NPY file of the given shape. The
// nested array type npyio derives the header from is built at runtime, so
// shape need not be known at compile time.
func WriteNPY[T npyScalar](path string, shape []int, values []T) error {
	if len(shape) == 0 {
		return fmt.Errorf("%w: scalar arrays are not written", ErrUnsupportedLayout)
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in %v", ErrUnsupportedLayout, shape)
		}
		n *= d
	}
	if n != len(values) {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", ErrUnsupportedLayout, shape, n, len(values))
	}

	elem := reflect.TypeFor[T]()
	for i := len(shape) - 1; i >= 1; i-- {
		elem = reflect.ArrayOf(shape[i], elem)
	}
	rows := reflect.MakeSlice(reflect.SliceOf(elem), shape[0], shape[0])
	if n > 0 {
		copy(unsafe.Slice((*T)(rows.UnsafePointer()), n), values)
	}

	f, err := os.Create(path) //nolint:gosec // G304: caller-chosen output path
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := npy.Write(bw, rows.Interface()); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
