package serialization

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/born-ml/radioml/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// torchEntry is one tensor of a torch.save fixture.
type torchEntry struct {
	name    string
	storage string // torch storage class, e.g. "FloatStorage"
	data    []byte // little-endian storage contents
	numel   int
	offset  int
	size    []int
	stride  []int
}

func floatBytes(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func longBytes(values ...int64) []byte {
	out := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[8*i:], uint64(v))
	}
	return out
}

// torchPickle encodes an OrderedDict of tensors the way torch.save does
// (protocol 2, storages referenced by persistent id).
func torchPickle(entries []torchEntry) []byte {
	var p bytes.Buffer
	global := func(module, name string) { p.WriteString("c" + module + "\n" + name + "\n") }
	str := func(s string) {
		p.WriteByte('X')
		_ = binary.Write(&p, binary.LittleEndian, uint32(len(s)))
		p.WriteString(s)
	}
	integer := func(v int) {
		p.WriteByte('J')
		_ = binary.Write(&p, binary.LittleEndian, int32(v))
	}
	tuple := func(vs []int) {
		p.WriteByte('(')
		for _, v := range vs {
			integer(v)
		}
		p.WriteByte('t')
	}
	orderedDict := func() {
		global("collections", "OrderedDict")
		p.WriteString(")R")
	}

	p.Write([]byte{0x80, 2})
	orderedDict()
	p.WriteByte('(')
	for i, e := range entries {
		str(e.name)
		global("torch._utils", "_rebuild_tensor_v2")
		p.WriteByte('(')

		p.WriteByte('(')
		str("storage")
		global("torch", e.storage)
		str(strconv.Itoa(i))
		str("cpu")
		integer(e.numel)
		p.WriteString("tQ")

		integer(e.offset)
		tuple(e.size)
		tuple(e.stride)
		p.WriteByte(0x89) // requires_grad=False
		orderedDict()     // backward hooks
		p.WriteString("tR")
	}
	p.WriteString("u.")
	return p.Bytes()
}

// writeTorch writes a zip-format torch.save archive.
func writeTorch(t *testing.T, name string, entries []torchEntry) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(file string, data []byte) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: "archive/" + file, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	add("data.pkl", torchPickle(entries))
	add("byteorder", []byte("little"))
	for i, e := range entries {
		add("data/"+strconv.Itoa(i), e.data)
	}
	add("version", []byte("3\n"))
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestLoadTorch(t *testing.T) {
	path := writeTorch(t, "model.pth", []torchEntry{
		{
			name: "1.weight", storage: "FloatStorage",
			data: floatBytes(1, 2, 3, 4, 5, 6), numel: 6,
			size: []int{2, 1, 3}, stride: []int{3, 3, 1},
		},
		{
			name: "2.num_batches_tracked", storage: "LongStorage",
			data: longBytes(42), numel: 1,
			size: []int{}, stride: []int{},
		},
		{
			// Transposed view of a 2x3 storage, starting at element 0.
			name: "3.weight", storage: "FloatStorage",
			data: floatBytes(1, 2, 3, 4, 5, 6), numel: 6,
			size: []int{3, 2}, stride: []int{1, 3},
		},
		{
			name: "4.scale", storage: "FloatStorage",
			data: floatBytes(9, 0.5), numel: 2, offset: 1,
			size: []int{}, stride: []int{},
		},
	})

	sd, err := LoadTorch(path)
	require.NoError(t, err)
	require.Len(t, sd, 4)

	w := sd["1.weight"]
	assert.Equal(t, tensor.Float32, w.DType())
	assert.Equal(t, tensor.Shape{2, 1, 3}, w.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, w.AsFloat32())

	n := sd["2.num_batches_tracked"]
	assert.Equal(t, tensor.Int64, n.DType())
	assert.Equal(t, []int64{42}, n.AsInt64())

	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, sd["3.weight"].AsFloat32())
	assert.Equal(t, []float32{0.5}, sd["4.scale"].AsFloat32())
}

func TestLoadCheckpoint_TorchStripsWrapperPrefix(t *testing.T) {
	path := writeTorch(t, "model.pt", []torchEntry{
		{
			name: "module.1.weight", storage: "FloatStorage",
			data: floatBytes(0.25, -0.25), numel: 2,
			size: []int{2}, stride: []int{1},
		},
		{
			name: "module.2.running_var", storage: "DoubleStorage",
			data: func() []byte {
				out := make([]byte, 8)
				binary.LittleEndian.PutUint64(out, math.Float64bits(1.5))
				return out
			}(), numel: 1,
			size: []int{1}, stride: []int{1},
		},
	})

	sd, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.Contains(t, sd, "1.weight")
	require.Contains(t, sd, "2.running_var")
	assert.Equal(t, []float32{0.25, -0.25}, sd["1.weight"].AsFloat32())
	assert.Equal(t, []float64{1.5}, sd["2.running_var"].AsFloat64())
}

func TestLoadTorch_ViewOutOfBounds(t *testing.T) {
	path := writeTorch(t, "bad.pth", []torchEntry{{
		name: "w", storage: "FloatStorage",
		data: floatBytes(1, 2), numel: 2,
		size: []int{3}, stride: []int{1},
	}})

	_, err := LoadTorch(path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "out_of_bounds", ve.Type)
}

func TestIsTorchCheckpoint(t *testing.T) {
	assert.True(t, IsTorchCheckpoint("models/model_trained.pth"))
	assert.True(t, IsTorchCheckpoint("m.PT"))
	assert.False(t, IsTorchCheckpoint("m.safetensors"))
	assert.False(t, IsTorchCheckpoint("m"))
}
