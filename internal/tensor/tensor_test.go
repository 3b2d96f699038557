package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackend satisfies Backend for tests that never dispatch compute.
type mockBackend struct{}

func (mockBackend) MatMul(_, _ *RawTensor) *RawTensor           { panic("not implemented") }
func (mockBackend) Conv1D(_, _ *RawTensor, _, _ int) *RawTensor { panic("not implemented") }
func (mockBackend) MaxPool1D(_ *RawTensor, _, _ int) *RawTensor { panic("not implemented") }
func (mockBackend) Name() string                                { return "mock" }
func (mockBackend) Device() Device                              { return CPU }

func TestShape(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, []int{12, 4, 1}, s.ComputeStrides())
	assert.Equal(t, []int64{2, 3, 4}, s.Int64s())
	assert.Equal(t, "[2, 3, 4]", s.String())
	assert.True(t, s.Equal(s.Clone()))
	assert.False(t, s.Equal(Shape{2, 3}))
	assert.Equal(t, 1, Shape{}.NumElements())
	require.Error(t, Shape{2, 0}.Validate())
}

func TestFromSliceAndAt(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3}, mockBackend{})
	require.NoError(t, err)
	assert.Equal(t, float32(6), x.At(1, 2))
	assert.Equal(t, float32(2), x.At(0, 1))

	_, err = FromSlice([]float32{1, 2}, Shape{3}, mockBackend{})
	require.Error(t, err)
}

func TestReshapeSharesData(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4}, Shape{2, 2}, mockBackend{})
	require.NoError(t, err)

	y := x.Reshape(4)
	y.Data()[0] = 9
	assert.Equal(t, float32(9), x.At(0, 0))

	assert.Panics(t, func() { x.Reshape(3) })
}

func TestArgmaxRows(t *testing.T) {
	x, err := FromSlice([]float32{
		0.1, 0.7, 0.2,
		3, 3, 1,
		-1, -2, -0.5,
	}, Shape{3, 3}, mockBackend{})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 0, 2}, x.ArgmaxRows())
}

func TestToFloat32(t *testing.T) {
	raw, err := NewRaw(Shape{3}, Int8, CPU)
	require.NoError(t, err)
	copy(raw.AsInt8(), []int8{-127, 0, 5})

	f, err := raw.ToFloat32()
	require.NoError(t, err)
	assert.Equal(t, []float32{-127, 0, 5}, f.AsFloat32())

	b, err := NewRaw(Shape{1}, Bool, CPU)
	require.NoError(t, err)
	_, err = b.ToFloat32()
	require.Error(t, err)
}

func TestFromBytesLength(t *testing.T) {
	_, err := FromBytes(Shape{2}, Float32, make([]byte, 7))
	require.Error(t, err)

	raw, err := FromBytes(Shape{2}, Int32, []byte{1, 0, 0, 0, 2, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, raw.AsInt32())
}

func TestDataTypeWrongAccessorPanics(t *testing.T) {
	raw, err := NewRaw(Shape{2}, Float32, CPU)
	require.NoError(t, err)
	assert.Panics(t, func() { raw.AsInt64() })
	assert.Equal(t, "float32", raw.DType().String())
	assert.Equal(t, 1, Int8.Size())
}

func TestDataTypeOf(t *testing.T) {
	assert.Equal(t, Float32, DataTypeOf[float32]())
	assert.Equal(t, Int8, DataTypeOf[int8]())
	assert.Equal(t, Bool, DataTypeOf[bool]())
	assert.Equal(t, "unknown", DataType(42).String())
	assert.Equal(t, []int{6, 3, 1}, Shape{4, 2, 3}.ComputeStrides())
}
