package quant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntQuant_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		q        IntQuant
		min, max int64
		intScale float32
		dataType string
	}{
		{"int8", Int8Act, -128, 127, 128, "INT8"},
		{"int8 narrow", Int8Weight, -127, 127, 127, "INT8"},
		{"uint8", Uint8Act, 0, 255, 255, "UINT8"},
		{"int4", IntQuant{BitWidth: 4, Signed: true}, -8, 7, 8, "INT4"},
		{"uint4 narrow", IntQuant{BitWidth: 4, Narrow: true}, 0, 14, 14, "UINT4"},
		{"bipolar", IntQuant{BitWidth: 1, Signed: true}, -1, 0, 1, "BIPOLAR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.q.Validate())
			assert.Equal(t, tt.min, tt.q.Min())
			assert.Equal(t, tt.max, tt.q.Max())
			assert.Equal(t, tt.intScale, tt.q.IntScale())
			assert.Equal(t, tt.dataType, tt.q.DataType())
		})
	}
}

func TestIntQuant_Validate(t *testing.T) {
	assert.Error(t, IntQuant{BitWidth: 0}.Validate())
	assert.Error(t, IntQuant{BitWidth: 33}.Validate())
	assert.Error(t, IntQuant{BitWidth: 1, Signed: true, Narrow: true}.Validate())
}

func TestQuantize_RoundHalfToEven(t *testing.T) {
	q := Int8Act
	assert.Equal(t, int64(0), q.Quantize(0.5, 1))
	assert.Equal(t, int64(2), q.Quantize(1.5, 1))
	assert.Equal(t, int64(2), q.Quantize(2.5, 1))
	assert.Equal(t, int64(-2), q.Quantize(-2.5, 1))
	assert.Equal(t, int64(3), q.Quantize(2.51, 1))
}

func TestQuantize_Clamps(t *testing.T) {
	assert.Equal(t, int64(127), Int8Weight.Quantize(1000, 1))
	assert.Equal(t, int64(-127), Int8Weight.Quantize(-1000, 1))
	assert.Equal(t, int64(0), Uint8Act.Quantize(-3, 0.1))
	assert.Equal(t, int64(255), Uint8Act.Quantize(300, 1))
}

func TestFakeQuantSlice_MatchesScalar(t *testing.T) {
	src := []float32{-2.5, -1.01, -0.0049, 0, 0.33, 1.98, 2.2}
	scale := float32(2) / 128

	dst := make([]float32, len(src))
	Int8Act.FakeQuantSlice(dst, src, scale)
	for i, x := range src {
		assert.Equal(t, Int8Act.FakeQuant(x, scale), dst[i], "index %d", i)
	}
	assert.Equal(t, float32(-2), dst[0])
	assert.Equal(t, float32(127)*scale, dst[len(dst)-1])

	// In place.
	Int8Act.FakeQuantSlice(src, src, scale)
	assert.Equal(t, dst, src)
}

func TestWeightScale(t *testing.T) {
	w := []float32{0.5, -1.27, 0.1}
	s := WeightScale(w, Int8Weight)
	assert.InDelta(t, 0.01, s, 1e-7)

	codes := Int8Weight.QuantizeSlice(w, s)
	assert.Equal(t, []int64{50, -127, 10}, codes)

	assert.Equal(t, float32(1), WeightScale([]float32{0, 0}, Int8Weight))
}

func TestConstActScale(t *testing.T) {
	s, err := ConstActScale(-2, 2, Int8Act)
	require.NoError(t, err)
	assert.Equal(t, float32(2)/128, s)

	_, err = ConstActScale(2, -2, Int8Act)
	assert.ErrorIs(t, err, ErrInvalidScale)
}

func TestParamActScale(t *testing.T) {
	s, err := ParamActScale(5.1, Uint8Act)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, s, 1e-7)

	_, err = ParamActScale(0, Uint8Act)
	assert.ErrorIs(t, err, ErrInvalidScale)
	_, err = ParamActScale(-1, Uint8Act)
	assert.ErrorIs(t, err, ErrInvalidScale)
}

func TestScaledDataType(t *testing.T) {
	assert.Equal(t, "SCALEDINT<8>", Uint8Act.ScaledDataType())
}
