// Package quant implements the uniform integer quantizers used by the
// quantized layers: per-tensor weight quantization, constant-range input
// quantization and learned-scale unsigned activation quantization.
//
// Rounding is round-half-to-even throughout, so fake-quantized values match
// the reference training framework bit for bit on float32 inputs.
package quant

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidScale is returned for non-positive or non-finite scales.
var ErrInvalidScale = errors.New("quant: invalid scale")

// IntQuant describes a uniform integer grid.
type IntQuant struct {
	BitWidth int
	Signed   bool
	// Narrow drops the most negative signed value so the grid is symmetric.
	Narrow bool
}

// Common quantizer configurations.
var (
	Int8Weight = IntQuant{BitWidth: 8, Signed: true, Narrow: true}
	Int8Act    = IntQuant{BitWidth: 8, Signed: true}
	Uint8Act   = IntQuant{BitWidth: 8}
)

// Validate checks that the bit width is usable.
func (q IntQuant) Validate() error {
	if q.BitWidth < 1 || q.BitWidth > 32 {
		return fmt.Errorf("quant: bit width %d out of range [1, 32]", q.BitWidth)
	}
	if q.BitWidth == 1 && q.Narrow {
		return fmt.Errorf("quant: narrow range needs at least 2 bits")
	}
	return nil
}

// Min returns the smallest representable integer.
func (q IntQuant) Min() int64 {
	if !q.Signed {
		return 0
	}
	if q.Narrow {
		return -(int64(1) << (q.BitWidth - 1)) + 1
	}
	return -(int64(1) << (q.BitWidth - 1))
}

// Max returns the largest representable integer.
func (q IntQuant) Max() int64 {
	if q.Signed {
		return (int64(1) << (q.BitWidth - 1)) - 1
	}
	if q.Narrow {
		return (int64(1) << q.BitWidth) - 2
	}
	return (int64(1) << q.BitWidth) - 1
}

// IntScale is the divisor that maps a float threshold onto the grid:
// -Min for signed grids, Max for unsigned ones.
func (q IntQuant) IntScale() float32 {
	if q.Signed {
		return float32(-q.Min())
	}
	return float32(q.Max())
}

// Quantize maps x onto the integer grid with the given scale.
func (q IntQuant) Quantize(x, scale float32) int64 {
	v := math.RoundToEven(float64(x / scale))
	return clamp(int64(v), q.Min(), q.Max())
}

// Dequantize maps an integer back to the real line.
func (q IntQuant) Dequantize(v int64, scale float32) float32 {
	return float32(v) * scale
}

// FakeQuant quantizes and dequantizes x in one step.
func (q IntQuant) FakeQuant(x, scale float32) float32 {
	return q.Dequantize(q.Quantize(x, scale), scale)
}

// FakeQuantSlice fake-quantizes src into dst. dst may alias src.
func (q IntQuant) FakeQuantSlice(dst, src []float32, scale float32) {
	lo, hi := float64(q.Min()), float64(q.Max())
	for i, x := range src {
		v := math.RoundToEven(float64(x / scale))
		if v < lo {
			v = lo
		} else if v > hi {
			v = hi
		}
		dst[i] = float32(v) * scale
	}
}

// QuantizeSlice returns the integer codes for src.
func (q IntQuant) QuantizeSlice(src []float32, scale float32) []int64 {
	out := make([]int64, len(src))
	for i, x := range src {
		out[i] = q.Quantize(x, scale)
	}
	return out
}

// DataType returns the QONNX datatype name of the integer grid.
func (q IntQuant) DataType() string {
	if q.BitWidth == 1 {
		if q.Signed {
			return "BIPOLAR"
		}
		return "BINARY"
	}
	if q.Signed {
		return fmt.Sprintf("INT%d", q.BitWidth)
	}
	return fmt.Sprintf("UINT%d", q.BitWidth)
}

// ScaledDataType returns the datatype of a grid with a non-unit scale.
func (q IntQuant) ScaledDataType() string {
	return fmt.Sprintf("SCALEDINT<%d>", q.BitWidth)
}

// WeightScale returns the per-tensor abs-max scale for w.
// An all-zero tensor gets scale 1 so quantization stays well defined.
func WeightScale(w []float32, q IntQuant) float32 {
	var m float32
	for _, v := range w {
		if a := float32(math.Abs(float64(v))); a > m {
			m = a
		}
	}
	if m == 0 {
		return 1
	}
	return m / q.IntScale()
}

// ConstActScale returns the scale for a constant activation range.
func ConstActScale(minVal, maxVal float32, q IntQuant) (float32, error) {
	if minVal >= maxVal {
		return 0, fmt.Errorf("%w: range [%g, %g]", ErrInvalidScale, minVal, maxVal)
	}
	threshold := max(float32(math.Abs(float64(minVal))), float32(math.Abs(float64(maxVal))))
	return threshold / q.IntScale(), nil
}

// ParamActScale returns the scale for a learned activation threshold.
func ParamActScale(value float32, q IntQuant) (float32, error) {
	if value <= 0 || math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
		return 0, fmt.Errorf("%w: learned threshold %g", ErrInvalidScale, value)
	}
	return value / q.IntScale(), nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
