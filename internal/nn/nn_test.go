package nn_test

import (
	"testing"

	"github.com/born-ml/radioml/internal/backend/cpu"
	"github.com/born-ml/radioml/internal/nn"
	"github.com/born-ml/radioml/internal/quant"
	"github.com/born-ml/radioml/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), values)
	return r
}

func input(t *testing.T, backend *cpu.CPUBackend, shape tensor.Shape, values ...float32) *tensor.Tensor[float32, *cpu.CPUBackend] {
	t.Helper()
	x, err := tensor.FromSlice(values, shape, backend)
	require.NoError(t, err)
	return x
}

func TestQuantHardTanh(t *testing.T) {
	backend := cpu.New()
	h := nn.NewQuantHardTanh(-2, 2, 8, backend)

	info := h.ActQuant()
	assert.Equal(t, float32(2)/128, info.Scale)
	assert.Equal(t, quant.Int8Act, info.Quant)

	x := input(t, backend, tensor.Shape{1, 5}, -3, -2, 0.01, 1.5, 2.5)
	y := h.Forward(x).Data()

	assert.Equal(t, float32(-2), y[0])
	assert.Equal(t, float32(-2), y[1])
	assert.Equal(t, float32(1)/64, y[2]) // 0.64 rounds to 1
	assert.Equal(t, float32(1.5), y[3])
	assert.Equal(t, float32(127)/64, y[4])
	assert.Empty(t, h.StateDict())
	assert.Error(t, h.LoadStateDict(map[string]*tensor.RawTensor{"x": raw(t, tensor.Shape{1})}))
}

func TestQuantReLU(t *testing.T) {
	backend := cpu.New()
	r := nn.NewQuantReLU(8, backend)

	require.NoError(t, r.LoadStateDict(map[string]*tensor.RawTensor{
		nn.QuantReLUScaleKey: raw(t, tensor.Shape{1}, 2.55),
	}))
	assert.InDelta(t, 0.01, r.ActQuant().Scale, 1e-7)

	y := r.Forward(input(t, backend, tensor.Shape{4}, -1, 0.014, 1, 9)).Data()
	assert.Equal(t, float32(0), y[0])
	assert.InDelta(t, 0.01, y[1], 1e-6)
	assert.InDelta(t, 1.0, y[2], 1e-6)
	assert.InDelta(t, 2.55, y[3], 1e-5)

	err := r.LoadStateDict(map[string]*tensor.RawTensor{
		nn.QuantReLUScaleKey: raw(t, tensor.Shape{}, -1),
	})
	assert.ErrorIs(t, err, quant.ErrInvalidScale)

	err = r.LoadStateDict(map[string]*tensor.RawTensor{})
	assert.ErrorIs(t, err, nn.ErrMissingParameter)
}

func TestQuantConv1D_QuantizesWeights(t *testing.T) {
	backend := cpu.New()
	conv := nn.NewQuantConv1D(1, 1, 3, 1, 8, backend)

	// max|w| = 1.27 -> scale 0.01; 0.333 -> 33 * 0.01
	require.NoError(t, conv.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": raw(t, tensor.Shape{1, 1, 3}, 1.27, 0.333, -0.5),
	}))
	info := conv.WeightQuant()
	assert.InDelta(t, 0.01, info.Scale, 1e-8)

	qw := conv.QuantWeight().AsFloat32()
	assert.InDelta(t, 1.27, qw[0], 1e-6)
	assert.InDelta(t, 0.33, qw[1], 1e-6)
	assert.InDelta(t, -0.5, qw[2], 1e-6)

	y := conv.Forward(input(t, backend, tensor.Shape{1, 1, 3}, 1, 0, 0))
	require.Equal(t, tensor.Shape{1, 1, 3}, y.Shape())
	// out[l] = sum_k qw[k] * x[l-1+k]
	assert.InDelta(t, 0.33, y.Data()[0], 1e-6)
	assert.InDelta(t, 1.27, y.Data()[1], 1e-6)
	assert.InDelta(t, 0, y.Data()[2], 1e-6)
}

func TestQuantConv1D_ShapeMismatch(t *testing.T) {
	backend := cpu.New()
	conv := nn.NewQuantConv1D(2, 4, 3, 1, 8, backend)

	err := conv.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": raw(t, tensor.Shape{4, 2, 5}),
	})
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)

	assert.Panics(t, func() {
		conv.Forward(input(t, backend, tensor.Shape{1, 3, 8}, make([]float32, 24)...))
	})
}

func TestQuantLinear_BiasTiedToActivation(t *testing.T) {
	backend := cpu.New()
	relu := nn.NewQuantReLU(8, backend)
	require.NoError(t, relu.LoadStateDict(map[string]*tensor.RawTensor{
		nn.QuantReLUScaleKey: raw(t, tensor.Shape{1}, 255),
	}))

	lin := nn.NewQuantLinear(2, 2, 8, true, backend)
	require.NoError(t, lin.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": raw(t, tensor.Shape{2, 2}, 1.27, 0, 0, -1.27),
		"bias":   raw(t, tensor.Shape{2}, 0.0149, -0.02),
	}))

	// Unquantized bias passes through untouched.
	assert.Equal(t, []float32{0.0149, -0.02}, lin.QuantBias())
	assert.Zero(t, lin.BiasScale())

	lin.QuantizeBiasFrom(relu)
	// input scale 1 * weight scale 0.01
	assert.InDelta(t, 0.01, lin.BiasScale(), 1e-8)
	qb := lin.QuantBias()
	assert.InDelta(t, 0.01, qb[0], 1e-7)
	assert.InDelta(t, -0.02, qb[1], 1e-7)

	y := lin.Forward(input(t, backend, tensor.Shape{1, 2}, 1, 2)).Data()
	assert.InDelta(t, 1.27+0.01, y[0], 1e-5)
	assert.InDelta(t, -2.54-0.02, y[1], 1e-5)
}

func TestQuantLinear_NoBias(t *testing.T) {
	backend := cpu.New()
	lin := nn.NewQuantLinear(3, 2, 8, false, backend)
	assert.Len(t, lin.Parameters(), 1)

	err := lin.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": raw(t, tensor.Shape{2, 3}),
		"bias":   raw(t, tensor.Shape{2}),
	})
	assert.ErrorIs(t, err, nn.ErrUnexpectedParameter)
}

func TestBatchNorm1D(t *testing.T) {
	backend := cpu.New()
	bn := nn.NewBatchNorm1D(2, backend)

	require.NoError(t, bn.LoadStateDict(map[string]*tensor.RawTensor{
		"weight":              raw(t, tensor.Shape{2}, 2, 1),
		"bias":                raw(t, tensor.Shape{2}, 0, 1),
		"running_mean":        raw(t, tensor.Shape{2}, 1, 0),
		"running_var":         raw(t, tensor.Shape{2}, 4-1e-5, 1-1e-5),
		"num_batches_tracked": raw(t, tensor.Shape{}),
	}))

	// 3D: [1, 2, 2]
	y := bn.Forward(input(t, backend, tensor.Shape{1, 2, 2}, 1, 3, 0, 2)).Data()
	assert.InDeltaSlice(t, []float32{0, 2, 1, 3}, y, 1e-5)

	// 2D: [2, 2]
	y = bn.Forward(input(t, backend, tensor.Shape{2, 2}, 5, -1, 1, 1)).Data()
	assert.InDeltaSlice(t, []float32{4, 0, 0, 2}, y, 1e-5)

	err := bn.LoadStateDict(map[string]*tensor.RawTensor{
		"weight":       raw(t, tensor.Shape{2}, 1, 1),
		"bias":         raw(t, tensor.Shape{2}),
		"running_mean": raw(t, tensor.Shape{2}),
		"running_var":  raw(t, tensor.Shape{2}, -1, 1),
	})
	assert.Error(t, err)
}

func TestFlattenAndMaxPool(t *testing.T) {
	backend := cpu.New()
	x := input(t, backend, tensor.Shape{1, 2, 4}, 1, 3, 2, 0, -1, -2, 5, 4)

	pooled := nn.NewMaxPool1D(2, 2, backend).Forward(x)
	assert.Equal(t, tensor.Shape{1, 2, 2}, pooled.Shape())
	assert.Equal(t, []float32{3, 2, -1, 5}, pooled.Data())

	flat := nn.NewFlatten[*cpu.CPUBackend]().Forward(pooled)
	assert.Equal(t, tensor.Shape{1, 4}, flat.Shape())
	assert.Equal(t, []float32{3, 2, -1, 5}, flat.Data())
}

func TestSequential_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	build := func() *nn.Sequential[*cpu.CPUBackend] {
		return nn.NewSequential[*cpu.CPUBackend](
			nn.NewQuantLinear(3, 2, 8, false, backend),
			nn.NewBatchNorm1D(2, backend),
			nn.NewQuantReLU(8, backend),
			nn.NewQuantLinear(2, 1, 8, true, backend),
		)
	}

	src := build()
	copy(src.Module(0).(*nn.QuantLinear[*cpu.CPUBackend]).Weight().Tensor().Data(), []float32{1, -1, 0.5, 0.25, 0, 2})
	copy(src.Module(3).(*nn.QuantLinear[*cpu.CPUBackend]).Bias().Tensor().Data(), []float32{0.7})

	sd := src.StateDict()
	assert.Contains(t, sd, "0.weight")
	assert.Contains(t, sd, "1.running_var")
	assert.Contains(t, sd, "2."+nn.QuantReLUScaleKey)
	assert.Contains(t, sd, "3.bias")
	assert.Len(t, sd, 1+4+1+2)

	dst := build()
	require.NoError(t, dst.LoadStateDict(sd))
	assert.Equal(t,
		src.Module(0).(*nn.QuantLinear[*cpu.CPUBackend]).QuantWeight().AsFloat32(),
		dst.Module(0).(*nn.QuantLinear[*cpu.CPUBackend]).QuantWeight().AsFloat32())

	x := input(t, backend, tensor.Shape{1, 3}, 0.5, -0.25, 1)
	assert.Equal(t, src.Forward(x).Data(), dst.Forward(x).Data())
}

func TestSequential_LoadErrors(t *testing.T) {
	backend := cpu.New()
	seq := nn.NewSequential[*cpu.CPUBackend](
		nn.NewFlatten[*cpu.CPUBackend](),
		nn.NewQuantLinear(2, 2, 8, false, backend),
	)

	err := seq.LoadStateDict(map[string]*tensor.RawTensor{
		"1.weight": raw(t, tensor.Shape{2, 2}),
		"7.weight": raw(t, tensor.Shape{2, 2}),
	})
	assert.ErrorIs(t, err, nn.ErrUnexpectedParameter)

	err = seq.LoadStateDict(map[string]*tensor.RawTensor{})
	assert.ErrorIs(t, err, nn.ErrMissingParameter)

	err = seq.LoadStateDict(map[string]*tensor.RawTensor{"weight": raw(t, tensor.Shape{2, 2})})
	assert.ErrorIs(t, err, nn.ErrUnexpectedParameter)
}
