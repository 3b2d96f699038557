package nn

import (
	"fmt"

	"github.com/born-ml/radioml/internal/quant"
	"github.com/born-ml/radioml/internal/tensor"
)

// QuantHardTanh clamps and quantizes its input to a constant signed range.
//
// It is the input quantizer of the classifier: raw I/Q samples are mapped
// onto an 8-bit grid spanning [-2, 2].
type QuantHardTanh[B tensor.Backend] struct {
	minVal, maxVal float32
	q              quant.IntQuant
	scale          float32
	backend        B
}

// NewQuantHardTanh creates a constant-range activation quantizer.
// Panics if the range or bit width is invalid.
func NewQuantHardTanh[B tensor.Backend](minVal, maxVal float32, bits int, backend B) *QuantHardTanh[B] {
	q := quant.IntQuant{BitWidth: bits, Signed: true}
	if err := q.Validate(); err != nil {
		panic(fmt.Sprintf("quant_hardtanh: %v", err))
	}
	scale, err := quant.ConstActScale(minVal, maxVal, q)
	if err != nil {
		panic(fmt.Sprintf("quant_hardtanh: %v", err))
	}
	return &QuantHardTanh[B]{minVal: minVal, maxVal: maxVal, q: q, scale: scale, backend: backend}
}

// Forward fake-quantizes every element.
func (h *QuantHardTanh[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := tensor.Zeros[float32](input.Shape(), h.backend)
	h.q.FakeQuantSlice(out.Data(), input.Data(), h.scale)
	return out
}

// ActQuant returns the quantizer configuration.
func (h *QuantHardTanh[B]) ActQuant() QuantInfo {
	return QuantInfo{Quant: h.q, Scale: h.scale}
}

// Range returns the constant clamp range.
func (h *QuantHardTanh[B]) Range() (float32, float32) {
	return h.minVal, h.maxVal
}

// Parameters returns nil: the range is constant.
func (h *QuantHardTanh[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (h *QuantHardTanh[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty state dict.
func (h *QuantHardTanh[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParams[B](stateDict, nil)
}

// QuantReLUScaleKey is the state-dict name of the learned activation threshold.
const QuantReLUScaleKey = "act_quant.fused_activation_quant_proxy.tensor_quant.scaling_impl.value"

// QuantReLU applies ReLU followed by unsigned quantization with a learned
// threshold. The scale is threshold / (2^bits - 1).
type QuantReLU[B tensor.Backend] struct {
	q         quant.IntQuant
	threshold *Parameter[B]
	backend   B
}

// NewQuantReLU creates a QuantReLU with the given bit width and a default
// threshold of 1 until a checkpoint is loaded.
func NewQuantReLU[B tensor.Backend](bits int, backend B) *QuantReLU[B] {
	q := quant.IntQuant{BitWidth: bits}
	if err := q.Validate(); err != nil {
		panic(fmt.Sprintf("quant_relu: %v", err))
	}
	t, _ := tensor.FromSlice([]float32{1}, tensor.Shape{}, backend)
	return &QuantReLU[B]{
		q:         q,
		threshold: NewParameter(QuantReLUScaleKey, t),
		backend:   backend,
	}
}

// Forward computes quant(max(x, 0)).
func (r *QuantReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	scale := r.ActQuant().Scale
	out := tensor.Zeros[float32](input.Shape(), r.backend)
	dst := out.Data()
	for i, v := range input.Data() {
		dst[i] = max(v, 0)
	}
	r.q.FakeQuantSlice(dst, dst, scale)
	return out
}

// ActQuant returns the quantizer configuration.
func (r *QuantReLU[B]) ActQuant() QuantInfo {
	return QuantInfo{Quant: r.q, Scale: r.threshold.Tensor().Data()[0] / r.q.IntScale()}
}

// Parameters returns the learned threshold.
func (r *QuantReLU[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{r.threshold}
}

// StateDict returns the threshold under its checkpoint name.
func (r *QuantReLU[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{QuantReLUScaleKey: r.threshold.Tensor().Raw()}
}

// LoadStateDict loads the threshold. It must be positive.
func (r *QuantReLU[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParams(stateDict, map[string]*Parameter[B]{QuantReLUScaleKey: r.threshold}); err != nil {
		return err
	}
	if _, err := quant.ParamActScale(r.threshold.Tensor().Data()[0], r.q); err != nil {
		return err
	}
	return nil
}
