package nn

import (
	"fmt"

	"github.com/born-ml/radioml/internal/quant"
	"github.com/born-ml/radioml/internal/tensor"
)

// QuantLinear is a fully connected layer with per-tensor quantized weights.
//
// Computes: output = input @ quant(weight).T + bias
//
// Input shape:  [batch, in_features]
// Weight shape: [out_features, in_features]
// Output shape: [batch, out_features]
//
// When the bias is tied to an upstream activation quantizer (see
// QuantizeBiasFrom) it is rounded onto a 32-bit grid whose scale is the
// product of the input and weight scales.
type QuantLinear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int

	q      quant.IntQuant
	weight *Parameter[B]
	bias   *Parameter[B] // nil without bias

	biasInput ActQuantizer

	qweight  *tensor.RawTensor // [out, in]
	qweightT *tensor.RawTensor // [in, out], fed to MatMul
	scale    float32

	backend B
}

// BiasBits is the width of the integer bias grid.
const BiasBits = 32

// NewQuantLinear creates a quantized linear layer with zero parameters.
func NewQuantLinear[B tensor.Backend](inFeatures, outFeatures, weightBits int, useBias bool, backend B) *QuantLinear[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("quant_linear: invalid features in=%d, out=%d", inFeatures, outFeatures))
	}
	q := quant.IntQuant{BitWidth: weightBits, Signed: true, Narrow: true}
	if err := q.Validate(); err != nil {
		panic(fmt.Sprintf("quant_linear: %v", err))
	}

	l := &QuantLinear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		q:           q,
		weight:      NewParameter("weight", tensor.Zeros[float32](tensor.Shape{outFeatures, inFeatures}, backend)),
		backend:     backend,
	}
	if useBias {
		l.bias = NewParameter("bias", tensor.Zeros[float32](tensor.Shape{outFeatures}, backend))
	}
	l.refresh()
	return l
}

// QuantizeBiasFrom ties the bias grid to the activation quantizer that
// feeds this layer.
func (l *QuantLinear[B]) QuantizeBiasFrom(src ActQuantizer) {
	l.biasInput = src
}

func (l *QuantLinear[B]) refresh() {
	w := l.weight.Tensor().Raw()
	l.scale = quant.WeightScale(w.AsFloat32(), l.q)
	qw := w.Clone()
	l.q.FakeQuantSlice(qw.AsFloat32(), qw.AsFloat32(), l.scale)
	l.qweight = qw

	qt, err := tensor.NewRaw(tensor.Shape{l.inFeatures, l.outFeatures}, tensor.Float32, w.Device())
	if err != nil {
		panic(fmt.Sprintf("quant_linear: %v", err))
	}
	src, dst := qw.AsFloat32(), qt.AsFloat32()
	for o := 0; o < l.outFeatures; o++ {
		for i := 0; i < l.inFeatures; i++ {
			dst[i*l.outFeatures+o] = src[o*l.inFeatures+i]
		}
	}
	l.qweightT = qt
}

// Forward performs the forward pass.
func (l *QuantLinear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("quant_linear: expected 2D input [N,F], got %dD", len(shape)))
	}
	if shape[1] != l.inFeatures {
		panic(fmt.Sprintf("quant_linear: input features %d != expected %d", shape[1], l.inFeatures))
	}

	out := tensor.New[float32, B](l.backend.MatMul(input.Raw(), l.qweightT), l.backend)
	if l.bias == nil {
		return out
	}

	bias := l.QuantBias()
	data := out.Data()
	for n := 0; n < shape[0]; n++ {
		row := data[n*l.outFeatures : (n+1)*l.outFeatures]
		for o := range row {
			row[o] += bias[o]
		}
	}
	return out
}

// QuantBias returns the bias as used by Forward, or nil without bias.
func (l *QuantLinear[B]) QuantBias() []float32 {
	if l.bias == nil {
		return nil
	}
	b := l.bias.Tensor().Data()
	if l.biasInput == nil {
		return b
	}
	out := make([]float32, len(b))
	BiasQuant().FakeQuantSlice(out, b, l.BiasScale())
	return out
}

// BiasQuant is the integer grid of quantized biases.
func BiasQuant() quant.IntQuant {
	return quant.IntQuant{BitWidth: BiasBits, Signed: true}
}

// BiasScale returns input scale x weight scale, or 0 when the bias is
// not quantized.
func (l *QuantLinear[B]) BiasScale() float32 {
	if l.bias == nil || l.biasInput == nil {
		return 0
	}
	return l.biasInput.ActQuant().Scale * l.scale
}

// InFeatures returns the input width.
func (l *QuantLinear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *QuantLinear[B]) OutFeatures() int { return l.outFeatures }

// Weight returns the float weight parameter.
func (l *QuantLinear[B]) Weight() *Parameter[B] { return l.weight }

// Bias returns the bias parameter, or nil.
func (l *QuantLinear[B]) Bias() *Parameter[B] { return l.bias }

// WeightQuant returns the weight quantizer.
func (l *QuantLinear[B]) WeightQuant() QuantInfo {
	return QuantInfo{Quant: l.q, Scale: l.scale}
}

// QuantWeight returns the fake-quantized weight [out, in].
func (l *QuantLinear[B]) QuantWeight() *tensor.RawTensor { return l.qweight }

// Parameters returns weight and, if present, bias.
func (l *QuantLinear[B]) Parameters() []*Parameter[B] {
	if l.bias != nil {
		return []*Parameter[B]{l.weight, l.bias}
	}
	return []*Parameter[B]{l.weight}
}

// StateDict returns the float parameters.
func (l *QuantLinear[B]) StateDict() map[string]*tensor.RawTensor {
	sd := map[string]*tensor.RawTensor{"weight": l.weight.Tensor().Raw()}
	if l.bias != nil {
		sd["bias"] = l.bias.Tensor().Raw()
	}
	return sd
}

// LoadStateDict loads the parameters and requantizes the weight.
func (l *QuantLinear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	params := map[string]*Parameter[B]{"weight": l.weight}
	if l.bias != nil {
		params["bias"] = l.bias
	}
	if err := loadParams(stateDict, params); err != nil {
		return err
	}
	l.refresh()
	return nil
}
