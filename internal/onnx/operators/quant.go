package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/radioml/internal/quant"
	"github.com/born-ml/radioml/internal/tensor"
)

func (r *Registry) registerQuantOps() {
	r.Register("Quant", handleQuant)
}

// QuantSpec reads the integer grid of a Quant node from its bit width
// input and signed/narrow attributes.
func QuantSpec(node *Node, bitWidth float32) (quant.IntQuant, error) {
	if bitWidth != float32(math.Trunc(float64(bitWidth))) {
		return quant.IntQuant{}, fmt.Errorf("quant: non-integer bit width %v", bitWidth)
	}
	q := quant.IntQuant{
		BitWidth: int(bitWidth),
		Signed:   GetAttrInt(node, "signed", 1) != 0,
		Narrow:   GetAttrInt(node, "narrow", 0) != 0,
	}
	return q, q.Validate()
}

// handleQuant implements the QONNX Quant operator:
//
//	y = (clip(round(x/scale + zeropt), min, max) - zeropt) * scale
//
// scale and zeropt must be scalars or broadcast along axis 1 (channels).
func handleQuant(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs(node, 4, len(inputs)); err != nil {
		return nil, err
	}
	x, err := float32Input(inputs, 0)
	if err != nil {
		return nil, err
	}
	scale, err := float32Input(inputs, 1)
	if err != nil {
		return nil, err
	}
	zeropt, err := float32Input(inputs, 2)
	if err != nil {
		return nil, err
	}
	bw, err := float32Input(inputs, 3)
	if err != nil {
		return nil, err
	}
	if bw.NumElements() != 1 {
		return nil, fmt.Errorf("quant: bit width must be a scalar, got shape %v", bw.Shape())
	}
	q, err := QuantSpec(node, bw.AsFloat32()[0])
	if err != nil {
		return nil, err
	}

	round, err := roundingFunc(GetAttrString(node, "rounding_mode", "ROUND"))
	if err != nil {
		return nil, err
	}

	xs := x.AsFloat32()
	scaleAt, err := broadcastAxis1(scale, x.Shape())
	if err != nil {
		return nil, fmt.Errorf("quant: scale: %w", err)
	}
	zpAt, err := broadcastAxis1(zeropt, x.Shape())
	if err != nil {
		return nil, fmt.Errorf("quant: zeropt: %w", err)
	}

	out := newFloat32(x.Shape())
	ys := out.AsFloat32()
	lo, hi := float64(q.Min()), float64(q.Max())
	// Arithmetic stays in float32 like the layers that produced the graph.
	for i, v := range xs {
		s, zp := scaleAt(i), zpAt(i)
		if !(s > 0) {
			return nil, fmt.Errorf("quant: %w: %v", quant.ErrInvalidScale, s)
		}
		qv := round(float64(v/s + zp))
		qv = math.Min(math.Max(qv, lo), hi)
		ys[i] = float32(qv-float64(zp)) * s
	}
	return []*tensor.RawTensor{out}, nil
}

func roundingFunc(mode string) (func(float64) float64, error) {
	switch mode {
	case "ROUND", "HALF_EVEN":
		return math.RoundToEven, nil
	case "CEIL":
		return math.Ceil, nil
	case "FLOOR":
		return math.Floor, nil
	case "ROUND_TO_ZERO":
		return math.Trunc, nil
	default:
		return nil, fmt.Errorf("quant: unsupported rounding mode %q", mode)
	}
}

// broadcastAxis1 returns an element accessor for p broadcast to shape. p
// may be a scalar or hold one value per index of axis 1.
func broadcastAxis1(p *tensor.RawTensor, shape tensor.Shape) (func(i int) float32, error) {
	vals := p.AsFloat32()
	if len(vals) == 1 {
		v := vals[0]
		return func(int) float32 { return v }, nil
	}
	if len(shape) < 2 || len(vals) != shape[1] {
		return nil, fmt.Errorf("shape %v does not broadcast to %v", p.Shape(), shape)
	}
	inner := shape.NumElements() / (shape[0] * shape[1])
	c := shape[1]
	return func(i int) float32 { return vals[(i/inner)%c] }, nil
}
