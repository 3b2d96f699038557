package nn

import (
	"fmt"

	"github.com/born-ml/radioml/internal/quant"
	"github.com/born-ml/radioml/internal/tensor"
)

// QuantConv1D is a 1D convolution with per-tensor quantized weights and
// no bias.
//
// Input shape:  [batch, in_channels, length]
// Weight shape: [out_channels, in_channels, kernel]
// Output shape: [batch, out_channels, (length + 2*padding - kernel) + 1]
type QuantConv1D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	padding     int

	q      quant.IntQuant
	weight *Parameter[B]

	// Cached fake-quantized weight, refreshed on load.
	qweight *tensor.RawTensor
	scale   float32

	backend B
}

// NewQuantConv1D creates a quantized convolution with zero weights.
func NewQuantConv1D[B tensor.Backend](inChannels, outChannels, kernelSize, padding, weightBits int, backend B) *QuantConv1D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("quant_conv1d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelSize <= 0 || padding < 0 {
		panic(fmt.Sprintf("quant_conv1d: invalid kernel %d / padding %d", kernelSize, padding))
	}
	q := quant.IntQuant{BitWidth: weightBits, Signed: true, Narrow: true}
	if err := q.Validate(); err != nil {
		panic(fmt.Sprintf("quant_conv1d: %v", err))
	}

	w := tensor.Zeros[float32](tensor.Shape{outChannels, inChannels, kernelSize}, backend)
	c := &QuantConv1D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		padding:     padding,
		q:           q,
		weight:      NewParameter("weight", w),
		backend:     backend,
	}
	c.refresh()
	return c
}

func (c *QuantConv1D[B]) refresh() {
	w := c.weight.Tensor().Raw()
	c.scale = quant.WeightScale(w.AsFloat32(), c.q)
	qw := w.Clone()
	c.q.FakeQuantSlice(qw.AsFloat32(), qw.AsFloat32(), c.scale)
	c.qweight = qw
}

// Forward performs the convolution with the quantized weight.
func (c *QuantConv1D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 3 {
		panic(fmt.Sprintf("quant_conv1d: expected 3D input [N,C,L], got %dD", len(shape)))
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("quant_conv1d: input channels %d != expected %d", shape[1], c.inChannels))
	}
	out := c.backend.Conv1D(input.Raw(), c.qweight, 1, c.padding)
	return tensor.New[float32, B](out, c.backend)
}

// InChannels returns the number of input channels.
func (c *QuantConv1D[B]) InChannels() int { return c.inChannels }

// OutChannels returns the number of output channels.
func (c *QuantConv1D[B]) OutChannels() int { return c.outChannels }

// KernelSize returns the kernel width.
func (c *QuantConv1D[B]) KernelSize() int { return c.kernelSize }

// Padding returns the symmetric zero padding.
func (c *QuantConv1D[B]) Padding() int { return c.padding }

// Weight returns the float weight parameter.
func (c *QuantConv1D[B]) Weight() *Parameter[B] { return c.weight }

// WeightQuant returns the weight quantizer.
func (c *QuantConv1D[B]) WeightQuant() QuantInfo {
	return QuantInfo{Quant: c.q, Scale: c.scale}
}

// QuantWeight returns the fake-quantized weight.
func (c *QuantConv1D[B]) QuantWeight() *tensor.RawTensor { return c.qweight }

// Parameters returns the weight.
func (c *QuantConv1D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight}
}

// StateDict returns the float weight.
func (c *QuantConv1D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"weight": c.weight.Tensor().Raw()}
}

// LoadStateDict loads the weight and requantizes it.
func (c *QuantConv1D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParams(stateDict, map[string]*Parameter[B]{"weight": c.weight}); err != nil {
		return err
	}
	c.refresh()
	return nil
}
