// Package model defines the VGG10-style quantized modulation classifier.
package model

import (
	"errors"
	"fmt"

	"github.com/born-ml/radioml/internal/nn"
	"github.com/born-ml/radioml/internal/tensor"
)

// VGG10Config holds the fixed hyper-parameters of the classifier.
type VGG10Config struct {
	FiltersConv  int     `yaml:"filters_conv" json:"filters_conv"`
	FiltersDense int     `yaml:"filters_dense" json:"filters_dense"`
	InputBits    int     `yaml:"input_bits" json:"input_bits"`
	ActBits      int     `yaml:"act_bits" json:"act_bits"`
	WeightBits   int     `yaml:"weight_bits" json:"weight_bits"`
	ConvBlocks   int     `yaml:"conv_blocks" json:"conv_blocks"`
	Classes      int     `yaml:"classes" json:"classes"`
	FrameLength  int     `yaml:"frame_length" json:"frame_length"`
	InputRange   float32 `yaml:"input_range" json:"input_range"`
}

// InputChannels is the I/Q channel count of a frame.
const InputChannels = 2

// DefaultVGG10Config returns the configuration of the published checkpoint.
func DefaultVGG10Config() VGG10Config {
	return VGG10Config{
		FiltersConv:  64,
		FiltersDense: 128,
		InputBits:    8,
		ActBits:      8,
		WeightBits:   8,
		ConvBlocks:   7,
		Classes:      24,
		FrameLength:  1024,
		InputRange:   2,
	}
}

// ErrInvalidConfig wraps every configuration error.
var ErrInvalidConfig = errors.New("invalid model config")

// Validate checks that the configuration describes a buildable network.
func (c VGG10Config) Validate() error {
	for name, v := range map[string]int{
		"filters_conv":  c.FiltersConv,
		"filters_dense": c.FiltersDense,
		"input_bits":    c.InputBits,
		"act_bits":      c.ActBits,
		"weight_bits":   c.WeightBits,
		"conv_blocks":   c.ConvBlocks,
		"classes":       c.Classes,
		"frame_length":  c.FrameLength,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, name, v)
		}
	}
	if c.InputRange <= 0 {
		return fmt.Errorf("%w: input_range must be positive, got %g", ErrInvalidConfig, c.InputRange)
	}
	if c.FrameLength%(1<<c.ConvBlocks) != 0 {
		return fmt.Errorf("%w: frame length %d does not survive %d halvings", ErrInvalidConfig, c.FrameLength, c.ConvBlocks)
	}
	return nil
}

// FlatFeatures is the width of the flattened conv output.
func (c VGG10Config) FlatFeatures() int {
	return c.FiltersConv * (c.FrameLength >> c.ConvBlocks)
}

// Layer indices of the head, relative to the Sequential.
func (c VGG10Config) headStart() int { return 1 + 4*c.ConvBlocks }

// NewVGG10 builds the classifier:
//
//	QuantHardTanh
//	ConvBlocks x [QuantConv1D(k=3, pad=1) BatchNorm1D QuantReLU MaxPool1D(2)]
//	Flatten
//	QuantLinear BatchNorm1D QuantReLU
//	QuantLinear BatchNorm1D QuantReLU
//	QuantLinear(+bias)
//
// Module indices match the PyTorch nn.Sequential the checkpoint was
// trained with.
func NewVGG10[B tensor.Backend](cfg VGG10Config, backend B) (*nn.Sequential[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seq := nn.NewSequential[B](nn.NewQuantHardTanh(-cfg.InputRange, cfg.InputRange, cfg.InputBits, backend))

	in := InputChannels
	for i := 0; i < cfg.ConvBlocks; i++ {
		seq.Add(nn.NewQuantConv1D(in, cfg.FiltersConv, 3, 1, cfg.WeightBits, backend))
		seq.Add(nn.NewBatchNorm1D(cfg.FiltersConv, backend))
		seq.Add(nn.NewQuantReLU(cfg.ActBits, backend))
		seq.Add(nn.NewMaxPool1D(2, 2, backend))
		in = cfg.FiltersConv
	}

	seq.Add(nn.NewFlatten[B]())

	seq.Add(nn.NewQuantLinear(cfg.FlatFeatures(), cfg.FiltersDense, cfg.WeightBits, false, backend))
	seq.Add(nn.NewBatchNorm1D(cfg.FiltersDense, backend))
	seq.Add(nn.NewQuantReLU(cfg.ActBits, backend))

	seq.Add(nn.NewQuantLinear(cfg.FiltersDense, cfg.FiltersDense, cfg.WeightBits, false, backend))
	seq.Add(nn.NewBatchNorm1D(cfg.FiltersDense, backend))
	lastAct := nn.NewQuantReLU(cfg.ActBits, backend)
	seq.Add(lastAct)

	classifier := nn.NewQuantLinear(cfg.FiltersDense, cfg.Classes, cfg.WeightBits, true, backend)
	classifier.QuantizeBiasFrom(lastAct)
	seq.Add(classifier)

	return seq, nil
}

// NumModules returns the length of the Sequential built for cfg.
func (c VGG10Config) NumModules() int {
	return c.headStart() + 1 + 3 + 3 + 1
}

// InputShape returns the batch input shape for batch size n.
func (c VGG10Config) InputShape(n int) tensor.Shape {
	return tensor.Shape{n, InputChannels, c.FrameLength}
}
