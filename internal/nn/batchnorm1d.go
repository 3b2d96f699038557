package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/radioml/internal/tensor"
)

// DefaultBatchNormEps is the variance epsilon used by BatchNorm1D.
const DefaultBatchNormEps = 1e-5

// BatchNorm1D normalizes per channel with running statistics (eval mode).
//
//	y = (x - running_mean) / sqrt(running_var + eps) * weight + bias
//
// Accepts [N, C, L] and [N, C] inputs.
type BatchNorm1D[B tensor.Backend] struct {
	numFeatures int
	eps         float32

	weight      *Parameter[B]
	bias        *Parameter[B]
	runningMean *Parameter[B]
	runningVar  *Parameter[B]

	backend B
}

// NewBatchNorm1D creates an identity batch norm (weight 1, var 1).
func NewBatchNorm1D[B tensor.Backend](numFeatures int, backend B) *BatchNorm1D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm1d: invalid features %d", numFeatures))
	}
	ones := make([]float32, numFeatures)
	for i := range ones {
		ones[i] = 1
	}
	shape := tensor.Shape{numFeatures}
	w, _ := tensor.FromSlice(ones, shape, backend)
	v, _ := tensor.FromSlice(ones, shape, backend)

	return &BatchNorm1D[B]{
		numFeatures: numFeatures,
		eps:         DefaultBatchNormEps,
		weight:      NewParameter("weight", w),
		bias:        NewParameter("bias", tensor.Zeros[float32](shape, backend)),
		runningMean: NewParameter("running_mean", tensor.Zeros[float32](shape, backend)),
		runningVar:  NewParameter("running_var", v),
		backend:     backend,
	}
}

// Affine returns the per-channel multiplier and offset the layer applies.
func (bn *BatchNorm1D[B]) Affine() (mul, add []float32) {
	w := bn.weight.Tensor().Data()
	b := bn.bias.Tensor().Data()
	mean := bn.runningMean.Tensor().Data()
	variance := bn.runningVar.Tensor().Data()

	mul = make([]float32, bn.numFeatures)
	add = make([]float32, bn.numFeatures)
	for c := range mul {
		inv := float32(1 / math.Sqrt(float64(variance[c]+bn.eps)))
		mul[c] = w[c] * inv
		add[c] = b[c] - mean[c]*mul[c]
	}
	return mul, add
}

// Forward applies the normalization.
func (bn *BatchNorm1D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	var n, length int
	switch len(shape) {
	case 2:
		n, length = shape[0], 1
	case 3:
		n, length = shape[0], shape[2]
	default:
		panic(fmt.Sprintf("batchnorm1d: expected 2D or 3D input, got %dD", len(shape)))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("batchnorm1d: input channels %d != expected %d", shape[1], bn.numFeatures))
	}

	mul, add := bn.Affine()
	out := tensor.Zeros[float32](shape, bn.backend)
	src, dst := input.Data(), out.Data()
	for i := 0; i < n; i++ {
		for c := 0; c < bn.numFeatures; c++ {
			base := (i*bn.numFeatures + c) * length
			m, a := mul[c], add[c]
			for l := 0; l < length; l++ {
				dst[base+l] = src[base+l]*m + a
			}
		}
	}
	return out
}

// NumFeatures returns the channel count.
func (bn *BatchNorm1D[B]) NumFeatures() int { return bn.numFeatures }

// Eps returns the variance epsilon.
func (bn *BatchNorm1D[B]) Eps() float32 { return bn.eps }

func (bn *BatchNorm1D[B]) named() map[string]*Parameter[B] {
	return map[string]*Parameter[B]{
		"weight":       bn.weight,
		"bias":         bn.bias,
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	}
}

// Parameters returns affine parameters and running statistics.
func (bn *BatchNorm1D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias, bn.runningMean, bn.runningVar}
}

// StateDict returns parameters and running statistics.
func (bn *BatchNorm1D[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor, 4)
	for name, p := range bn.named() {
		sd[name] = p.Tensor().Raw()
	}
	return sd
}

// LoadStateDict loads parameters and running statistics. A
// num_batches_tracked entry is accepted and ignored.
func (bn *BatchNorm1D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParams(stateDict, bn.named()); err != nil {
		return err
	}
	for i, v := range bn.runningVar.Tensor().Data() {
		if v < 0 {
			return fmt.Errorf("running_var[%d] = %g is negative", i, v)
		}
	}
	return nil
}
