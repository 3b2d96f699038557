package nn

import (
	"fmt"

	"github.com/born-ml/radioml/internal/tensor"
)

// Parameter is a named float32 tensor owned by a layer.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter creates a new parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// load copies raw into the parameter after checking its shape.
// Non-float32 inputs are converted.
func (p *Parameter[B]) load(raw *tensor.RawTensor) error {
	want := p.tensor.Shape()
	got := raw.Shape()
	if !got.Equal(want) && !(got.NumElements() == 1 && want.NumElements() == 1) {
		return fmt.Errorf("%s: %w: checkpoint has %v, layer expects %v", p.name, ErrShapeMismatch, got, want)
	}
	src, err := raw.ToFloat32()
	if err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	copy(p.tensor.Data(), src.AsFloat32())
	return nil
}

// loadParams loads every named parameter from stateDict and rejects
// keys that belong to none of them.
func loadParams[B tensor.Backend](stateDict map[string]*tensor.RawTensor, params map[string]*Parameter[B]) error {
	for key := range stateDict {
		if _, ok := params[key]; !ok && key != bufferNumBatchesTracked {
			return fmt.Errorf("%w: %q", ErrUnexpectedParameter, key)
		}
	}
	for key, p := range params {
		raw, ok := stateDict[key]
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingParameter, key)
		}
		if err := p.load(raw); err != nil {
			return err
		}
	}
	return nil
}
