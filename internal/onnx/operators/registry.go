package operators

import (
	"errors"
	"fmt"
	"sort"

	"github.com/born-ml/radioml/internal/tensor"
)

// ErrUnsupportedOp is returned for operators without a handler.
var ErrUnsupportedOp = errors.New("unsupported operator")

// OpHandler processes an ONNX node and returns output tensors.
type OpHandler func(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error)

// Context provides backend and other execution context for operators.
type Context struct {
	Backend tensor.Backend
}

// Registry maps ONNX operator types to handler functions.
type Registry struct {
	handlers map[string]OpHandler
}

// NewRegistry creates a new operator registry with all supported operators.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]OpHandler),
	}

	r.registerQuantOps()
	r.registerConvOps()
	r.registerMathOps()
	r.registerShapeOps()

	return r
}

// Register adds a custom operator handler.
func (r *Registry) Register(opType string, handler OpHandler) {
	r.handlers[opType] = handler
}

// Get returns the handler for an operator type.
func (r *Registry) Get(opType string) (OpHandler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

// Execute runs an operator with the given inputs. A handler that panics on
// malformed inputs is reported as an error.
func (r *Registry) Execute(ctx *Context, node *Node, inputs []*tensor.RawTensor) (out []*tensor.RawTensor, err error) {
	handler, ok := r.handlers[node.OpType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOp, node.OpType)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: %v", node.OpType, p)
		}
	}()
	return handler(ctx, node, inputs)
}

// SupportedOps returns the sorted list of supported operator types.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// float32Input returns input i as float32, converting other numeric types.
func float32Input(inputs []*tensor.RawTensor, i int) (*tensor.RawTensor, error) {
	if i >= len(inputs) || inputs[i] == nil {
		return nil, fmt.Errorf("missing input %d", i)
	}
	if inputs[i].DType() == tensor.Float32 {
		return inputs[i], nil
	}
	return inputs[i].ToFloat32()
}

func newFloat32(shape tensor.Shape) *tensor.RawTensor {
	t, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(err)
	}
	return t
}
