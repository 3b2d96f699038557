// Package cost estimates the inference cost of a quantized QONNX model in
// bit operations (BOPs) and weight memory bits, and turns both into the
// normalized score used to compare classifiers.
//
// The model is first brought into a canonical form: quantized weights are
// folded into integer initializers, shapes are inferred by executing the
// graph once at batch size 1 and every tensor is annotated with its
// datatype. Conv, Gemm and MatMul nodes are then costed as
//
//	op_mac_<input dt>_<weight dt>  multiply-accumulates
//	mem_w_<weight dt>              weight elements
//	mem_o_<output dt>              output elements
//
// Every other op type is reported as unsupported and costs nothing.
package cost

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/born-ml/radioml/internal/backend/cpu"
	"github.com/born-ml/radioml/internal/onnx"
	"github.com/born-ml/radioml/internal/tensor"
)

// Reference costs the score is normalized by.
const (
	BaselineBOPs       = 807699904
	BaselineWeightBits = 1244936
)

// ErrUnknownDataType is returned for datatype names without a bit width.
var ErrUnknownDataType = errors.New("cost: unknown datatype")

// Options configure InferenceCost.
type Options struct {
	// DiscountSparsity scales MACs and weight memory by the fraction of
	// non-zero weights.
	DiscountSparsity bool
	// Backend runs shape inference. nil means the CPU backend.
	Backend tensor.Backend
}

// DefaultOptions returns sparsity-discounting options on the CPU.
func DefaultOptions() Options {
	return Options{DiscountSparsity: true}
}

// NodeCost is the cost of one node.
type NodeCost struct {
	Node   string             `json:"node"`
	OpType string             `json:"op_type"`
	Costs  map[string]float64 `json:"costs"`
}

// Report is the result of InferenceCost.
type Report struct {
	// Costs holds the aggregated op_mac_*, mem_w_* and mem_o_* entries.
	Costs map[string]float64

	TotalBOPs      float64
	TotalMACs      float64
	TotalMemWBits  float64
	TotalMemWElems float64
	TotalMemOBits  float64
	TotalMemOElems float64

	// Unsupported lists op types that have no cost model.
	Unsupported []string
	Nodes       []NodeCost
}

// InferenceCost analyzes m and returns the cost report together with the
// preprocessed, datatype-annotated model. m itself is not modified.
func InferenceCost(m *onnx.ModelProto, opts Options) (*Report, *onnx.ModelProto, error) {
	if m.Graph == nil {
		return nil, nil, fmt.Errorf("cost: model has no graph")
	}
	backend := opts.Backend
	if backend == nil {
		backend = cpu.New()
	}

	pm, err := Preprocess(m, backend)
	if err != nil {
		return nil, nil, err
	}

	r := &Report{Costs: make(map[string]float64)}
	unsupported := make(map[string]bool)
	g := pm.Graph
	for i := range g.Nodes {
		node := &g.Nodes[i]
		var (
			c   map[string]float64
			err error
		)
		switch node.OpType {
		case "Conv":
			c, err = convCost(g, node, opts.DiscountSparsity)
		case "Gemm", "MatMul":
			c, err = matmulCost(g, node, opts.DiscountSparsity)
		default:
			unsupported[node.OpType] = true
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("cost of %s (%s): %w", node.Name, node.OpType, err)
		}
		r.Nodes = append(r.Nodes, NodeCost{Node: node.Name, OpType: node.OpType, Costs: c})
		for k, v := range c {
			r.Costs[k] += v
		}
	}
	for op := range unsupported {
		r.Unsupported = append(r.Unsupported, op)
	}
	sort.Strings(r.Unsupported)

	if err := r.total(); err != nil {
		return nil, nil, err
	}
	return r, pm, nil
}

// Preprocess returns a canonicalized copy of m: quantized weights folded to
// integer initializers, remaining constant subgraphs folded, nodes sorted,
// shapes inferred at batch size 1 and datatypes annotated.
func Preprocess(m *onnx.ModelProto, backend tensor.Backend) (*onnx.ModelProto, error) {
	pm, err := onnx.Clone(m)
	if err != nil {
		return nil, fmt.Errorf("cost: clone model: %w", err)
	}
	// Annotate Quant outputs while their producers still exist.
	if err := onnx.InferDataTypes(pm); err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	if _, err := onnx.FoldQuantWeights(pm, backend); err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	if _, err := onnx.FoldConstants(pm, backend); err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	onnx.SortGraph(pm)
	if err := onnx.InferShapes(pm, backend, 1); err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	if err := onnx.InferDataTypes(pm); err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	return pm, nil
}

func (r *Report) total() error {
	for k, v := range r.Costs {
		switch {
		case strings.HasPrefix(k, "op_mac_"):
			a, w, err := splitMACKey(k)
			if err != nil {
				return err
			}
			r.TotalMACs += v
			r.TotalBOPs += v * float64(a*w)
		case strings.HasPrefix(k, "mem_w_"):
			bits, err := BitWidth(strings.TrimPrefix(k, "mem_w_"))
			if err != nil {
				return err
			}
			r.TotalMemWElems += v
			r.TotalMemWBits += v * float64(bits)
		case strings.HasPrefix(k, "mem_o_"):
			bits, err := BitWidth(strings.TrimPrefix(k, "mem_o_"))
			if err != nil {
				return err
			}
			r.TotalMemOElems += v
			r.TotalMemOBits += v * float64(bits)
		}
	}
	return nil
}

// Score combines BOPs and weight bits relative to the baseline:
//
//	0.5*bops/BaselineBOPs + 0.5*wbits/BaselineWeightBits
//
// Lower is better; the baseline scores 1.
func Score(bops, weightBits float64) float64 {
	return DefaultBaseline().Score(bops, weightBits)
}

// Baseline holds the reference costs a score is normalized by.
type Baseline struct {
	BOPs       float64 `yaml:"bops" json:"bops"`
	WeightBits float64 `yaml:"w_bits" json:"w_bits"`
}

// DefaultBaseline returns the costs of the reference VGG10.
func DefaultBaseline() Baseline {
	return Baseline{BOPs: BaselineBOPs, WeightBits: BaselineWeightBits}
}

// Score normalizes bops and weightBits by b.
func (b Baseline) Score(bops, weightBits float64) float64 {
	return 0.5*bops/b.BOPs + 0.5*weightBits/b.WeightBits
}

var scaledInt = regexp.MustCompile(`^SCALEDINT<(\d+)>$`)

// BitWidth returns the width of a QONNX datatype name.
func BitWidth(dt string) (int, error) {
	switch dt {
	case "BINARY", "BIPOLAR":
		return 1, nil
	case "TERNARY":
		return 2, nil
	case "FLOAT32":
		return 32, nil
	case "FLOAT16":
		return 16, nil
	}
	var digits string
	switch {
	case strings.HasPrefix(dt, "UINT"):
		digits = strings.TrimPrefix(dt, "UINT")
	case strings.HasPrefix(dt, "INT"):
		digits = strings.TrimPrefix(dt, "INT")
	default:
		if m := scaledInt.FindStringSubmatch(dt); m != nil {
			digits = m[1]
		}
	}
	bits, err := strconv.Atoi(digits)
	if err != nil || bits <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDataType, dt)
	}
	return bits, nil
}

// splitMACKey returns the operand widths of an op_mac_<A>_<W> key.
func splitMACKey(key string) (int, int, error) {
	rest := strings.TrimPrefix(key, "op_mac_")
	// SCALEDINT<n> never contains '_', so the last '_' separates operands.
	i := strings.LastIndex(rest, "_")
	if i < 0 {
		return 0, 0, fmt.Errorf("%w: malformed key %q", ErrUnknownDataType, key)
	}
	a, err := BitWidth(rest[:i])
	if err != nil {
		return 0, 0, err
	}
	w, err := BitWidth(rest[i+1:])
	if err != nil {
		return 0, 0, err
	}
	return a, w, nil
}
