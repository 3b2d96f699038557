package onnx

import (
	"fmt"

	"github.com/born-ml/radioml/internal/nn"
	"github.com/born-ml/radioml/internal/quant"
	"github.com/born-ml/radioml/internal/tensor"
)

// Graph boundary names of exported models.
const (
	InputName  = "global_in"
	OutputName = "global_out"
)

// OpsetVersion is the default-domain opset of exported models.
const OpsetVersion = 11

// ExportOptions configure Export.
type ExportOptions struct {
	ProducerName    string
	ProducerVersion string
	GraphName       string
	// Metadata is copied into the model's metadata_props.
	Metadata map[string]string
}

// DefaultExportOptions returns the options used by the CLI.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		ProducerName:    "radioml",
		ProducerVersion: "0.1.0",
		GraphName:       "vgg10",
	}
}

// Export converts a quantized Sequential into a QONNX model.
//
// Weights are stored in float and routed through Quant nodes, activation
// quantizers become Quant nodes (preceded by Relu for QuantReLU) and a
// quantized classifier bias gets its own 32-bit Quant node. The graph input
// has the static shape inputShape.
func Export[B tensor.Backend](seq *nn.Sequential[B], inputShape tensor.Shape, opts ExportOptions) (*ModelProto, error) {
	b := &graphBuilder{counts: make(map[string]int), current: InputName}
	b.graph.Name = opts.GraphName
	b.graph.Inputs = []ValueInfoProto{NewValueInfo(InputName, TensorProtoFloat, inputShape.Int64s())}

	if seq.Len() == 0 {
		return nil, fmt.Errorf("%w: empty model", ErrUnsupported)
	}
	for i, m := range seq.Modules() {
		if err := exportModule(b, m); err != nil {
			return nil, fmt.Errorf("module %d (%T): %w", i, m, err)
		}
	}

	// Rename the last value so the graph output has a stable name.
	last := &b.graph.Nodes[len(b.graph.Nodes)-1]
	last.Outputs[0] = OutputName
	for i := range b.graph.QuantizationAnnotation {
		if b.graph.QuantizationAnnotation[i].TensorName == b.current {
			b.graph.QuantizationAnnotation[i].TensorName = OutputName
		}
	}
	b.graph.Outputs = []ValueInfoProto{{
		Name: OutputName,
		Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: TensorProtoFloat}},
	}}

	m := &ModelProto{
		IRVersion:       7,
		ProducerName:    opts.ProducerName,
		ProducerVersion: opts.ProducerVersion,
		OpsetImport: []OperatorSetID{
			{Domain: DomainDefault, Version: OpsetVersion},
			{Domain: DomainQONNX, Version: 1},
		},
		Graph: &b.graph,
	}
	for k, v := range opts.Metadata {
		m.MetadataProps = append(m.MetadataProps, StringStringEntry{Key: k, Value: v})
	}
	return m, nil
}

type graphBuilder struct {
	graph   GraphProto
	counts  map[string]int
	current string
}

func (b *graphBuilder) nodeName(op string) string {
	n := fmt.Sprintf("%s_%d", op, b.counts[op])
	b.counts[op]++
	return n
}

// add appends a node reading current plus extra inputs and advances current.
func (b *graphBuilder) add(name, op, domain string, extra []string, attrs ...AttributeProto) {
	out := name + "_out0"
	b.graph.Nodes = append(b.graph.Nodes, NodeProto{
		Name:       name,
		OpType:     op,
		Domain:     domain,
		Inputs:     append([]string{b.current}, extra...),
		Outputs:    []string{out},
		Attributes: attrs,
	})
	b.current = out
}

func (b *graphBuilder) initializer(t TensorProto) string {
	b.graph.Initializers = append(b.graph.Initializers, t)
	return t.Name
}

func (b *graphBuilder) rawInitializer(name string, t *tensor.RawTensor) (string, error) {
	p, err := TensorToProto(name, t)
	if err != nil {
		return "", err
	}
	return b.initializer(p), nil
}

// quant appends a Quant node on current and annotates its output.
func (b *graphBuilder) quant(q quant.IntQuant, scale float32) {
	name := b.nodeName("Quant")
	params := []string{
		b.initializer(ScalarTensor(name+"_param0", scale)),
		b.initializer(ScalarTensor(name+"_param1", 0)),
		b.initializer(ScalarTensor(name+"_param2", float32(q.BitWidth))),
	}
	b.add(name, "Quant", DomainQONNX, params,
		IntAttr("signed", boolInt(q.Signed)),
		IntAttr("narrow", boolInt(q.Narrow)),
		StringAttr("rounding_mode", "ROUND"),
	)
	b.graph.SetTensorDataType(b.current, q.ScaledDataType())
}

// quantParam routes a float parameter through a Quant node and returns the
// name of the quantized tensor. current is left untouched.
func (b *graphBuilder) quantParam(t *tensor.RawTensor, info nn.QuantInfo) (string, error) {
	saved := b.current
	name := b.nodeName("Quant")
	src, err := b.rawInitializer(name+"_param0", t)
	if err != nil {
		return "", err
	}
	b.current = src
	b.graph.Nodes = append(b.graph.Nodes, NodeProto{
		Name:   name,
		OpType: "Quant",
		Domain: DomainQONNX,
		Inputs: []string{
			src,
			b.initializer(ScalarTensor(name+"_param1", info.Scale)),
			b.initializer(ScalarTensor(name+"_param2", 0)),
			b.initializer(ScalarTensor(name+"_param3", float32(info.Quant.BitWidth))),
		},
		Outputs: []string{name + "_out0"},
		Attributes: []AttributeProto{
			IntAttr("signed", boolInt(info.Quant.Signed)),
			IntAttr("narrow", boolInt(info.Quant.Narrow)),
			StringAttr("rounding_mode", "ROUND"),
		},
	})
	out := name + "_out0"
	b.graph.SetTensorDataType(out, info.Quant.ScaledDataType())
	b.current = saved
	return out, nil
}

func exportModule[B tensor.Backend](b *graphBuilder, m nn.Module[B]) error {
	switch l := m.(type) {
	case *nn.QuantHardTanh[B]:
		info := l.ActQuant()
		b.quant(info.Quant, info.Scale)

	case *nn.QuantConv1D[B]:
		w, err := b.quantParam(l.Weight().Tensor().Raw(), l.WeightQuant())
		if err != nil {
			return err
		}
		p := int64(l.Padding())
		b.add(b.nodeName("Conv"), "Conv", DomainDefault, []string{w},
			IntsAttr("dilations", 1),
			IntAttr("group", 1),
			IntsAttr("kernel_shape", int64(l.KernelSize())),
			IntsAttr("pads", p, p),
			IntsAttr("strides", 1),
		)

	case *nn.BatchNorm1D[B]:
		name := b.nodeName("BatchNormalization")
		sd := l.StateDict()
		var params []string
		for i, key := range []string{"weight", "bias", "running_mean", "running_var"} {
			p, err := b.rawInitializer(fmt.Sprintf("%s_param%d", name, i), sd[key])
			if err != nil {
				return err
			}
			params = append(params, p)
		}
		b.add(name, "BatchNormalization", DomainDefault, params,
			FloatAttr("epsilon", l.Eps()),
			FloatAttr("momentum", 0.9),
		)

	case *nn.QuantReLU[B]:
		b.add(b.nodeName("Relu"), "Relu", DomainDefault, nil)
		info := l.ActQuant()
		b.quant(info.Quant, info.Scale)

	case *nn.MaxPool1D[B]:
		b.add(b.nodeName("MaxPool"), "MaxPool", DomainDefault, nil,
			IntsAttr("kernel_shape", int64(l.KernelSize())),
			IntsAttr("pads", 0, 0),
			IntsAttr("strides", int64(l.Stride())),
		)

	case *nn.Flatten[B]:
		b.add(b.nodeName("Flatten"), "Flatten", DomainDefault, nil, IntAttr("axis", 1))

	case *nn.QuantLinear[B]:
		w, err := b.quantParam(l.Weight().Tensor().Raw(), l.WeightQuant())
		if err != nil {
			return err
		}
		name := b.nodeName("Gemm")
		inputs := []string{w}
		if bias := l.Bias(); bias != nil {
			var c string
			if scale := l.BiasScale(); scale > 0 {
				c, err = b.quantParam(bias.Tensor().Raw(), nn.QuantInfo{Quant: nn.BiasQuant(), Scale: scale})
			} else {
				c, err = b.rawInitializer(name+"_param0", bias.Tensor().Raw())
			}
			if err != nil {
				return err
			}
			inputs = append(inputs, c)
		}
		b.add(name, "Gemm", DomainDefault, inputs,
			FloatAttr("alpha", 1),
			FloatAttr("beta", 1),
			IntAttr("transB", 1),
		)

	default:
		return fmt.Errorf("%w: layer %T", ErrUnsupported, m)
	}
	return nil
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
