package cost

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/born-ml/radioml/internal/backend/cpu"
	"github.com/born-ml/radioml/internal/model"
	"github.com/born-ml/radioml/internal/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const macKey = "op_mac_SCALEDINT<8>_INT8"

func exportModel(t *testing.T, cfg model.VGG10Config, mutate func(map[string][]float32)) *onnx.ModelProto {
	t.Helper()
	backend := cpu.New()
	seq, err := model.NewVGG10(cfg, backend)
	require.NoError(t, err)
	sd := model.RandomStateDict(seq, 3)
	if mutate != nil {
		view := make(map[string][]float32, len(sd))
		for k, v := range sd {
			view[k] = v.AsFloat32()
		}
		mutate(view)
	}
	require.NoError(t, seq.LoadStateDict(sd))
	m, err := onnx.Export(seq, cfg.InputShape(1), onnx.DefaultExportOptions())
	require.NoError(t, err)
	return m
}

func TestInferenceCost_VGG10(t *testing.T) {
	m := exportModel(t, model.DefaultVGG10Config(), nil)

	r, annotated, err := InferenceCost(m, Options{})
	require.NoError(t, err)

	assert.Equal(t, 12864512.0, r.Costs[macKey])
	assert.Equal(t, 159104.0, r.Costs["mem_w_INT8"])
	assert.Equal(t, 12864512.0, r.TotalMACs)
	assert.Equal(t, 823328768.0, r.TotalBOPs)
	assert.Equal(t, 1272832.0, r.TotalMemWBits)
	assert.Equal(t, 159104.0, r.TotalMemWElems)
	assert.Equal(t, 130328.0, r.Costs["mem_o_FLOAT32"])
	assert.Equal(t, 130328.0*32, r.TotalMemOBits)
	assert.InDelta(t, 1.0208787088, r.Score(), 1e-9)

	assert.Len(t, r.Nodes, 10)
	assert.Contains(t, r.Unsupported, "BatchNormalization")
	assert.Contains(t, r.Unsupported, "Quant")
	assert.NotContains(t, r.Unsupported, "Conv")

	// The annotated model carries integer weights and inferred shapes.
	g := annotated.Graph
	conv := g.Nodes[g.Consumers(g.Nodes[0].Outputs[0])[0]]
	require.Equal(t, "Conv", conv.OpType)
	assert.Equal(t, "INT8", g.TensorDataType(conv.Inputs[1]))
	shape, ok := g.ValueShape(conv.Outputs[0])
	require.True(t, ok)
	assert.Equal(t, []int64{1, 64, 1024}, shape)

	// The input model is not modified.
	assert.Empty(t, m.Graph.ValueInfo)
}

func smallConfig() model.VGG10Config {
	return model.VGG10Config{
		FiltersConv:  4,
		FiltersDense: 8,
		InputBits:    8,
		ActBits:      8,
		WeightBits:   8,
		ConvBlocks:   2,
		Classes:      5,
		FrameLength:  16,
		InputRange:   2,
	}
}

func TestInferenceCost_SparsityDiscount(t *testing.T) {
	// Zero half of the first conv weight; the rest stay far from zero.
	m := exportModel(t, smallConfig(), func(sd map[string][]float32) {
		for k, w := range sd {
			if k != "1.weight" && k != "5.weight" {
				continue
			}
			for i := range w {
				w[i] = 0.3 + 0.1*float32(i%3)
				if k == "1.weight" && i%2 == 0 {
					w[i] = 0
				}
			}
		}
	})

	dense, _, err := InferenceCost(m, Options{})
	require.NoError(t, err)
	sparse, _, err := InferenceCost(m, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, "Conv", dense.Nodes[0].OpType)
	// conv 0: k=3, Cin=2, Cout=4, L=16
	assert.Equal(t, 384.0, dense.Nodes[0].Costs[macKey])
	assert.Equal(t, 192.0, sparse.Nodes[0].Costs[macKey])
	assert.Equal(t, 12.0, sparse.Nodes[0].Costs["mem_w_INT8"])
	assert.Equal(t, dense.Nodes[1].Costs, sparse.Nodes[1].Costs)
	assert.Less(t, sparse.TotalBOPs, dense.TotalBOPs)
}

func TestReport_JSON(t *testing.T) {
	m := exportModel(t, smallConfig(), nil)
	r, _, err := InferenceCost(m, Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	for _, key := range []string{"total_bops", "total_macs", "total_mem_w_bits", "total_mem_w_elems", "total_mem_o_bits", "total_mem_o_elems", "unsupported", macKey} {
		assert.Contains(t, decoded, key)
	}

	path := filepath.Join(t.TempDir(), "cost.json")
	require.NoError(t, r.WriteFile(path))
	bops, wbits, err := ReadTotals(path)
	require.NoError(t, err)
	assert.Equal(t, r.TotalBOPs, bops)
	assert.Equal(t, r.TotalMemWBits, wbits)
}

func TestReadTotals_Missing(t *testing.T) {
	_, _, err := ReadTotals(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestBitWidth(t *testing.T) {
	tests := []struct {
		dt   string
		want int
	}{
		{"INT8", 8},
		{"UINT4", 4},
		{"SCALEDINT<8>", 8},
		{"SCALEDINT<32>", 32},
		{"BIPOLAR", 1},
		{"TERNARY", 2},
		{"FLOAT32", 32},
	}
	for _, tt := range tests {
		t.Run(tt.dt, func(t *testing.T) {
			got, err := BitWidth(tt.dt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := BitWidth("DOUBLE")
	assert.ErrorIs(t, err, ErrUnknownDataType)
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 1.0, Score(BaselineBOPs, BaselineWeightBits), 1e-12)
	assert.InDelta(t, 0.5, Score(0, BaselineWeightBits), 1e-12)
	assert.InDelta(t, 1.0208787088, Score(823328768, 1272832), 1e-9)

	half := Baseline{BOPs: 2 * BaselineBOPs, WeightBits: 2 * BaselineWeightBits}
	assert.InDelta(t, 0.5, half.Score(BaselineBOPs, BaselineWeightBits), 1e-12)
}

func TestInferenceCost_NoGraph(t *testing.T) {
	_, _, err := InferenceCost(&onnx.ModelProto{}, Options{})
	assert.Error(t, err)
}
