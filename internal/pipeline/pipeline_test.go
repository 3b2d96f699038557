package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/radioml/internal/backend/cpu"
	"github.com/born-ml/radioml/internal/config"
	"github.com/born-ml/radioml/internal/cost"
	"github.com/born-ml/radioml/internal/dataset"
	"github.com/born-ml/radioml/internal/model"
	"github.com/born-ml/radioml/internal/onnx"
	"github.com/born-ml/radioml/internal/plot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.DatasetDir = filepath.Join(root, "data")
	cfg.Checkpoint = filepath.Join(root, "model.safetensors")
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.Device = "cpu"
	cfg.BatchSize = 16
	cfg.Split.SNRs = 2
	cfg.Split.FramesPerGroup = 10
	cfg.Model.FiltersConv = 4
	cfg.Model.FiltersDense = 8
	cfg.Model.ConvBlocks = 2
	cfg.Model.FrameLength = 16

	require.NoError(t, os.MkdirAll(cfg.DatasetDir, 0o750))
	require.NoError(t, dataset.WriteSynthetic(cfg.DatasetDir, cfg.Split, cfg.Model.FrameLength))

	seq, err := model.NewVGG10(cfg.Model, cpu.New())
	require.NoError(t, err)
	require.NoError(t, seq.LoadStateDict(model.RandomStateDict(seq, 11)))
	require.NoError(t, model.Save(cfg.Checkpoint, seq, nil))
	return cfg
}

func TestRun_WritesArtifacts(t *testing.T) {
	cfg := fixture(t)

	summary, err := Run(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "cpu", summary.Device)
	assert.Equal(t, 24*2*1, summary.TestFrames)
	assert.Equal(t, 24*2*9, summary.TrainFrames)
	assert.GreaterOrEqual(t, summary.Accuracy, 0.0)
	assert.LessOrEqual(t, summary.Accuracy, 1.0)
	assert.Positive(t, summary.BOPs)
	assert.Positive(t, summary.WeightBits)
	assert.InDelta(t, cost.Score(summary.BOPs, summary.WeightBits), summary.Score, 1e-12)
	assert.Len(t, summary.CheckpointChecksum, 64)

	for _, name := range []string{
		MetricsFile, SummaryFile,
		plot.ConfusionFile, plot.AccuracyFile, plot.ClassAccuracyFile,
		cfg.ExportFile, cfg.FinalFile, cfg.CostFile,
	} {
		path := filepath.Join(cfg.OutputDir, name)
		assert.FileExists(t, path)
		assert.Contains(t, summary.Artifacts, path)
	}
	for _, snr := range dataset.SNRLevels[:cfg.Split.SNRs] {
		assert.FileExists(t, filepath.Join(cfg.OutputDir, plot.ConfusionSNRFile(snr)))
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, SummaryFile))
	require.NoError(t, err)
	var decoded Summary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, summary.RunID, decoded.RunID)
	assert.Equal(t, summary.Score, decoded.Score)

	bops, wbits, err := cost.ReadTotals(filepath.Join(cfg.OutputDir, cfg.CostFile))
	require.NoError(t, err)
	assert.Equal(t, summary.BOPs, bops)
	assert.Equal(t, summary.WeightBits, wbits)

	exported, err := onnx.ParseFile(filepath.Join(cfg.OutputDir, cfg.ExportFile))
	require.NoError(t, err)
	assert.Equal(t, "Quant", exported.Graph.Nodes[0].OpType)
	assert.Contains(t, exported.MetadataProps, onnx.StringStringEntry{Key: "run_id", Value: summary.RunID})
}

func TestRun_NoPlots(t *testing.T) {
	cfg := fixture(t)
	cfg.Plots = false

	_, err := Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, plot.ConfusionFile))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, MetricsFile))
}

func TestRun_Cancelled(t *testing.T) {
	cfg := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, cfg, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, SummaryFile))
}

func TestNew_MissingCheckpoint(t *testing.T) {
	cfg := fixture(t)
	cfg.Checkpoint = filepath.Join(t.TempDir(), "missing.safetensors")

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := fixture(t)
	cfg.BatchSize = 0

	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestEvaluate_DatasetMismatch(t *testing.T) {
	cfg := fixture(t)
	cfg.Split.FramesPerGroup = 20

	p, err := New(cfg, nil)
	require.NoError(t, err)
	defer p.Close()

	_, _, err = p.Evaluate(context.Background())
	assert.ErrorIs(t, err, dataset.ErrInvalidSplit)
}

func TestWriteSplit(t *testing.T) {
	cfg := fixture(t)
	path := filepath.Join(t.TempDir(), SplitFile)

	part, err := WriteSplit(cfg, path)
	require.NoError(t, err)
	assert.Len(t, part.Test, 48)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded dataset.Partition
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, part.Test, decoded.Test)
	assert.Equal(t, part.Train, decoded.Train)
}
