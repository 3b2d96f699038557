// Package pipeline wires the evaluation stages together: dataset split,
// model loading, test-set evaluation, metrics and plots, QONNX export and
// inference cost scoring. Every stage writes its artifacts into the output
// directory and the first failing stage aborts the run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/born-ml/radioml/internal/config"
	"github.com/born-ml/radioml/internal/cost"
	"github.com/born-ml/radioml/internal/dataset"
	"github.com/born-ml/radioml/internal/device"
	"github.com/born-ml/radioml/internal/eval"
	"github.com/born-ml/radioml/internal/model"
	"github.com/born-ml/radioml/internal/nn"
	"github.com/born-ml/radioml/internal/onnx"
	"github.com/born-ml/radioml/internal/parallel"
	"github.com/born-ml/radioml/internal/plot"
	"github.com/born-ml/radioml/internal/serialization"
	"github.com/born-ml/radioml/internal/tensor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Artifact file names.
const (
	MetricsFile = "metrics.json"
	SummaryFile = "summary.json"
	SplitFile   = "split.json"
)

// Summary is written to SummaryFile at the end of a run.
type Summary struct {
	RunID              string    `json:"run_id"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	Device             string    `json:"device"`
	Checkpoint         string    `json:"checkpoint"`
	CheckpointChecksum string    `json:"checkpoint_sha256"`
	TrainFrames        int       `json:"train_frames"`
	TestFrames         int       `json:"test_frames"`
	Accuracy           float64   `json:"accuracy"`
	BOPs               float64   `json:"bops"`
	WeightBits         float64   `json:"w_bits"`
	Score              float64   `json:"score"`
	Artifacts          []string  `json:"artifacts"`
}

// Pipeline holds the state shared by the stages of one run.
type Pipeline struct {
	cfg    *config.Config
	logger *zap.Logger
	runID  string

	sel   *device.Selection
	model *nn.Sequential[tensor.Backend]

	artifacts []string
}

// New validates cfg, prepares the output directory, selects the device
// and loads the checkpoint. A nil logger disables logging.
func New(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	p := &Pipeline{
		cfg:    cfg,
		logger: logger.With(zap.String("run_id", runID)),
		runID:  runID,
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	kind, err := device.ParseKind(cfg.Device)
	if err != nil {
		return nil, err
	}
	sel, err := device.Select(kind, p.parallelConfig())
	if err != nil {
		return nil, err
	}
	p.sel = sel
	p.logger.Info("device selected",
		zap.String("device", string(sel.Kind)),
		zap.String("backend", sel.Backend.Name()),
		zap.String("cpu", sel.CPU.Brand),
		zap.Int("cores", sel.CPU.LogicalCores),
	)

	m, err := model.Load(cfg.Checkpoint, cfg.Model, sel.Backend)
	if err != nil {
		sel.Close()
		return nil, fmt.Errorf("load model: %w", err)
	}
	p.model = m
	p.logger.Info("model loaded",
		zap.String("checkpoint", cfg.Checkpoint),
		zap.Int("modules", m.Len()),
		zap.Int("parameters", len(m.StateDict())),
	)
	return p, nil
}

// RunID returns the id stamped on logs and the summary.
func (p *Pipeline) RunID() string { return p.runID }

// Model returns the loaded classifier.
func (p *Pipeline) Model() *nn.Sequential[tensor.Backend] { return p.model }

// Close releases the device.
func (p *Pipeline) Close() {
	if p.sel != nil {
		p.sel.Close()
	}
}

func (p *Pipeline) parallelConfig() parallel.Config {
	return parallel.WithWorkers(p.cfg.Workers)
}

func (p *Pipeline) path(name string) string {
	return filepath.Join(p.cfg.OutputDir, name)
}

func (p *Pipeline) record(paths ...string) {
	p.artifacts = append(p.artifacts, paths...)
}

// Evaluate opens the dataset, draws the test partition, classifies it and
// writes MetricsFile and, when enabled, the plots.
func (p *Pipeline) Evaluate(ctx context.Context) (*eval.Report, *dataset.Partition, error) {
	ds, err := dataset.Open(p.cfg.DatasetDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = ds.Close() }()

	part, err := ds.Split(p.cfg.Split)
	if err != nil {
		return nil, nil, fmt.Errorf("split dataset: %w", err)
	}
	p.logger.Info("dataset split",
		zap.Int("frames", ds.Len()),
		zap.Int("frame_length", ds.FrameLength()),
		zap.Int("train", len(part.Train)),
		zap.Int("test", len(part.Test)),
	)

	preds, err := eval.Evaluate[tensor.Backend](ctx, p.sel.Backend, p.model, ds, part.Test, eval.Options{
		BatchSize: p.cfg.BatchSize,
		Classes:   p.cfg.Model.Classes,
		LogEvery:  p.cfg.LogEvery,
		Logger:    p.logger,
		BatchOpts: []dataset.BatchOption{dataset.WithParallel(p.parallelConfig())},
	})
	if err != nil {
		return nil, nil, err
	}

	report, err := eval.NewReport(preds, ds.Classes(), ds.SNRs())
	if err != nil {
		return nil, nil, err
	}
	if err := report.WriteFile(p.path(MetricsFile)); err != nil {
		return nil, nil, err
	}
	p.record(p.path(MetricsFile))
	p.logger.Info("evaluation done",
		zap.Int("frames", report.Count),
		zap.Float64("accuracy", report.Accuracy),
	)

	if p.cfg.Plots {
		paths, err := plot.SaveReport(p.cfg.OutputDir, report)
		if err != nil {
			return nil, nil, fmt.Errorf("plots: %w", err)
		}
		p.record(paths...)
		p.logger.Info("plots written", zap.Strings("files", paths))
	}
	return report, &part, nil
}

// Export writes the classifier as a QONNX model with batch size 1.
func (p *Pipeline) Export() (*onnx.ModelProto, error) {
	opts := onnx.DefaultExportOptions()
	opts.Metadata = map[string]string{
		"run_id":     p.runID,
		"checkpoint": filepath.Base(p.cfg.Checkpoint),
	}
	m, err := onnx.Export(p.model, p.cfg.Model.InputShape(1), opts)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	path := p.path(p.cfg.ExportFile)
	if err := onnx.WriteFile(path, m); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	p.record(path)
	p.logger.Info("model exported",
		zap.String("file", path),
		zap.Int("nodes", len(m.Graph.Nodes)),
		zap.Int("initializers", len(m.Graph.Initializers)),
	)
	return m, nil
}

// Cost analyzes an exported model and writes the annotated model and the
// JSON cost report.
func (p *Pipeline) Cost(m *onnx.ModelProto) (*cost.Report, error) {
	opts := cost.DefaultOptions()
	opts.DiscountSparsity = p.cfg.DiscountSparsity
	report, annotated, err := cost.InferenceCost(m, opts)
	if err != nil {
		return nil, err
	}

	final := p.path(p.cfg.FinalFile)
	if err := onnx.WriteFile(final, annotated); err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	costPath := p.path(p.cfg.CostFile)
	if err := report.WriteFile(costPath); err != nil {
		return nil, err
	}
	p.record(final, costPath)

	p.logger.Info("inference cost",
		zap.Float64("bops", report.TotalBOPs),
		zap.Float64("w_bits", report.TotalMemWBits),
		zap.Float64("macs", report.TotalMACs),
		zap.Strings("unsupported", report.Unsupported),
		zap.Float64("score", p.cfg.Baseline.Score(report.TotalBOPs, report.TotalMemWBits)),
	)
	return report, nil
}

// Run executes every stage and writes SummaryFile.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Summary, error) {
	started := time.Now().UTC()
	p, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	report, part, err := p.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exported, err := p.Export()
	if err != nil {
		return nil, err
	}
	costReport, err := p.Cost(exported)
	if err != nil {
		return nil, err
	}

	checksum, err := serialization.FileChecksum(cfg.Checkpoint)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:              p.runID,
		StartedAt:          started,
		Device:             string(p.sel.Kind),
		Checkpoint:         cfg.Checkpoint,
		CheckpointChecksum: checksum,
		TrainFrames:        len(part.Train),
		TestFrames:         len(part.Test),
		Accuracy:           report.Accuracy,
		BOPs:               costReport.TotalBOPs,
		WeightBits:         costReport.TotalMemWBits,
		Score:              cfg.Baseline.Score(costReport.TotalBOPs, costReport.TotalMemWBits),
	}
	summaryPath := p.path(SummaryFile)
	p.record(summaryPath)
	summary.Artifacts = p.artifacts
	summary.FinishedAt = time.Now().UTC()
	if err := writeJSON(summaryPath, summary); err != nil {
		return nil, err
	}

	p.logger.Info("run complete",
		zap.Float64("accuracy", summary.Accuracy),
		zap.Float64("score", summary.Score),
		zap.Duration("elapsed", summary.FinishedAt.Sub(started)),
	)
	return summary, nil
}

// WriteSplit stores the partition of the configured dataset as JSON.
func WriteSplit(cfg *config.Config, path string) (*dataset.Partition, error) {
	ds, err := dataset.Open(cfg.DatasetDir)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = ds.Close() }()

	part, err := ds.Split(cfg.Split)
	if err != nil {
		return nil, err
	}
	if err := writeJSON(path, part); err != nil {
		return nil, err
	}
	return &part, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
