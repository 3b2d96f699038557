// Package eval runs batch inference over a frame partition and turns the
// predictions into confusion matrices and accuracy curves.
package eval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/born-ml/radioml/internal/dataset"
	"github.com/born-ml/radioml/internal/tensor"
	"go.uber.org/zap"
)

// ErrForward is returned when the model panics on a batch.
var ErrForward = errors.New("forward pass failed")

// DefaultBatchSize matches the batch size of the published evaluation.
const DefaultBatchSize = 1024

// Classifier maps a [B, C, L] batch to [B, classes] logits.
type Classifier[B tensor.Backend] interface {
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
}

// Source provides batches for a set of frame indices.
type Source interface {
	Batches(indices []int, batchSize int, opts ...dataset.BatchOption) (*dataset.BatchIterator, error)
}

// Options configure Evaluate.
type Options struct {
	BatchSize  int
	Classes    int
	KeepLogits bool
	// LogEvery logs a throughput snapshot every LogEvery batches. Zero logs
	// only the final summary.
	LogEvery  int
	Logger    *zap.Logger
	BatchOpts []dataset.BatchOption
}

// Predictions accumulates per-frame results in evaluation order.
type Predictions struct {
	Classes   int         `json:"classes"`
	True      []int       `json:"true"`
	Predicted []int       `json:"predicted"`
	SNRs      []int       `json:"snrs"`
	Indices   []int       `json:"indices"`
	Logits    [][]float32 `json:"logits,omitempty"`
}

// Len returns the number of predictions.
func (p *Predictions) Len() int { return len(p.True) }

// Accuracy returns the fraction of correct predictions.
func (p *Predictions) Accuracy() float64 {
	if len(p.True) == 0 {
		return 0
	}
	correct := 0
	for i, t := range p.True {
		if p.Predicted[i] == t {
			correct++
		}
	}
	return float64(correct) / float64(len(p.True))
}

// Evaluate runs model over the frames at indices in batches and collects
// predictions. The model is only read. Cancellation is checked between
// batches.
func Evaluate[B tensor.Backend](
	ctx context.Context,
	backend B,
	model Classifier[B],
	src Source,
	indices []int,
	opts Options,
) (*Predictions, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Classes <= 0 {
		opts.Classes = len(dataset.Modulations)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	it, err := src.Batches(indices, opts.BatchSize, opts.BatchOpts...)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}

	preds := &Predictions{
		Classes:   opts.Classes,
		True:      make([]int, 0, len(indices)),
		Predicted: make([]int, 0, len(indices)),
		SNRs:      make([]int, 0, len(indices)),
		Indices:   make([]int, 0, len(indices)),
	}

	var window, total Window
	start := time.Now()
	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dataStart := time.Now()
		if !it.Next() {
			break
		}
		batch := it.Batch()
		dataTime := time.Since(dataStart)

		computeStart := time.Now()
		logits, err := forward(backend, model, batch)
		if err != nil {
			return nil, fmt.Errorf("eval: batch %d: %w", step, err)
		}
		computeTime := time.Since(computeStart)

		correct, err := preds.add(batch, logits.ArgmaxRows(), logits.Data(), logits.Shape()[1], opts.KeepLogits)
		if err != nil {
			return nil, fmt.Errorf("eval: batch %d: %w", step, err)
		}
		window.Record(batch.Size(), correct, dataTime, computeTime)
		total.Record(batch.Size(), correct, dataTime, computeTime)

		if opts.LogEvery > 0 && step%opts.LogEvery == 0 {
			snap := window.Snapshot()
			logger.Info("eval progress",
				zap.Int("batch", step),
				zap.Int("frames_done", preds.Len()),
				zap.Float64("frames_per_sec", snap.FramesPerSec),
				zap.Float64("data_ms", snap.AvgDataMS),
				zap.Float64("compute_ms", snap.AvgComputeMS),
				zap.Float64("batch_accuracy", snap.Accuracy),
			)
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}

	snap := total.Snapshot()
	logger.Info("eval done",
		zap.Int("frames", preds.Len()),
		zap.Float64("accuracy", preds.Accuracy()),
		zap.Float64("frames_per_sec", snap.FramesPerSec),
		zap.Duration("elapsed", time.Since(start)),
	)
	return preds, nil
}

// forward runs one batch and converts a layer panic into an error.
func forward[B tensor.Backend](backend B, model Classifier[B], batch dataset.Batch) (out *tensor.Tensor[float32, B], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrForward, r)
		}
	}()
	x := tensor.New[float32](batch.X, backend)
	out = model.Forward(x)
	if shape := out.Shape(); len(shape) != 2 || shape[0] != batch.Size() {
		return nil, fmt.Errorf("%w: logits shape %v for batch of %d", ErrForward, shape, batch.Size())
	}
	return out, nil
}

// add appends a batch. data holds the [B, k] logits row-major.
func (p *Predictions) add(batch dataset.Batch, predicted []int, data []float32, k int, keep bool) (int, error) {
	if k != p.Classes {
		return 0, fmt.Errorf("%w: model produced %d logits, want %d", ErrForward, k, p.Classes)
	}
	correct := 0
	for i, pred := range predicted {
		if pred == batch.Labels[i] {
			correct++
		}
		p.True = append(p.True, batch.Labels[i])
		p.Predicted = append(p.Predicted, pred)
		p.SNRs = append(p.SNRs, batch.SNRs[i])
		p.Indices = append(p.Indices, batch.Indices[i])
		if keep {
			p.Logits = append(p.Logits, append([]float32(nil), data[i*k:(i+1)*k]...))
		}
	}
	return correct, nil
}
