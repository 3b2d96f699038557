package dataset

import (
	"fmt"

	"github.com/born-ml/radioml/internal/dataset/nprand"
	"github.com/born-ml/radioml/internal/parallel"
	"github.com/born-ml/radioml/internal/tensor"
)

// Batch is a group of frames ready for inference.
type Batch struct {
	X       *tensor.RawTensor // [B, 2, L] float32
	Labels  []int
	SNRs    []int
	Indices []int
}

// Size returns the number of frames in the batch.
func (b Batch) Size() int { return len(b.Indices) }

// BatchOption configures a BatchIterator.
type BatchOption func(*batchConfig)

type batchConfig struct {
	shuffle bool
	seed    uint32
	par     parallel.Config
}

// WithShuffle visits indices in a seeded random order.
func WithShuffle(seed uint32) BatchOption {
	return func(c *batchConfig) {
		c.shuffle = true
		c.seed = seed
	}
}

// WithParallel sets how frames of a batch are decoded.
func WithParallel(cfg parallel.Config) BatchOption {
	return func(c *batchConfig) { c.par = cfg }
}

// BatchIterator lazily assembles batches. Frames are read from the mapping
// only when their batch is requested.
//
// Example:
//
//	it, err := ds.Batches(part.Test, 256)
//	for it.Next() {
//		b := it.Batch()
//	}
//	if err := it.Err(); err != nil { ... }
type BatchIterator struct {
	d       *Dataset
	order   []int
	size    int
	pos     int
	current Batch
	err     error
	par     parallel.Config
}

// Batches returns an iterator over indices in batches of batchSize. The
// last batch may be smaller.
func (d *Dataset) Batches(indices []int, batchSize int, opts ...BatchOption) (*BatchIterator, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	cfg := batchConfig{par: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(&cfg)
	}
	for _, i := range indices {
		if i < 0 || i >= d.n {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, d.n)
		}
	}

	order := append([]int(nil), indices...)
	if cfg.shuffle {
		nprand.Shuffle(nprand.New(cfg.seed), order)
	}
	return &BatchIterator{d: d, order: order, size: batchSize, par: cfg.par}, nil
}

// NumBatches returns the total number of batches.
func (it *BatchIterator) NumBatches() int {
	return (len(it.order) + it.size - 1) / it.size
}

// Next advances to the next batch and reports whether there is one.
func (it *BatchIterator) Next() bool {
	if it.err != nil || it.pos >= len(it.order) {
		return false
	}
	end := min(it.pos+it.size, len(it.order))
	idx := it.order[it.pos:end]
	it.pos = end

	b, err := it.d.batch(idx, it.par)
	if err != nil {
		it.err = err
		return false
	}
	it.current = b
	return true
}

// Batch returns the batch produced by the last call to Next.
func (it *BatchIterator) Batch() Batch { return it.current }

// Err returns the first error encountered.
func (it *BatchIterator) Err() error { return it.err }

func (d *Dataset) batch(idx []int, par parallel.Config) (Batch, error) {
	x, err := tensor.NewRaw(tensor.Shape{len(idx), Channels, d.frameLen}, tensor.Float32, tensor.CPU)
	if err != nil {
		return Batch{}, err
	}
	data := x.AsFloat32()
	frame := Channels * d.frameLen
	parallel.For(len(idx), func(k int) {
		dst := data[k*frame : (k+1)*frame]
		d.readFrame(idx[k], dst[:d.frameLen], dst[d.frameLen:])
	}, par)

	b := Batch{
		X:       x,
		Labels:  make([]int, len(idx)),
		SNRs:    make([]int, len(idx)),
		Indices: append([]int(nil), idx...),
	}
	for k, i := range idx {
		b.Labels[k] = int(d.labels[i])
		b.SNRs[k] = int(d.snrs[i])
	}
	return b, nil
}
