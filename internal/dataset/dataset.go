// Package dataset reads the RadioML 2018.01A dataset from NPY files and
// derives the fixed train/test partitions used for evaluation.
package dataset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"
)

// File names inside a dataset directory.
const (
	FramesFile = "X.npy"
	LabelsFile = "Y.npy"
	SNRFile    = "Z.npy"
)

// Channels is the number of real channels per sample (I and Q).
const Channels = 2

var (
	// ErrIndexOutOfRange is returned by Item for an invalid frame index.
	ErrIndexOutOfRange = errors.New("frame index out of range")
	// ErrShape is returned when the three arrays disagree on shape.
	ErrShape = errors.New("dataset shape mismatch")
)

// Modulations lists the 24 RadioML 2018.01A classes in label order.
var Modulations = []string{
	"OOK", "4ASK", "8ASK", "BPSK", "QPSK", "8PSK", "16PSK", "32PSK",
	"16APSK", "32APSK", "64APSK", "128APSK", "16QAM", "32QAM", "64QAM",
	"128QAM", "256QAM", "AM-SSB-WC", "AM-SSB-SC", "AM-DSB-WC", "AM-DSB-SC",
	"FM", "GMSK", "OQPSK",
}

// SNRLevels lists the dataset SNR levels in dB, in group order.
var SNRLevels = func() []int {
	snrs := make([]int, 0, 26)
	for s := -20; s <= 30; s += 2 {
		snrs = append(snrs, s)
	}
	return snrs
}()

// Frame holds one frame channels-first: Frame[0] is I, Frame[1] is Q.
type Frame [Channels][]float32

// Dataset is a read-only view over a memory-mapped RadioML dataset.
//
// X.npy holds float32 frames shaped [N, L, 2], Y.npy one-hot labels shaped
// [N, classes] and Z.npy the SNR in dB shaped [N, 1]. Labels and SNRs are
// decoded once at open time; frames stay in the mapping.
type Dataset struct {
	x        *npyArray
	y        *npyArray
	z        *npyArray
	n        int
	frameLen int
	labels   []uint8
	snrs     []int8
}

// Open opens the dataset in dir. A missing file yields an error wrapping
// fs.ErrNotExist.
func Open(dir string) (*Dataset, error) {
	x, err := openNPY(filepath.Join(dir, FramesFile))
	if err != nil {
		return nil, fmt.Errorf("open frames: %w", err)
	}
	y, err := openNPY(filepath.Join(dir, LabelsFile))
	if err != nil {
		_ = x.close()
		return nil, fmt.Errorf("open labels: %w", err)
	}
	z, err := openNPY(filepath.Join(dir, SNRFile))
	if err != nil {
		_ = x.close()
		_ = y.close()
		return nil, fmt.Errorf("open snrs: %w", err)
	}

	d := &Dataset{x: x, y: y, z: z}
	if err := d.init(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dataset) init() error {
	if d.x.descr != "<f4" {
		return fmt.Errorf("%w: frames must be <f4, got %s", ErrUnsupportedLayout, d.x.descr)
	}
	if len(d.x.shape) != 3 || d.x.shape[2] != Channels {
		return fmt.Errorf("%w: frames shape %v, want [N, L, %d]", ErrShape, d.x.shape, Channels)
	}
	d.n = d.x.shape[0]
	d.frameLen = d.x.shape[1]

	if len(d.y.shape) != 2 || d.y.shape[0] != d.n || d.y.shape[1] != len(Modulations) {
		return fmt.Errorf("%w: labels shape %v, want [%d, %d]", ErrShape, d.y.shape, d.n, len(Modulations))
	}
	if d.z.len() != d.n {
		return fmt.Errorf("%w: snr shape %v, want %d entries", ErrShape, d.z.shape, d.n)
	}

	classes := len(Modulations)
	d.labels = make([]uint8, d.n)
	d.snrs = make([]int8, d.n)
	for i := 0; i < d.n; i++ {
		best, bestVal := 0, math.Inf(-1)
		for c := 0; c < classes; c++ {
			if v := d.y.at(i*classes + c); v > bestVal {
				best, bestVal = c, v
			}
		}
		d.labels[i] = uint8(best) //nolint:gosec // G115: best < 24

		snr := d.z.at(i)
		if snr < math.MinInt8 || snr > math.MaxInt8 {
			return fmt.Errorf("%w: snr %v at index %d", ErrShape, snr, i)
		}
		d.snrs[i] = int8(snr)
	}
	return nil
}

// Len returns the number of frames.
func (d *Dataset) Len() int { return d.n }

// FrameLength returns the number of complex samples per frame.
func (d *Dataset) FrameLength() int { return d.frameLen }

// Classes returns the modulation names in label order.
func (d *Dataset) Classes() []string { return Modulations }

// SNRs returns the SNR levels in dB.
func (d *Dataset) SNRs() []int { return SNRLevels }

// Label returns the class index of frame i without touching frame data.
func (d *Dataset) Label(i int) int { return int(d.labels[i]) }

// SNR returns the SNR in dB of frame i.
func (d *Dataset) SNR(i int) int { return int(d.snrs[i]) }

// Item returns frame i channels-first with its class index and SNR.
func (d *Dataset) Item(i int) (Frame, int, int, error) {
	var f Frame
	if i < 0 || i >= d.n {
		return f, 0, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, d.n)
	}
	f[0] = make([]float32, d.frameLen)
	f[1] = make([]float32, d.frameLen)
	d.readFrame(i, f[0], f[1])
	return f, int(d.labels[i]), int(d.snrs[i]), nil
}

// readFrame de-interleaves frame i into the I and Q destinations.
func (d *Dataset) readFrame(i int, iDst, qDst []float32) {
	stride := d.frameLen * Channels * 4
	raw := d.x.data[i*stride : (i+1)*stride]
	for s := 0; s < d.frameLen; s++ {
		iDst[s] = math.Float32frombits(binary.LittleEndian.Uint32(raw[s*8:]))
		qDst[s] = math.Float32frombits(binary.LittleEndian.Uint32(raw[s*8+4:]))
	}
}

// Close unmaps all files.
func (d *Dataset) Close() error {
	var errs []error
	for _, a := range []*npyArray{d.x, d.y, d.z} {
		if a != nil {
			errs = append(errs, a.close())
		}
	}
	return errors.Join(errs...)
}
