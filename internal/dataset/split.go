package dataset

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/radioml/internal/dataset/nprand"
)

// ErrInvalidSplit is returned for inconsistent split options.
var ErrInvalidSplit = errors.New("invalid split options")

// DefaultSplitSeed is the seed the published test partition was drawn with.
const DefaultSplitSeed = 2018

// SplitOptions control how frames are partitioned. Frames are stored
// grouped by modulation, then SNR, with FramesPerGroup frames per group.
type SplitOptions struct {
	Seed             uint32  `yaml:"seed" json:"seed"`
	Mods             int     `yaml:"mods" json:"mods"`
	SNRs             int     `yaml:"snrs" json:"snrs"`
	FramesPerGroup   int     `yaml:"frames_per_group" json:"frames_per_group"`
	TestFraction     float64 `yaml:"test_fraction" json:"test_fraction"`
	MinTrainSNRIndex int     `yaml:"min_train_snr_index" json:"min_train_snr_index"`
}

// DefaultSplitOptions returns the RadioML 2018.01A layout: 24 modulations,
// 26 SNR levels, 4096 frames per group, 10% test.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{
		Seed:           DefaultSplitSeed,
		Mods:           len(Modulations),
		SNRs:           len(SNRLevels),
		FramesPerGroup: 4096,
		TestFraction:   0.1,
	}
}

// Validate checks the options.
func (o SplitOptions) Validate() error {
	switch {
	case o.Mods <= 0 || o.SNRs <= 0 || o.FramesPerGroup <= 0:
		return fmt.Errorf("%w: group layout %dx%dx%d", ErrInvalidSplit, o.Mods, o.SNRs, o.FramesPerGroup)
	case o.TestFraction <= 0 || o.TestFraction >= 1:
		return fmt.Errorf("%w: test fraction %v not in (0, 1)", ErrInvalidSplit, o.TestFraction)
	case o.MinTrainSNRIndex < 0 || o.MinTrainSNRIndex >= o.SNRs:
		return fmt.Errorf("%w: min train snr index %d not in [0, %d)", ErrInvalidSplit, o.MinTrainSNRIndex, o.SNRs)
	}
	return nil
}

// Total returns the number of frames the layout covers.
func (o SplitOptions) Total() int {
	return o.Mods * o.SNRs * o.FramesPerGroup
}

// TestPerGroup returns the number of test frames drawn from each group.
func (o SplitOptions) TestPerGroup() int {
	return int(math.Ceil(o.TestFraction * float64(o.FramesPerGroup)))
}

// Group returns the modulation and SNR index of frame index i.
func (o SplitOptions) Group(i int) (mod, snrIndex int) {
	g := i / o.FramesPerGroup
	return g / o.SNRs, g % o.SNRs
}

// Partition holds disjoint train and test frame indices.
type Partition struct {
	Train []int `json:"train"`
	Test  []int `json:"test"`
}

// Split partitions the frame indices. For each (modulation, SNR) group the
// group's indices are shuffled with a NumPy-compatible RandomState seeded
// once with o.Seed; the first TestPerGroup go to test and the rest to
// train. Groups below MinTrainSNRIndex contribute nothing to train, but the
// random stream is still consumed so the test partition does not depend on
// the filter.
func Split(o SplitOptions) (Partition, error) {
	if err := o.Validate(); err != nil {
		return Partition{}, err
	}

	nTest := o.TestPerGroup()
	groups := o.Mods * o.SNRs
	p := Partition{
		Test:  make([]int, 0, groups*nTest),
		Train: make([]int, 0, groups*(o.FramesPerGroup-nTest)),
	}

	rng := nprand.New(o.Seed)
	idx := make([]int, o.FramesPerGroup)
	for mod := 0; mod < o.Mods; mod++ {
		for snr := 0; snr < o.SNRs; snr++ {
			start := o.FramesPerGroup * (o.SNRs*mod + snr)
			for k := range idx {
				idx[k] = start + k
			}
			nprand.Shuffle(rng, idx)

			p.Test = append(p.Test, idx[:nTest]...)
			if snr >= o.MinTrainSNRIndex {
				p.Train = append(p.Train, idx[nTest:]...)
			}
		}
	}
	return p, nil
}

// Split partitions this dataset, checking that its size matches the layout.
func (d *Dataset) Split(o SplitOptions) (Partition, error) {
	if o.Total() != d.n {
		return Partition{}, fmt.Errorf("%w: layout covers %d frames, dataset has %d", ErrInvalidSplit, o.Total(), d.n)
	}
	return Split(o)
}
