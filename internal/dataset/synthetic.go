package dataset

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteSynthetic writes a small dataset to dir with the RadioML group
// layout: mods x snrs groups of framesPerGroup frames each. Sample s of
// frame i has I = i + s/1000 and Q = -I, so frames are distinguishable.
func WriteSynthetic(dir string, o SplitOptions, frameLen int) error {
	if o.Mods > len(Modulations) || o.SNRs > len(SNRLevels) {
		return fmt.Errorf("%w: %d mods x %d snrs exceeds the dataset layout", ErrInvalidSplit, o.Mods, o.SNRs)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	n := o.Total()
	classes := len(Modulations)
	x := make([]float32, n*frameLen*Channels)
	y := make([]int64, n*classes)
	z := make([]int64, n)
	for i := 0; i < n; i++ {
		mod, snr := o.Group(i)
		for s := 0; s < frameLen; s++ {
			v := float32(i) + float32(s)/1000
			off := (i*frameLen + s) * Channels
			x[off], x[off+1] = v, -v
		}
		y[i*classes+mod] = 1
		z[i] = int64(SNRLevels[snr])
	}

	if err := WriteNPY(filepath.Join(dir, FramesFile), []int{n, frameLen, Channels}, x); err != nil {
		return err
	}
	if err := WriteNPY(filepath.Join(dir, LabelsFile), []int{n, classes}, y); err != nil {
		return err
	}
	return WriteNPY(filepath.Join(dir, SNRFile), []int{n, 1}, z)
}
