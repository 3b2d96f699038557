package eval

import "time"

// Window accumulates timing stats across multiple batches.
type Window struct {
	frames  int
	correct int
	data    time.Duration
	compute time.Duration
	steps   int
}

// Record adds a batch measurement to the window.
func (w *Window) Record(batchSize, correct int, dataTime, computeTime time.Duration) {
	w.frames += batchSize
	w.correct += correct
	w.data += dataTime
	w.compute += computeTime
	w.steps++
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Frames: w.frames}
	total := w.data + w.compute
	if total > 0 {
		snap.FramesPerSec = float64(w.frames) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}
	if w.frames > 0 {
		snap.Accuracy = float64(w.correct) / float64(w.frames)
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Frames       int
	FramesPerSec float64
	AvgDataMS    float64
	AvgComputeMS float64
	Accuracy     float64
}
