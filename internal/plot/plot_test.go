package plot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/radioml/internal/eval"
	"github.com/born-ml/radioml/internal/plot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSaveReport(t *testing.T) {
	p := &eval.Predictions{
		Classes:   3,
		True:      []int{0, 1, 2, 0, 1, 2},
		Predicted: []int{0, 1, 1, 0, 2, 2},
		SNRs:      []int{-4, -4, -4, 0, 0, 0},
	}
	r, err := eval.NewReport(p, []string{"BPSK", "QPSK", "8PSK"}, []int{-4, 0, 4})
	require.NoError(t, err)

	dir := t.TempDir()
	paths, err := plot.SaveReport(dir, r)
	require.NoError(t, err)
	require.Len(t, paths, 3+2)
	for _, path := range paths {
		nonEmpty(t, path)
	}
	assert.Equal(t, filepath.Join(dir, plot.ConfusionFile), paths[0])
	assert.Equal(t, []string{
		filepath.Join(dir, "confusion_snr_-4.png"),
		filepath.Join(dir, "confusion_snr_0.png"),
	}, paths[3:])
	assert.NoFileExists(t, filepath.Join(dir, plot.ConfusionSNRFile(4)))
}

func TestConfusionHeatmapValidation(t *testing.T) {
	dir := t.TempDir()
	err := plot.ConfusionHeatmap(filepath.Join(dir, "c.png"), "", nil, nil)
	require.ErrorIs(t, err, plot.ErrEmpty)

	err = plot.ConfusionHeatmap(filepath.Join(dir, "c.png"), "", []string{"a"}, [][]float64{{1, 0}, {0, 1}})
	require.Error(t, err)
}

func TestAccuracyVsSNRValidation(t *testing.T) {
	dir := t.TempDir()
	require.ErrorIs(t, plot.AccuracyVsSNR(filepath.Join(dir, "a.png"), "", nil, nil), plot.ErrEmpty)
	require.Error(t, plot.AccuracyVsSNR(filepath.Join(dir, "a.png"), "", []int{0, 2}, []float64{0.5}))

	path := filepath.Join(dir, "a.svg")
	require.NoError(t, plot.AccuracyVsSNR(path, "acc", []int{0, 2}, []float64{0.5, 0.75}))
	nonEmpty(t, path)
}
