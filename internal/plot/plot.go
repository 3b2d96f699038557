// Package plot renders evaluation results as PNG/SVG/PDF figures.
package plot

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/born-ml/radioml/internal/eval"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Output file names written by SaveReport.
const (
	ConfusionFile      = "confusion_matrix.png"
	AccuracyFile       = "accuracy_vs_snr.png"
	ClassAccuracyFile  = "class_accuracy_vs_snr.png"
	confusionSizeInch  = 10
	lineWidthInch      = 8
	lineHeightInch     = 5
	heatmapPaletteSize = 64
)

// ErrEmpty is returned when there is nothing to plot.
var ErrEmpty = errors.New("nothing to plot")

// matrixGrid adapts a square matrix to plotter.GridXYZ. Column c is the
// predicted class, row r the true class.
type matrixGrid struct {
	m [][]float64
}

func (g matrixGrid) Dims() (c, r int)   { return len(g.m), len(g.m) }
func (g matrixGrid) Z(c, r int) float64 { return g.m[r][c] }
func (g matrixGrid) X(c int) float64    { return float64(c) }
func (g matrixGrid) Y(r int) float64    { return float64(r) }

// ConfusionHeatmap saves a row-normalized confusion matrix to path. The
// format follows the file extension.
func ConfusionHeatmap(path, title string, classes []string, normalized [][]float64) error {
	if len(normalized) == 0 {
		return ErrEmpty
	}
	if len(classes) != len(normalized) {
		return fmt.Errorf("plot: %d class names for a %dx%d matrix", len(classes), len(normalized), len(normalized))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Predicted label"
	p.Y.Label.Text = "True label"

	hm := plotter.NewHeatMap(matrixGrid{m: normalized}, palette.Heat(heatmapPaletteSize, 1))
	hm.Min, hm.Max = 0, 1
	p.Add(hm)
	p.NominalX(classes...)
	p.NominalY(classes...)
	p.X.Tick.Label.Rotation = 1.2
	p.X.Tick.Label.XAlign = -1

	if err := p.Save(confusionSizeInch*vg.Inch, confusionSizeInch*vg.Inch, path); err != nil {
		return fmt.Errorf("plot: save %s: %w", path, err)
	}
	return nil
}

// AccuracyVsSNR saves an accuracy-vs-SNR curve to path.
func AccuracyVsSNR(path, title string, snrs []int, accuracy []float64) error {
	pts, err := snrPoints(snrs, accuracy)
	if err != nil {
		return err
	}

	p := newSNRPlot(title)
	if err := plotutil.AddLinePoints(p, "accuracy", pts); err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	return save(p, path)
}

// ClassAccuracyVsSNR saves one accuracy-vs-SNR curve per class.
// accuracy is indexed [class][snr].
func ClassAccuracyVsSNR(path, title string, classes []string, snrs []int, accuracy [][]float64) error {
	if len(classes) != len(accuracy) {
		return fmt.Errorf("plot: %d class names for %d curves", len(classes), len(accuracy))
	}
	if len(classes) == 0 {
		return ErrEmpty
	}

	p := newSNRPlot(title)
	lines := make([]any, 0, 2*len(classes))
	for c, name := range classes {
		pts, err := snrPoints(snrs, accuracy[c])
		if err != nil {
			return err
		}
		lines = append(lines, name, pts)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	p.Legend.Left = true
	return save(p, path)
}

// ConfusionSNRFile names the confusion matrix figure of one SNR level.
func ConfusionSNRFile(snr int) string {
	return fmt.Sprintf("confusion_snr_%d.png", snr)
}

// SaveReport writes the three standard figures for r into dir, followed by
// one confusion matrix per SNR level that has predictions, and returns
// their paths.
func SaveReport(dir string, r *eval.Report) ([]string, error) {
	paths := make([]string, 0, 3+len(r.PerSNR))
	paths = append(paths,
		filepath.Join(dir, ConfusionFile),
		filepath.Join(dir, AccuracyFile),
		filepath.Join(dir, ClassAccuracyFile),
	)
	title := fmt.Sprintf("Confusion matrix (accuracy %.2f%%)", 100*r.Accuracy)
	if err := ConfusionHeatmap(paths[0], title, r.Classes, r.Confusion.Normalized()); err != nil {
		return nil, err
	}
	if err := AccuracyVsSNR(paths[1], "Accuracy vs SNR", r.SNRs(), r.AccuracyBySNR()); err != nil {
		return nil, err
	}
	if err := ClassAccuracyVsSNR(paths[2], "Per-class accuracy vs SNR", r.Classes, r.SNRs(), r.ClassAccuracyBySNR()); err != nil {
		return nil, err
	}
	for _, s := range r.PerSNR {
		if s.Count == 0 {
			continue
		}
		path := filepath.Join(dir, ConfusionSNRFile(s.SNR))
		title := fmt.Sprintf("Confusion matrix at %d dB (accuracy %.2f%%, %d frames)", s.SNR, 100*s.Accuracy, s.Count)
		if err := ConfusionHeatmap(path, title, r.Classes, s.Confusion.Normalized()); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func newSNRPlot(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "SNR [dB]"
	p.Y.Label.Text = "Classification accuracy"
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())
	return p
}

func snrPoints(snrs []int, values []float64) (plotter.XYs, error) {
	if len(snrs) == 0 {
		return nil, ErrEmpty
	}
	if len(snrs) != len(values) {
		return nil, fmt.Errorf("plot: %d snr levels for %d values", len(snrs), len(values))
	}
	pts := make(plotter.XYs, len(snrs))
	for i := range snrs {
		pts[i].X = float64(snrs[i])
		pts[i].Y = values[i]
	}
	return pts, nil
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(lineWidthInch*vg.Inch, lineHeightInch*vg.Inch, path); err != nil {
		return fmt.Errorf("plot: save %s: %w", path, err)
	}
	return nil
}
