package eval

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrUnknownSNR is returned when a prediction carries an SNR outside the
// report's SNR list.
var ErrUnknownSNR = errors.New("unknown snr")

// SNRReport holds the metrics of one SNR level.
type SNRReport struct {
	SNR       int              `json:"snr"`
	Count     int              `json:"count"`
	Accuracy  float64          `json:"accuracy"`
	PerClass  []float64        `json:"per_class_accuracy"`
	Confusion *ConfusionMatrix `json:"confusion"`
}

// Report summarizes predictions overall and per SNR.
type Report struct {
	Classes          []string         `json:"classes"`
	Count            int              `json:"count"`
	Accuracy         float64          `json:"accuracy"`
	PerClassAccuracy []float64        `json:"per_class_accuracy"`
	Confusion        *ConfusionMatrix `json:"confusion"`
	PerSNR           []SNRReport      `json:"per_snr"`
}

// NewReport builds a report. Every SNR in snrs gets an entry, including
// levels without predictions, which report zero accuracy and count.
func NewReport(p *Predictions, classes []string, snrs []int) (*Report, error) {
	k := len(classes)
	r := &Report{
		Classes:   classes,
		Confusion: NewConfusionMatrix(k),
		PerSNR:    make([]SNRReport, len(snrs)),
	}

	bySNR := make(map[int]int, len(snrs))
	for i, s := range snrs {
		bySNR[s] = i
		r.PerSNR[i] = SNRReport{SNR: s, Confusion: NewConfusionMatrix(k)}
	}

	for i := range p.True {
		slot, ok := bySNR[p.SNRs[i]]
		if !ok {
			return nil, fmt.Errorf("%w: %d dB", ErrUnknownSNR, p.SNRs[i])
		}
		if err := r.Confusion.Add(p.True[i], p.Predicted[i]); err != nil {
			return nil, err
		}
		if err := r.PerSNR[slot].Confusion.Add(p.True[i], p.Predicted[i]); err != nil {
			return nil, err
		}
	}

	r.Count = r.Confusion.Total()
	r.Accuracy = r.Confusion.Accuracy()
	r.PerClassAccuracy = r.Confusion.PerClassAccuracy()
	for i := range r.PerSNR {
		s := &r.PerSNR[i]
		s.Count = s.Confusion.Total()
		s.Accuracy = s.Confusion.Accuracy()
		s.PerClass = s.Confusion.PerClassAccuracy()
	}
	return r, nil
}

// SNRs returns the SNR levels in report order.
func (r *Report) SNRs() []int {
	out := make([]int, len(r.PerSNR))
	for i, s := range r.PerSNR {
		out[i] = s.SNR
	}
	return out
}

// AccuracyBySNR returns the per-SNR accuracy curve.
func (r *Report) AccuracyBySNR() []float64 {
	out := make([]float64, len(r.PerSNR))
	for i, s := range r.PerSNR {
		out[i] = s.Accuracy
	}
	return out
}

// ClassAccuracyBySNR returns accuracy indexed [class][snr slot].
func (r *Report) ClassAccuracyBySNR() [][]float64 {
	out := make([][]float64, len(r.Classes))
	for c := range out {
		out[c] = make([]float64, len(r.PerSNR))
		for i, s := range r.PerSNR {
			out[c][i] = s.PerClass[c]
		}
	}
	return out
}

// WriteJSON encodes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteFile writes the report as JSON to path.
func (r *Report) WriteFile(path string) error {
	//nolint:gosec // G304: output path is user supplied
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := r.WriteJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
