package eval

import (
	"errors"
	"fmt"
)

// ErrLabelOutOfRange is returned when a label does not fit the matrix.
var ErrLabelOutOfRange = errors.New("label out of range")

// ConfusionMatrix counts (true, predicted) pairs. Rows are true labels,
// columns predicted labels.
type ConfusionMatrix struct {
	K      int     `json:"classes"`
	Counts [][]int `json:"counts"`
}

// NewConfusionMatrix returns an empty k x k matrix.
func NewConfusionMatrix(k int) *ConfusionMatrix {
	counts := make([][]int, k)
	for i := range counts {
		counts[i] = make([]int, k)
	}
	return &ConfusionMatrix{K: k, Counts: counts}
}

// Add records one prediction.
func (m *ConfusionMatrix) Add(trueLabel, predicted int) error {
	if trueLabel < 0 || trueLabel >= m.K || predicted < 0 || predicted >= m.K {
		return fmt.Errorf("%w: (%d, %d) with %d classes", ErrLabelOutOfRange, trueLabel, predicted, m.K)
	}
	m.Counts[trueLabel][predicted]++
	return nil
}

// Merge adds the counts of other into m.
func (m *ConfusionMatrix) Merge(other *ConfusionMatrix) error {
	if other.K != m.K {
		return fmt.Errorf("%w: merging %d classes into %d", ErrLabelOutOfRange, other.K, m.K)
	}
	for i := range m.Counts {
		for j := range m.Counts[i] {
			m.Counts[i][j] += other.Counts[i][j]
		}
	}
	return nil
}

// Total returns the number of recorded predictions.
func (m *ConfusionMatrix) Total() int {
	total := 0
	for _, row := range m.Counts {
		for _, c := range row {
			total += c
		}
	}
	return total
}

// Correct returns the trace.
func (m *ConfusionMatrix) Correct() int {
	correct := 0
	for i := range m.Counts {
		correct += m.Counts[i][i]
	}
	return correct
}

// Accuracy returns trace / total, or 0 for an empty matrix.
func (m *ConfusionMatrix) Accuracy() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	return float64(m.Correct()) / float64(total)
}

// Normalized returns the matrix with every row scaled to sum to 1.
// Rows without samples stay zero.
func (m *ConfusionMatrix) Normalized() [][]float64 {
	out := make([][]float64, m.K)
	for i, row := range m.Counts {
		out[i] = make([]float64, m.K)
		sum := 0
		for _, c := range row {
			sum += c
		}
		if sum == 0 {
			continue
		}
		for j, c := range row {
			out[i][j] = float64(c) / float64(sum)
		}
	}
	return out
}

// PerClassAccuracy returns the diagonal of Normalized.
func (m *ConfusionMatrix) PerClassAccuracy() []float64 {
	norm := m.Normalized()
	out := make([]float64, m.K)
	for i := range out {
		out[i] = norm[i][i]
	}
	return out
}
