// Package dataset supplies the labeled historical samples used to train the
// classifier. Sources are read-only collaborators of the model manager.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrDataset marks a labeled dataset that is missing or malformed.
var ErrDataset = errors.New("dataset error")

// Sample is one labeled row.
type Sample struct {
	FileSize        float64 `json:"file_size"`
	Entropy         float64 `json:"entropy"`
	SuspiciousCount float64 `json:"suspicious_count"`
	Label           int     `json:"label"`
}

// Source yields the full labeled dataset.
type Source interface {
	Samples(ctx context.Context) ([]Sample, error)
}

// Matrix splits samples into the feature matrix and label vector expected by
// the classifier.
func Matrix(samples []Sample) ([][]float64, []int) {
	X := make([][]float64, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		X[i] = []float64{s.FileSize, s.Entropy, s.SuspiciousCount}
		y[i] = s.Label
	}
	return X, y
}

func (s Sample) validate() error {
	for name, v := range map[string]float64{
		"file_size":        s.FileSize,
		"entropy":          s.Entropy,
		"suspicious_count": s.SuspiciousCount,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not a finite number", name)
		}
		if v < 0 {
			return fmt.Errorf("%s is negative", name)
		}
	}
	if s.Label != 0 && s.Label != 1 {
		return fmt.Errorf("label %d is not 0 or 1", s.Label)
	}
	return nil
}
