package forest_test

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/raysh454/nexus/internal/forest"
)

// separable returns rows where high entropy and keyword hits mean malicious.
func separable() ([][]float64, []int) {
	X := [][]float64{
		{1200, 4.1, 0}, {3400, 4.5, 0}, {800, 3.9, 1}, {15000, 5.2, 0},
		{2200, 4.8, 0}, {900, 3.2, 0}, {5100, 5.0, 1}, {700, 2.9, 0},
		{45000, 7.6, 4}, {120000, 7.9, 6}, {38000, 7.4, 3}, {64000, 7.8, 5},
		{52000, 7.2, 4}, {99000, 7.95, 7}, {41000, 7.5, 3}, {30000, 7.1, 5},
	}
	y := []int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1}
	return X, y
}

func TestFit_SeparableData(t *testing.T) {
	X, y := separable()
	f, err := forest.Fit(X, y, forest.DefaultParams())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if f.NumTrees() != 50 {
		t.Fatalf("trees = %d, want 50", f.NumTrees())
	}

	label, p, err := f.Predict([]float64{80000, 7.9, 6})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if label != forest.Malicious || p <= 0.5 {
		t.Errorf("malicious-looking row: label=%d p=%v", label, p)
	}

	label, p, err = f.Predict([]float64{1000, 3.5, 0})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if label != forest.Benign || p >= 0.5 {
		t.Errorf("benign-looking row: label=%d p=%v", label, p)
	}
}

func TestFit_DeterministicForSeed(t *testing.T) {
	X, y := separable()
	a, err := forest.Fit(X, y, forest.DefaultParams())
	if err != nil {
		t.Fatalf("Fit a: %v", err)
	}
	b, err := forest.Fit(X, y, forest.DefaultParams())
	if err != nil {
		t.Fatalf("Fit b: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different forests")
	}
}

func TestPredictProba_InUnitInterval(t *testing.T) {
	X, y := separable()
	f, _ := forest.Fit(X, y, forest.DefaultParams())
	for _, row := range append(X, []float64{0, 0, 0}, []float64{1e9, 8, 100}) {
		p, err := f.PredictProba(row)
		if err != nil {
			t.Fatalf("PredictProba: %v", err)
		}
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("p = %v out of range for %v", p, row)
		}
	}
}

func TestFit_SingleClass(t *testing.T) {
	f, err := forest.Fit([][]float64{{1, 2, 3}, {4, 5, 6}}, []int{1, 1}, forest.Params{Trees: 3, Seed: 1})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	p, _ := f.PredictProba([]float64{0, 0, 0})
	if p != 1 {
		t.Fatalf("p = %v, want 1", p)
	}
}

func TestFit_ConstantFeaturesMixedLabels(t *testing.T) {
	f, err := forest.Fit([][]float64{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {1, 1, 1}}, []int{0, 1, 0, 1}, forest.Params{Trees: 5, Seed: 7})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for _, tr := range f.Trees {
		if len(tr.Nodes) != 1 {
			t.Fatalf("unsplittable data grew %d nodes", len(tr.Nodes))
		}
	}
}

func TestFit_Errors(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []int
		want error
	}{
		{"empty", nil, nil, forest.ErrNoSamples},
		{"label count", [][]float64{{1}}, []int{0, 1}, forest.ErrShapeMismatch},
		{"ragged", [][]float64{{1, 2}, {1}}, []int{0, 1}, forest.ErrShapeMismatch},
		{"bad label", [][]float64{{1}}, []int{2}, forest.ErrInvalidLabel},
		{"nan", [][]float64{{math.NaN()}}, []int{0}, forest.ErrInvalidFeature},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := forest.Fit(tc.X, tc.y, forest.DefaultParams()); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestPredict_ShapeMismatch(t *testing.T) {
	X, y := separable()
	f, _ := forest.Fit(X, y, forest.Params{Trees: 2, Seed: 1})
	if _, _, err := f.Predict([]float64{1, 2}); !errors.Is(err, forest.ErrShapeMismatch) {
		t.Fatalf("got %v", err)
	}
}

func TestEncodeDecode_PreservesPredictions(t *testing.T) {
	X, y := separable()
	f, _ := forest.Fit(X, y, forest.DefaultParams())

	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	g, err := forest.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, row := range X {
		p1, _ := f.PredictProba(row)
		p2, _ := g.PredictProba(row)
		if p1 != p2 {
			t.Fatalf("prediction changed after round trip: %v vs %v", p1, p2)
		}
	}
}

func TestDecode_RejectsCorrupt(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"wrong version": `{"version": 99, "features": 3, "trees": [{"nodes": [{"l": -1, "r": -1, "v": 0}]}]}`,
		"no trees":      `{"version": 1, "features": 3, "trees": []}`,
		"bad child":     `{"version": 1, "features": 3, "trees": [{"nodes": [{"f": 0, "l": 5, "r": 6}]}]}`,
		"bad feature":   `{"version": 1, "features": 3, "trees": [{"nodes": [{"f": 9, "l": 1, "r": 2}, {"l": -1, "r": -1}, {"l": -1, "r": -1}]}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := forest.Decode(bytes.NewBufferString(body)); !errors.Is(err, forest.ErrCorrupt) {
				t.Fatalf("got %v, want ErrCorrupt", err)
			}
		})
	}
}
