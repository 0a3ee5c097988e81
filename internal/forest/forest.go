// Package forest implements a bagged ensemble of CART decision trees for
// binary classification. Training is deterministic for a given seed and the
// fitted model is plain data, so it serializes to JSON.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// FormatVersion is bumped whenever the serialized layout changes.
const FormatVersion = 1

// Class labels.
const (
	Benign    = 0
	Malicious = 1
)

var (
	ErrNoSamples      = errors.New("forest: no training samples")
	ErrShapeMismatch  = errors.New("forest: feature shape mismatch")
	ErrInvalidLabel   = errors.New("forest: label must be 0 or 1")
	ErrInvalidFeature = errors.New("forest: feature value is NaN or infinite")
)

// Params controls training.
type Params struct {
	// Trees is the ensemble size.
	Trees int `json:"trees"`

	// Seed drives bootstrap sampling and feature selection.
	Seed uint64 `json:"seed"`

	// MinSamplesSplit is the smallest node that may still be split.
	MinSamplesSplit int `json:"min_samples_split"`

	// MaxFeatures is the number of candidate features drawn per node.
	// 0 means max(1, floor(sqrt(features))).
	MaxFeatures int `json:"max_features"`

	// MaxDepth limits tree depth; 0 grows trees until leaves are pure.
	MaxDepth int `json:"max_depth"`
}

// DefaultParams mirrors the reference model: 50 trees, seed 42.
func DefaultParams() Params {
	return Params{Trees: 50, Seed: 42, MinSamplesSplit: 2}
}

// Node is one entry of a flattened tree. Leaves have Left == -1 and carry
// the fraction of malicious samples that reached them in Value.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

func (n Node) leaf() bool { return n.Left < 0 }

// Tree is a flattened decision tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) proba(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.leaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a fitted ensemble. It is never mutated after Fit or Decode and
// is safe for concurrent use.
type Forest struct {
	Version  int    `json:"version"`
	Features int    `json:"features"`
	Samples  int    `json:"samples"`
	Params   Params `json:"params"`
	Trees    []Tree `json:"trees"`
}

// NumTrees reports the ensemble size.
func (f *Forest) NumTrees() int { return len(f.Trees) }

// NumSamples reports how many rows the forest was trained on.
func (f *Forest) NumSamples() int { return f.Samples }

// PredictProba returns the mean over trees of P(malicious).
func (f *Forest) PredictProba(x []float64) (float64, error) {
	if len(x) != f.Features {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrShapeMismatch, len(x), f.Features)
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, ErrInvalidFeature
		}
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].proba(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// Predict returns the label and P(malicious). Ties at 0.5 go to Benign.
func (f *Forest) Predict(x []float64) (int, float64, error) {
	p, err := f.PredictProba(x)
	if err != nil {
		return Benign, 0, err
	}
	if p > 0.5 {
		return Malicious, p, nil
	}
	return Benign, p, nil
}

// Fit trains a forest on X (rows of features) and y (0/1 labels).
func Fit(X [][]float64, y []int, p Params) (*Forest, error) {
	if len(X) == 0 {
		return nil, ErrNoSamples
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(X), len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return nil, fmt.Errorf("%w: rows have no features", ErrShapeMismatch)
	}
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), nf)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w (row %d)", ErrInvalidFeature, i)
			}
		}
		if y[i] != Benign && y[i] != Malicious {
			return nil, fmt.Errorf("%w (row %d: %d)", ErrInvalidLabel, i, y[i])
		}
	}

	if p.Trees <= 0 {
		p.Trees = DefaultParams().Trees
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	maxFeatures := p.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = max(1, int(math.Sqrt(float64(nf))))
	}
	maxFeatures = min(maxFeatures, nf)

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	g := &grower{X: X, y: y, nf: nf, maxFeatures: maxFeatures, params: p, rng: rng}

	f := &Forest{
		Version:  FormatVersion,
		Features: nf,
		Samples:  len(X),
		Params:   p,
		Trees:    make([]Tree, p.Trees),
	}
	n := len(X)
	for t := range f.Trees {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.IntN(n)
		}
		tree := Tree{}
		g.build(&tree, idx, 0)
		f.Trees[t] = tree
	}
	return f, nil
}

type grower struct {
	X           [][]float64
	y           []int
	nf          int
	maxFeatures int
	params      Params
	rng         *rand.Rand
}

// build appends the subtree for idx to t and returns its node index.
func (g *grower) build(t *Tree, idx []int, depth int) int {
	pos := 0
	for _, i := range idx {
		pos += g.y[i]
	}
	self := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, Value: float64(pos) / float64(len(idx))})

	pure := pos == 0 || pos == len(idx)
	if pure || len(idx) < g.params.MinSamplesSplit || (g.params.MaxDepth > 0 && depth >= g.params.MaxDepth) {
		return self
	}

	s, ok := g.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if g.X[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := g.build(t, left, depth+1)
	r := g.build(t, right, depth+1)
	t.Nodes[self].Feature = s.feature
	t.Nodes[self].Threshold = s.threshold
	t.Nodes[self].Left = l
	t.Nodes[self].Right = r
	return self
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

// bestSplit draws candidate features in random order and keeps looking past
// maxFeatures until at least one valid split exists.
func (g *grower) bestSplit(idx []int) (split, bool) {
	var best split
	found := false
	order := g.rng.Perm(g.nf)
	for drawn, f := range order {
		if drawn >= g.maxFeatures && found {
			break
		}
		s, ok := g.splitOn(idx, f)
		if ok && (!found || s.impurity < best.impurity) {
			best, found = s, true
		}
	}
	return best, found
}

// splitOn finds the Gini-optimal threshold for feature f.
func (g *grower) splitOn(idx []int, f int) (split, bool) {
	sorted := slices.Clone(idx)
	slices.SortFunc(sorted, func(a, b int) int {
		switch va, vb := g.X[a][f], g.X[b][f]; {
		case va < vb:
			return -1
		case va > vb:
			return 1
		default:
			return 0
		}
	})

	n := len(sorted)
	totalPos := 0
	for _, i := range sorted {
		totalPos += g.y[i]
	}

	var best split
	found := false
	leftPos := 0
	for k := 0; k < n-1; k++ {
		leftPos += g.y[sorted[k]]
		a, b := g.X[sorted[k]][f], g.X[sorted[k+1]][f]
		if a == b {
			continue
		}
		nl, nr := k+1, n-k-1
		imp := float64(nl)*gini(leftPos, nl) + float64(nr)*gini(totalPos-leftPos, nr)
		if !found || imp < best.impurity {
			thr := a/2 + b/2
			if thr >= b {
				thr = a
			}
			best = split{feature: f, threshold: thr, impurity: imp}
			found = true
		}
	}
	return best, found
}

func gini(pos, n int) float64 {
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}
