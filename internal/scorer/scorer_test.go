package scorer_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/raysh454/nexus/internal/artifact"
	"github.com/raysh454/nexus/internal/config"
	"github.com/raysh454/nexus/internal/dataset"
	"github.com/raysh454/nexus/internal/features"
	"github.com/raysh454/nexus/internal/forest"
	"github.com/raysh454/nexus/internal/model"
	"github.com/raysh454/nexus/internal/scorer"
	"github.com/raysh454/nexus/internal/testutil"
)

type staticProvider struct {
	clf model.Classifier
	err error
}

func (s staticProvider) Get(ctx context.Context) (model.Classifier, error) { return s.clf, s.err }

func newScorer(t *testing.T, p scorer.ModelProvider, kw features.KeywordSource) *scorer.Scorer {
	t.Helper()
	ex, err := features.NewExtractor(kw)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	s, err := scorer.New(p, ex, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("scorer.New: %v", err)
	}
	return s
}

func TestThreatScoreAndConfidence_Independent(t *testing.T) {
	tests := []struct {
		p          float64
		score      int
		confidence float64
	}{
		{0, 0, 0},
		{1, 100, 100},
		{0.5, 50, 50},
		{0.129, 12, 12.9},
		{0.87666, 87, 87.67},
		{0.99999, 99, 100},
		{0.25, 25, 25},
		{0.00015, 0, 0.01},
		{0.00125, 0, 0.12},
	}
	for _, tc := range tests {
		if got := scorer.ThreatScore(tc.p); got != tc.score {
			t.Errorf("ThreatScore(%v) = %d, want %d", tc.p, got, tc.score)
		}
		if got := scorer.Confidence(tc.p); math.Abs(got-tc.confidence) > 1e-9 {
			t.Errorf("Confidence(%v) = %v, want %v", tc.p, got, tc.confidence)
		}
	}
}

func TestScoreFeatures_Labels(t *testing.T) {
	fv := features.FeatureVector{FileSize: 10, Entropy: 1, SuspiciousCount: 0}

	v, err := scorer.ScoreFeatures(testutil.FixedClassifier{Label: forest.Malicious, Proba: 0.876}, fv)
	if err != nil {
		t.Fatalf("ScoreFeatures: %v", err)
	}
	if v.Prediction != scorer.Malware || v.ThreatScore != 87 || v.Confidence != 87.6 {
		t.Errorf("malicious verdict = %+v", v)
	}
	if v.Features != fv {
		t.Errorf("features not carried: %+v", v.Features)
	}

	v, err = scorer.ScoreFeatures(testutil.FixedClassifier{Label: forest.Benign, Proba: 0.02}, fv)
	if err != nil {
		t.Fatalf("ScoreFeatures: %v", err)
	}
	if v.Prediction != scorer.Benign || v.ThreatScore != 2 || v.Confidence != 2 {
		t.Errorf("benign verdict = %+v", v)
	}
}

func TestScoreFeatures_RejectsBadProbability(t *testing.T) {
	for _, p := range []float64{-0.1, 1.5, math.NaN()} {
		if _, err := scorer.ScoreFeatures(testutil.FixedClassifier{Proba: p}, features.FeatureVector{}); err == nil {
			t.Errorf("probability %v accepted", p)
		}
	}
}

func TestAnalyze_EndToEndWithTrainedModel(t *testing.T) {
	m, err := model.NewManager(model.Config{ArtifactPath: filepath.Join(t.TempDir(), "m.json")},
		&testutil.DummySource{}, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	s := newScorer(t, m, config.StaticKeywords{"malware", "exec", "powershell", "ransom", "shell"})

	content := []byte("powershell exec malware ransom shell")
	a, err := s.Analyze(context.Background(), content)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	b, err := s.Analyze(context.Background(), content)
	if err != nil {
		t.Fatalf("Analyze again: %v", err)
	}
	if *a != *b {
		t.Fatalf("not idempotent: %+v vs %+v", a, b)
	}
	if a.ThreatScore < 0 || a.ThreatScore > 100 || a.Confidence < 0 || a.Confidence > 100 {
		t.Fatalf("out of range: %+v", a)
	}
	if a.Features.SuspiciousCount != 5 || a.Features.FileSize != int64(len(content)) {
		t.Fatalf("features = %+v", a.Features)
	}

	benign, err := s.Analyze(context.Background(), []byte("hello world"))
	if err != nil {
		t.Fatalf("Analyze benign: %v", err)
	}
	if benign.Prediction != scorer.Benign {
		t.Errorf("plain text classified as %s", benign.Prediction)
	}
}

func TestAnalyze_PropagatesErrors(t *testing.T) {
	ok := testutil.FixedClassifier{Proba: 0.1}
	tests := []struct {
		name string
		p    scorer.ModelProvider
		kw   features.KeywordSource
		want error
	}{
		{"dataset", staticProvider{err: dataset.ErrDataset}, config.StaticKeywords{}, dataset.ErrDataset},
		{"artifact", staticProvider{err: artifact.ErrArtifactIO}, config.StaticKeywords{}, artifact.ErrArtifactIO},
		{"config", staticProvider{clf: ok}, config.NewKeywordFile(filepath.Join(t.TempDir(), "none.json")), config.ErrConfiguration},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := newScorer(t, tc.p, tc.kw).Analyze(context.Background(), []byte("x"))
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if v != nil {
				t.Fatalf("verdict returned alongside error: %+v", v)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	ex, _ := features.NewExtractor(config.StaticKeywords{})
	if _, err := scorer.New(nil, ex, &testutil.DummyLogger{}); err == nil {
		t.Error("nil provider accepted")
	}
	if _, err := scorer.New(staticProvider{}, nil, &testutil.DummyLogger{}); err == nil {
		t.Error("nil extractor accepted")
	}
}
