// Package scorer combines feature extraction and the classifier into a
// single verdict per piece of content.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/raysh454/nexus/internal/features"
	"github.com/raysh454/nexus/internal/forest"
	"github.com/raysh454/nexus/internal/logging"
	"github.com/raysh454/nexus/internal/model"
)

// Prediction is the human-facing label of a verdict.
type Prediction string

const (
	Malware Prediction = "Malware"
	Benign  Prediction = "Benign"
)

// ThreatVerdict is the result of analyzing one piece of content.
type ThreatVerdict struct {
	Features    features.FeatureVector `json:"features"`
	Prediction  Prediction             `json:"prediction"`
	ThreatScore int                    `json:"threat_score"`
	Confidence  float64                `json:"confidence"`
}

// ModelProvider hands out the shared classifier. *model.Manager implements it.
type ModelProvider interface {
	Get(ctx context.Context) (model.Classifier, error)
}

// Scorer is safe for concurrent use.
type Scorer struct {
	models    ModelProvider
	extractor *features.Extractor
	logger    logging.Logger
}

// New returns a Scorer.
func New(models ModelProvider, extractor *features.Extractor, logger logging.Logger) (*Scorer, error) {
	if models == nil {
		return nil, errors.New("scorer: nil model provider")
	}
	if extractor == nil {
		return nil, errors.New("scorer: nil feature extractor")
	}
	if logger == nil {
		return nil, errors.New("scorer: nil logger")
	}
	return &Scorer{
		models:    models,
		extractor: extractor,
		logger:    logger.With(logging.F("component", "scorer")),
	}, nil
}

// Analyze scores content. The first call in a fresh deployment may train the
// model. Errors from the keyword configuration, dataset or artifact are
// returned unchanged; no default verdict is produced.
func (s *Scorer) Analyze(ctx context.Context, content []byte) (*ThreatVerdict, error) {
	clf, err := s.models.Get(ctx)
	if err != nil {
		return nil, err
	}
	fv, err := s.extractor.Extract(content)
	if err != nil {
		return nil, err
	}
	v, err := ScoreFeatures(clf, fv)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("analyzed content",
		logging.F("size", fv.FileSize),
		logging.F("entropy", fv.Entropy),
		logging.F("suspicious_count", fv.SuspiciousCount),
		logging.F("prediction", string(v.Prediction)),
		logging.F("threat_score", v.ThreatScore))
	return v, nil
}

// ScoreFeatures runs clf on fv and builds the verdict.
func ScoreFeatures(clf model.Classifier, fv features.FeatureVector) (*ThreatVerdict, error) {
	label, p, err := clf.Predict(fv.Values())
	if err != nil {
		return nil, fmt.Errorf("scorer: predict: %w", err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return nil, fmt.Errorf("scorer: classifier returned probability %v outside [0,1]", p)
	}
	pred := Benign
	if label == forest.Malicious {
		pred = Malware
	}
	return &ThreatVerdict{
		Features:    fv,
		Prediction:  pred,
		ThreatScore: ThreatScore(p),
		Confidence:  Confidence(p),
	}, nil
}

// ThreatScore truncates p*100 toward zero.
func ThreatScore(p float64) int {
	return int(math.Floor(p * 100))
}

// Confidence rounds p*100 to two decimals, unlike ThreatScore which
// truncates. Rounding goes through the decimal form of p*100 so half-way
// cases follow its exact value: 0.015 is stored just below the half and
// rounds to 0.01.
func Confidence(p float64) float64 {
	c, _ := strconv.ParseFloat(strconv.FormatFloat(p*100, 'f', 2, 64), 64)
	return c
}
