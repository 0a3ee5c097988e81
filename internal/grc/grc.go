// Package grc reduces governance, risk and compliance inputs to a weighted
// score and a qualitative risk level.
package grc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidInput marks risk factors that cannot be aggregated.
var ErrInvalidInput = errors.New("invalid risk factor input")

// Level is a qualitative risk tier.
type Level string

const (
	Low      Level = "Low"
	Medium   Level = "Medium"
	High     Level = "High"
	Critical Level = "Critical"
)

// Tier boundaries. Each is the inclusive lower bound of its tier.
const (
	MediumThreshold   = 40.0
	HighThreshold     = 70.0
	CriticalThreshold = 90.0
)

// FactorWeight scales the sum of factor values into a score.
const FactorWeight = 20.0

// RiskFactors maps a factor name to its numeric value. Any key is accepted.
type RiskFactors map[string]float64

// RiskAssessment is the result of Assess.
type RiskAssessment struct {
	RiskScore       float64  `json:"risk_score"`
	RiskLevel       Level    `json:"risk_level"`
	Recommendations []string `json:"recommendations"`
}

// recommendations is the same for every assessment until product defines
// factor-specific guidance.
var recommendations = []string{"Review policies", "Implement controls", "Monitor continuously"}

// Recommendations returns a copy of the fixed remediation list.
func Recommendations() []string {
	return append([]string(nil), recommendations...)
}

// Assess sums factor values and multiplies by FactorWeight. Scores are not
// normalized by factor count and are unbounded above. Empty input and
// non-finite values are rejected with ErrInvalidInput; negative values are
// accepted and lower the score.
func Assess(factors RiskFactors) (*RiskAssessment, error) {
	if len(factors) == 0 {
		return nil, fmt.Errorf("%w: no risk factors", ErrInvalidInput)
	}

	// Sum in key order so the float result does not depend on map iteration.
	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum float64
	for _, name := range names {
		v := factors[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: factor %q is not a finite number", ErrInvalidInput, name)
		}
		sum += v
	}
	score := sum * FactorWeight
	if math.IsInf(score, 0) {
		return nil, fmt.Errorf("%w: score overflows", ErrInvalidInput)
	}

	return &RiskAssessment{
		RiskScore:       score,
		RiskLevel:       LevelFor(score),
		Recommendations: Recommendations(),
	}, nil
}

// LevelFor maps a score onto a Level.
func LevelFor(score float64) Level {
	switch {
	case score < MediumThreshold:
		return Low
	case score < HighThreshold:
		return Medium
	case score < CriticalThreshold:
		return High
	default:
		return Critical
	}
}

// ParseFactors converts loosely typed input, such as a decoded JSON object,
// into RiskFactors. Strings, booleans, nulls and nested values are rejected.
func ParseFactors(raw map[string]any) (RiskFactors, error) {
	out := make(RiskFactors, len(raw))
	for name, v := range raw {
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%w: factor %q: %v", ErrInvalidInput, name, err)
		}
		out[name] = f
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", v)
	}
}
