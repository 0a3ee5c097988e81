package grc_test

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/raysh454/nexus/internal/grc"
)

func TestAssess_Boundaries(t *testing.T) {
	tests := []struct {
		name    string
		factors grc.RiskFactors
		score   float64
		level   grc.Level
	}{
		{"zero", grc.RiskFactors{"a": 0}, 0, grc.Low},
		{"just below medium", grc.RiskFactors{"a": 1.95}, 39, grc.Low},
		{"exactly 40 is medium", grc.RiskFactors{"a": 2}, 40, grc.Medium},
		{"exactly 70 is high", grc.RiskFactors{"a": 3.5}, 70, grc.High},
		{"exactly 90 is critical", grc.RiskFactors{"a": 4.5}, 90, grc.Critical},
		{"unbounded", grc.RiskFactors{"a": 10, "b": 10}, 400, grc.Critical},
		{"factors add up", grc.RiskFactors{"access": 1, "vendor": 1, "patching": 1}, 60, grc.Medium},
		{"negative lowers score", grc.RiskFactors{"a": 3, "mitigation": -1}, 40, grc.Medium},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := grc.Assess(tc.factors)
			if err != nil {
				t.Fatalf("Assess: %v", err)
			}
			if math.Abs(got.RiskScore-tc.score) > 1e-9 {
				t.Errorf("score = %v, want %v", got.RiskScore, tc.score)
			}
			if got.RiskLevel != tc.level {
				t.Errorf("level = %s, want %s", got.RiskLevel, tc.level)
			}
		})
	}
}

func TestAssess_FixedRecommendations(t *testing.T) {
	want := []string{"Review policies", "Implement controls", "Monitor continuously"}
	for _, f := range []grc.RiskFactors{{"a": 0}, {"a": 9}} {
		got, err := grc.Assess(f)
		if err != nil {
			t.Fatalf("Assess: %v", err)
		}
		if !reflect.DeepEqual(got.Recommendations, want) {
			t.Fatalf("recommendations = %v", got.Recommendations)
		}
	}

	// Callers mutating a result must not affect later results.
	a, _ := grc.Assess(grc.RiskFactors{"a": 1})
	a.Recommendations[0] = "changed"
	b, _ := grc.Assess(grc.RiskFactors{"a": 1})
	if b.Recommendations[0] != "Review policies" {
		t.Fatal("recommendations shared between results")
	}
}

func TestAssess_InvalidInput(t *testing.T) {
	for name, f := range map[string]grc.RiskFactors{
		"empty": {},
		"nil":   nil,
		"nan":   {"a": math.NaN()},
		"inf":   {"a": math.Inf(1)},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := grc.Assess(f); !errors.Is(err, grc.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestParseFactors(t *testing.T) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(`{"access": 1.5, "vendor": 2}`), &raw); err != nil {
		t.Fatal(err)
	}
	got, err := grc.ParseFactors(raw)
	if err != nil {
		t.Fatalf("ParseFactors: %v", err)
	}
	if got["access"] != 1.5 || got["vendor"] != 2 {
		t.Fatalf("got %v", got)
	}

	dec := json.NewDecoder(strings.NewReader(`{"n": 3}`))
	dec.UseNumber()
	raw = nil
	if err := dec.Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if got, err := grc.ParseFactors(raw); err != nil || got["n"] != 3 {
		t.Fatalf("json.Number: %v %v", got, err)
	}
}

func TestParseFactors_RejectsNonNumeric(t *testing.T) {
	for _, body := range []string{`{"a": "high"}`, `{"a": true}`, `{"a": null}`, `{"a": [1]}`, `{"a": {"b": 1}}`} {
		var raw map[string]any
		if err := json.Unmarshal([]byte(body), &raw); err != nil {
			t.Fatal(err)
		}
		if _, err := grc.ParseFactors(raw); !errors.Is(err, grc.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", body, err)
		}
	}
}

func TestLevelFor(t *testing.T) {
	cases := map[float64]grc.Level{-5: grc.Low, 39.999: grc.Low, 40: grc.Medium, 69.9: grc.Medium, 70: grc.High, 89.99: grc.High, 90: grc.Critical}
	for score, want := range cases {
		if got := grc.LevelFor(score); got != want {
			t.Errorf("LevelFor(%v) = %s, want %s", score, got, want)
		}
	}
}
