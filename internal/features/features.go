// Package features turns raw file content into the fixed-shape vector the
// classifier consumes: size, byte entropy and suspicious-keyword count.
package features

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/raysh454/nexus/internal/config"
)

// FeatureVector is the per-file summary fed to the classifier.
type FeatureVector struct {
	FileSize        int64   `json:"file_size"`
	Entropy         float64 `json:"entropy"`
	SuspiciousCount int     `json:"suspicious_count"`
}

// Values returns the vector in classifier column order.
func (fv FeatureVector) Values() []float64 {
	return []float64{float64(fv.FileSize), fv.Entropy, float64(fv.SuspiciousCount)}
}

// ColumnNames lists the columns in the order used by Values and by the
// labeled dataset.
var ColumnNames = []string{"file_size", "entropy", "suspicious_count"}

// KeywordSource supplies the configured suspicious keywords.
type KeywordSource interface {
	SuspiciousKeywords() ([]string, error)
}

// Extractor resolves keywords from its source on every call and extracts
// features from content.
type Extractor struct {
	keywords KeywordSource
}

// NewExtractor returns an Extractor backed by src.
func NewExtractor(src KeywordSource) (*Extractor, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil keyword source", config.ErrConfiguration)
	}
	return &Extractor{keywords: src}, nil
}

// Extract computes the FeatureVector for content. A keyword source failure is
// reported as config.ErrConfiguration; no default keywords are substituted.
func (e *Extractor) Extract(content []byte) (FeatureVector, error) {
	kws, err := e.keywords.SuspiciousKeywords()
	if err != nil {
		if errors.Is(err, config.ErrConfiguration) {
			return FeatureVector{}, err
		}
		return FeatureVector{}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	return Extract(content, kws), nil
}

// Extract is the pure form of Extractor.Extract.
func Extract(content []byte, keywords []string) FeatureVector {
	return FeatureVector{
		FileSize:        int64(len(content)),
		Entropy:         Entropy(content),
		SuspiciousCount: CountKeywords(TextView(content), keywords),
	}
}

// Entropy is the Shannon entropy of the byte-value distribution in bits per
// byte, rounded to two decimals. Empty content has entropy 0.
func Entropy(content []byte) float64 {
	if len(content) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range content {
		counts[b]++
	}
	n := float64(len(content))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return round2(h)
}

// TextView decodes content as UTF-8, dropping every byte that does not start
// a valid sequence. It never fails.
func TextView(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	var b strings.Builder
	b.Grow(len(content))
	for len(content) > 0 {
		r, size := utf8.DecodeRune(content)
		if r == utf8.RuneError && size <= 1 {
			content = content[1:]
			continue
		}
		b.Write(content[:size])
		content = content[size:]
	}
	return b.String()
}

// CountKeywords returns how many entries of keywords occur in text, ignoring
// case. Each list entry counts at most once; empty entries never match.
func CountKeywords(text string, keywords []string) int {
	if len(keywords) == 0 || text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			n++
		}
	}
	return n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
