// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/raysh454/nexus/internal/dataset"
	"github.com/raysh454/nexus/internal/forest"
	"github.com/raysh454/nexus/internal/logging"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Dataset ───────────────────────────────────────────────────────────

// Samples is a small separable training set: benign rows are small, low
// entropy and keyword-free; malicious rows are large, near-random and hit
// several keywords.
func Samples() []dataset.Sample {
	return []dataset.Sample{
		{FileSize: 1200, Entropy: 4.1, SuspiciousCount: 0, Label: 0},
		{FileSize: 3400, Entropy: 4.5, SuspiciousCount: 0, Label: 0},
		{FileSize: 800, Entropy: 3.9, SuspiciousCount: 1, Label: 0},
		{FileSize: 15000, Entropy: 5.2, SuspiciousCount: 0, Label: 0},
		{FileSize: 2200, Entropy: 4.8, SuspiciousCount: 0, Label: 0},
		{FileSize: 900, Entropy: 3.2, SuspiciousCount: 0, Label: 0},
		{FileSize: 5100, Entropy: 5.0, SuspiciousCount: 1, Label: 0},
		{FileSize: 40, Entropy: 2.9, SuspiciousCount: 0, Label: 0},
		{FileSize: 45000, Entropy: 7.6, SuspiciousCount: 4, Label: 1},
		{FileSize: 120000, Entropy: 7.9, SuspiciousCount: 6, Label: 1},
		{FileSize: 38000, Entropy: 7.4, SuspiciousCount: 3, Label: 1},
		{FileSize: 64000, Entropy: 7.8, SuspiciousCount: 5, Label: 1},
		{FileSize: 52000, Entropy: 7.2, SuspiciousCount: 4, Label: 1},
		{FileSize: 99000, Entropy: 7.95, SuspiciousCount: 7, Label: 1},
		{FileSize: 41000, Entropy: 7.5, SuspiciousCount: 3, Label: 1},
		{FileSize: 30000, Entropy: 7.1, SuspiciousCount: 5, Label: 1},
	}
}

// DummySource implements dataset.Source over fixed rows and counts calls.
// A nil Rows slice with Err unset behaves like Samples().
type DummySource struct {
	Rows  []dataset.Sample
	Err   error
	calls atomic.Int64
}

func (d *DummySource) Samples(ctx context.Context) ([]dataset.Sample, error) {
	d.calls.Add(1)
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Rows == nil {
		return Samples(), nil
	}
	return d.Rows, nil
}

// Calls reports how many times Samples ran.
func (d *DummySource) Calls() int { return int(d.calls.Load()) }

// ─── Training ──────────────────────────────────────────────────────────

// CountingFit wraps forest.Fit and counts invocations. When Hold is set, each
// call signals Entered (if non-nil) and then blocks until Hold is closed.
type CountingFit struct {
	Hold    chan struct{}
	Entered chan struct{}
	calls   atomic.Int64
}

func (c *CountingFit) Fit(X [][]float64, y []int, p forest.Params) (*forest.Forest, error) {
	c.calls.Add(1)
	if c.Hold != nil {
		if c.Entered != nil {
			c.Entered <- struct{}{}
		}
		<-c.Hold
	}
	return forest.Fit(X, y, p)
}

// Calls reports how many trainings ran.
func (c *CountingFit) Calls() int { return int(c.calls.Load()) }

// ─── Classifier ────────────────────────────────────────────────────────

// FixedClassifier returns the same label and probability for every row.
type FixedClassifier struct {
	Label int
	Proba float64
	Err   error
}

func (f FixedClassifier) Predict(x []float64) (int, float64, error) {
	return f.Label, f.Proba, f.Err
}

// ─── Files ─────────────────────────────────────────────────────────────

// WriteFile writes body to name under a fresh temp dir and returns its path.
func WriteFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}
