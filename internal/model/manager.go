// Package model owns the trained classifier for the lifetime of a process:
// it loads the persisted artifact or, when none exists, trains once from the
// labeled dataset and persists the result.
package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/raysh454/nexus/internal/artifact"
	"github.com/raysh454/nexus/internal/dataset"
	"github.com/raysh454/nexus/internal/forest"
	"github.com/raysh454/nexus/internal/logging"
)

// Classifier maps a feature row to a label and P(malicious). Implementations
// must be safe for concurrent use and must not change after construction.
type Classifier interface {
	Predict(x []float64) (label int, proba float64, err error)
}

// FitFunc trains a forest. It is swappable so tests can count trainings.
type FitFunc func(X [][]float64, y []int, p forest.Params) (*forest.Forest, error)

// Observer receives lifecycle notifications, e.g. for metrics.
type Observer interface {
	ModelTrained(samples int, elapsed time.Duration)
	ModelLoaded()
}

// Origin tells where the current model came from.
type Origin string

const (
	OriginNone    Origin = ""
	OriginLoaded  Origin = "loaded"
	OriginTrained Origin = "trained"
)

// Info describes the memoized model.
type Info struct {
	Loaded       bool      `json:"loaded"`
	Origin       Origin    `json:"origin,omitempty"`
	ArtifactPath string    `json:"artifact_path"`
	Trees        int       `json:"trees,omitempty"`
	Samples      int       `json:"samples,omitempty"`
	ReadyAt      time.Time `json:"ready_at,omitempty"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithFitFunc replaces forest.Fit.
func WithFitFunc(fn FitFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.fit = fn
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// Manager memoizes a single classifier. Get is safe for concurrent callers
// and trains at most once per missing artifact.
type Manager struct {
	cfg      Config
	store    *artifact.Store
	source   dataset.Source
	logger   logging.Logger
	fit      FitFunc
	observer Observer

	group   singleflight.Group
	trainMu sync.Mutex

	mu      sync.RWMutex
	model   *forest.Forest
	origin  Origin
	readyAt time.Time
}

// NewManager builds a Manager. Nothing is loaded or trained until Get.
func NewManager(cfg Config, source dataset.Source, logger logging.Logger, opts ...Option) (*Manager, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil dataset source", dataset.ErrDataset)
	}
	if logger == nil {
		return nil, errors.New("model: nil logger")
	}
	if cfg.ArtifactPath == "" {
		cfg.ArtifactPath = DefaultConfig().ArtifactPath
	}
	if cfg.Params.Trees == 0 {
		cfg.Params = forest.DefaultParams()
	}
	store, err := artifact.NewStore(cfg.ArtifactPath)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		store:  store,
		source: source,
		logger: logger.With(logging.F("component", "model-manager")),
		fit:    forest.Fit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Get returns the memoized classifier, loading the artifact or training on
// first use. Concurrent first callers share one load-or-train; a caller whose
// ctx ends stops waiting without aborting the shared work.
func (m *Manager) Get(ctx context.Context) (Classifier, error) {
	if f := m.current(); f != nil {
		return f, nil
	}

	ch := m.group.DoChan("model", func() (any, error) {
		return m.loadOrTrain(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*forest.Forest), nil
	}
}

// Train fits a new model from the dataset, persists it and makes it current.
// Unlike Get it always fits, even when a model is already loaded.
func (m *Manager) Train(ctx context.Context) (Classifier, error) {
	m.trainMu.Lock()
	defer m.trainMu.Unlock()
	f, err := m.fitLocked(ctx)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Reset forgets the memoized model so the next Get checks the artifact again.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = nil
	m.origin = OriginNone
	m.readyAt = time.Time{}
}

// Info reports the current model state without loading anything.
func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{ArtifactPath: m.store.Path(), Origin: m.origin, ReadyAt: m.readyAt}
	if m.model != nil {
		info.Loaded = true
		info.Trees = m.model.NumTrees()
		info.Samples = m.model.NumSamples()
	}
	return info
}

func (m *Manager) current() *forest.Forest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

func (m *Manager) set(f *forest.Forest, origin Origin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = f
	m.origin = origin
	m.readyAt = time.Now().UTC()
}

// loadOrTrain runs under trainMu so it observes any Train that finished
// while it waited.
func (m *Manager) loadOrTrain(ctx context.Context) (*forest.Forest, error) {
	m.trainMu.Lock()
	defer m.trainMu.Unlock()

	if f := m.current(); f != nil {
		return f, nil
	}
	ok, err := m.store.Exists()
	if err != nil {
		return nil, err
	}
	if !ok {
		m.logger.Info("no model artifact, training", logging.F("path", m.store.Path()))
		return m.fitLocked(ctx)
	}
	return m.load()
}

func (m *Manager) load() (*forest.Forest, error) {
	data, err := m.store.Read()
	if err != nil {
		return nil, err
	}
	f, err := forest.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", artifact.ErrArtifactIO, m.store.Path(), err)
	}
	m.set(f, OriginLoaded)
	m.logger.Info("loaded model artifact",
		logging.F("path", m.store.Path()),
		logging.F("trees", f.NumTrees()),
		logging.F("samples", f.NumSamples()))
	if m.observer != nil {
		m.observer.ModelLoaded()
	}
	return f, nil
}

// fitLocked trains and persists a model. Callers hold trainMu.
func (m *Manager) fitLocked(ctx context.Context) (*forest.Forest, error) {
	start := time.Now()
	samples, err := m.source.Samples(ctx)
	if err != nil {
		if errors.Is(err, dataset.ErrDataset) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", dataset.ErrDataset, err)
	}

	X, y := dataset.Matrix(samples)
	f, err := m.fit(X, y, m.cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: fit: %v", dataset.ErrDataset, err)
	}

	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", artifact.ErrArtifactIO, err)
	}
	if err := m.store.Write(buf.Bytes()); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	m.set(f, OriginTrained)
	m.logger.Info("trained model",
		logging.F("path", m.store.Path()),
		logging.F("samples", len(samples)),
		logging.F("trees", f.NumTrees()),
		logging.F("elapsed_ms", elapsed.Milliseconds()))
	if m.observer != nil {
		m.observer.ModelTrained(len(samples), elapsed)
	}
	return f, nil
}
