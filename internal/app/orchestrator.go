package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/raysh454/nexus/internal/artifact"
	"github.com/raysh454/nexus/internal/config"
	"github.com/raysh454/nexus/internal/dataset"
	"github.com/raysh454/nexus/internal/features"
	"github.com/raysh454/nexus/internal/grc"
	"github.com/raysh454/nexus/internal/logging"
	"github.com/raysh454/nexus/internal/logscan"
	"github.com/raysh454/nexus/internal/metrics"
	"github.com/raysh454/nexus/internal/model"
	"github.com/raysh454/nexus/internal/quickscan"
	"github.com/raysh454/nexus/internal/scorer"

	_ "modernc.org/sqlite"
)

var (
	// ErrInvalidRequest marks caller mistakes that are not GRC factor errors.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrContentTooLarge is returned when a file exceeds MaxContentBytes.
	ErrContentTooLarge = errors.New("content too large")
)

// Deps lets callers replace the collaborators NewOrchestrator would
// otherwise build from Config. Nil fields are built from Config.
type Deps struct {
	Keywords features.KeywordSource
	Dataset  dataset.Source
	Metrics  *metrics.Collector
	ModelOpt []model.Option
}

// Orchestrator owns the shared classifier and every analysis entrypoint
// used by the CLI and the HTTP server.
type Orchestrator struct {
	cfg    *Config
	logger logging.Logger

	extractor *features.Extractor
	models    *model.Manager
	scorer    *scorer.Scorer
	metrics   *metrics.Collector
	db        *sql.DB
	samples   *dataset.SQLiteSource

	jobTable
	wg sync.WaitGroup
}

// NewOrchestrator wires keywords, dataset, model manager and scorer.
func NewOrchestrator(cfg *Config, logger logging.Logger, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		return nil, errors.New("orchestrator: nil logger")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger.With(logging.F("component", "orchestrator")),
		metrics: deps.Metrics,
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	keywords := deps.Keywords
	if keywords == nil {
		keywords = config.NewKeywordFile(cfg.KeywordsPath)
	}
	ext, err := features.NewExtractor(keywords)
	if err != nil {
		return nil, err
	}
	o.extractor = ext

	source := deps.Dataset
	if source == nil {
		source, err = o.openDataset()
		if err != nil {
			return nil, err
		}
	}

	opts := append([]model.Option{model.WithObserver(o.metrics)}, deps.ModelOpt...)
	o.models, err = model.NewManager(cfg.ModelConfig(), source, logger, opts...)
	if err != nil {
		o.closeDB()
		return nil, err
	}

	o.scorer, err = scorer.New(o.models, ext, logger)
	if err != nil {
		o.closeDB()
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) openDataset() (dataset.Source, error) {
	switch o.cfg.Dataset.Driver {
	case DatasetSQLite:
		db, err := sql.Open("sqlite", o.cfg.Dataset.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", dataset.ErrDataset, o.cfg.Dataset.Path, err)
		}
		src, err := dataset.NewSQLiteSource(db, o.logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		o.db = db
		o.samples = src
		return src, nil
	default:
		return dataset.NewCSVSource(o.cfg.Dataset.Path), nil
	}
}

func (o *Orchestrator) closeDB() {
	if o.db != nil {
		o.db.Close()
		o.db = nil
	}
}

// AnalyzeContent scores raw bytes.
func (o *Orchestrator) AnalyzeContent(ctx context.Context, content []byte) (*scorer.ThreatVerdict, error) {
	if int64(len(content)) > o.cfg.MaxContentBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrContentTooLarge, len(content), o.cfg.MaxContentBytes)
	}
	start := time.Now()
	v, err := o.scorer.Analyze(ctx, content)
	if err != nil {
		o.metrics.ObserveError(ErrorKind(err))
		return nil, err
	}
	o.metrics.ObserveAnalysis(string(v.Prediction), time.Since(start))
	return v, nil
}

// FileVerdict pairs a verdict with the analyzed path.
type FileVerdict struct {
	Path    string                `json:"path"`
	Verdict *scorer.ThreatVerdict `json:"verdict"`
}

// AnalyzeFile reads path and scores its bytes.
func (o *Orchestrator) AnalyzeFile(ctx context.Context, path string) (*FileVerdict, error) {
	content, err := o.readFile(path)
	if err != nil {
		return nil, err
	}
	v, err := o.AnalyzeContent(ctx, content)
	if err != nil {
		return nil, err
	}
	return &FileVerdict{Path: path, Verdict: v}, nil
}

func (o *Orchestrator) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, o.cfg.MaxContentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(content)) > o.cfg.MaxContentBytes {
		return nil, fmt.Errorf("%w: %s", ErrContentTooLarge, path)
	}
	return content, nil
}

// AssessRisk aggregates GRC factors.
func (o *Orchestrator) AssessRisk(factors grc.RiskFactors) (*grc.RiskAssessment, error) {
	a, err := grc.Assess(factors)
	if err != nil {
		o.metrics.ObserveError(ErrorKind(err))
		return nil, err
	}
	o.metrics.ObserveAssessment(string(a.RiskLevel))
	return a, nil
}

// QuickScan runs the signature pre-filter over content.
func (o *Orchestrator) QuickScan(name string, content []byte) quickscan.Report {
	return quickscan.Scan(name, content)
}

// QuickScanFile runs the signature pre-filter over a file.
func (o *Orchestrator) QuickScanFile(path string) (*quickscan.Report, error) {
	content, err := o.readFile(path)
	if err != nil {
		return nil, err
	}
	r := quickscan.Scan(path, content)
	return &r, nil
}

// ScanLog counts suspicious lines in a log stream.
func (o *Orchestrator) ScanLog(r io.Reader) (*logscan.Report, error) {
	rep, err := logscan.Scan(r)
	if err != nil {
		o.metrics.ObserveError(ErrorKind(err))
		return nil, err
	}
	return rep, nil
}

// TrainModel forces a retrain from the dataset and replaces the artifact.
func (o *Orchestrator) TrainModel(ctx context.Context) (model.Info, error) {
	if _, err := o.models.Train(ctx); err != nil {
		o.metrics.ObserveError(ErrorKind(err))
		return model.Info{}, err
	}
	return o.models.Info(), nil
}

// LoadModel makes sure a model is ready, loading or training it if needed.
func (o *Orchestrator) LoadModel(ctx context.Context) (model.Info, error) {
	if _, err := o.models.Get(ctx); err != nil {
		o.metrics.ObserveError(ErrorKind(err))
		return model.Info{}, err
	}
	return o.models.Info(), nil
}

// ImportDataset loads a labeled CSV into the SQLite dataset. It requires the
// sqlite driver. The next TrainModel call picks the rows up.
func (o *Orchestrator) ImportDataset(ctx context.Context, r io.Reader, source string) (int, error) {
	if o.samples == nil {
		return 0, fmt.Errorf("%w: dataset import requires the %q driver", ErrInvalidRequest, DatasetSQLite)
	}
	rows, err := dataset.ReadCSV(ctx, r)
	if err != nil {
		return 0, err
	}
	return o.samples.Import(ctx, rows, source)
}

// DatasetStatus describes the configured training dataset.
type DatasetStatus struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`

	// Samples is the stored row count. Only the sqlite driver reports it.
	Samples *int `json:"samples,omitempty"`
}

// DatasetStatus reports the dataset driver and, for sqlite, its row count.
func (o *Orchestrator) DatasetStatus(ctx context.Context) (DatasetStatus, error) {
	st := DatasetStatus{Driver: o.cfg.Dataset.Driver, Path: o.cfg.Dataset.Path}
	if o.samples == nil {
		return st, nil
	}
	n, err := o.samples.Count(ctx)
	if err != nil {
		return st, err
	}
	st.Samples = &n
	return st, nil
}

// ReloadModel drops the in-memory model and loads the artifact again,
// picking up one written by another process (e.g. `nexus train`). It trains
// only when the artifact has since been removed.
func (o *Orchestrator) ReloadModel(ctx context.Context) (model.Info, error) {
	o.models.Reset()
	return o.LoadModel(ctx)
}

func (o *Orchestrator) ModelInfo() model.Info { return o.models.Info() }

func (o *Orchestrator) Metrics() *metrics.Collector { return o.metrics }

func (o *Orchestrator) Config() *Config { return o.cfg }

// Close cancels running jobs, waits for them and releases the dataset DB.
func (o *Orchestrator) Close() error {
	o.jobsMu.Lock()
	for _, cancel := range o.jobCancels {
		cancel()
	}
	o.jobsMu.Unlock()
	o.wg.Wait()
	o.closeDB()
	return nil
}

// ErrorKind classifies an error for metrics and HTTP responses.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, grc.ErrInvalidInput), errors.Is(err, ErrInvalidRequest):
		return "invalid_input"
	case errors.Is(err, ErrContentTooLarge):
		return "too_large"
	case errors.Is(err, config.ErrConfiguration):
		return "configuration"
	case errors.Is(err, dataset.ErrDataset):
		return "dataset"
	case errors.Is(err, artifact.ErrArtifactIO):
		return "artifact"
	case errors.Is(err, os.ErrNotExist):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
