package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/raysh454/nexus/internal/forest"
	"github.com/raysh454/nexus/internal/model"
)

// Dataset drivers.
const (
	DatasetCSV    = "csv"
	DatasetSQLite = "sqlite"
)

// DatasetConfig selects where labeled training samples come from.
type DatasetConfig struct {
	// Driver is "csv" or "sqlite".
	Driver string `mapstructure:"driver"`

	// Path is the CSV file or the SQLite database file.
	Path string `mapstructure:"path"`
}

// Config contains the runtime configuration shared by the CLI and the server.
type Config struct {
	// KeywordsPath points at the document holding suspicious_keywords.
	KeywordsPath string `mapstructure:"keywords_path"`

	Dataset DatasetConfig `mapstructure:"dataset"`

	// ModelPath is the single model artifact location.
	ModelPath string `mapstructure:"model_path"`

	// Trees and Seed parameterize training when no artifact exists.
	Trees int    `mapstructure:"trees"`
	Seed  uint64 `mapstructure:"seed"`

	// MaxConcurrency bounds parallel file analyses inside a scan job.
	MaxConcurrency int `mapstructure:"max_concurrency"`

	// MaxContentBytes caps a single analyzed file or request body.
	MaxContentBytes int64 `mapstructure:"max_content_bytes"`

	// JobRetentionTime is how long finished jobs stay listable.
	JobRetentionTime time.Duration `mapstructure:"job_retention_time"`

	// ScanRoot confines scan job paths. Paths that resolve outside it,
	// symlinks included, are rejected.
	ScanRoot string `mapstructure:"scan_root"`

	// ListenAddr is the HTTP listen address for `nexus serve`.
	ListenAddr string `mapstructure:"listen_addr"`

	// AllowedOrigins lists browser origins allowed to call the API and open
	// job websockets. Empty means same-origin only; "*" allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`
}

// DefaultConfig returns a Config populated with the reference layout:
// config/config.json, data/threat_samples.csv, models/threat_model.json.
func DefaultConfig() *Config {
	p := forest.DefaultParams()
	return &Config{
		KeywordsPath: "config/config.json",
		Dataset: DatasetConfig{
			Driver: DatasetCSV,
			Path:   "data/threat_samples.csv",
		},
		ModelPath:        "models/threat_model.json",
		Trees:            p.Trees,
		Seed:             p.Seed,
		MaxConcurrency:   4,
		MaxContentBytes:  64 << 20,
		JobRetentionTime: time.Hour,
		ScanRoot:         ".",
		ListenAddr:       ":8080",
		LogLevel:         "info",
	}
}

// ModelConfig derives the model manager settings.
func (c *Config) ModelConfig() model.Config {
	p := forest.DefaultParams()
	if c.Trees > 0 {
		p.Trees = c.Trees
	}
	p.Seed = c.Seed
	return model.Config{ArtifactPath: c.ModelPath, Params: p}
}

// LoadConfig layers, lowest first: DefaultConfig, the optional file at path,
// and NEXUS_* environment variables (NEXUS_DATASET_PATH, NEXUS_MODEL_PATH, ...).
func LoadConfig(path string) (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetDefault("keywords_path", def.KeywordsPath)
	v.SetDefault("dataset.driver", def.Dataset.Driver)
	v.SetDefault("dataset.path", def.Dataset.Path)
	v.SetDefault("model_path", def.ModelPath)
	v.SetDefault("trees", def.Trees)
	v.SetDefault("seed", def.Seed)
	v.SetDefault("max_concurrency", def.MaxConcurrency)
	v.SetDefault("max_content_bytes", def.MaxContentBytes)
	v.SetDefault("job_retention_time", def.JobRetentionTime)
	v.SetDefault("scan_root", def.ScanRoot)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the orchestrator cannot run with.
func (c *Config) Validate() error {
	switch c.Dataset.Driver {
	case DatasetCSV, DatasetSQLite:
	default:
		return fmt.Errorf("config: unknown dataset driver %q", c.Dataset.Driver)
	}
	if c.Dataset.Path == "" {
		return fmt.Errorf("config: dataset.path is required")
	}
	if c.ModelPath == "" {
		return fmt.Errorf("config: model_path is required")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("config: max_concurrency must be at least 1")
	}
	if c.MaxContentBytes < 1 {
		return fmt.Errorf("config: max_content_bytes must be positive")
	}
	if c.ScanRoot == "" {
		return fmt.Errorf("config: scan_root is required")
	}
	return nil
}
