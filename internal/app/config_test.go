package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/raysh454/nexus/internal/testutil"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	def := DefaultConfig()
	if cfg.ModelPath != def.ModelPath || cfg.Dataset != def.Dataset || cfg.KeywordsPath != def.KeywordsPath {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.JobRetentionTime != time.Hour {
		t.Fatalf("JobRetentionTime = %v", cfg.JobRetentionTime)
	}
	if cfg.ScanRoot != "." || len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("scan_root = %q, allowed_origins = %v", cfg.ScanRoot, cfg.AllowedOrigins)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := testutil.WriteFile(t, "nexus.json", `{
		"model_path": "/tmp/m.json",
		"dataset": {"driver": "sqlite", "path": "/tmp/s.db"},
		"trees": 7,
		"job_retention_time": "2m",
		"scan_root": "/srv/inbox",
		"allowed_origins": ["https://console.example"]
	}`)
	t.Setenv("NEXUS_LISTEN_ADDR", ":9999")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ModelPath != "/tmp/m.json" || cfg.Dataset.Driver != DatasetSQLite || cfg.Dataset.Path != "/tmp/s.db" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Trees != 7 || cfg.ModelConfig().Params.Trees != 7 {
		t.Fatalf("trees = %d", cfg.Trees)
	}
	if cfg.JobRetentionTime != 2*time.Minute {
		t.Fatalf("JobRetentionTime = %v", cfg.JobRetentionTime)
	}
	if cfg.ScanRoot != "/srv/inbox" || len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://console.example" {
		t.Fatalf("scan settings not applied: %q %v", cfg.ScanRoot, cfg.AllowedOrigins)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("env not applied: %q", cfg.ListenAddr)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := testutil.WriteFile(t, "bad.json", `{"dataset": {"driver": "mongo"}}`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
